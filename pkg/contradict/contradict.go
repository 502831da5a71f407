// Package contradict screens paraphrase clusters for internal conflict:
// members asserting opposite directions of change, or reporting numbers too
// far apart to describe the same fact. Conflicted clusters without a trusted
// domain are dropped; the rest are flagged for review.
package contradict

import (
	"log/slog"
	"math"
	"strings"

	"github.com/veracity-labs/triangulate/pkg/evidence"
	"github.com/veracity-labs/triangulate/pkg/normalize"
)

var increaseWords = []string{
	"increase", "increased", "rise", "rose", "rising", "grew", "grow", "growth",
	"surge", "surged", "up", "gain", "gained", "climb", "climbed", "expand", "expanded",
}

var decreaseWords = []string{
	"decrease", "decreased", "fall", "fell", "falling", "decline", "declined",
	"drop", "dropped", "down", "shrink", "shrank", "contracted", "plunge", "plunged",
}

// Options tunes the filter.
type Options struct {
	// TolerancePct is the relative difference (percent) above which two
	// numbers disagree. Default 35.
	TolerancePct float64
	// Strict keeps the single best multi-domain cluster even when every
	// cluster is conflicted.
	Strict bool
}

// Filter applies the contradiction rules.
type Filter struct {
	opts    Options
	trusted map[string]struct{}
	log     *slog.Logger
}

// New creates the filter with the trusted-domain set resolved once.
func New(opts Options) *Filter {
	if opts.TolerancePct <= 0 {
		opts.TolerancePct = 35
	}
	return &Filter{
		opts:    opts,
		trusted: evidence.TrustedDomains(),
		log:     slog.Default().With("component", "contradict"),
	}
}

// Result separates survivors from dropped clusters.
type Result struct {
	Kept    []*evidence.Cluster
	Dropped []*evidence.Cluster
}

// Run screens the clusters. Dropped clusters get a DroppedReason and their
// members are marked; preserved-but-conflicted clusters get NeedsReview. The
// strict floor guarantees at least one multi-domain cluster survives when
// any exists.
func (f *Filter) Run(clusters []*evidence.Cluster, items []*evidence.Item) *Result {
	res := &Result{}

	for _, cl := range clusters {
		directional := f.directionalOpposition(cl, items)
		numeric, conflictPairs, totalPairs := f.numericOpposition(cl, items)

		conflicted := directional || numeric
		if !conflicted {
			res.Kept = append(res.Kept, cl)
			continue
		}

		// Trusted-domain immunity.
		if f.hasTrustedDomain(cl) {
			cl.Meta.NeedsReview = true
			f.markDisputed(cl, items)
			res.Kept = append(res.Kept, cl)
			continue
		}

		// Per-cluster allowance: one conflict, or a small conflict
		// fraction, is tolerated with a review flag.
		if !directional && conflictPairs <= 1 {
			cl.Meta.NeedsReview = true
			f.markDisputed(cl, items)
			res.Kept = append(res.Kept, cl)
			continue
		}
		if !directional && totalPairs > 0 && float64(conflictPairs)/float64(totalPairs) <= 0.10 {
			cl.Meta.NeedsReview = true
			f.markDisputed(cl, items)
			res.Kept = append(res.Kept, cl)
			continue
		}

		reason := "numeric_contradiction"
		if directional {
			reason = "directional_opposition"
		}
		cl.Meta.DroppedReason = reason
		for _, idx := range cl.Indices {
			items[idx].Failure = evidence.FailContradictedDrop
		}
		res.Dropped = append(res.Dropped, cl)
	}

	// Strict floor: never end with zero clusters while a multi-domain
	// cluster exists among the dropped.
	if f.opts.Strict && !hasMultiDomain(res.Kept) {
		if best := bestMultiDomain(res.Dropped); best != nil {
			best.Meta.PreservedInStrict = true
			best.Meta.NeedsReview = true
			best.Meta.DroppedReason = ""
			for _, idx := range best.Indices {
				items[idx].Failure = evidence.FailKept
			}
			res.Kept = append(res.Kept, best)
			res.Dropped = removeCluster(res.Dropped, best)
			f.log.Info("strict floor preserved cluster", "domains", len(best.Domains))
		}
	}

	if len(res.Dropped) > 0 {
		f.log.Debug("contradiction screen", "kept", len(res.Kept), "dropped", len(res.Dropped))
	}
	return res
}

// directionalOpposition requires at least two members on each side of the
// increase/decrease split, both sides with average credibility >= 0.6.
func (f *Filter) directionalOpposition(cl *evidence.Cluster, items []*evidence.Item) bool {
	var upCount, downCount int
	var upCred, downCred float64

	for _, idx := range cl.Indices {
		text := strings.ToLower(items[idx].BestText())
		up := containsAny(text, increaseWords)
		down := containsAny(text, decreaseWords)
		switch {
		case up && !down:
			upCount++
			upCred += items[idx].CredibilityScore
		case down && !up:
			downCount++
			downCred += items[idx].CredibilityScore
		}
	}

	if upCount < 2 || downCount < 2 {
		return false
	}
	return upCred/float64(upCount) >= 0.6 && downCred/float64(downCount) >= 0.6
}

// numericOpposition extracts unit-scaled magnitudes per member and counts
// pairwise disagreements beyond tolerance. It only fires with >=3 distinct
// domains and >10% disagreeing pairs.
func (f *Filter) numericOpposition(cl *evidence.Cluster, items []*evidence.Item) (bool, int, int) {
	if len(cl.Domains) < 3 {
		return false, 0, 0
	}

	var values []float64
	for _, idx := range cl.Indices {
		values = append(values, normalize.Magnitudes(items[idx].BestText())...)
	}
	if len(values) < 2 {
		return false, 0, 0
	}

	conflicts, total := 0, 0
	for i := 0; i < len(values); i++ {
		for j := i + 1; j < len(values); j++ {
			total++
			if relativeDiff(values[i], values[j]) >= f.opts.TolerancePct/100 {
				conflicts++
			}
		}
	}
	return float64(conflicts)/float64(total) > 0.10, conflicts, total
}

// markDisputed records cross-domain dispute context on a conflicted
// cluster's members.
func (f *Filter) markDisputed(cl *evidence.Cluster, items []*evidence.Item) {
	for _, idx := range cl.Indices {
		it := items[idx]
		it.Controversy = math.Max(it.Controversy, 0.5)
		for _, d := range cl.Domains {
			if d != it.SourceDomain {
				it.DisputedBy = appendUnique(it.DisputedBy, d)
			}
		}
	}
}

func (f *Filter) hasTrustedDomain(cl *evidence.Cluster) bool {
	for _, d := range cl.Domains {
		if evidence.IsTrusted(d, f.trusted) {
			return true
		}
	}
	return false
}

func hasMultiDomain(clusters []*evidence.Cluster) bool {
	for _, cl := range clusters {
		if len(cl.Domains) >= 2 {
			return true
		}
	}
	return false
}

// bestMultiDomain picks the dropped cluster with the most domains, then the
// most members.
func bestMultiDomain(clusters []*evidence.Cluster) *evidence.Cluster {
	var best *evidence.Cluster
	for _, cl := range clusters {
		if len(cl.Domains) < 2 {
			continue
		}
		if best == nil ||
			len(cl.Domains) > len(best.Domains) ||
			(len(cl.Domains) == len(best.Domains) && len(cl.Indices) > len(best.Indices)) {
			best = cl
		}
	}
	return best
}

func removeCluster(clusters []*evidence.Cluster, target *evidence.Cluster) []*evidence.Cluster {
	out := clusters[:0]
	for _, cl := range clusters {
		if cl != target {
			out = append(out, cl)
		}
	}
	return out
}

func relativeDiff(a, b float64) float64 {
	max := math.Max(math.Abs(a), math.Abs(b))
	if max == 0 {
		return 0
	}
	return math.Abs(a-b) / max
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if containsWord(text, w) {
			return true
		}
	}
	return false
}

// containsWord matches w as a whole word in already-lowercased text.
func containsWord(text, w string) bool {
	idx := 0
	for {
		i := strings.Index(text[idx:], w)
		if i < 0 {
			return false
		}
		i += idx
		before := i == 0 || !isLetter(text[i-1])
		afterIdx := i + len(w)
		after := afterIdx >= len(text) || !isLetter(text[afterIdx])
		if before && after {
			return true
		}
		idx = i + len(w)
	}
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func appendUnique(list []string, v string) []string {
	for _, s := range list {
		if s == v {
			return list
		}
	}
	return append(list, v)
}
