// Package enrich fills primary-source gaps after clustering: clusters with
// no primary-domain member trigger site-scoped searches over the intent's
// primary hosts, authoritative-org items with numeric content are promoted,
// and every item's confidence is recomputed from its final standing.
package enrich

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/veracity-labs/triangulate/pkg/evidence"
	"github.com/veracity-labs/triangulate/pkg/normalize"
	"github.com/veracity-labs/triangulate/pkg/schedule"
)

// Each gap gets between four and eight site-scoped queries; the intent host
// tables are sized so the floor is always reached.
const (
	maxQueriesPerGap = 8
	itemsPerGap      = 2
)

// Enricher runs the gap-fill and scoring passes.
type Enricher struct {
	scheduler *schedule.Scheduler
	// searchProviders are the providers able to honor site: restrictions.
	searchProviders []string
	intent          string
	log             *slog.Logger
}

// New creates an enricher issuing gap-fill queries through the run's
// scheduler over the given site-capable providers.
func New(scheduler *schedule.Scheduler, searchProviders []string, intent string) *Enricher {
	return &Enricher{
		scheduler:       scheduler,
		searchProviders: searchProviders,
		intent:          intent,
		log:             slog.Default().With("component", "enrich"),
	}
}

// FillGaps finds clusters with no primary-domain member and issues targeted
// site-scoped queries for each. Only results landing on a primary domain are
// admitted, at most two per gap, tagged with provenance primary_fill.
// Returns the admitted items; the caller appends them and reclusters or
// recomputes as needed.
func (e *Enricher) FillGaps(ctx context.Context, clusters []*evidence.Cluster, items []*evidence.Item) []*evidence.Item {
	if len(e.searchProviders) == 0 {
		return nil
	}
	hosts := evidence.PrimaryHostsForIntent(e.intent)

	var admitted []*evidence.Item
	for _, cl := range clusters {
		if ctx.Err() != nil {
			break
		}
		if hasPrimary(cl) {
			continue
		}
		queries := gapQueries(cl, hosts)
		if len(queries) == 0 {
			continue
		}

		got := e.scheduler.Fanout(ctx, e.searchProviders, queries)
		kept := 0
		for _, it := range got {
			if !evidence.IsPrimaryDomain(it.SourceDomain) {
				continue
			}
			it.SetMeta("provenance", "primary_fill")
			it.IsPrimarySource = true
			admitted = append(admitted, it)
			kept++
			if kept >= itemsPerGap {
				break
			}
		}
	}

	if len(admitted) > 0 {
		e.log.Info("primary gap fill", "admitted", len(admitted))
	}
	return admitted
}

// gapQueries pairs the cluster's key tokens and numeric tokens with site:
// restrictions over the intent's primary hosts, yielding 4-8 queries.
func gapQueries(cl *evidence.Cluster, hosts []string) []string {
	key := keyTokens(cl.RepresentativeClaim, 6)
	if key == "" {
		return nil
	}
	numeric := normalize.NumericTokens(cl.RepresentativeClaim)

	var queries []string
	for _, host := range hosts {
		queries = append(queries, key+" site:"+host)
		if len(numeric) > 0 {
			queries = append(queries, key+" "+numeric[0]+" site:"+host)
		}
		if len(queries) >= maxQueriesPerGap {
			break
		}
	}
	if len(queries) > maxQueriesPerGap {
		queries = queries[:maxQueriesPerGap]
	}
	return queries
}

// keyTokens returns the first n content tokens of the claim.
func keyTokens(claim string, n int) string {
	var out []string
	for _, w := range strings.Fields(strings.ToLower(claim)) {
		w = strings.Trim(w, `.,;:"'()`)
		if len(w) < 3 {
			continue
		}
		out = append(out, w)
		if len(out) >= n {
			break
		}
	}
	return strings.Join(out, " ")
}

// PromoteOrgs marks authoritative-org items carrying at least two numeric
// tokens as primary. Runs once, before metric computation; the metrics stage
// reads is_primary_source only.
func PromoteOrgs(items []*evidence.Item) int {
	promoted := 0
	for _, it := range items {
		if it.IsPrimarySource {
			continue
		}
		if evidence.IsPrimaryDomain(it.SourceDomain) {
			it.IsPrimarySource = true
			promoted++
			continue
		}
		if evidence.IsPrimaryOrg(it.SourceDomain) && len(normalize.NumericTokens(it.BestText())) >= 2 {
			it.IsPrimarySource = true
			promoted++
		}
	}
	return promoted
}

// Rescore recomputes every item's confidence:
// 0.4*domain_prior + 0.4*triangulated + 0.2*recency.
func Rescore(items []*evidence.Item, clusters []*evidence.Cluster, now time.Time) {
	inMultiDomain := make(map[int]bool)
	for _, cl := range clusters {
		if len(cl.Domains) < 2 {
			continue
		}
		for _, idx := range cl.Indices {
			inMultiDomain[idx] = true
		}
	}

	for i, it := range items {
		tri := 0.0
		if inMultiDomain[i] {
			tri = 1.0
			it.Triangulated = true
		}
		it.Confidence = 0.4*evidence.DomainPrior(it.SourceDomain) +
			0.4*tri +
			0.2*normalize.RecencyScore(it.Date, now)
	}
}

func hasPrimary(cl *evidence.Cluster) bool {
	for _, d := range cl.Domains {
		if evidence.IsPrimaryDomain(d) {
			return true
		}
	}
	return false
}
