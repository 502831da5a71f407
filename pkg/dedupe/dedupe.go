package dedupe

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"golang.org/x/text/unicode/norm"

	"github.com/veracity-labs/triangulate/pkg/evidence"
)

// nearDupThreshold is the estimated Jaccard similarity above which two items
// count as the same document.
const nearDupThreshold = 0.92

// Deduper collapses duplicates across three passes. The bloom filter is a
// fast negative check in front of the exact URL map; false positives fall
// through to the map, so the filter never drops a unique item.
type Deduper struct {
	log *slog.Logger
}

// New creates a deduper.
func New() *Deduper {
	return &Deduper{log: slog.Default().With("component", "dedupe")}
}

// Result reports what the pass kept and how many it removed per reason.
type Result struct {
	Kept        []*evidence.Item
	URLDups     int
	ContentDups int
	NearDups    int
}

// Run deduplicates items in place of ordering: survivors keep arrival order.
// Between duplicates the higher-credibility item wins; on a tie, the earlier
// collected one.
func (d *Deduper) Run(items []*evidence.Item) *Result {
	res := &Result{}

	filter := bloom.NewWithEstimates(uint(len(items))+1, 0.01)
	byURL := make(map[string]int)
	byHash := make(map[string]int)

	type sketch struct {
		idx int
		sig signature
	}
	buckets := make(map[uint64][]sketch)

	var kept []*evidence.Item
	for _, it := range items {
		if it.ContentHash == "" {
			it.ContentHash = ContentHash(it)
		}

		// Pass 1: canonical URL.
		urlKey := it.URL
		if filter.TestString(urlKey) {
			if prev, ok := byURL[urlKey]; ok {
				kept[prev] = better(kept[prev], it)
				res.URLDups++
				continue
			}
		}
		filter.AddString(urlKey)

		// Pass 2: exact content hash.
		if prev, ok := byHash[it.ContentHash]; ok {
			kept[prev] = better(kept[prev], it)
			res.ContentDups++
			continue
		}

		// Pass 3: MinHash near-duplicate via LSH banding.
		sig := minhash(shingles(it.Title + " " + it.BestText()))
		dupOf := -1
		for _, key := range bandKeys(sig) {
			for _, cand := range buckets[key] {
				if estimate(cand.sig, sig) >= nearDupThreshold {
					dupOf = cand.idx
					break
				}
			}
			if dupOf >= 0 {
				break
			}
		}
		if dupOf >= 0 {
			kept[dupOf] = better(kept[dupOf], it)
			res.NearDups++
			continue
		}

		idx := len(kept)
		kept = append(kept, it)
		byURL[urlKey] = idx
		byHash[it.ContentHash] = idx
		for _, key := range bandKeys(sig) {
			buckets[key] = append(buckets[key], sketch{idx: idx, sig: sig})
		}
	}

	dropped := res.URLDups + res.ContentDups + res.NearDups
	if dropped > 0 {
		d.log.Debug("deduplicated",
			"in", len(items), "out", len(kept),
			"url", res.URLDups, "content", res.ContentDups, "near", res.NearDups,
		)
	}
	res.Kept = kept
	return res
}

// better picks the survivor between two duplicates: higher credibility, then
// earlier collection. The loser is marked so failure accounting stays exact.
func better(a, b *evidence.Item) *evidence.Item {
	keep, drop := a, b
	if b.CredibilityScore > a.CredibilityScore ||
		(b.CredibilityScore == a.CredibilityScore && b.CollectedAt.Before(a.CollectedAt)) {
		keep, drop = b, a
	}
	drop.Failure = evidence.FailDuplicate
	// Merge identifiers the survivor is missing.
	if keep.DOI == "" {
		keep.DOI = drop.DOI
	}
	if keep.PMID == "" {
		keep.PMID = drop.PMID
	}
	if keep.Date == "" {
		keep.Date = drop.Date
	}
	return keep
}

// ContentHash fingerprints the item's normalized text content. NFKC folds
// width and compatibility variants so mirrors that re-encode text still hash
// equal.
func ContentHash(it *evidence.Item) string {
	text := norm.NFKC.String(it.Title + " " + it.Snippet)
	text = strings.ToLower(strings.Join(strings.Fields(text), " "))
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
