package cluster

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/veracity-labs/triangulate/pkg/evidence"
	"github.com/veracity-labs/triangulate/pkg/normalize"
)

const (
	thresholdFloor   = 0.32
	thresholdCeil    = 0.48
	jaccardThreshold = 0.32
	maxClaimLen      = 240
)

// Clusterer groups claim-like items by paraphrase similarity.
type Clusterer struct {
	embedder Embedder
	// FixedThreshold overrides the adaptive percentile when positive.
	FixedThreshold float64
	log            *slog.Logger
}

// New creates a clusterer. A nil embedder gets the lexical default.
func New(embedder Embedder) *Clusterer {
	if embedder == nil {
		embedder = LexicalEmbedder{}
	}
	return &Clusterer{
		embedder: embedder,
		log:      slog.Default().With("component", "cluster"),
	}
}

// Run clusters the claim-like subset of items. Indices in the returned
// clusters address the input slice. Singleton and single-domain clusters are
// included; callers separate triangulated ones via IsTriangulated.
func (c *Clusterer) Run(items []*evidence.Item) []*evidence.Cluster {
	claimIdx := make([]int, 0, len(items))
	for i, it := range items {
		if normalize.HasNumericToken(it.BestText()) {
			claimIdx = append(claimIdx, i)
		}
	}
	if len(claimIdx) == 0 {
		return nil
	}

	texts := make([]string, len(claimIdx))
	for k, idx := range claimIdx {
		texts[k] = items[idx].BestText()
	}

	var pairsAbove [][2]int
	if c.embedder.Semantic() {
		pairsAbove = c.semanticPairs(texts)
	} else {
		pairsAbove = c.jaccardPairs(texts)
	}

	uf := newUnionFind(len(claimIdx))
	for _, pair := range pairsAbove {
		uf.union(pair[0], pair[1])
	}

	groups := make(map[int][]int)
	for k := range claimIdx {
		root := uf.find(k)
		groups[root] = append(groups[root], claimIdx[k])
	}

	clusters := make([]*evidence.Cluster, 0, len(groups))
	for _, indices := range groups {
		sort.Ints(indices)
		cl := &evidence.Cluster{Indices: indices}
		cl.Recompute(items)
		cl.RepresentativeClaim = representative(items, indices)
		cl.ClaimType = classifyClaim(cl.RepresentativeClaim)
		clusters = append(clusters, cl)
	}
	// Stable order: biggest first, then first index.
	sort.Slice(clusters, func(a, b int) bool {
		if len(clusters[a].Indices) != len(clusters[b].Indices) {
			return len(clusters[a].Indices) > len(clusters[b].Indices)
		}
		return clusters[a].Indices[0] < clusters[b].Indices[0]
	})

	c.log.Debug("clustered", "claims", len(claimIdx), "clusters", len(clusters))
	return clusters
}

// semanticPairs returns index pairs whose cosine clears the adaptive
// threshold. Numeric-token agreement (>=2 shared year/percent tokens) lifts
// a pair to the threshold even when cosine falls short.
func (c *Clusterer) semanticPairs(texts []string) [][2]int {
	n := len(texts)
	vecs := make([][]float32, n)
	for i, t := range texts {
		vecs[i] = c.embedder.Embed(t)
	}

	sims := make([]float64, 0, n*(n-1)/2)
	type scoredPair struct {
		a, b int
		sim  float64
	}
	pairs := make([]scoredPair, 0, n*(n-1)/2)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			sim := cosine(vecs[i], vecs[j])
			if normalize.SharedNumericTokens(texts[i], texts[j]) >= 2 {
				sim = 1 // forced join via numeric agreement
			}
			sims = append(sims, sim)
			pairs = append(pairs, scoredPair{i, j, sim})
		}
	}

	threshold := c.FixedThreshold
	if threshold <= 0 {
		threshold = percentile(sims, 0.70)
		if threshold < thresholdFloor {
			threshold = thresholdFloor
		}
		if threshold > thresholdCeil {
			threshold = thresholdCeil
		}
	}

	var out [][2]int
	for _, p := range pairs {
		if p.sim >= threshold {
			out = append(out, [2]int{p.a, p.b})
		}
	}
	return out
}

// jaccardPairs is the lexical fallback with its fixed threshold.
func (c *Clusterer) jaccardPairs(texts []string) [][2]int {
	n := len(texts)
	toks := make([][]string, n)
	for i, t := range texts {
		toks[i] = tokens(t)
	}

	threshold := c.FixedThreshold
	if threshold <= 0 {
		threshold = jaccardThreshold
	}

	var out [][2]int
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			sim := jaccard(toks[i], toks[j])
			if normalize.SharedNumericTokens(texts[i], texts[j]) >= 2 {
				sim = 1
			}
			if sim >= threshold {
				out = append(out, [2]int{i, j})
			}
		}
	}
	return out
}

// representative picks the highest-credibility member's text, stripped and
// truncated.
func representative(items []*evidence.Item, indices []int) string {
	best := indices[0]
	for _, idx := range indices[1:] {
		if items[idx].CredibilityScore > items[best].CredibilityScore {
			best = idx
		}
	}
	claim := normalize.StripHTML(items[best].BestText())
	if len(claim) > maxClaimLen {
		cut := claim[:maxClaimLen]
		if i := strings.LastIndexByte(cut, ' '); i > maxClaimLen/2 {
			cut = cut[:i]
		}
		claim = strings.TrimSpace(cut)
	}
	return claim
}

var opinionWords = []string{"should", "must", "believe", "argue", "opinion", "urge", "call for"}
var mechanismWords = []string{"because", "due to", "caused by", "mechanism", "leads to", "results from", "explains"}

// classifyClaim assigns the claim type from surface features: numbers beat
// mechanism language beats advocacy language; everything else is news
// context.
func classifyClaim(claim string) evidence.ClaimType {
	lower := strings.ToLower(claim)
	if len(normalize.NumericTokens(claim)) > 0 {
		return evidence.ClaimNumericMeasure
	}
	for _, w := range mechanismWords {
		if strings.Contains(lower, w) {
			return evidence.ClaimMechanismOrTheory
		}
	}
	for _, w := range opinionWords {
		if strings.Contains(lower, w) {
			return evidence.ClaimOpinionAdvocacy
		}
	}
	return evidence.ClaimNewsContext
}

// percentile returns the p-th percentile of values (0 < p < 1).
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	idx := int(p * float64(len(sorted)-1))
	return sorted[idx]
}

// unionFind is path-compressing union-find over [0,n).
type unionFind struct {
	parent []int
	rank   []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n), rank: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (uf *unionFind) find(x int) int {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

func (uf *unionFind) union(a, b int) {
	ra, rb := uf.find(a), uf.find(b)
	if ra == rb {
		return
	}
	if uf.rank[ra] < uf.rank[rb] {
		ra, rb = rb, ra
	}
	uf.parent[rb] = ra
	if uf.rank[ra] == uf.rank[rb] {
		uf.rank[ra]++
	}
}
