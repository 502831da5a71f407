package gates

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/veracity-labs/triangulate/pkg/evidence"
)

var now = time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

func gateItem(domain, provider string, primary bool, cred float64) *evidence.Item {
	it := evidence.NewItem("https://"+domain+"/x", "t", "s", provider, domain)
	it.IsPrimarySource = primary
	it.CredibilityScore = cred
	return it
}

func TestThresholdTables(t *testing.T) {
	stats := ThresholdsFor("stats", "")
	require.Equal(t, 0.50, stats.MinPrimaryShare)
	require.Equal(t, 0.40, stats.MinTriangulation)
	require.Equal(t, 0.25, stats.MaxConcentration)
	require.Equal(t, 3, stats.MinRecentPrimary)
	require.Equal(t, 1, stats.MinTriangulatedClus)

	travel := ThresholdsFor("travel", "")
	require.Equal(t, 0.30, travel.MinPrimaryShare)
	require.Equal(t, 0.35, travel.MaxConcentration)

	// Unknown intents use the generic table.
	unknown := ThresholdsFor("howto", "")
	require.Equal(t, ThresholdsFor("generic", "").MinPrimaryShare, unknown.MinPrimaryShare)
	require.Equal(t, "howto", unknown.Intent)
}

func TestLenientProfileRelaxes(t *testing.T) {
	base := ThresholdsFor("stats", "")
	lenient := ThresholdsFor("stats", "lenient")

	require.Less(t, lenient.MinPrimaryShare, base.MinPrimaryShare)
	require.Less(t, lenient.MinTriangulation, base.MinTriangulation)
	require.Greater(t, lenient.MaxConcentration, base.MaxConcentration)
	require.Zero(t, lenient.MinRecentPrimary)
	require.Zero(t, lenient.MinTriangulatedClus)
}

func TestStrictProfileTightens(t *testing.T) {
	base := ThresholdsFor("travel", "")
	strict := ThresholdsFor("travel", "strict")

	require.InDelta(t, base.MinPrimaryShare+0.10, strict.MinPrimaryShare, 1e-9)
	require.InDelta(t, base.MinTriangulation+0.10, strict.MinTriangulation, 1e-9)
}

func TestEvaluateEmptyItemsFailsAllGates(t *testing.T) {
	m := New("stats", "").Evaluate(nil, nil, 0, now)
	require.False(t, m.Pass())
	require.Zero(t, m.PrimaryShare)
}

func TestEvaluatePassingRun(t *testing.T) {
	items := []*evidence.Item{
		gateItem("oecd.org", "oecd", true, 0.9),
		gateItem("worldbank.org", "worldbank", true, 0.9),
		gateItem("imf.org", "imf", true, 0.9),
		gateItem("example.org", "wikipedia", false, 0.55),
	}
	for _, it := range items[:3] {
		it.Date = "2026-06-01"
	}
	clusters := []*evidence.Cluster{
		{Indices: []int{0, 1}, Domains: []string{"oecd.org", "worldbank.org"}},
		{Indices: []int{2, 3}, Domains: []string{"imf.org", "example.org"}},
	}

	m := New("stats", "").Evaluate(items, clusters, 0.05, now)

	require.True(t, m.PassPrimary)
	require.True(t, m.PassTriangulation)
	require.True(t, m.PassConcentration)
	require.True(t, m.PassExtras)
	require.True(t, m.Pass())
	require.InDelta(t, 0.75, m.PrimaryShare, 1e-9)
	require.InDelta(t, 1.0, m.TriangulationRate, 1e-9)
	require.Equal(t, 3, m.RecentPrimaryCount)
	require.Equal(t, 2, m.TriangulatedClusters)
	require.Equal(t, 4, m.UniqueDomains)
	require.Equal(t, 3, m.CredibleCards)
	require.InDelta(t, 0.05, m.ProviderErrorRate, 1e-9)
}

func TestEvaluateConcentrationGate(t *testing.T) {
	items := []*evidence.Item{
		gateItem("one.org", "p1", true, 0.9),
		gateItem("one.org", "p1", true, 0.9),
		gateItem("one.org", "p1", true, 0.9),
		gateItem("two.org", "p2", true, 0.9),
	}
	m := New("stats", "").Evaluate(items, nil, 0, now)

	require.InDelta(t, 0.75, m.DomainConcentration, 1e-9)
	require.False(t, m.PassConcentration)
}

func TestEvaluateSkipsDroppedItems(t *testing.T) {
	// A four-member contradicted cluster was dropped; a two-domain cluster
	// survives. Indices address the full slice, metrics only the kept pair.
	items := []*evidence.Item{
		gateItem("blog-a.example", "p1", false, 0.5),
		gateItem("blog-b.example", "p1", false, 0.5),
		gateItem("blog-c.example", "p1", false, 0.5),
		gateItem("blog-d.example", "p1", false, 0.5),
		gateItem("oecd.org", "oecd", true, 0.9),
		gateItem("imf.org", "imf", true, 0.9),
	}
	for _, it := range items[:4] {
		it.Failure = evidence.FailContradictedDrop
	}
	items[4].Date = "2026-06-01"
	items[5].Date = "2026-06-01"
	clusters := []*evidence.Cluster{
		{Indices: []int{4, 5}, Domains: []string{"oecd.org", "imf.org"}},
	}

	m := New("stats", "").Evaluate(items, clusters, 0, now)

	require.InDelta(t, 1.0, m.TriangulationRate, 1e-9)
	require.InDelta(t, 1.0, m.PrimaryShare, 1e-9)
	require.InDelta(t, 0.5, m.DomainConcentration, 1e-9)
	require.Equal(t, 2, m.UniqueDomains)
	require.Equal(t, 2, m.CredibleCards)
	require.Equal(t, 2, m.RecentPrimaryCount)
}

func TestEvaluateAllItemsDropped(t *testing.T) {
	items := []*evidence.Item{gateItem("blog.example", "p1", false, 0.5)}
	items[0].Failure = evidence.FailContradictedDrop

	m := New("stats", "").Evaluate(items, []*evidence.Cluster{
		{Indices: []int{0}, Domains: []string{"blog.example", "other.example"}},
	}, 0, now)

	require.Zero(t, m.TriangulationRate)
	require.Zero(t, m.TriangulatedClusters)
	require.False(t, m.Pass())
}

func TestEvaluateStatsExtras(t *testing.T) {
	// Primary share and triangulation fine, but no recent primaries.
	items := []*evidence.Item{
		gateItem("oecd.org", "oecd", true, 0.9),
		gateItem("worldbank.org", "worldbank", true, 0.9),
	}
	clusters := []*evidence.Cluster{
		{Indices: []int{0, 1}, Domains: []string{"oecd.org", "worldbank.org"}},
	}
	m := New("stats", "").Evaluate(items, clusters, 0, now)

	require.True(t, m.PassPrimary)
	require.False(t, m.PassExtras)
	require.False(t, m.Pass())
}

func TestEntropy(t *testing.T) {
	require.Zero(t, entropy(map[string]int{"a": 10}, 10))
	require.Zero(t, entropy(nil, 0))

	// Uniform two-provider split normalizes to 1.
	require.InDelta(t, 1.0, entropy(map[string]int{"a": 5, "b": 5}, 10), 1e-9)

	skewed := entropy(map[string]int{"a": 9, "b": 1}, 10)
	require.Greater(t, skewed, 0.0)
	require.Less(t, skewed, 1.0)
}

func TestRecentWithin(t *testing.T) {
	require.True(t, recentWithin("2026-06-01", now, 365))
	require.False(t, recentWithin("2024-01-01", now, 365))
	require.False(t, recentWithin("", now, 365))
	require.False(t, recentWithin("junk", now, 365))
}
