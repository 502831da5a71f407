package contradict

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/veracity-labs/triangulate/pkg/evidence"
)

func member(domain, text string, cred float64) *evidence.Item {
	it := evidence.NewItem("https://"+domain+"/p", text, text, "test", domain)
	it.CredibilityScore = cred
	return it
}

func clusterOf(items []*evidence.Item, indices ...int) *evidence.Cluster {
	cl := &evidence.Cluster{Indices: indices}
	cl.Recompute(items)
	return cl
}

func TestCleanClusterKept(t *testing.T) {
	items := []*evidence.Item{
		member("a.org", "Arrivals rose 12 percent in 2024", 0.8),
		member("b.org", "Visitor numbers rose 12 percent in 2024", 0.8),
	}
	cls := []*evidence.Cluster{clusterOf(items, 0, 1)}

	res := New(Options{}).Run(cls, items)
	require.Len(t, res.Kept, 1)
	require.Empty(t, res.Dropped)
	require.False(t, res.Kept[0].Meta.NeedsReview)
}

func TestDirectionalOppositionDrops(t *testing.T) {
	items := []*evidence.Item{
		member("a.example", "Tourism revenue rose sharply this season", 0.8),
		member("b.example", "Revenue increased across the coastal region", 0.7),
		member("c.example", "Revenue fell for the third straight season", 0.8),
		member("d.example", "Takings declined across coastal resorts", 0.7),
	}
	cls := []*evidence.Cluster{clusterOf(items, 0, 1, 2, 3)}

	res := New(Options{}).Run(cls, items)
	require.Empty(t, res.Kept)
	require.Len(t, res.Dropped, 1)
	require.Equal(t, "directional_opposition", res.Dropped[0].Meta.DroppedReason)
	for _, it := range items {
		require.Equal(t, evidence.FailContradictedDrop, it.Failure)
	}
}

func TestDirectionalNeedsBothSidesCredible(t *testing.T) {
	items := []*evidence.Item{
		member("a.example", "Revenue rose sharply", 0.8),
		member("b.example", "Revenue increased again", 0.7),
		member("c.example", "Revenue fell this year", 0.3),
		member("d.example", "Revenue declined further", 0.3),
	}
	cls := []*evidence.Cluster{clusterOf(items, 0, 1, 2, 3)}

	res := New(Options{}).Run(cls, items)
	require.Len(t, res.Kept, 1)
}

func TestDirectionalNeedsTwoPerSide(t *testing.T) {
	items := []*evidence.Item{
		member("a.example", "Revenue rose sharply", 0.9),
		member("b.example", "Revenue increased again", 0.9),
		member("c.example", "Revenue fell this year", 0.9),
	}
	cls := []*evidence.Cluster{clusterOf(items, 0, 1, 2)}

	res := New(Options{}).Run(cls, items)
	require.Len(t, res.Kept, 1)
}

func TestTrustedDomainImmunity(t *testing.T) {
	items := []*evidence.Item{
		member("oecd.org", "Output rose 4 percent", 0.9),
		member("a.example", "Output climbed again this year", 0.8),
		member("b.example", "Output fell for the second year", 0.8),
		member("c.example", "Production dropped noticeably", 0.8),
	}
	cls := []*evidence.Cluster{clusterOf(items, 0, 1, 2, 3)}

	res := New(Options{}).Run(cls, items)
	require.Len(t, res.Kept, 1)
	require.True(t, res.Kept[0].Meta.NeedsReview)
	// Members carry the dispute context instead of being dropped.
	require.GreaterOrEqual(t, items[1].Controversy, 0.5)
	require.NotEmpty(t, items[1].DisputedBy)
	require.NotContains(t, items[1].DisputedBy, items[1].SourceDomain)
}

func TestNumericContradictionNeedsThreeDomains(t *testing.T) {
	// Two domains with wildly different magnitudes: not enough spread.
	items := []*evidence.Item{
		member("a.example", "The market reached 10 million visitors", 0.7),
		member("b.example", "The market reached 90 million visitors", 0.7),
	}
	cls := []*evidence.Cluster{clusterOf(items, 0, 1)}

	res := New(Options{}).Run(cls, items)
	require.Len(t, res.Kept, 1)
}

func TestNumericContradictionDrops(t *testing.T) {
	items := []*evidence.Item{
		member("a.example", "Revenue hit 10 million last year", 0.7),
		member("b.example", "Revenue hit 50 million last year", 0.7),
		member("c.example", "Revenue hit 90 million last year", 0.7),
	}
	cls := []*evidence.Cluster{clusterOf(items, 0, 1, 2)}

	res := New(Options{}).Run(cls, items)
	require.Empty(t, res.Kept)
	require.Len(t, res.Dropped, 1)
	require.Equal(t, "numeric_contradiction", res.Dropped[0].Meta.DroppedReason)
}

func TestStrictFloorPreservesBestCluster(t *testing.T) {
	items := []*evidence.Item{
		member("a.example", "Revenue hit 10 million last year", 0.7),
		member("b.example", "Revenue hit 50 million last year", 0.7),
		member("c.example", "Revenue hit 90 million last year", 0.7),
	}
	cls := []*evidence.Cluster{clusterOf(items, 0, 1, 2)}

	res := New(Options{Strict: true}).Run(cls, items)
	require.Len(t, res.Kept, 1)
	require.Empty(t, res.Dropped)
	require.True(t, res.Kept[0].Meta.PreservedInStrict)
	require.True(t, res.Kept[0].Meta.NeedsReview)
	for _, it := range items {
		require.Equal(t, evidence.FailKept, it.Failure)
	}
}

func TestStrictFloorSkipsSingleDomain(t *testing.T) {
	items := []*evidence.Item{
		member("a.example", "Revenue rose sharply", 0.9),
		member("a.example", "Revenue increased again", 0.9),
		member("a.example", "Revenue fell this year", 0.9),
		member("a.example", "Revenue declined further", 0.9),
	}
	cls := []*evidence.Cluster{clusterOf(items, 0, 1, 2, 3)}

	res := New(Options{Strict: true}).Run(cls, items)
	require.Empty(t, res.Kept)
	require.Len(t, res.Dropped, 1)
}

func TestRelativeDiff(t *testing.T) {
	require.InDelta(t, 0.5, relativeDiff(50, 100), 1e-9)
	require.Zero(t, relativeDiff(0, 0))
	require.InDelta(t, 1, relativeDiff(0, 10), 1e-9)
}

func TestContainsWordWholeWordsOnly(t *testing.T) {
	require.True(t, containsWord("prices fell today", "fell"))
	require.False(t, containsWord("the fellowship gathered", "fell"))
	require.True(t, containsWord("growth", "growth"))
}
