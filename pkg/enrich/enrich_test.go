package enrich

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/veracity-labs/triangulate/pkg/evidence"
	"github.com/veracity-labs/triangulate/pkg/httpx"
	"github.com/veracity-labs/triangulate/pkg/provider"
	"github.com/veracity-labs/triangulate/pkg/schedule"
)

// searchStub plays a site-capable search provider returning scripted items.
type searchStub struct {
	desc    provider.Descriptor
	results []*evidence.Item
	queries []string
}

func (s *searchStub) Descriptor() provider.Descriptor { return s.desc }

func (s *searchStub) Search(_ context.Context, query string, _ int) ([]*evidence.Item, error) {
	s.queries = append(s.queries, query)
	return s.results, nil
}

func schedulerWith(p provider.Provider) *schedule.Scheduler {
	reg := provider.NewRegistry()
	reg.Register(p)
	return schedule.New(reg, httpx.NewBreakerSet(3, time.Minute), schedule.Options{MaxConcurrency: 1})
}

func TestFillGapsIssuesSiteScopedQueries(t *testing.T) {
	stub := &searchStub{desc: provider.Descriptor{Name: "tavily"}}
	stub.results = []*evidence.Item{
		evidence.NewItem("https://www.unwto.org/stats", "Arrivals", "Arrivals grew 12 percent in 2024", "tavily", "unwto.org"),
	}
	e := New(schedulerWith(stub), []string{"tavily"}, "travel")

	items := []*evidence.Item{
		evidence.NewItem("https://blog.example/post", "Arrivals", "Arrivals grew 12 percent in 2024", "blog", "blog.example"),
	}
	clusters := []*evidence.Cluster{{
		Indices:             []int{0},
		Domains:             []string{"blog.example"},
		RepresentativeClaim: "Arrivals grew 12 percent in 2024",
	}}

	got := e.FillGaps(context.Background(), clusters, items)

	require.NotEmpty(t, got)
	require.NotEmpty(t, stub.queries)
	for _, q := range stub.queries {
		require.Contains(t, q, "site:")
	}
	for _, it := range got {
		require.True(t, it.IsPrimarySource)
		require.Equal(t, "primary_fill", it.Meta("provenance"))
	}
}

func TestFillGapsSkipsClustersWithPrimary(t *testing.T) {
	stub := &searchStub{desc: provider.Descriptor{Name: "tavily"}}
	e := New(schedulerWith(stub), []string{"tavily"}, "stats")

	clusters := []*evidence.Cluster{{
		Indices:             []int{0},
		Domains:             []string{"oecd.org"},
		RepresentativeClaim: "Output grew 2 percent in 2024",
	}}

	got := e.FillGaps(context.Background(), clusters, nil)
	require.Empty(t, got)
	require.Empty(t, stub.queries)
}

func TestFillGapsRejectsNonPrimaryResults(t *testing.T) {
	stub := &searchStub{desc: provider.Descriptor{Name: "tavily"}}
	stub.results = []*evidence.Item{
		evidence.NewItem("https://random.example/x", "T", "Snippet 12 percent", "tavily", "random.example"),
	}
	e := New(schedulerWith(stub), []string{"tavily"}, "stats")

	clusters := []*evidence.Cluster{{
		Indices:             []int{0},
		Domains:             []string{"blog.example"},
		RepresentativeClaim: "Output grew 2 percent in 2024",
	}}

	got := e.FillGaps(context.Background(), clusters, nil)
	require.Empty(t, got)
	require.NotEmpty(t, stub.queries)
}

func TestFillGapsAdmitsAtMostTwoPerGap(t *testing.T) {
	stub := &searchStub{desc: provider.Descriptor{Name: "tavily"}}
	for i := 0; i < 5; i++ {
		stub.results = append(stub.results,
			evidence.NewItem("https://www.oecd.org/r"+strings.Repeat("x", i), "T", "Figure 12 percent", "tavily", "oecd.org"))
	}
	e := New(schedulerWith(stub), []string{"tavily"}, "stats")

	clusters := []*evidence.Cluster{{
		Indices:             []int{0},
		Domains:             []string{"blog.example"},
		RepresentativeClaim: "Output grew 2 percent in 2024",
	}}

	got := e.FillGaps(context.Background(), clusters, nil)
	require.Len(t, got, 2)
}

func TestGapQueriesCappedAndSiteScoped(t *testing.T) {
	cl := &evidence.Cluster{
		RepresentativeClaim: "Global arrivals grew 12.5% during 2024 according to several reports",
	}
	queries := gapQueries(cl, []string{"unwto.org", "iata.org", "wttc.org", "worldbank.org", "oecd.org"})

	require.NotEmpty(t, queries)
	require.LessOrEqual(t, len(queries), 8)
	for _, q := range queries {
		require.Contains(t, q, "site:")
	}
	// The numeric variant carries the first numeric token.
	require.Contains(t, queries[1], "2024")
}

func TestKeyTokensSkipsShortWords(t *testing.T) {
	got := keyTokens("The GDP of Japan is at an all-time high", 4)
	require.NotContains(t, strings.Fields(got), "of")
	require.NotContains(t, strings.Fields(got), "is")
	require.LessOrEqual(t, len(strings.Fields(got)), 4)
}

func TestPromoteOrgs(t *testing.T) {
	gov := evidence.NewItem("https://www.bls.gov/x", "T", "Payrolls", "test", "bls.gov")
	orgNumeric := evidence.NewItem("https://www.statista.com/y", "T", "Market grew 12 percent in 2024", "test", "statista.com")
	orgProse := evidence.NewItem("https://www.statista.com/z", "T", "A market overview", "test", "statista.com")
	blog := evidence.NewItem("https://blog.example/w", "T", "Numbers 12 percent in 2024", "test", "blog.example")

	n := PromoteOrgs([]*evidence.Item{gov, orgNumeric, orgProse, blog})

	require.Equal(t, 2, n)
	require.True(t, gov.IsPrimarySource)
	require.True(t, orgNumeric.IsPrimarySource)
	require.False(t, orgProse.IsPrimarySource)
	require.False(t, blog.IsPrimarySource)
}

func TestRescore(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	a := evidence.NewItem("https://www.oecd.org/a", "T", "S", "test", "oecd.org")
	a.Date = "2026-07-20" // within 30 days
	b := evidence.NewItem("https://blog.example/b", "T", "S", "test", "blog.example")

	clusters := []*evidence.Cluster{{
		Indices: []int{0, 1},
		Domains: []string{"oecd.org", "blog.example"},
	}}
	Rescore([]*evidence.Item{a, b}, clusters, now)

	// 0.4*0.9 prior + 0.4 triangulated + 0.2*1.0 recency.
	require.InDelta(t, 0.96, a.Confidence, 1e-9)
	require.True(t, a.Triangulated)
	// 0.4*0.5 + 0.4 + 0.2*0.5 for the undated non-primary member.
	require.InDelta(t, 0.70, b.Confidence, 1e-9)
}

func TestRescoreSingleDomainClusterNotTriangulated(t *testing.T) {
	now := time.Now().UTC()
	a := evidence.NewItem("https://one.example/a", "T", "S", "test", "one.example")
	clusters := []*evidence.Cluster{{Indices: []int{0}, Domains: []string{"one.example"}}}

	Rescore([]*evidence.Item{a}, clusters, now)
	require.False(t, a.Triangulated)
}
