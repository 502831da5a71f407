package intent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/veracity-labs/triangulate/pkg/config"
	"github.com/veracity-labs/triangulate/pkg/evidence"
	"github.com/veracity-labs/triangulate/pkg/provider"
)

type fakeProvider struct {
	desc provider.Descriptor
}

func (f *fakeProvider) Descriptor() provider.Descriptor { return f.desc }

func (f *fakeProvider) Search(context.Context, string, int) ([]*evidence.Item, error) {
	return nil, nil
}

func registryWith(names ...string) *provider.Registry {
	reg := provider.NewRegistry()
	for _, name := range names {
		reg.Register(&fakeProvider{desc: provider.Descriptor{Name: name}})
	}
	return reg
}

func keyedRegistry(names map[string]string) *provider.Registry {
	reg := provider.NewRegistry()
	for name, keyName := range names {
		reg.Register(&fakeProvider{desc: provider.Descriptor{Name: name, KeyName: keyName}})
	}
	return reg
}

func emptyConfig() *config.Config {
	return &config.Config{APIKeys: make(map[string]string)}
}

func TestExpandStatsOrder(t *testing.T) {
	reg := registryWith("worldbank", "oecd", "imf", "eurostat", "wikipedia", "openalex")
	got := Expand(Classification{Primary: Stats}, reg, emptyConfig())

	require.Equal(t, []string{"worldbank", "oecd", "imf", "eurostat", "openalex", "wikipedia"}, got)
}

func TestExpandSkipsUnregistered(t *testing.T) {
	reg := registryWith("wikipedia")
	got := Expand(Classification{Primary: Stats}, reg, emptyConfig())

	require.Equal(t, []string{"wikipedia"}, got)
}

func TestExpandSkipsUncredentialed(t *testing.T) {
	reg := keyedRegistry(map[string]string{
		"gdelt":  "",
		"tavily": "TAVILY_API_KEY",
	})
	got := Expand(Classification{Primary: News}, reg, emptyConfig())
	require.Equal(t, []string{"gdelt"}, got)

	cfg := emptyConfig()
	cfg.APIKeys["tavily"] = "k"
	got = Expand(Classification{Primary: News}, reg, cfg)
	require.Equal(t, []string{"gdelt", "tavily"}, got)
}

func TestExpandUnionDeduplicates(t *testing.T) {
	reg := registryWith("worldbank", "openalex", "crossref", "wikipedia")
	c := Classification{Primary: Stats, Secondary: []Intent{Academic}}
	got := Expand(c, reg, emptyConfig())

	counts := make(map[string]int)
	for _, name := range got {
		counts[name]++
	}
	for name, n := range counts {
		require.Equal(t, 1, n, "provider %s expanded twice", name)
	}
	require.Contains(t, got, "crossref")
}

func TestExpandFallsBackToEncyclopediaFloor(t *testing.T) {
	reg := registryWith("wikipedia", "wikidata", "wayback")
	// Local bundle has none of these in its primary tiers except wikipedia.
	got := Expand(Classification{Primary: Local}, reg, emptyConfig())
	require.NotEmpty(t, got)

	// An intent whose bundle is entirely unregistered still expands.
	empty := provider.NewRegistry()
	empty.Register(&fakeProvider{desc: provider.Descriptor{Name: "wikidata"}})
	got = Expand(Classification{Primary: Local}, empty, emptyConfig())
	require.Equal(t, []string{"wikidata"}, got)
}

func TestQueriesDepthCaps(t *testing.T) {
	c := Classification{Primary: Stats}
	for depth, want := range map[string]int{"rapid": 2, "standard": 4, "deep": 6} {
		got := Queries("german tourism", c, depth, 2026)
		require.LessOrEqual(t, len(got), want, "depth %s", depth)
		require.Equal(t, "german tourism", got[0])
	}
}

func TestQueriesYearSubstitution(t *testing.T) {
	got := Queries("german tourism", Classification{Primary: Stats}, "deep", 2026)
	require.Contains(t, got, "german tourism data 2026")
}

func TestQueriesUnknownDepthDefaultsToStandard(t *testing.T) {
	got := Queries("topic", Classification{Primary: Generic}, "bogus", 2026)
	require.LessOrEqual(t, len(got), 4)
}
