package intent

import (
	"strconv"
	"strings"

	"github.com/veracity-labs/triangulate/pkg/config"
	"github.com/veracity-labs/triangulate/pkg/provider"
)

// Bundle is the four-tier provider selection for one intent. Tiers are walked
// in order during expansion; paid tiers only contribute credentialed
// providers.
type Bundle struct {
	FreePrimary  []string
	FreeFallback []string
	PaidPrimary  []string
	PaidFallback []string
}

// encyclopediaSources is the floor every expansion falls back to when a
// bundle empties out entirely.
var encyclopediaSources = []string{"wikipedia", "wikidata", "wayback"}

var bundles = map[Intent]Bundle{
	Encyclopedia: {
		FreePrimary:  []string{"wikipedia", "wikidata"},
		FreeFallback: []string{"wayback", "openalex"},
		PaidPrimary:  []string{"tavily", "brave"},
		PaidFallback: []string{"serper", "serpapi"},
	},
	News: {
		FreePrimary:  []string{"gdelt"},
		FreeFallback: []string{"wikipedia", "wayback"},
		PaidPrimary:  []string{"brave", "tavily"},
		PaidFallback: []string{"serper", "serpapi"},
	},
	Product: {
		FreePrimary:  []string{"wikipedia"},
		FreeFallback: []string{"wayback", "gdelt"},
		PaidPrimary:  []string{"serper", "serpapi"},
		PaidFallback: []string{"tavily", "brave"},
	},
	Local: {
		FreePrimary:  []string{"nominatim", "overpass"},
		FreeFallback: []string{"wikipedia"},
		PaidPrimary:  []string{"serper"},
		PaidFallback: []string{"brave"},
	},
	Academic: {
		FreePrimary:  []string{"openalex", "crossref", "arxiv"},
		FreeFallback: []string{"europepmc", "wikipedia"},
		PaidPrimary:  []string{"tavily"},
		PaidFallback: []string{"brave"},
	},
	Stats: {
		FreePrimary:  []string{"worldbank", "oecd", "imf", "eurostat"},
		FreeFallback: []string{"fred", "openalex", "wikipedia"},
		PaidPrimary:  []string{"tavily", "brave"},
		PaidFallback: []string{"serper"},
	},
	Travel: {
		FreePrimary:  []string{"nps", "nominatim", "overpass"},
		FreeFallback: []string{"wikipedia", "wikidata"},
		PaidPrimary:  []string{"tavily", "brave"},
		PaidFallback: []string{"serper", "serpapi"},
	},
	Regulatory: {
		FreePrimary:  []string{"sec-edgar"},
		FreeFallback: []string{"gdelt", "wayback"},
		PaidPrimary:  []string{"tavily", "brave"},
		PaidFallback: []string{"serper", "serpapi"},
	},
	HowTo: {
		FreePrimary:  []string{"wikipedia"},
		FreeFallback: []string{"wayback"},
		PaidPrimary:  []string{"serper", "tavily"},
		PaidFallback: []string{"brave", "serpapi"},
	},
	Medical: {
		FreePrimary:  []string{"pubmed", "europepmc"},
		FreeFallback: []string{"openalex", "wikipedia"},
		PaidPrimary:  []string{"tavily"},
		PaidFallback: []string{"brave"},
	},
	Generic: {
		FreePrimary:  []string{"wikipedia", "wikidata"},
		FreeFallback: []string{"gdelt", "wayback"},
		PaidPrimary:  []string{"tavily", "brave"},
		PaidFallback: []string{"serper", "serpapi"},
	},
}

// Expand walks the bundles for the classification's intent union, tier by
// tier, keeping only providers that are registered and credentialed, and
// deduplicating while preserving first-seen order. An empty expansion falls
// back to the encyclopedia floor.
func Expand(c Classification, reg *provider.Registry, cfg *config.Config) []string {
	var out []string
	seen := make(map[string]struct{})

	appendTier := func(names []string) {
		for _, name := range names {
			if _, dup := seen[name]; dup {
				continue
			}
			p, ok := reg.Get(name)
			if !ok || !provider.Credentialed(p, cfg) {
				continue
			}
			seen[name] = struct{}{}
			out = append(out, name)
		}
	}

	for _, tag := range c.Union() {
		b, ok := bundles[tag]
		if !ok {
			continue
		}
		appendTier(b.FreePrimary)
		appendTier(b.FreeFallback)
		appendTier(b.PaidPrimary)
		appendTier(b.PaidFallback)
	}

	if len(out) == 0 {
		appendTier(encyclopediaSources)
	}
	return out
}

// refinements appends intent-specific qualifier queries to the raw topic.
var refinements = map[Intent][]string{
	Stats:        {"%s statistics", "%s annual report", "%s data %d"},
	Academic:     {"%s research", "%s systematic review"},
	Medical:      {"%s clinical evidence", "%s treatment guidelines"},
	News:         {"%s latest developments"},
	Travel:       {"%s visitor statistics", "%s tourism report"},
	Regulatory:   {"%s filing", "%s regulation"},
	Product:      {"%s specifications", "%s independent review"},
	Local:        {"%s location"},
	HowTo:        {"%s documentation"},
	Encyclopedia: {"%s overview"},
	Generic:      {"%s overview", "%s report"},
}

// depthQueries caps the query set size per depth setting.
var depthQueries = map[string]int{"rapid": 2, "standard": 4, "deep": 6}

// Queries builds the fan-out query set: the raw topic first, then intent
// refinements across the union, capped by depth. %d receives the current
// year for recency-anchored refinements.
func Queries(topic string, c Classification, depth string, year int) []string {
	max, ok := depthQueries[depth]
	if !ok {
		max = depthQueries["standard"]
	}

	out := []string{topic}
	seen := map[string]struct{}{topic: {}}
	for _, tag := range c.Union() {
		for _, tmpl := range refinements[tag] {
			q := tmpl
			q = strings.ReplaceAll(q, "%d", strconv.Itoa(year))
			q = strings.ReplaceAll(q, "%s", topic)
			if _, dup := seen[q]; dup {
				continue
			}
			seen[q] = struct{}{}
			out = append(out, q)
			if len(out) >= max {
				return out
			}
		}
	}
	return out
}
