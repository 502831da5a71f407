// Package intent maps a research topic to an intent tag and expands the tag
// into the ordered provider list and query set the scheduler fans out over.
package intent

import (
	"regexp"
	"sort"
	"strings"
)

// Intent is a closed-set tag selecting provider bundles, query refinements,
// and gate thresholds.
type Intent string

const (
	Encyclopedia Intent = "encyclopedia"
	News         Intent = "news"
	Product      Intent = "product"
	Local        Intent = "local"
	Academic     Intent = "academic"
	Stats        Intent = "stats"
	Travel       Intent = "travel"
	Regulatory   Intent = "regulatory"
	HowTo        Intent = "howto"
	Medical      Intent = "medical"
	Generic      Intent = "generic"
)

// All lists every valid intent tag.
func All() []Intent {
	return []Intent{Encyclopedia, News, Product, Local, Academic, Stats,
		Travel, Regulatory, HowTo, Medical, Generic}
}

// Valid reports whether the tag is in the closed set.
func Valid(tag string) bool {
	for _, i := range All() {
		if string(i) == tag {
			return true
		}
	}
	return false
}

// anchor is a weighted keyword vote for an intent.
type anchor struct {
	intent Intent
	weight int
}

// anchors maps normalized tokens (and a few multi-word phrases, checked
// against the whole query) to intent votes. Higher weight wins ties.
var anchors = map[string]anchor{
	// stats
	"statistics": {Stats, 3}, "statistic": {Stats, 3}, "gdp": {Stats, 3},
	"inflation": {Stats, 3}, "unemployment": {Stats, 3}, "cpi": {Stats, 3},
	"arrivals": {Stats, 2}, "revenue": {Stats, 2}, "market size": {Stats, 3},
	"growth rate": {Stats, 3}, "per capita": {Stats, 3}, "trend": {Stats, 1},
	"forecast": {Stats, 2}, "percent": {Stats, 2}, "rate": {Stats, 1},
	"indicator": {Stats, 2}, "index": {Stats, 1}, "data": {Stats, 1},

	// academic
	"research": {Academic, 2}, "study": {Academic, 2}, "paper": {Academic, 2},
	"peer-reviewed": {Academic, 3}, "literature": {Academic, 2},
	"meta-analysis": {Academic, 3}, "hypothesis": {Academic, 2},
	"theory": {Academic, 1}, "journal": {Academic, 2}, "citation": {Academic, 2},
	"preprint": {Academic, 3}, "arxiv": {Academic, 3},

	// medical
	"symptoms": {Medical, 3}, "treatment": {Medical, 3}, "vaccine": {Medical, 3},
	"clinical": {Medical, 3}, "disease": {Medical, 2}, "diagnosis": {Medical, 3},
	"drug": {Medical, 2}, "therapy": {Medical, 2}, "dosage": {Medical, 3},
	"side effects": {Medical, 3}, "trial": {Medical, 2}, "patients": {Medical, 2},

	// news
	"latest": {News, 2}, "breaking": {News, 3}, "announcement": {News, 2},
	"today": {News, 2}, "yesterday": {News, 2}, "this week": {News, 3},
	"election": {News, 2}, "scandal": {News, 2}, "news": {News, 3},

	// travel
	"itinerary": {Travel, 3}, "visit": {Travel, 2}, "tourism": {Travel, 3},
	"tourist": {Travel, 3}, "hotel": {Travel, 2}, "flight": {Travel, 2},
	"attractions": {Travel, 3}, "national park": {Travel, 3},
	"travel": {Travel, 3}, "destination": {Travel, 2}, "trip": {Travel, 2},

	// local
	"near me": {Local, 3}, "nearby": {Local, 3}, "open now": {Local, 3},
	"address": {Local, 2}, "directions": {Local, 3}, "opening hours": {Local, 3},

	// regulatory
	"sec filing": {Regulatory, 3}, "10-k": {Regulatory, 3}, "10-q": {Regulatory, 3},
	"regulation": {Regulatory, 3}, "compliance": {Regulatory, 2},
	"lawsuit": {Regulatory, 2}, "cve": {Regulatory, 3}, "vulnerability": {Regulatory, 2},
	"sanctions": {Regulatory, 2}, "filing": {Regulatory, 2}, "statute": {Regulatory, 3},

	// product
	"review": {Product, 2}, "vs": {Product, 2}, "best": {Product, 1},
	"price": {Product, 2}, "specs": {Product, 3}, "comparison": {Product, 2},
	"alternatives": {Product, 2}, "buy": {Product, 2},

	// howto
	"how to": {HowTo, 3}, "tutorial": {HowTo, 3}, "guide": {HowTo, 2},
	"install": {HowTo, 2}, "setup": {HowTo, 2}, "fix": {HowTo, 2},
	"configure": {HowTo, 3}, "step by step": {HowTo, 3},

	// encyclopedia
	"history of": {Encyclopedia, 3}, "definition": {Encyclopedia, 3},
	"what is": {Encyclopedia, 2}, "who is": {Encyclopedia, 2},
	"biography": {Encyclopedia, 3}, "origin": {Encyclopedia, 2},
	"meaning": {Encyclopedia, 2}, "overview": {Encyclopedia, 2},
}

// compatible lists intent pairs that may co-occur in a multi-pack result.
// The primary supplies gate thresholds; the union drives provider expansion.
var compatible = map[Intent][]Intent{
	Stats:      {Travel, Academic, Regulatory},
	Academic:   {Medical, Stats},
	Medical:    {Academic, Stats},
	Travel:     {Local, Stats},
	Local:      {Travel},
	News:       {Regulatory, Stats},
	Regulatory: {News, Stats},
}

var tokenSplit = regexp.MustCompile(`[^\p{L}\p{N}-]+`)

// Classification is the classifier's answer: a primary intent plus any
// compatible secondary intents that also scored.
type Classification struct {
	Primary   Intent
	Secondary []Intent
}

// Union returns primary plus secondaries, primary first.
func (c Classification) Union() []Intent {
	return append([]Intent{c.Primary}, c.Secondary...)
}

// Classify scores the topic against the anchor table. An explicit hint from
// the caller short-circuits classification when it names a valid tag.
func Classify(topic, hint string) Classification {
	if Valid(hint) {
		return Classification{Primary: Intent(hint)}
	}

	lower := strings.ToLower(topic)
	scores := make(map[Intent]int)

	for key, a := range anchors {
		if strings.ContainsRune(key, ' ') || strings.ContainsRune(key, '-') {
			if strings.Contains(lower, key) {
				scores[a.intent] += a.weight
			}
		}
	}
	for _, tok := range tokenSplit.Split(lower, -1) {
		if a, ok := anchors[tok]; ok {
			scores[a.intent] += a.weight
		}
	}

	if len(scores) == 0 {
		return Classification{Primary: Generic}
	}

	// Deterministic order: score desc, then tag name for ties.
	type scored struct {
		intent Intent
		score  int
	}
	ranked := make([]scored, 0, len(scores))
	for i, s := range scores {
		ranked = append(ranked, scored{i, s})
	}
	sort.Slice(ranked, func(a, b int) bool {
		if ranked[a].score != ranked[b].score {
			return ranked[a].score > ranked[b].score
		}
		return ranked[a].intent < ranked[b].intent
	})

	out := Classification{Primary: ranked[0].intent}
	for _, cand := range ranked[1:] {
		if cand.score == 0 {
			break
		}
		if isCompatible(out.Primary, cand.intent) {
			out.Secondary = append(out.Secondary, cand.intent)
		}
		if len(out.Secondary) == 2 {
			break
		}
	}
	return out
}

func isCompatible(primary, other Intent) bool {
	for _, c := range compatible[primary] {
		if c == other {
			return true
		}
	}
	return false
}
