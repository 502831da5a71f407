// Package gates computes run-quality metrics over the final item and cluster
// sets and evaluates them against intent-scoped thresholds, driving the
// strict-retry and degraded-outcome machinery.
package gates

import (
	"log/slog"
	"math"
	"time"

	"github.com/veracity-labs/triangulate/pkg/evidence"
)

// Metrics is the full metric set written to metrics.json. Pass flags are
// relative to the thresholds actually used.
type Metrics struct {
	PrimaryShare         float64 `json:"primary_share"`
	TriangulationRate    float64 `json:"triangulation_rate"`
	DomainConcentration  float64 `json:"domain_concentration"`
	UniqueDomains        int     `json:"unique_domains"`
	CredibleCards        int     `json:"credible_cards"`
	ProviderErrorRate    float64 `json:"provider_error_rate"`
	ProviderEntropy      float64 `json:"provider_entropy"`
	RecentPrimaryCount   int     `json:"recent_primary_count"`
	TriangulatedClusters int     `json:"triangulated_clusters"`

	PassPrimary       bool `json:"pass_primary"`
	PassTriangulation bool `json:"pass_triangulation"`
	PassConcentration bool `json:"pass_concentration"`
	PassExtras        bool `json:"pass_extras"`

	ThresholdsUsed Thresholds `json:"thresholds_used"`
}

// Pass reports whether every gate held.
func (m *Metrics) Pass() bool {
	return m.PassPrimary && m.PassTriangulation && m.PassConcentration && m.PassExtras
}

// Thresholds is one intent's gate table.
type Thresholds struct {
	Intent              string  `json:"intent"`
	Profile             string  `json:"profile,omitempty"`
	MinPrimaryShare     float64 `json:"min_primary_share"`
	MinTriangulation    float64 `json:"min_triangulation"`
	MaxConcentration    float64 `json:"max_concentration"`
	MinRecentPrimary    int     `json:"min_recent_primary,omitempty"`
	MinTriangulatedClus int     `json:"min_triangulated_clusters,omitempty"`
}

// tables maps intents to their gate thresholds. Intents without a row use
// the generic table.
var tables = map[string]Thresholds{
	"stats": {
		MinPrimaryShare: 0.50, MinTriangulation: 0.40, MaxConcentration: 0.25,
		MinRecentPrimary: 3, MinTriangulatedClus: 1,
	},
	"academic": {
		MinPrimaryShare: 0.50, MinTriangulation: 0.40, MaxConcentration: 0.25,
	},
	"medical": {
		MinPrimaryShare: 0.50, MinTriangulation: 0.40, MaxConcentration: 0.25,
	},
	"travel": {
		MinPrimaryShare: 0.30, MinTriangulation: 0.25, MaxConcentration: 0.35,
	},
	"local": {
		MinPrimaryShare: 0.30, MinTriangulation: 0.25, MaxConcentration: 0.35,
	},
	"generic": {
		MinPrimaryShare: 0.50, MinTriangulation: 0.45, MaxConcentration: 0.25,
	},
}

// ThresholdsFor resolves the gate table for an intent, applying the named
// profile. Profile "lenient" relaxes every bound by a third; "strict"
// tightens the two floors by ten points.
func ThresholdsFor(intent, profile string) Thresholds {
	t, ok := tables[intent]
	if !ok {
		t = tables["generic"]
	}
	t.Intent = intent
	switch profile {
	case "lenient":
		t.Profile = profile
		t.MinPrimaryShare *= 2.0 / 3.0
		t.MinTriangulation *= 2.0 / 3.0
		t.MaxConcentration = math.Min(1, t.MaxConcentration*1.5)
		t.MinRecentPrimary = 0
		t.MinTriangulatedClus = 0
	case "strict":
		t.Profile = profile
		t.MinPrimaryShare = math.Min(1, t.MinPrimaryShare+0.10)
		t.MinTriangulation = math.Min(1, t.MinTriangulation+0.10)
	}
	return t
}

// Evaluator computes and judges metrics.
type Evaluator struct {
	thresholds Thresholds
	log        *slog.Logger
}

// New creates an evaluator for one intent and profile.
func New(intent, profile string) *Evaluator {
	return &Evaluator{
		thresholds: ThresholdsFor(intent, profile),
		log:        slog.Default().With("component", "gates"),
	}
}

// Evaluate computes the metric set over the run's item slice and clusters.
// Cluster indices address that full slice; items dropped by earlier stages
// are skipped, so the counts and denominators cover kept items only.
// providerErrorRate comes from the scheduler's counters.
func (e *Evaluator) Evaluate(items []*evidence.Item, clusters []*evidence.Cluster, providerErrorRate float64, now time.Time) *Metrics {
	m := &Metrics{
		ProviderErrorRate: providerErrorRate,
		ThresholdsUsed:    e.thresholds,
	}

	inMulti := make(map[int]bool)
	for _, cl := range clusters {
		if len(cl.Domains) >= 2 {
			m.TriangulatedClusters++
			for _, idx := range cl.Indices {
				inMulti[idx] = true
			}
		}
	}

	domainCounts := make(map[string]int)
	providerCounts := make(map[string]int)
	kept, primary, triangulated := 0, 0, 0
	for i, it := range items {
		if it.Failure != evidence.FailKept {
			continue
		}
		kept++
		domainCounts[it.SourceDomain]++
		providerCounts[it.Provider]++
		if it.IsPrimarySource {
			primary++
			if recentWithin(it.Date, now, 365) {
				m.RecentPrimaryCount++
			}
		}
		if inMulti[i] {
			triangulated++
		}
		if it.CredibilityScore >= 0.6 {
			m.CredibleCards++
		}
	}
	if kept == 0 {
		m.TriangulatedClusters = 0
		return m
	}

	n := float64(kept)
	m.PrimaryShare = float64(primary) / n
	m.TriangulationRate = float64(triangulated) / n
	m.UniqueDomains = len(domainCounts)

	maxDomain := 0
	for _, c := range domainCounts {
		if c > maxDomain {
			maxDomain = c
		}
	}
	m.DomainConcentration = float64(maxDomain) / n
	m.ProviderEntropy = entropy(providerCounts, kept)

	t := e.thresholds
	m.PassPrimary = m.PrimaryShare >= t.MinPrimaryShare
	m.PassTriangulation = m.TriangulationRate >= t.MinTriangulation
	m.PassConcentration = m.DomainConcentration <= t.MaxConcentration
	m.PassExtras = m.RecentPrimaryCount >= t.MinRecentPrimary &&
		m.TriangulatedClusters >= t.MinTriangulatedClus

	e.log.Info("gates evaluated",
		"intent", t.Intent,
		"primary_share", round3(m.PrimaryShare),
		"triangulation_rate", round3(m.TriangulationRate),
		"concentration", round3(m.DomainConcentration),
		"pass", m.Pass(),
	)
	return m
}

// entropy is the Shannon entropy of the provider distribution normalized by
// log of the provider count; a single provider scores zero.
func entropy(counts map[string]int, total int) float64 {
	if len(counts) <= 1 || total == 0 {
		return 0
	}
	var h float64
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / float64(total)
		h -= p * math.Log(p)
	}
	return h / math.Log(float64(len(counts)))
}

func recentWithin(isoDate string, now time.Time, days int) bool {
	if isoDate == "" {
		return false
	}
	t, err := time.Parse("2006-01-02", isoDate)
	if err != nil {
		return false
	}
	return now.Sub(t) <= time.Duration(days)*24*time.Hour
}

func round3(v float64) float64 { return math.Round(v*1000) / 1000 }
