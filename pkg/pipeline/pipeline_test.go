package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/veracity-labs/triangulate/pkg/config"
	"github.com/veracity-labs/triangulate/pkg/evidence"
	"github.com/veracity-labs/triangulate/pkg/intent"
	"github.com/veracity-labs/triangulate/pkg/provider"
	"github.com/veracity-labs/triangulate/pkg/schedule"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		ContactEmail:     "ops@example.org",
		UnpaywallEmail:   "ops@example.org",
		CacheDir:         t.TempDir(),
		CacheTTL:         time.Hour,
		BreakerFails:     3,
		BreakerReset:     time.Minute,
		MaxPDFBytes:      1 << 20,
		PDFMaxPages:      2,
		HostMinInterval:  time.Millisecond,
		MaxConcurrency:   4,
		ContradictTolPct: 35,
		WriteDraftOnFail: true,
		APIKeys:          map[string]string{},
	}
}

func newTestRunner(t *testing.T) *Runner {
	t.Helper()
	r, err := NewRunner(context.Background(), testConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() { r.Close(context.Background()) })
	return r
}

// feedProvider returns a fixed corpus regardless of query.
type feedProvider struct {
	name  string
	items func() []*evidence.Item
}

func (p *feedProvider) Descriptor() provider.Descriptor {
	return provider.Descriptor{Name: p.name}
}

func (p *feedProvider) Search(context.Context, string, int) ([]*evidence.Item, error) {
	return p.items(), nil
}

func pad(seed string) string {
	out := seed
	for len(out) < 420 {
		out += " " + seed
	}
	return out
}

// corpus builds four agreeing primary-source items across four domains. The
// leading sentence carries the shared figures so quote extraction lands on it.
func corpus() []*evidence.Item {
	recent := time.Now().UTC().AddDate(0, 0, -20).Format("2006-01-02")
	specs := []struct{ url, title, lead, filler string }{
		{"https://www.oecd.org/tourism/report-2024", "OECD tourism outlook",
			"Tourism output grew 37.4% in 2024 across member economies.",
			"The outlook chapter surveys employment effects and capacity constraints in detail"},
		{"https://www.imf.org/en/tourism-note", "IMF staff note on tourism",
			"Staff estimate the sector expanded 37.4% during 2024 relative to baseline.",
			"Annex tables decompose the expansion by region and by traveler origin"},
		{"https://www.worldbank.org/tourism-update", "World Bank sector update",
			"Receipts climbed 37.4% over 2024 according to the latest balance of payments data.",
			"The update discusses methodology revisions and coverage of informal operators"},
		{"https://ec.europa.eu/tourism-dashboard", "Commission tourism dashboard",
			"Arrivals advanced 37.4% through 2024 on the harmonized indicator.",
			"Dashboard notes describe seasonal adjustment and the member state breakdown"},
	}
	items := make([]*evidence.Item, 0, len(specs))
	for _, s := range specs {
		it := evidence.NewItem(s.url, s.title, s.lead+" "+pad(s.filler)+".", "feed", "")
		it.Date = recent
		items = append(items, it)
	}
	return items
}

// blogPair builds two agreeing non-primary items, enough to cluster but not
// to satisfy any primary-share gate.
func blogPair() []*evidence.Item {
	recent := time.Now().UTC().AddDate(0, 0, -20).Format("2006-01-02")
	specs := []struct{ url, title, lead, filler string }{
		{"https://blog-a.example/growth", "Sector growth recap",
			"Analysts say the sector grew 37.4% in 2024 across the major markets.",
			"The recap rounds up quarterly commentary and operator interviews at length"},
		{"https://blog-b.example/yearly", "Yearly numbers roundup",
			"Independent trackers put the expansion at 37.4% for 2024 overall.",
			"The roundup compares tracker methodologies and their coverage gaps in depth"},
	}
	items := make([]*evidence.Item, 0, len(specs))
	for _, s := range specs {
		it := evidence.NewItem(s.url, s.title, s.lead+" "+pad(s.filler)+".", "feed", "")
		it.Date = recent
		items = append(items, it)
	}
	return items
}

func TestRunEmptyTopicIsConfigError(t *testing.T) {
	r := newTestRunner(t)
	res, err := r.Run(context.Background(), RunRequest{Topic: "  ", OutputDir: t.TempDir()})
	require.Error(t, err)
	require.Equal(t, OutcomeConfigErr, res.Outcome)
}

func TestRunNoEvidence(t *testing.T) {
	r := newTestRunner(t)
	r.Registry().Register(&feedProvider{name: "empty", items: func() []*evidence.Item { return nil }})

	out := t.TempDir()
	res, err := r.Run(context.Background(), RunRequest{
		Topic:         "tourism statistics for atlantis",
		Providers:     []string{"empty"},
		BudgetSeconds: 30,
		OutputDir:     out,
	})
	require.NoError(t, err)
	require.Equal(t, OutcomeNoEvidence, res.Outcome)

	// The diagnostic half of the bundle is still written.
	_, err = os.Stat(filepath.Join(out, "metrics.json"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(out, "providers.json"))
	require.NoError(t, err)
}

func TestRunProducesBundle(t *testing.T) {
	r := newTestRunner(t)
	r.Registry().Register(&feedProvider{name: "feed", items: corpus})

	out := t.TempDir()
	res, err := r.Run(context.Background(), RunRequest{
		Topic:         "tourism growth statistics 2024",
		Providers:     []string{"feed"},
		BudgetSeconds: 30,
		OutputDir:     out,
	})
	require.NoError(t, err)
	require.Equal(t, OutcomeOK, res.Outcome)
	require.Equal(t, 4, res.Items)
	require.NotEmpty(t, res.Fingerprint)
	require.True(t, res.Metrics.Pass())

	for _, name := range []string{"evidence_cards.jsonl", "metrics.json", "clusters.json", "providers.json"} {
		_, err := os.Stat(filepath.Join(out, name))
		require.NoError(t, err, name)
	}
}

func TestRunDedupesGapFillResults(t *testing.T) {
	r := newTestRunner(t)
	r.Registry().Register(&feedProvider{name: "feed", items: blogPair})

	// Every site-scoped gap query returns the same OECD report, so the fill
	// pass hands back repeats of one URL. Only one card may survive.
	recent := time.Now().UTC().AddDate(0, 0, -20).Format("2006-01-02")
	r.Registry().Register(&feedProvider{name: "tavily", items: func() []*evidence.Item {
		it := evidence.NewItem("https://www.oecd.org/tourism/report-2024",
			"OECD tourism outlook",
			"Tourism output grew 37.4% in 2024 across member economies. "+pad("The outlook chapter surveys employment effects and capacity constraints")+".",
			"tavily", "oecd.org")
		it.Date = recent
		return []*evidence.Item{it}
	}})

	out := t.TempDir()
	res, err := r.Run(context.Background(), RunRequest{
		Topic:         "tourism growth statistics 2024",
		Providers:     []string{"feed"},
		BudgetSeconds: 30,
		OutputDir:     out,
	})
	require.NoError(t, err)
	require.Equal(t, 3, res.Items)

	data, err := os.ReadFile(filepath.Join(out, "evidence_cards.jsonl"))
	require.NoError(t, err)
	oecdCards := 0
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if strings.Contains(line, "oecd.org") {
			oecdCards++
		}
	}
	require.Equal(t, 1, oecdCards)
}

func TestRunStrictModeConfigTriggersRetry(t *testing.T) {
	cfg := testConfig(t)
	cfg.StrictMode = true
	r, err := NewRunner(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close(context.Background()) })
	r.Registry().Register(&feedProvider{name: "feed", items: blogPair})

	res, err := r.Run(context.Background(), RunRequest{
		Topic:         "tourism growth statistics 2024",
		Providers:     []string{"feed"},
		BudgetSeconds: 30,
		OutputDir:     t.TempDir(),
	})
	require.NoError(t, err)
	require.True(t, res.StrictRetry)
	require.Equal(t, OutcomeDegraded, res.Outcome)
}

func TestAnalyzeClearsStaleContradictionMarks(t *testing.T) {
	r := newTestRunner(t)
	items := r.normalizeItems(context.Background(), corpus())
	items[0].Failure = evidence.FailContradictedDrop

	sched := schedule.New(r.Registry(), r.client.Breakers(), schedule.Options{MaxConcurrency: 1})
	class := intent.Classify("tourism growth statistics 2024", "")
	res := r.analyze(context.Background(), items, class, sched, analyzeOptions{
		paraThreshold: 0.32,
	})

	require.Equal(t, evidence.FailKept, items[0].Failure)
	kept := 0
	for _, it := range res.items {
		if it.Failure == evidence.FailKept {
			kept++
		}
	}
	require.Equal(t, 4, kept)
	require.True(t, res.metrics.Pass())
	require.InDelta(t, 1.0, res.metrics.PrimaryShare, 1e-9)
}

func TestRunIsIdempotentAcrossRepeats(t *testing.T) {
	r := newTestRunner(t)
	r.Registry().Register(&feedProvider{name: "feed", items: corpus})

	req := RunRequest{
		Topic:         "tourism growth statistics 2024",
		Providers:     []string{"feed"},
		BudgetSeconds: 30,
		OutputDir:     t.TempDir(),
	}
	first, err := r.Run(context.Background(), req)
	require.NoError(t, err)

	req.OutputDir = t.TempDir()
	second, err := r.Run(context.Background(), req)
	require.NoError(t, err)

	require.Equal(t, first.Fingerprint, second.Fingerprint)
	require.Equal(t, first.Items, second.Items)
}
