// Package pipeline wires the full evidence run: classify, fan out, fetch and
// normalize, dedupe, cluster, screen contradictions, enrich, gate, and write
// the bundle, all under one wall-clock budget.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/veracity-labs/triangulate/pkg/artifacts"
	"github.com/veracity-labs/triangulate/pkg/cluster"
	"github.com/veracity-labs/triangulate/pkg/config"
	"github.com/veracity-labs/triangulate/pkg/contradict"
	"github.com/veracity-labs/triangulate/pkg/dedupe"
	"github.com/veracity-labs/triangulate/pkg/enrich"
	"github.com/veracity-labs/triangulate/pkg/evidence"
	"github.com/veracity-labs/triangulate/pkg/gates"
	"github.com/veracity-labs/triangulate/pkg/httpx"
	"github.com/veracity-labs/triangulate/pkg/intent"
	"github.com/veracity-labs/triangulate/pkg/normalize"
	"github.com/veracity-labs/triangulate/pkg/observability"
	"github.com/veracity-labs/triangulate/pkg/provider"
	"github.com/veracity-labs/triangulate/pkg/quota"
	"github.com/veracity-labs/triangulate/pkg/schedule"
)

// Outcome is the run's terminal status, mapped to exit codes by the driver.
type Outcome int

const (
	OutcomeOK         Outcome = 0
	OutcomeDegraded   Outcome = 2
	OutcomeNoEvidence Outcome = 3
	OutcomeConfigErr  Outcome = 4
)

// RunRequest is the per-invocation input.
type RunRequest struct {
	Topic         string
	IntentHint    string
	Depth         string // rapid | standard | deep
	BudgetSeconds int
	Strict        bool
	OutputDir     string
	// Providers overrides router expansion when non-empty.
	Providers []string
}

// RunResult reports what a run produced.
type RunResult struct {
	Outcome     Outcome
	Intent      string
	Items       int
	Clusters    int
	Fingerprint string
	Metrics     *gates.Metrics
	StrictRetry bool
}

// Runner owns the long-lived machinery shared across runs.
type Runner struct {
	cfg      *config.Config
	client   *httpx.Client
	registry *provider.Registry
	fetcher  *normalize.Fetcher
	ledger   *quota.Ledger
	mirror   artifacts.Mirror
	obs      *observability.Provider
	log      *slog.Logger
}

// NewRunner builds the runner from configuration. Config problems surface
// here, before any run starts.
func NewRunner(ctx context.Context, cfg *config.Config) (*Runner, error) {
	client, err := httpx.New(httpx.Options{
		ContactEmail: cfg.ContactEmail,
		CacheDir:     filepath.Join(cfg.CacheDir, "http"),
		CacheTTL:     cfg.CacheTTL,
		HostInterval: cfg.HostMinInterval,
		BreakerFails: cfg.BreakerFails,
		BreakerReset: cfg.BreakerReset,
	})
	if err != nil {
		return nil, fmt.Errorf("http substrate: %w", err)
	}

	pdfs := httpx.NewPDFFetcher(client, cfg.MaxPDFBytes, cfg.PDFRetries)
	fetcher := normalize.NewFetcher(client, pdfs, cfg.UnpaywallEmail, cfg.PDFMaxPages)

	ledger, err := quota.Open(filepath.Join(cfg.CacheDir, "quota.db"))
	if err != nil {
		return nil, fmt.Errorf("quota ledger: %w", err)
	}

	obs, err := observability.New(ctx, observability.Config{
		ServiceVersion: "1.0",
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("observability: %w", err)
	}

	var mirror artifacts.Mirror
	switch {
	case cfg.S3Bucket != "":
		mirror, err = artifacts.NewS3Mirror(ctx, artifacts.S3Config{
			Bucket: cfg.S3Bucket,
			Region: cfg.S3Region,
		})
		if err != nil {
			return nil, fmt.Errorf("bundle mirror: %w", err)
		}
	case cfg.MirrorDir != "":
		mirror, err = artifacts.NewFileMirror(cfg.MirrorDir)
		if err != nil {
			return nil, fmt.Errorf("bundle mirror: %w", err)
		}
	}

	return &Runner{
		cfg:      cfg,
		client:   client,
		registry: provider.BuildRegistry(client, cfg),
		fetcher:  fetcher,
		ledger:   ledger,
		mirror:   mirror,
		obs:      obs,
		log:      slog.Default().With("component", "pipeline"),
	}, nil
}

// Close releases the runner's resources.
func (r *Runner) Close(ctx context.Context) {
	r.ledger.Close()
	r.obs.Shutdown(ctx)
}

// Registry exposes the provider registry, used by tests to install fakes.
func (r *Runner) Registry() *provider.Registry { return r.registry }

// Run executes one evidence run. The returned error is reserved for I/O
// failures writing the bundle; quality problems surface through the Outcome.
func (r *Runner) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	if strings.TrimSpace(req.Topic) == "" {
		return &RunResult{Outcome: OutcomeConfigErr}, fmt.Errorf("topic is empty")
	}
	if req.BudgetSeconds <= 0 {
		req.BudgetSeconds = 120
	}
	if req.Depth == "" {
		req.Depth = "standard"
	}

	writer, err := evidence.NewWriter(req.OutputDir)
	if err != nil {
		return &RunResult{Outcome: OutcomeConfigErr}, err
	}

	budget := time.Duration(req.BudgetSeconds) * time.Second
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()
	started := time.Now()

	// Classify and route.
	ctx, span := r.obs.StartStage(ctx, "run")
	defer span.End()

	class := intent.Classify(req.Topic, req.IntentHint)
	providers := req.Providers
	if len(providers) == 0 {
		providers = intent.Expand(class, r.registry, r.cfg)
	}
	queries := intent.Queries(req.Topic, class, req.Depth, time.Now().UTC().Year())
	r.log.Info("run started",
		"topic", req.Topic,
		"intent", class.Primary,
		"providers", len(providers),
		"queries", len(queries),
		"budget", budget,
	)

	// Fan out.
	var bucket schedule.TokenBucket
	if r.cfg.RedisAddr != "" {
		bucket = schedule.NewFleetBucket(r.cfg.RedisAddr, 3, 0.5)
	} else {
		bucket = schedule.NewLocalBucket(3, 0.5)
	}
	sched := schedule.New(r.registry, r.client.Breakers(), schedule.Options{
		MaxConcurrency: r.cfg.MaxConcurrency,
		Bucket:         bucket,
		Quota:          r.ledger,
	})

	fanStart := time.Now()
	raw := sched.Fanout(ctx, providers, queries)
	r.obs.RecordStage(ctx, "fanout", time.Since(fanStart))

	// Normalize: enforce canonical fields, extract quotes for claim-bearing
	// snippets, assign initial credibility from domain priors.
	items := r.normalizeItems(ctx, raw)

	// Dedupe.
	dd := dedupe.New().Run(items)
	items = dd.Kept

	// Deepen: pull full text for the strongest primary candidates so claim
	// extraction and quoting work from article bodies, not search snippets.
	deepStart := time.Now()
	r.deepen(ctx, items)
	r.obs.RecordStage(ctx, "deepen", time.Since(deepStart))

	if len(items) == 0 {
		r.log.Warn("no evidence collected", "error_rate", sched.Counters().ErrorRate())
		metrics := gates.New(string(class.Primary), r.cfg.GatesProfile).
			Evaluate(nil, nil, sched.Counters().ErrorRate(), time.Now().UTC())
		_ = writer.WriteMetrics(metrics)
		_ = writer.WriteProviders(r.providerSnapshot(sched))
		return &RunResult{Outcome: OutcomeNoEvidence, Intent: string(class.Primary), Metrics: metrics}, nil
	}

	// Cluster, screen, enrich, gate. Strict mode gets one retry pass with a
	// loosened paraphrase threshold before conceding degradation.
	strict := req.Strict || r.cfg.StrictMode
	result := r.analyze(ctx, items, class, sched, analyzeOptions{
		paraThreshold: r.cfg.ParaphraseThreshold,
		strict:        strict,
	})

	if strict && !result.metrics.Pass() {
		r.log.Info("strict gates failed, retrying with loosened threshold")
		result = r.analyze(ctx, items, class, sched, analyzeOptions{
			paraThreshold: 0.34,
			strict:        true,
		})
		result.strictRetry = true
	}
	if !result.metrics.Pass() {
		result.degraded = true
	}

	// A failed run can still salvage a bundle under the lenient table; the
	// outcome stays degraded either way, but the draft survives.
	writeCards := true
	if result.degraded {
		if r.cfg.LenientRecoveryOnFail && r.cfg.GatesProfile != "lenient" {
			lenient := gates.New(result.metrics.ThresholdsUsed.Intent, "lenient").
				Evaluate(result.items, result.clusters, sched.Counters().ErrorRate(), time.Now().UTC())
			if lenient.Pass() {
				result.metrics = lenient
			}
		}
		if !result.metrics.Pass() && !r.cfg.WriteDraftOnFail {
			writeCards = false
		}
	}

	// Write the bundle.
	if writeCards {
		if err := writer.WriteCards(result.items); err != nil {
			return nil, err
		}
	}
	if err := writer.WriteMetrics(result.metrics); err != nil {
		return nil, err
	}
	if err := writer.WriteClusters(result.clusters, result.items); err != nil {
		return nil, err
	}
	if err := writer.WriteProviders(r.providerSnapshot(sched)); err != nil {
		return nil, err
	}

	fingerprint, err := evidence.Fingerprint(result.items)
	if err != nil {
		return nil, err
	}
	r.mirrorBundle(fingerprint, req.OutputDir)

	outcome := OutcomeOK
	if result.degraded {
		outcome = OutcomeDegraded
	}
	kept := 0
	for _, it := range result.items {
		if it.Failure == evidence.FailKept {
			kept++
		}
	}
	r.obs.RecordStage(ctx, "run", time.Since(started))
	r.log.Info("run finished",
		"outcome", int(outcome),
		"items", kept,
		"clusters", len(result.clusters),
		"elapsed", time.Since(started).Round(time.Millisecond),
	)

	return &RunResult{
		Outcome:     outcome,
		Intent:      string(class.Primary),
		Items:       kept,
		Clusters:    len(result.clusters),
		Fingerprint: fingerprint,
		Metrics:     result.metrics,
		StrictRetry: result.strictRetry,
	}, nil
}

type analyzeOptions struct {
	paraThreshold float64
	strict        bool
}

type analyzeResult struct {
	items       []*evidence.Item
	clusters    []*evidence.Cluster
	metrics     *gates.Metrics
	degraded    bool
	strictRetry bool
}

// analyze runs clustering through gate evaluation over a fixed item set.
// A retry pass reuses the same items so cached fetches make it cheap;
// contradiction marks from a previous screen are cleared first so each
// screen judges the current clustering, not a stale one.
func (r *Runner) analyze(ctx context.Context, items []*evidence.Item, class intent.Classification, sched *schedule.Scheduler, opts analyzeOptions) *analyzeResult {
	now := time.Now().UTC()

	clusterer := cluster.New(nil)
	clusterer.FixedThreshold = opts.paraThreshold
	resetContradictionMarks(items)
	clusters := clusterer.Run(items)

	screen := contradict.New(contradict.Options{
		TolerancePct: r.cfg.ContradictTolPct,
		Strict:       opts.strict,
	}).Run(clusters, items)
	clusters = screen.Kept

	// Primary gap fill goes through the paid-search tier, which is the set
	// that honors site: restrictions.
	searchers := r.siteCapableProviders()
	if len(searchers) > 0 && ctx.Err() == nil {
		enricher := enrich.New(sched, searchers, string(class.Primary))
		filled := enricher.FillGaps(ctx, clusters, items)
		if len(filled) > 0 {
			// Gap-fill results can repeat URLs already in the run, so the
			// merged set goes back through the dedupe passes.
			merged := append(items, r.normalizeItems(ctx, filled)...)
			items = dedupe.New().Run(merged).Kept
			resetContradictionMarks(items)
			clusters = clusterer.Run(items)
			screen = contradict.New(contradict.Options{
				TolerancePct: r.cfg.ContradictTolPct,
				Strict:       opts.strict,
			}).Run(clusters, items)
			clusters = screen.Kept
		}
	}

	enrich.PromoteOrgs(items)
	enrich.Rescore(items, clusters, now)

	metrics := gates.New(string(class.Primary), r.cfg.GatesProfile).
		Evaluate(items, clusters, sched.Counters().ErrorRate(), now)

	return &analyzeResult{items: items, clusters: clusters, metrics: metrics}
}

// resetContradictionMarks returns contradiction-dropped items to kept status
// ahead of a fresh screen. Other failure modes are permanent.
func resetContradictionMarks(items []*evidence.Item) {
	for _, it := range items {
		if it.Failure == evidence.FailContradictedDrop {
			it.Failure = evidence.FailKept
		}
	}
}

// normalizeItems enforces the canonical-domain contract, seeds credibility
// from domain priors, and extracts quote spans from snippets.
func (r *Runner) normalizeItems(_ context.Context, raw []*evidence.Item) []*evidence.Item {
	out := raw[:0]
	for _, it := range raw {
		it.URL = normalize.CanonicalURL(it.URL)
		it.SourceDomain = normalize.CanonicalDomain(it.URL)
		if !it.Valid() {
			it.Failure = evidence.FailParseEmpty
			continue
		}
		it.CredibilityScore = evidence.DomainPrior(it.SourceDomain)
		if it.QuoteSpan == "" {
			if q := normalize.ExtractQuote(it.Snippet); q != "" && normalize.HasNumericToken(q) {
				it.QuoteSpan = q
			}
		}
		out = append(out, it)
	}
	return out
}

// siteCapableProviders returns credentialed paid-search providers in
// registry order.
func (r *Runner) siteCapableProviders() []string {
	var out []string
	for _, name := range []string{"tavily", "brave", "serper", "serpapi"} {
		if p, ok := r.registry.Get(name); ok && provider.Credentialed(p, r.cfg) {
			out = append(out, name)
		}
	}
	return out
}

// ProviderSnapshot is the providers.json document.
type ProviderSnapshot struct {
	Providers    map[string]schedule.Counter `json:"providers"`
	OpenCircuits []string                    `json:"open_circuits,omitempty"`
	OpenHosts    []string                    `json:"open_hosts,omitempty"`
	ErrorRate    float64                     `json:"error_rate"`
}

func (r *Runner) providerSnapshot(sched *schedule.Scheduler) *ProviderSnapshot {
	return &ProviderSnapshot{
		Providers:    sched.Counters().Snapshot(),
		OpenCircuits: sched.Circuit().Open(),
		OpenHosts:    r.client.Breakers().Snapshot(),
		ErrorRate:    sched.Counters().ErrorRate(),
	}
}

// mirrorBundle pushes the written bundle to the configured mirror. Mirror
// failures are logged, never fatal: the local bundle is the deliverable.
func (r *Runner) mirrorBundle(fingerprint, dir string) {
	if r.mirror == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, name := range []string{"evidence_cards.jsonl", "metrics.json", "clusters.json", "providers.json"} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		if err := r.mirror.Put(ctx, fingerprint, name, data); err != nil {
			r.log.Warn("bundle mirror failed", "file", name, "error", err)
			return
		}
	}
}

// deepenBudget caps full-content fetches per run; everything else keeps its
// search snippet.
const deepenBudget = 12

// deepen upgrades snippets to extracted article text for items most likely
// to anchor clusters: primary-domain or DOI-bearing ones with thin snippets.
func (r *Runner) deepen(ctx context.Context, items []*evidence.Item) {
	fetched := 0
	for _, it := range items {
		if fetched >= deepenBudget || ctx.Err() != nil {
			return
		}
		if !evidence.IsPrimaryDomain(it.SourceDomain) && it.DOI == "" {
			continue
		}
		if len(it.Snippet) >= 400 {
			continue
		}
		fetched++
		res := r.fetcher.Fetch(ctx, it.URL)
		if res.Outcome != httpx.Fetched || res.Doc == nil {
			if res.Outcome == httpx.Gated {
				it.Reachability = 0.3
			}
			continue
		}
		doc := res.Doc
		it.Reachability = 1
		if len(doc.Text) > len(it.Snippet) {
			it.Snippet = firstChars(doc.Text, 1200)
		}
		if it.Date == "" {
			it.Date = doc.Date
		}
		if it.Author == "" {
			it.Author = doc.Author
		}
		if it.DOI == "" {
			it.DOI = doc.DOI
		}
		if q := normalize.ExtractQuote(doc.Text); q != "" && normalize.HasNumericToken(q) {
			it.QuoteSpan = q
		}
		it.SetMeta("provenance", res.Provenance)
	}
}

// firstChars truncates on a word boundary near limit.
func firstChars(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := strings.LastIndexByte(s[:limit], ' ')
	if cut <= 0 {
		cut = limit
	}
	return s[:cut]
}

