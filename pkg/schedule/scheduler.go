package schedule

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/veracity-labs/triangulate/pkg/evidence"
	"github.com/veracity-labs/triangulate/pkg/httpx"
	"github.com/veracity-labs/triangulate/pkg/provider"
)

// Quota is the daily-quota admission check consulted before metered
// providers run. A nil Quota admits everything.
type Quota interface {
	// Reserve records one call against the provider's daily quota and
	// reports whether it fit.
	Reserve(ctx context.Context, provider string, dailyCap int) (bool, error)
}

// Options tunes the scheduler.
type Options struct {
	MaxConcurrency int
	PerQueryLimit  int           // items requested per (provider, query) task
	RateCooldown   time.Duration // provider-level circuit cooldown
	Bucket         TokenBucket   // paid-provider admission; nil disables paid tasks
	Quota          Quota
}

// Scheduler fans (provider, query) tasks out over a bounded pool. One
// scheduler instance serves one run; counters and circuits reset with it.
type Scheduler struct {
	reg      *provider.Registry
	breakers *httpx.BreakerSet
	opts     Options
	counters *Counters
	circuit  *RateCircuit
	log      *slog.Logger
}

// New creates a scheduler for a run.
func New(reg *provider.Registry, breakers *httpx.BreakerSet, opts Options) *Scheduler {
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 32
	}
	if opts.PerQueryLimit <= 0 {
		opts.PerQueryLimit = 10
	}
	return &Scheduler{
		reg:      reg,
		breakers: breakers,
		opts:     opts,
		counters: NewCounters(),
		circuit:  NewRateCircuit(opts.RateCooldown),
		log:      slog.Default().With("component", "scheduler"),
	}
}

// Counters exposes the run's per-provider counters.
func (s *Scheduler) Counters() *Counters { return s.counters }

// Circuit exposes the provider-level rate circuit for snapshot reporting.
func (s *Scheduler) Circuit() *RateCircuit { return s.circuit }

// Fanout issues every (provider, query) pair and gathers delivered items.
// Delivery order is arbitrary. The context carries the run deadline; tasks
// in flight at expiry are cancelled and their partial results dropped.
// Providers appear in the result only through their delivered items; errors
// land in the counters, never in the return.
func (s *Scheduler) Fanout(ctx context.Context, providers []string, queries []string) []*evidence.Item {
	var (
		mu    sync.Mutex
		items []*evidence.Item
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.MaxConcurrency)

	for _, name := range providers {
		p, ok := s.reg.Get(name)
		if !ok {
			continue
		}
		for _, query := range queries {
			g.Go(func() error {
				got := s.runTask(gctx, p, name, query)
				if len(got) > 0 {
					mu.Lock()
					items = append(items, got...)
					mu.Unlock()
				}
				return nil // task errors are counted, not propagated
			})
		}
	}

	_ = g.Wait()
	return items
}

// runTask runs one (provider, query) pair through the admission checks and
// the adapter.
func (s *Scheduler) runTask(ctx context.Context, p provider.Provider, name, query string) []*evidence.Item {
	if ctx.Err() != nil {
		return nil
	}
	desc := p.Descriptor()

	if !s.circuit.Allow(name) {
		s.counters.Skip(name)
		return nil
	}
	for _, host := range desc.Hosts {
		if s.breakers.For(host).Open() {
			s.counters.Skip(name)
			s.counters.Error(name)
			return nil
		}
	}
	if desc.Paid {
		if s.opts.Bucket == nil {
			s.counters.Skip(name)
			return nil
		}
		ok, err := s.opts.Bucket.TryTake(ctx, name)
		if err != nil || !ok {
			// Empty bucket: defer the task, do not sleep.
			s.counters.Skip(name)
			return nil
		}
	}
	if desc.DailyQuota > 0 && s.opts.Quota != nil {
		ok, err := s.opts.Quota.Reserve(ctx, name, desc.DailyQuota)
		if err != nil {
			s.log.Warn("quota ledger unavailable", "provider", name, "error", err)
		} else if !ok {
			s.counters.Skip(name)
			return nil
		}
	}

	s.counters.Attempt(name)
	items, err := p.Search(ctx, query, s.opts.PerQueryLimit)
	if err != nil {
		var rl *provider.RateLimitError
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			// Budget expiry, not a provider fault.
		case errors.As(err, &rl):
			s.counters.RateLimited(name)
			s.circuit.Strike(name)
			s.log.Warn("provider rate limited", "provider", name, "status", rl.Status)
		default:
			s.counters.Error(name)
			s.log.Debug("provider error", "provider", name, "error", err)
		}
		return nil
	}

	s.counters.Items(name, len(items))
	return items
}
