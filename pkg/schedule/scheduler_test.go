package schedule

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/veracity-labs/triangulate/pkg/evidence"
	"github.com/veracity-labs/triangulate/pkg/httpx"
	"github.com/veracity-labs/triangulate/pkg/provider"
)

// stubProvider scripts Search responses for scheduler tests.
type stubProvider struct {
	desc  provider.Descriptor
	items []*evidence.Item
	err   error
	calls atomic.Int64
}

func (s *stubProvider) Descriptor() provider.Descriptor { return s.desc }

func (s *stubProvider) Search(ctx context.Context, query string, limit int) ([]*evidence.Item, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return s.items, nil
}

func newStub(name string, items int) *stubProvider {
	p := &stubProvider{desc: provider.Descriptor{Name: name}}
	for i := 0; i < items; i++ {
		p.items = append(p.items, evidence.NewItem(
			"https://example.org/"+name, "t", "s", name, "example.org"))
	}
	return p
}

func newScheduler(t *testing.T, opts Options, providers ...provider.Provider) *Scheduler {
	t.Helper()
	reg := provider.NewRegistry()
	for _, p := range providers {
		reg.Register(p)
	}
	return New(reg, httpx.NewBreakerSet(3, time.Minute), opts)
}

func TestFanoutCollectsItems(t *testing.T) {
	a := newStub("a", 2)
	b := newStub("b", 3)
	s := newScheduler(t, Options{}, a, b)

	items := s.Fanout(context.Background(), []string{"a", "b"}, []string{"q1", "q2"})

	// 2 queries x (2 + 3) items.
	require.Len(t, items, 10)
	require.Equal(t, int64(2), a.calls.Load())
	require.Equal(t, int64(2), b.calls.Load())

	snap := s.Counters().Snapshot()
	require.Equal(t, int64(2), snap["a"].Attempts)
	require.Equal(t, int64(4), snap["a"].Items)
	require.Equal(t, int64(6), snap["b"].Items)
}

func TestFanoutIgnoresUnknownProviders(t *testing.T) {
	s := newScheduler(t, Options{}, newStub("a", 1))
	items := s.Fanout(context.Background(), []string{"a", "ghost"}, []string{"q"})
	require.Len(t, items, 1)
}

func TestFanoutCountsErrorsWithoutFailing(t *testing.T) {
	bad := newStub("bad", 0)
	bad.err = errors.New("upstream 500")
	good := newStub("good", 1)
	s := newScheduler(t, Options{}, bad, good)

	items := s.Fanout(context.Background(), []string{"bad", "good"}, []string{"q"})

	require.Len(t, items, 1)
	snap := s.Counters().Snapshot()
	require.Equal(t, int64(1), snap["bad"].Errors)
	require.Equal(t, int64(0), snap["good"].Errors)
}

func TestSecondRateLimitOpensCircuit(t *testing.T) {
	rl := newStub("limited", 0)
	rl.err = &provider.RateLimitError{Status: 432}
	s := newScheduler(t, Options{}, rl)

	// Two strikes across two queries open the provider circuit; the third
	// task is skipped without a call.
	s.Fanout(context.Background(), []string{"limited"}, []string{"q1"})
	s.Fanout(context.Background(), []string{"limited"}, []string{"q2"})
	require.Equal(t, int64(2), rl.calls.Load())

	s.Fanout(context.Background(), []string{"limited"}, []string{"q3"})
	require.Equal(t, int64(2), rl.calls.Load())

	snap := s.Counters().Snapshot()
	require.Equal(t, int64(2), snap["limited"].RateLimited)
	require.Equal(t, int64(1), snap["limited"].Skipped)
	require.Contains(t, s.Circuit().Open(), "limited")
}

func TestPaidProviderSkippedWithoutBucket(t *testing.T) {
	paid := newStub("paid", 1)
	paid.desc.Paid = true
	s := newScheduler(t, Options{}, paid)

	items := s.Fanout(context.Background(), []string{"paid"}, []string{"q"})

	require.Empty(t, items)
	require.Equal(t, int64(0), paid.calls.Load())
	require.Equal(t, int64(1), s.Counters().Snapshot()["paid"].Skipped)
}

func TestPaidProviderDeferredOnEmptyBucket(t *testing.T) {
	paid := newStub("paid", 1)
	paid.desc.Paid = true
	// Capacity 2, no refill to speak of: the third task finds no token.
	s := newScheduler(t, Options{Bucket: NewLocalBucket(2, 0.0001)}, paid)

	items := s.Fanout(context.Background(), []string{"paid"}, []string{"q1", "q2", "q3"})

	require.Len(t, items, 2)
	require.Equal(t, int64(2), paid.calls.Load())
	require.Equal(t, int64(1), s.Counters().Snapshot()["paid"].Skipped)
}

type capQuota struct{ used int }

func (q *capQuota) Reserve(_ context.Context, _ string, dailyCap int) (bool, error) {
	if q.used >= dailyCap {
		return false, nil
	}
	q.used++
	return true, nil
}

func TestDailyQuotaEnforced(t *testing.T) {
	metered := newStub("metered", 1)
	metered.desc.DailyQuota = 2
	s := newScheduler(t, Options{MaxConcurrency: 1, Quota: &capQuota{}}, metered)

	items := s.Fanout(context.Background(), []string{"metered"}, []string{"q1", "q2", "q3"})

	require.Len(t, items, 2)
	require.Equal(t, int64(1), s.Counters().Snapshot()["metered"].Skipped)
}

func TestCancelledContextStopsTasks(t *testing.T) {
	p := newStub("a", 1)
	s := newScheduler(t, Options{}, p)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	items := s.Fanout(ctx, []string{"a"}, []string{"q1", "q2"})

	require.Empty(t, items)
	require.Equal(t, int64(0), p.calls.Load())
}

func TestDeadlineErrorNotCounted(t *testing.T) {
	p := newStub("slow", 0)
	p.err = context.DeadlineExceeded
	s := newScheduler(t, Options{}, p)

	s.Fanout(context.Background(), []string{"slow"}, []string{"q"})

	snap := s.Counters().Snapshot()
	require.Equal(t, int64(0), snap["slow"].Errors)
	require.Equal(t, int64(0), snap["slow"].RateLimited)
}

func TestErrorRate(t *testing.T) {
	c := NewCounters()
	require.Zero(t, c.ErrorRate())

	c.Attempt("a")
	c.Attempt("a")
	c.Error("a")
	require.InDelta(t, 0.5, c.ErrorRate(), 1e-9)
}
