package httpx

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Throttle enforces a minimum interval between requests to the same host.
// Each host gets its own rate.Limiter; waiting respects context cancellation
// so a run deadline never strands a goroutine in a throttle sleep.
type Throttle struct {
	mu          sync.Mutex
	defaultGap  time.Duration
	overrides   map[string]time.Duration
	byHost      map[string]*rate.Limiter
}

// NewThrottle creates a throttle with the given default inter-request gap.
func NewThrottle(defaultGap time.Duration) *Throttle {
	if defaultGap <= 0 {
		defaultGap = 800 * time.Millisecond
	}
	return &Throttle{
		defaultGap: defaultGap,
		overrides:  make(map[string]time.Duration),
		byHost:     make(map[string]*rate.Limiter),
	}
}

// SetInterval overrides the minimum interval for one host. Provider adapters
// call this for upstreams with hard published limits (arxiv, overpass).
func (t *Throttle) SetInterval(host string, gap time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.overrides[host] = gap
	delete(t.byHost, host) // rebuilt with the new interval on next use
}

func (t *Throttle) limiter(host string) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()
	if lim, ok := t.byHost[host]; ok {
		return lim
	}
	gap := t.defaultGap
	if o, ok := t.overrides[host]; ok && o > 0 {
		gap = o
	}
	lim := rate.NewLimiter(rate.Every(gap), 1)
	t.byHost[host] = lim
	return lim
}

// Wait blocks until the host's next slot, or returns the context error if the
// deadline fires first.
func (t *Throttle) Wait(ctx context.Context, host string) error {
	return t.limiter(host).Wait(ctx)
}
