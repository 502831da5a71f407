// Package schedule fans (provider, query) tasks out over a bounded pool
// under a single wall-clock budget, with provider-level rate-limit circuits
// and token buckets for paid providers.
package schedule

import (
	"sort"
	"sync"
)

// Counter tracks one provider's activity within a run.
type Counter struct {
	Attempts    int64 `json:"attempts"`
	Errors      int64 `json:"errors"`
	Items       int64 `json:"items"`
	RateLimited int64 `json:"rate_limited"`
	Skipped     int64 `json:"skipped"` // circuit-open or quota-exhausted short-circuits
}

// Counters aggregates per-provider counters for a run.
type Counters struct {
	mu sync.Mutex
	m  map[string]*Counter
}

// NewCounters creates an empty counter set.
func NewCounters() *Counters {
	return &Counters{m: make(map[string]*Counter)}
}

func (c *Counters) get(provider string) *Counter {
	ctr, ok := c.m[provider]
	if !ok {
		ctr = &Counter{}
		c.m[provider] = ctr
	}
	return ctr
}

// Attempt records a task issued to a provider.
func (c *Counters) Attempt(provider string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.get(provider).Attempts++
}

// Error records a failed task.
func (c *Counters) Error(provider string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.get(provider).Errors++
}

// Items records delivered items.
func (c *Counters) Items(provider string, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.get(provider).Items += int64(n)
}

// RateLimited records a 429-class answer.
func (c *Counters) RateLimited(provider string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ctr := c.get(provider)
	ctr.RateLimited++
	ctr.Errors++
}

// Skip records a task short-circuited before any network call.
func (c *Counters) Skip(provider string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.get(provider).Skipped++
}

// Snapshot returns a copy of every counter keyed by provider.
func (c *Counters) Snapshot() map[string]Counter {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]Counter, len(c.m))
	for name, ctr := range c.m {
		out[name] = *ctr
	}
	return out
}

// ErrorRate returns total errors over total attempts across providers.
// Attempts of zero yields zero, not NaN.
func (c *Counters) ErrorRate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var attempts, errs int64
	for _, ctr := range c.m {
		attempts += ctr.Attempts
		errs += ctr.Errors
	}
	if attempts == 0 {
		return 0
	}
	return float64(errs) / float64(attempts)
}

// Providers returns the provider names seen this run, sorted.
func (c *Counters) Providers() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.m))
	for name := range c.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
