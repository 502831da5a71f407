package httpx

import (
	"sync"
	"time"
)

// breakerState is the classic three-state circuit machine.
type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

// Breaker is a per-host consecutive-failure circuit. It trips open at
// threshold failures, rejects calls while open, and lets a single probe
// through after the cooldown. Any success closes it again.
type Breaker struct {
	mu           sync.Mutex
	host         string
	failureCount int
	threshold    int
	lastFailure  time.Time
	resetTimeout time.Duration
	state        breakerState
}

// NewBreaker creates a breaker for one host.
func NewBreaker(host string, threshold int, reset time.Duration) *Breaker {
	if threshold < 1 {
		threshold = 3
	}
	if reset <= 0 {
		reset = 900 * time.Second
	}
	return &Breaker{host: host, threshold: threshold, resetTimeout: reset}
}

// Allow reports whether a call may proceed. While open, it transitions to
// half-open once the cooldown has elapsed and admits one probe.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerClosed:
		return true
	case breakerOpen:
		if time.Since(b.lastFailure) >= b.resetTimeout {
			b.state = breakerHalfOpen
			return true
		}
		return false
	case breakerHalfOpen:
		return false
	}
	return true
}

// Success resets the failure count and closes the circuit.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failureCount = 0
	b.state = breakerClosed
}

// Failure records an upstream failure. Cancellations must not be reported
// here; the substrate only calls Failure on actual upstream errors.
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failureCount++
	b.lastFailure = time.Now()
	if b.state == breakerHalfOpen || b.failureCount >= b.threshold {
		b.state = breakerOpen
	}
}

// Open reports whether the circuit currently rejects calls.
func (b *Breaker) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == breakerOpen && time.Since(b.lastFailure) < b.resetTimeout
}

// BreakerSet is the per-host breaker registry shared across a run.
type BreakerSet struct {
	mu        sync.Mutex
	threshold int
	reset     time.Duration
	byHost    map[string]*Breaker
}

// NewBreakerSet creates a registry with the given defaults.
func NewBreakerSet(threshold int, reset time.Duration) *BreakerSet {
	return &BreakerSet{
		threshold: threshold,
		reset:     reset,
		byHost:    make(map[string]*Breaker),
	}
}

// For returns the breaker for a host, creating it on first use.
func (s *BreakerSet) For(host string) *Breaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.byHost[host]
	if !ok {
		b = NewBreaker(host, s.threshold, s.reset)
		s.byHost[host] = b
	}
	return b
}

// Tune overrides threshold and cooldown for one host before first use.
func (s *BreakerSet) Tune(host string, threshold int, reset time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byHost[host] = NewBreaker(host, threshold, reset)
}

// Snapshot returns hosts whose circuits are currently open.
func (s *BreakerSet) Snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var open []string
	for host, b := range s.byHost {
		if b.Open() {
			open = append(open, host)
		}
	}
	return open
}
