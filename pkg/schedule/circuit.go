package schedule

import (
	"sync"
	"time"
)

// DefaultRateCooldown is how long a provider-level circuit stays open after
// repeated rate limiting.
const DefaultRateCooldown = 600 * time.Second

// RateCircuit opens a per-provider circuit when a provider rate-limits twice
// within a run. Distinct from the host breaker in the HTTP substrate: this
// one reacts specifically to 429-class answers and covers the provider, not
// the host.
type RateCircuit struct {
	mu       sync.Mutex
	cooldown time.Duration
	strikes  map[string]int
	openTill map[string]time.Time
}

// NewRateCircuit creates the circuit set with the given cooldown.
func NewRateCircuit(cooldown time.Duration) *RateCircuit {
	if cooldown <= 0 {
		cooldown = DefaultRateCooldown
	}
	return &RateCircuit{
		cooldown: cooldown,
		strikes:  make(map[string]int),
		openTill: make(map[string]time.Time),
	}
}

// Allow reports whether tasks for the provider may still be issued.
func (rc *RateCircuit) Allow(provider string) bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	till, open := rc.openTill[provider]
	if !open {
		return true
	}
	if time.Now().After(till) {
		delete(rc.openTill, provider)
		rc.strikes[provider] = 0
		return true
	}
	return false
}

// Strike records a rate-limit answer. The second strike opens the circuit
// for the rest of the cooldown (in practice, the rest of the run).
func (rc *RateCircuit) Strike(provider string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.strikes[provider]++
	if rc.strikes[provider] >= 2 {
		rc.openTill[provider] = time.Now().Add(rc.cooldown)
	}
}

// Open reports providers whose circuit is currently open.
func (rc *RateCircuit) Open() []string {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	now := time.Now()
	var out []string
	for provider, till := range rc.openTill {
		if now.Before(till) {
			out = append(out, provider)
		}
	}
	return out
}
