// Package httpx is the polite HTTP substrate under every provider adapter:
// per-domain identity headers, per-host throttling, a robots.txt cache, an
// on-disk revalidating response cache, per-host circuit breaking, a
// size-capped streaming PDF fetcher, and sensitive-value redaction for logs.
//
// Nothing above this package deals in raw network errors. Callers branch on
// the Outcome tag of a Result instead.
package httpx

import "net/http"

// Outcome tags the result of a fetch. Upper layers branch on the tag; only
// the substrate itself ever sees transport errors.
type Outcome int

const (
	// Fetched means a usable body was obtained (possibly from cache).
	Fetched Outcome = iota
	// Gated means the origin answered but withheld content (401/402/403,
	// paywall interstitial, robots disallow).
	Gated
	// Cancelled means the run deadline or caller cancelled the request.
	// Cancellation is not an error and never counts against a circuit.
	Cancelled
	// TransientFail means retries were exhausted on a retryable condition
	// (408/429/5xx, transport error).
	TransientFail
	// PermanentFail means a non-retryable upstream condition (other 4xx,
	// malformed URL, size cap exceeded).
	PermanentFail
)

func (o Outcome) String() string {
	switch o {
	case Fetched:
		return "fetched"
	case Gated:
		return "gated"
	case Cancelled:
		return "cancelled"
	case TransientFail:
		return "transient_fail"
	case PermanentFail:
		return "permanent_fail"
	}
	return "unknown"
}

// Result is the tagged outcome of a substrate fetch.
type Result struct {
	Outcome   Outcome
	Status    int
	Header    http.Header
	Body      []byte
	FromCache bool
	// Detail carries a short human-readable reason for non-Fetched outcomes
	// (already redacted, safe to log).
	Detail string
}

// OK reports whether the result carries a usable body.
func (r *Result) OK() bool { return r.Outcome == Fetched }
