// Package provider implements one adapter per upstream data source. Each
// adapter maps (query, limit) to normalized evidence items and declares its
// rate limit, identity requirements, and licensing tag. Adapters never
// propagate upstream HTTP failures as panics; the scheduler counts errors and
// moves on.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/veracity-labs/triangulate/pkg/evidence"
	"github.com/veracity-labs/triangulate/pkg/httpx"
	"github.com/veracity-labs/triangulate/pkg/normalize"
)

// Descriptor declares an adapter's operating envelope.
type Descriptor struct {
	// Name is the stable provenance tag stamped on every item.
	Name string
	// MinInterval is the minimum gap between calls to this upstream.
	// Hard published limits (arxiv, overpass) must not be tightened.
	MinInterval time.Duration
	// DailyQuota caps calls per UTC day; zero means unmetered.
	DailyQuota int
	// Hosts are the upstream hosts this adapter talks to, for circuit
	// consultation and throttle registration.
	Hosts []string
	// License is the default licensing tag attached to items.
	License string
	// Paid marks providers that consume a purchased quota and therefore go
	// through a token bucket rather than a plain interval.
	Paid bool
	// KeyName names the credential (config key) the adapter needs; empty
	// for open providers.
	KeyName string
}

// Provider is the single search capability every adapter implements.
type Provider interface {
	Descriptor() Descriptor
	// Search returns up to limit normalized items. An error means the
	// upstream failed; the caller records it and treats the result as
	// empty. Adapters must return rather than retry on context expiry.
	Search(ctx context.Context, query string, limit int) ([]*evidence.Item, error)
}

// base carries the shared plumbing every adapter embeds.
type base struct {
	desc   Descriptor
	client *httpx.Client
	log    *slog.Logger
}

func newBase(desc Descriptor, client *httpx.Client) base {
	for _, host := range desc.Hosts {
		if desc.MinInterval > 0 {
			client.Throttle().SetInterval(host, desc.MinInterval)
		}
	}
	return base{
		desc:   desc,
		client: client,
		log:    slog.Default().With("component", "provider", "provider", desc.Name),
	}
}

func (b *base) Descriptor() Descriptor { return b.desc }

// errRateLimited is returned when the upstream answered with a 429-class
// status. The scheduler opens a provider-level circuit on the second one.
type RateLimitError struct{ Status int }

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited (http %d)", e.Status)
}

// getJSON fetches a URL through the substrate and decodes the JSON body.
func (b *base) getJSON(ctx context.Context, url string, headers map[string]string, v any) error {
	res := b.client.GetText(ctx, url, headers)
	switch res.Outcome {
	case httpx.Fetched:
		if err := json.Unmarshal(res.Body, v); err != nil {
			return fmt.Errorf("%s: decode response: %w", b.desc.Name, err)
		}
		return nil
	case httpx.Cancelled:
		return context.Canceled
	case httpx.Gated:
		return fmt.Errorf("%s: gated (%s)", b.desc.Name, res.Detail)
	default:
		if httpx.RateLimited(res.Status) {
			return &RateLimitError{Status: res.Status}
		}
		return fmt.Errorf("%s: %s", b.desc.Name, res.Detail)
	}
}

// item builds a normalized evidence item with canonical URL and domain and
// the adapter's provenance and license tags applied.
func (b *base) item(rawURL, title, snippet string) *evidence.Item {
	canonical := normalize.CanonicalURL(rawURL)
	it := evidence.NewItem(
		canonical,
		normalize.StripHTML(title),
		normalize.StripHTML(snippet),
		b.desc.Name,
		normalize.CanonicalDomain(canonical),
	)
	it.SetLicense(b.desc.License)
	return it
}

// Registry holds the constructed adapters for a run, keyed by name.
type Registry struct {
	byName map[string]Provider
	order  []string
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Provider)}
}

// Register adds an adapter. Later registrations with the same name replace
// earlier ones, which tests use to install fakes.
func (r *Registry) Register(p Provider) {
	name := p.Descriptor().Name
	if _, exists := r.byName[name]; !exists {
		r.order = append(r.order, name)
	}
	r.byName[name] = p
}

// Get returns the adapter for a name.
func (r *Registry) Get(name string) (Provider, bool) {
	p, ok := r.byName[name]
	return p, ok
}

// Names returns registered names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
