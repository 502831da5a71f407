package httpx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// domainHeaders are per-domain identity overrides merged over the defaults.
// SEC-style hosts demand an operator identity and identity encoding; some
// newsroom hosts require a same-site Referer; SDMX statistical endpoints only
// answer JSON when asked explicitly.
var domainHeaders = map[string]map[string]string{
	"sec.gov": {
		"Accept-Encoding": "identity",
	},
	"stats.oecd.org": {
		"Accept": "application/json",
	},
	"sdmx.oecd.org": {
		"Accept": "application/json",
	},
	"dataservices.imf.org": {
		"Accept": "application/json",
	},
	"ec.europa.eu": {
		"Accept": "application/json",
	},
	"reuters.com": {
		"Referer": "https://www.reuters.com/",
	},
	"apnews.com": {
		"Referer": "https://apnews.com/",
	},
}

// Client is the polite HTTP substrate. One Client is shared by every provider
// adapter in a run; all of its state is safe for concurrent use.
type Client struct {
	http     *http.Client
	agent    string
	contact  string
	throttle *Throttle
	robots   *Robots
	cache    *DiskCache
	breakers *BreakerSet
	retries  int
	log      *slog.Logger
}

// Options configures a Client.
type Options struct {
	ContactEmail string
	CacheDir     string
	CacheTTL     time.Duration
	HostInterval time.Duration
	BreakerFails int
	BreakerReset time.Duration
	MaxRetries   int
	Timeout      time.Duration
}

// New creates the substrate client. The cache directory is created eagerly so
// a bad path surfaces as a config error, not mid-run.
func New(opts Options) (*Client, error) {
	if opts.ContactEmail == "" {
		return nil, fmt.Errorf("contact email is required for the identity header")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	agent := fmt.Sprintf("triangulate/1.0 (evidence pipeline; +mailto:%s)", opts.ContactEmail)

	cache, err := NewDiskCache(opts.CacheDir, opts.CacheTTL)
	if err != nil {
		return nil, fmt.Errorf("open response cache: %w", err)
	}

	return &Client{
		http:     &http.Client{Timeout: opts.Timeout},
		agent:    agent,
		contact:  opts.ContactEmail,
		throttle: NewThrottle(opts.HostInterval),
		robots:   NewRobots(agent),
		cache:    cache,
		breakers: NewBreakerSet(opts.BreakerFails, opts.BreakerReset),
		retries:  opts.MaxRetries,
		log:      slog.Default().With("component", "httpx"),
	}, nil
}

// Agent returns the product User-Agent used on every request.
func (c *Client) Agent() string { return c.agent }

// Throttle exposes the per-host throttle so adapters can register hard
// published intervals.
func (c *Client) Throttle() *Throttle { return c.throttle }

// Breakers exposes the per-host circuit registry for scheduler consultation
// and per-provider tuning.
func (c *Client) Breakers() *BreakerSet { return c.breakers }

// GetText fetches a URL expected to carry a textual body (HTML, JSON, XML),
// honoring robots, the per-host throttle, the circuit breaker, and the
// revalidating disk cache. Extra headers are merged over the identity set.
func (c *Client) GetText(ctx context.Context, rawURL string, extra map[string]string) *Result {
	return c.get(ctx, rawURL, extra, false)
}

// GetBinary fetches a URL without the text entry size cap. Used for small
// binary payloads; large PDFs go through StreamPDF instead.
func (c *Client) GetBinary(ctx context.Context, rawURL string) *Result {
	return c.get(ctx, rawURL, nil, true)
}

func (c *Client) get(ctx context.Context, rawURL string, extra map[string]string, binary bool) *Result {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return &Result{Outcome: PermanentFail, Detail: "malformed url"}
	}
	host := u.Hostname()

	if GatedPath(u.Path) {
		return &Result{Outcome: Gated, Detail: "login/subscribe path"}
	}
	if !c.robots.Allowed(ctx, host, u.Path) {
		return &Result{Outcome: Gated, Detail: "robots disallow"}
	}

	breaker := c.breakers.For(host)
	if !breaker.Allow() {
		return &Result{Outcome: TransientFail, Detail: "circuit open"}
	}

	// Cache fast path: serve fresh entries without touching the network.
	entry, cached, fresh := c.cache.Lookup(http.MethodGet, rawURL)
	if entry != nil && fresh {
		return &Result{Outcome: Fetched, Status: entry.Status, Body: cached, FromCache: true}
	}

	if err := c.throttle.Wait(ctx, host); err != nil {
		return &Result{Outcome: Cancelled, Detail: "deadline during throttle wait"}
	}

	headers := c.identityHeaders(host)
	for k, v := range extra {
		headers[k] = v
	}
	if entry != nil {
		if entry.ETag != "" {
			headers["If-None-Match"] = entry.ETag
		}
		if entry.LastModified != "" {
			headers["If-Modified-Since"] = entry.LastModified
		}
	}

	var lastStatus int
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			if !sleepCtx(ctx, backoff(attempt)) {
				return &Result{Outcome: Cancelled, Detail: "deadline during retry backoff"}
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return &Result{Outcome: PermanentFail, Detail: "build request"}
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return &Result{Outcome: Cancelled, Detail: "cancelled"}
			}
			lastStatus = 0
			continue // transport error, retry
		}

		body, readErr := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
		resp.Body.Close()
		lastStatus = resp.StatusCode

		switch {
		case resp.StatusCode == http.StatusNotModified:
			c.cache.Refresh(http.MethodGet, rawURL)
			breaker.Success()
			return &Result{Outcome: Fetched, Status: entry.Status, Header: resp.Header, Body: cached, FromCache: true}

		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			if readErr != nil {
				continue
			}
			if CloudflareInterstitial(resp.StatusCode, resp.Header, body) {
				return &Result{Outcome: Gated, Status: resp.StatusCode, Detail: "cloudflare interstitial"}
			}
			breaker.Success()
			c.cache.Store(http.MethodGet, rawURL, resp.StatusCode, resp.Header, body, binary)
			return &Result{Outcome: Fetched, Status: resp.StatusCode, Header: resp.Header, Body: body}

		case resp.StatusCode == http.StatusUnauthorized,
			resp.StatusCode == http.StatusPaymentRequired,
			resp.StatusCode == http.StatusForbidden:
			if CloudflareInterstitial(resp.StatusCode, resp.Header, body) {
				return &Result{Outcome: Gated, Status: resp.StatusCode, Detail: "cloudflare interstitial"}
			}
			return &Result{Outcome: Gated, Status: resp.StatusCode, Detail: "auth/paywall"}

		case retryable(resp.StatusCode):
			// fall through to retry loop

		default:
			// Other 4xx: give up without tripping retries.
			return &Result{Outcome: PermanentFail, Status: resp.StatusCode, Detail: fmt.Sprintf("http %d", resp.StatusCode)}
		}
	}

	breaker.Failure()
	c.log.Debug("retries exhausted",
		"url", RedactURL(rawURL),
		"status", lastStatus,
	)
	return &Result{Outcome: TransientFail, Status: lastStatus, Detail: "retries exhausted"}
}

// PostJSON sends a JSON body and returns the response. POSTs bypass the disk
// cache and robots (they target API endpoints, not crawlable pages) but still
// ride the per-host throttle, breaker, and retry loop.
func (c *Client) PostJSON(ctx context.Context, rawURL string, payload []byte, extra map[string]string) *Result {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return &Result{Outcome: PermanentFail, Detail: "malformed url"}
	}
	host := u.Hostname()

	breaker := c.breakers.For(host)
	if !breaker.Allow() {
		return &Result{Outcome: TransientFail, Detail: "circuit open"}
	}
	if err := c.throttle.Wait(ctx, host); err != nil {
		return &Result{Outcome: Cancelled, Detail: "deadline during throttle wait"}
	}

	headers := c.identityHeaders(host)
	headers["Content-Type"] = "application/json"
	for k, v := range extra {
		headers[k] = v
	}

	var lastStatus int
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			if !sleepCtx(ctx, backoff(attempt)) {
				return &Result{Outcome: Cancelled, Detail: "deadline during retry backoff"}
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(string(payload)))
		if err != nil {
			return &Result{Outcome: PermanentFail, Detail: "build request"}
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return &Result{Outcome: Cancelled, Detail: "cancelled"}
			}
			lastStatus = 0
			continue
		}

		body, readErr := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
		resp.Body.Close()
		lastStatus = resp.StatusCode

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			if readErr != nil {
				continue
			}
			breaker.Success()
			return &Result{Outcome: Fetched, Status: resp.StatusCode, Header: resp.Header, Body: body}

		case resp.StatusCode == http.StatusUnauthorized,
			resp.StatusCode == http.StatusPaymentRequired,
			resp.StatusCode == http.StatusForbidden:
			return &Result{Outcome: Gated, Status: resp.StatusCode, Detail: "auth/paywall"}

		case retryable(resp.StatusCode):

		default:
			return &Result{Outcome: PermanentFail, Status: resp.StatusCode, Detail: fmt.Sprintf("http %d", resp.StatusCode)}
		}
	}

	breaker.Failure()
	return &Result{Outcome: TransientFail, Status: lastStatus, Detail: "retries exhausted"}
}

func (c *Client) identityHeaders(host string) map[string]string {
	headers := map[string]string{
		"User-Agent": c.agent,
		"Accept":     "text/html,application/json;q=0.9,*/*;q=0.8",
	}
	bare := strings.TrimPrefix(strings.ToLower(host), "www.")
	for domain, overrides := range domainHeaders {
		if bare == domain || strings.HasSuffix(bare, "."+domain) {
			for k, v := range overrides {
				headers[k] = v
			}
		}
	}
	if bare == "sec.gov" || strings.HasSuffix(bare, ".sec.gov") {
		headers["User-Agent"] = fmt.Sprintf("triangulate research %s", c.contact)
	}
	return headers
}

// retryable reports whether a status code warrants another attempt.
// 432 appears in the wild as a vendor-specific rate-limit code.
func retryable(status int) bool {
	return status == http.StatusRequestTimeout || status == http.StatusTooManyRequests ||
		status == 432 || status >= 500
}

// RateLimited reports whether a status is a 429-class rate-limit answer.
// The scheduler uses this to open provider-level circuits.
func RateLimited(status int) bool {
	return status == http.StatusTooManyRequests || status == 432
}

// backoff returns the exponential delay with jitter for the given attempt.
func backoff(attempt int) time.Duration {
	base := time.Duration(math.Pow(2, float64(attempt-1))) * 500 * time.Millisecond
	if base > 8*time.Second {
		base = 8 * time.Second
	}
	return base + time.Duration(rand.Int63n(int64(250*time.Millisecond)))
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
