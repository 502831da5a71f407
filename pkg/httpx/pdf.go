package httpx

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
)

// PDFFetcher streams PDFs with a hard size cap enforced both up front (HEAD
// Content-Length) and mid-download. Fetched bytes are deduplicated in-process
// by content hash so redirect chains never double-download.
type PDFFetcher struct {
	client  *Client
	maxSize int64
	retries int

	mu     sync.Mutex
	byURL  map[string][]byte // final URL -> body
	byHash map[string][]byte // sha256 hex -> body
}

// NewPDFFetcher wraps the substrate client with PDF streaming semantics.
func NewPDFFetcher(client *Client, maxSize int64, retries int) *PDFFetcher {
	if maxSize <= 0 {
		maxSize = 12 << 20
	}
	if retries < 0 {
		retries = 2
	}
	return &PDFFetcher{
		client:  client,
		maxSize: maxSize,
		retries: retries,
		byURL:   make(map[string][]byte),
		byHash:  make(map[string][]byte),
	}
}

// errTooLarge marks a size-cap violation; it is permanent, not retryable.
var errTooLarge = errors.New("pdf exceeds size cap")

// Fetch streams a PDF and returns its bytes. The returned Result carries
// PermanentFail when the size cap is exceeded and the usual tags otherwise.
func (f *PDFFetcher) Fetch(ctx context.Context, rawURL string) *Result {
	f.mu.Lock()
	if body, ok := f.byURL[rawURL]; ok {
		f.mu.Unlock()
		return &Result{Outcome: Fetched, Status: http.StatusOK, Body: body, FromCache: true}
	}
	f.mu.Unlock()

	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return &Result{Outcome: PermanentFail, Detail: "malformed url"}
	}
	host := u.Hostname()

	breaker := f.client.Breakers().For(host)
	if !breaker.Allow() {
		return &Result{Outcome: TransientFail, Detail: "circuit open"}
	}

	// HEAD gate: refuse oversized documents before streaming a byte.
	if length, ok := f.head(ctx, rawURL, host); ok && length > f.maxSize {
		return &Result{Outcome: PermanentFail, Detail: fmt.Sprintf("content-length %d over cap", length)}
	}

	var lastErr error
	for attempt := 0; attempt <= f.retries; attempt++ {
		if attempt > 0 {
			if !sleepCtx(ctx, backoff(attempt)) {
				return &Result{Outcome: Cancelled, Detail: "deadline during retry backoff"}
			}
		}
		if err := f.client.Throttle().Wait(ctx, host); err != nil {
			return &Result{Outcome: Cancelled, Detail: "deadline during throttle wait"}
		}

		body, finalURL, err := f.stream(ctx, rawURL)
		if err == nil {
			breaker.Success()
			sum := sha256.Sum256(body)
			hash := hex.EncodeToString(sum[:])

			f.mu.Lock()
			if prior, ok := f.byHash[hash]; ok {
				body = prior // identical bytes already held, reuse
			} else {
				f.byHash[hash] = body
			}
			f.byURL[rawURL] = body
			if finalURL != rawURL {
				f.byURL[finalURL] = body
			}
			f.mu.Unlock()

			return &Result{Outcome: Fetched, Status: http.StatusOK, Body: body}
		}
		if errors.Is(err, errTooLarge) {
			return &Result{Outcome: PermanentFail, Detail: "size cap exceeded mid-stream"}
		}
		if ctx.Err() != nil {
			return &Result{Outcome: Cancelled, Detail: "cancelled"}
		}
		lastErr = err
	}

	breaker.Failure()
	detail := "retries exhausted"
	if lastErr != nil {
		detail = RedactURL(lastErr.Error())
	}
	return &Result{Outcome: TransientFail, Detail: detail}
}

func (f *PDFFetcher) head(ctx context.Context, rawURL, host string) (int64, bool) {
	if err := f.client.Throttle().Wait(ctx, host); err != nil {
		return 0, false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return 0, false
	}
	for k, v := range f.client.identityHeaders(host) {
		req.Header.Set(k, v)
	}
	resp, err := f.client.http.Do(req)
	if err != nil {
		return 0, false
	}
	defer resp.Body.Close()
	if cl := resp.Header.Get("Content-Length"); cl != "" {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}

func (f *PDFFetcher) stream(ctx context.Context, rawURL string) (body []byte, finalURL string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", err
	}
	u, _ := url.Parse(rawURL)
	for k, v := range f.client.identityHeaders(u.Hostname()) {
		req.Header.Set(k, v)
	}
	req.Header.Set("Accept", "application/pdf,*/*;q=0.8")

	resp, err := f.client.http.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("http %d", resp.StatusCode)
	}

	// Stream with the cap enforced as bytes arrive: one extra byte past the
	// cap means the document is over budget and the download aborts.
	limited := io.LimitReader(resp.Body, f.maxSize+1)
	body, err = io.ReadAll(limited)
	if err != nil {
		return nil, "", err
	}
	if int64(len(body)) > f.maxSize {
		return nil, "", errTooLarge
	}
	return body, resp.Request.URL.String(), nil
}
