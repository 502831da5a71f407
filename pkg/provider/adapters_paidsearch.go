package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/veracity-labs/triangulate/pkg/evidence"
	"github.com/veracity-labs/triangulate/pkg/httpx"
	"github.com/veracity-labs/triangulate/pkg/normalize"
)

// postJSON mirrors getJSON for API endpoints that take a JSON request body.
func (b *base) postJSON(ctx context.Context, endpoint string, reqBody any, headers map[string]string, v any) error {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", b.desc.Name, err)
	}
	res := b.client.PostJSON(ctx, endpoint, payload, headers)
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

// TavilyProvider searches the Tavily research API. Paid; rides the token
// bucket rather than a plain interval.
type TavilyProvider struct {
	base
	apiKey string
}

// NewTavilyProvider creates the Tavily adapter.
func NewTavilyProvider(client *httpx.Client, apiKey string) *TavilyProvider {
	return &TavilyProvider{
		base: newBase(Descriptor{
			Name:        "tavily",
			MinInterval: time.Second,
			Hosts:       []string{"api.tavily.com"},
			License:     "varies (linked pages)",
			Paid:        true,
			KeyName:     "TAVILY_API_KEY",
		}, client),
		apiKey: apiKey,
	}
}

// Search posts a search request with basic depth.
func (p *TavilyProvider) Search(ctx context.Context, query string, limit int) ([]*evidence.Item, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("tavily: missing api key")
	}
	req := map[string]any{
		"api_key":      p.apiKey,
		"query":        query,
		"max_results":  clampLimit(limit, 10),
		"search_depth": "basic",
	}
	var payload struct {
		Results []struct {
			URL     string `json:"url"`
			Title   string `json:"title"`
			Content string `json:"content"`
		} `json:"results"`
	}
	if err := p.postJSON(ctx, "https://api.tavily.com/search", req, nil, &payload); err != nil {
		return nil, err
	}

	items := make([]*evidence.Item, 0, len(payload.Results))
	for _, r := range payload.Results {
		if r.URL == "" || r.Title == "" {
			continue
		}
		items = append(items, p.item(r.URL, r.Title, r.Content))
	}
	return items, nil
}

// BraveProvider searches the Brave web search API. Paid tiers start at 1 RPS.
type BraveProvider struct {
	base
	apiKey string
}

// NewBraveProvider creates the Brave adapter.
func NewBraveProvider(client *httpx.Client, apiKey string) *BraveProvider {
	return &BraveProvider{
		base: newBase(Descriptor{
			Name:        "brave",
			MinInterval: time.Second,
			Hosts:       []string{"api.search.brave.com"},
			License:     "varies (linked pages)",
			Paid:        true,
			KeyName:     "BRAVE_API_KEY",
		}, client),
		apiKey: apiKey,
	}
}

// Search queries web search with the subscription token header.
func (p *BraveProvider) Search(ctx context.Context, query string, limit int) ([]*evidence.Item, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("brave: missing api key")
	}
	endpoint := fmt.Sprintf("https://api.search.brave.com/res/v1/web/search?q=%s&count=%d",
		url.QueryEscape(query), clampLimit(limit, 10))
	headers := map[string]string{
		"X-Subscription-Token": p.apiKey,
		"Accept":               "application/json",
	}

	var payload struct {
		Web struct {
			Results []struct {
				URL         string `json:"url"`
				Title       string `json:"title"`
				Description string `json:"description"`
				Age         string `json:"page_age"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := p.getJSON(ctx, endpoint, headers, &payload); err != nil {
		return nil, err
	}

	items := make([]*evidence.Item, 0, len(payload.Web.Results))
	for _, r := range payload.Web.Results {
		if r.URL == "" || r.Title == "" {
			continue
		}
		it := p.item(r.URL, r.Title, r.Description)
		it.Date = normalize.ISODate(r.Age)
		items = append(items, it)
	}
	return items, nil
}

// SerperProvider searches Google through the serper.dev proxy. Paid.
type SerperProvider struct {
	base
	apiKey string
}

// NewSerperProvider creates the Serper adapter.
func NewSerperProvider(client *httpx.Client, apiKey string) *SerperProvider {
	return &SerperProvider{
		base: newBase(Descriptor{
			Name:        "serper",
			MinInterval: time.Second,
			Hosts:       []string{"google.serper.dev"},
			License:     "varies (linked pages)",
			Paid:        true,
			KeyName:     "SERPER_API_KEY",
		}, client),
		apiKey: apiKey,
	}
}

// Search posts a query to the /search endpoint.
func (p *SerperProvider) Search(ctx context.Context, query string, limit int) ([]*evidence.Item, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("serper: missing api key")
	}
	req := map[string]any{"q": query, "num": clampLimit(limit, 10)}
	headers := map[string]string{"X-API-KEY": p.apiKey}

	var payload struct {
		Organic []struct {
			Link    string `json:"link"`
			Title   string `json:"title"`
			Snippet string `json:"snippet"`
			Date    string `json:"date"`
		} `json:"organic"`
	}
	if err := p.postJSON(ctx, "https://google.serper.dev/search", req, headers, &payload); err != nil {
		return nil, err
	}

	items := make([]*evidence.Item, 0, len(payload.Organic))
	for _, r := range payload.Organic {
		if r.Link == "" || r.Title == "" {
			continue
		}
		it := p.item(r.Link, r.Title, r.Snippet)
		it.Date = normalize.ISODate(r.Date)
		items = append(items, it)
	}
	return items, nil
}

// SerpAPIProvider searches Google through SerpAPI. Paid, slowest quota of the
// commercial tier, so the longest interval.
type SerpAPIProvider struct {
	base
	apiKey string
}

// NewSerpAPIProvider creates the SerpAPI adapter.
func NewSerpAPIProvider(client *httpx.Client, apiKey string) *SerpAPIProvider {
	return &SerpAPIProvider{
		base: newBase(Descriptor{
			Name:        "serpapi",
			MinInterval: 5 * time.Second,
			Hosts:       []string{"serpapi.com"},
			License:     "varies (linked pages)",
			Paid:        true,
			KeyName:     "SERPAPI_API_KEY",
		}, client),
		apiKey: apiKey,
	}
}

// Search queries the GET endpoint with the key as a query parameter; the
// redactor keeps it out of the logs.
func (p *SerpAPIProvider) Search(ctx context.Context, query string, limit int) ([]*evidence.Item, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("serpapi: missing api key")
	}
	endpoint := fmt.Sprintf("https://serpapi.com/search.json?engine=google&q=%s&num=%d&api_key=%s",
		url.QueryEscape(query), clampLimit(limit, 10), url.QueryEscape(p.apiKey))

	var payload struct {
		OrganicResults []struct {
			Link    string `json:"link"`
			Title   string `json:"title"`
			Snippet string `json:"snippet"`
			Date    string `json:"date"`
		} `json:"organic_results"`
	}
	if err := p.getJSON(ctx, endpoint, nil, &payload); err != nil {
		return nil, err
	}

	items := make([]*evidence.Item, 0, len(payload.OrganicResults))
	for _, r := range payload.OrganicResults {
		if r.Link == "" || r.Title == "" {
			continue
		}
		it := p.item(r.Link, r.Title, r.Snippet)
		it.Date = normalize.ISODate(r.Date)
		items = append(items, it)
	}
	return items, nil
}
