package provider

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/veracity-labs/triangulate/pkg/evidence"
	"github.com/veracity-labs/triangulate/pkg/httpx"
)

// NPSProvider searches the US National Park Service API for parks, alerts,
// and visitor information. Requires a free API key.
type NPSProvider struct {
	base
	apiKey string
}

// NewNPSProvider creates the NPS adapter.
func NewNPSProvider(client *httpx.Client, apiKey string) *NPSProvider {
	return &NPSProvider{
		base: newBase(Descriptor{
			Name:        "nps",
			MinInterval: time.Second,
			DailyQuota:  1000,
			Hosts:       []string{"developer.nps.gov"},
			License:     "public domain",
			KeyName:     "NPS_API_KEY",
		}, client),
		apiKey: apiKey,
	}
}

// Search queries the parks endpoint.
func (p *NPSProvider) Search(ctx context.Context, query string, limit int) ([]*evidence.Item, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("nps: missing api key")
	}
	endpoint := fmt.Sprintf("https://developer.nps.gov/api/v1/parks?q=%s&limit=%d&api_key=%s",
		url.QueryEscape(query), clampLimit(limit, 10), url.QueryEscape(p.apiKey))

	var payload struct {
		Data []struct {
			FullName    string `json:"fullName"`
			Description string `json:"description"`
			URL         string `json:"url"`
			States      string `json:"states"`
		} `json:"data"`
	}
	if err := p.getJSON(ctx, endpoint, nil, &payload); err != nil {
		return nil, err
	}

	items := make([]*evidence.Item, 0, len(payload.Data))
	for _, park := range payload.Data {
		if park.URL == "" || park.FullName == "" {
			continue
		}
		it := p.item(park.URL, park.FullName, park.Description)
		if park.States != "" {
			it.SetMeta("states", park.States)
		}
		items = append(items, it)
	}
	return items, nil
}
