package provider

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/veracity-labs/triangulate/pkg/evidence"
	"github.com/veracity-labs/triangulate/pkg/httpx"
)

// NominatimProvider geocodes and looks up places through OpenStreetMap's
// Nominatim. The published limit is an absolute 1 RPS.
type NominatimProvider struct{ base }

// NewNominatimProvider creates the Nominatim adapter.
func NewNominatimProvider(client *httpx.Client) *NominatimProvider {
	return &NominatimProvider{base: newBase(Descriptor{
		Name:        "nominatim",
		MinInterval: time.Second,
		Hosts:       []string{"nominatim.openstreetmap.org"},
		License:     "ODbL 1.0",
	}, client)}
}

// Search runs a free-form place query.
func (p *NominatimProvider) Search(ctx context.Context, query string, limit int) ([]*evidence.Item, error) {
	endpoint := fmt.Sprintf(
		"https://nominatim.openstreetmap.org/search?q=%s&format=jsonv2&limit=%d&addressdetails=0&extratags=1",
		url.QueryEscape(query), clampLimit(limit, 5))

	var payload []struct {
		OSMType     string            `json:"osm_type"`
		OSMID       int64             `json:"osm_id"`
		DisplayName string            `json:"display_name"`
		Category    string            `json:"category"`
		Type        string            `json:"type"`
		Lat         string            `json:"lat"`
		Lon         string            `json:"lon"`
		ExtraTags   map[string]string `json:"extratags"`
	}
	if err := p.getJSON(ctx, endpoint, nil, &payload); err != nil {
		return nil, err
	}

	items := make([]*evidence.Item, 0, len(payload))
	for _, place := range payload {
		if place.DisplayName == "" {
			continue
		}
		link := fmt.Sprintf("https://www.openstreetmap.org/%s/%d", place.OSMType, place.OSMID)
		snippet := fmt.Sprintf("%s (%s/%s) at %s, %s", place.DisplayName, place.Category, place.Type, place.Lat, place.Lon)
		it := p.item(link, place.DisplayName, snippet)
		if site := place.ExtraTags["website"]; site != "" {
			it.SetMeta("website", site)
		}
		items = append(items, it)
	}
	return items, nil
}

// OverpassProvider queries OpenStreetMap features by name through the
// Overpass API. Also hard-limited to 1 RPS; heavy queries get a short
// server-side timeout so they fail fast instead of eating the run budget.
type OverpassProvider struct{ base }

// NewOverpassProvider creates the Overpass adapter.
func NewOverpassProvider(client *httpx.Client) *OverpassProvider {
	return &OverpassProvider{base: newBase(Descriptor{
		Name:        "overpass",
		MinInterval: time.Second,
		Hosts:       []string{"overpass-api.de"},
		License:     "ODbL 1.0",
	}, client)}
}

// Search matches named nodes and ways case-insensitively.
func (p *OverpassProvider) Search(ctx context.Context, query string, limit int) ([]*evidence.Item, error) {
	limit = clampLimit(limit, 5)
	ql := fmt.Sprintf(`[out:json][timeout:10];(node["name"~%q,i];way["name"~%q,i];);out tags center %d;`,
		regexEscape(query), regexEscape(query), limit)
	endpoint := "https://overpass-api.de/api/interpreter?data=" + url.QueryEscape(ql)

	var payload struct {
		Elements []struct {
			Type string            `json:"type"`
			ID   int64             `json:"id"`
			Tags map[string]string `json:"tags"`
		} `json:"elements"`
	}
	if err := p.getJSON(ctx, endpoint, nil, &payload); err != nil {
		return nil, err
	}

	items := make([]*evidence.Item, 0, len(payload.Elements))
	for _, el := range payload.Elements {
		name := el.Tags["name"]
		if name == "" {
			continue
		}
		link := fmt.Sprintf("https://www.openstreetmap.org/%s/%d", el.Type, el.ID)
		it := p.item(link, name, describeTags(el.Tags))
		if site := el.Tags["website"]; site != "" {
			it.SetMeta("website", site)
		}
		items = append(items, it)
		if len(items) >= limit {
			break
		}
	}
	return items, nil
}

// describeTags flattens the interesting OSM tags into a snippet.
func describeTags(tags map[string]string) string {
	var parts []string
	for _, key := range []string{"tourism", "amenity", "historic", "leisure", "opening_hours", "fee", "addr:city"} {
		if v := tags[key]; v != "" {
			parts = append(parts, key+"="+v)
		}
	}
	if len(parts) == 0 {
		return tags["name"]
	}
	return strings.Join(parts, ", ")
}

func regexEscape(s string) string {
	replacer := strings.NewReplacer(
		`\`, `\\`, `.`, `\.`, `+`, `\+`, `*`, `\*`, `?`, `\?`,
		`(`, `\(`, `)`, `\)`, `[`, `\[`, `]`, `\]`, `{`, `\{`, `}`, `\}`,
		`^`, `\^`, `$`, `\$`, `|`, `\|`,
	)
	return replacer.Replace(s)
}
