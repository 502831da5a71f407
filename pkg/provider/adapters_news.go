package provider

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/veracity-labs/triangulate/pkg/evidence"
	"github.com/veracity-labs/triangulate/pkg/httpx"
	"github.com/veracity-labs/triangulate/pkg/normalize"
)

// GDELTProvider searches the GDELT 2.0 document API, which indexes global
// news coverage with short latency. No key required.
type GDELTProvider struct{ base }

// NewGDELTProvider creates the GDELT adapter.
func NewGDELTProvider(client *httpx.Client) *GDELTProvider {
	return &GDELTProvider{base: newBase(Descriptor{
		Name:        "gdelt",
		MinInterval: time.Second,
		Hosts:       []string{"api.gdeltproject.org"},
		License:     "varies (linked articles)",
	}, client)}
}

// Search runs an ArtList query over the last 12 months.
func (p *GDELTProvider) Search(ctx context.Context, query string, limit int) ([]*evidence.Item, error) {
	endpoint := fmt.Sprintf(
		"https://api.gdeltproject.org/api/v2/doc/doc?query=%s&mode=ArtList&maxrecords=%d&timespan=12months&format=json&sort=hybridrel",
		url.QueryEscape(query), clampLimit(limit, 15))

	var payload struct {
		Articles []struct {
			URL      string `json:"url"`
			Title    string `json:"title"`
			SeenDate string `json:"seendate"` // 20240115T123000Z
			Domain   string `json:"domain"`
			Language string `json:"language"`
		} `json:"articles"`
	}
	if err := p.getJSON(ctx, endpoint, nil, &payload); err != nil {
		return nil, err
	}

	items := make([]*evidence.Item, 0, len(payload.Articles))
	for _, a := range payload.Articles {
		if a.URL == "" || a.Title == "" {
			continue
		}
		if a.Language != "" && a.Language != "English" {
			continue
		}
		it := p.item(a.URL, a.Title, "")
		it.Date = gdeltDate(a.SeenDate)
		items = append(items, it)
	}
	return items, nil
}

func gdeltDate(seen string) string {
	t, err := time.Parse("20060102T150405Z", seen)
	if err != nil {
		return normalize.ISODate(seen)
	}
	return t.Format("2006-01-02")
}
