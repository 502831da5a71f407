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

// WikipediaProvider searches the English Wikipedia full-text index.
type WikipediaProvider struct{ base }

// NewWikipediaProvider creates the Wikipedia adapter.
func NewWikipediaProvider(client *httpx.Client) *WikipediaProvider {
	return &WikipediaProvider{base: newBase(Descriptor{
		Name:        "wikipedia",
		MinInterval: 250 * time.Millisecond, // courtesy ~4 RPS
		Hosts:       []string{"en.wikipedia.org"},
		License:     "CC BY-SA 3.0",
	}, client)}
}

// Search queries the MediaWiki search API.
func (p *WikipediaProvider) Search(ctx context.Context, query string, limit int) ([]*evidence.Item, error) {
	endpoint := fmt.Sprintf(
		"https://en.wikipedia.org/w/api.php?action=query&list=search&format=json&srlimit=%d&srsearch=%s",
		clampLimit(limit, 10), url.QueryEscape(query))

	var payload struct {
		Query struct {
			Search []struct {
				Title     string `json:"title"`
				Snippet   string `json:"snippet"`
				Timestamp string `json:"timestamp"`
			} `json:"search"`
		} `json:"query"`
	}
	if err := p.getJSON(ctx, endpoint, nil, &payload); err != nil {
		return nil, err
	}

	items := make([]*evidence.Item, 0, len(payload.Query.Search))
	for _, hit := range payload.Query.Search {
		pageURL := "https://en.wikipedia.org/wiki/" + url.PathEscape(hit.Title)
		it := p.item(pageURL, hit.Title, hit.Snippet)
		it.Date = normalize.ISODate(hit.Timestamp)
		items = append(items, it)
	}
	return items, nil
}

// WikidataProvider searches Wikidata entities; useful for encyclopedia and
// entity-grounding intents.
type WikidataProvider struct{ base }

// NewWikidataProvider creates the Wikidata adapter.
func NewWikidataProvider(client *httpx.Client) *WikidataProvider {
	return &WikidataProvider{base: newBase(Descriptor{
		Name:        "wikidata",
		MinInterval: 250 * time.Millisecond,
		Hosts:       []string{"www.wikidata.org"},
		License:     "CC0",
	}, client)}
}

// Search queries wbsearchentities.
func (p *WikidataProvider) Search(ctx context.Context, query string, limit int) ([]*evidence.Item, error) {
	endpoint := fmt.Sprintf(
		"https://www.wikidata.org/w/api.php?action=wbsearchentities&format=json&language=en&limit=%d&search=%s",
		clampLimit(limit, 10), url.QueryEscape(query))

	var payload struct {
		Search []struct {
			ID          string `json:"id"`
			Label       string `json:"label"`
			Description string `json:"description"`
			ConceptURI  string `json:"concepturi"`
		} `json:"search"`
	}
	if err := p.getJSON(ctx, endpoint, nil, &payload); err != nil {
		return nil, err
	}

	items := make([]*evidence.Item, 0, len(payload.Search))
	for _, hit := range payload.Search {
		if hit.Description == "" {
			continue
		}
		uri := hit.ConceptURI
		if uri == "" {
			uri = "https://www.wikidata.org/wiki/" + hit.ID
		}
		items = append(items, p.item(uri, hit.Label, hit.Description))
	}
	return items, nil
}

// WaybackProvider searches the Internet Archive's item index; it is the
// fallback tier when nothing else is credentialed and also serves snapshot
// lookups for dead links.
type WaybackProvider struct{ base }

// NewWaybackProvider creates the Internet Archive adapter.
func NewWaybackProvider(client *httpx.Client) *WaybackProvider {
	return &WaybackProvider{base: newBase(Descriptor{
		Name:        "wayback",
		MinInterval: 500 * time.Millisecond,
		Hosts:       []string{"archive.org", "web.archive.org"},
		License:     "varies (archived content)",
	}, client)}
}

// Search queries the advanced search API over archived texts.
func (p *WaybackProvider) Search(ctx context.Context, query string, limit int) ([]*evidence.Item, error) {
	endpoint := fmt.Sprintf(
		"https://archive.org/advancedsearch.php?q=%s&fl[]=identifier&fl[]=title&fl[]=description&fl[]=publicdate&rows=%d&output=json",
		url.QueryEscape(query), clampLimit(limit, 10))

	var payload struct {
		Response struct {
			Docs []struct {
				Identifier  string `json:"identifier"`
				Title       string `json:"title"`
				Description any    `json:"description"`
				PublicDate  string `json:"publicdate"`
			} `json:"docs"`
		} `json:"response"`
	}
	if err := p.getJSON(ctx, endpoint, nil, &payload); err != nil {
		return nil, err
	}

	items := make([]*evidence.Item, 0, len(payload.Response.Docs))
	for _, doc := range payload.Response.Docs {
		it := p.item(
			"https://archive.org/details/"+url.PathEscape(doc.Identifier),
			doc.Title,
			flattenDescription(doc.Description),
		)
		it.Date = normalize.ISODate(doc.PublicDate)
		items = append(items, it)
	}
	return items, nil
}

// flattenDescription handles the archive.org field that is sometimes a
// string and sometimes a list of strings.
func flattenDescription(v any) string {
	switch d := v.(type) {
	case string:
		return d
	case []any:
		if len(d) > 0 {
			if s, ok := d[0].(string); ok {
				return s
			}
		}
	}
	return ""
}

func clampLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	if limit > 50 {
		return 50
	}
	return limit
}
