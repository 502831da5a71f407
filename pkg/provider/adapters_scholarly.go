package provider

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/veracity-labs/triangulate/pkg/evidence"
	"github.com/veracity-labs/triangulate/pkg/httpx"
	"github.com/veracity-labs/triangulate/pkg/normalize"
)

// OpenAlexProvider searches the OpenAlex works index.
type OpenAlexProvider struct {
	base
	mailto string
}

// NewOpenAlexProvider creates the OpenAlex adapter. The mailto lands in the
// polite pool and raises the effective rate ceiling.
func NewOpenAlexProvider(client *httpx.Client, mailto string) *OpenAlexProvider {
	return &OpenAlexProvider{
		base: newBase(Descriptor{
			Name:        "openalex",
			MinInterval: 100 * time.Millisecond, // 10 RPS polite pool
			DailyQuota:  100000,
			Hosts:       []string{"api.openalex.org"},
			License:     "CC0",
		}, client),
		mailto: mailto,
	}
}

type openAlexResponse struct {
	Results []struct {
		ID              string `json:"id"`
		Title           string `json:"title"`
		DOI             string `json:"doi"`
		PublicationDate string `json:"publication_date"`
		PrimaryLocation struct {
			LandingPage string `json:"landing_page_url"`
			PDF         string `json:"pdf_url"`
			Source      struct {
				DisplayName string `json:"display_name"`
			} `json:"source"`
		} `json:"primary_location"`
		AbstractInvertedIndex map[string][]int `json:"abstract_inverted_index"`
		Authorships           []struct {
			Author struct {
				DisplayName string `json:"display_name"`
			} `json:"author"`
		} `json:"authorships"`
	} `json:"results"`
}

// Search runs the full-text search first. OpenAlex rejects some query shapes
// with a 400, so on that status the adapter degrades to a title-only filter
// and then an abstract-only filter before giving up.
func (p *OpenAlexProvider) Search(ctx context.Context, query string, limit int) ([]*evidence.Item, error) {
	endpoints := []string{
		p.endpoint("search=" + url.QueryEscape(query)),
		p.endpoint("filter=title.search:" + url.QueryEscape(query)),
		p.endpoint("filter=abstract.search:" + url.QueryEscape(query)),
	}
	endpoints[0] += fmt.Sprintf("&per-page=%d", clampLimit(limit, 10))
	endpoints[1] += fmt.Sprintf("&per-page=%d", clampLimit(limit, 10))
	endpoints[2] += fmt.Sprintf("&per-page=%d", clampLimit(limit, 10))

	var lastErr error
	for i, endpoint := range endpoints {
		res := p.client.GetText(ctx, endpoint, nil)
		switch {
		case res.Outcome == httpx.Fetched:
			var payload openAlexResponse
			if err := json.Unmarshal(res.Body, &payload); err != nil {
				return nil, fmt.Errorf("openalex: decode response: %w", err)
			}
			return p.toItems(payload), nil
		case res.Outcome == httpx.Cancelled:
			return nil, context.Canceled
		case res.Status == 400 && i < len(endpoints)-1:
			p.log.Debug("query rejected, degrading", "step", i)
			lastErr = fmt.Errorf("openalex: %s", res.Detail)
		case httpx.RateLimited(res.Status):
			return nil, &RateLimitError{Status: res.Status}
		default:
			return nil, fmt.Errorf("openalex: %s", res.Detail)
		}
	}
	return nil, lastErr
}

func (p *OpenAlexProvider) endpoint(q string) string {
	s := "https://api.openalex.org/works?" + q
	if p.mailto != "" {
		s += "&mailto=" + url.QueryEscape(p.mailto)
	}
	return s
}

func (p *OpenAlexProvider) toItems(payload openAlexResponse) []*evidence.Item {
	items := make([]*evidence.Item, 0, len(payload.Results))
	for _, w := range payload.Results {
		link := w.PrimaryLocation.LandingPage
		if link == "" {
			link = w.DOI
		}
		if link == "" {
			link = w.ID
		}
		it := p.item(link, w.Title, reconstructAbstract(w.AbstractInvertedIndex))
		it.Date = normalize.ISODate(w.PublicationDate)
		it.DOI = strings.TrimPrefix(w.DOI, "https://doi.org/")
		if len(w.Authorships) > 0 {
			it.Author = w.Authorships[0].Author.DisplayName
		}
		if w.PrimaryLocation.PDF != "" {
			it.SetMeta("pdf_url", w.PrimaryLocation.PDF)
		}
		items = append(items, it)
	}
	return items
}

// reconstructAbstract rebuilds prose from OpenAlex's inverted index, which
// maps each word to the positions it occupies.
func reconstructAbstract(index map[string][]int) string {
	if len(index) == 0 {
		return ""
	}
	max := 0
	for _, positions := range index {
		for _, pos := range positions {
			if pos > max {
				max = pos
			}
		}
	}
	if max > 2000 {
		max = 2000
	}
	words := make([]string, max+1)
	for word, positions := range index {
		for _, pos := range positions {
			if pos >= 0 && pos < len(words) {
				words[pos] = word
			}
		}
	}
	return strings.TrimSpace(strings.Join(words, " "))
}

// CrossrefProvider searches Crossref bibliographic records.
type CrossrefProvider struct {
	base
	mailto string
}

// NewCrossrefProvider creates the Crossref adapter.
func NewCrossrefProvider(client *httpx.Client, mailto string) *CrossrefProvider {
	return &CrossrefProvider{
		base: newBase(Descriptor{
			Name:        "crossref",
			MinInterval: 200 * time.Millisecond, // 5 RPS polite pool
			Hosts:       []string{"api.crossref.org"},
			License:     "metadata: CC0",
		}, client),
		mailto: mailto,
	}
}

// Search queries the works endpoint sorted by relevance.
func (p *CrossrefProvider) Search(ctx context.Context, query string, limit int) ([]*evidence.Item, error) {
	endpoint := fmt.Sprintf("https://api.crossref.org/works?query=%s&rows=%d",
		url.QueryEscape(query), clampLimit(limit, 10))
	if p.mailto != "" {
		endpoint += "&mailto=" + url.QueryEscape(p.mailto)
	}

	var payload struct {
		Message struct {
			Items []struct {
				DOI      string   `json:"DOI"`
				Title    []string `json:"title"`
				Abstract string   `json:"abstract"`
				URL      string   `json:"URL"`
				Author   []struct {
					Given  string `json:"given"`
					Family string `json:"family"`
				} `json:"author"`
				Issued struct {
					DateParts [][]int `json:"date-parts"`
				} `json:"issued"`
				Publisher string `json:"publisher"`
			} `json:"items"`
		} `json:"message"`
	}
	if err := p.getJSON(ctx, endpoint, nil, &payload); err != nil {
		return nil, err
	}

	items := make([]*evidence.Item, 0, len(payload.Message.Items))
	for _, w := range payload.Message.Items {
		if len(w.Title) == 0 {
			continue
		}
		link := w.URL
		if link == "" {
			link = "https://doi.org/" + w.DOI
		}
		it := p.item(link, w.Title[0], normalize.StripHTML(w.Abstract))
		it.DOI = w.DOI
		if dp := w.Issued.DateParts; len(dp) > 0 {
			it.Date = datePartsToISO(dp[0])
		}
		if len(w.Author) > 0 {
			it.Author = strings.TrimSpace(w.Author[0].Given + " " + w.Author[0].Family)
		}
		if w.Publisher != "" {
			it.SetMeta("publisher", w.Publisher)
		}
		items = append(items, it)
	}
	return items, nil
}

func datePartsToISO(parts []int) string {
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return fmt.Sprintf("%04d", parts[0])
	case 2:
		return fmt.Sprintf("%04d-%02d-01", parts[0], parts[1])
	default:
		return fmt.Sprintf("%04d-%02d-%02d", parts[0], parts[1], parts[2])
	}
}

// ArxivProvider searches arXiv preprints. The published limit is one request
// per three seconds and must not be tightened.
type ArxivProvider struct{ base }

// NewArxivProvider creates the arXiv adapter.
func NewArxivProvider(client *httpx.Client) *ArxivProvider {
	return &ArxivProvider{base: newBase(Descriptor{
		Name:        "arxiv",
		MinInterval: 3 * time.Second,
		Hosts:       []string{"export.arxiv.org"},
		License:     "arXiv non-exclusive license",
	}, client)}
}

type arxivFeed struct {
	Entries []struct {
		ID        string `xml:"id"`
		Title     string `xml:"title"`
		Summary   string `xml:"summary"`
		Published string `xml:"published"`
		Authors   []struct {
			Name string `xml:"name"`
		} `xml:"author"`
		Links []struct {
			Href string `xml:"href,attr"`
			Type string `xml:"type,attr"`
		} `xml:"link"`
	} `xml:"entry"`
}

// Search queries the arXiv Atom API. The feed is XML; everything else in the
// fleet speaks JSON, so this adapter decodes inline.
func (p *ArxivProvider) Search(ctx context.Context, query string, limit int) ([]*evidence.Item, error) {
	endpoint := fmt.Sprintf(
		"https://export.arxiv.org/api/query?search_query=all:%s&start=0&max_results=%d",
		url.QueryEscape(query), clampLimit(limit, 10))

	res := p.client.GetText(ctx, endpoint, nil)
	switch res.Outcome {
	case httpx.Fetched:
	case httpx.Cancelled:
		return nil, context.Canceled
	default:
		if httpx.RateLimited(res.Status) {
			return nil, &RateLimitError{Status: res.Status}
		}
		return nil, fmt.Errorf("arxiv: %s", res.Detail)
	}

	var feed arxivFeed
	if err := xml.Unmarshal(res.Body, &feed); err != nil {
		return nil, fmt.Errorf("arxiv: decode feed: %w", err)
	}

	items := make([]*evidence.Item, 0, len(feed.Entries))
	for _, e := range feed.Entries {
		it := p.item(e.ID, e.Title, e.Summary)
		it.Date = normalize.ISODate(e.Published)
		it.ArxivID = strings.TrimPrefix(e.ID, "http://arxiv.org/abs/")
		it.ArxivID = strings.TrimPrefix(it.ArxivID, "https://arxiv.org/abs/")
		if len(e.Authors) > 0 {
			it.Author = e.Authors[0].Name
		}
		for _, l := range e.Links {
			if l.Type == "application/pdf" {
				it.SetMeta("pdf_url", l.Href)
				break
			}
		}
		items = append(items, it)
	}
	return items, nil
}
