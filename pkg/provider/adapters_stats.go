package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/veracity-labs/triangulate/pkg/evidence"
	"github.com/veracity-labs/triangulate/pkg/httpx"
	"github.com/veracity-labs/triangulate/pkg/normalize"
)

// WorldBankProvider searches World Bank indicator metadata and documents.
type WorldBankProvider struct{ base }

// NewWorldBankProvider creates the World Bank adapter.
func NewWorldBankProvider(client *httpx.Client) *WorldBankProvider {
	return &WorldBankProvider{base: newBase(Descriptor{
		Name:        "worldbank",
		MinInterval: 100 * time.Millisecond,
		Hosts:       []string{"search.worldbank.org", "api.worldbank.org"},
		License:     "CC BY-4.0",
	}, client)}
}

// Search queries the documents-and-reports search API.
func (p *WorldBankProvider) Search(ctx context.Context, query string, limit int) ([]*evidence.Item, error) {
	endpoint := fmt.Sprintf(
		"https://search.worldbank.org/api/v3/wds?format=json&qterm=%s&rows=%d&fl=docdt,display_title,pdfurl,url",
		url.QueryEscape(query), clampLimit(limit, 10))

	var payload struct {
		Documents map[string]json.RawMessage `json:"documents"`
	}
	if err := p.getJSON(ctx, endpoint, nil, &payload); err != nil {
		return nil, err
	}

	items := make([]*evidence.Item, 0, len(payload.Documents))
	for key, raw := range payload.Documents {
		if key == "facets" {
			continue
		}
		var doc struct {
			DisplayTitle string `json:"display_title"`
			DocDate      string `json:"docdt"`
			PDFURL       string `json:"pdfurl"`
			URL          string `json:"url"`
		}
		if err := json.Unmarshal(raw, &doc); err != nil || doc.DisplayTitle == "" {
			continue
		}
		link := doc.URL
		if link == "" {
			link = doc.PDFURL
		}
		if link == "" {
			continue
		}
		it := p.item(link, doc.DisplayTitle, "")
		it.Date = normalize.ISODate(doc.DocDate)
		if doc.PDFURL != "" {
			it.SetMeta("pdf_url", doc.PDFURL)
		}
		items = append(items, it)
	}
	return items, nil
}

// OECDProvider resolves OECD dataflows whose names match the query. SDMX has
// no free-text search, so the adapter filters the dataflow catalogue locally
// and links the public data-explorer page for each hit.
type OECDProvider struct {
	base
	flows     []sdmxFlow
	flowsErr  error
	flowsOnce bool
}

type sdmxFlow struct {
	ID     string
	Agency string
	Name   string
}

// NewOECDProvider creates the OECD adapter.
func NewOECDProvider(client *httpx.Client) *OECDProvider {
	return &OECDProvider{base: newBase(Descriptor{
		Name:        "oecd",
		MinInterval: 334 * time.Millisecond,
		Hosts:       []string{"sdmx.oecd.org"},
		License:     "OECD terms of use",
	}, client)}
}

// Search matches query terms against the cached dataflow catalogue.
func (p *OECDProvider) Search(ctx context.Context, query string, limit int) ([]*evidence.Item, error) {
	if !p.flowsOnce {
		p.flows, p.flowsErr = p.loadFlows(ctx)
		p.flowsOnce = true
	}
	if p.flowsErr != nil {
		return nil, p.flowsErr
	}

	terms := queryTerms(query)
	limit = clampLimit(limit, 10)
	items := make([]*evidence.Item, 0, limit)
	for _, flow := range p.flows {
		if !matchesTerms(flow.Name, terms) {
			continue
		}
		link := fmt.Sprintf("https://data-explorer.oecd.org/vis?df[ds]=dsDisseminateFinalDMZ&df[id]=%s&df[ag]=%s",
			url.QueryEscape(flow.ID), url.QueryEscape(flow.Agency))
		it := p.item(link, flow.Name, "OECD dataset "+flow.ID)
		it.SetMeta("dataflow_id", flow.ID)
		items = append(items, it)
		if len(items) >= limit {
			break
		}
	}
	return items, nil
}

func (p *OECDProvider) loadFlows(ctx context.Context) ([]sdmxFlow, error) {
	endpoint := "https://sdmx.oecd.org/public/rest/dataflow/all/all/latest?format=jsondata"

	var payload struct {
		Data struct {
			Dataflows []struct {
				ID       string `json:"id"`
				AgencyID string `json:"agencyID"`
				Name     string `json:"name"`
				Names    struct {
					En string `json:"en"`
				} `json:"names"`
			} `json:"dataflows"`
		} `json:"data"`
	}
	if err := p.getJSON(ctx, endpoint, nil, &payload); err != nil {
		return nil, err
	}

	flows := make([]sdmxFlow, 0, len(payload.Data.Dataflows))
	for _, df := range payload.Data.Dataflows {
		name := df.Name
		if name == "" {
			name = df.Names.En
		}
		if name == "" {
			continue
		}
		flows = append(flows, sdmxFlow{ID: df.ID, Agency: df.AgencyID, Name: name})
	}
	return flows, nil
}

// IMFProvider resolves IMF datasets matching the query via the Dataflow
// catalogue, same local-filter approach as OECD.
type IMFProvider struct {
	base
	flows     []sdmxFlow
	flowsErr  error
	flowsOnce bool
}

// NewIMFProvider creates the IMF adapter.
func NewIMFProvider(client *httpx.Client) *IMFProvider {
	return &IMFProvider{base: newBase(Descriptor{
		Name:        "imf",
		MinInterval: 334 * time.Millisecond,
		Hosts:       []string{"dataservices.imf.org"},
		License:     "IMF terms of use",
	}, client)}
}

// Search matches query terms against the IMF dataflow catalogue.
func (p *IMFProvider) Search(ctx context.Context, query string, limit int) ([]*evidence.Item, error) {
	if !p.flowsOnce {
		p.flows, p.flowsErr = p.loadFlows(ctx)
		p.flowsOnce = true
	}
	if p.flowsErr != nil {
		return nil, p.flowsErr
	}

	terms := queryTerms(query)
	limit = clampLimit(limit, 10)
	items := make([]*evidence.Item, 0, limit)
	for _, flow := range p.flows {
		if !matchesTerms(flow.Name, terms) {
			continue
		}
		link := "https://data.imf.org/?sk=" + url.QueryEscape(flow.ID)
		it := p.item(link, flow.Name, "IMF dataset "+flow.ID)
		it.SetMeta("dataflow_id", flow.ID)
		items = append(items, it)
		if len(items) >= limit {
			break
		}
	}
	return items, nil
}

func (p *IMFProvider) loadFlows(ctx context.Context) ([]sdmxFlow, error) {
	endpoint := "https://dataservices.imf.org/REST/SDMX_JSON.svc/Dataflow"

	var payload struct {
		Structure struct {
			Dataflows struct {
				Dataflow []struct {
					KeyFamilyRef struct {
						KeyFamilyID string `json:"KeyFamilyID"`
					} `json:"KeyFamilyRef"`
					Name struct {
						Text string `json:"#text"`
					} `json:"Name"`
				} `json:"Dataflow"`
			} `json:"Dataflows"`
		} `json:"Structure"`
	}
	if err := p.getJSON(ctx, endpoint, nil, &payload); err != nil {
		return nil, err
	}

	raw := payload.Structure.Dataflows.Dataflow
	flows := make([]sdmxFlow, 0, len(raw))
	for _, df := range raw {
		if df.Name.Text == "" || df.KeyFamilyRef.KeyFamilyID == "" {
			continue
		}
		flows = append(flows, sdmxFlow{ID: df.KeyFamilyRef.KeyFamilyID, Agency: "IMF", Name: df.Name.Text})
	}
	return flows, nil
}

// EurostatProvider searches Eurostat dataset metadata via the catalogue API.
type EurostatProvider struct{ base }

// NewEurostatProvider creates the Eurostat adapter.
func NewEurostatProvider(client *httpx.Client) *EurostatProvider {
	return &EurostatProvider{base: newBase(Descriptor{
		Name:        "eurostat",
		MinInterval: 334 * time.Millisecond,
		Hosts:       []string{"ec.europa.eu"},
		License:     "CC BY-4.0",
	}, client)}
}

// Search uses the statistics API's dataset search.
func (p *EurostatProvider) Search(ctx context.Context, query string, limit int) ([]*evidence.Item, error) {
	endpoint := fmt.Sprintf(
		"https://ec.europa.eu/eurostat/api/dissemination/catalogue/search?query=%s&limit=%d&format=json&lang=en",
		url.QueryEscape(query), clampLimit(limit, 10))

	var payload struct {
		Items []struct {
			Code    string `json:"code"`
			Title   string `json:"title"`
			Type    string `json:"type"`
			Updated string `json:"lastUpdate"`
		} `json:"items"`
	}
	if err := p.getJSON(ctx, endpoint, nil, &payload); err != nil {
		return nil, err
	}

	items := make([]*evidence.Item, 0, len(payload.Items))
	for _, d := range payload.Items {
		if d.Title == "" || d.Code == "" {
			continue
		}
		link := "https://ec.europa.eu/eurostat/databrowser/view/" + url.PathEscape(d.Code) + "/default/table"
		it := p.item(link, d.Title, "Eurostat dataset "+d.Code)
		it.Date = normalize.ISODate(d.Updated)
		it.SetMeta("dataset_code", d.Code)
		items = append(items, it)
	}
	return items, nil
}

// FREDProvider searches the St. Louis Fed's FRED series catalogue. Requires
// an API key.
type FREDProvider struct {
	base
	apiKey string
}

// NewFREDProvider creates the FRED adapter.
func NewFREDProvider(client *httpx.Client, apiKey string) *FREDProvider {
	return &FREDProvider{
		base: newBase(Descriptor{
			Name:        "fred",
			MinInterval: 500 * time.Millisecond,
			Hosts:       []string{"api.stlouisfed.org"},
			License:     "FRED terms of use",
			KeyName:     "FRED_API_KEY",
		}, client),
		apiKey: apiKey,
	}
}

// Search queries series/search ordered by search rank.
func (p *FREDProvider) Search(ctx context.Context, query string, limit int) ([]*evidence.Item, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("fred: missing api key")
	}
	endpoint := fmt.Sprintf(
		"https://api.stlouisfed.org/fred/series/search?search_text=%s&api_key=%s&file_type=json&limit=%d",
		url.QueryEscape(query), url.QueryEscape(p.apiKey), clampLimit(limit, 10))

	var payload struct {
		Seriess []struct {
			ID          string `json:"id"`
			Title       string `json:"title"`
			Units       string `json:"units"`
			Frequency   string `json:"frequency"`
			LastUpdated string `json:"last_updated"`
			Notes       string `json:"notes"`
			Observation string `json:"observation_end"`
			Seasonal    string `json:"seasonal_adjustment_short"`
		} `json:"seriess"`
	}
	if err := p.getJSON(ctx, endpoint, nil, &payload); err != nil {
		return nil, err
	}

	items := make([]*evidence.Item, 0, len(payload.Seriess))
	for _, s := range payload.Seriess {
		if s.ID == "" || s.Title == "" {
			continue
		}
		snippet := s.Notes
		if snippet == "" {
			snippet = fmt.Sprintf("%s, %s, through %s", s.Units, s.Frequency, s.Observation)
		}
		it := p.item("https://fred.stlouisfed.org/series/"+url.PathEscape(s.ID), s.Title, snippet)
		it.Date = normalize.ISODate(s.LastUpdated)
		it.SetMeta("series_id", s.ID)
		items = append(items, it)
	}
	return items, nil
}

func queryTerms(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	terms := fields[:0]
	for _, f := range fields {
		if len(f) >= 3 {
			terms = append(terms, f)
		}
	}
	return terms
}

// matchesTerms requires at least half the query terms to appear in the name.
func matchesTerms(name string, terms []string) bool {
	if len(terms) == 0 {
		return false
	}
	lower := strings.ToLower(name)
	hits := 0
	for _, t := range terms {
		if strings.Contains(lower, t) {
			hits++
		}
	}
	return hits*2 >= len(terms)
}
