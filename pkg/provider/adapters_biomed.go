package provider

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/veracity-labs/triangulate/pkg/evidence"
	"github.com/veracity-labs/triangulate/pkg/httpx"
	"github.com/veracity-labs/triangulate/pkg/normalize"
)

// PubMedProvider searches NCBI PubMed through the E-utilities pair
// esearch + esummary. NCBI allows 3 RPS without an API key.
type PubMedProvider struct{ base }

// NewPubMedProvider creates the PubMed adapter.
func NewPubMedProvider(client *httpx.Client) *PubMedProvider {
	return &PubMedProvider{base: newBase(Descriptor{
		Name:        "pubmed",
		MinInterval: 334 * time.Millisecond,
		Hosts:       []string{"eutils.ncbi.nlm.nih.gov"},
		License:     "public domain (abstracts vary)",
	}, client)}
}

// Search resolves PMIDs via esearch, then hydrates them via esummary.
// Two upstream calls per query; both ride the same host throttle.
func (p *PubMedProvider) Search(ctx context.Context, query string, limit int) ([]*evidence.Item, error) {
	searchURL := fmt.Sprintf(
		"https://eutils.ncbi.nlm.nih.gov/entrez/eutils/esearch.fcgi?db=pubmed&retmode=json&retmax=%d&term=%s",
		clampLimit(limit, 10), url.QueryEscape(query))

	var search struct {
		ESearchResult struct {
			IDList []string `json:"idlist"`
		} `json:"esearchresult"`
	}
	if err := p.getJSON(ctx, searchURL, nil, &search); err != nil {
		return nil, err
	}
	pmids := search.ESearchResult.IDList
	if len(pmids) == 0 {
		return nil, nil
	}

	summaryURL := fmt.Sprintf(
		"https://eutils.ncbi.nlm.nih.gov/entrez/eutils/esummary.fcgi?db=pubmed&retmode=json&id=%s",
		strings.Join(pmids, ","))

	var summary struct {
		Result map[string]struct {
			Title   string `json:"title"`
			PubDate string `json:"pubdate"`
			Source  string `json:"source"`
			Authors []struct {
				Name string `json:"name"`
			} `json:"authors"`
			ArticleIDs []struct {
				IDType string `json:"idtype"`
				Value  string `json:"value"`
			} `json:"articleids"`
		} `json:"result"`
	}
	if err := p.getJSON(ctx, summaryURL, nil, &summary); err != nil {
		return nil, err
	}

	items := make([]*evidence.Item, 0, len(pmids))
	for _, pmid := range pmids {
		doc, ok := summary.Result[pmid]
		if !ok || doc.Title == "" {
			continue
		}
		it := p.item("https://pubmed.ncbi.nlm.nih.gov/"+pmid+"/", doc.Title, doc.Source)
		it.PMID = pmid
		it.Date = normalize.ISODate(doc.PubDate)
		if len(doc.Authors) > 0 {
			it.Author = doc.Authors[0].Name
		}
		for _, id := range doc.ArticleIDs {
			if id.IDType == "doi" {
				it.DOI = id.Value
				break
			}
		}
		items = append(items, it)
	}
	return items, nil
}

// EuropePMCProvider searches Europe PMC, which carries abstracts inline and
// covers preprints PubMed misses.
type EuropePMCProvider struct{ base }

// NewEuropePMCProvider creates the Europe PMC adapter.
func NewEuropePMCProvider(client *httpx.Client) *EuropePMCProvider {
	return &EuropePMCProvider{base: newBase(Descriptor{
		Name:        "europepmc",
		MinInterval: 200 * time.Millisecond,
		Hosts:       []string{"www.ebi.ac.uk"},
		License:     "open access where flagged",
	}, client)}
}

// Search queries the REST search endpoint in core mode to get abstracts.
func (p *EuropePMCProvider) Search(ctx context.Context, query string, limit int) ([]*evidence.Item, error) {
	endpoint := fmt.Sprintf(
		"https://www.ebi.ac.uk/europepmc/webservices/rest/search?query=%s&format=json&resultType=core&pageSize=%d",
		url.QueryEscape(query), clampLimit(limit, 10))

	var payload struct {
		ResultList struct {
			Result []struct {
				Title           string `json:"title"`
				AbstractText    string `json:"abstractText"`
				AuthorString    string `json:"authorString"`
				DOI             string `json:"doi"`
				PMID            string `json:"pmid"`
				FirstPublicDate string `json:"firstPublicationDate"`
				FullTextURLList struct {
					FullTextURL []struct {
						URL          string `json:"url"`
						DocumentType string `json:"documentStyle"`
					} `json:"fullTextUrl"`
				} `json:"fullTextUrlList"`
			} `json:"result"`
		} `json:"resultList"`
	}
	if err := p.getJSON(ctx, endpoint, nil, &payload); err != nil {
		return nil, err
	}

	items := make([]*evidence.Item, 0, len(payload.ResultList.Result))
	for _, r := range payload.ResultList.Result {
		if r.Title == "" {
			continue
		}
		link := ""
		for _, u := range r.FullTextURLList.FullTextURL {
			if u.DocumentType == "html" || link == "" {
				link = u.URL
			}
		}
		if link == "" && r.DOI != "" {
			link = "https://doi.org/" + r.DOI
		}
		if link == "" && r.PMID != "" {
			link = "https://pubmed.ncbi.nlm.nih.gov/" + r.PMID + "/"
		}
		if link == "" {
			continue
		}
		it := p.item(link, r.Title, normalize.StripHTML(r.AbstractText))
		it.DOI = r.DOI
		it.PMID = r.PMID
		it.Date = normalize.ISODate(r.FirstPublicDate)
		if r.AuthorString != "" {
			it.Author = firstAuthor(r.AuthorString)
		}
		items = append(items, it)
	}
	return items, nil
}

func firstAuthor(s string) string {
	if i := strings.IndexByte(s, ','); i > 0 {
		return strings.TrimSpace(s[:i])
	}
	return strings.TrimSpace(s)
}
