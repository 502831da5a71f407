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

// SECEdgarProvider searches SEC EDGAR full-text filings. EDGAR requires a
// declared identity in the User-Agent, which the substrate already carries,
// and rejects compressed responses on some endpoints.
type SECEdgarProvider struct{ base }

// NewSECEdgarProvider creates the EDGAR adapter.
func NewSECEdgarProvider(client *httpx.Client) *SECEdgarProvider {
	return &SECEdgarProvider{base: newBase(Descriptor{
		Name:        "sec-edgar",
		MinInterval: 150 * time.Millisecond, // SEC fair-access cap is 10 RPS
		Hosts:       []string{"efts.sec.gov", "www.sec.gov"},
		License:     "public domain",
	}, client)}
}

// Search queries the full-text search service.
func (p *SECEdgarProvider) Search(ctx context.Context, query string, limit int) ([]*evidence.Item, error) {
	endpoint := fmt.Sprintf("https://efts.sec.gov/LATEST/search-index?q=%s&size=%d",
		url.QueryEscape(`"`+query+`"`), clampLimit(limit, 10))

	var payload struct {
		Hits struct {
			Hits []struct {
				ID     string `json:"_id"` // accession:document
				Source struct {
					DisplayNames []string `json:"display_names"`
					CIKs         []string `json:"ciks"`
					FileDate     string   `json:"file_date"`
					FormType     string   `json:"file_type"`
				} `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := p.getJSON(ctx, endpoint, nil, &payload); err != nil {
		return nil, err
	}

	items := make([]*evidence.Item, 0, len(payload.Hits.Hits))
	for _, hit := range payload.Hits.Hits {
		accession, document, ok := strings.Cut(hit.ID, ":")
		if !ok {
			continue
		}
		filer := ""
		if len(hit.Source.DisplayNames) > 0 {
			filer = hit.Source.DisplayNames[0]
		}
		title := strings.TrimSpace(filer + " " + hit.Source.FormType)
		if title == "" {
			continue
		}
		cik := ""
		if len(hit.Source.CIKs) > 0 {
			cik = strings.TrimLeft(hit.Source.CIKs[0], "0")
		}
		link := filingURL(cik, accession, document)
		it := p.item(link, title, fmt.Sprintf("%s filing %s by %s", hit.Source.FormType, accession, filer))
		it.Date = normalize.ISODate(hit.Source.FileDate)
		it.SetMeta("accession_no", accession)
		items = append(items, it)
	}
	return items, nil
}

// filingURL builds the archive URL for a filing document. EDGAR strips the
// dashes from the accession number for the directory segment.
func filingURL(cik, accession, document string) string {
	dir := strings.ReplaceAll(accession, "-", "")
	return fmt.Sprintf("https://www.sec.gov/Archives/edgar/data/%s/%s/%s", cik, dir, document)
}
