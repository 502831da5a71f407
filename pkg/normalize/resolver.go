package normalize

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/veracity-labs/triangulate/pkg/httpx"
)

// Provenance tags how gated content was ultimately obtained.
const (
	ProvenanceDirect  = "direct"
	ProvenanceDOI     = "doi"
	ProvenanceOA      = "oa"
	ProvenanceMetaPDF = "meta-pdf"
	ProvenanceMirror  = "mirror"
)

// hostMirrors maps consumer hosts to mirror URL templates. %s receives the
// original URL. The Wayback template covers newsroom walls; reader.elsevier
// covers a subset of Elsevier DOIs surfaced behind sciencedirect.
var hostMirrors = map[string]string{
	"bloomberg.com":     "https://web.archive.org/web/2/%s",
	"ft.com":            "https://web.archive.org/web/2/%s",
	"wsj.com":           "https://web.archive.org/web/2/%s",
	"economist.com":     "https://web.archive.org/web/2/%s",
	"sciencedirect.com": "https://web.archive.org/web/2/%s",
}

var doiInURL = regexp.MustCompile(`10\.\d{4,9}/[-._;()/:a-zA-Z0-9]+`)

// Fetcher turns URLs into extracted documents, resolving paywalls through
// DOI metadata, open-access lookup, advertised PDF links, and host mirrors.
type Fetcher struct {
	client         *httpx.Client
	pdfs           *httpx.PDFFetcher
	unpaywallEmail string
	pdfMaxPages    int
	log            *slog.Logger
}

// NewFetcher builds the content fetcher over the shared substrate.
func NewFetcher(client *httpx.Client, pdfs *httpx.PDFFetcher, unpaywallEmail string, pdfMaxPages int) *Fetcher {
	return &Fetcher{
		client:         client,
		pdfs:           pdfs,
		unpaywallEmail: unpaywallEmail,
		pdfMaxPages:    pdfMaxPages,
		log:            slog.Default().With("component", "fetcher"),
	}
}

// FetchResult is an extracted document plus how it was obtained.
type FetchResult struct {
	Doc        *Document
	Provenance string
	Outcome    httpx.Outcome
}

// Fetch retrieves and extracts a page. Gated answers run the paywall
// resolver pipeline; an empty result with Outcome Gated means every fallback
// came up dry.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) *FetchResult {
	res := f.client.GetText(ctx, rawURL, nil)
	switch res.Outcome {
	case httpx.Fetched:
		if isPDFBody(res) {
			return f.extractPDFBytes(res.Body, ProvenanceDirect)
		}
		doc, err := ExtractHTML(res.Body)
		if err != nil || strings.TrimSpace(doc.Text) == "" {
			return &FetchResult{Outcome: httpx.PermanentFail}
		}
		// A 200 that is really a wall goes through the resolver too.
		if httpx.PaywalledBody(res.Body) && len(doc.Text) < 600 {
			if resolved := f.resolve(ctx, rawURL, res.Body); resolved != nil {
				return resolved
			}
			return &FetchResult{Outcome: httpx.Gated}
		}
		return &FetchResult{Doc: doc, Provenance: ProvenanceDirect, Outcome: httpx.Fetched}

	case httpx.Gated:
		if resolved := f.resolve(ctx, rawURL, res.Body); resolved != nil {
			return resolved
		}
		return &FetchResult{Outcome: httpx.Gated}

	default:
		return &FetchResult{Outcome: res.Outcome}
	}
}

// resolve is the ordered paywall pipeline: DOI metadata + OA locator, then
// advertised PDF links, then host mirrors. First step that yields text wins.
func (f *Fetcher) resolve(ctx context.Context, rawURL string, gatedBody []byte) *FetchResult {
	doi := f.findDOI(rawURL, gatedBody)
	if doi != "" {
		if r := f.viaDOI(ctx, doi); r != nil {
			return r
		}
	}
	if len(gatedBody) > 0 {
		if doc, err := ExtractHTML(gatedBody); err == nil && doc.PDFURL != "" {
			if r := f.extractPDFURL(ctx, absoluteURL(rawURL, doc.PDFURL), ProvenanceMetaPDF); r != nil {
				return r
			}
		}
	}
	if mirror := mirrorURL(rawURL); mirror != "" {
		res := f.client.GetText(ctx, mirror, nil)
		if res.OK() {
			if doc, err := ExtractHTML(res.Body); err == nil && doc.Text != "" {
				return &FetchResult{Doc: doc, Provenance: ProvenanceMirror, Outcome: httpx.Fetched}
			}
		}
	}
	return nil
}

// viaDOI asks Crossref for bibliographic metadata and Unpaywall for a free
// PDF location.
func (f *Fetcher) viaDOI(ctx context.Context, doi string) *FetchResult {
	var meta *Document

	res := f.client.GetText(ctx, "https://api.crossref.org/works/"+url.PathEscape(doi), nil)
	if res.OK() {
		var payload struct {
			Message struct {
				Title    []string `json:"title"`
				Abstract string   `json:"abstract"`
				Issued   struct {
					DateParts [][]int `json:"date-parts"`
				} `json:"issued"`
				Publisher string `json:"publisher"`
			} `json:"message"`
		}
		if err := json.Unmarshal(res.Body, &payload); err == nil && len(payload.Message.Title) > 0 {
			meta = &Document{
				Title:     payload.Message.Title[0],
				Text:      StripHTML(payload.Message.Abstract),
				Publisher: payload.Message.Publisher,
				DOI:       doi,
			}
			if dp := payload.Message.Issued.DateParts; len(dp) > 0 && len(dp[0]) > 0 {
				meta.Date = datePartsISO(dp[0])
			}
		}
	}

	oaURL := f.unpaywallPDF(ctx, doi)
	if oaURL != "" {
		if r := f.extractPDFURL(ctx, oaURL, ProvenanceOA); r != nil {
			if meta != nil {
				r.Doc.Title = firstNonEmpty(meta.Title, r.Doc.Title)
				r.Doc.Date = firstNonEmpty(meta.Date, r.Doc.Date)
				r.Doc.DOI = doi
			}
			return r
		}
	}

	if meta != nil && meta.Text != "" {
		return &FetchResult{Doc: meta, Provenance: ProvenanceDOI, Outcome: httpx.Fetched}
	}
	return nil
}

func (f *Fetcher) unpaywallPDF(ctx context.Context, doi string) string {
	if f.unpaywallEmail == "" {
		return ""
	}
	endpoint := fmt.Sprintf("https://api.unpaywall.org/v2/%s?email=%s",
		url.PathEscape(doi), url.QueryEscape(f.unpaywallEmail))
	res := f.client.GetText(ctx, endpoint, nil)
	if !res.OK() {
		return ""
	}
	var payload struct {
		BestOALocation struct {
			URLForPDF string `json:"url_for_pdf"`
		} `json:"best_oa_location"`
	}
	if err := json.Unmarshal(res.Body, &payload); err != nil {
		return ""
	}
	return payload.BestOALocation.URLForPDF
}

func (f *Fetcher) extractPDFURL(ctx context.Context, pdfURL, provenance string) *FetchResult {
	if pdfURL == "" {
		return nil
	}
	res := f.pdfs.Fetch(ctx, pdfURL)
	if !res.OK() {
		return nil
	}
	return f.extractPDFBytes(res.Body, provenance)
}

func (f *Fetcher) extractPDFBytes(data []byte, provenance string) *FetchResult {
	text, err := ExtractPDF(data, f.pdfMaxPages)
	if err != nil {
		return nil
	}
	return &FetchResult{
		Doc:        &Document{Text: text},
		Provenance: provenance,
		Outcome:    httpx.Fetched,
	}
}

func (f *Fetcher) findDOI(rawURL string, body []byte) string {
	if m := doiInURL.FindString(rawURL); m != "" {
		return strings.TrimSuffix(m, ".")
	}
	if len(body) > 0 {
		if doc, err := ExtractHTML(body); err == nil && doc.DOI != "" {
			return doc.DOI
		}
	}
	return ""
}

func mirrorURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	template, ok := hostMirrors[host]
	if !ok {
		return ""
	}
	return fmt.Sprintf(template, rawURL)
}

func isPDFBody(res *httpx.Result) bool {
	if res.Header != nil && strings.Contains(res.Header.Get("Content-Type"), "application/pdf") {
		return true
	}
	return len(res.Body) > 4 && string(res.Body[:5]) == "%PDF-"
}

func absoluteURL(base, ref string) string {
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}

func datePartsISO(parts []int) string {
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

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
