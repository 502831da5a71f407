package normalize

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Document is the extracted content of a fetched page.
type Document struct {
	Title     string
	Text      string
	Date      string // ISO-8601 when determinable
	Author    string
	Publisher string
	DOI       string
	PDFURL    string // citation_pdf_url or alternate link, when advertised
}

// boilerplate selectors removed before main-text extraction.
var stripSelectors = []string{
	"script", "style", "noscript", "nav", "header", "footer", "aside",
	"form", "iframe", ".cookie", ".newsletter", ".advertisement", ".share",
	"#comments", ".comments", ".related", ".sidebar",
}

// mainSelectors are tried in order for the article body before falling back
// to a density heuristic over the whole page.
var mainSelectors = []string{
	"article", "main", `[role="main"]`, "#content", ".article-body",
	".post-content", ".entry-content", ".story-body",
}

// ExtractHTML parses an HTML body into a Document. Structured data wins:
// JSON-LD NewsArticle/ScholarlyArticle blocks supply title, date, and
// publisher when present; the body text falls back to a readability-style
// extraction over paragraph density.
func ExtractHTML(body []byte) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	d := &Document{}
	extractJSONLD(doc, d)
	extractMeta(doc, d)

	if d.Title == "" {
		d.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}

	for _, sel := range stripSelectors {
		doc.Find(sel).Remove()
	}

	for _, sel := range mainSelectors {
		if text := blockText(doc.Find(sel).First()); len(text) > 200 {
			d.Text = text
			return d, nil
		}
	}

	// Density fallback: keep paragraphs that look like prose.
	var sb strings.Builder
	doc.Find("p").Each(func(_ int, p *goquery.Selection) {
		t := strings.TrimSpace(p.Text())
		if len(t) >= 60 || (len(t) >= 25 && strings.ContainsAny(t, "0123456789")) {
			sb.WriteString(t)
			sb.WriteString("\n")
		}
	})
	d.Text = collapseSpace(sb.String())
	return d, nil
}

func blockText(sel *goquery.Selection) string {
	if sel.Length() == 0 {
		return ""
	}
	var sb strings.Builder
	sel.Find("p, li, h2, h3").Each(func(_ int, node *goquery.Selection) {
		t := strings.TrimSpace(node.Text())
		if t != "" {
			sb.WriteString(t)
			sb.WriteString("\n")
		}
	})
	if sb.Len() == 0 {
		return collapseSpace(sel.Text())
	}
	return collapseSpace(sb.String())
}

// jsonLD mirrors the subset of schema.org fields the pipeline consumes.
type jsonLD struct {
	Type          any    `json:"@type"`
	Headline      string `json:"headline"`
	DatePublished string `json:"datePublished"`
	Author        any    `json:"author"`
	Publisher     struct {
		Name string `json:"name"`
	} `json:"publisher"`
}

func extractJSONLD(doc *goquery.Document, d *Document) {
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		raw := s.Text()
		var block jsonLD
		if err := json.Unmarshal([]byte(raw), &block); err != nil {
			// Some sites wrap the block in an array.
			var list []jsonLD
			if err := json.Unmarshal([]byte(raw), &list); err != nil || len(list) == 0 {
				return true
			}
			block = list[0]
		}
		if !articleType(block.Type) {
			return true
		}
		if block.Headline != "" {
			d.Title = block.Headline
		}
		if block.DatePublished != "" {
			d.Date = isoDate(block.DatePublished)
		}
		if d.Publisher == "" {
			d.Publisher = block.Publisher.Name
		}
		if d.Author == "" {
			d.Author = ldAuthor(block.Author)
		}
		return false
	})
}

func articleType(t any) bool {
	switch v := t.(type) {
	case string:
		return v == "NewsArticle" || v == "ScholarlyArticle" || v == "Article" || v == "Report"
	case []any:
		for _, e := range v {
			if s, ok := e.(string); ok && articleType(s) {
				return true
			}
		}
	}
	return false
}

func ldAuthor(a any) string {
	switch v := a.(type) {
	case string:
		return v
	case map[string]any:
		if name, ok := v["name"].(string); ok {
			return name
		}
	case []any:
		if len(v) > 0 {
			return ldAuthor(v[0])
		}
	}
	return ""
}

func extractMeta(doc *goquery.Document, d *Document) {
	meta := func(name string) string {
		v, _ := doc.Find(`meta[name="` + name + `"]`).First().Attr("content")
		if v == "" {
			v, _ = doc.Find(`meta[property="` + name + `"]`).First().Attr("content")
		}
		return strings.TrimSpace(v)
	}

	if d.DOI == "" {
		d.DOI = meta("citation_doi")
	}
	d.PDFURL = meta("citation_pdf_url")
	if d.PDFURL == "" {
		d.PDFURL, _ = doc.Find(`link[rel="alternate"][type="application/pdf"]`).First().Attr("href")
	}
	if d.Date == "" {
		for _, name := range []string{"citation_publication_date", "article:published_time", "date"} {
			if v := meta(name); v != "" {
				d.Date = isoDate(v)
				break
			}
		}
	}
	if d.Title == "" {
		d.Title = meta("og:title")
	}
	if d.Author == "" {
		d.Author = meta("citation_author")
	}
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
