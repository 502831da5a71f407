package normalize

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ExtractPDF extracts text page by page up to maxPages. Pages that yield no
// plain text fall back to a row-oriented scan that recovers numeric table
// rows, which is usually where statistical PDFs keep the figures worth
// quoting.
func ExtractPDF(data []byte, maxPages int) (string, error) {
	if maxPages <= 0 {
		maxPages = 6
	}
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	total := reader.NumPage()
	if total > maxPages {
		total = maxPages
	}

	var sb strings.Builder
	for i := 1; i <= total; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil || strings.TrimSpace(text) == "" {
			if rows := tableRows(page); rows != "" {
				sb.WriteString(rows)
				sb.WriteString("\n")
			}
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}

	out := collapseSpace(sb.String())
	if out == "" {
		return "", fmt.Errorf("pdf produced no text in first %d pages", maxPages)
	}
	return out, nil
}

var numericRow = regexp.MustCompile(`\d`)

// tableRows reconstructs rows from positioned text fragments, keeping only
// rows that contain digits. This is the fallback for pages whose content
// streams do not decode into plain text cleanly.
func tableRows(page pdf.Page) string {
	content := page.Content()
	if len(content.Text) == 0 {
		return ""
	}

	// Group fragments by Y coordinate (a row), then order by X.
	rows := make(map[int][]pdf.Text)
	for _, t := range content.Text {
		y := int(t.Y)
		rows[y] = append(rows[y], t)
	}

	var sb strings.Builder
	for _, frags := range rows {
		var row strings.Builder
		for _, f := range frags {
			row.WriteString(f.S)
		}
		line := strings.TrimSpace(row.String())
		if len(line) >= 8 && numericRow.MatchString(line) {
			sb.WriteString(line)
			sb.WriteString("\n")
		}
	}
	return strings.TrimSpace(sb.String())
}
