package normalize

import (
	"regexp"
	"strings"
)

const maxQuoteLen = 280

var sentenceSplit = regexp.MustCompile(`(?m)([^.!?]+[.!?])`)

// ExtractQuote returns the first sentence of text that carries a numeric or
// period token (year, quarter, percent), trimmed to 280 characters. When no
// sentence qualifies, the first substantial sentence is returned instead; an
// empty string means the text had nothing quotable.
func ExtractQuote(text string) string {
	text = collapseSpace(text)
	if text == "" {
		return ""
	}

	sentences := sentenceSplit.FindAllString(text, -1)
	if len(sentences) == 0 {
		sentences = []string{text}
	}

	var fallback string
	for _, s := range sentences {
		s = strings.TrimSpace(s)
		if len(s) < 30 {
			continue
		}
		if HasNumericToken(s) {
			return trimQuote(s)
		}
		if fallback == "" {
			fallback = s
		}
	}
	return trimQuote(fallback)
}

func trimQuote(s string) string {
	if len(s) <= maxQuoteLen {
		return s
	}
	cut := s[:maxQuoteLen]
	// Break at a word boundary rather than mid-token.
	if i := strings.LastIndexByte(cut, ' '); i > maxQuoteLen/2 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut)
}

var htmlTag = regexp.MustCompile(`<[^>]+>`)

// StripHTML removes markup from a snippet; providers occasionally return
// highlighted fragments with embedded tags.
func StripHTML(s string) string {
	return collapseSpace(htmlTag.ReplaceAllString(s, " "))
}
