package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Numeric and temporal token patterns shared by quote extraction, claim
// filtering, and contradiction analysis.
var (
	yearToken    = regexp.MustCompile(`\b(19|20)\d{2}\b`)
	quarterToken = regexp.MustCompile(`\bQ[1-4]\s?(19|20)\d{2}\b`)
	percentToken = regexp.MustCompile(`\b\d+(?:[.,]\d+)?\s?(?:%|percent\b|per cent\b)`)
	numberToken  = regexp.MustCompile(`\b\d+(?:[.,]\d+)?\s?(?:%|percent|k\b|m\b|bn\b|million|billion|trillion)?`)
	unitWords    = regexp.MustCompile(`(?i)\b(million|billion|trillion|percent|per cent)\b`)
)

// dateLayouts are tried in order when normalizing upstream date strings.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"2006-01",
	"2006/01/02",
	"January 2, 2006",
	"2 January 2006",
	"Jan 2, 2006",
	"2006",
	"Mon, 02 Jan 2006 15:04:05 MST",
	"Mon, 02 Jan 2006 15:04:05 -0700",
}

// isoDate normalizes an upstream date string to ISO-8601 (date precision).
// Unparseable input is returned empty rather than guessed.
func isoDate(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			if layout == "2006" {
				return raw // year-only stays year-only
			}
			return t.Format("2006-01-02")
		}
	}
	return ""
}

// ISODate is the exported form used by provider adapters.
func ISODate(raw string) string { return isoDate(raw) }

// HasNumericToken reports whether text carries a number, percent, year, or
// quarter token; such texts are claim-like.
func HasNumericToken(text string) bool {
	return yearToken.MatchString(text) || percentToken.MatchString(text) ||
		quarterToken.MatchString(text) ||
		(numberToken.MatchString(text) && unitWords.MatchString(text))
}

// NumericTokens extracts the normalized year/percent/quarter tokens of a
// text, for cross-item agreement checks.
func NumericTokens(text string) []string {
	seen := make(map[string]struct{})
	var tokens []string
	add := func(tok string) {
		tok = strings.ToLower(strings.Join(strings.Fields(tok), ""))
		if _, ok := seen[tok]; !ok {
			seen[tok] = struct{}{}
			tokens = append(tokens, tok)
		}
	}
	for _, m := range quarterToken.FindAllString(text, -1) {
		add(m)
	}
	for _, m := range yearToken.FindAllString(text, -1) {
		add(m)
	}
	for _, m := range percentToken.FindAllString(text, -1) {
		add(m)
	}
	return tokens
}

// SharedNumericTokens counts tokens present in both texts.
func SharedNumericTokens(a, b string) int {
	set := make(map[string]struct{})
	for _, t := range NumericTokens(a) {
		set[t] = struct{}{}
	}
	n := 0
	for _, t := range NumericTokens(b) {
		if _, ok := set[t]; ok {
			n++
		}
	}
	return n
}

var magnitudeNumber = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s?(%|percent|per cent|k|m|bn|million|billion|trillion)?\b`)

// Magnitudes extracts numbers with their unit multipliers applied
// (k=1e3, m/million=1e6, bn/billion=1e9, trillion=1e12). Percent values are
// returned as-is; years are excluded since they are labels, not measures.
func Magnitudes(text string) []float64 {
	var out []float64
	for _, m := range magnitudeNumber.FindAllStringSubmatch(text, -1) {
		numStr := strings.ReplaceAll(m[1], ",", "")
		v, err := strconv.ParseFloat(numStr, 64)
		if err != nil {
			continue
		}
		unit := strings.ToLower(m[2])
		switch unit {
		case "k":
			v *= 1e3
		case "m", "million":
			v *= 1e6
		case "bn", "billion":
			v *= 1e9
		case "trillion":
			v *= 1e12
		case "%", "percent", "per cent":
			// percent kept as the raw value
		default:
			// Bare numbers that look like years are labels, skip them.
			if v >= 1900 && v <= 2100 && v == float64(int(v)) {
				continue
			}
		}
		out = append(out, v)
	}
	return out
}

// RecencyScore is the stepped publication-age score used in the confidence
// recompute. Unknown dates score 0.5.
func RecencyScore(isoDate string, now time.Time) float64 {
	if isoDate == "" {
		return 0.5
	}
	t, err := time.Parse("2006-01-02", isoDate)
	if err != nil {
		if t, err = time.Parse("2006", isoDate); err != nil {
			return 0.5
		}
	}
	age := now.Sub(t)
	switch {
	case age <= 30*24*time.Hour:
		return 1.0
	case age <= 90*24*time.Hour:
		return 0.8
	case age <= 180*24*time.Hour:
		return 0.6
	case age <= 365*24*time.Hour:
		return 0.4
	default:
		return 0.2
	}
}
