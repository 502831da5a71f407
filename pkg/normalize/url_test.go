package normalize

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
)

func TestCanonicalURL(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"https://Example.ORG/Path", "https://example.org/Path"},
		{"https://example.org/path#section", "https://example.org/path"},
		{"https://example.org:443/path", "https://example.org/path"},
		{"http://example.org:80/path", "http://example.org/path"},
		{"https://example.org/a/../b", "https://example.org/b"},
		{"https://example.org/path/", "https://example.org/path"},
		{"https://example.org", "https://example.org/"},
		{"https://example.org/p?utm_source=x&id=7", "https://example.org/p?id=7"},
		{"https://example.org/p?fbclid=abc", "https://example.org/p"},
		{"https://example.org/p?b=2&a=1", "https://example.org/p?a=1&b=2"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, CanonicalURL(tc.in), "input %q", tc.in)
	}
}

func TestCanonicalURLPassesThroughGarbage(t *testing.T) {
	require.Equal(t, "not a url", CanonicalURL("  not a url "))
	require.Equal(t, "", CanonicalURL(""))
}

// Canonicalization must be a fixed point: applying it twice changes nothing.
func TestCanonicalURLFixedPoint(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 200

	properties := gopter.NewProperties(params)
	properties.Property("canonical(canonical(u)) == canonical(u)", prop.ForAll(
		func(host, p, query, frag string) bool {
			raw := "https://" + host + ".example.org/" + p
			if query != "" {
				raw += "?q=" + query + "&utm_source=" + query
			}
			if frag != "" {
				raw += "#" + frag
			}
			once := CanonicalURL(raw)
			return CanonicalURL(once) == once
		},
		gen.AlphaString(),
		gen.AlphaString(),
		gen.AlphaString(),
		gen.AlphaString(),
	))
	properties.TestingRun(t)
}

func TestCanonicalDomain(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"https://www.example.org/x", "example.org"},
		{"https://EXAMPLE.org:8080/x", "example.org"},
		{"https://pubmed.ncbi.nlm.nih.gov/12345", "pubmed.gov"},
		{"https://data.worldbank.org/indicator", "worldbank.org"},
		{"https://stats.oecd.org/sdmx", "oecd.org"},
		{"https://en.wikipedia.org/wiki/X", "wikipedia.org"},
		{"example.org:8080", "example.org"},
		{"", ""},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, CanonicalDomain(tc.in), "input %q", tc.in)
	}
}

func TestCanonicalDomainCollapsesSubdomainsOfAliases(t *testing.T) {
	require.Equal(t, "oecd.org", CanonicalDomain("https://api.stats.oecd.org/x"))
}

func TestSameDocument(t *testing.T) {
	require.True(t, SameDocument(
		"https://example.org/report?utm_source=tw",
		"https://Example.org/report/"))
	require.False(t, SameDocument(
		"https://example.org/report",
		"https://example.org/other"))
}
