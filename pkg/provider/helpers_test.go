package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/veracity-labs/triangulate/pkg/evidence"
)

func TestClampLimit(t *testing.T) {
	require.Equal(t, 10, clampLimit(0, 10))
	require.Equal(t, 10, clampLimit(-3, 10))
	require.Equal(t, 7, clampLimit(7, 10))
	require.Equal(t, 50, clampLimit(200, 10))
}

func TestFlattenDescription(t *testing.T) {
	require.Equal(t, "plain", flattenDescription("plain"))
	require.Equal(t, "first", flattenDescription([]any{"first", "second"}))
	require.Empty(t, flattenDescription([]any{}))
	require.Empty(t, flattenDescription(42))
	require.Empty(t, flattenDescription(nil))
}

func TestReconstructAbstract(t *testing.T) {
	index := map[string][]int{
		"tourism":   {0},
		"recovered": {1},
		"in":        {2, 4},
		"2024":      {3},
		"europe":    {5},
	}
	require.Equal(t, "tourism recovered in 2024 in europe", reconstructAbstract(index))
	require.Empty(t, reconstructAbstract(nil))
}

func TestDatePartsToISO(t *testing.T) {
	require.Empty(t, datePartsToISO(nil))
	require.Equal(t, "2024", datePartsToISO([]int{2024}))
	require.Equal(t, "2024-06-01", datePartsToISO([]int{2024, 6}))
	require.Equal(t, "2024-06-15", datePartsToISO([]int{2024, 6, 15}))
}

func TestFilingURL(t *testing.T) {
	got := filingURL("320193", "0000320193-24-000123", "aapl-20240928.htm")
	require.Equal(t,
		"https://www.sec.gov/Archives/edgar/data/320193/000032019324000123/aapl-20240928.htm",
		got)
}

func TestDescribeTags(t *testing.T) {
	got := describeTags(map[string]string{
		"tourism":       "museum",
		"opening_hours": "Mo-Su 09:00-18:00",
		"name":          "Pergamon",
	})
	require.Equal(t, "tourism=museum, opening_hours=Mo-Su 09:00-18:00", got)

	require.Equal(t, "Pergamon", describeTags(map[string]string{"name": "Pergamon"}))
}

func TestRegexEscape(t *testing.T) {
	require.Equal(t, `st\. peter \(old\)`, regexEscape("st. peter (old)"))
	require.Equal(t, "plain", regexEscape("plain"))
}

func TestQueryTermsAndMatches(t *testing.T) {
	terms := queryTerms("GDP of EU tourism sector")
	require.Equal(t, []string{"gdp", "tourism", "sector"}, terms)

	require.True(t, matchesTerms("Tourism sector output", terms))
	require.False(t, matchesTerms("Unemployment rate", terms))
	require.False(t, matchesTerms("anything", nil))
}

func TestGdeltDate(t *testing.T) {
	require.Equal(t, "2024-06-15", gdeltDate("20240615T120000Z"))
	require.Equal(t, "2024-06-15", gdeltDate("2024-06-15"))
	require.Empty(t, gdeltDate("garbage"))
}

func TestFirstAuthor(t *testing.T) {
	require.Equal(t, "Smith J", firstAuthor("Smith J, Jones K, Lee P"))
	require.Equal(t, "Smith J", firstAuthor("Smith J"))
}

type namedProvider struct{ name string }

func (p *namedProvider) Descriptor() Descriptor { return Descriptor{Name: p.name} }
func (p *namedProvider) Search(context.Context, string, int) ([]*evidence.Item, error) {
	return nil, nil
}

func TestRegistryOrderAndReplacement(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&namedProvider{name: "alpha"})
	reg.Register(&namedProvider{name: "beta"})

	replacement := &namedProvider{name: "alpha"}
	reg.Register(replacement)

	require.Equal(t, []string{"alpha", "beta"}, reg.Names())
	got, ok := reg.Get("alpha")
	require.True(t, ok)
	require.Same(t, replacement, got)

	_, ok = reg.Get("missing")
	require.False(t, ok)
}
