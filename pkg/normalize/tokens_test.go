package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestISODate(t *testing.T) {
	cases := []struct{ in, want string }{
		{"2024-06-01", "2024-06-01"},
		{"2024-06-01T12:30:00Z", "2024-06-01"},
		{"June 1, 2024", "2024-06-01"},
		{"1 June 2024", "2024-06-01"},
		{"2024", "2024"},
		{"not a date", ""},
		{"", ""},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, ISODate(tc.in), "input %q", tc.in)
	}
}

func TestHasNumericToken(t *testing.T) {
	require.True(t, HasNumericToken("arrivals grew 12% in 2024"))
	require.True(t, HasNumericToken("revenue for Q3 2025 beat estimates"))
	require.True(t, HasNumericToken("the market is worth 4 billion"))
	require.False(t, HasNumericToken("a qualitative discussion of trends"))
	require.False(t, HasNumericToken("chapter 12 of the handbook")) // bare number, no unit
}

func TestNumericTokensNormalized(t *testing.T) {
	toks := NumericTokens("growth of 12.5 % during 2024 and Q1 2025")
	require.Contains(t, toks, "12.5%")
	require.Contains(t, toks, "2024")
	require.Contains(t, toks, "q12025")
}

func TestSharedNumericTokens(t *testing.T) {
	n := SharedNumericTokens(
		"arrivals grew 12% in 2024",
		"visitor numbers rose 12% during 2024",
	)
	require.Equal(t, 2, n)

	require.Zero(t, SharedNumericTokens("grew 12% in 2024", "no figures here"))
}

func TestMagnitudes(t *testing.T) {
	vals := Magnitudes("the market hit 4.5 billion after growing 12 percent")
	require.Contains(t, vals, 4.5e9)
	require.Contains(t, vals, 12.0)
}

func TestMagnitudesSkipsYears(t *testing.T) {
	vals := Magnitudes("in 2024 the total reached 300 million")
	require.NotContains(t, vals, 2024.0)
	require.Contains(t, vals, 3e8)
}

func TestRecencyScore(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	require.Equal(t, 1.0, RecencyScore("2026-07-25", now))
	require.Equal(t, 0.8, RecencyScore("2026-06-01", now))
	require.Equal(t, 0.2, RecencyScore("2020-01-01", now))
	require.Equal(t, 0.5, RecencyScore("", now))
	require.Equal(t, 0.5, RecencyScore("garbage", now))
}
