package dedupe

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/veracity-labs/triangulate/pkg/evidence"
)

func item(url, title, snippet string) *evidence.Item {
	return evidence.NewItem(url, title, snippet, "test", "example.org")
}

func TestRunKeepsDistinctItems(t *testing.T) {
	items := []*evidence.Item{
		item("https://example.org/a", "Solar capacity doubled in 2024", "Installed capacity reached 450 GW worldwide."),
		item("https://example.org/b", "Wind power costs fall", "Offshore wind prices dropped 12 percent year over year."),
	}
	res := New().Run(items)

	require.Len(t, res.Kept, 2)
	require.Zero(t, res.URLDups+res.ContentDups+res.NearDups)
}

func TestRunCollapsesEqualURLs(t *testing.T) {
	a := item("https://example.org/report", "Report", "First sighting of the report.")
	b := item("https://example.org/report", "Report", "Second sighting, different snippet text entirely.")
	res := New().Run([]*evidence.Item{a, b})

	require.Len(t, res.Kept, 1)
	require.Equal(t, 1, res.URLDups)
	require.Equal(t, evidence.FailDuplicate, b.Failure)
}

// Two items sharing a canonical URL must never both survive, whatever else
// differs about them.
func TestEqualURLNeverBothKept(t *testing.T) {
	for i := 0; i < 50; i++ {
		a := item("https://example.org/doc", fmt.Sprintf("Title variant %d", i), fmt.Sprintf("Snippet body %d with words", i*7))
		b := item("https://example.org/doc", fmt.Sprintf("Other title %d", i), fmt.Sprintf("Unrelated body %d entirely", i*13))
		res := New().Run([]*evidence.Item{a, b})
		require.Len(t, res.Kept, 1, "iteration %d", i)
	}
}

func TestRunCollapsesEqualContent(t *testing.T) {
	a := item("https://example.org/one", "GDP grew 2.1 percent", "The economy expanded by 2.1 percent in the final quarter.")
	b := item("https://mirror.example.net/two", "GDP grew 2.1 percent", "The economy   expanded by 2.1 PERCENT in the final quarter.")
	b.SourceDomain = "mirror.example.net"
	res := New().Run([]*evidence.Item{a, b})

	require.Len(t, res.Kept, 1)
	require.Equal(t, 1, res.ContentDups)
}

func TestRunCollapsesNearDuplicates(t *testing.T) {
	long := "The international energy agency reported that global solar installations " +
		"reached a record 450 gigawatts in 2024, driven primarily by utility scale " +
		"deployments across asia and sustained policy support in europe and north america."
	a := item("https://example.org/x", "Solar record", long)
	b := item("https://syndicated.example.com/y", "Solar record:", long)
	b.SourceDomain = "syndicated.example.com"
	res := New().Run([]*evidence.Item{a, b})

	require.Len(t, res.Kept, 1)
	require.Equal(t, 1, res.NearDups)
}

func TestBetterPrefersCredibility(t *testing.T) {
	low := item("https://example.org/dup", "Same", "Same text")
	low.CredibilityScore = 0.3
	high := item("https://example.org/dup", "Same", "Same text")
	high.CredibilityScore = 0.9

	res := New().Run([]*evidence.Item{low, high})
	require.Len(t, res.Kept, 1)
	require.Equal(t, high, res.Kept[0])
	require.Equal(t, evidence.FailDuplicate, low.Failure)
}

func TestBetterPrefersEarlierOnTie(t *testing.T) {
	early := item("https://example.org/dup", "Same", "Same text")
	early.CollectedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	late := item("https://example.org/dup", "Same", "Same text")
	late.CollectedAt = time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)

	res := New().Run([]*evidence.Item{late, early})
	require.Equal(t, early, res.Kept[0])
}

func TestDuplicateMergesIdentifiers(t *testing.T) {
	keep := item("https://example.org/dup", "Paper", "Findings text")
	keep.CredibilityScore = 0.9
	drop := item("https://example.org/dup", "Paper", "Findings text")
	drop.DOI = "10.1000/xyz"
	drop.Date = "2024-06-01"

	res := New().Run([]*evidence.Item{keep, drop})
	require.Equal(t, "10.1000/xyz", res.Kept[0].DOI)
	require.Equal(t, "2024-06-01", res.Kept[0].Date)
}

func TestContentHashNormalizesWhitespaceAndCase(t *testing.T) {
	a := item("https://example.org/1", "Title Here", "Body   text")
	b := item("https://example.org/2", "title here", "body text")
	require.Equal(t, ContentHash(a), ContentHash(b))
}

func TestContentHashFoldsCompatibilityForms(t *testing.T) {
	a := item("https://example.org/1", "Ｔｉｔｌｅ", "ﬁgure 12") // fullwidth, ligature
	b := item("https://example.org/2", "Title", "figure 12")
	require.Equal(t, ContentHash(a), ContentHash(b))
}

func TestMinhashEstimateBounds(t *testing.T) {
	s1 := minhash(shingles("global solar installations reached a record in twenty twenty four"))
	s2 := minhash(shingles("global solar installations reached a record in twenty twenty four"))
	require.Equal(t, 1.0, estimate(s1, s2))

	s3 := minhash(shingles("completely unrelated text about deep sea fishing regulations"))
	require.Less(t, estimate(s1, s3), 0.3)
}
