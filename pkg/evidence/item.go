// Package evidence defines the core data model of the acquisition pipeline:
// evidence items, paraphrase clusters, and the curated primary/trusted domain
// sets, plus the writers that serialize a finished run into the output bundle.
//
// Items are created by provider adapters, mutated only during enrichment
// (quote extraction, primary-source promotion, confidence recompute), and are
// immutable after gate evaluation.
package evidence

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Stance classifies an item's position relative to its cluster claim.
type Stance string

const (
	StanceSupports Stance = "supports"
	StanceDisputes Stance = "disputes"
	StanceNeutral  Stance = "neutral"
)

// FailureMode records why an item left the pipeline (or that it survived).
type FailureMode string

const (
	FailFetchBlocked     FailureMode = "fetch_blocked"
	FailParseEmpty       FailureMode = "parse_empty"
	FailDuplicate        FailureMode = "duplicate"
	FailOffTopic         FailureMode = "off_topic"
	FailContradictedDrop FailureMode = "contradicted_drop"
	FailKept             FailureMode = "kept"
)

// Item is a single unit of collected evidence.
//
// Required fields for persistence: URL, Title, Snippet, Provider,
// SourceDomain. SourceDomain always equals the canonical domain of URL; the
// pipeline enforces this at normalization time and the writer re-checks it.
type Item struct {
	ID           string `json:"id"`
	URL          string `json:"url"`
	Title        string `json:"title"`
	Snippet      string `json:"snippet"`
	Provider     string `json:"provider"`
	SourceDomain string `json:"source_domain"`

	Date      string `json:"date,omitempty"`       // ISO-8601 publication date
	Author    string `json:"author,omitempty"`
	DOI       string `json:"doi,omitempty"`
	PMID      string `json:"pmid,omitempty"`
	ArxivID   string `json:"arxiv_id,omitempty"`
	QuoteSpan string `json:"quote_span,omitempty"` // exact sentence lifted from the source

	ContentHash     string  `json:"content_hash,omitempty"`
	Reachability    float64 `json:"reachability,omitempty"`
	IsPrimarySource bool    `json:"is_primary_source,omitempty"`

	CredibilityScore float64 `json:"credibility_score"`
	RelevanceScore   float64 `json:"relevance_score"`
	Confidence       float64 `json:"confidence"`

	Stance       Stance   `json:"stance,omitempty"`
	Triangulated bool     `json:"triangulated,omitempty"`
	DisputedBy   []string `json:"disputed_by,omitempty"`
	Controversy  float64  `json:"controversy_score,omitempty"`

	CollectedAt time.Time `json:"collected_at"`

	// Metadata is the open extension map for provider-specific fields.
	// License tags live under "license".
	Metadata map[string]any `json:"metadata,omitempty"`

	// Failure is bookkeeping only; it is never serialized into the bundle.
	Failure FailureMode `json:"-"`
}

// NewItem constructs an item with a fresh UUID and collection timestamp.
// The snippet fallback chain (extracted text -> provided snippet -> title)
// is applied so persisted items never carry an empty snippet.
func NewItem(url, title, snippet, provider, domain string) *Item {
	if strings.TrimSpace(snippet) == "" {
		snippet = title
	}
	return &Item{
		ID:               uuid.New().String(),
		URL:              url,
		Title:            title,
		Snippet:          strings.TrimSpace(snippet),
		Provider:         provider,
		SourceDomain:     domain,
		CredibilityScore: 0.5,
		RelevanceScore:   0.5,
		Confidence:       0.5,
		CollectedAt:      time.Now().UTC(),
		Failure:          FailKept,
	}
}

// License returns the licensing tag attached by the provider adapter, if any.
func (it *Item) License() string {
	if it.Metadata == nil {
		return ""
	}
	if s, ok := it.Metadata["license"].(string); ok {
		return s
	}
	return ""
}

// SetLicense records the provider licensing tag in the metadata map.
func (it *Item) SetLicense(tag string) {
	if tag == "" {
		return
	}
	if it.Metadata == nil {
		it.Metadata = make(map[string]any, 1)
	}
	it.Metadata["license"] = tag
}

// SetMeta records an extension field, allocating the map on first use.
func (it *Item) SetMeta(key string, value any) {
	if it.Metadata == nil {
		it.Metadata = make(map[string]any, 2)
	}
	it.Metadata[key] = value
}

// Meta returns a string extension field, or "" when absent.
func (it *Item) Meta(key string) string {
	if it.Metadata == nil {
		return ""
	}
	if s, ok := it.Metadata[key].(string); ok {
		return s
	}
	return ""
}

// BestText returns the text used for clustering and contradiction analysis:
// the exact quote span when one was extracted, otherwise the snippet.
func (it *Item) BestText() string {
	if it.QuoteSpan != "" {
		return it.QuoteSpan
	}
	return it.Snippet
}

// Valid reports whether the item satisfies the persistence contract.
func (it *Item) Valid() bool {
	return it.URL != "" && it.Title != "" && it.Snippet != "" &&
		it.Provider != "" && it.SourceDomain != ""
}

// ClaimType categorizes what kind of assertion a cluster's claim makes.
type ClaimType string

const (
	ClaimNumericMeasure    ClaimType = "numeric_measure"
	ClaimMechanismOrTheory ClaimType = "mechanism_or_theory"
	ClaimOpinionAdvocacy   ClaimType = "opinion_advocacy"
	ClaimNewsContext       ClaimType = "news_context"
)

// Cluster groups items whose claim texts are semantically equivalent.
// A cluster is triangulated when its members span at least two distinct
// canonical domains.
type Cluster struct {
	Indices             []int     `json:"indices"`
	Domains             []string  `json:"domains"`
	RepresentativeClaim string    `json:"representative_claim"`
	ClaimType           ClaimType `json:"claim_type"`
	IsTriangulated      bool      `json:"is_triangulated"`

	// MemberIDs are the card IDs of the kept members, filled by the writer.
	// Indices address the in-memory run slice and are useless to bundle
	// consumers; MemberIDs resolve against evidence_cards.jsonl.
	MemberIDs []string `json:"member_ids"`

	Meta ClusterMeta `json:"meta"`
}

// ClusterMeta carries annotations added by the contradiction filter.
type ClusterMeta struct {
	NeedsReview       bool   `json:"needs_review,omitempty"`
	DroppedReason     string `json:"dropped_reason,omitempty"`
	PreservedInStrict bool   `json:"preserved_in_strict,omitempty"`
}

// DomainSet returns the cluster's domains as a set.
func (c *Cluster) DomainSet() map[string]struct{} {
	set := make(map[string]struct{}, len(c.Domains))
	for _, d := range c.Domains {
		set[d] = struct{}{}
	}
	return set
}

// Recompute refreshes the derived fields (Domains, IsTriangulated) from the
// member items. Items are addressed by index into the run's item slice.
func (c *Cluster) Recompute(items []*Item) {
	seen := make(map[string]struct{})
	c.Domains = c.Domains[:0]
	for _, idx := range c.Indices {
		if idx < 0 || idx >= len(items) {
			continue
		}
		d := items[idx].SourceDomain
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		c.Domains = append(c.Domains, d)
	}
	c.IsTriangulated = len(c.Domains) >= 2
}
