package evidence

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/gowebpki/jcs"
)

// Writer serializes a finished run into the output bundle. All files are
// written tmp-file-then-rename so a crashed run never leaves a torn artifact.
type Writer struct {
	Dir string
}

// NewWriter creates a bundle writer rooted at dir, creating it if needed.
func NewWriter(dir string) (*Writer, error) {
	if dir == "" {
		return nil, fmt.Errorf("output dir is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &Writer{Dir: dir}, nil
}

// WriteCards writes evidence_cards.jsonl: UTF-8, LF line endings, one object
// per line, ordered by descending confidence. Every card is validated against
// the embedded card schema; a violation aborts the write.
func (w *Writer) WriteCards(items []*Item) error {
	ranked := make([]*Item, 0, len(items))
	for _, it := range items {
		if it.Failure == FailKept {
			ranked = append(ranked, it)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Confidence > ranked[j].Confidence
	})

	var buf bytes.Buffer
	for _, it := range ranked {
		if !it.Valid() {
			return fmt.Errorf("item %s violates persistence contract (empty required field)", it.ID)
		}
		line, err := json.Marshal(it)
		if err != nil {
			return fmt.Errorf("marshal card %s: %w", it.ID, err)
		}
		if err := validateCard(line); err != nil {
			return fmt.Errorf("card %s failed schema validation: %w", it.ID, err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return w.atomicWrite("evidence_cards.jsonl", buf.Bytes())
}

// WriteMetrics writes metrics.json after validating it against the embedded
// metrics schema.
func (w *Writer) WriteMetrics(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}
	if err := validateMetrics(data); err != nil {
		return fmt.Errorf("metrics failed schema validation: %w", err)
	}
	return w.atomicWrite("metrics.json", data)
}

// WriteClusters writes clusters.json. Cluster membership is persisted as
// card IDs resolved against items, since raw indices address a slice that
// never reaches the bundle.
func (w *Writer) WriteClusters(clusters []*Cluster, items []*Item) error {
	if clusters == nil {
		clusters = []*Cluster{}
	}
	for _, cl := range clusters {
		cl.MemberIDs = make([]string, 0, len(cl.Indices))
		for _, idx := range cl.Indices {
			if idx < 0 || idx >= len(items) {
				continue
			}
			if items[idx].Failure != FailKept {
				continue
			}
			cl.MemberIDs = append(cl.MemberIDs, items[idx].ID)
		}
	}
	data, err := json.MarshalIndent(clusters, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal clusters: %w", err)
	}
	if err := validateClusters(data); err != nil {
		return fmt.Errorf("clusters failed schema validation: %w", err)
	}
	return w.atomicWrite("clusters.json", data)
}

// WriteProviders writes the per-provider health snapshot (providers.json).
func (w *Writer) WriteProviders(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal provider snapshot: %w", err)
	}
	return w.atomicWrite("providers.json", data)
}

func (w *Writer) atomicWrite(name string, data []byte) error {
	tmp, err := os.CreateTemp(w.Dir, "."+name+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", name, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Rename(tmpName, filepath.Join(w.Dir, name)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename %s: %w", name, err)
	}
	return nil
}

// Fingerprint computes the run fingerprint: SHA-256 over the JCS-canonical
// JSON encoding of the sorted (canonical URL, content hash) multiset. Item IDs
// change between runs but the fingerprint does not, which is what makes the
// warm-cache idempotence property checkable.
func Fingerprint(items []*Item) (string, error) {
	type pair struct {
		URL  string `json:"url"`
		Hash string `json:"hash"`
	}
	pairs := make([]pair, 0, len(items))
	for _, it := range items {
		if it.Failure != FailKept {
			continue
		}
		pairs = append(pairs, pair{URL: it.URL, Hash: it.ContentHash})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].URL != pairs[j].URL {
			return pairs[i].URL < pairs[j].URL
		}
		return pairs[i].Hash < pairs[j].Hash
	})
	raw, err := json.Marshal(pairs)
	if err != nil {
		return "", err
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize fingerprint: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}
