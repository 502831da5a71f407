// Package artifacts mirrors finished evidence bundles to durable storage,
// keyed by run fingerprint so identical runs overwrite rather than pile up.
package artifacts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Mirror persists bundle files under a run fingerprint.
type Mirror interface {
	// Put stores one bundle file. Name is the bare filename
	// (evidence_cards.jsonl, metrics.json, ...).
	Put(ctx context.Context, fingerprint, name string, data []byte) error
}

// FileMirror copies bundles into a local directory tree:
// <base>/bundles/<fingerprint>/<name>.
type FileMirror struct {
	base string
}

// NewFileMirror creates the mirror root eagerly so a bad path fails at
// startup.
func NewFileMirror(base string) (*FileMirror, error) {
	if err := os.MkdirAll(filepath.Join(base, "bundles"), 0o755); err != nil {
		return nil, fmt.Errorf("create mirror root: %w", err)
	}
	return &FileMirror{base: base}, nil
}

// Put writes the file atomically under the fingerprint directory.
func (m *FileMirror) Put(_ context.Context, fingerprint, name string, data []byte) error {
	dir := filepath.Join(m.base, "bundles", sanitize(fingerprint))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create bundle dir: %w", err)
	}
	path := filepath.Join(dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write bundle file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("commit bundle file: %w", err)
	}
	return nil
}

// sanitize strips the hash-algorithm prefix so fingerprints make clean
// directory names.
func sanitize(fingerprint string) string {
	return strings.ReplaceAll(fingerprint, ":", "-")
}

// contentType guesses the MIME type for a bundle filename.
func contentType(name string) string {
	switch {
	case strings.HasSuffix(name, ".jsonl"):
		return "application/x-ndjson"
	case strings.HasSuffix(name, ".json"):
		return "application/json"
	default:
		return "application/octet-stream"
	}
}
