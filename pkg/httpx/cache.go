package httpx

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// maxAgeCap bounds how long a Cache-Control max-age is honored without
// revalidation.
const maxAgeCap = 30 * time.Minute

// maxTextEntry caps the size of cached HTML/JSON bodies.
const maxTextEntry = 2 << 20

// DiskCache is the on-disk response cache. Entries are keyed by
// SHA-256(method + url); metadata lives in a JSON sidecar and bodies in a
// subdirectory sharded by the first two hex characters of the hash. Writes
// are tmp-file + rename.
type DiskCache struct {
	dir string
	ttl time.Duration
}

// Entry is the sidecar metadata for one cached response.
type Entry struct {
	URL          string    `json:"url"`
	Status       int       `json:"status"`
	ContentType  string    `json:"content_type,omitempty"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	MaxAge       int       `json:"max_age,omitempty"` // seconds, already capped
	StoredAt     time.Time `json:"stored_at"`
}

// NewDiskCache opens (creating if needed) a cache rooted at dir.
func NewDiskCache(dir string, ttl time.Duration) (*DiskCache, error) {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	if err := os.MkdirAll(filepath.Join(dir, "bodies"), 0o755); err != nil {
		return nil, err
	}
	return &DiskCache{dir: dir, ttl: ttl}, nil
}

func cacheKey(method, url string) string {
	sum := sha256.Sum256([]byte(method + " " + url))
	return hex.EncodeToString(sum[:])
}

func (c *DiskCache) metaPath(key string) string {
	return filepath.Join(c.dir, key+".meta.json")
}

func (c *DiskCache) bodyPath(key string) string {
	return filepath.Join(c.dir, "bodies", key[:2], key)
}

// Lookup returns the cached entry and body for a URL, if present and within
// the cache TTL. fresh reports whether the entry may be served without
// revalidation.
func (c *DiskCache) Lookup(method, url string) (entry *Entry, body []byte, fresh bool) {
	key := cacheKey(method, url)
	raw, err := os.ReadFile(c.metaPath(key))
	if err != nil {
		return nil, nil, false
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, nil, false
	}
	age := time.Since(e.StoredAt)
	if age > c.ttl {
		return nil, nil, false
	}
	body, err = os.ReadFile(c.bodyPath(key))
	if err != nil {
		return nil, nil, false
	}
	maxAge := time.Duration(e.MaxAge) * time.Second
	if maxAge > maxAgeCap {
		maxAge = maxAgeCap
	}
	return &e, body, maxAge > 0 && age < maxAge
}

// Store writes a response into the cache. Text bodies above the entry size
// cap are silently skipped.
func (c *DiskCache) Store(method, url string, status int, header http.Header, body []byte, binary bool) {
	if !binary && len(body) > maxTextEntry {
		return
	}
	key := cacheKey(method, url)
	e := Entry{
		URL:          url,
		Status:       status,
		ContentType:  header.Get("Content-Type"),
		ETag:         header.Get("ETag"),
		LastModified: header.Get("Last-Modified"),
		MaxAge:       parseMaxAge(header.Get("Cache-Control")),
		StoredAt:     time.Now(),
	}
	if err := os.MkdirAll(filepath.Dir(c.bodyPath(key)), 0o755); err != nil {
		return
	}
	if !atomicWriteFile(c.bodyPath(key), body) {
		return
	}
	meta, err := json.Marshal(&e)
	if err != nil {
		return
	}
	atomicWriteFile(c.metaPath(key), meta)
}

// Refresh bumps the stored-at timestamp after a 304 revalidation.
func (c *DiskCache) Refresh(method, url string) {
	key := cacheKey(method, url)
	raw, err := os.ReadFile(c.metaPath(key))
	if err != nil {
		return
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return
	}
	e.StoredAt = time.Now()
	if meta, err := json.Marshal(&e); err == nil {
		atomicWriteFile(c.metaPath(key), meta)
	}
}

func atomicWriteFile(path string, data []byte) bool {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return false
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return false
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return false
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return false
	}
	return true
}

// parseMaxAge extracts max-age seconds from a Cache-Control value, capped.
func parseMaxAge(cc string) int {
	for _, part := range strings.Split(cc, ",") {
		part = strings.TrimSpace(strings.ToLower(part))
		if v, ok := strings.CutPrefix(part, "max-age="); ok {
			if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
				if capped := int(maxAgeCap / time.Second); secs > capped {
					return capped
				}
				return secs
			}
		}
	}
	return 0
}
