// Package normalize canonicalizes URLs and domains and turns fetched
// documents (HTML, PDF) into clean text, quotes, and bibliographic metadata.
package normalize

import (
	"net/url"
	"path"
	"regexp"
	"strings"
)

// volatileParams never contribute to document identity and are dropped during
// canonicalization: trackers, signed-URL material, object-store versioning.
var volatileParams = regexp.MustCompile(`(?i)^(utm_[a-z]+|fbclid|gclid|msclkid|mc_cid|mc_eid|ref|ref_src|versionid|x-amz-[a-z-]+|awsaccesskeyid|signature|expires)$`)

// domainAliases collapses mirrors of the same authority onto one canonical
// label. Subdomains of a listed suffix map to the same label.
var domainAliases = map[string]string{
	"e-unwto.org":               "unwto.org",
	"webunwto.s3.amazonaws.com": "unwto.org",
	"pubmed.ncbi.nlm.nih.gov":   "pubmed.gov",
	"ncbi.nlm.nih.gov":          "pubmed.gov",
	"data.worldbank.org":        "worldbank.org",
	"api.worldbank.org":         "worldbank.org",
	"stats.oecd.org":            "oecd.org",
	"sdmx.oecd.org":             "oecd.org",
	"data.oecd.org":             "oecd.org",
	"dataservices.imf.org":      "imf.org",
	"data.imf.org":              "imf.org",
	"eurostat.ec.europa.eu":     "ec.europa.eu",
	"dx.doi.org":                "doi.org",
	"en.wikipedia.org":          "wikipedia.org",
	"wikidata.org":              "wikidata.org",
	"web.archive.org":           "archive.org",
	"export.arxiv.org":          "arxiv.org",
}

// CanonicalURL normalizes a URL so that two references to the same document
// compare equal: lowercase scheme and host, fragment stripped, volatile query
// parameters dropped, dot segments collapsed, trailing slash normalized.
// Canonicalizing an already-canonical URL is a fixed point.
func CanonicalURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return strings.TrimSpace(raw)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""

	// Default ports add nothing.
	if (u.Scheme == "http" && strings.HasSuffix(u.Host, ":80")) ||
		(u.Scheme == "https" && strings.HasSuffix(u.Host, ":443")) {
		u.Host = u.Host[:strings.LastIndex(u.Host, ":")]
	}

	// Collapse ../ and ./ segments.
	if u.Path != "" {
		cleaned := path.Clean(u.Path)
		if cleaned == "." {
			cleaned = "/"
		}
		if strings.HasSuffix(u.Path, "/") && cleaned != "/" {
			cleaned += "/"
		}
		u.Path = cleaned
	}
	// Trailing slash is meaningless except at the root.
	if u.Path != "/" {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}
	if u.Path == "" {
		u.Path = "/"
	}

	if u.RawQuery != "" {
		q := u.Query()
		for name := range q {
			if volatileParams.MatchString(name) {
				delete(q, name)
			}
		}
		u.RawQuery = q.Encode() // Encode sorts keys, making order canonical
	}

	return u.String()
}

// CanonicalDomain normalizes a URL's host to its canonical authority label:
// lowercase, port stripped, www. removed, alias table applied.
func CanonicalDomain(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	host := ""
	if err == nil && u.Host != "" {
		host = u.Hostname()
	} else {
		// Accept a bare host too.
		host = strings.TrimSpace(raw)
		if i := strings.IndexByte(host, ':'); i >= 0 {
			host = host[:i]
		}
	}
	host = strings.ToLower(host)
	host = strings.TrimPrefix(host, "www.")
	if host == "" {
		return ""
	}

	// Exact alias, then walk parent suffixes so any subdomain of a listed
	// authority collapses to the same label.
	if label, ok := domainAliases[host]; ok {
		return label
	}
	parts := strings.Split(host, ".")
	for i := 1; i < len(parts)-1; i++ {
		suffix := strings.Join(parts[i:], ".")
		if label, ok := domainAliases[suffix]; ok {
			return label
		}
	}
	return host
}

// SameDocument reports whether two URLs canonicalize to the same document.
func SameDocument(a, b string) bool {
	return CanonicalURL(a) == CanonicalURL(b)
}
