package httpx

import (
	"net/url"
	"regexp"
	"strings"
)

// Query parameters and header names whose values must never reach a log line.
var sensitiveParam = regexp.MustCompile(`(?i)^(api[_-]?key|token|key|signature|secret|password|authorization|apikey|access[_-]?token)$`)

// Known API-key shapes that occasionally appear embedded in path segments or
// opaque query values.
var keyLikeValue = regexp.MustCompile(`(?i)\b(sk-[A-Za-z0-9]{16,}|AKIA[0-9A-Z]{16}|AIza[0-9A-Za-z_-]{35}|ghp_[A-Za-z0-9]{36})\b`)

const mask = "REDACTED"

// RedactURL masks sensitive query parameter values and key-like substrings in
// a URL before it is logged. The input is returned unchanged structurally:
// only values are replaced.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return keyLikeValue.ReplaceAllString(raw, mask)
	}
	q := u.Query()
	changed := false
	for name, vals := range q {
		if sensitiveParam.MatchString(name) {
			for i := range vals {
				vals[i] = mask
			}
			q[name] = vals
			changed = true
		}
	}
	if changed {
		u.RawQuery = q.Encode()
	}
	return keyLikeValue.ReplaceAllString(u.String(), mask)
}

// RedactHeader masks a header value when the header name is sensitive.
func RedactHeader(name, value string) string {
	if sensitiveParam.MatchString(strings.TrimSpace(name)) {
		return mask
	}
	return keyLikeValue.ReplaceAllString(value, mask)
}
