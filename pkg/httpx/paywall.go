package httpx

import (
	"net/http"
	"strings"
)

// Path suffixes that are login or subscription walls, not content. Rejected
// before any request is issued.
var gatedPathSuffixes = []string{
	"/login", "/signin", "/sign-in", "/subscribe", "/subscription",
	"/register", "/paywall", "/account/login", "/auth/login",
}

// Body fragments that mark a page as a subscription or login wall even when
// it arrives with status 200.
var paywallSignals = []string{
	"subscribe to continue", "subscription required", "to continue reading",
	"create a free account", "sign in to read", "log in to continue",
	"this content is for subscribers",
}

// GatedPath reports whether a URL path is a known login/subscribe suffix.
func GatedPath(path string) bool {
	p := strings.ToLower(strings.TrimSuffix(path, "/"))
	for _, suffix := range gatedPathSuffixes {
		if strings.HasSuffix(p, suffix) {
			return true
		}
	}
	return false
}

// CloudflareInterstitial detects a "Just a moment" challenge page by its
// header and body signature. Such pages must never be treated as content.
func CloudflareInterstitial(status int, header http.Header, body []byte) bool {
	if status != http.StatusForbidden && status != http.StatusServiceUnavailable && status != 429 {
		if header.Get("cf-mitigated") == "" {
			return false
		}
	}
	if header.Get("cf-mitigated") == "challenge" {
		return true
	}
	if header.Get("Server") != "cloudflare" {
		return false
	}
	head := body
	if len(head) > 4096 {
		head = head[:4096]
	}
	s := strings.ToLower(string(head))
	return strings.Contains(s, "just a moment") || strings.Contains(s, "cf-challenge") ||
		strings.Contains(s, "checking your browser")
}

// PaywalledBody reports whether an HTML body carries subscription or
// login-wall signals.
func PaywalledBody(body []byte) bool {
	head := body
	if len(head) > 32<<10 {
		head = head[:32<<10]
	}
	s := strings.ToLower(string(head))
	for _, sig := range paywallSignals {
		if strings.Contains(s, sig) {
			return true
		}
	}
	return false
}
