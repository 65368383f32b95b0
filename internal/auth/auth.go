// Package auth guards the `tsk serve` HTTP API: timing-safe API key
// comparison and per-client rate limiting, with a lockout for clients
// that keep failing authentication.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// ValidateKey compares a provided API key against the expected one in
// constant time. An empty expected key never matches.
func ValidateKey(provided, expected string) bool {
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) == 1
}

// ClientIP returns the caller's address for rate-limit bucketing. The
// first X-Forwarded-For hop wins when a proxy sits in front.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	host := r.RemoteAddr
	if i := strings.LastIndex(host, ":"); i > 0 {
		host = host[:i]
	}
	return host
}
