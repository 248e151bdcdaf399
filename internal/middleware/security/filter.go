// Package security provides request filtering and body size limits.
package security

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
)

// exemptPaths skip filtering
var exemptPaths = map[string]bool{
	"/health":  true,
	"/healthz": true,
	"/readyz":  true,
}

// scannerPrefixes are path prefixes of vulnerability scanners. Nothing
// under them is ever served.
var scannerPrefixes = []string{
	"/.php",
	"/wp-admin",
	"/wp-includes",
	"/wp-content",
	"/wp-login",
	"/.git/",
	"/.env",
	"/web-inf/",
	"/cgi-bin/",
	"/admin/",
	"/phpmyadmin",
	"/phpinfo",
	"/shell",
	"/config.",
	"/.htaccess",
	"/.htpasswd",
	"/server-status",
	"/xmlrpc.php",
}

// traversalPatterns indicate path traversal or null byte injection.
var traversalPatterns = []string{
	"../",
	"..%2f",
	"..%5c",
	"%2e%2e/",
	"%00",
	"\x00",
}

// Blocked reports whether r looks like scanner or attack traffic. The path
// is checked as received and once more after percent-decoding.
func Blocked(r *http.Request) bool {
	if exemptPaths[r.URL.Path] {
		return false
	}

	path := strings.ToLower(r.URL.Path)
	for _, prefix := range scannerPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}

	candidates := []string{path, strings.ToLower(r.URL.EscapedPath())}
	if decoded, err := url.PathUnescape(r.URL.EscapedPath()); err == nil {
		candidates = append(candidates, strings.ToLower(decoded))
	}
	for _, c := range candidates {
		for _, pattern := range traversalPatterns {
			if strings.Contains(c, pattern) {
				return true
			}
		}
	}
	return false
}

// FilterMiddleware rejects requests for which Blocked is true.
func FilterMiddleware(enabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if Blocked(r) {
				writeError(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid request")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}
