// Package auth authenticates API requests with keys issued by the storage
// layer.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/pendergraft/verifactory/internal/storage"
)

type contextKey struct{}

// ErrorWriter writes an error response.
type ErrorWriter func(w http.ResponseWriter, status int, code, message string)

// KeyFromContext returns the API key that authenticated the request, or nil.
func KeyFromContext(ctx context.Context) *storage.APIKey {
	if key, ok := ctx.Value(contextKey{}).(*storage.APIKey); ok {
		return key
	}
	return nil
}

// keyFromRequest reads the key from X-API-Key or a bearer token.
func keyFromRequest(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

// Middleware rejects requests without a valid API key.
func Middleware(store storage.APIKeyStore, writeError ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := keyFromRequest(r)
			if raw == "" {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "API key required")
				return
			}

			key, err := store.ValidateAPIKey(r.Context(), raw)
			if err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid API key")
				} else {
					writeError(w, http.StatusServiceUnavailable, "AUTH_UNAVAILABLE", "Could not validate API key")
				}
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKey{}, key)))
		})
	}
}
