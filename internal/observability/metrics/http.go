package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

// Middleware records request counts and latency per route.
func Middleware(next http.Handler) http.Handler {
	if !enabled {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		route := routeLabel(r)
		httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.status)).Inc()
		httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(status int) {
	rw.status = status
	rw.ResponseWriter.WriteHeader(status)
}

// routeLabel prefers the matched chi pattern, which is only known once the
// router has run. Unmatched requests, including those that only matched a
// subrouter mount, fall back to normalizePath.
func routeLabel(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" && !strings.HasSuffix(pattern, "*") {
			return pattern
		}
	}
	return normalizePath(r.URL.Path)
}

// normalizePath replaces addresses, hashes and numbers in verifier paths
// with {id}:
//
//	/api/v1/verifier/contracts/0x1234... -> /api/v1/verifier/contracts/{id}
func normalizePath(path string) string {
	const prefix = "/api/v1/"
	if !strings.HasPrefix(path, prefix) {
		return path
	}

	var segments []string
	for _, seg := range strings.Split(path[len(prefix):], "/") {
		switch {
		case seg == "":
		case isLikelyID(seg):
			segments = append(segments, "{id}")
		default:
			segments = append(segments, seg)
		}
	}
	return prefix + strings.Join(segments, "/")
}

func isLikelyID(seg string) bool {
	hex, prefixed := strings.CutPrefix(strings.ToLower(seg), "0x")
	switch {
	case prefixed && len(hex) == 40 && isHex(hex):
		return true // address
	case len(hex) == 64 && isHex(hex):
		return true // hash
	default:
		return isNumeric(seg)
	}
}

func isHex(s string) bool {
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return s != ""
}

func isNumeric(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return s != ""
}
