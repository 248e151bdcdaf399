// Package server provides the HTTP server setup and wiring.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pendergraft/verifactory/internal/auth"
	"github.com/pendergraft/verifactory/internal/config"
	"github.com/pendergraft/verifactory/internal/middleware/logging"
	"github.com/pendergraft/verifactory/internal/middleware/ratelimit"
	"github.com/pendergraft/verifactory/internal/middleware/realip"
	"github.com/pendergraft/verifactory/internal/middleware/security"
	"github.com/pendergraft/verifactory/internal/observability/metrics"
	"github.com/pendergraft/verifactory/internal/storage"
	"github.com/pendergraft/verifactory/internal/verification/transport"
)

// VerifierPrefix is the mount point of the verifier API.
const VerifierPrefix = "/api/v1/verifier"

// ReadinessCheck reports whether the server can take verification traffic.
type ReadinessCheck func(ctx context.Context) error

// Server is the HTTP server
type Server struct {
	cfg    *config.Config
	keys   storage.APIKeyStore
	svc    transport.Service
	ready  ReadinessCheck
	logger *slog.Logger
	router *chi.Mux
}

// Option configures a Server.
type Option func(*Server)

// WithReadinessCheck makes /readyz report 503 while check fails.
func WithReadinessCheck(check ReadinessCheck) Option {
	return func(s *Server) { s.ready = check }
}

// New creates a new server. keys is only consulted when API key auth is
// enabled.
func New(cfg *config.Config, keys storage.APIKeyStore, svc transport.Service, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		cfg:    cfg,
		keys:   keys,
		svc:    svc,
		logger: logger,
		router: chi.NewRouter(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware() {
	// Security middleware runs first to block malicious requests early.
	s.router.Use(realip.Middleware(realip.Config{
		TrustProxy:     s.cfg.Proxy.TrustProxy,
		TrustedProxies: s.cfg.Proxy.TrustedProxies,
	}))
	s.router.Use(security.FilterMiddleware(s.cfg.Security.FilterEnabled))
	s.router.Use(security.MaxBodySizeMiddleware(s.cfg.Security.MaxBodySizeMB))

	verifyCost := s.cfg.RateLimit.VerifyCost
	s.router.Use(ratelimit.Middleware(ratelimit.Config{
		Enabled:        s.cfg.RateLimit.Enabled,
		RequestsPerMin: s.cfg.RateLimit.RequestsPerMin,
		BurstSize:      s.cfg.RateLimit.BurstSize,
		CleanupMinutes: s.cfg.RateLimit.CleanupMinutes,
		Cost: func(r *http.Request) int {
			if isVerifyRequest(r) {
				return verifyCost
			}
			return 1
		},
	}))

	s.router.Use(middleware.RequestID)
	s.router.Use(logging.Middleware(s.logger))
	s.router.Use(metrics.Middleware)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))

	s.router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-API-Key")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	})
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/readyz", s.handleReady)
	if s.cfg.Metrics.Enabled {
		s.router.Handle("/metrics", metrics.Handler())
	}

	h := transport.NewHandler(s.svc)

	s.router.Route(VerifierPrefix, func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if s.cfg.Server.RequestTimeout > 0 {
				r.Use(withTimeout(time.Duration(s.cfg.Server.RequestTimeout) * time.Second))
			}
			h.RegisterReadRoutes(r)
		})

		r.Group(func(r chi.Router) {
			if s.cfg.Auth.Type == "api-key" {
				r.Use(auth.Middleware(s.keys, writeError))
			}
			if s.cfg.Server.VerifyTimeout > 0 {
				r.Use(withTimeout(time.Duration(s.cfg.Server.VerifyTimeout) * time.Second))
			}
			h.RegisterVerifyRoutes(r)
		})
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
				"reason": err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func isVerifyRequest(r *http.Request) bool {
	return r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, VerifierPrefix+"/")
}

// withTimeout bounds the request context. The handler reports the deadline
// itself.
func withTimeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}
