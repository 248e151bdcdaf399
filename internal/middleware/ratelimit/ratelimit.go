// Package ratelimit provides per-client token bucket rate limiting. Requests
// can weigh more than one token so that compiling endpoints drain a client's
// budget faster than cheap reads.
package ratelimit

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	"github.com/pendergraft/verifactory/internal/middleware/realip"
)

// maxClients bounds the number of tracked clients.
const maxClients = 100_000

// Config holds the configuration for rate limiting
type Config struct {
	Enabled bool
	// RequestsPerMin is the number of tokens refilled per minute per client
	RequestsPerMin int
	// BurstSize is the bucket capacity
	BurstSize int
	// CleanupMinutes is how long an idle client is remembered
	CleanupMinutes int
	// Cost returns the number of tokens r consumes. Nil means one token
	// per request.
	Cost func(r *http.Request) int
}

// RateLimiter manages per-client rate limiters
type RateLimiter struct {
	mu       sync.Mutex
	limiters *expirable.LRU[string, *rate.Limiter]
	rate     rate.Limit
	burst    int
	cost     func(r *http.Request) int
}

// New creates a new RateLimiter with the given configuration
func New(cfg Config) *RateLimiter {
	idle := time.Duration(cfg.CleanupMinutes) * time.Minute
	if idle <= 0 {
		idle = 10 * time.Minute
	}
	return &RateLimiter{
		limiters: expirable.NewLRU[string, *rate.Limiter](maxClients, nil, idle),
		rate:     rate.Limit(float64(cfg.RequestsPerMin) / 60.0),
		burst:    cfg.BurstSize,
		cost:     cfg.Cost,
	}
}

// limiter returns the bucket of client, refreshing its idle deadline.
func (rl *RateLimiter) limiter(client string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	l, ok := rl.limiters.Get(client)
	if !ok {
		l = rate.NewLimiter(rl.rate, rl.burst)
	}
	rl.limiters.Add(client, l)
	return l
}

// Tracked returns the number of clients currently remembered.
func (rl *RateLimiter) Tracked() int {
	return rl.limiters.Len()
}

// Allow reports whether client may spend n tokens now. n is capped at the
// burst size so that a single expensive request can always succeed on a
// full bucket.
func (rl *RateLimiter) Allow(client string, n int) bool {
	if n < 1 {
		n = 1
	}
	if n > rl.burst {
		n = rl.burst
	}
	return rl.limiter(client).AllowN(time.Now(), n)
}

// exemptPaths are never rate limited
var exemptPaths = map[string]bool{
	"/health":  true,
	"/healthz": true,
	"/readyz":  true,
	"/metrics": true,
}

// Middleware returns an HTTP middleware that rate limits requests per client
func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if exemptPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			n := 1
			if rl.cost != nil {
				n = rl.cost(r)
			}
			if !rl.Allow(realip.GetClientIP(r), n) {
				retry := 60
				if rl.rate > 0 {
					retry = int(float64(n)/float64(rl.rate)) + 1
				}
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]any{
					"error": map[string]any{
						"code":    "RATE_LIMIT_EXCEEDED",
						"message": "Too many requests. Please try again later.",
					},
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Middleware returns a rate limiting middleware with the given configuration.
func Middleware(cfg Config) func(http.Handler) http.Handler {
	if !cfg.Enabled {
		return func(next http.Handler) http.Handler {
			return next
		}
	}
	return New(cfg).Middleware()
}
