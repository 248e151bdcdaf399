package ratelimit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func send(h http.Handler, method, path, remote string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = remote
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRateLimiter_AllowsBurst(t *testing.T) {
	rl := New(Config{Enabled: true, RequestsPerMin: 60, BurstSize: 5})
	handler := rl.Middleware()(okHandler())

	for i := 0; i < 5; i++ {
		rr := send(handler, http.MethodGet, "/api/v1/verifier/solidity/versions", "192.168.1.100:12345")
		assert.Equal(t, http.StatusOK, rr.Code, "request %d", i+1)
	}
}

func TestRateLimiter_BlocksExcessRequests(t *testing.T) {
	rl := New(Config{Enabled: true, RequestsPerMin: 60, BurstSize: 2})
	handler := rl.Middleware()(okHandler())

	for i := 0; i < 2; i++ {
		send(handler, http.MethodGet, "/api/v1/verifier/contracts", "192.168.1.100:12345")
	}
	rr := send(handler, http.MethodGet, "/api/v1/verifier/contracts", "192.168.1.100:12345")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))

	var response map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
	errObj, ok := response["error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", errObj["code"])
}

func TestRateLimiter_SeparateLimitsPerClient(t *testing.T) {
	rl := New(Config{Enabled: true, RequestsPerMin: 60, BurstSize: 1})
	handler := rl.Middleware()(okHandler())

	assert.Equal(t, http.StatusOK, send(handler, http.MethodGet, "/x", "10.0.0.1:1").Code)
	assert.Equal(t, http.StatusTooManyRequests, send(handler, http.MethodGet, "/x", "10.0.0.1:1").Code)
	assert.Equal(t, http.StatusOK, send(handler, http.MethodGet, "/x", "10.0.0.2:1").Code)
	assert.Equal(t, 2, rl.Tracked())
}

func TestRateLimiter_WeightedCost(t *testing.T) {
	rl := New(Config{
		Enabled:        true,
		RequestsPerMin: 60,
		BurstSize:      10,
		Cost: func(r *http.Request) int {
			if r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/api/v1/verifier/") {
				return 6
			}
			return 1
		},
	})
	handler := rl.Middleware()(okHandler())
	const client = "203.0.113.7:4000"

	assert.Equal(t, http.StatusOK, send(handler, http.MethodPost, "/api/v1/verifier/solidity/multi-part", client).Code)
	// 4 tokens left: a second compile does not fit, reads still do
	assert.Equal(t, http.StatusTooManyRequests, send(handler, http.MethodPost, "/api/v1/verifier/vyper/multi-part", client).Code)
	assert.Equal(t, http.StatusOK, send(handler, http.MethodGet, "/api/v1/verifier/solidity/versions", client).Code)
}

func TestRateLimiter_CostCappedAtBurst(t *testing.T) {
	rl := New(Config{Enabled: true, RequestsPerMin: 60, BurstSize: 3})
	assert.True(t, rl.Allow("a", 50))
	assert.False(t, rl.Allow("a", 1))
}

func TestRateLimiter_BypassesExemptPaths(t *testing.T) {
	rl := New(Config{Enabled: true, RequestsPerMin: 60, BurstSize: 1})
	handler := rl.Middleware()(okHandler())

	for _, path := range []string{"/health", "/healthz", "/readyz", "/metrics"} {
		for i := 0; i < 3; i++ {
			assert.Equal(t, http.StatusOK, send(handler, http.MethodGet, path, "10.0.0.1:1").Code, path)
		}
	}
	assert.Zero(t, rl.Tracked())
}

func TestRateLimiter_Disabled(t *testing.T) {
	handler := Middleware(Config{Enabled: false, RequestsPerMin: 1, BurstSize: 1})(okHandler())
	for i := 0; i < 10; i++ {
		assert.Equal(t, http.StatusOK, send(handler, http.MethodGet, "/x", "10.0.0.1:1").Code)
	}
}

func TestRateLimiter_ConcurrentAccess(t *testing.T) {
	rl := New(Config{Enabled: true, RequestsPerMin: 6000, BurstSize: 100})
	handler := rl.Middleware()(okHandler())

	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				send(handler, http.MethodGet, "/x", "10.0.0.1:1")
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, rl.Tracked())
}

func TestRateLimiter_ForgetsIdleClients(t *testing.T) {
	rl := New(Config{Enabled: true, RequestsPerMin: 60, BurstSize: 1})
	rl.limiters = expirable.NewLRU[string, *rate.Limiter](1, nil, time.Minute)

	rl.Allow("a", 1)
	rl.Allow("b", 1)
	assert.Equal(t, 1, rl.Tracked())

	// "a" was evicted, so it starts with a full bucket again
	assert.True(t, rl.Allow("a", 1))
}

func TestRateLimiter_ExpiresIdleClients(t *testing.T) {
	rl := New(Config{Enabled: true, RequestsPerMin: 60, BurstSize: 1})
	rl.limiters = expirable.NewLRU[string, *rate.Limiter](10, nil, 20*time.Millisecond)

	rl.Allow("a", 1)
	assert.Eventually(t, func() bool { return rl.Tracked() == 0 }, time.Second, 10*time.Millisecond)
}
