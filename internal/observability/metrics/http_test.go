package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/health", "/health"},
		{"/readyz", "/readyz"},
		{"/metrics", "/metrics"},
		{"/api/v1/verifier", "/api/v1/verifier"},
		{"/api/v1/verifier/solidity/versions", "/api/v1/verifier/solidity/versions"},
		{"/api/v1/verifier/solidity/multi-part", "/api/v1/verifier/solidity/multi-part"},
		{"/api/v1/verifier/contracts/0x5FbDB2315678afecb367f032d93F642f64180aa3", "/api/v1/verifier/contracts/{id}"},
		{"/api/v1/verifier/contracts/0x5fbdb2315678afecb367f032d93f642f64180aa3/", "/api/v1/verifier/contracts/{id}"},
		{"/api/v1/verifier/contracts/42", "/api/v1/verifier/contracts/{id}"},
		{"/other/0x5fbdb2315678afecb367f032d93f642f64180aa3", "/other/0x5fbdb2315678afecb367f032d93f642f64180aa3"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizePath(tt.path))
		})
	}
}

func TestIsLikelyID(t *testing.T) {
	assert.True(t, isLikelyID("0x5fbdb2315678afecb367f032d93f642f64180aa3"))
	assert.True(t, isLikelyID("c0ffee254729296a45a3885639ac7e10f9d54979c0ffee254729296a45a38856"))
	assert.True(t, isLikelyID("1"))
	assert.False(t, isLikelyID("0xnothex"))
	assert.False(t, isLikelyID("contracts"))
	assert.False(t, isLikelyID("standard-json"))
}

func TestMiddlewareDisabled(t *testing.T) {
	enabled = false
	called := false
	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusTeapot)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/verifier/contracts", nil))

	assert.True(t, called)
	assert.Equal(t, http.StatusTeapot, rr.Code)
}

// Init registers on the default registry, so every enabled check lives here.
func TestEnabledMetrics(t *testing.T) {
	Init(true, "verifactory-test")
	defer func() { enabled = false }()

	r := chi.NewRouter()
	r.Use(Middleware)
	r.Route("/api/v1/verifier", func(r chi.Router) {
		r.Get("/contracts/{address}", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
	})

	for _, addr := range []string{
		"0x5fbdb2315678afecb367f032d93f642f64180aa3",
		"0xe7f1725e7734ce288f8367e1bb143e90bb3f0512",
	} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/verifier/contracts/"+addr, nil))
	}
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/registry/42", nil))

	assert.Equal(t, 2.0, testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/api/v1/verifier/contracts/{address}", "404")))
	assert.Equal(t, 1.0, testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/api/v1/registry/{id}", "404")))

	VerificationRequest("solidity", "multi-part", "full")
	assert.Equal(t, 1.0, testutil.ToFloat64(verificationTotal.WithLabelValues("solidity", "multi-part", "full")))

	CompileCache("hit")
	CompileCache("hit")
	assert.Equal(t, 2.0, testutil.ToFloat64(compileCacheTotal.WithLabelValues("hit")))

	done := CompilationStarted("solidity")
	assert.Equal(t, 1.0, testutil.ToFloat64(compilationsRunning))
	done("ok")
	assert.Equal(t, 0.0, testutil.ToFloat64(compilationsRunning))
	assert.Equal(t, 1.0, testutil.ToFloat64(compilationTotal.WithLabelValues("solidity", "ok")))

	rr := httptest.NewRecorder()
	Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rr.Body.String(), `service="verifactory-test"`)
}
