// Package metrics provides Prometheus instrumentation for verifactory.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	enabled bool

	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec

	verificationTotal *prometheus.CounterVec

	compilationTotal    *prometheus.CounterVec
	compilationDuration *prometheus.HistogramVec
	compilationsRunning prometheus.Gauge
	compileCacheTotal   *prometheus.CounterVec
)

// Init registers the collectors on the default registry, each labelled with
// service=svcName. It must be called at most once with enabledFlag set.
func Init(enabledFlag bool, svcName string) {
	enabled = enabledFlag
	if !enabled {
		return
	}

	factory := promauto.With(prometheus.WrapRegistererWith(
		prometheus.Labels{"service": svcName},
		prometheus.DefaultRegisterer,
	))

	httpRequestsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "HTTP requests by method, route and status",
	}, []string{"method", "path", "status"})

	httpDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	verificationTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "verification_request_total",
		Help: "Finished verifications by language, method and outcome",
	}, []string{"language", "method", "status"})

	compilationTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "compilation_total",
		Help: "Compiler invocations by toolchain and outcome",
	}, []string{"toolchain", "status"})

	// Compilations routinely take several seconds.
	compilationDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "compilation_duration_seconds",
		Help:    "Compiler invocation latency in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"toolchain"})

	compilationsRunning = factory.NewGauge(prometheus.GaugeOpts{
		Name: "compilations_running",
		Help: "Compiler processes currently running",
	})

	compileCacheTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "compile_cache_total",
		Help: "Compilation cache lookups by result",
	}, []string{"result"})
}

// Handler serves the default registry, or 404 when metrics are disabled.
func Handler() http.Handler {
	if !enabled {
		return http.NotFoundHandler()
	}
	return promhttp.Handler()
}
