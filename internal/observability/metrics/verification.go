package metrics

import "time"

// VerificationRequest records a finished verification.
// status is one of "full", "partial", "no_match", "compile_error" or "error".
func VerificationRequest(language, method, status string) {
	if !enabled {
		return
	}
	verificationTotal.WithLabelValues(language, method, status).Inc()
}

// CompilationStarted tracks a compiler process starting. The returned func
// records its outcome.
func CompilationStarted(toolchain string) func(status string) {
	if !enabled {
		return func(string) {}
	}
	start := time.Now()
	compilationsRunning.Inc()
	return func(status string) {
		compilationsRunning.Dec()
		compilationTotal.WithLabelValues(toolchain, status).Inc()
		compilationDuration.WithLabelValues(toolchain).Observe(time.Since(start).Seconds())
	}
}

// CompileCache records a compilation cache lookup ("hit", "miss" or "shared").
func CompileCache(result string) {
	if !enabled {
		return
	}
	compileCacheTotal.WithLabelValues(result).Inc()
}
