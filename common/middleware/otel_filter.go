package middleware

import (
	"net/http"
	"strings"
)

// skipTracePaths are paths that should not be traced (health checks, metrics)
var skipTracePaths = []string{
	"/metrics",
	"/health",
	"/healthz",
	"/ready",
	"/live",
}

// ShouldSkipTrace returns true if the path should not be traced
func ShouldSkipTrace(path string) bool {
	for _, skip := range skipTracePaths {
		if strings.HasPrefix(path, skip) {
			return true
		}
	}
	return false
}

// TraceFilter adapts ShouldSkipTrace to otelgin/otelhttp filter signatures.
func TraceFilter(r *http.Request) bool {
	return !ShouldSkipTrace(r.URL.Path)
}
