// Package server owns the tiny HTTP surface of the exporter: /metrics over a
// dedicated registry and a /healthz probe endpoint.
package server

import (
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthFunc returns whether the exporter is healthy and, if not, a short reason.
type HealthFunc func() (bool, string)

const (
	metricsPath = "/metrics"
	healthzPath = "/healthz"

	okBody = "ok\n"
)

// NewMux returns an http.ServeMux with:
//   - /metrics bound to the given gatherer (every scrape drives a collection
//     pass through the registered collector)
//   - /healthz returning 200 (healthy) or 503 (unhealthy) per the provided function
func NewMux(gatherer prometheus.Gatherer, isHealthy HealthFunc) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle(metricsPath, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc(healthzPath, healthHandler(isHealthy))

	return mux
}

func healthHandler(isHealthy HealthFunc) http.HandlerFunc {
	return func(responseWriter http.ResponseWriter, _ *http.Request) {
		responseWriter.Header().Set("Content-Type", "text/plain; charset=utf-8")

		ok, reason := isHealthy()
		if ok {
			responseWriter.WriteHeader(http.StatusOK)
			_, _ = io.WriteString(responseWriter, okBody)

			return
		}

		if reason == "" {
			reason = "unhealthy"
		}

		responseWriter.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(responseWriter, reason+"\n")
	}
}
