package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"skywatch/indexer/internal/logging"
	"skywatch/indexer/internal/metrics"
)

// statusWriter captures the response status for metric labels
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// MetricsMiddleware records request count, latency, and in-flight gauge per
// chi route pattern, so /api/v1/flights/{flight_id} stays one series rather
// than one per flight id
func MetricsMiddleware(metricsReg *metrics.MetricsRegistry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route := chi.RouteContext(r.Context()).RoutePattern()
			if route == "" {
				route = "unknown"
			}

			metricsReg.HTTPRequestsInFlight.WithLabelValues(route).Inc()
			defer metricsReg.HTTPRequestsInFlight.WithLabelValues(route).Dec()

			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(sw, r)
			elapsed := time.Since(start)

			metricsReg.HTTPRequestsTotal.WithLabelValues(
				route, r.Method, strconv.Itoa(sw.status)).Inc()
			metricsReg.HTTPRequestDuration.WithLabelValues(
				route, r.Method).Observe(elapsed.Seconds())

			// Health probes are too chatty for the request log
			if route == "/healthCheck" {
				return
			}
			logging.Info("HTTP request completed",
				"method", r.Method,
				"endpoint", route,
				"status_code", sw.status,
				"duration_ms", elapsed.Milliseconds(),
			)
		})
	}
}
