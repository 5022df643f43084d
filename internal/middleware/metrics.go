package middleware

import (
	"net/http"
	"strconv"

	"github.com/felixge/httpsnoop"
	"github.com/patrickwarner/adbeacon/internal/observability"
)

// Instrument records request count and latency for endpoint.
func Instrument(endpoint string, metrics observability.MetricsRegistry, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)
		metrics.IncrementRequests(endpoint, r.Method, strconv.Itoa(m.Code))
		metrics.RecordRequestLatency(endpoint, r.Method, m.Duration)
	})
}
