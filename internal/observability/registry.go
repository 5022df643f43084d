package observability

import "time"

// MetricsRegistry records application metrics. Components take it as a
// dependency instead of touching the Prometheus collectors directly.
type MetricsRegistry interface {
	// HTTP Request metrics
	IncrementRequests(endpoint, method, status string)
	RecordRequestLatency(endpoint, method string, duration time.Duration)

	// Ad request pipeline metrics
	IncrementAdRequests(requestType string)
	IncrementNoOpRequests()
	IncrementDispatches(outcome string)
	RecordDispatchLatency(duration time.Duration)
	IncrementPixels()
	IncrementErrors(kind string)

	// Visitor cookie metrics
	IncrementVisitorCookies()

	// Sandbox metrics
	IncrementSandboxRecords(kind string)
}

// PrometheusRegistry implements MetricsRegistry using the global Prometheus metrics
type PrometheusRegistry struct{}

// NewPrometheusRegistry creates a new PrometheusRegistry
func NewPrometheusRegistry() *PrometheusRegistry {
	return &PrometheusRegistry{}
}

// HTTP Request metrics
func (r *PrometheusRegistry) IncrementRequests(endpoint, method, status string) {
	RequestCount.WithLabelValues(endpoint, method, status).Inc()
}

func (r *PrometheusRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {
	RequestLatency.WithLabelValues(endpoint, method).Observe(duration.Seconds())
}

// Ad request pipeline metrics
func (r *PrometheusRegistry) IncrementAdRequests(requestType string) {
	AdRequestCount.WithLabelValues(requestType).Inc()
}

func (r *PrometheusRegistry) IncrementNoOpRequests() {
	NoOpRequestCount.Inc()
}

func (r *PrometheusRegistry) IncrementDispatches(outcome string) {
	DispatchCount.WithLabelValues(outcome).Inc()
}

func (r *PrometheusRegistry) RecordDispatchLatency(duration time.Duration) {
	DispatchLatency.Observe(duration.Seconds())
}

func (r *PrometheusRegistry) IncrementPixels() {
	PixelCount.Inc()
}

func (r *PrometheusRegistry) IncrementErrors(kind string) {
	ErrorCount.WithLabelValues(kind).Inc()
}

// Visitor cookie metrics
func (r *PrometheusRegistry) IncrementVisitorCookies() {
	VisitorCookieCount.Inc()
}

// Sandbox metrics
func (r *PrometheusRegistry) IncrementSandboxRecords(kind string) {
	SandboxRecordCount.WithLabelValues(kind).Inc()
}

// NoOpRegistry implements MetricsRegistry with no-op methods for testing
type NoOpRegistry struct{}

// NewNoOpRegistry creates a new NoOpRegistry
func NewNoOpRegistry() *NoOpRegistry {
	return &NoOpRegistry{}
}

func (r *NoOpRegistry) IncrementRequests(endpoint, method, status string)                    {}
func (r *NoOpRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {}
func (r *NoOpRegistry) IncrementAdRequests(requestType string)                               {}
func (r *NoOpRegistry) IncrementNoOpRequests()                                               {}
func (r *NoOpRegistry) IncrementDispatches(outcome string)                                   {}
func (r *NoOpRegistry) RecordDispatchLatency(duration time.Duration)                         {}
func (r *NoOpRegistry) IncrementPixels()                                                     {}
func (r *NoOpRegistry) IncrementErrors(kind string)                                          {}
func (r *NoOpRegistry) IncrementVisitorCookies()                                             {}
func (r *NoOpRegistry) IncrementSandboxRecords(kind string)                                  {}
