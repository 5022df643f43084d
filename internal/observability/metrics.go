package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// total requests per endpoint, method and status code
	RequestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adbeacon_http_requests_total",
			Help: "Total HTTP requests received",
		},
		[]string{"endpoint", "method", "status"},
	)

	// request latency in seconds per endpoint/method
	RequestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "adbeacon_http_request_duration_seconds",
			Help:    "Histogram of request latencies",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method"},
	)

	// outbound ad/analytics requests by request type
	AdRequestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adbeacon_ad_requests_total",
			Help: "Total ad and analytics requests sent, by request type",
		},
		[]string{"type"},
	)

	// calls that were neither ad nor analytics requests
	NoOpRequestCount = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "adbeacon_noop_requests_total",
			Help: "Total calls that resolved to no request",
		},
	)

	// dispatch attempts labelled by outcome
	DispatchCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adbeacon_dispatch_total",
			Help: "Total outbound dispatches by outcome",
		},
		[]string{"outcome"},
	)

	// latency of outbound dispatches
	DispatchLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "adbeacon_dispatch_duration_seconds",
			Help:    "Duration of outbound dispatches",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2, 5},
		},
	)

	// tracking pixels appended
	PixelCount = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "adbeacon_pixels_total",
			Help: "Total tracking pixels appended",
		},
	)

	// errors surfaced to callers, by kind
	ErrorCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adbeacon_errors_total",
			Help: "Total errors returned to callers",
		},
		[]string{"kind"},
	)

	// visitor cookies issued
	VisitorCookieCount = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "adbeacon_visitor_cookies_total",
			Help: "Total visitor cookies issued",
		},
	)

	// sandbox records by kind (request, pixel)
	SandboxRecordCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adbeacon_sandbox_records_total",
			Help: "Total beacons recorded by the sandbox",
		},
		[]string{"kind"},
	)
)

func init() {
	// register all metrics
	prometheus.MustRegister(
		RequestCount,
		RequestLatency,
		AdRequestCount,
		NoOpRequestCount,
		DispatchCount,
		DispatchLatency,
		PixelCount,
		ErrorCount,
		VisitorCookieCount,
		SandboxRecordCount,
	)
}
