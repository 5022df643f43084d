package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/patrickwarner/adbeacon/internal/observability"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

func TestInstrumentRecordsStatus(t *testing.T) {
	metrics := observability.NewMockMetricsRegistry()
	h := Instrument("ad", metrics, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ad", nil))

	assert.Equal(t, 1, metrics.Requests["ad GET 418"])
}

func TestLoggerFromContextFallback(t *testing.T) {
	fallback := zap.NewNop()
	assert.Same(t, fallback, LoggerFromContext(context.Background(), fallback))
}

func TestWithTraceLoggerAddsSpanLogger(t *testing.T) {
	fallback := zap.NewNop()
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: trace.TraceID{1},
		SpanID:  trace.SpanID{2},
	})

	var got *zap.Logger
	h := WithTraceLogger(fallback)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = LoggerFromRequest(r, fallback)
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(trace.ContextWithSpanContext(req.Context(), sc))
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.NotNil(t, got)
	assert.NotSame(t, fallback, got)
}
