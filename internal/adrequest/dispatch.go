package adrequest

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/patrickwarner/adbeacon/internal/observability"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// Endpoint is the ad and analytics endpoint.
const Endpoint = "http://r.admob.com/ad_source.php"

// maxBodyBytes caps how much markup is read back from the endpoint.
const maxBodyBytes = 1 << 20

// Dispatcher posts payloads to the endpoint, one attempt per call.
type Dispatcher struct {
	endpoint string
	logger   *zap.Logger
	metrics  observability.MetricsRegistry

	mu      sync.Mutex
	clients map[time.Duration]*http.Client
}

// NewDispatcher creates a Dispatcher for endpoint.
func NewDispatcher(endpoint string, logger *zap.Logger, metrics observability.MetricsRegistry) *Dispatcher {
	return &Dispatcher{
		endpoint: endpoint,
		logger:   logger,
		metrics:  metrics,
		clients:  make(map[time.Duration]*http.Client),
	}
}

// readDeadlineConn applies timeout to every Read, so a response may take
// longer than timeout in total as long as it never stalls for that long.
type readDeadlineConn struct {
	net.Conn
	timeout time.Duration
}

func (c *readDeadlineConn) Read(p []byte) (int, error) {
	if err := c.Conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Read(p)
}

// client returns an http.Client whose connect timeout and per-read timeout are
// both timeout. Each call gets its own connection, matching the single attempt
// per request.
func (d *Dispatcher) client(timeout time.Duration) *http.Client {
	d.mu.Lock()
	defer d.mu.Unlock()

	if c, ok := d.clients[timeout]; ok {
		return c
	}
	dialer := &net.Dialer{Timeout: timeout}
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			return &readDeadlineConn{Conn: conn, timeout: timeout}, nil
		},
		TLSHandshakeTimeout:   timeout,
		ResponseHeaderTimeout: timeout,
		DisableKeepAlives:     true,
	}
	c := &http.Client{Transport: otelhttp.NewTransport(transport)}
	d.clients[timeout] = c
	return c
}

// Send posts payload and returns the response body and the time the call took.
// On failure the body is empty and the error is a *Error of kind
// KindNetworkTimeout or KindNetworkFailure; elapsed is measured either way.
func (d *Dispatcher) Send(ctx context.Context, payload Payload, timeout time.Duration) (body string, elapsed time.Duration, err error) {
	outcome := "success"
	start := time.Now()
	defer func() {
		elapsed = time.Since(start)
		d.metrics.RecordDispatchLatency(elapsed)
		d.metrics.IncrementDispatches(outcome)
	}()

	req, rerr := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, strings.NewReader(payload.Encode()))
	if rerr != nil {
		outcome = "failure"
		return "", 0, &Error{Kind: KindNetworkFailure, Message: "create request", Err: rerr}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, derr := d.client(timeout).Do(req)
	if derr != nil {
		if isTimeout(derr) {
			outcome = "timeout"
			return "", 0, &Error{
				Kind:    KindNetworkTimeout,
				Message: fmt.Sprintf("request timed out; timeout was %s, elapsed time was %.4fs", formatSeconds(timeout), time.Since(start).Seconds()),
				Err:     derr,
			}
		}
		outcome = "failure"
		return "", 0, &Error{Kind: KindNetworkFailure, Message: "request encountered unexpected error", Err: derr}
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil && d.logger != nil {
			d.logger.Warn("failed to close response body", zap.Error(cerr))
		}
	}()

	data, rerr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if rerr != nil {
		if isTimeout(rerr) {
			outcome = "timeout"
			return "", 0, &Error{
				Kind:    KindNetworkTimeout,
				Message: fmt.Sprintf("reading response timed out; timeout was %s", formatSeconds(timeout)),
				Err:     rerr,
			}
		}
		outcome = "failure"
		return "", 0, &Error{Kind: KindNetworkFailure, Message: "read response", Err: rerr}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		outcome = "failure"
		return "", 0, &Error{Kind: KindNetworkFailure, Message: fmt.Sprintf("endpoint returned http %d", resp.StatusCode)}
	}

	return string(data), 0, nil
}
