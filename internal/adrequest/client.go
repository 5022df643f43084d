// Package adrequest builds and sends ad and analytics requests to the remote ad
// service, appends the per-page tracking pixel and manages the visitor cookie.
//
// A typical handler assigns the cookie first and then renders one or more ad
// slots against the same RequestContext:
//
//	client.SetCookie(rc, cookies, adrequest.RequestOptions{})
//	html, err := client.Request(ctx, rc, sessionID, adrequest.RequestOptions{
//		Keywords: adrequest.String("ruby gem admob"),
//	})
//
// Only one analytics call and one pixel are produced per RequestContext no
// matter how many times Request is called.
package adrequest

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/patrickwarner/adbeacon/internal/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("adbeacon/adrequest")

// Client is safe for concurrent use. Its Defaults are fixed at construction.
type Client struct {
	defaults   Defaults
	dispatcher *Dispatcher
	endpoint   string
	pixelURL   string
	logger     *zap.Logger
	metrics    observability.MetricsRegistry
	now        func() time.Time
	random     func() string

	// last z value handed out, in microseconds
	lastStamp atomic.Int64
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithMetrics sets the metrics registry.
func WithMetrics(metrics observability.MetricsRegistry) Option {
	return func(c *Client) {
		c.metrics = metrics
	}
}

// WithEndpoint points the client at another ad endpoint, e.g. the sandbox.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) {
		c.endpoint = endpoint
	}
}

// WithPixelURL changes the pixel endpoint.
func WithPixelURL(pixelURL string) Option {
	return func(c *Client) {
		c.pixelURL = pixelURL
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// WithRandom replaces the random source mixed into new visitor ids.
func WithRandom(random func() string) Option {
	return func(c *Client) {
		c.random = random
	}
}

// New creates a Client around defaults.
func New(defaults Defaults, opts ...Option) *Client {
	c := &Client{
		defaults: defaults,
		endpoint: Endpoint,
		pixelURL: PixelURL,
		logger:   zap.NewNop(),
		metrics:  observability.NewNoOpRegistry(),
		now:      time.Now,
		random:   uuid.NewString,
	}
	for _, o := range opts {
		o(c)
	}
	c.logger = c.logger.Named("adrequest")
	c.dispatcher = NewDispatcher(c.endpoint, c.logger, c.metrics)
	return c
}

// timestamp returns UTC seconds with microsecond precision, strictly increasing
// across calls on this client.
func (c *Client) timestamp() float64 {
	now := c.now().UTC().UnixMicro()
	for {
		last := c.lastStamp.Load()
		next := now
		if next <= last {
			next = last + 1
		}
		if c.lastStamp.CompareAndSwap(last, next) {
			return float64(next) / 1e6
		}
	}
}

func (c *Client) policy(opts RequestOptions) errorPolicy {
	return errorPolicy{raise: c.defaults.raiseOnError(opts), logger: c.logger}
}

// Request performs an ad and/or analytics request and returns the markup to
// embed in the page, with the tracking pixel appended on the first call for rc.
//
// With RaiseOnError unset (the default) Request never returns an error: a call
// that is neither an ad nor an analytics request yields "", and a failed or
// timed out call yields just the pixel. With RaiseOnError set every problem is
// returned as an *Error.
func (c *Client) Request(ctx context.Context, rc *RequestContext, sessionID string, opts RequestOptions) (string, error) {
	ctx, span := tracer.Start(ctx, "adrequest.Request")
	defer span.End()

	policy := c.policy(opts)

	if opts.CookieDomain != nil {
		if err := policy.surface(conflictError("cookie_domain")); err != nil {
			return "", c.fail(span, err)
		}
	}
	if opts.CookiePath != nil {
		if err := policy.surface(conflictError("cookie_path")); err != nil {
			return "", c.fail(span, err)
		}
	}

	payload, ok := c.Assemble(rc, sessionID, opts)
	if !ok {
		c.metrics.IncrementNoOpRequests()
		span.SetAttributes(attribute.Bool("adrequest.noop", true))
		if err := policy.surface(errNoOp); err != nil {
			return "", c.fail(span, err)
		}
		return "", nil
	}

	rt := payload.RequestType()
	timeout := c.defaults.timeout(opts)
	span.SetAttributes(
		attribute.String("adrequest.type", rt.String()),
		attribute.Float64("adrequest.timeout_seconds", timeout.Seconds()),
	)
	c.metrics.IncrementAdRequests(rt.String())
	if payload["m"] == "test" && observability.ShouldSample(observability.GetSamplingRate()) {
		c.logger.Debug("making test request", zap.Any("payload", payload))
	}

	body, elapsed, err := c.dispatcher.Send(ctx, payload, timeout)
	if err != nil {
		span.RecordError(err)
		var serr error
		if e, ok := err.(*Error); ok {
			serr = policy.surface(e)
		} else {
			serr = policy.surface(&Error{Kind: KindNetworkFailure, Message: "dispatch", Err: err})
		}
		if serr != nil {
			return "", c.fail(span, serr)
		}
	}

	return c.InjectPixel(body, payload, elapsed, timeout, rc), nil
}

// Ad requests an ad only, never an analytics call.
func (c *Client) Ad(ctx context.Context, rc *RequestContext, sessionID string, opts RequestOptions) (string, error) {
	opts.AdRequest = Bool(true)
	opts.AnalyticsRequest = Bool(false)
	return c.Request(ctx, rc, sessionID, opts)
}

// Analytics records a page view without requesting an ad.
func (c *Client) Analytics(ctx context.Context, rc *RequestContext, sessionID string, opts RequestOptions) (string, error) {
	opts.AdRequest = Bool(false)
	opts.AnalyticsRequest = Bool(true)
	return c.Request(ctx, rc, sessionID, opts)
}

func (c *Client) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if e, ok := err.(*Error); ok {
		c.metrics.IncrementErrors(e.Kind.String())
	}
	return err
}
