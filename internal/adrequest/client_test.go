package adrequest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/patrickwarner/adbeacon/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

const markup = `<a href="http://ads.example.com/">ad</a>`

// adServer answers every POST with markup and records the forms it received.
type adServer struct {
	*httptest.Server
	calls atomic.Int32
	forms chan map[string]string
}

func newAdServer(t *testing.T) *adServer {
	s := &adServer{forms: make(chan map[string]string, 16)}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.calls.Add(1)
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		form := make(map[string]string)
		for k := range r.PostForm {
			form[k] = r.PostForm.Get(k)
		}
		s.forms <- form
		_, _ = w.Write([]byte(markup))
	}))
	t.Cleanup(s.Close)
	return s
}

func newTestClient(t *testing.T, endpoint string, d Defaults, metrics observability.MetricsRegistry) *Client {
	return New(d,
		WithEndpoint(endpoint),
		WithLogger(zaptest.NewLogger(t)),
		WithMetrics(metrics),
	)
}

var pixelRE = regexp.MustCompile(`<img src="http://p\.admob\.com/e0\?rt=(\d)&amp;z=([0-9.]+)&amp;a=([^&]*)&amp;s=([^&]*)&amp;o=([^&]*)&amp;lt=(\d+\.\d{4})&amp;to=([0-9.]+)" alt="" width="1" height="1"/>`)

func TestRequestNoOpMakesNoCall(t *testing.T) {
	srv := newAdServer(t)
	metrics := observability.NewMockMetricsRegistry()
	c := newTestClient(t, srv.URL, Defaults{}, metrics)

	out, err := c.Request(context.Background(), testContext(), "sess", RequestOptions{})
	require.NoError(t, err)
	assert.Equal(t, "", out)
	assert.Equal(t, int32(0), srv.calls.Load())
	assert.Equal(t, 1, metrics.NoOps)
}

func TestRequestNoOpRaises(t *testing.T) {
	srv := newAdServer(t)
	c := newTestClient(t, srv.URL, Defaults{RaiseOnError: true}, observability.NewNoOpRegistry())

	out, err := c.Request(context.Background(), testContext(), "sess", RequestOptions{})
	assert.Equal(t, "", out)
	assert.True(t, IsKind(err, KindNoOpRequest))
	assert.Equal(t, int32(0), srv.calls.Load())
}

func TestRequestAdOnly(t *testing.T) {
	srv := newAdServer(t)
	c := newTestClient(t, srv.URL, Defaults{}, observability.NewNoOpRegistry())

	out, err := c.Request(context.Background(), testContext(), "sess", RequestOptions{
		PublisherID: String("pub1"),
		AnalyticsID: nil,
	})
	require.NoError(t, err)

	form := <-srv.forms
	assert.Equal(t, "0", form["rt"])
	assert.NotContains(t, form, "a")
	assert.True(t, strings.HasPrefix(out, markup))

	m := pixelRE.FindStringSubmatch(out)
	require.NotNil(t, m, "pixel missing from %q", out)
	assert.Equal(t, "0", m[1])
	assert.Equal(t, form["z"], m[2])
	assert.Equal(t, "", m[3])
	assert.Equal(t, "pub1", m[4])
	assert.Equal(t, "1.0", m[7])
}

func TestRequestPixelOncePerRequest(t *testing.T) {
	srv := newAdServer(t)
	metrics := observability.NewMockMetricsRegistry()
	c := newTestClient(t, srv.URL, Defaults{PublisherID: "pub1", AnalyticsID: "an1"}, metrics)
	rc := testContext()
	ctx := context.Background()

	first, err := c.Request(ctx, rc, "sess", RequestOptions{})
	require.NoError(t, err)
	assert.Equal(t, "2", (<-srv.forms)["rt"])
	m := pixelRE.FindStringSubmatch(first)
	require.NotNil(t, m)
	assert.Equal(t, "2", m[1])
	assert.Equal(t, "an1", m[3])

	second, err := c.Request(ctx, rc, "sess", RequestOptions{AnalyticsID: String("an1")})
	require.NoError(t, err)
	assert.Equal(t, "0", (<-srv.forms)["rt"], "analytics already reported for this page")
	assert.Equal(t, markup, second)

	third, err := c.Request(ctx, rc, "sess", RequestOptions{})
	require.NoError(t, err)
	assert.Equal(t, markup, third)

	assert.Equal(t, 1, strings.Count(first+second+third, "<img"))
	assert.Equal(t, 1, metrics.Pixels)
	assert.Equal(t, int32(3), srv.calls.Load())

	// a fresh request context gets its own pixel
	fresh, err := c.Request(ctx, testContext(), "sess", RequestOptions{})
	require.NoError(t, err)
	<-srv.forms
	assert.Equal(t, 1, strings.Count(fresh, "<img"))
}

func TestRequestAnalyticsOnceThenNoOp(t *testing.T) {
	srv := newAdServer(t)
	c := newTestClient(t, srv.URL, Defaults{AnalyticsID: "an1"}, observability.NewNoOpRegistry())
	rc := testContext()

	out, err := c.Analytics(context.Background(), rc, "sess", RequestOptions{})
	require.NoError(t, err)
	assert.Equal(t, "1", (<-srv.forms)["rt"])
	assert.Contains(t, out, "<img")

	out, err = c.Analytics(context.Background(), rc, "sess", RequestOptions{})
	require.NoError(t, err)
	assert.Equal(t, "", out)
	assert.Equal(t, int32(1), srv.calls.Load())
}

func TestAdHelperSkipsAnalytics(t *testing.T) {
	srv := newAdServer(t)
	c := newTestClient(t, srv.URL, Defaults{PublisherID: "pub1", AnalyticsID: "an1"}, observability.NewNoOpRegistry())

	_, err := c.Ad(context.Background(), testContext(), "sess", RequestOptions{})
	require.NoError(t, err)
	assert.Equal(t, "0", (<-srv.forms)["rt"])
}

func TestRequestTimeoutStillAppendsPixel(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	metrics := observability.NewMockMetricsRegistry()
	c := newTestClient(t, srv.URL, Defaults{PublisherID: "pub1"}, metrics)
	timeout := 100 * time.Millisecond

	out, err := c.Request(context.Background(), testContext(), "sess", RequestOptions{Timeout: Duration(timeout)})
	require.NoError(t, err)

	m := pixelRE.FindStringSubmatch(out)
	require.NotNil(t, m, "pixel missing from %q", out)
	assert.True(t, strings.HasPrefix(out, "<img"), "body must be empty")
	assert.Equal(t, "0.1", m[7])
	lt, err := strconv.ParseFloat(m[6], 64)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, lt, 0.09)
	assert.Equal(t, 1, metrics.Dispatches["timeout"])
}

func TestRequestTimeoutRaises(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := newTestClient(t, srv.URL, Defaults{PublisherID: "pub1"}, observability.NewNoOpRegistry())
	rc := testContext()

	out, err := c.Request(context.Background(), rc, "sess", RequestOptions{
		Timeout:      Duration(50 * time.Millisecond),
		RaiseOnError: Bool(true),
	})
	assert.Equal(t, "", out)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindNetworkTimeout))
	assert.Contains(t, err.Error(), "timeout was 0.05")
	assert.False(t, rc.Flags.PixelSent())
}

func TestRequestNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := newTestClient(t, url, Defaults{PublisherID: "pub1"}, observability.NewNoOpRegistry())

	out, err := c.Request(context.Background(), testContext(), "sess", RequestOptions{})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "<img"))

	_, err = c.Request(context.Background(), testContext(), "sess", RequestOptions{RaiseOnError: Bool(true)})
	assert.True(t, IsKind(err, KindNetworkFailure))
}

func TestRequestConfigurationConflict(t *testing.T) {
	srv := newAdServer(t)
	metrics := observability.NewMockMetricsRegistry()
	c := newTestClient(t, srv.URL, Defaults{PublisherID: "pub1"}, metrics)

	out, err := c.Request(context.Background(), testContext(), "sess", RequestOptions{
		CookieDomain: String("example.com"),
		CookiePath:   String("/videos"),
	})
	require.NoError(t, err, "conflicts are ignored unless raising")
	assert.Contains(t, out, markup)
	<-srv.forms

	_, err = c.Request(context.Background(), testContext(), "sess", RequestOptions{
		CookiePath:   String("/videos"),
		RaiseOnError: Bool(true),
	})
	require.Error(t, err)
	assert.True(t, IsKind(err, KindConfigurationConflict))
	assert.Contains(t, err.Error(), "cookie_path")
	assert.Equal(t, int32(1), srv.calls.Load())
	assert.Equal(t, 1, metrics.Errors[KindConfigurationConflict.String()])
}

func TestRequestRaiseFromDefaults(t *testing.T) {
	srv := newAdServer(t)
	c := newTestClient(t, srv.URL, Defaults{PublisherID: "pub1", RaiseOnError: true}, observability.NewNoOpRegistry())

	_, err := c.Request(context.Background(), testContext(), "sess", RequestOptions{CookieDomain: String("x.com")})
	assert.True(t, IsKind(err, KindConfigurationConflict))

	_, err = c.Request(context.Background(), testContext(), "sess", RequestOptions{
		CookieDomain: String("x.com"),
		RaiseOnError: Bool(false),
	})
	assert.NoError(t, err)
	<-srv.forms
}

func TestRequestLogsTestPayload(t *testing.T) {
	t.Setenv("ENV", "test")
	srv := newAdServer(t)
	core, logs := observer.New(zap.DebugLevel)
	c := New(Defaults{PublisherID: "pub1", Test: true}, WithEndpoint(srv.URL), WithLogger(zap.New(core)))

	_, err := c.Request(context.Background(), testContext(), "sess", RequestOptions{})
	require.NoError(t, err)
	<-srv.forms

	entries := logs.FilterMessage("making test request").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zap.DebugLevel, entries[0].Level)
}

func TestNoOpLoggedAtDebug(t *testing.T) {
	srv := newAdServer(t)
	core, logs := observer.New(zap.DebugLevel)
	c := New(Defaults{}, WithEndpoint(srv.URL), WithLogger(zap.New(core)))

	out, err := c.Request(context.Background(), testContext(), "sess", RequestOptions{})
	require.NoError(t, err)
	assert.Equal(t, "", out)

	assert.Equal(t, 1, logs.FilterMessage("nothing to request").FilterLevelExact(zap.DebugLevel).Len())
	assert.Zero(t, logs.FilterLevelExact(zap.WarnLevel).Len())
}

func TestSuppressedFailureLoggedAtWarn(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	policy := errorPolicy{logger: zap.New(core)}

	assert.NoError(t, policy.surface(&Error{Kind: KindNetworkFailure, Message: "dispatch"}))
	entries := logs.FilterLevelExact(zap.WarnLevel).All()
	require.Len(t, entries, 1)
	assert.Equal(t, "network_failure", entries[0].ContextMap()["kind"])
}
