// Package httpctx adapts net/http requests and responses to the adrequest
// collaborators.
package httpctx

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/patrickwarner/adbeacon/internal/adrequest"
)

type contextKey struct{}

// ResponseCookies writes cookies as Set-Cookie headers on w.
type ResponseCookies struct {
	W http.ResponseWriter
}

// SetCookie adds cookie to the response.
func (rc ResponseCookies) SetCookie(cookie *http.Cookie) {
	http.SetCookie(rc.W, cookie)
}

// NewRequestContext builds the adrequest view of r with a fresh Flags bag.
func NewRequestContext(r *http.Request) *adrequest.RequestContext {
	rc := adrequest.NewRequestContext(r.UserAgent(), RemoteIP(r), AbsoluteURI(r))
	for _, c := range r.Cookies() {
		if _, seen := rc.Cookies[c.Name]; !seen {
			rc.Cookies[c.Name] = c.Value
		}
	}
	for name, values := range r.Header {
		rc.Headers[name] = strings.Join(values, ", ")
	}
	if r.Host != "" {
		rc.Headers["Host"] = r.Host
	}
	return rc
}

// WithRequestContext stores rc in ctx.
func WithRequestContext(ctx context.Context, rc *adrequest.RequestContext) context.Context {
	return context.WithValue(ctx, contextKey{}, rc)
}

// FromContext returns the RequestContext stored by WithRequestContext.
func FromContext(ctx context.Context) (*adrequest.RequestContext, bool) {
	rc, ok := ctx.Value(contextKey{}).(*adrequest.RequestContext)
	return rc, ok
}

// FromRequest returns the RequestContext attached by Middleware, or a new one
// when r did not pass through it.
func FromRequest(r *http.Request) *adrequest.RequestContext {
	if rc, ok := FromContext(r.Context()); ok {
		return rc
	}
	return NewRequestContext(r)
}

// Middleware attaches a RequestContext to every request and issues the
// visitor cookie before the handler runs.
func Middleware(client *adrequest.Client) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rc := NewRequestContext(r)
			client.SetCookie(rc, ResponseCookies{W: w}, adrequest.RequestOptions{})
			next.ServeHTTP(w, r.WithContext(WithRequestContext(r.Context(), rc)))
		})
	}
}

// RemoteIP returns the client address, honouring the first X-Forwarded-For
// entry and X-Real-IP before falling back to the connection address.
func RemoteIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first := strings.TrimSpace(strings.Split(fwd, ",")[0])
		if net.ParseIP(first) != nil {
			return first
		}
	}
	if real := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(real) != nil {
		return real
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// AbsoluteURI reconstructs the full URI of r.
func AbsoluteURI(r *http.Request) string {
	if r.URL.IsAbs() {
		return r.URL.String()
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto == "http" || proto == "https" {
		scheme = proto
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

// SessionID returns the value of the named session cookie, or "".
func SessionID(r *http.Request, cookieName string) string {
	c, err := r.Cookie(cookieName)
	if err != nil {
		return ""
	}
	return c.Value
}
