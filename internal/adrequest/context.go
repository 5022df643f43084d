package adrequest

import (
	"net/http"
	"sync"
)

// Names shared with the remote service. The flag keys double as header names
// that must never be forwarded.
const (
	VisitorCookieName = "admobuu"
	pixelSentKey      = "admob_pixel_sent"
	visitorIDKey      = VisitorCookieName
)

// Flags is the per-request state bag. One Flags value lives exactly as long as
// the inbound request it belongs to.
type Flags struct {
	mu     sync.Mutex
	values map[string]any
}

// NewFlags returns an empty bag.
func NewFlags() *Flags {
	return &Flags{values: make(map[string]any)}
}

// Get returns the value stored under key.
func (f *Flags) Get(key string) (any, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	return v, ok
}

// Set stores value under key.
func (f *Flags) Set(key string, value any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.values == nil {
		f.values = make(map[string]any)
	}
	f.values[key] = value
}

// PixelSent reports whether the tracking pixel was already emitted.
func (f *Flags) PixelSent() bool {
	v, _ := f.Get(pixelSentKey)
	sent, _ := v.(bool)
	return sent
}

// MarkPixelSent records that the pixel was emitted and reports whether this call
// was the one that flipped the flag.
func (f *Flags) MarkPixelSent() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.values == nil {
		f.values = make(map[string]any)
	}
	if sent, _ := f.values[pixelSentKey].(bool); sent {
		return false
	}
	f.values[pixelSentKey] = true
	return true
}

// VisitorID returns the identifier assigned earlier in this request, if any.
func (f *Flags) VisitorID() (string, bool) {
	v, _ := f.Get(visitorIDKey)
	id, ok := v.(string)
	return id, ok && id != ""
}

// SetVisitorID records an identifier assigned during this request.
func (f *Flags) SetVisitorID(id string) {
	f.Set(visitorIDKey, id)
}

// RequestContext is the read-only view of the inbound request plus its Flags.
type RequestContext struct {
	UserAgent string
	RemoteIP  string
	// URI is the full request URI reported as the page.
	URI     string
	Cookies map[string]string
	Headers map[string]string
	Flags   *Flags
}

// NewRequestContext returns a RequestContext with empty maps and a fresh Flags.
func NewRequestContext(userAgent, remoteIP, uri string) *RequestContext {
	return &RequestContext{
		UserAgent: userAgent,
		RemoteIP:  remoteIP,
		URI:       uri,
		Cookies:   make(map[string]string),
		Headers:   make(map[string]string),
		Flags:     NewFlags(),
	}
}

func (rc *RequestContext) flags() *Flags {
	if rc.Flags == nil {
		rc.Flags = NewFlags()
	}
	return rc.Flags
}

// visitorID resolves the visitor cookie, preferring the inbound cookie over an
// identifier assigned during this request.
func (rc *RequestContext) visitorID() *string {
	if v, ok := rc.Cookies[VisitorCookieName]; ok {
		return &v
	}
	if id, ok := rc.flags().VisitorID(); ok {
		return &id
	}
	return nil
}

// CookieStore receives outbound cookies.
type CookieStore interface {
	SetCookie(cookie *http.Cookie)
}

// CookieStoreFunc adapts a function to CookieStore.
type CookieStoreFunc func(cookie *http.Cookie)

// SetCookie calls f(cookie).
func (f CookieStoreFunc) SetCookie(cookie *http.Cookie) {
	f(cookie)
}
