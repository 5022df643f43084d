package adrequest

import (
	"strings"
	"time"
)

// DefaultTimeout bounds the outbound call when neither the request nor the
// defaults specify one.
const DefaultTimeout = time.Second

// Defaults holds the process-wide fallbacks for RequestOptions. Build it once at
// startup and hand it to New; the Client keeps its own copy.
type Defaults struct {
	PublisherID  string
	AnalyticsID  string
	Encoding     string
	Timeout      time.Duration
	RaiseOnError bool
	CookieDomain string
	CookiePath   string
	// Test marks every request as a test request unless the request says otherwise.
	Test bool
}

// Configure runs fn against a zero Defaults and returns the result.
//
//	defaults := adrequest.Configure(func(d *adrequest.Defaults) {
//		d.PublisherID = "a14..."
//		d.Timeout = 2 * time.Second
//	})
func Configure(fn func(*Defaults)) Defaults {
	var d Defaults
	if fn != nil {
		fn(&d)
	}
	return d
}

// RequestOptions carries the optional per-call settings. A nil field means
// "not supplied" and falls back to Defaults; an empty string is a real value and
// is sent as such.
type RequestOptions struct {
	PublisherID *string
	AnalyticsID *string

	// AdRequest and AnalyticsRequest default to true.
	AdRequest        *bool
	AnalyticsRequest *bool

	Encoding    *string
	Markup      *string
	PostalCode  *string
	AreaCode    *string
	Coordinates *string
	DateOfBirth *string
	Gender      *string
	Keywords    *string
	Search      *string
	Title       *string
	Event       *string
	// Page overrides the request URI reported in the payload.
	Page *string
	// Format overrides the response format, "html" when unset.
	Format *string

	TextOnly     *bool
	Test         *bool
	Timeout      *time.Duration
	RaiseOnError *bool

	// Only honoured by SetCookie.
	CookieDomain *string
	CookiePath   *string
}

// String returns a pointer to s.
func String(s string) *string { return &s }

// Bool returns a pointer to b.
func Bool(b bool) *bool { return &b }

// Duration returns a pointer to d.
func Duration(d time.Duration) *time.Duration { return &d }

// orDefault picks the option when supplied, otherwise a non-empty default.
func orDefault(opt *string, def string) *string {
	if opt != nil {
		return opt
	}
	if def != "" {
		return &def
	}
	return nil
}

func present(s *string) bool {
	return s != nil && strings.TrimSpace(*s) != ""
}

func enabled(b *bool) bool {
	return b == nil || *b
}

func (d Defaults) timeout(opts RequestOptions) time.Duration {
	if opts.Timeout != nil && *opts.Timeout > 0 {
		return *opts.Timeout
	}
	if d.Timeout > 0 {
		return d.Timeout
	}
	return DefaultTimeout
}

func (d Defaults) raiseOnError(opts RequestOptions) bool {
	if opts.RaiseOnError != nil {
		return *opts.RaiseOnError
	}
	return d.RaiseOnError
}

func (d Defaults) test(opts RequestOptions) bool {
	if opts.Test != nil {
		return *opts.Test
	}
	return d.Test
}

func (d Defaults) cookiePath(opts RequestOptions) string {
	if opts.CookiePath != nil && *opts.CookiePath != "" {
		return *opts.CookiePath
	}
	if d.CookiePath != "" {
		return d.CookiePath
	}
	return "/"
}

// cookieDomain returns the dot-prefixed domain, or "" when none is configured.
func (d Defaults) cookieDomain(opts RequestOptions) string {
	domain := d.CookieDomain
	if opts.CookieDomain != nil && *opts.CookieDomain != "" {
		domain = *opts.CookieDomain
	}
	if domain == "" {
		return ""
	}
	if !strings.HasPrefix(domain, ".") {
		domain = "." + domain
	}
	return domain
}
