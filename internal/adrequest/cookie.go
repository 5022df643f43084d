package adrequest

import (
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// cookieExpiry is the end of 32 bit time.
var cookieExpiry = time.Unix(0x7fffffff, 0).UTC()

// newVisitorID derives a fresh visitor identifier for rc.
func (c *Client) newVisitorID(rc *RequestContext) string {
	now := float64(c.now().UnixNano()) / 1e9
	return md5Hex(fmt.Sprintf("%s%s%s%f", c.random(), rc.UserAgent, rc.RemoteIP, now))
}

// SetCookie issues the visitor cookie unless the request already carries one or
// one was assigned earlier in this request. The new value is recorded in
// rc.Flags so later calls in the same request report it.
//
// Cookie domain and path are taken from opts, then from Defaults; the path
// falls back to "/" and a domain gets a leading dot when it lacks one.
func (c *Client) SetCookie(rc *RequestContext, store CookieStore, opts RequestOptions) {
	if _, ok := rc.flags().VisitorID(); ok {
		return
	}
	if _, ok := rc.Cookies[VisitorCookieName]; ok {
		return
	}

	value := c.newVisitorID(rc)
	cookie := &http.Cookie{
		Name:    VisitorCookieName,
		Value:   value,
		Expires: cookieExpiry,
		Path:    c.defaults.cookiePath(opts),
		Domain:  c.defaults.cookieDomain(opts),
	}
	store.SetCookie(cookie)
	rc.flags().SetVisitorID(value)

	c.metrics.IncrementVisitorCookies()
	c.logger.Debug("assigned visitor cookie",
		zap.String("path", cookie.Path),
		zap.String("domain", cookie.Domain))
}
