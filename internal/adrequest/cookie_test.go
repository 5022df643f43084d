package adrequest

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingStore struct {
	cookies []*http.Cookie
}

func (s *recordingStore) SetCookie(c *http.Cookie) {
	s.cookies = append(s.cookies, c)
}

func TestSetCookieIssuesVisitorCookie(t *testing.T) {
	c := New(Defaults{},
		WithClock(func() time.Time { return fixedNow }),
		WithRandom(func() string { return "r" }),
	)
	rc := NewRequestContext("Test", "127.0.0.1", "/")
	store := &recordingStore{}

	c.SetCookie(rc, store, RequestOptions{})

	require.Len(t, store.cookies, 1)
	cookie := store.cookies[0]
	assert.Equal(t, VisitorCookieName, cookie.Name)
	assert.Equal(t, md5Hex("rTest127.0.0.11700000000.500000"), cookie.Value)
	assert.Equal(t, int64(0x7fffffff), cookie.Expires.Unix())
	assert.Equal(t, "/", cookie.Path)
	assert.Equal(t, "", cookie.Domain)

	id, ok := rc.Flags.VisitorID()
	assert.True(t, ok)
	assert.Equal(t, cookie.Value, id)
}

func TestSetCookieIdempotent(t *testing.T) {
	c := New(Defaults{})
	rc := NewRequestContext("Test", "127.0.0.1", "/")
	store := &recordingStore{}

	c.SetCookie(rc, store, RequestOptions{})
	first, _ := rc.Flags.VisitorID()
	c.SetCookie(rc, store, RequestOptions{})
	second, _ := rc.Flags.VisitorID()

	assert.Len(t, store.cookies, 1)
	assert.Equal(t, first, second)
}

func TestSetCookieKeepsExisting(t *testing.T) {
	c := New(Defaults{})
	rc := NewRequestContext("Test", "127.0.0.1", "/")
	rc.Cookies[VisitorCookieName] = "returning"
	store := &recordingStore{}

	c.SetCookie(rc, store, RequestOptions{})

	assert.Empty(t, store.cookies)
	_, ok := rc.Flags.VisitorID()
	assert.False(t, ok)
}

func TestSetCookieDomainAndPath(t *testing.T) {
	cases := []struct {
		name       string
		d          Defaults
		opts       RequestOptions
		wantDomain string
		wantPath   string
	}{
		{"bare domain gets dot", Defaults{}, RequestOptions{CookieDomain: String("example.com")}, ".example.com", "/"},
		{"dotted domain unchanged", Defaults{}, RequestOptions{CookieDomain: String(".example.com")}, ".example.com", "/"},
		{"domain from defaults", Defaults{CookieDomain: "example.org", CookiePath: "/m"}, RequestOptions{}, ".example.org", "/m"},
		{"options beat defaults", Defaults{CookieDomain: "example.org", CookiePath: "/m"}, RequestOptions{CookieDomain: String("example.net"), CookiePath: String("/videos")}, ".example.net", "/videos"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := &recordingStore{}
			New(tc.d).SetCookie(NewRequestContext("ua", "ip", "/"), store, tc.opts)
			require.Len(t, store.cookies, 1)
			assert.Equal(t, tc.wantDomain, store.cookies[0].Domain)
			assert.Equal(t, tc.wantPath, store.cookies[0].Path)
		})
	}
}

func TestSetCookieVisibleToSameRequest(t *testing.T) {
	c := New(Defaults{PublisherID: "pub1"})
	rc := NewRequestContext("ua", "ip", "/")
	var set string
	c.SetCookie(rc, CookieStoreFunc(func(ck *http.Cookie) { set = ck.Value }), RequestOptions{})

	p, ok := c.Assemble(rc, "s", RequestOptions{})
	require.True(t, ok)
	assert.Equal(t, set, p["o"])
}
