package adrequest

import (
	"crypto/md5"
	"encoding/hex"
	"net/url"
	"strconv"
	"strings"
)

// PubcodeVersion identifies this client to the remote service.
const PubcodeVersion = "20090106-GO"

// RequestType is the wire value of the rt field.
type RequestType int

const (
	AdOnly RequestType = iota
	AnalyticsOnly
	Combined
)

func (t RequestType) String() string {
	switch t {
	case AdOnly:
		return "ad"
	case AnalyticsOnly:
		return "analytics"
	case Combined:
		return "combined"
	default:
		return "unknown"
	}
}

// requestTypes maps (ad, analytics) onto the wire request type. The
// (false, false) pair is missing on purpose: nothing gets sent.
var requestTypes = map[[2]bool]RequestType{
	{true, false}: AdOnly,
	{false, true}: AnalyticsOnly,
	{true, true}:  Combined,
}

// ignoredHeaders are never forwarded, keyed by their normalized name.
var ignoredHeaders = map[string]struct{}{
	"PRAGMA":           {},
	"CACHE_CONTROL":    {},
	"CONNECTION":       {},
	"USER_AGENT":       {},
	"COOKIE":           {},
	"ADMOB_PIXEL_SENT": {},
	"ADMOBUU":          {},
}

// Payload is the flat form sent to the endpoint.
type Payload map[string]string

// Encode renders the payload as a URL-encoded form body with sorted keys.
func (p Payload) Encode() string {
	values := make(url.Values, len(p))
	for k, v := range p {
		values.Set(k, v)
	}
	return values.Encode()
}

// RequestType returns the decoded rt field.
func (p Payload) RequestType() RequestType {
	rt, err := strconv.Atoi(p["rt"])
	if err != nil {
		return -1
	}
	return RequestType(rt)
}

// put stores v under key unless v is absent.
func (p Payload) put(key string, v *string) {
	if v != nil {
		p[key] = *v
	}
}

// normalizeHeader upper-cases name, maps hyphens to underscores and strips a
// CGI style HTTP_ prefix.
func normalizeHeader(name string) string {
	n := strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
	return strings.TrimPrefix(n, "HTTP_")
}

// ignoredHeader reports whether a header must stay out of the payload.
func ignoredHeader(name string) bool {
	_, ok := ignoredHeaders[normalizeHeader(name)]
	return ok
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func formatTimestamp(z float64) string {
	return strconv.FormatFloat(z, 'f', -1, 64)
}

// Assemble builds the payload for one call. It returns false when the call is
// neither an ad nor an analytics request, in which case nothing must be sent.
// Apart from reading rc.Flags it has no side effects.
func (c *Client) Assemble(rc *RequestContext, sessionID string, opts RequestOptions) (Payload, bool) {
	publisherID := orDefault(opts.PublisherID, c.defaults.PublisherID)
	analyticsID := orDefault(opts.AnalyticsID, c.defaults.AnalyticsID)
	encoding := orDefault(opts.Encoding, c.defaults.Encoding)

	analytics := enabled(opts.AnalyticsRequest) && present(analyticsID) && !rc.flags().PixelSent()
	ad := enabled(opts.AdRequest) && present(publisherID)

	rt, ok := requestTypes[[2]bool{ad, analytics}]
	if !ok {
		return nil, false
	}

	p := Payload{
		"rt": strconv.Itoa(int(rt)),
		"z":  formatTimestamp(c.timestamp()),
		"u":  rc.UserAgent,
		"i":  rc.RemoteIP,
		"v":  PubcodeVersion,
		"f":  "html",
	}
	p["p"] = rc.URI
	p.put("p", opts.Page)
	p.put("f", opts.Format)
	if sessionID != "" {
		p["t"] = md5Hex(sessionID)
	}
	p.put("o", rc.visitorID())
	p.put("s", publisherID)
	p.put("a", analyticsID)
	p.put("ma", opts.Markup)
	p.put("d[pc]", opts.PostalCode)
	p.put("d[ac]", opts.AreaCode)
	p.put("d[coord]", opts.Coordinates)
	p.put("d[dob]", opts.DateOfBirth)
	p.put("d[gender]", opts.Gender)
	p.put("k", opts.Keywords)
	p.put("search", opts.Search)
	p.put("title", opts.Title)
	p.put("event", opts.Event)

	for name, value := range rc.Headers {
		if ignoredHeader(name) {
			continue
		}
		p["h[HTTP_"+normalizeHeader(name)+"]"] = value
	}

	p.put("e", encoding)
	if opts.TextOnly != nil && *opts.TextOnly {
		p["y"] = "text"
	}
	if c.defaults.test(opts) {
		p["m"] = "test"
	}
	return p, true
}
