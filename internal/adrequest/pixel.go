package adrequest

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// PixelURL is the tracking pixel endpoint.
const PixelURL = "http://p.admob.com/e0"

// formatSeconds renders d in seconds with at least one decimal, e.g. "1.0".
func formatSeconds(d time.Duration) string {
	s := strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// InjectPixel appends the tracking pixel to body unless one was already
// emitted for rc. It runs whether or not the dispatch succeeded. The id values
// are query-escaped.
func (c *Client) InjectPixel(body string, payload Payload, elapsed, timeout time.Duration, rc *RequestContext) string {
	if !rc.flags().MarkPixelSent() {
		return body
	}
	c.metrics.IncrementPixels()

	var b strings.Builder
	b.Grow(len(body) + 256)
	b.WriteString(body)
	b.WriteString(`<img src="`)
	b.WriteString(c.pixelURL)
	b.WriteString("?rt=")
	b.WriteString(payload["rt"])
	b.WriteString("&amp;z=")
	b.WriteString(payload["z"])
	b.WriteString("&amp;a=")
	b.WriteString(url.QueryEscape(payload["a"]))
	b.WriteString("&amp;s=")
	b.WriteString(url.QueryEscape(payload["s"]))
	b.WriteString("&amp;o=")
	b.WriteString(url.QueryEscape(payload["o"]))
	fmt.Fprintf(&b, "&amp;lt=%0.4f", elapsed.Seconds())
	b.WriteString("&amp;to=")
	b.WriteString(formatSeconds(timeout))
	b.WriteString(`" alt="" width="1" height="1"/>`)
	return b.String()
}
