package api

import (
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/patrickwarner/adbeacon/internal/adrequest"
	"github.com/patrickwarner/adbeacon/internal/httpctx"
	"github.com/patrickwarner/adbeacon/internal/middleware"
	"go.uber.org/zap"
)

// query parameter -> RequestOptions string field
var stringParams = map[string]func(*adrequest.RequestOptions) **string{
	"publisher_id": func(o *adrequest.RequestOptions) **string { return &o.PublisherID },
	"analytics_id": func(o *adrequest.RequestOptions) **string { return &o.AnalyticsID },
	"encoding":     func(o *adrequest.RequestOptions) **string { return &o.Encoding },
	"page":         func(o *adrequest.RequestOptions) **string { return &o.Page },
	"keywords":     func(o *adrequest.RequestOptions) **string { return &o.Keywords },
	"search":       func(o *adrequest.RequestOptions) **string { return &o.Search },
	"title":        func(o *adrequest.RequestOptions) **string { return &o.Title },
	"event":        func(o *adrequest.RequestOptions) **string { return &o.Event },
	"markup":       func(o *adrequest.RequestOptions) **string { return &o.Markup },
	"postal":       func(o *adrequest.RequestOptions) **string { return &o.PostalCode },
	"area_code":    func(o *adrequest.RequestOptions) **string { return &o.AreaCode },
	"coords":       func(o *adrequest.RequestOptions) **string { return &o.Coordinates },
	"dob":          func(o *adrequest.RequestOptions) **string { return &o.DateOfBirth },
	"gender":       func(o *adrequest.RequestOptions) **string { return &o.Gender },
	"format":       func(o *adrequest.RequestOptions) **string { return &o.Format },
}

var boolParams = map[string]func(*adrequest.RequestOptions) **bool{
	"ad_request":        func(o *adrequest.RequestOptions) **bool { return &o.AdRequest },
	"analytics_request": func(o *adrequest.RequestOptions) **bool { return &o.AnalyticsRequest },
	"text_only":         func(o *adrequest.RequestOptions) **bool { return &o.TextOnly },
	"test":              func(o *adrequest.RequestOptions) **bool { return &o.Test },
	"raise":             func(o *adrequest.RequestOptions) **bool { return &o.RaiseOnError },
}

// optionsFromQuery maps query parameters onto request options. Parameters
// that are absent stay unset so client defaults apply.
func optionsFromQuery(q url.Values) (adrequest.RequestOptions, error) {
	var opts adrequest.RequestOptions
	for name, field := range stringParams {
		if vals, ok := q[name]; ok {
			*field(&opts) = adrequest.String(vals[0])
		}
	}
	for name, field := range boolParams {
		if v := q.Get(name); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return opts, fmt.Errorf("invalid %s: %w", name, err)
			}
			*field(&opts) = adrequest.Bool(b)
		}
	}
	if v := q.Get("timeout"); v != "" {
		secs, err := strconv.ParseFloat(v, 64)
		if err != nil || secs <= 0 {
			return opts, fmt.Errorf("invalid timeout %q", v)
		}
		opts.Timeout = adrequest.Duration(time.Duration(secs * float64(time.Second)))
	}
	return opts, nil
}

type fetchFunc func(*http.Request, *adrequest.RequestContext, string, adrequest.RequestOptions) (string, error)

// serveFragment runs fetch with options parsed from the query and writes the
// resulting HTML fragment.
func (s *Server) serveFragment(w http.ResponseWriter, r *http.Request, fetch fetchFunc) {
	logger := middleware.LoggerFromRequest(r, s.Logger)

	opts, err := optionsFromQuery(r.URL.Query())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	rc := httpctx.FromRequest(r)
	html, err := fetch(r, rc, httpctx.SessionID(r, s.Config.SessionCookie), opts)
	if err != nil {
		logger.Warn("ad request failed", zap.Error(err))
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(html))
}

// AdHandler handles GET /ad and returns a single ad fragment.
func (s *Server) AdHandler(w http.ResponseWriter, r *http.Request) {
	s.serveFragment(w, r, func(r *http.Request, rc *adrequest.RequestContext, sid string, opts adrequest.RequestOptions) (string, error) {
		return s.Client.Request(r.Context(), rc, sid, opts)
	})
}

// AnalyticsHandler handles GET /analytics and records a page view.
func (s *Server) AnalyticsHandler(w http.ResponseWriter, r *http.Request) {
	s.serveFragment(w, r, func(r *http.Request, rc *adrequest.RequestContext, sid string, opts adrequest.RequestOptions) (string, error) {
		return s.Client.Analytics(r.Context(), rc, sid, opts)
	})
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head><title>{{.Title}}</title></head>
<body>
<div class="ad top">{{.Top}}</div>
<h1>{{.Title}}</h1>
<div class="ad bottom">{{.Bottom}}</div>
</body>
</html>
`))

// PageHandler handles GET / and renders a page with two ad slots. Both slots
// share one request context, so analytics and the pixel are reported once.
func (s *Server) PageHandler(w http.ResponseWriter, r *http.Request) {
	logger := middleware.LoggerFromRequest(r, s.Logger)

	opts, err := optionsFromQuery(r.URL.Query())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	title := "adbeacon"
	if opts.Title != nil {
		title = *opts.Title
	}

	rc := httpctx.FromRequest(r)
	sid := httpctx.SessionID(r, s.Config.SessionCookie)

	top, err := s.Client.Request(r.Context(), rc, sid, opts)
	if err != nil {
		logger.Warn("top slot failed", zap.Error(err))
	}
	bottom, err := s.Client.Ad(r.Context(), rc, sid, opts)
	if err != nil {
		logger.Warn("bottom slot failed", zap.Error(err))
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err = pageTemplate.Execute(w, struct {
		Title       string
		Top, Bottom template.HTML
	}{title, template.HTML(top), template.HTML(bottom)})
	if err != nil {
		logger.Error("render page", zap.Error(err))
	}
}

func statusFor(err error) int {
	var e *adrequest.Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}
	switch e.Kind {
	case adrequest.KindConfigurationConflict:
		return http.StatusBadRequest
	case adrequest.KindNoOpRequest:
		return http.StatusUnprocessableEntity
	case adrequest.KindNetworkTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}
