package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/patrickwarner/adbeacon/internal/adrequest"
	"github.com/patrickwarner/adbeacon/internal/config"
	"github.com/patrickwarner/adbeacon/internal/httpctx"
	"github.com/patrickwarner/adbeacon/internal/middleware"
	"github.com/patrickwarner/adbeacon/internal/observability"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// Server groups dependencies for HTTP handlers.
type Server struct {
	Logger  *zap.Logger
	Client  *adrequest.Client
	Metrics observability.MetricsRegistry
	Config  config.Config
}

// NewServer constructs a Server.
func NewServer(logger *zap.Logger, client *adrequest.Client, metrics observability.MetricsRegistry, cfg config.Config) *Server {
	return &Server{
		Logger:  logger,
		Client:  client,
		Metrics: metrics,
		Config:  cfg,
	}
}

// Routes registers the host endpoints on r. Every request passes through the
// visitor cookie middleware before reaching a handler.
func (s *Server) Routes(r *mux.Router) {
	r.Use(middleware.WithTraceLogger(s.Logger))
	r.Use(httpctx.Middleware(s.Client))

	r.Handle("/", s.instrument("page", s.PageHandler)).Methods(http.MethodGet)
	r.Handle("/ad", s.instrument("ad", s.AdHandler)).Methods(http.MethodGet)
	r.Handle("/analytics", s.instrument("analytics", s.AnalyticsHandler)).Methods(http.MethodGet)
	r.HandleFunc("/health", s.HealthHandler).Methods(http.MethodGet)
}

// Handler returns the routed host application wrapped for tracing.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	s.Routes(r)
	return otelhttp.NewHandler(r, s.Config.ServiceName)
}

func (s *Server) instrument(endpoint string, h http.HandlerFunc) http.Handler {
	return middleware.Instrument(endpoint, s.Metrics, h)
}
