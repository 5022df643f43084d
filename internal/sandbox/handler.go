package sandbox

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/patrickwarner/adbeacon/internal/middleware"
	"github.com/patrickwarner/adbeacon/internal/observability"
	"go.uber.org/zap"
)

// 1x1 transparent GIF.
var pixelGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00, 0x00, 0x00, 0x00, 0x00,
	0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00, 0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00,
	0x01, 0x00, 0x01, 0x00, 0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

const defaultStatsLimit = 20

// Server answers ad and pixel beacons and exposes what it recorded.
type Server struct {
	Logger  *zap.Logger
	Store   *Store
	Metrics observability.MetricsRegistry
	Markup  string
}

// NewServer constructs a Server.
func NewServer(logger *zap.Logger, store *Store, metrics observability.MetricsRegistry, markup string) *Server {
	return &Server{Logger: logger, Store: store, Metrics: metrics, Markup: markup}
}

// Routes registers the sandbox endpoints on r.
func (s *Server) Routes(r *mux.Router) {
	r.Handle("/ad_source.php", middleware.Instrument("ad_source", s.Metrics, http.HandlerFunc(s.AdSourceHandler))).Methods(http.MethodPost)
	r.Handle("/e0", middleware.Instrument("pixel", s.Metrics, http.HandlerFunc(s.PixelHandler))).Methods(http.MethodGet)
	r.Handle("/stats", middleware.Instrument("stats", s.Metrics, http.HandlerFunc(s.StatsHandler))).Methods(http.MethodGet)
	r.HandleFunc("/health", s.HealthHandler).Methods(http.MethodGet)
}

// AdSourceHandler records a form-encoded request and replies with the
// configured markup for ad and combined requests, and an empty body for
// analytics-only ones.
func (s *Server) AdSourceHandler(w http.ResponseWriter, r *http.Request) {
	logger := middleware.LoggerFromRequest(r, s.Logger)

	if err := r.ParseForm(); err != nil {
		logger.Warn("invalid form", zap.Error(err))
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	rt := r.PostForm.Get("rt")
	if _, ok := requestTypeLabels[rt]; !ok {
		logger.Warn("unknown request type", zap.String("rt", rt))
		http.Error(w, "unknown request type", http.StatusBadRequest)
		return
	}

	id, err := s.Store.RecordRequest(r.Context(), r.PostForm)
	if err != nil {
		logger.Error("record request", zap.Error(err))
		http.Error(w, "store error", http.StatusInternalServerError)
		return
	}
	s.Metrics.IncrementSandboxRecords("request")
	if observability.ShouldSample(observability.GetSamplingRate()) {
		logger.Debug("recorded request",
			zap.String("id", id),
			zap.String("rt", rt),
			zap.String("publisher", r.PostForm.Get("s")),
			zap.Bool("test", r.PostForm.Get("m") == "test"))
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if rt != "1" {
		_, _ = w.Write([]byte(s.Markup))
	}
}

// PixelHandler records a pixel hit and always serves the GIF.
func (s *Server) PixelHandler(w http.ResponseWriter, r *http.Request) {
	logger := middleware.LoggerFromRequest(r, s.Logger)

	if err := s.Store.RecordPixel(r.Context(), r.URL.Query()); err != nil {
		// the image is served regardless
		logger.Error("record pixel", zap.Error(err))
	} else {
		s.Metrics.IncrementSandboxRecords("pixel")
	}

	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pixelGIF)
}

// StatsHandler returns today's counters and recent requests as JSON. The
// optional limit query parameter caps the recent list.
func (s *Server) StatsHandler(w http.ResponseWriter, r *http.Request) {
	logger := middleware.LoggerFromRequest(r, s.Logger)

	limit := defaultStatsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > recentLimit {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	stats, err := s.Store.Stats(r.Context(), limit)
	if err != nil {
		logger.Error("read stats", zap.Error(err))
		http.Error(w, "store error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		logger.Error("encode stats", zap.Error(err))
	}
}

// HealthHandler pings Redis.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := s.Store.Client.Ping(r.Context()).Err(); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"redis unavailable"}`))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
