package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"lunchmind/browser"
	"lunchmind/engine"
)

// Discoverer is the part of engine.Engine the HTTP front end serves.
type Discoverer interface {
	Discover(ctx context.Context, keyword, hint string, limit int) (engine.Result, error)
	DiscoverText(ctx context.Context, text, hint string, limit int) (engine.Result, error)
	PoolStats() (browser.Stats, bool)
}

// Server represents the API server
type Server struct {
	discoverer Discoverer
	gatherer   prometheus.Gatherer
	logger     *zap.Logger
	timeout    time.Duration
	srv        *http.Server
}

// NewServer creates a new API server. gatherer backs /metrics; nil leaves
// the endpoint out.
func NewServer(d Discoverer, gatherer prometheus.Gatherer, port int, timeout time.Duration, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		discoverer: d,
		gatherer:   gatherer,
		logger:     logger,
		timeout:    timeout,
	}
	s.srv = &http.Server{
		Addr:              ":" + strconv.Itoa(port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/discover", s.DiscoverHandler)
	mux.HandleFunc("/health", s.HealthHandler)
	if s.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

// Start serves until Shutdown.
func (s *Server) Start() error {
	s.logger.Info("starting API server", zap.String("addr", s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
