package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server exposes the metrics endpoint on its own listener.
type Server struct {
	server *http.Server
	logger *slog.Logger
}

// NewServer creates a metrics server listening on port and serving path
// from gatherer, or from the default gatherer when nil.
func NewServer(port int, path string, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	if path == "" {
		path = "/metrics"
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return &Server{
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Handler returns the HTTP handler serving the metrics path.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start blocks serving metrics until Shutdown. A clean shutdown returns nil.
func (s *Server) Start() error {
	s.logger.Info("starting metrics server", "address", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
