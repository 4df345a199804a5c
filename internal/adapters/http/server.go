// Package http provides the HTTP server and handlers.
package http //nolint:revive // package name conflicts with stdlib but is acceptable in this context

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/jobrunner/geolayers/internal/application"
	"github.com/jobrunner/geolayers/internal/config"
	"github.com/jobrunner/geolayers/internal/ports/input"
)

// Services bundles the application services exposed over HTTP.
type Services struct {
	Layers   input.LayerStore
	Ingest   input.Ingestor
	Viewport *application.ViewportCoordinator
	Scene    input.SceneBuilder
	Health   input.HealthChecker
	Sync     *application.SyncService // Optional
}

// Server wraps the HTTP server with application handlers.
type Server struct {
	server     *http.Server
	router     *mux.Router
	layers     input.LayerStore
	ingest     input.Ingestor
	viewport   *application.ViewportCoordinator
	scene      input.SceneBuilder
	health     input.HealthChecker
	sync       *application.SyncService
	upgrader   websocket.Upgrader
	middleware []mux.MiddlewareFunc
	logger     *slog.Logger
	config     config.ServerConfig

	// Hijacked websocket connections are not tracked by http.Server, so
	// sessions stop on this context instead.
	ctx    context.Context
	cancel context.CancelFunc
}

// NewServer creates a new HTTP server. Extra middleware, such as metrics
// collection, runs after logging and recovery.
func NewServer(
	cfg config.ServerConfig,
	services Services,
	logger *slog.Logger,
	middleware ...mux.MiddlewareFunc,
) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		layers:     services.Layers,
		ingest:     services.Ingest,
		viewport:   services.Viewport,
		scene:      services.Scene,
		health:     services.Health,
		sync:       services.Sync,
		middleware: middleware,
		logger:     logger,
		config:     cfg,
		ctx:        ctx,
		cancel:     cancel,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkSocketOrigin,
	}

	s.router = s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.Address(),
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() *mux.Router {
	r := mux.NewRouter()

	// Add middleware
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	for _, mw := range s.middleware {
		r.Use(mw)
	}

	// Add CORS middleware if configured
	if s.config.CORS.Enabled() {
		r.Use(s.corsMiddleware)
	}

	// Health endpoints
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/health/live", s.handleLiveness).Methods(http.MethodGet)
	r.HandleFunc("/health/ready", s.handleReadiness).Methods(http.MethodGet)

	// API v1
	api := r.PathPrefix("/api/v1").Subrouter()

	// Layer endpoints
	api.HandleFunc("/layers", s.handleListLayers).Methods(http.MethodGet)
	api.HandleFunc("/layers/upload", s.handleUpload).Methods(http.MethodPost)
	api.HandleFunc("/layers/vector", s.handleCreateVector).Methods(http.MethodPost)
	api.HandleFunc("/layers/vector/{id}", s.handleGetVector).Methods(http.MethodGet)
	api.HandleFunc("/layers/vector/{id}", s.handleDeleteVector).Methods(http.MethodDelete)
	api.HandleFunc("/layers/vector/{id}/toggle", s.handleToggleVector).Methods(http.MethodPost)
	api.HandleFunc("/layers/vector/{id}/zoom", s.handleZoomToVector).Methods(http.MethodPost)
	api.HandleFunc("/layers/vector/{id}/mounted", s.handleMounted).Methods(http.MethodPost)
	api.HandleFunc("/layers/raster/{id}", s.handleGetRaster).Methods(http.MethodGet)
	api.HandleFunc("/layers/raster/{id}", s.handleDeleteRaster).Methods(http.MethodDelete)
	api.HandleFunc("/layers/raster/{id}/toggle", s.handleToggleRaster).Methods(http.MethodPost)
	api.HandleFunc("/layers/raster/{id}/opacity", s.handleSetOpacity).Methods(http.MethodPut)

	// Renderer contract
	api.HandleFunc("/scene", s.handleScene).Methods(http.MethodGet)

	// Viewport endpoints
	api.HandleFunc("/viewport", s.handleGetViewport).Methods(http.MethodGet)
	api.HandleFunc("/viewport", s.handleSetViewport).Methods(http.MethodPut)
	api.HandleFunc("/viewport/zoom", s.handleZoom).Methods(http.MethodPut)
	api.HandleFunc("/viewport/reset", s.handleResetView).Methods(http.MethodPost)
	api.HandleFunc("/viewport/ws", s.handleViewportSocket).Methods(http.MethodGet)

	// Sync endpoint (only if sync service is configured)
	if s.sync != nil {
		api.HandleFunc("/sync", s.handleSync).Methods(http.MethodPost)
	}

	// OpenAPI spec and Swagger UI
	r.HandleFunc("/openapi.json", s.handleOpenAPI).Methods(http.MethodGet)
	r.HandleFunc("/docs", s.handleSwaggerUI).Methods(http.MethodGet)
	r.HandleFunc("/swagger", s.handleSwaggerUI).Methods(http.MethodGet)

	// Embedded map client (if enabled)
	if s.config.FrontendEnabled {
		r.HandleFunc("/", s.handleFrontend).Methods(http.MethodGet)
	}

	return r
}

// Router returns the mux router.
func (s *Server) Router() *mux.Router {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "address", s.config.Address())
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server and closes viewport sessions.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	s.cancel()
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs incoming requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Wrap response writer to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.statusCode,
			"duration", time.Since(start),
			"remote_addr", r.RemoteAddr,
		)
	})
}

// recoveryMiddleware recovers from panics.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("panic recovered", "error", err, "path", r.URL.Path)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack lets the viewport websocket upgrade through the wrapper.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	rw.statusCode = http.StatusSwitchingProtocols
	return hj.Hijack()
}
