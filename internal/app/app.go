// Package app provides application initialization and wiring.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gorilla/mux"

	"github.com/jobrunner/geolayers/internal/adapters/geopackage"
	"github.com/jobrunner/geolayers/internal/adapters/geotiff"
	httpAdapter "github.com/jobrunner/geolayers/internal/adapters/http"
	"github.com/jobrunner/geolayers/internal/adapters/metrics"
	"github.com/jobrunner/geolayers/internal/adapters/storage"
	tlsAdapter "github.com/jobrunner/geolayers/internal/adapters/tls"
	"github.com/jobrunner/geolayers/internal/adapters/vector"
	"github.com/jobrunner/geolayers/internal/adapters/watcher"
	"github.com/jobrunner/geolayers/internal/application"
	"github.com/jobrunner/geolayers/internal/config"
	"github.com/jobrunner/geolayers/internal/domain"
	"github.com/jobrunner/geolayers/internal/fixtures"
	"github.com/jobrunner/geolayers/internal/ports/output"
)

// App holds all application components.
type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	Store         *application.LayerStore
	Viewport      *application.ViewportCoordinator
	Ingest        *application.IngestService
	Scene         *application.SceneService
	HealthService *application.HealthService
	Storage       output.ObjectStorage
	Importer      *application.SourceImporter
	SyncService   *application.SyncService
	Transformer   *geopackage.Transformer
	HTTPServer    *httpAdapter.Server
	TLSServer     *tlsAdapter.Server
	Watcher       *watcher.Watcher
	Metrics       *metrics.Collector
	MetricsServer *metrics.Server

	local *storage.LocalStorage
}

// New creates and initializes a new application.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	// Initialize metrics
	var metricsCollector output.MetricsCollector = &output.NoOpMetrics{}
	var middleware []mux.MiddlewareFunc
	if cfg.Metrics.Enabled {
		app.Metrics = metrics.NewCollector("geolayers", nil)
		app.MetricsServer = metrics.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, nil, logger)
		metricsCollector = app.Metrics
		middleware = append(middleware, app.Metrics.Middleware)
	}

	// Layer store and viewport
	app.Store = application.NewLayerStore(application.StoreOptions{
		FitPadding:    cfg.Layers.FitPadding,
		FitMaxZoom:    cfg.Layers.FitMaxZoom,
		SettleTimeout: cfg.Layers.SettleTimeout,
	}, metricsCollector, logger.With("component", "store"))

	app.Viewport = application.NewViewportCoordinator(domain.ViewState{
		Center: domain.LatLng{Lat: cfg.Viewport.CenterLat, Lng: cfg.Viewport.CenterLng},
		Zoom:   cfg.Viewport.Zoom,
	}, metricsCollector, logger.With("component", "viewport"))

	// Coordinate transformer backed by SpatiaLite
	var (
		gpkgTransformer   geopackage.GeometryTransformer
		rasterTransformer output.CoordinateTransformer
	)
	if cfg.Layers.Reproject {
		t, err := geopackage.NewTransformer(ctx)
		if err != nil {
			logger.Warn("coordinate transformation unavailable, layers must be in WGS84", "error", err)
		} else {
			app.Transformer = t
			gpkgTransformer = t
			rasterTransformer = t
		}
	}

	// Ingestion
	app.Ingest = application.NewIngestService(
		app.Store,
		app.Viewport,
		[]output.VectorDecoder{
			vector.NewGeoJSONDecoder(),
			vector.NewShapefileDecoder(cfg.Layers.TempDir, gpkgTransformer, logger.With("component", "shapefile")),
			vector.NewKMLDecoder(),
			geopackage.NewDecoder(cfg.Layers.TempDir, gpkgTransformer, logger.With("component", "geopackage")),
		},
		[]output.RasterDecoder{
			geotiff.NewDecoder(int(cfg.Layers.MaxRasterPixels), rasterTransformer, logger.With("component", "geotiff")),
		},
		cfg.Layers.RasterOpacity,
		metricsCollector,
		logger.With("component", "ingest"),
	)
	app.Scene = application.NewSceneService(app.Store)

	if cfg.Layers.SeedPipeline {
		if err := application.SeedPipeline(app.Store, fixtures.PipelineGeoJSON); err != nil {
			return nil, fmt.Errorf("seeding pipeline layer: %w", err)
		}
	}

	// Layer file source
	if cfg.Storage.Enabled() {
		if err := app.initSource(ctx, metricsCollector); err != nil {
			return nil, err
		}
	}

	app.HealthService = application.NewHealthService(app.Store, app.Viewport, cfg.Storage.Type)

	// Initialize HTTP server
	app.HTTPServer = httpAdapter.NewServer(
		cfg.Server,
		httpAdapter.Services{
			Layers:   app.Store,
			Ingest:   app.Ingest,
			Viewport: app.Viewport,
			Scene:    app.Scene,
			Health:   app.HealthService,
			Sync:     app.SyncService,
		},
		logger,
		middleware...,
	)

	// Initialize TLS server if enabled
	if cfg.TLS.Enabled {
		tlsServer, err := tlsAdapter.NewServer(
			tlsAdapter.Config{
				Enabled:      cfg.TLS.Enabled,
				Domains:      cfg.TLS.Domains,
				Email:        cfg.TLS.Email,
				CacheDir:     cfg.TLS.CacheDir,
				Staging:      cfg.TLS.Staging,
				ReadTimeout:  cfg.Server.ReadTimeout,
				WriteTimeout: cfg.Server.WriteTimeout,
				DNS: tlsAdapter.DNSConfig{
					SubscriptionID:    cfg.TLS.DNS.SubscriptionID,
					ResourceGroupName: cfg.TLS.DNS.ResourceGroupName,
					ClientID:          cfg.TLS.DNS.ClientID,
				},
			},
			app.HTTPServer.Router(),
			logger,
		)
		if err != nil {
			return nil, fmt.Errorf("initializing TLS: %w", err)
		}
		app.TLSServer = tlsServer
	}

	// Initialize file watcher for hot-reload
	if app.local != nil && cfg.Storage.Watch {
		w, err := watcher.New(
			watcher.Config{
				Paths:  []string{cfg.Storage.LocalPath},
				Accept: app.Ingest.Accepts,
			},
			app.handleFileEvent,
			logger.With("component", "watcher"),
		)
		if err != nil {
			logger.Warn("failed to initialize file watcher", "error", err)
		} else {
			app.Watcher = w
		}
	}

	return app, nil
}

// initSource connects the configured object storage and the importer that
// mirrors it into the store.
func (a *App) initSource(ctx context.Context, metricsCollector output.MetricsCollector) error {
	cfg := a.Config.Storage
	filter := storage.NewFilter(a.Ingest.Extensions()...)

	src, err := initStorage(ctx, cfg, filter)
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}
	if local, ok := src.(*storage.LocalStorage); ok {
		a.local = local
	}
	a.Storage = storage.NewInstrumented(src, metricsCollector)

	opts := application.ImportOptions{
		CacheDir: cfg.CacheDir,
		MaxBytes: cfg.MaxBytes,
	}
	if a.local != nil {
		// Local files are read in place.
		opts.CacheDir = cfg.LocalPath
		opts.KeepFiles = true
	}

	a.Importer = application.NewSourceImporter(
		a.Storage,
		a.Ingest,
		a.Store,
		a.Logger.With("component", "importer"),
		opts,
	)
	a.SyncService = application.NewSyncService(a.Importer, cfg.SyncInterval, a.Logger.With("component", "sync"))
	return nil
}

// Start starts all application components.
func (a *App) Start(ctx context.Context) error {
	if a.SyncService != nil {
		result, err := a.SyncService.SyncNow(ctx)
		if err != nil {
			a.Logger.Warn("initial layer sync failed", "error", err)
		} else {
			a.Logger.Info("initial layer sync complete", "layers", result.LayersTotal, "failed", result.LayersFailed)
		}
		a.SyncService.Start(ctx)
	}

	// Start file watcher
	if a.Watcher != nil {
		if err := a.Watcher.Start(ctx); err != nil {
			a.Logger.Warn("failed to start file watcher", "error", err)
		}
	}

	// Start metrics server in background
	if a.MetricsServer != nil {
		go func() {
			if err := a.MetricsServer.Start(); err != nil {
				a.Logger.Error("metrics server error", "error", err)
			}
		}()
	}

	// Start server
	if a.TLSServer != nil {
		return a.TLSServer.ListenAndServe(a.Config.Server.Address())
	}
	return a.HTTPServer.Start()
}

// Shutdown gracefully shuts down all components.
func (a *App) Shutdown(ctx context.Context) error {
	a.Logger.Info("shutting down application")

	if a.Watcher != nil {
		_ = a.Watcher.Stop()
	}
	if a.SyncService != nil {
		a.SyncService.Stop()
	}

	if a.MetricsServer != nil {
		if err := a.MetricsServer.Shutdown(ctx); err != nil {
			a.Logger.Error("metrics server shutdown error", "error", err)
		}
	}

	if a.TLSServer != nil {
		if err := a.TLSServer.Shutdown(ctx); err != nil {
			a.Logger.Error("TLS server shutdown error", "error", err)
		}
	}

	// Also ends viewport sessions in TLS mode.
	if err := a.HTTPServer.Shutdown(ctx); err != nil {
		a.Logger.Error("HTTP server shutdown error", "error", err)
	}

	a.Store.Close()

	if a.Transformer != nil {
		if err := a.Transformer.Close(); err != nil {
			a.Logger.Error("failed to close transformer", "error", err)
		}
	}

	return nil
}

// handleFileEvent re-imports or removes the layer of a changed file.
func (a *App) handleFileEvent(ctx context.Context, event watcher.Event) error {
	key, err := a.local.Key(event.Path)
	if err != nil {
		return fmt.Errorf("resolving storage key: %w", err)
	}

	a.Logger.Info("layer file event", "key", key, "operation", event.Operation.String())

	if event.Operation == watcher.OpDelete {
		a.Importer.Remove(key)
		return nil
	}
	return a.Importer.Refresh(ctx, key)
}

// initStorage initializes the appropriate storage adapter.
func initStorage(ctx context.Context, cfg config.StorageConfig, filter storage.Filter) (output.ObjectStorage, error) {
	switch cfg.Type {
	case "local":
		return storage.NewLocalStorage(cfg.LocalPath, filter), nil

	case "s3":
		return storage.NewS3Storage(ctx, storage.S3Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Prefix:          cfg.S3.Prefix,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			Filter:          filter,
		})

	case "azure":
		return storage.NewAzureStorage(storage.AzureConfig{
			Container:        cfg.Azure.Container,
			AccountName:      cfg.Azure.AccountName,
			AccountKey:       cfg.Azure.AccountKey,
			ConnectionString: cfg.Azure.ConnectionString,
			Prefix:           cfg.Azure.Prefix,
			Filter:           filter,
		})

	case "http":
		return storage.NewHTTPStorage(storage.HTTPConfig{
			BaseURL:   cfg.HTTP.BaseURL,
			IndexFile: cfg.HTTP.IndexFile,
			Timeout:   cfg.HTTP.Timeout,
			Username:  cfg.HTTP.Username,
			Password:  cfg.HTTP.Password,
			Filter:    filter,
		}), nil

	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
