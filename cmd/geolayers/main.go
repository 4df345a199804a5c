// Package main provides the entry point for the GeoLayers map layer service.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jobrunner/geolayers/internal/app"
	"github.com/jobrunner/geolayers/internal/config"
	"github.com/jobrunner/geolayers/internal/ports/input"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

var cfgFile string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "geolayers",
		Short: "GeoLayers - interactive map layer service",
		Long: `GeoLayers manages the vector and raster layers of an interactive map.

It ingests geospatial files, keeps an ordered set of layers and drives a
connected map client over a websocket so that new layers are fitted into
view once they are drawn.

Supported formats: GeoJSON, zipped Shapefile, KML/KMZ, GeoPackage and
GeoTIFF. Layer files can be imported from a local directory, AWS S3, Azure
Blob Storage or a plain HTTP server.`,
		RunE:          runServer,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cobra.OnInitialize(initConfig)

	pf := root.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.String("log-format", "json", "log format (json, text)")

	f := root.Flags()
	f.String("host", "0.0.0.0", "server host")
	f.Int("port", 8080, "server port")
	f.Bool("frontend", true, "serve the embedded map client")
	f.Bool("tls", false, "enable TLS")
	f.StringSlice("tls-domains", nil, "TLS domains")
	f.String("tls-email", "", "TLS email for Let's Encrypt")
	f.String("storage-type", "", "layer source type (local, s3, azure, http; empty disables)")
	f.String("storage-path", "./data", "local layer directory")
	f.Duration("sync-interval", 0, "interval between source syncs (0 disables)")
	f.StringSlice("cors", nil, "allowed CORS origins (e.g., https://example.com,*.sub.domain.tld)")
	f.Bool("seed-pipeline", true, "seed the pipeline network layer")
	f.Bool("reproject", true, "reproject layers with SpatiaLite")

	bindFlags(map[string]string{
		"logging.level":               "log-level",
		"logging.format":              "log-format",
		"server.host":                 "host",
		"server.port":                 "port",
		"server.frontend_enabled":     "frontend",
		"server.cors.allowed_origins": "cors",
		"tls.enabled":                 "tls",
		"tls.domains":                 "tls-domains",
		"tls.email":                   "tls-email",
		"storage.type":                "storage-type",
		"storage.local_path":          "storage-path",
		"storage.sync_interval":       "sync-interval",
		"layers.seed_pipeline":        "seed-pipeline",
		"layers.reproject":            "reproject",
	}, root)

	root.AddCommand(newVersionCmd(), newInspectCmd())
	return root
}

// bindFlags binds viper keys to local or persistent flags of cmd.
func bindFlags(keys map[string]string, cmd *cobra.Command) {
	for key, name := range keys {
		flag := cmd.Flags().Lookup(name)
		if flag == nil {
			flag = cmd.PersistentFlags().Lookup(name)
		}
		_ = viper.BindPFlag(key, flag)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "GeoLayers %s\n", version)
			fmt.Fprintf(out, "  Commit:     %s\n", commit)
			fmt.Fprintf(out, "  Build Date: %s\n", buildDate)
		},
	}
}

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect FILE...",
		Short: "Decode layer files and print what would be loaded",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			cfg.Storage.Type = ""
			cfg.Metrics.Enabled = false
			cfg.TLS.Enabled = false
			cfg.Layers.SeedPipeline = false

			logger := setupLogger(cfg.Logging)
			return inspectFiles(cmd.Context(), cmd.OutOrStdout(), cfg, logger, args)
		},
	}
}

func initConfig() {
	config.Defaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
}

// inspectFiles ingests each file into a throwaway store and prints one line
// per file.
func inspectFiles(ctx context.Context, out io.Writer, cfg *config.Config, logger *slog.Logger, paths []string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() { _ = application.Shutdown(context.Background()) }()

	failed := 0
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(out, "%s\terror: %v\n", path, err)
			failed++
			continue
		}

		res, err := application.Ingest.Ingest(ctx, input.IngestRequest{
			Filename: filepath.Base(path),
			Data:     data,
		})
		if err != nil {
			fmt.Fprintf(out, "%s\terror: %v\n", path, err)
			failed++
			continue
		}

		switch {
		case res.Vector != nil:
			fmt.Fprintf(out, "%s\tvector\t%q\t%d features\t%s\n",
				path, res.Vector.Name, res.Vector.Data.FeatureCount(), res.Vector.Bounds())
		case res.Raster != nil:
			meta := res.Raster.Metadata
			fmt.Fprintf(out, "%s\traster\t%q\t%dx%d, %d bands, %s\t%s\n",
				path, res.Raster.Name, meta.Width, meta.Height, meta.Bands, meta.Projection, res.Raster.Bounds)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d files could not be loaded", failed, len(paths))
	}
	return nil
}

func runServer(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	logger.Info("starting GeoLayers",
		"version", version,
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"storage_type", cfg.Storage.Type,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "address", cfg.Server.Address())
		if err := application.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case runErr = <-serverErr:
		logger.Error("server error", "error", runErr)
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	logger.Info("shutting down server")
	if err := application.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		return errors.Join(runErr, err)
	}

	logger.Info("server stopped")
	return runErr
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Value = slog.StringValue(a.Value.Time().UTC().Format(time.RFC3339))
			}
			return a
		},
	}

	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
