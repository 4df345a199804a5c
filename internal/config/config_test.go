package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080, MaxUploadBytes: 1 << 20},
		Layers: LayersConfig{
			FitPadding:      50,
			FitMaxZoom:      16,
			RasterOpacity:   0.8,
			MaxRasterPixels: 1 << 20,
		},
		Viewport: ViewportConfig{CenterLat: 4.55, CenterLng: 8.2, Zoom: 12},
		Metrics:  MetricsConfig{Enabled: true, Path: "/metrics", Port: 9090},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(c *Config)
		wantErr string
	}{
		{name: "valid", modify: func(_ *Config) {}},
		{name: "invalid port", modify: func(c *Config) { c.Server.Port = 0 }, wantErr: "invalid server port"},
		{name: "zero upload limit", modify: func(c *Config) { c.Server.MaxUploadBytes = 0 }, wantErr: "max upload size"},
		{name: "metrics port conflict", modify: func(c *Config) { c.Metrics.Port = 8080 }, wantErr: "conflicts"},
		{name: "metrics disabled ignores port", modify: func(c *Config) { c.Metrics = MetricsConfig{} }},
		{name: "tls without domains", modify: func(c *Config) { c.TLS.Enabled = true }, wantErr: "no domains"},
		{
			name: "tls without email",
			modify: func(c *Config) {
				c.TLS.Enabled = true
				c.TLS.Domains = []string{"maps.example.com"}
			},
			wantErr: "no email",
		},
		{name: "opacity above one", modify: func(c *Config) { c.Layers.RasterOpacity = 1.5 }, wantErr: "raster opacity"},
		{name: "negative settle timeout", modify: func(c *Config) { c.Layers.SettleTimeout = -time.Second }, wantErr: "settle timeout"},
		{name: "no pixel budget", modify: func(c *Config) { c.Layers.MaxRasterPixels = 0 }, wantErr: "max raster pixels"},
		{name: "latitude out of range", modify: func(c *Config) { c.Viewport.CenterLat = 91 }, wantErr: "latitude"},
		{name: "unknown storage", modify: func(c *Config) { c.Storage.Type = "ftp" }, wantErr: "unknown storage type"},
		{name: "local without path", modify: func(c *Config) { c.Storage.Type = "local" }, wantErr: "local storage path"},
		{
			name: "s3 without region",
			modify: func(c *Config) {
				c.Storage.Type = "s3"
				c.Storage.S3.Bucket = "layers"
			},
			wantErr: "S3 region",
		},
		{
			name: "s3 without cache dir",
			modify: func(c *Config) {
				c.Storage.Type = "s3"
				c.Storage.S3 = S3Config{Bucket: "layers", Region: "eu-west-1"}
			},
			wantErr: "cache directory",
		},
		{
			name: "azure without account",
			modify: func(c *Config) {
				c.Storage.Type = "azure"
				c.Storage.Azure.Container = "layers"
			},
			wantErr: "account name",
		},
		{name: "http without url", modify: func(c *Config) { c.Storage.Type = "http" }, wantErr: "base URL"},
		{
			name: "valid http source",
			modify: func(c *Config) {
				c.Storage.Type = "http"
				c.Storage.HTTP.BaseURL = "https://example.com/layers"
				c.Storage.CacheDir = t.TempDir()
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_DefaultsAndFile(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 9000
layers:
  seed_pipeline: false
  raster_opacity: 0.5
viewport:
  zoom: 8
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Layers.SeedPipeline {
		t.Error("Layers.SeedPipeline = true, want false")
	}
	if cfg.Layers.RasterOpacity != 0.5 {
		t.Errorf("Layers.RasterOpacity = %v, want 0.5", cfg.Layers.RasterOpacity)
	}
	if cfg.Viewport.Zoom != 8 {
		t.Errorf("Viewport.Zoom = %v, want 8", cfg.Viewport.Zoom)
	}
	if cfg.Viewport.CenterLat != 4.55 || cfg.Viewport.CenterLng != 8.2 {
		t.Errorf("Viewport center = %v,%v, want default", cfg.Viewport.CenterLat, cfg.Viewport.CenterLng)
	}
	if cfg.Layers.SettleTimeout != 5*time.Second {
		t.Errorf("Layers.SettleTimeout = %s, want 5s", cfg.Layers.SettleTimeout)
	}
	if cfg.Storage.Enabled() {
		t.Errorf("Storage.Enabled() = true for type %q", cfg.Storage.Type)
	}
}

func TestLoad_Environment(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	t.Setenv("GEOLAYERS_SERVER_PORT", "8181")
	t.Setenv("GEOLAYERS_LOGGING_FORMAT", "text")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8181 {
		t.Errorf("Server.Port = %d, want 8181", cfg.Server.Port)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Logging.Format = %q, want text", cfg.Logging.Format)
	}
}

func TestAddress(t *testing.T) {
	c := ServerConfig{Host: "127.0.0.1", Port: 8080}
	if got := c.Address(); got != "127.0.0.1:8080" {
		t.Errorf("Address() = %q", got)
	}
}
