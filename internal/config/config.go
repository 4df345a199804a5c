// Package config provides configuration management using Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Layers   LayersConfig   `mapstructure:"layers"`
	Viewport ViewportConfig `mapstructure:"viewport"`
	TLS      TLSConfig      `mapstructure:"tls"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxUploadBytes  int64         `mapstructure:"max_upload_bytes"`
	FrontendEnabled bool          `mapstructure:"frontend_enabled"`
	CORS            CORSConfig    `mapstructure:"cors"`
}

// CORSConfig holds CORS configuration.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"` // e.g., ["https://example.com", "*.sub.domain.tld"]
}

// Enabled returns true if CORS is configured with at least one allowed origin.
func (c *CORSConfig) Enabled() bool {
	return len(c.AllowedOrigins) > 0
}

// StorageConfig holds the layer file source configuration. An empty type
// disables importing.
type StorageConfig struct {
	Type         string        `mapstructure:"type"` // s3, azure, http, local or empty
	LocalPath    string        `mapstructure:"local_path"`
	CacheDir     string        `mapstructure:"cache_dir"`
	MaxBytes     int64         `mapstructure:"max_bytes"`
	SyncInterval time.Duration `mapstructure:"sync_interval"`
	Watch        bool          `mapstructure:"watch"`
	S3           S3Config      `mapstructure:"s3"`
	Azure        AzureConfig   `mapstructure:"azure"`
	HTTP         HTTPConfig    `mapstructure:"http"`
}

// Enabled reports whether a layer file source is configured.
func (c *StorageConfig) Enabled() bool {
	return c.Type != ""
}

// S3Config holds AWS S3 configuration.
type S3Config struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Prefix          string `mapstructure:"prefix"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

// AzureConfig holds Azure Blob Storage configuration.
type AzureConfig struct {
	Container        string `mapstructure:"container"`
	AccountName      string `mapstructure:"account_name"`
	AccountKey       string `mapstructure:"account_key"`
	ConnectionString string `mapstructure:"connection_string"`
	Prefix           string `mapstructure:"prefix"`
}

// HTTPConfig holds HTTP download configuration.
type HTTPConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	IndexFile string        `mapstructure:"index_file"` // default: index.txt
	Timeout   time.Duration `mapstructure:"timeout"`
	Username  string        `mapstructure:"username"`
	Password  string        `mapstructure:"password"`
}

// LayersConfig holds layer store and ingestion configuration.
type LayersConfig struct {
	SeedPipeline    bool          `mapstructure:"seed_pipeline"`
	SettleTimeout   time.Duration `mapstructure:"settle_timeout"`
	FitPadding      int           `mapstructure:"fit_padding"`
	FitMaxZoom      int           `mapstructure:"fit_max_zoom"`
	RasterOpacity   float64       `mapstructure:"raster_opacity"`
	MaxRasterPixels int64         `mapstructure:"max_raster_pixels"`
	TempDir         string        `mapstructure:"temp_dir"`
	Reproject       bool          `mapstructure:"reproject"` // Load SpatiaLite for CRS transforms
}

// ViewportConfig holds the default map view.
type ViewportConfig struct {
	CenterLat float64 `mapstructure:"center_lat"`
	CenterLng float64 `mapstructure:"center_lng"`
	Zoom      float64 `mapstructure:"zoom"`
}

// TLSConfig holds TLS/CertMagic configuration.
type TLSConfig struct {
	Enabled  bool         `mapstructure:"enabled"`
	Domains  []string     `mapstructure:"domains"`
	Email    string       `mapstructure:"email"`
	CacheDir string       `mapstructure:"cache_dir"`
	Staging  bool         `mapstructure:"staging"` // Use Let's Encrypt staging
	DNS      TLSDNSConfig `mapstructure:"dns"`
}

// TLSDNSConfig holds Azure DNS settings for the DNS-01 challenge.
type TLSDNSConfig struct {
	SubscriptionID    string `mapstructure:"subscription_id"`
	ResourceGroupName string `mapstructure:"resource_group_name"`
	ClientID          string `mapstructure:"client_id"`
}

// MetricsConfig holds Prometheus metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
	Port    int    `mapstructure:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, text
}

// Defaults sets the default configuration values.
func Defaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 60*time.Second)
	viper.SetDefault("server.shutdown_timeout", 10*time.Second)
	viper.SetDefault("server.max_upload_bytes", 100<<20)
	viper.SetDefault("server.frontend_enabled", true)
	viper.SetDefault("server.cors.allowed_origins", []string{})

	// Storage defaults
	viper.SetDefault("storage.type", "")
	viper.SetDefault("storage.local_path", "./data")
	viper.SetDefault("storage.cache_dir", "./.cache/layers")
	viper.SetDefault("storage.max_bytes", 100<<20)
	viper.SetDefault("storage.sync_interval", 0)
	viper.SetDefault("storage.watch", true)
	viper.SetDefault("storage.http.index_file", "index.txt")
	viper.SetDefault("storage.http.timeout", 5*time.Minute)

	// Layer defaults
	viper.SetDefault("layers.seed_pipeline", true)
	viper.SetDefault("layers.settle_timeout", 5*time.Second)
	viper.SetDefault("layers.fit_padding", 50)
	viper.SetDefault("layers.fit_max_zoom", 16)
	viper.SetDefault("layers.raster_opacity", 0.8)
	viper.SetDefault("layers.max_raster_pixels", 64<<20)
	viper.SetDefault("layers.temp_dir", "")
	viper.SetDefault("layers.reproject", true)

	// Viewport defaults
	viper.SetDefault("viewport.center_lat", 4.55)
	viper.SetDefault("viewport.center_lng", 8.2)
	viper.SetDefault("viewport.zoom", 12)

	// TLS defaults
	viper.SetDefault("tls.enabled", false)
	viper.SetDefault("tls.cache_dir", "./.certmagic")
	viper.SetDefault("tls.staging", false)

	// Metrics defaults
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")
	viper.SetDefault("metrics.port", 9090)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
}

// Load loads configuration from environment and config file.
func Load(configPath string) (*Config, error) {
	Defaults()

	// Environment variable binding
	viper.SetEnvPrefix("GEOLAYERS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Config file
	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
		viper.AddConfigPath("/etc/geolayers")
	}

	// Try to read config file (not required)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("max upload size must be positive: %d", c.Server.MaxUploadBytes)
	}

	if c.Metrics.Enabled && (c.Metrics.Port < 1 || c.Metrics.Port > 65535) {
		return fmt.Errorf("invalid metrics port: %d", c.Metrics.Port)
	}
	if c.Metrics.Enabled && c.Metrics.Port == c.Server.Port {
		return fmt.Errorf("metrics port %d conflicts with server port", c.Metrics.Port)
	}

	if c.TLS.Enabled {
		if len(c.TLS.Domains) == 0 {
			return fmt.Errorf("TLS enabled but no domains specified")
		}
		if c.TLS.Email == "" {
			return fmt.Errorf("TLS enabled but no email specified")
		}
	}

	if err := c.Layers.validate(); err != nil {
		return err
	}

	if c.Viewport.CenterLat < -90 || c.Viewport.CenterLat > 90 {
		return fmt.Errorf("invalid viewport latitude: %v", c.Viewport.CenterLat)
	}
	if c.Viewport.CenterLng < -180 || c.Viewport.CenterLng > 180 {
		return fmt.Errorf("invalid viewport longitude: %v", c.Viewport.CenterLng)
	}

	return c.Storage.validate()
}

func (c *LayersConfig) validate() error {
	if c.RasterOpacity < 0 || c.RasterOpacity > 1 {
		return fmt.Errorf("raster opacity must be within [0, 1]: %v", c.RasterOpacity)
	}
	if c.FitPadding < 0 {
		return fmt.Errorf("fit padding must not be negative: %d", c.FitPadding)
	}
	if c.FitMaxZoom < 0 {
		return fmt.Errorf("fit max zoom must not be negative: %d", c.FitMaxZoom)
	}
	if c.SettleTimeout < 0 {
		return fmt.Errorf("settle timeout must not be negative: %s", c.SettleTimeout)
	}
	if c.MaxRasterPixels <= 0 {
		return fmt.Errorf("max raster pixels must be positive: %d", c.MaxRasterPixels)
	}
	return nil
}

func (c *StorageConfig) validate() error {
	if c.SyncInterval < 0 {
		return fmt.Errorf("sync interval must not be negative: %s", c.SyncInterval)
	}

	switch c.Type {
	case "":
		return nil
	case "local":
		if c.LocalPath == "" {
			return fmt.Errorf("local storage path is required")
		}
	case "s3":
		if c.S3.Bucket == "" {
			return fmt.Errorf("S3 bucket is required")
		}
		if c.S3.Region == "" {
			return fmt.Errorf("S3 region is required")
		}
	case "azure":
		if c.Azure.Container == "" {
			return fmt.Errorf("azure container is required")
		}
		if c.Azure.AccountName == "" && c.Azure.ConnectionString == "" {
			return fmt.Errorf("azure account name or connection string is required")
		}
	case "http":
		if c.HTTP.BaseURL == "" {
			return fmt.Errorf("HTTP base URL is required")
		}
	default:
		return fmt.Errorf("unknown storage type: %s", c.Type)
	}

	if c.Type != "local" && c.CacheDir == "" {
		return fmt.Errorf("cache directory is required for %s storage", c.Type)
	}
	return nil
}

// Address returns the server address string.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
