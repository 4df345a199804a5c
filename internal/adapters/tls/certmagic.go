// Package tls serves the layer API over HTTPS with certificates managed by
// CertMagic and obtained through the Azure DNS-01 challenge.
package tls

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/caddyserver/certmagic"
	"github.com/libdns/azure"
)

// Config holds TLS configuration.
type Config struct {
	Enabled      bool
	Domains      []string
	Email        string
	CacheDir     string
	Staging      bool // Use Let's Encrypt staging environment
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	DNS          DNSConfig
}

// DNSConfig holds Azure DNS provider configuration for DNS-01 challenges.
type DNSConfig struct {
	SubscriptionID    string
	ResourceGroupName string
	ClientID          string // User Assigned Managed Identity client ID (optional)
}

// Server wraps the API handler with automatic TLS.
type Server struct {
	config    Config
	handler   http.Handler
	logger    *slog.Logger
	tlsConfig *tls.Config

	mu     sync.Mutex
	server *http.Server
}

// NewServer creates a server. A disabled config yields a plain HTTP server.
func NewServer(cfg Config, handler http.Handler, logger *slog.Logger) (*Server, error) {
	s := &Server{
		config:  cfg,
		handler: handler,
		logger:  logger,
	}
	if !cfg.Enabled {
		return s, nil
	}

	if len(cfg.Domains) == 0 {
		return nil, errors.New("TLS enabled but no domains specified")
	}
	if cfg.Email == "" {
		return nil, errors.New("TLS enabled but no email specified")
	}

	certmagic.DefaultACME.Agreed = true
	certmagic.DefaultACME.Email = cfg.Email
	if cfg.Staging {
		certmagic.DefaultACME.CA = certmagic.LetsEncryptStagingCA
	}
	if cfg.CacheDir != "" {
		certmagic.Default.Storage = &certmagic.FileStorage{Path: cfg.CacheDir}
	}

	provider := &azure.Provider{
		SubscriptionId:    cfg.DNS.SubscriptionID,
		ResourceGroupName: cfg.DNS.ResourceGroupName,
		ClientId:          cfg.DNS.ClientID, // Empty = System Assigned Managed Identity
	}
	certmagic.DefaultACME.DNS01Solver = &certmagic.DNS01Solver{
		DNSManager: certmagic.DNSManager{
			DNSProvider: provider,
		},
	}

	tlsConfig, err := certmagic.TLS(cfg.Domains)
	if err != nil {
		return nil, fmt.Errorf("configuring TLS: %w", err)
	}
	s.tlsConfig = tlsConfig
	return s, nil
}

// ListenAndServe serves until Shutdown. It returns nil once the server
// has been shut down.
func (s *Server) ListenAndServe(addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		TLSConfig:         s.tlsConfig,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.config.ReadTimeout,
		WriteTimeout:      s.config.WriteTimeout,
	}
	s.mu.Lock()
	s.server = server
	s.mu.Unlock()

	var err error
	if s.config.Enabled {
		s.logger.Info("starting HTTPS server", "address", addr, "domains", s.config.Domains)
		err = server.ListenAndServeTLS("", "")
	} else {
		s.logger.Info("starting HTTP server (TLS disabled)", "address", addr)
		err = server.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops a running server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	server := s.server
	s.mu.Unlock()
	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}

// TLSConfig returns the TLS configuration, nil when TLS is disabled.
func (s *Server) TLSConfig() *tls.Config {
	return s.tlsConfig
}
