// Package server assembles the registry-proxy HTTP server: the streaming
// proxy engine on the data path, the Admin API and health/metrics
// endpoints on the control path, and the shared middleware chain around
// both.
package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"relaydock/relay/pkg/config"
	"relaydock/relay/pkg/proxy/middleware"
	"relaydock/relay/pkg/security/auth"
	securitytls "relaydock/relay/pkg/security/tls"
	"relaydock/relay/pkg/telemetry/health"
	"relaydock/relay/pkg/telemetry/metrics"
	"relaydock/relay/pkg/telemetry/tracing"
)

// adminRequestTimeout bounds Admin API requests. The proxy path is
// deliberately exempt; blob transfers run as long as they need to.
const adminRequestTimeout = 60 * time.Second

// Server is the top-level HTTP listener. It mounts the proxy engine at
// "/v2/" and the Admin API, health checks, and metrics alongside it on the
// same listener, matching the single-listen-address deployment model of
// a transparent mirror.
type Server struct {
	config      *config.ProxyConfig
	tlsConfig   *config.TLSConfig
	httpServer  *http.Server
	proxy       http.Handler
	admin       http.Handler
	checker     *health.Checker
	collector   *metrics.Collector
	authMW      *auth.APIKeyMiddleware
	reloader    *securitytls.CertificateReloader

	shutdownChan chan struct{}
	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
}

// Options bundles the collaborators Server wires onto the listener. Any
// of checker, collector, authMW may be nil; the corresponding surface
// is then omitted.
type Options struct {
	Proxy     http.Handler
	Admin     http.Handler
	Checker   *health.Checker
	Collector *metrics.Collector
	AuthMW    *auth.APIKeyMiddleware
}

// NewServer builds a Server that serves the proxy engine and, if
// opts.Admin is non-nil, the Admin API under its own base path.
func NewServer(cfg *config.ProxyConfig, tlsCfg *config.TLSConfig, opts Options) *Server {
	return &Server{
		config:       cfg,
		tlsConfig:    tlsCfg,
		proxy:        opts.Proxy,
		admin:        opts.Admin,
		checker:      opts.Checker,
		collector:    opts.Collector,
		authMW:       opts.AuthMW,
		shutdownChan: make(chan struct{}),
	}
}

// Start starts the HTTP server and blocks until ctx is cancelled, a
// termination signal arrives, or Shutdown is called directly.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.isRunning = true
	s.mu.Unlock()

	handler := s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:              s.config.ListenAddress,
		Handler:           handler,
		ReadHeaderTimeout: s.config.ReadHeaderTimeout,
		IdleTimeout:       s.config.IdleTimeout,
		MaxHeaderBytes:    s.config.MaxHeaderBytes,
	}

	if s.tlsConfig != nil && s.tlsConfig.Enabled {
		tlsConf, err := s.configureTLS(ctx)
		if err != nil {
			return fmt.Errorf("failed to configure TLS: %w", err)
		}
		s.httpServer.TLSConfig = tlsConf
	}

	errChan := make(chan error, 1)
	go func() {
		slog.Info("starting relay server",
			"address", s.config.ListenAddress,
			"tls_enabled", s.tlsConfig != nil && s.tlsConfig.Enabled,
		)

		var err error
		if s.httpServer.TLSConfig != nil {
			// Cert/key already loaded into TLSConfig.GetCertificate; pass
			// empty paths so ListenAndServeTLS uses it as-is.
			err = s.httpServer.ListenAndServeTLS("", "")
		} else {
			err = s.httpServer.ListenAndServe()
		}

		if err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		slog.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig.String())
		return s.Shutdown(context.Background())
	case err := <-errChan:
		return err
	case <-s.shutdownChan:
		slog.Info("shutdown requested")
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully stops the server, waiting up to
// config.ProxyConfig.ShutdownTimeout for in-flight requests to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		if !s.isRunning {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		timeout := s.config.ShutdownTimeout
		slog.Info("initiating graceful shutdown", "timeout", timeout.String())

		shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		if s.httpServer != nil {
			if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
				slog.Error("error during server shutdown", "error", err)
				shutdownErr = fmt.Errorf("server shutdown error: %w", err)
			}
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		slog.Info("relay server stopped")
	})

	return shutdownErr
}

// Stop requests shutdown from outside Start's caller, e.g. a CLI
// subcommand driving the server in-process for tests.
func (s *Server) Stop() {
	close(s.shutdownChan)
}

// setupRoutes mounts the proxy engine, Admin API, health, and metrics
// surfaces and wraps them in the shared middleware chain. The Admin API
// is protected by authMW when configured; the proxy path never is, since
// registry clients authenticate against upstream mirrors, not this
// server.
func (s *Server) setupRoutes() http.Handler {
	mux := http.NewServeMux()

	if s.proxy != nil {
		mux.Handle("/v2/", s.proxy)
	}

	if s.admin != nil {
		adminHandler := s.admin
		if s.authMW != nil {
			adminHandler = s.authMW.Handle(adminHandler)
		}
		adminHandler = middleware.TimeoutMiddleware(adminRequestTimeout)(adminHandler)
		adminHandler = middleware.CORSMiddleware(middleware.DefaultCORSConfig())(adminHandler)
		mux.Handle("/api/", adminHandler)
	}

	if s.checker != nil {
		mux.HandleFunc("GET /health", s.checker.LivenessHandler())
		mux.HandleFunc("GET /ready", s.checker.ReadinessHandler())
	}

	if s.collector != nil {
		mux.Handle("/metrics", s.collector.Handler())
	}

	var handler http.Handler = mux
	handler = middleware.RecoveryMiddleware(handler)
	handler = middleware.LoggingMiddleware(handler)
	handler = tracing.HTTPMiddleware(handler)
	handler = middleware.RequestIDMiddleware(handler)

	return handler
}

// configureTLS loads the listener's TLS material and always installs a
// CertificateReloader, polling at the security/tls package's default
// reload interval, so certificate rotation doesn't require a restart.
func (s *Server) configureTLS(ctx context.Context) (*tls.Config, error) {
	full := securitytls.Config{
		Enabled:  s.tlsConfig.Enabled,
		CertFile: s.tlsConfig.CertFile,
		KeyFile:  s.tlsConfig.KeyFile,
	}

	if _, err := os.Stat(full.CertFile); os.IsNotExist(err) {
		return nil, fmt.Errorf("TLS cert file not found: %s", full.CertFile)
	}
	if _, err := os.Stat(full.KeyFile); os.IsNotExist(err) {
		return nil, fmt.Errorf("TLS key file not found: %s", full.KeyFile)
	}

	tlsConf, err := full.ToTLSConfig()
	if err != nil {
		return nil, err
	}

	s.reloader = securitytls.NewCertificateReloader(full.CertFile, full.KeyFile, full.ParseReloadInterval())
	if err := s.reloader.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start certificate reloader: %w", err)
	}
	tlsConf.GetCertificate = s.reloader.GetCertificateFunc()

	return tlsConf, nil
}

// IsRunning reports whether the server is currently accepting
// connections.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Handler returns the fully assembled HTTP handler without starting a
// listener, for use in tests via httptest.Server.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}
