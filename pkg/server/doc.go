// Package server provides the main HTTP listener for the registry mirror
// proxy.
//
// This package ties together the proxy engine, Admin API, and telemetry
// endpoints behind a single http.Server and manages its lifecycle: start,
// graceful shutdown, and TLS termination.
//
// # Architecture
//
// The server package is the top-level orchestrator that:
//   - Routes /v2/ to the proxy engine and the Admin API's base path to the
//     Admin API
//   - Chains middleware for cross-cutting concerns
//   - Configures TLS termination (with certificate reload; client
//     certificates are not requested)
//   - Manages graceful shutdown
//   - Handles OS signals (SIGTERM, SIGINT)
//
// # Basic Usage
//
// Creating and starting a server:
//
//	import (
//	    "context"
//	    "relaydock/relay/pkg/config"
//	    "relaydock/relay/pkg/server"
//	)
//
//	cfg, err := config.LoadConfig(cfgFile)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	srv := server.NewServer(&cfg.Proxy, &cfg.Security.TLS, server.Options{
//	    Proxy:   engine,
//	    Admin:   adminAPI.Routes(),
//	    Checker: checker,
//	})
//	if err := srv.Start(context.Background()); err != nil {
//	    log.Fatal(err)
//	}
//
// # Graceful Shutdown
//
// The server handles graceful shutdown automatically when receiving SIGTERM
// or SIGINT:
//
//	if err := srv.Shutdown(context.Background()); err != nil {
//	    log.Error("shutdown error", "error", err)
//	}
//
// The shutdown process:
//  1. Stops accepting new connections
//  2. Waits for active connections to complete (up to shutdown timeout)
//  3. Forces connection closure if timeout exceeded
//
// # Routes
//
// The server exposes the following HTTP endpoints:
//
//   - /v2/* - Registry API v2 requests, forwarded to the proxy engine
//   - /api/* - Admin API (mirror CRUD, stats, history, probe/scrape triggers)
//   - GET /health - Liveness probe (always returns 200)
//   - GET /ready - Readiness probe (runs registered health checks)
//   - GET /metrics - Prometheus metrics, when telemetry.metrics is enabled
//
// # Middleware Chain
//
// Requests pass through the following middleware (outermost to innermost):
//  1. RequestID: assigns a request ID used in logs and response headers
//  2. Tracing: continues an incoming W3C trace context
//  3. Logging: logs request/response details
//  4. Recovery: recovers from panics and returns 500
//
// The Admin API is additionally wrapped in API-key auth middleware when
// admin.api_keys is configured.
//
// # TLS Support
//
// The server supports TLS 1.3 with configurable certificates and hot
// certificate reload; it does not request or verify client certificates:
//
//	security:
//	  tls:
//	    enabled: true
//	    cert_file: "/path/to/cert.pem"
//	    key_file: "/path/to/key.pem"
//
// # Thread Safety
//
// All server operations are thread-safe and can be called concurrently from
// multiple goroutines.
package server
