// Package telemetry groups the observability subpackages used by the relay
// proxy: structured logging, Prometheus metrics, OpenTelemetry tracing, and
// health check endpoints. Each subpackage is independent and wired up
// directly by cmd/relay; this package holds no code of its own.
//
// # Components
//
//   - logging: structured logging with credential redaction
//   - metrics: Prometheus metrics collection
//   - tracing: OpenTelemetry distributed tracing
//   - health: liveness/readiness check endpoints
//
// # Usage
//
//	logger, err := logging.New(logging.Config{Level: "info", Format: logging.FormatJSON})
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	collector.RecordRequest("dockerhub", "200", time.Since(start), bytesOut)
//
//	tracer, err := tracing.New(&cfg.Telemetry.Tracing)
//	ctx, span := tracer.Start(ctx, "relay.proxy.request")
//	defer span.End()
//
//	checker := health.New(cfg.Telemetry.Health.CheckTimeout)
//	checker.RegisterCheck("store", func(ctx context.Context) error {
//	    _, err := st.Stats()
//	    return err
//	})
//
// # Credential Protection
//
// The logging subpackage redacts credentials from log output by default:
// Basic-auth passwords, Bearer tokens, and API keys are never written
// verbatim.
package telemetry
