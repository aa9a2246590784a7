package metrics

import (
	"relaydock/relay/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// MirrorMetrics tracks metrics related to upstream mirror health and
// forwarding performance.
//
// Metrics:
//   - relay_mirror_health: mirror health status (1=healthy, 0=unhealthy)
//   - relay_mirror_consecutive_failures: current consecutive probe failures
//   - relay_mirror_probe_latency_seconds: health probe RTT
//   - relay_mirror_errors_total: forwarding error count by kind
type MirrorMetrics struct {
	health              *prometheus.GaugeVec
	consecutiveFailures *prometheus.GaugeVec
	probeLatency        *prometheus.HistogramVec
	errors              *prometheus.CounterVec
}

// NewMirrorMetrics creates and registers mirror metrics with the provided registry.
func NewMirrorMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *MirrorMetrics {
	mm := &MirrorMetrics{
		health: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: "mirror",
				Name:      "health",
				Help:      "Mirror health status (1=healthy, 0=unhealthy)",
			},
			[]string{"mirror"},
		),

		consecutiveFailures: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: "mirror",
				Name:      "consecutive_failures",
				Help:      "Current consecutive health probe failures for a mirror",
			},
			[]string{"mirror"},
		),

		probeLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: "mirror",
				Name:      "probe_latency_seconds",
				Help:      "Health probe round-trip latency in seconds",
				Buckets:   requestDurationBuckets,
			},
			[]string{"mirror"},
		),

		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "mirror",
				Name:      "errors_total",
				Help:      "Total number of forwarding errors by kind",
			},
			[]string{"mirror", "kind"},
		),
	}

	registry.MustRegister(
		mm.health,
		mm.consecutiveFailures,
		mm.probeLatency,
		mm.errors,
	)

	return mm
}

// UpdateHealth updates the health gauge for a mirror (1=healthy, 0=unhealthy).
func (mm *MirrorMetrics) UpdateHealth(mirror string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	mm.health.WithLabelValues(mirror).Set(value)
}

// UpdateConsecutiveFailures sets the current consecutive-failure count for a mirror.
func (mm *MirrorMetrics) UpdateConsecutiveFailures(mirror string, count int) {
	mm.consecutiveFailures.WithLabelValues(mirror).Set(float64(count))
}

// RecordLatency records a health probe's round-trip latency.
func (mm *MirrorMetrics) RecordLatency(mirror string, latencySeconds float64) {
	mm.probeLatency.WithLabelValues(mirror).Observe(latencySeconds)
}

// RecordError records a forwarding error against a mirror.
//
// kind is a proxyerr.Kind string (e.g. "timeout", "connection_refused",
// "bad_gateway", "auth_failed").
func (mm *MirrorMetrics) RecordError(mirror, kind string) {
	mm.errors.WithLabelValues(mirror, kind).Inc()
}
