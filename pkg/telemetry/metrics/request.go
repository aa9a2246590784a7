package metrics

import (
	"time"

	"relaydock/relay/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// requestDurationBuckets is tuned for registry traffic, which spans
// sub-millisecond manifest HEADs to multi-second layer pulls.
var requestDurationBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0}

// responseSizeBuckets spans a manifest response (a few KB) to a large
// image layer (multi-GB).
var responseSizeBuckets = prometheus.ExponentialBuckets(1024, 4, 12)

// RequestMetrics tracks metrics related to proxied registry requests.
//
// Metrics:
//   - relay_proxy_requests_total: request count by mirror and status
//   - relay_proxy_request_duration_seconds: request duration histogram
//   - relay_proxy_response_bytes_total: total bytes streamed to clients
//   - relay_proxy_response_size_bytes: size distribution of responses
type RequestMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	responseBytes   *prometheus.CounterVec
	responseSize    *prometheus.HistogramVec
}

// NewRequestMetrics creates and registers request metrics with the provided registry.
func NewRequestMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *RequestMetrics {
	rm := &RequestMetrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "proxy",
				Name:      "requests_total",
				Help:      "Total number of proxied registry requests",
			},
			[]string{"mirror", "status"},
		),

		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: "proxy",
				Name:      "request_duration_seconds",
				Help:      "Duration of proxied registry requests in seconds",
				Buckets:   requestDurationBuckets,
			},
			[]string{"mirror"},
		),

		responseBytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "proxy",
				Name:      "response_bytes_total",
				Help:      "Total bytes streamed back to clients",
			},
			[]string{"mirror"},
		),

		responseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: "proxy",
				Name:      "response_size_bytes",
				Help:      "Size distribution of proxied responses in bytes",
				Buckets:   responseSizeBuckets,
			},
			[]string{"mirror"},
		),
	}

	registry.MustRegister(
		rm.requestsTotal,
		rm.requestDuration,
		rm.responseBytes,
		rm.responseSize,
	)

	return rm
}

// RecordRequest records metrics for a completed proxied request.
//
// Parameters:
//   - mirror: the mirror prefix that served the request
//   - status: outcome label; the proxy engine passes the HTTP status
//     code sent to the client as a decimal string (e.g. "200", "503")
//   - duration: total request duration
//   - bytesOut: bytes streamed back to the client (0 if unknown, e.g. errors)
func (rm *RequestMetrics) RecordRequest(mirror, status string, duration time.Duration, bytesOut int64) {
	rm.requestsTotal.WithLabelValues(mirror, status).Inc()
	rm.requestDuration.WithLabelValues(mirror).Observe(duration.Seconds())
	if bytesOut > 0 {
		rm.responseBytes.WithLabelValues(mirror).Add(float64(bytesOut))
		rm.responseSize.WithLabelValues(mirror).Observe(float64(bytesOut))
	}
}
