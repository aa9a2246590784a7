package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"relaydock/relay/pkg/config"
)

// Collector is the orchestrator for all Prometheus metrics the proxy
// emits. It owns metric registration and provides a single interface
// components record through, so the proxy engine, prober, and token
// broker never touch prometheus directly.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	requestMetrics *RequestMetrics
	mirrorMetrics  *MirrorMetrics
	cacheMetrics   *CacheMetrics
}

// NewCollector creates a metrics collector. If registry is nil, a fresh
// prometheus.Registry is used (tests typically do this to avoid
// colliding with the global default registry across test runs).
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "relay"
	}

	c := &Collector{
		config:   cfg,
		registry: registry,
	}

	c.requestMetrics = NewRequestMetrics(cfg, registry)
	c.mirrorMetrics = NewMirrorMetrics(cfg, registry)
	c.cacheMetrics = NewCacheMetrics(cfg, registry)

	return c
}

// RecordRequest records a completed proxied request: which mirror
// served it, its outcome, how long it took, and bytes streamed back to
// the client.
func (c *Collector) RecordRequest(mirror, status string, duration time.Duration, bytesOut int64) {
	if !c.config.Enabled {
		return
	}
	c.requestMetrics.RecordRequest(mirror, status, duration, bytesOut)
}

// RecordProbeLatency records a health prober RTT against a mirror.
func (c *Collector) RecordProbeLatency(mirror string, latencySeconds float64) {
	if !c.config.Enabled {
		return
	}
	c.mirrorMetrics.RecordLatency(mirror, latencySeconds)
}

// UpdateMirrorHealth updates a mirror's health gauge (1=healthy, 0=unhealthy).
func (c *Collector) UpdateMirrorHealth(mirror string, healthy bool) {
	if !c.config.Enabled {
		return
	}
	c.mirrorMetrics.UpdateHealth(mirror, healthy)
}

// UpdateConsecutiveFailures updates a mirror's consecutive-failure gauge.
func (c *Collector) UpdateConsecutiveFailures(mirror string, count int) {
	if !c.config.Enabled {
		return
	}
	c.mirrorMetrics.UpdateConsecutiveFailures(mirror, count)
}

// RecordForwardingError records a forwarding failure by its proxyerr.Kind.
func (c *Collector) RecordForwardingError(mirror, kind string) {
	if !c.config.Enabled {
		return
	}
	c.mirrorMetrics.RecordError(mirror, kind)
}

// RecordCacheHit records a cache hit for a named cache (e.g. the token
// broker's per-mirror token cache).
func (c *Collector) RecordCacheHit(cacheName string) {
	if !c.config.Enabled {
		return
	}
	c.cacheMetrics.RecordHit(cacheName)
}

// RecordCacheMiss records a cache miss for a named cache.
func (c *Collector) RecordCacheMiss(cacheName string) {
	if !c.config.Enabled {
		return
	}
	c.cacheMetrics.RecordMiss(cacheName)
}

// RecordCacheEviction records one evicted entry of a named cache.
func (c *Collector) RecordCacheEviction(cacheName string) {
	if !c.config.Enabled {
		return
	}
	c.cacheMetrics.RecordEviction(cacheName)
}

// UpdateCacheSize updates the current entry count of a named cache.
func (c *Collector) UpdateCacheSize(cacheName string, size int) {
	if !c.config.Enabled {
		return
	}
	c.cacheMetrics.UpdateSize(cacheName, size)
}

// Registry returns the underlying Prometheus registry, for building a
// /metrics HTTP handler via Handler().
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
