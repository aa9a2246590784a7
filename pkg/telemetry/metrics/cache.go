package metrics

import (
	"relaydock/relay/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// CacheMetrics tracks hit/miss/size/eviction counters for named caches.
// The only producer today is the token broker's per-mirror Bearer token
// cache, labeled "token_broker".
//
// Metrics:
//   - relay_cache_hits_total: cache hits by cache name
//   - relay_cache_misses_total: cache misses by cache name
//   - relay_cache_entries: current entry count by cache name
//   - relay_cache_evictions_total: LRU evictions by cache name
type CacheMetrics struct {
	hitsTotal      *prometheus.CounterVec
	missesTotal    *prometheus.CounterVec
	entries        *prometheus.GaugeVec
	evictionsTotal *prometheus.CounterVec
}

// NewCacheMetrics creates and registers cache metrics with the provided registry.
func NewCacheMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *CacheMetrics {
	counter := func(name, help string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "cache",
				Name:      name,
				Help:      help,
			},
			[]string{"cache"},
		)
	}

	cm := &CacheMetrics{
		hitsTotal:      counter("hits_total", "Total number of cache hits"),
		missesTotal:    counter("misses_total", "Total number of cache misses"),
		evictionsTotal: counter("evictions_total", "Total number of cache evictions"),
		entries: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: "cache",
				Name:      "entries",
				Help:      "Current number of entries in cache",
			},
			[]string{"cache"},
		),
	}

	registry.MustRegister(cm.hitsTotal, cm.missesTotal, cm.entries, cm.evictionsTotal)
	return cm
}

// RecordHit records a cache hit.
func (cm *CacheMetrics) RecordHit(cacheName string) {
	cm.hitsTotal.WithLabelValues(cacheName).Inc()
}

// RecordMiss records a cache miss.
func (cm *CacheMetrics) RecordMiss(cacheName string) {
	cm.missesTotal.WithLabelValues(cacheName).Inc()
}

// UpdateSize sets the current entry count of a cache.
func (cm *CacheMetrics) UpdateSize(cacheName string, size int) {
	cm.entries.WithLabelValues(cacheName).Set(float64(size))
}

// RecordEviction records one entry removed to make room or on expiry.
func (cm *CacheMetrics) RecordEviction(cacheName string) {
	cm.evictionsTotal.WithLabelValues(cacheName).Inc()
}
