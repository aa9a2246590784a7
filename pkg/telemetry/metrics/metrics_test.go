package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"relaydock/relay/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestCollector(t *testing.T) *Collector {
	t.Helper()
	return NewCollector(&config.MetricsConfig{Enabled: true, Namespace: "test"}, prometheus.NewRegistry())
}

func TestRecordRequestCountsPerMirrorAndStatus(t *testing.T) {
	c := newTestCollector(t)
	c.RecordRequest("dockerhub", "success", 120*time.Millisecond, 4096)
	c.RecordRequest("dockerhub", "success", 80*time.Millisecond, 2048)
	c.RecordRequest("ghcr", "error", 50*time.Millisecond, 0)

	if got := testutil.ToFloat64(c.requestMetrics.requestsTotal.WithLabelValues("dockerhub", "success")); got != 2 {
		t.Errorf("dockerhub success count = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.requestMetrics.requestsTotal.WithLabelValues("ghcr", "error")); got != 1 {
		t.Errorf("ghcr error count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.requestMetrics.responseBytes.WithLabelValues("dockerhub")); got != 6144 {
		t.Errorf("dockerhub bytes = %v, want 6144", got)
	}
}

func TestRecordRequestSkipsSizeObservationsForZeroBytes(t *testing.T) {
	c := newTestCollector(t)
	c.RecordRequest("quay", "unhealthy_upstream", 5*time.Millisecond, 0)

	if got := testutil.ToFloat64(c.requestMetrics.responseBytes.WithLabelValues("quay")); got != 0 {
		t.Errorf("bytes counter moved on zero-byte response: %v", got)
	}
}

func TestMirrorHealthGaugeTracksTransitions(t *testing.T) {
	c := newTestCollector(t)

	c.UpdateMirrorHealth("dockerhub", true)
	if got := testutil.ToFloat64(c.mirrorMetrics.health.WithLabelValues("dockerhub")); got != 1 {
		t.Errorf("healthy gauge = %v, want 1", got)
	}
	c.UpdateMirrorHealth("dockerhub", false)
	if got := testutil.ToFloat64(c.mirrorMetrics.health.WithLabelValues("dockerhub")); got != 0 {
		t.Errorf("unhealthy gauge = %v, want 0", got)
	}

	c.UpdateConsecutiveFailures("dockerhub", 3)
	if got := testutil.ToFloat64(c.mirrorMetrics.consecutiveFailures.WithLabelValues("dockerhub")); got != 3 {
		t.Errorf("consecutive failures = %v, want 3", got)
	}
}

func TestForwardingErrorsLabeledByKind(t *testing.T) {
	c := newTestCollector(t)
	c.RecordForwardingError("dockerhub", "timeout")
	c.RecordForwardingError("dockerhub", "timeout")
	c.RecordForwardingError("dockerhub", "connection_refused")

	if got := testutil.ToFloat64(c.mirrorMetrics.errors.WithLabelValues("dockerhub", "timeout")); got != 2 {
		t.Errorf("timeout errors = %v, want 2", got)
	}
}

func TestCacheCounters(t *testing.T) {
	c := newTestCollector(t)
	c.RecordCacheHit("token_broker")
	c.RecordCacheMiss("token_broker")
	c.RecordCacheEviction("token_broker")
	c.UpdateCacheSize("token_broker", 42)

	cm := c.cacheMetrics
	for name, got := range map[string]float64{
		"hits":      testutil.ToFloat64(cm.hitsTotal.WithLabelValues("token_broker")),
		"misses":    testutil.ToFloat64(cm.missesTotal.WithLabelValues("token_broker")),
		"evictions": testutil.ToFloat64(cm.evictionsTotal.WithLabelValues("token_broker")),
	} {
		if got != 1 {
			t.Errorf("%s = %v, want 1", name, got)
		}
	}
	if got := testutil.ToFloat64(cm.entries.WithLabelValues("token_broker")); got != 42 {
		t.Errorf("entries = %v, want 42", got)
	}
}

func TestDisabledCollectorRecordsNothing(t *testing.T) {
	c := NewCollector(&config.MetricsConfig{Enabled: false, Namespace: "test"}, prometheus.NewRegistry())

	c.RecordRequest("dockerhub", "success", time.Second, 1024)
	c.UpdateMirrorHealth("dockerhub", true)
	c.RecordCacheHit("token_broker")
	c.RecordProbeLatency("dockerhub", 0.05)

	if got := testutil.ToFloat64(c.requestMetrics.requestsTotal.WithLabelValues("dockerhub", "success")); got != 0 {
		t.Errorf("disabled collector counted a request: %v", got)
	}
}

func TestHandlerServesRegisteredMetrics(t *testing.T) {
	c := newTestCollector(t)
	c.RecordRequest("dockerhub", "success", 100*time.Millisecond, 512)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Result().Body)
	if !strings.Contains(string(body), "test_proxy_requests_total") {
		t.Fatalf("scrape output missing request counter:\n%s", body)
	}
}

func TestConcurrentRecording(t *testing.T) {
	c := newTestCollector(t)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.RecordRequest("dockerhub", "success", time.Second, 1024)
				c.RecordProbeLatency("dockerhub", 0.02)
			}
		}()
	}
	wg.Wait()

	if got := testutil.ToFloat64(c.requestMetrics.requestsTotal.WithLabelValues("dockerhub", "success")); got != 1000 {
		t.Errorf("request count = %v, want 1000", got)
	}
}
