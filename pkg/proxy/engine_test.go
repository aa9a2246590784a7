package proxy

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"relaydock/relay/pkg/config"
	"relaydock/relay/pkg/mirror"
	"relaydock/relay/pkg/store"
	"relaydock/relay/pkg/telemetry/metrics"
	"relaydock/relay/pkg/tokenbroker"
	"relaydock/relay/pkg/traffic"
)

// counterValue sums every sample of the named counter family matching
// labels, so tests can assert on a metrics.Collector's Prometheus
// registry without reaching into its unexported fields.
func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if labelsMatch(metric.GetLabel(), labels) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func labelsMatch(got []*dto.LabelPair, want map[string]string) bool {
	if len(got) != len(want) {
		return false
	}
	for _, lp := range got {
		if want[lp.GetName()] != lp.GetValue() {
			return false
		}
	}
	return true
}

// fakeStore is a minimal traffic.Store double that records synchronously
// into memory, so tests can assert on what the engine reported.
type fakeStore struct {
	mu      sync.Mutex
	records []store.TrafficRecord
}

func (f *fakeStore) InsertTrafficBatch(records []store.TrafficRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, records...)
	return nil
}

func (f *fakeStore) snapshot() []store.TrafficRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.TrafficRecord, len(f.records))
	copy(out, f.records)
	return out
}

func newTestEngine(t *testing.T, reg *mirror.Registry, fs *fakeStore) (*Engine, func()) {
	t.Helper()
	recorder := traffic.NewRecorder(fs, traffic.Config{QueueCapacity: 64, BatchSize: 1, BatchInterval: 10 * time.Millisecond})
	broker := tokenbroker.NewBroker(tokenbroker.Config{Capacity: 64, SafetyMargin: time.Second, DefaultTTL: time.Minute}, http.DefaultClient)
	eng := NewEngine(
		EngineConfig{DefaultPrefix: mirror.DefaultPrefix, MaxRedirects: 5, StreamIdleTimeout: time.Second},
		ClientConfig{ConnectTimeout: time.Second, UpstreamHeaderTimeout: time.Second, IdleConnsPerHost: 4, MaxConnsPerHost: 8},
		reg, broker, recorder,
	)
	return eng, func() { recorder.Close() }
}

func waitForRecords(t *testing.T, fs *fakeStore, n int) []store.TrafficRecord {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if recs := fs.snapshot(); len(recs) >= n {
			return recs
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d traffic records", n)
	return nil
}

func TestEngine_DiscoveryPing(t *testing.T) {
	reg := mirror.NewRegistry()
	fs := &fakeStore{}
	eng, closeFn := newTestEngine(t, reg, fs)
	defer closeFn()

	req := httptest.NewRequest(http.MethodGet, "/v2/", nil)
	rec := httptest.NewRecorder()
	eng.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("Docker-Distribution-API-Version"); got != "registry/2.0" {
		t.Errorf("Docker-Distribution-API-Version = %q", got)
	}
}

func TestEngine_ForwardsAndStreamsManifest(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/library/nginx/manifests/latest" {
			t.Errorf("upstream saw unexpected path %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/vnd.docker.distribution.manifest.v2+json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"schemaVersion":2}`))
	}))
	defer upstream.Close()

	reg := mirror.NewRegistry()
	if _, err := reg.Create(mirror.Mirror{Prefix: mirror.DefaultPrefix, UpstreamURL: upstream.URL, Enabled: true}); err != nil {
		t.Fatalf("seed mirror: %v", err)
	}
	m, _ := reg.GetByPrefix(mirror.DefaultPrefix)
	if err := reg.UpdateHealth(m.ID, 1, time.Now()); err != nil {
		t.Fatalf("UpdateHealth: %v", err)
	}

	fs := &fakeStore{}
	eng, closeFn := newTestEngine(t, reg, fs)
	defer closeFn()

	req := httptest.NewRequest(http.MethodGet, "/v2/nginx/manifests/latest", nil)
	rec := httptest.NewRecorder()
	eng.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != `{"schemaVersion":2}` {
		t.Errorf("body = %q", rec.Body.String())
	}

	recs := waitForRecords(t, fs, 1)
	if recs[0].ImageRef != "library/nginx:latest" {
		t.Errorf("ImageRef = %q", recs[0].ImageRef)
	}
	if recs[0].UpstreamStatus != http.StatusOK {
		t.Errorf("UpstreamStatus = %d", recs[0].UpstreamStatus)
	}
}

func TestEngine_BearerChallengeHandshake(t *testing.T) {
	var realmHits int32
	realm := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		realmHits++
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"token":"tok-123","expires_in":300}`))
	}))
	defer realm.Close()

	var sawAuth string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			w.Header().Set("Www-Authenticate", `Bearer realm="`+realm.URL+`",service="registry",scope="repository:library/nginx:pull"`)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		sawAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer upstream.Close()

	reg := mirror.NewRegistry()
	if _, err := reg.Create(mirror.Mirror{Prefix: mirror.DefaultPrefix, UpstreamURL: upstream.URL, AuthKind: mirror.AuthBearerDelegated, Enabled: true}); err != nil {
		t.Fatalf("seed mirror: %v", err)
	}
	m, _ := reg.GetByPrefix(mirror.DefaultPrefix)
	_ = reg.UpdateHealth(m.ID, 1, time.Now())

	fs := &fakeStore{}
	eng, closeFn := newTestEngine(t, reg, fs)
	defer closeFn()

	req := httptest.NewRequest(http.MethodGet, "/v2/nginx/manifests/latest", nil)
	rec := httptest.NewRecorder()
	eng.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if sawAuth != "Bearer tok-123" {
		t.Errorf("upstream saw Authorization = %q, want Bearer tok-123", sawAuth)
	}
}

func TestEngine_FailoverOnTransportError(t *testing.T) {
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer good.Close()

	reg := mirror.NewRegistry()
	if _, err := reg.Create(mirror.Mirror{Prefix: mirror.DefaultPrefix, UpstreamURL: "http://127.0.0.1:1", Enabled: true}); err != nil {
		t.Fatalf("seed dead mirror: %v", err)
	}
	if _, err := reg.Create(mirror.Mirror{Prefix: mirror.DefaultPrefix, UpstreamURL: good.URL, Enabled: true}); err != nil {
		t.Fatalf("seed good mirror: %v", err)
	}
	for _, m := range reg.ListByPrefix(mirror.DefaultPrefix, false) {
		_ = reg.UpdateHealth(m.ID, 1, time.Now())
	}

	fs := &fakeStore{}
	eng, closeFn := newTestEngine(t, reg, fs)
	defer closeFn()

	req := httptest.NewRequest(http.MethodGet, "/v2/nginx/manifests/latest", nil)
	rec := httptest.NewRecorder()
	eng.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 after failover, body=%s", rec.Code, rec.Body.String())
	}
}

func TestEngine_NoHealthyMirrorReturns503(t *testing.T) {
	reg := mirror.NewRegistry()
	fs := &fakeStore{}
	eng, closeFn := newTestEngine(t, reg, fs)
	defer closeFn()

	req := httptest.NewRequest(http.MethodGet, "/v2/nginx/manifests/latest", nil)
	rec := httptest.NewRecorder()
	eng.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestEngine_ExhaustedFailoverReturns502(t *testing.T) {
	reg := mirror.NewRegistry()
	if _, err := reg.Create(mirror.Mirror{Prefix: mirror.DefaultPrefix, UpstreamURL: "http://127.0.0.1:1", Enabled: true}); err != nil {
		t.Fatalf("seed dead mirror: %v", err)
	}
	m, _ := reg.GetByPrefix(mirror.DefaultPrefix)
	_ = reg.UpdateHealth(m.ID, 1, time.Now())

	fs := &fakeStore{}
	eng, closeFn := newTestEngine(t, reg, fs)
	defer closeFn()

	collector := metrics.NewCollector(&config.MetricsConfig{Enabled: true}, nil)
	eng.SetCollector(collector)

	req := httptest.NewRequest(http.MethodGet, "/v2/nginx/manifests/latest", nil)
	rec := httptest.NewRecorder()
	eng.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502 after exhausting mirrors", rec.Code)
	}

	count := counterValue(t, collector.Registry(), "relay_mirror_errors_total", map[string]string{"mirror": mirror.DefaultPrefix, "kind": "upstreams_exhausted"})
	if count != 1 {
		t.Errorf("relay_mirror_errors_total = %v, want 1", count)
	}
}

func TestEngine_MidStreamUpstreamErrorAbortsConnection(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("partial"))
		w.(http.Flusher).Flush()
		// Returning with fewer bytes than Content-Length makes the server
		// cut the connection, which the engine sees as a mid-stream error.
	}))
	defer upstream.Close()

	reg := mirror.NewRegistry()
	if _, err := reg.Create(mirror.Mirror{Prefix: mirror.DefaultPrefix, UpstreamURL: upstream.URL, Enabled: true}); err != nil {
		t.Fatalf("seed mirror: %v", err)
	}
	m, _ := reg.GetByPrefix(mirror.DefaultPrefix)
	_ = reg.UpdateHealth(m.ID, 1, time.Now())

	fs := &fakeStore{}
	eng, closeFn := newTestEngine(t, reg, fs)
	defer closeFn()

	defer func() {
		if v := recover(); v != http.ErrAbortHandler {
			t.Fatalf("recover() = %v, want http.ErrAbortHandler", v)
		}
		recs := waitForRecords(t, fs, 1)
		if recs[0].BytesOut != int64(len("partial")) {
			t.Errorf("BytesOut = %d, want %d", recs[0].BytesOut, len("partial"))
		}
	}()

	req := httptest.NewRequest(http.MethodGet, "/v2/nginx/blobs/sha256:abc", nil)
	eng.ServeHTTP(httptest.NewRecorder(), req)
	t.Fatal("expected handler to abort on truncated upstream body")
}

func TestEngine_BasicAuthMirror(t *testing.T) {
	var sawAuth string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			w.Header().Set("Www-Authenticate", `Basic realm="private"`)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		sawAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	reg := mirror.NewRegistry()
	if _, err := reg.Create(mirror.Mirror{
		Prefix: "private", UpstreamURL: upstream.URL,
		AuthKind: mirror.AuthBasic, AuthUser: "alice", AuthPass: "s3cr3t", Enabled: true,
	}); err != nil {
		t.Fatalf("seed mirror: %v", err)
	}
	m, _ := reg.GetByPrefix("private")
	_ = reg.UpdateHealth(m.ID, 1, time.Now())

	fs := &fakeStore{}
	eng, closeFn := newTestEngine(t, reg, fs)
	defer closeFn()

	req := httptest.NewRequest(http.MethodGet, "/v2/private/app/manifests/latest", nil)
	rec := httptest.NewRecorder()
	eng.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if sawAuth != "Basic YWxpY2U6czNjcjN0" {
		t.Errorf("Authorization = %q", sawAuth)
	}
}

func TestEngine_RecordsRequestMetrics(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer upstream.Close()

	reg := mirror.NewRegistry()
	if _, err := reg.Create(mirror.Mirror{Prefix: mirror.DefaultPrefix, UpstreamURL: upstream.URL, Enabled: true}); err != nil {
		t.Fatalf("seed mirror: %v", err)
	}
	m, _ := reg.GetByPrefix(mirror.DefaultPrefix)
	_ = reg.UpdateHealth(m.ID, 1, time.Now())

	fs := &fakeStore{}
	eng, closeFn := newTestEngine(t, reg, fs)
	defer closeFn()

	collector := metrics.NewCollector(&config.MetricsConfig{Enabled: true}, nil)
	eng.SetCollector(collector)

	req := httptest.NewRequest(http.MethodGet, "/v2/nginx/manifests/latest", nil)
	rec := httptest.NewRecorder()
	eng.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	count := counterValue(t, collector.Registry(), "relay_proxy_requests_total", map[string]string{"mirror": mirror.DefaultPrefix, "status": "200"})
	if count != 1 {
		t.Errorf("requests_total = %v, want 1", count)
	}
}

func TestEngine_RecordsForwardingErrorOnNoUpstream(t *testing.T) {
	reg := mirror.NewRegistry()
	fs := &fakeStore{}
	eng, closeFn := newTestEngine(t, reg, fs)
	defer closeFn()

	collector := metrics.NewCollector(&config.MetricsConfig{Enabled: true}, nil)
	eng.SetCollector(collector)

	req := httptest.NewRequest(http.MethodGet, "/v2/nginx/manifests/latest", nil)
	rec := httptest.NewRecorder()
	eng.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}

	count := counterValue(t, collector.Registry(), "relay_mirror_errors_total", map[string]string{"mirror": mirror.DefaultPrefix, "kind": "no_upstream"})
	if count != 1 {
		t.Errorf("relay_mirror_errors_total = %v, want 1", count)
	}
}

func TestEngine_TransparentStreamingPreservesBytes(t *testing.T) {
	payload := make([]byte, 256*1024)
	for i := range payload {
		payload[i] = byte(i % 251)
	}
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(payload)
	}))
	defer upstream.Close()

	reg := mirror.NewRegistry()
	if _, err := reg.Create(mirror.Mirror{Prefix: "ghcr", UpstreamURL: upstream.URL, Enabled: true}); err != nil {
		t.Fatalf("seed mirror: %v", err)
	}
	m, _ := reg.GetByPrefix("ghcr")
	_ = reg.UpdateHealth(m.ID, 1, time.Now())

	fs := &fakeStore{}
	eng, closeFn := newTestEngine(t, reg, fs)
	defer closeFn()

	req := httptest.NewRequest(http.MethodGet, "/v2/ghcr/owner/app/blobs/sha256:deadbeef", nil)
	rec := httptest.NewRecorder()
	eng.ServeHTTP(rec, req)

	got, _ := io.ReadAll(rec.Body)
	if len(got) != len(payload) {
		t.Fatalf("got %d bytes, want %d", len(got), len(payload))
	}
	for i := range payload {
		if got[i] != payload[i] {
			t.Fatalf("byte %d mismatch: got %d want %d", i, got[i], payload[i])
		}
	}
}
