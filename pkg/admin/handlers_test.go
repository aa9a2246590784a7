package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"relaydock/relay/pkg/mirror"
	"relaydock/relay/pkg/store"
)

type fakeProber struct {
	calls int
}

func (f *fakeProber) ProbeAll(ctx context.Context) {
	f.calls++
}

func newTestAPI(t *testing.T) (*API, *mirror.Registry, *store.MemoryStore, *fakeProber) {
	t.Helper()
	reg := mirror.NewRegistry()
	st := store.NewMemoryStore()
	fp := &fakeProber{}
	api := NewAPI(Config{}, reg, st, fp, nil, nil)
	return api, reg, st, fp
}

func TestHandleCreateAndListMirrors(t *testing.T) {
	api, _, _, _ := newTestAPI(t)
	srv := httptest.NewServer(api.Routes())
	defer srv.Close()

	body, _ := json.Marshal(createMirrorRequest{Prefix: "dockerhub", UpstreamURL: "https://registry-1.docker.io"})
	resp, err := http.Post(srv.URL+"/api/mirrors", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /mirrors: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}

	listResp, err := http.Get(srv.URL + "/api/mirrors")
	if err != nil {
		t.Fatalf("GET /mirrors: %v", err)
	}
	defer listResp.Body.Close()
	var got []mirrorDTO
	if err := json.NewDecoder(listResp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].Prefix != "dockerhub" {
		t.Errorf("got %+v", got)
	}
}

func TestHandlePatchMirror_IdempotentPartialUpdate(t *testing.T) {
	api, reg, _, _ := newTestAPI(t)
	created, _ := reg.Create(mirror.Mirror{Prefix: "ghcr", UpstreamURL: "https://old.example.com", Enabled: true})

	srv := httptest.NewServer(api.Routes())
	defer srv.Close()

	newURL := "https://new.example.com"
	body, _ := json.Marshal(patchMirrorRequest{UpstreamURL: &newURL})

	doPatch := func() mirrorDTO {
		req, _ := http.NewRequest(http.MethodPatch, srv.URL+"/api/mirrors/"+itoa(created.ID), bytes.NewReader(body))
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("PATCH: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want 200", resp.StatusCode)
		}
		var dto mirrorDTO
		_ = json.NewDecoder(resp.Body).Decode(&dto)
		return dto
	}

	first := doPatch()
	if first.UpstreamURL != newURL {
		t.Fatalf("UpstreamURL = %q, want %q", first.UpstreamURL, newURL)
	}
	if first.Prefix != "ghcr" {
		t.Fatalf("Prefix changed unexpectedly: %q", first.Prefix)
	}

	second := doPatch()
	if second != first {
		t.Errorf("repeated identical PATCH changed state: first=%+v second=%+v", first, second)
	}
}

func TestHandleToggleMirror(t *testing.T) {
	api, reg, _, _ := newTestAPI(t)
	created, _ := reg.Create(mirror.Mirror{Prefix: "ghcr", UpstreamURL: "https://x", Enabled: true})

	srv := httptest.NewServer(api.Routes())
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/mirrors/"+itoa(created.ID)+"/toggle", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	defer resp.Body.Close()
	var dto mirrorDTO
	_ = json.NewDecoder(resp.Body).Decode(&dto)
	if dto.Enabled {
		t.Error("expected mirror to be disabled after toggle")
	}
}

func TestHandleDeleteMirror(t *testing.T) {
	api, reg, _, _ := newTestAPI(t)
	created, _ := reg.Create(mirror.Mirror{Prefix: "ghcr", UpstreamURL: "https://x", Enabled: true})

	srv := httptest.NewServer(api.Routes())
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/mirrors/"+itoa(created.ID), nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}
	if _, err := reg.GetByID(created.ID); err == nil {
		t.Error("expected mirror to be gone from the registry")
	}
}

func TestHandleProbe_TriggersAsyncSweep(t *testing.T) {
	api, _, _, fp := newTestAPI(t)
	srv := httptest.NewServer(api.Routes())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/probe", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /probe: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && fp.calls == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	if fp.calls == 0 {
		t.Error("expected ProbeAll to be invoked")
	}
}

func TestHandleStats(t *testing.T) {
	api, _, st, _ := newTestAPI(t)
	if err := st.InsertTrafficBatch([]store.TrafficRecord{
		{Timestamp: time.Now(), MirrorID: 1, BytesOut: 100, UpstreamStatus: 200},
		{Timestamp: time.Now(), MirrorID: 1, BytesOut: 50, UpstreamStatus: 200},
	}); err != nil {
		t.Fatalf("seed traffic: %v", err)
	}

	srv := httptest.NewServer(api.Routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/stats")
	if err != nil {
		t.Fatalf("GET /stats: %v", err)
	}
	defer resp.Body.Close()
	var got statsResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.TotalRequests != 2 || got.TotalBytes != 150 {
		t.Errorf("got %+v", got)
	}
}

func TestHandleStats_DailyGranularity(t *testing.T) {
	api, _, st, _ := newTestAPI(t)
	if err := st.InsertTrafficBatch([]store.TrafficRecord{
		{Timestamp: time.Now(), MirrorID: 1, BytesOut: 10, UpstreamStatus: 200},
	}); err != nil {
		t.Fatalf("seed traffic: %v", err)
	}

	srv := httptest.NewServer(api.Routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/stats?granularity=daily")
	if err != nil {
		t.Fatalf("GET /stats?granularity=daily: %v", err)
	}
	defer resp.Body.Close()
	var got statsResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Daily) != 1 || got.Daily[0].Requests != 1 {
		t.Errorf("got %+v", got.Daily)
	}
}

func TestHandleHistory(t *testing.T) {
	api, _, st, _ := newTestAPI(t)
	if err := st.InsertTrafficBatch([]store.TrafficRecord{
		{Timestamp: time.Now(), MirrorID: 1, ImageRef: "library/nginx:latest"},
	}); err != nil {
		t.Fatalf("seed traffic: %v", err)
	}

	srv := httptest.NewServer(api.Routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/history?limit=10")
	if err != nil {
		t.Fatalf("GET /history: %v", err)
	}
	defer resp.Body.Close()
	var got []historyRecordDTO
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].ImageRef != "library/nginx:latest" {
		t.Errorf("got %+v", got)
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
