package store

import (
	"testing"
	"time"
)

func TestMemoryStore_MirrorRoundTrip(t *testing.T) {
	s := NewMemoryStore()

	created, err := s.UpsertMirror(MirrorRow{Prefix: "dockerhub", UpstreamURL: "https://registry-1.docker.io", AuthKind: "none", Enabled: true, Health: "unknown"})
	if err != nil {
		t.Fatalf("UpsertMirror() error = %v", err)
	}
	if created.ID == 0 {
		t.Fatal("UpsertMirror() did not allocate an ID")
	}

	loaded, err := s.LoadMirrors(0)
	if err != nil {
		t.Fatalf("LoadMirrors() error = %v", err)
	}
	if len(loaded) != 1 || loaded[0].Prefix != "dockerhub" {
		t.Fatalf("LoadMirrors() = %+v, want one dockerhub row", loaded)
	}

	if err := s.UpdateMirrorHealth(created.ID, "healthy", 42, 0, time.Now()); err != nil {
		t.Fatalf("UpdateMirrorHealth() error = %v", err)
	}
	loaded, _ = s.LoadMirrors(0)
	if loaded[0].Health != "healthy" || loaded[0].LatencyMS != 42 {
		t.Errorf("after UpdateMirrorHealth: %+v", loaded[0])
	}

	if err := s.DeleteMirror(created.ID); err != nil {
		t.Fatalf("DeleteMirror() error = %v", err)
	}
	loaded, _ = s.LoadMirrors(0)
	if len(loaded) != 0 {
		t.Errorf("expected empty registry after delete, got %+v", loaded)
	}
}

func TestMemoryStore_TrafficStatsAndHistory(t *testing.T) {
	s := NewMemoryStore()
	now := time.Now()

	err := s.InsertTrafficBatch([]TrafficRecord{
		{Timestamp: now.Add(-2 * time.Minute), MirrorID: 1, BytesOut: 100, Method: "GET", Path: "/v2/library/nginx/manifests/latest"},
		{Timestamp: now.Add(-1 * time.Minute), MirrorID: 1, BytesOut: 200, Method: "GET", Path: "/v2/library/nginx/blobs/sha256:abc"},
		{Timestamp: now, MirrorID: 2, BytesOut: 50, Method: "GET", Path: "/v2/ghcr/owner/app/manifests/v1"},
	})
	if err != nil {
		t.Fatalf("InsertTrafficBatch() error = %v", err)
	}

	stats, err := s.Stats()
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.TotalRequests != 3 || stats.TotalBytes != 350 {
		t.Errorf("Stats() = %+v, want 3 requests / 350 bytes", stats)
	}
	if len(stats.PerMirror) != 2 {
		t.Fatalf("Stats().PerMirror = %+v, want 2 mirrors", stats.PerMirror)
	}

	history, err := s.QueryTraffic(TrafficFilter{Limit: 2})
	if err != nil {
		t.Fatalf("QueryTraffic() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("QueryTraffic() returned %d records, want 2 (limit)", len(history))
	}
	if history[0].Timestamp.Before(history[1].Timestamp) {
		t.Errorf("QueryTraffic() not newest-first: %+v", history)
	}

	pruned, err := s.PruneTrafficOlderThan(now.Add(-90 * time.Second))
	if err != nil {
		t.Fatalf("PruneTrafficOlderThan() error = %v", err)
	}
	if pruned != 1 {
		t.Errorf("PruneTrafficOlderThan() pruned %d, want 1", pruned)
	}

	remaining, _ := s.QueryTraffic(TrafficFilter{Limit: 10})
	if len(remaining) != 2 {
		t.Errorf("after prune, remaining = %d records, want 2", len(remaining))
	}
}

func TestMemoryStore_DailyStats(t *testing.T) {
	s := NewMemoryStore()
	now := time.Now()
	s.InsertTrafficBatch([]TrafficRecord{
		{Timestamp: now, BytesOut: 10},
		{Timestamp: now, BytesOut: 20},
		{Timestamp: now.AddDate(0, 0, -1), BytesOut: 5},
	})

	daily, err := s.DailyStats(30)
	if err != nil {
		t.Fatalf("DailyStats() error = %v", err)
	}
	if len(daily) != 2 {
		t.Fatalf("DailyStats() returned %d days, want 2", len(daily))
	}
	if daily[0].Day != now.Format("2006-01-02") {
		t.Errorf("DailyStats()[0].Day = %q, want today first (newest-first)", daily[0].Day)
	}
}
