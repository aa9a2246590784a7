package traffic

import (
	"sync"
	"testing"
	"time"

	"relaydock/relay/pkg/store"
)

type fakeStore struct {
	mu      sync.Mutex
	batches [][]store.TrafficRecord
}

func (f *fakeStore) InsertTrafficBatch(records []store.TrafficRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]store.TrafficRecord, len(records))
	copy(cp, records)
	f.batches = append(f.batches, cp)
	return nil
}

func (f *fakeStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, b := range f.batches {
		n += len(b)
	}
	return n
}

func TestRecorder_FlushesOnBatchSize(t *testing.T) {
	fs := &fakeStore{}
	r := NewRecorder(fs, Config{QueueCapacity: 100, BatchSize: 5, BatchInterval: time.Hour})
	defer r.Close()

	for i := 0; i < 5; i++ {
		r.RecordAsync(store.TrafficRecord{MirrorID: 1, BytesOut: int64(i)})
	}

	deadline := time.Now().Add(time.Second)
	for fs.count() < 5 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if fs.count() != 5 {
		t.Errorf("store received %d records, want 5 after batch-size flush", fs.count())
	}
}

func TestRecorder_FlushesOnInterval(t *testing.T) {
	fs := &fakeStore{}
	r := NewRecorder(fs, Config{QueueCapacity: 100, BatchSize: 1000, BatchInterval: 20 * time.Millisecond})
	defer r.Close()

	r.RecordAsync(store.TrafficRecord{MirrorID: 1, BytesOut: 10})

	time.Sleep(100 * time.Millisecond)
	if fs.count() != 1 {
		t.Errorf("store received %d records, want 1 after interval flush", fs.count())
	}
}

func TestRecorder_DropsOldestWhenFull(t *testing.T) {
	fs := &fakeStore{}
	// BatchInterval is huge so nothing drains automatically; the queue
	// itself (capacity 2) is the thing under test.
	r := NewRecorder(fs, Config{QueueCapacity: 2, BatchSize: 1000, BatchInterval: time.Hour})
	defer r.Close()

	// Block the worker momentarily isn't needed: we just overfill faster
	// than it can drain by using a zero-size batch threshold check via
	// direct queue writes through RecordAsync.
	for i := 0; i < 10; i++ {
		r.RecordAsync(store.TrafficRecord{BytesOut: int64(i)})
	}

	if r.Dropped() == 0 {
		t.Error("expected RecordAsync to report dropped records once the queue filled, got 0")
	}
}

func TestRecorder_CloseFlushesRemaining(t *testing.T) {
	fs := &fakeStore{}
	r := NewRecorder(fs, Config{QueueCapacity: 100, BatchSize: 1000, BatchInterval: time.Hour})

	r.RecordAsync(store.TrafficRecord{MirrorID: 2, BytesOut: 99})
	if err := r.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if fs.count() != 1 {
		t.Errorf("store received %d records after Close, want 1 (final flush)", fs.count())
	}
}
