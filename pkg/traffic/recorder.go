package traffic

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"relaydock/relay/pkg/store"
)

// Config controls the async recording pipeline (mirrors
// config.TrafficConfig; duplicated as plain fields to avoid an import-time
// dependency on pkg/config).
type Config struct {
	QueueCapacity int
	BatchSize     int
	BatchInterval time.Duration
}

// Recorder's RecordAsync never blocks. When the queue is full, the oldest
// queued record is dropped (DroppedCount is incremented) to make room for
// the new one — accounting is best-effort by design.
type Recorder struct {
	store Store
	cfg   Config

	queue chan store.TrafficRecord
	done  chan struct{}
	wg    sync.WaitGroup

	dropped atomic.Int64
	logger  *slog.Logger
}

// Store is the subset of pkg/store.Store the recorder needs, so tests can
// supply a stub without pulling in a real backend.
type Store interface {
	InsertTrafficBatch(records []store.TrafficRecord) error
}

// NewRecorder starts the background batch-draining worker and returns a
// Recorder ready to accept records.
func NewRecorder(s Store, cfg Config) *Recorder {
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 4096
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.BatchInterval <= 0 {
		cfg.BatchInterval = time.Second
	}

	r := &Recorder{
		store:  s,
		cfg:    cfg,
		queue:  make(chan store.TrafficRecord, cfg.QueueCapacity),
		done:   make(chan struct{}),
		logger: slog.Default().With("component", "traffic.recorder"),
	}

	r.wg.Add(1)
	go r.worker()
	return r
}

// RecordAsync enqueues rec without blocking. If the queue is full, the
// oldest queued record is evicted to make room.
func (r *Recorder) RecordAsync(rec store.TrafficRecord) {
	select {
	case r.queue <- rec:
		return
	default:
	}

	select {
	case <-r.queue:
		r.dropped.Add(1)
	default:
	}

	select {
	case r.queue <- rec:
	default:
		r.dropped.Add(1)
	}
}

// Dropped returns the number of records dropped due to a full queue.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Close stops accepting new drains, flushes whatever is queued, and
// returns once the worker has exited.
func (r *Recorder) Close() error {
	close(r.done)
	r.wg.Wait()
	return nil
}

func (r *Recorder) worker() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.BatchInterval)
	defer ticker.Stop()

	batch := make([]store.TrafficRecord, 0, r.cfg.BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := r.store.InsertTrafficBatch(batch); err != nil {
			r.logger.Error("traffic batch write failed", "count", len(batch), "error", err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case rec := <-r.queue:
			batch = append(batch, rec)
			if len(batch) >= r.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-r.done:
			for {
				select {
				case rec := <-r.queue:
					batch = append(batch, rec)
					if len(batch) >= r.cfg.BatchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}
