package store

import "time"

// MirrorRow is the persisted form of a mirror. AuthPassEncrypted holds
// ciphertext produced by pkg/security/secrets — this package never sees
// plaintext credentials.
type MirrorRow struct {
	ID                  int64
	Prefix              string
	UpstreamURL         string
	UpstreamHost        string
	AuthKind            string
	AuthUser            string
	AuthPassEncrypted   []byte
	Enabled             bool
	Health              string
	LatencyMS           int64
	ConsecutiveFailures int
	LastProbeAt         *time.Time
}

// TrafficRecord is one logged proxy request.
type TrafficRecord struct {
	ID             int64
	Timestamp      time.Time
	ClientIP       string
	Method         string
	Path           string
	MirrorID       int64
	UpstreamStatus int
	BytesOut       int64
	DurationMS     int64
	ImageRef       string
}

// TrafficFilter narrows a traffic history query.
type TrafficFilter struct {
	Limit int
	Since time.Time // zero value means no lower bound
}

// MirrorStats is the per-mirror breakdown within a Stats response.
type MirrorStats struct {
	MirrorID int64
	Requests int64
	Bytes    int64
}

// Stats is the aggregate traffic summary returned by GET /stats.
type Stats struct {
	TotalRequests int64
	TotalBytes    int64
	PerMirror     []MirrorStats
}

// DailyStats is one day's aggregate, used by the
// ?granularity=daily stats view.
type DailyStats struct {
	Day      string // YYYY-MM-DD
	Requests int64
	Bytes    int64
}

// Store is satisfied by both the SQLite-backed and in-memory backends.
type Store interface {
	// LoadMirrors returns every persisted mirror, for registry warm-start.
	LoadMirrors(ctxTimeout time.Duration) ([]MirrorRow, error)
	// UpsertMirror inserts or fully replaces the row for row.ID (or
	// allocates a new ID when row.ID == 0), returning the stored row.
	UpsertMirror(row MirrorRow) (MirrorRow, error)
	DeleteMirror(id int64) error
	// UpdateMirrorHealth persists a probe outcome for an existing mirror.
	UpdateMirrorHealth(id int64, health string, latencyMS int64, consecutiveFailures int, lastProbeAt time.Time) error

	// InsertTrafficBatch appends records in one transaction. Never blocks
	// the hot path — called only by the background consumer.
	InsertTrafficBatch(records []TrafficRecord) error
	QueryTraffic(filter TrafficFilter) ([]TrafficRecord, error)
	Stats() (Stats, error)
	DailyStats(days int) ([]DailyStats, error)
	PruneTrafficOlderThan(cutoff time.Time) (int64, error)

	Close() error
}
