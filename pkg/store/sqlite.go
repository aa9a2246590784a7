package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	backoff "github.com/cenkalti/backoff/v5"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// busyBackOff mirrors the retry shape used for transient registry errors
// elsewhere in this codebase: a short exponential backoff bounded to a
// handful of tries, relying on the caller's context for an overall cap.
func newBusyBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = 200 * time.Millisecond
	b.Multiplier = 2.0
	return b
}

// isBusy reports whether err looks like a SQLITE_BUSY/SQLITE_LOCKED
// condition worth retrying rather than surfacing immediately. Both
// driver error types are string-based, so this matches on message text.
func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "busy")
}

// withBusyRetry retries fn a few times on SQLITE_BUSY/SQLITE_LOCKED,
// which can occur under concurrent admin-mutation and traffic-batch
// writers even with a busy_timeout pragma set.
func withBusyRetry(fn func() error) error {
	_, err := backoff.Retry(context.Background(), func() (struct{}, error) {
		if err := fn(); err != nil {
			if isBusy(err) {
				return struct{}{}, err
			}
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, nil
	}, backoff.WithBackOff(newBusyBackOff()), backoff.WithMaxTries(5))
	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return perm.Unwrap()
		}
		return err
	}
	return nil
}

// SQLiteConfig configures the SQLite-backed Store.
type SQLiteConfig struct {
	Path         string
	MaxOpenConns int
	MaxIdleConns int
	WALMode      bool
	BusyTimeout  time.Duration
	// PureGo selects the cgo-free modernc.org/sqlite driver instead of
	// mattn/go-sqlite3.
	PureGo bool
}

// DefaultSQLiteConfig mirrors pkg/config/defaults.go's store defaults.
func DefaultSQLiteConfig() SQLiteConfig {
	return SQLiteConfig{
		Path:         "./data/relay.db",
		MaxOpenConns: 10,
		MaxIdleConns: 5,
		WALMode:      true,
		BusyTimeout:  5 * time.Second,
	}
}

// SQLiteStore implements Store over database/sql.
type SQLiteStore struct {
	db     *sql.DB
	cfg    SQLiteConfig
	mu     sync.RWMutex
	logger *slog.Logger
}

// NewSQLiteStore opens (creating if absent) the database at cfg.Path,
// applies PRAGMAs, and ensures the schema is current.
func NewSQLiteStore(cfg SQLiteConfig) (*SQLiteStore, error) {
	driver := "sqlite3"
	if cfg.PureGo {
		driver = "sqlite"
	}

	logger := slog.Default().With("component", "store.sqlite", "driver", driver)

	db, err := sql.Open(driver, cfg.Path)
	if err != nil {
		return nil, NewStoreError(driver, "open", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)

	s := &SQLiteStore{db: db, cfg: cfg, logger: logger}
	if err := s.initialize(driver); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("sqlite store initialized", "path", cfg.Path, "wal_mode", cfg.WALMode)
	return s, nil
}

func (s *SQLiteStore) initialize(driver string) error {
	if s.cfg.WALMode {
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return NewStoreError(driver, "enable_wal", err)
		}
	}

	busyMs := s.cfg.BusyTimeout.Milliseconds()
	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", busyMs)); err != nil {
		return NewStoreError(driver, "set_busy_timeout", err)
	}

	if _, err := s.db.Exec(Schema); err != nil {
		return NewStoreError(driver, "create_schema", err)
	}

	if _, err := s.db.Exec(InsertSchemaVersion, SchemaVersion); err != nil {
		return NewStoreError(driver, "insert_schema_version", err)
	}

	var version int
	if err := s.db.QueryRow(GetSchemaVersion).Scan(&version); err != nil && err != sql.ErrNoRows {
		return NewStoreError(driver, "get_schema_version", err)
	}
	if version != SchemaVersion {
		return NewStoreError(driver, "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}
	return nil
}

func (s *SQLiteStore) LoadMirrors(timeout time.Duration) ([]MirrorRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT id, prefix, upstream_url, upstream_host, auth_kind, auth_user,
		auth_pass_encrypted, enabled, health, latency_ms, consecutive_failures, last_probe_at FROM mirrors`)
	if err != nil {
		return nil, NewStoreError("sqlite", "load_mirrors", err)
	}
	defer rows.Close()

	var out []MirrorRow
	for rows.Next() {
		var m MirrorRow
		var host, user sql.NullString
		var lastProbe sql.NullTime
		if err := rows.Scan(&m.ID, &m.Prefix, &m.UpstreamURL, &host, &m.AuthKind, &user,
			&m.AuthPassEncrypted, &m.Enabled, &m.Health, &m.LatencyMS, &m.ConsecutiveFailures, &lastProbe); err != nil {
			return nil, NewStoreError("sqlite", "scan_mirror", err)
		}
		m.UpstreamHost = host.String
		m.AuthUser = user.String
		if lastProbe.Valid {
			t := lastProbe.Time
			m.LastProbeAt = &t
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpsertMirror(row MirrorRow) (MirrorRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if row.ID == 0 {
		res, err := s.db.Exec(`INSERT INTO mirrors (prefix, upstream_url, upstream_host, auth_kind, auth_user,
			auth_pass_encrypted, enabled, health, latency_ms, consecutive_failures, last_probe_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			row.Prefix, row.UpstreamURL, row.UpstreamHost, row.AuthKind, row.AuthUser,
			row.AuthPassEncrypted, row.Enabled, row.Health, row.LatencyMS, row.ConsecutiveFailures, row.LastProbeAt)
		if err != nil {
			return MirrorRow{}, NewStoreError("sqlite", "insert_mirror", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return MirrorRow{}, NewStoreError("sqlite", "insert_mirror_id", err)
		}
		row.ID = id
		return row, nil
	}

	_, err := s.db.Exec(`UPDATE mirrors SET prefix=?, upstream_url=?, upstream_host=?, auth_kind=?, auth_user=?,
		auth_pass_encrypted=?, enabled=?, health=?, latency_ms=?, consecutive_failures=?, last_probe_at=? WHERE id=?`,
		row.Prefix, row.UpstreamURL, row.UpstreamHost, row.AuthKind, row.AuthUser,
		row.AuthPassEncrypted, row.Enabled, row.Health, row.LatencyMS, row.ConsecutiveFailures, row.LastProbeAt, row.ID)
	if err != nil {
		return MirrorRow{}, NewStoreError("sqlite", "update_mirror", err)
	}
	return row, nil
}

func (s *SQLiteStore) DeleteMirror(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec(`DELETE FROM mirrors WHERE id=?`, id); err != nil {
		return NewStoreError("sqlite", "delete_mirror", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateMirrorHealth(id int64, health string, latencyMS int64, consecutiveFailures int, lastProbeAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec(`UPDATE mirrors SET health=?, latency_ms=?, consecutive_failures=?, last_probe_at=? WHERE id=?`,
		health, latencyMS, consecutiveFailures, lastProbeAt, id)
	if err != nil {
		return NewStoreError("sqlite", "update_mirror_health", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return NewStoreError("sqlite", "update_mirror_health", ErrMirrorRowNotFound)
	}
	return nil
}

func (s *SQLiteStore) InsertTrafficBatch(records []TrafficRecord) error {
	if len(records) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	err := withBusyRetry(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		stmt, err := tx.Prepare(`INSERT INTO traffic (ts, client_ip, method, path, mirror_id, upstream_status,
			bytes_out, duration_ms, image_ref) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			tx.Rollback()
			return err
		}
		defer stmt.Close()

		for _, r := range records {
			if _, err := stmt.Exec(r.Timestamp, r.ClientIP, r.Method, r.Path, r.MirrorID, r.UpstreamStatus,
				r.BytesOut, r.DurationMS, r.ImageRef); err != nil {
				tx.Rollback()
				return err
			}
		}
		return tx.Commit()
	})
	if err != nil {
		return NewStoreError("sqlite", "insert_traffic_batch", err)
	}
	return nil
}

func (s *SQLiteStore) QueryTraffic(filter TrafficFilter) ([]TrafficRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	query := strings.Builder{}
	query.WriteString(`SELECT id, ts, client_ip, method, path, mirror_id, upstream_status, bytes_out, duration_ms, image_ref FROM traffic`)
	var args []any
	if !filter.Since.IsZero() {
		query.WriteString(" WHERE ts >= ?")
		args = append(args, filter.Since)
	}
	query.WriteString(" ORDER BY ts DESC LIMIT ?")
	args = append(args, limit)

	rows, err := s.db.Query(query.String(), args...)
	if err != nil {
		return nil, NewStoreError("sqlite", "query_traffic", err)
	}
	defer rows.Close()

	var out []TrafficRecord
	for rows.Next() {
		var r TrafficRecord
		var mirrorID sql.NullInt64
		var imageRef sql.NullString
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.ClientIP, &r.Method, &r.Path, &mirrorID,
			&r.UpstreamStatus, &r.BytesOut, &r.DurationMS, &imageRef); err != nil {
			return nil, NewStoreError("sqlite", "scan_traffic", err)
		}
		r.MirrorID = mirrorID.Int64
		r.ImageRef = imageRef.String
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Stats() (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats Stats
	row := s.db.QueryRow(`SELECT COUNT(*), COALESCE(SUM(bytes_out), 0) FROM traffic`)
	if err := row.Scan(&stats.TotalRequests, &stats.TotalBytes); err != nil {
		return Stats{}, NewStoreError("sqlite", "stats_totals", err)
	}

	rows, err := s.db.Query(`SELECT mirror_id, COUNT(*), COALESCE(SUM(bytes_out), 0)
		FROM traffic WHERE mirror_id IS NOT NULL GROUP BY mirror_id`)
	if err != nil {
		return Stats{}, NewStoreError("sqlite", "stats_per_mirror", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m MirrorStats
		if err := rows.Scan(&m.MirrorID, &m.Requests, &m.Bytes); err != nil {
			return Stats{}, NewStoreError("sqlite", "scan_mirror_stats", err)
		}
		stats.PerMirror = append(stats.PerMirror, m)
	}
	return stats, rows.Err()
}

func (s *SQLiteStore) DailyStats(days int) ([]DailyStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if days <= 0 {
		days = 30
	}

	rows, err := s.db.Query(`SELECT date(ts) AS day, COUNT(*), COALESCE(SUM(bytes_out), 0)
		FROM traffic WHERE ts >= datetime('now', ?) GROUP BY day ORDER BY day DESC`,
		fmt.Sprintf("-%d days", days))
	if err != nil {
		return nil, NewStoreError("sqlite", "daily_stats", err)
	}
	defer rows.Close()

	var out []DailyStats
	for rows.Next() {
		var d DailyStats
		if err := rows.Scan(&d.Day, &d.Requests, &d.Bytes); err != nil {
			return nil, NewStoreError("sqlite", "scan_daily_stats", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) PruneTrafficOlderThan(cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec(`DELETE FROM traffic WHERE ts < ?`, cutoff)
	if err != nil {
		return 0, NewStoreError("sqlite", "prune_traffic", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
