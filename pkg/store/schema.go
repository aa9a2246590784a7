package store

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// Schema contains the SQL statements creating the mirrors and traffic
// tables.
const Schema = `
CREATE TABLE IF NOT EXISTS mirrors (
    id                   INTEGER PRIMARY KEY AUTOINCREMENT,
    prefix               TEXT NOT NULL UNIQUE,
    upstream_url         TEXT NOT NULL,
    upstream_host        TEXT,
    auth_kind            TEXT NOT NULL,
    auth_user            TEXT,
    auth_pass_encrypted  BLOB,
    enabled              BOOLEAN NOT NULL DEFAULT 1,
    health               TEXT NOT NULL DEFAULT 'unknown',
    latency_ms           INTEGER NOT NULL DEFAULT 0,
    consecutive_failures INTEGER NOT NULL DEFAULT 0,
    last_probe_at        TIMESTAMP
);

CREATE TABLE IF NOT EXISTS traffic (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    ts              TIMESTAMP NOT NULL,
    client_ip       TEXT,
    method          TEXT NOT NULL,
    path            TEXT NOT NULL,
    mirror_id       INTEGER,
    upstream_status INTEGER,
    bytes_out       INTEGER NOT NULL DEFAULT 0,
    duration_ms     INTEGER NOT NULL DEFAULT 0,
    image_ref       TEXT
);

CREATE INDEX IF NOT EXISTS idx_traffic_ts ON traffic(ts);
CREATE INDEX IF NOT EXISTS idx_traffic_mirror_id ON traffic(mirror_id);

CREATE TABLE IF NOT EXISTS schema_version (
    version    INTEGER PRIMARY KEY,
    applied_at TIMESTAMP NOT NULL
);
`

// InsertSchemaVersion records the current schema version, ignoring the
// insert if it's already present.
const InsertSchemaVersion = `
INSERT INTO schema_version (version, applied_at)
VALUES (?, datetime('now'))
ON CONFLICT(version) DO NOTHING;
`

// GetSchemaVersion returns the highest applied schema version.
const GetSchemaVersion = `
SELECT version FROM schema_version ORDER BY version DESC LIMIT 1;
`
