// Package store implements persistence for the mirror registry and the
// traffic ledger: a SQLite-backed Store (either cgo mattn/go-sqlite3 or
// pure-Go modernc.org/sqlite, selected by configuration) and an in-memory
// Store for tests. Both satisfy the same Store interface so the rest of
// the proxy never knows which backend it's talking to.
package store
