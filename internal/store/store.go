// Package store persists daily observations, station records, latest-insight
// snapshots, and the station registry in a single SQLite database. The driver
// is modernc.org/sqlite, so binaries stay cgo-free.
package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Store wraps the database handle behind typed accessors. Safe for concurrent
// use; single-statement guarded upserts keep the record and snapshot
// compare-and-swap semantics atomic without application locks.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS observations (
	station_id TEXT NOT NULL,
	metric     TEXT NOT NULL,
	obs_date   TEXT NOT NULL,
	value      REAL NOT NULL,
	PRIMARY KEY (station_id, metric, obs_date)
);

CREATE TABLE IF NOT EXISTS station_records (
	station_id  TEXT    NOT NULL,
	metric      TEXT    NOT NULL,
	window_days INTEGER NOT NULL,
	record_type TEXT    NOT NULL,
	value       REAL    NOT NULL,
	start_date  TEXT    NOT NULL,
	end_date    TEXT    NOT NULL,
	n_years     INTEGER NOT NULL,
	PRIMARY KEY (station_id, metric, window_days, record_type)
);

CREATE TABLE IF NOT EXISTS insight_snapshots (
	station_id  TEXT    NOT NULL,
	window_days INTEGER NOT NULL,
	metric      TEXT    NOT NULL,
	end_date    TEXT    NOT NULL,
	insight     TEXT    NOT NULL,
	computed_at TEXT    NOT NULL,
	PRIMARY KEY (station_id, window_days)
);

CREATE TABLE IF NOT EXISTS stations (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	latitude    REAL NOT NULL,
	longitude   REAL NOT NULL,
	elevation_m REAL NOT NULL,
	first_year  INTEGER NOT NULL,
	active      INTEGER NOT NULL DEFAULT 1
);
`

// Open opens the SQLite database at path, creating it and the schema when
// missing. Dates are stored as ISO-8601 text, so lexicographic comparison in
// SQL matches chronological order.
func Open(path string) (*Store, error) {
	// busy_timeout and synchronous are per-connection; the pragmas ride the
	// DSN so every connection database/sql opens picks them up.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable, for health checks.
func (s *Store) Ping() error {
	return s.db.Ping()
}
