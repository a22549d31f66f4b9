// Package db persists detector geometry and analysis runs in SQLite.
package db

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/mu3e-tools/tileangle/internal/monitoring"
	"github.com/mu3e-tools/tileangle/internal/timeutil"
)

// DB wraps the SQLite handle shared by the geometry and run stores.
type DB struct {
	*sql.DB
	path  string
	clock timeutil.Clock
}

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA foreign_keys=ON",
}

// Open opens (creating if needed) the database at path and migrates it to
// the latest schema.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// One connection keeps the per-connection pragmas in effect.
	sqlDB.SetMaxOpenConns(1)

	for _, p := range pragmas {
		if _, err := sqlDB.Exec(p); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("apply %q: %w", p, err)
		}
	}

	db := &DB{DB: sqlDB, path: path, clock: timeutil.RealClock{}}
	if err := db.MigrateUp(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	monitoring.Logf("[db] opened %s", path)
	return db, nil
}

// Path returns the file the database was opened from.
func (db *DB) Path() string { return db.path }

// SetClock replaces the clock used for timestamps and busy backoff by the
// stores returned afterwards.
func (db *DB) SetClock(c timeutil.Clock) { db.clock = c }

// Geometries returns the geometry store backed by db.
func (db *DB) Geometries() *GeometryStore {
	return &GeometryStore{db: db.DB, clock: db.clock}
}

// Runs returns the run store backed by db.
func (db *DB) Runs() *RunStore {
	return &RunStore{db: db.DB, clock: db.clock}
}
