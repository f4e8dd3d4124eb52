package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // driver: sqlite
)

type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// DriverName is the database/sql name registered for d.
func (d Driver) DriverName() string {
	if d == DriverPostgres {
		return "pgx"
	}
	return "sqlite"
}

// Open opens a DB and ensures schema exists.
func Open(ctx context.Context, driver Driver, dsn string) (*sqlx.DB, error) {
	switch driver {
	case DriverSQLite:
		if dsn == "" {
			dsn = "file:participation.db?cache=shared&mode=rwc&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
		}
	case DriverPostgres:
		if dsn == "" {
			dsn = "postgres://localhost:5432/participation?sslmode=disable"
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	db, err := sqlx.Open(driver.DriverName(), dsn)
	if err != nil {
		return nil, err
	}
	if driver == DriverSQLite {
		// SQLite should not use many concurrent writers; keep pool small.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := ensureSchema(ctx, db.DB, driver); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func ensureSchema(ctx context.Context, db *sql.DB, driver Driver) error {
	var schema string
	switch driver {
	case DriverSQLite:
		schema = schemaSQLite
	case DriverPostgres:
		schema = schemaPostgres
	}
	_, err := db.ExecContext(ctx, schema)
	return err
}

const schemaSQLite = `
PRAGMA foreign_keys=ON;

CREATE TABLE IF NOT EXISTS classes (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT NOT NULL,
  semester TEXT NOT NULL DEFAULT '',
  created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS students (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  class_id INTEGER NOT NULL REFERENCES classes(id) ON DELETE CASCADE,
  name TEXT NOT NULL,
  sort_key INTEGER NOT NULL DEFAULT 0,
  manual_adjustment REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS speaker_aliases (
  class_id INTEGER NOT NULL REFERENCES classes(id) ON DELETE CASCADE,
  alias TEXT NOT NULL,          -- lower-cased lookup key
  display TEXT NOT NULL,        -- alias as entered
  resolution TEXT NOT NULL,     -- roster label | PROFESSOR | IGNORE
  PRIMARY KEY (class_id, alias)
);

CREATE TABLE IF NOT EXISTS settings (
  class_id INTEGER PRIMARY KEY REFERENCES classes(id) ON DELETE CASCADE,
  base_score REAL NOT NULL DEFAULT 0,
  spread_points REAL NOT NULL DEFAULT 0,
  instance_weight REAL NOT NULL DEFAULT 0,
  time_weight REAL NOT NULL DEFAULT 0,
  sync_penalty REAL NOT NULL DEFAULT 0,
  free_sync_absences REAL NOT NULL DEFAULT 0,
  async_penalty REAL NOT NULL DEFAULT 0,
  free_async_misses REAL NOT NULL DEFAULT 0,
  max_instances_per_week REAL NOT NULL DEFAULT 0,
  free_video_off REAL NOT NULL DEFAULT 0,
  video_off_penalty REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS weekly_data (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  student_id INTEGER NOT NULL REFERENCES students(id) ON DELETE CASCADE,
  week_number INTEGER NOT NULL,
  sync_status TEXT NOT NULL DEFAULT '',
  async_status TEXT NOT NULL DEFAULT '',
  speaking_time REAL NOT NULL DEFAULT 0,
  speaking_instances INTEGER NOT NULL DEFAULT 0,
  UNIQUE (student_id, week_number)
);

CREATE TABLE IF NOT EXISTS event_log (
  seq INTEGER PRIMARY KEY AUTOINCREMENT,
  id TEXT NOT NULL UNIQUE,                   -- uuid
  typ TEXT NOT NULL,                         -- e.g., TranscriptAnalyzed
  key TEXT NOT NULL,                         -- natural key: class:week
  data TEXT NOT NULL,                        -- JSON payload
  created_at INTEGER NOT NULL
);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS classes (
  id BIGSERIAL PRIMARY KEY,
  name TEXT NOT NULL,
  semester TEXT NOT NULL DEFAULT '',
  created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS students (
  id BIGSERIAL PRIMARY KEY,
  class_id BIGINT NOT NULL REFERENCES classes(id) ON DELETE CASCADE,
  name TEXT NOT NULL,
  sort_key INTEGER NOT NULL DEFAULT 0,
  manual_adjustment DOUBLE PRECISION NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS speaker_aliases (
  class_id BIGINT NOT NULL REFERENCES classes(id) ON DELETE CASCADE,
  alias TEXT NOT NULL,
  display TEXT NOT NULL,
  resolution TEXT NOT NULL,
  PRIMARY KEY (class_id, alias)
);

CREATE TABLE IF NOT EXISTS settings (
  class_id BIGINT PRIMARY KEY REFERENCES classes(id) ON DELETE CASCADE,
  base_score DOUBLE PRECISION NOT NULL DEFAULT 0,
  spread_points DOUBLE PRECISION NOT NULL DEFAULT 0,
  instance_weight DOUBLE PRECISION NOT NULL DEFAULT 0,
  time_weight DOUBLE PRECISION NOT NULL DEFAULT 0,
  sync_penalty DOUBLE PRECISION NOT NULL DEFAULT 0,
  free_sync_absences DOUBLE PRECISION NOT NULL DEFAULT 0,
  async_penalty DOUBLE PRECISION NOT NULL DEFAULT 0,
  free_async_misses DOUBLE PRECISION NOT NULL DEFAULT 0,
  max_instances_per_week DOUBLE PRECISION NOT NULL DEFAULT 0,
  free_video_off DOUBLE PRECISION NOT NULL DEFAULT 0,
  video_off_penalty DOUBLE PRECISION NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS weekly_data (
  id BIGSERIAL PRIMARY KEY,
  student_id BIGINT NOT NULL REFERENCES students(id) ON DELETE CASCADE,
  week_number INTEGER NOT NULL,
  sync_status TEXT NOT NULL DEFAULT '',
  async_status TEXT NOT NULL DEFAULT '',
  speaking_time DOUBLE PRECISION NOT NULL DEFAULT 0,
  speaking_instances INTEGER NOT NULL DEFAULT 0,
  UNIQUE (student_id, week_number)
);

CREATE TABLE IF NOT EXISTS event_log (
  seq BIGSERIAL PRIMARY KEY,
  id TEXT NOT NULL UNIQUE,
  typ TEXT NOT NULL,
  key TEXT NOT NULL,
  data TEXT NOT NULL,
  created_at BIGINT NOT NULL
);
`
