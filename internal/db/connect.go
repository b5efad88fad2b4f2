package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx
	_ "modernc.org/sqlite"             // driver: sqlite
)

type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// Open opens a DB and ensures schema exists.
func Open(ctx context.Context, driver Driver, dsn string) (*sql.DB, error) {
	var drvName string
	switch driver {
	case DriverSQLite:
		drvName = "sqlite" // modernc driver
		if dsn == "" {
			dsn = "file:audit.db?cache=shared&mode=rwc&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
		}
	case DriverPostgres:
		drvName = "pgx" // pgx stdlib driver
		if dsn == "" {
			dsn = "postgres://localhost:5432/audit?sslmode=disable"
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	db, err := sql.Open(drvName, dsn)
	if err != nil {
		return nil, err
	}
	if driver == DriverSQLite {
		// one writer keeps sqlite transactions from tripping over each other
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if err := EnsureSchema(ctx, db, driver); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return db, nil
}

// EnsureSchema creates missing tables. It is idempotent.
func EnsureSchema(ctx context.Context, db *sql.DB, driver Driver) error {
	var schema string
	switch driver {
	case DriverSQLite:
		schema = schemaSQLite
	case DriverPostgres:
		schema = schemaPostgres
	default:
		return fmt.Errorf("unsupported driver: %s", driver)
	}
	_, err := db.ExecContext(ctx, schema)
	return err
}

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  username TEXT NOT NULL UNIQUE,
  role TEXT NOT NULL,
  password_hash TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS group_members (
  group_id TEXT NOT NULL,
  user_id TEXT NOT NULL,
  leader INTEGER NOT NULL DEFAULT 0,
  PRIMARY KEY (group_id, user_id)
);

CREATE TABLE IF NOT EXISTS audits (
  id TEXT PRIMARY KEY,
  type TEXT NOT NULL,
  title TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL DEFAULT 'active',
  auditor_user_id TEXT NOT NULL DEFAULT '',
  auditee_user_id TEXT NOT NULL DEFAULT '',
  auditor_group_id TEXT NOT NULL DEFAULT '',
  auditee_group_id TEXT NOT NULL DEFAULT '',
  participant_user_id TEXT NOT NULL DEFAULT '',
  source_audit_id TEXT NOT NULL DEFAULT '',
  exam_start_time INTEGER,
  time_limit_minutes INTEGER NOT NULL DEFAULT 0,
  scheduled_start_time INTEGER,
  is_manually_locked INTEGER NOT NULL DEFAULT 0,
  score_released INTEGER NOT NULL DEFAULT 0,
  created_at INTEGER NOT NULL,
  updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS evaluation_items (
  id TEXT PRIMARY KEY,
  audit_id TEXT NOT NULL REFERENCES audits(id) ON DELETE CASCADE,
  seq INTEGER NOT NULL,
  category TEXT NOT NULL,
  subcategory TEXT NOT NULL,
  criteria TEXT NOT NULL,
  sort_order INTEGER NOT NULL,
  bobot REAL NOT NULL,
  subcategory_bobot REAL NOT NULL,
  category_bobot REAL NOT NULL,
  auditee_answer TEXT NOT NULL DEFAULT '',
  auditee_score REAL NOT NULL DEFAULT 0,
  auditee_description TEXT NOT NULL DEFAULT '',
  evidence_link TEXT NOT NULL DEFAULT '',
  evaluator_answer TEXT NOT NULL DEFAULT '',
  evaluator_score REAL NOT NULL DEFAULT 0,
  note TEXT NOT NULL DEFAULT '',
  recommendation TEXT NOT NULL DEFAULT '',
  teacher_score REAL NOT NULL DEFAULT 0,
  status TEXT NOT NULL,
  auditee_response TEXT NOT NULL DEFAULT '',
  evaluator_rebuttal TEXT NOT NULL DEFAULT '',
  action_plan TEXT NOT NULL DEFAULT '',
  assigned_evaluator_user_id TEXT NOT NULL DEFAULT '',
  assigned_auditee_user_id TEXT NOT NULL DEFAULT '',
  assigned_to TEXT NOT NULL DEFAULT '',
  version INTEGER NOT NULL DEFAULT 1,
  updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS evaluation_items_audit ON evaluation_items(audit_id, seq);

CREATE TABLE IF NOT EXISTS event_log (
  seq INTEGER PRIMARY KEY AUTOINCREMENT,
  site_id TEXT NOT NULL DEFAULT 'local',
  typ TEXT NOT NULL,                         -- e.g. ItemTransitioned
  key TEXT NOT NULL,                         -- natural key: item or audit id
  actor TEXT NOT NULL DEFAULT '',
  data TEXT NOT NULL,                        -- JSON payload
  created_at INTEGER NOT NULL
);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  username TEXT NOT NULL UNIQUE,
  role TEXT NOT NULL,
  password_hash TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS group_members (
  group_id TEXT NOT NULL,
  user_id TEXT NOT NULL,
  leader BOOLEAN NOT NULL DEFAULT FALSE,
  PRIMARY KEY (group_id, user_id)
);

CREATE TABLE IF NOT EXISTS audits (
  id TEXT PRIMARY KEY,
  type TEXT NOT NULL,
  title TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL DEFAULT 'active',
  auditor_user_id TEXT NOT NULL DEFAULT '',
  auditee_user_id TEXT NOT NULL DEFAULT '',
  auditor_group_id TEXT NOT NULL DEFAULT '',
  auditee_group_id TEXT NOT NULL DEFAULT '',
  participant_user_id TEXT NOT NULL DEFAULT '',
  source_audit_id TEXT NOT NULL DEFAULT '',
  exam_start_time BIGINT,
  time_limit_minutes INTEGER NOT NULL DEFAULT 0,
  scheduled_start_time BIGINT,
  is_manually_locked BOOLEAN NOT NULL DEFAULT FALSE,
  score_released BOOLEAN NOT NULL DEFAULT FALSE,
  created_at BIGINT NOT NULL,
  updated_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS evaluation_items (
  id TEXT PRIMARY KEY,
  audit_id TEXT NOT NULL REFERENCES audits(id) ON DELETE CASCADE,
  seq INTEGER NOT NULL,
  category TEXT NOT NULL,
  subcategory TEXT NOT NULL,
  criteria TEXT NOT NULL,
  sort_order INTEGER NOT NULL,
  bobot DOUBLE PRECISION NOT NULL,
  subcategory_bobot DOUBLE PRECISION NOT NULL,
  category_bobot DOUBLE PRECISION NOT NULL,
  auditee_answer TEXT NOT NULL DEFAULT '',
  auditee_score DOUBLE PRECISION NOT NULL DEFAULT 0,
  auditee_description TEXT NOT NULL DEFAULT '',
  evidence_link TEXT NOT NULL DEFAULT '',
  evaluator_answer TEXT NOT NULL DEFAULT '',
  evaluator_score DOUBLE PRECISION NOT NULL DEFAULT 0,
  note TEXT NOT NULL DEFAULT '',
  recommendation TEXT NOT NULL DEFAULT '',
  teacher_score DOUBLE PRECISION NOT NULL DEFAULT 0,
  status TEXT NOT NULL,
  auditee_response TEXT NOT NULL DEFAULT '',
  evaluator_rebuttal TEXT NOT NULL DEFAULT '',
  action_plan TEXT NOT NULL DEFAULT '',
  assigned_evaluator_user_id TEXT NOT NULL DEFAULT '',
  assigned_auditee_user_id TEXT NOT NULL DEFAULT '',
  assigned_to TEXT NOT NULL DEFAULT '',
  version BIGINT NOT NULL DEFAULT 1,
  updated_at BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS evaluation_items_audit ON evaluation_items(audit_id, seq);

CREATE TABLE IF NOT EXISTS event_log (
  seq BIGSERIAL PRIMARY KEY,
  site_id TEXT NOT NULL DEFAULT 'local',
  typ TEXT NOT NULL,
  key TEXT NOT NULL,
  actor TEXT NOT NULL DEFAULT '',
  data TEXT NOT NULL,
  created_at BIGINT NOT NULL
);
`
