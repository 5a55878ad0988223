// Package state persists tasks, run records, and parked approvals in
// SQLite. Each project keeps its own database under .foreman/; a global
// database under the XDG data dir serves commands run outside a project.
package state

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

// DB is a handle on one foreman database. Methods are safe for
// concurrent use.
type DB struct {
	conn *sql.DB
	path string
	mu   sync.RWMutex
}

// GlobalDBPath is where the cross-project database lives, honoring
// XDG_DATA_HOME.
func GlobalDBPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, _ := os.UserHomeDir()
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "foreman", "foreman.db")
}

// ProjectDBPath is where a project's database lives, relative to its root.
func ProjectDBPath(projectRoot string) string {
	return filepath.Join(projectRoot, ".foreman", "state.db")
}

// Open opens the database at path, creating missing parent directories.
// The connection runs in WAL mode so the CLI can read status while a run
// is writing.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	return &DB{conn: conn, path: path}, nil
}

// OpenGlobal opens the cross-project database.
func OpenGlobal() (*DB, error) {
	return Open(GlobalDBPath())
}

// OpenProject opens the database for the project rooted at projectRoot.
func OpenProject(projectRoot string) (*DB, error) {
	return Open(ProjectDBPath(projectRoot))
}

func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.conn.Close()
}

// Path returns the database file's location.
func (db *DB) Path() string {
	return db.path
}

// Migrate brings the schema up to the current version. Each migration
// runs in its own transaction and is recorded in schema_version, so a
// crash mid-migrate resumes cleanly.
func (db *DB) Migrate() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var currentVersion int
	row := db.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{1, migrationV1Tasks},
		{2, migrationV2RunRecords},
		{3, migrationV3Approvals},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}

		tx, err := db.conn.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}

		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration v%d: %w", m.version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration v%d: %w", m.version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration v%d: %w", m.version, err)
		}
	}

	return nil
}

const migrationV1Tasks = `
CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	description TEXT NOT NULL,
	urgency TEXT NOT NULL DEFAULT 'normal',
	risk_hints TEXT,
	budget_cap REAL NOT NULL DEFAULT 0,
	override_mode TEXT,
	status TEXT NOT NULL DEFAULT 'pending',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
`

const migrationV2RunRecords = `
CREATE TABLE IF NOT EXISTS run_records (
	task_id TEXT PRIMARY KEY,
	final_status TEXT NOT NULL,
	failure_reason TEXT,
	artifacts TEXT,
	total_cost REAL NOT NULL DEFAULT 0,
	escalation_count INTEGER NOT NULL DEFAULT 0,
	phase_history TEXT,
	finished_at DATETIME NOT NULL
);
`

const migrationV3Approvals = `
CREATE TABLE IF NOT EXISTS pending_approvals (
	task_id TEXT PRIMARY KEY,
	plan_summary TEXT,
	risk_score REAL NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	resolved_at DATETIME,
	decision TEXT
);

CREATE INDEX IF NOT EXISTS idx_pending_approvals_resolved ON pending_approvals(resolved_at);
`
