package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tabtriage/tabtriage/internal/config"
	_ "modernc.org/sqlite"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 1

// Init initializes the SQLite database at baseDir/tabtriage.db.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.tabtriage.
func Init(baseDir string) (*sql.DB, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	_ = os.Chmod(baseDir, 0700)

	// Open database with pragmas in connection string (applies to all connections)
	dbPath := filepath.Join(baseDir, "tabtriage.db")
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := verifyWALMode(db); err != nil {
		db.Close()
		return nil, err
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	_ = os.Chmod(dbPath, 0600)

	return db, nil
}

// ConfigurePool applies connection pool settings from config.
// Only sets limits if explicitly configured (non-zero values).
func ConfigurePool(db *sql.DB, cfg *config.Config) {
	if cfg == nil {
		return
	}
	if cfg.DBMaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	}
	if cfg.DBMaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	}
}

// migrate applies schema migrations based on user_version.
func migrate(db *sql.DB) error {
	version, err := GetUserVersion(db)
	if err != nil {
		return err
	}

	// Migration 0 -> 1: Initial schema (v1)
	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS sessions (
		  id           INTEGER PRIMARY KEY AUTOINCREMENT,
		  window_title TEXT,
		  hostname     TEXT NOT NULL,
		  captured_at  TEXT NOT NULL DEFAULT (datetime('now'))
		);

		CREATE TABLE IF NOT EXISTS tabs (
		  id                 INTEGER PRIMARY KEY AUTOINCREMENT,
		  session_id         INTEGER NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		  url                TEXT NOT NULL,
		  title              TEXT NOT NULL,
		  content            TEXT,
		  favicon            TEXT,
		  og_image           TEXT,
		  og_description     TEXT,
		  media              TEXT,
		  behavior_data      TEXT,
		  summary            TEXT,
		  failure_reason     TEXT,
		  suggested_category TEXT,
		  category           TEXT,
		  tags               TEXT,
		  cluster_id         TEXT,
		  cluster_label      TEXT,
		  project_id         TEXT,
		  user_note          TEXT,
		  starred            INTEGER NOT NULL DEFAULT 0,
		  captured_at        TEXT NOT NULL DEFAULT (datetime('now')),
		  triaged_at         TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_tabs_session
		ON tabs(session_id);

		CREATE INDEX IF NOT EXISTS idx_tabs_url_captured
		ON tabs(url, captured_at DESC);

		CREATE INDEX IF NOT EXISTS idx_tabs_untriaged
		ON tabs(suggested_category)
		WHERE triaged_at IS NULL;

		CREATE TABLE IF NOT EXISTS ignored_domains (
		  id       INTEGER PRIMARY KEY AUTOINCREMENT,
		  domain   TEXT NOT NULL UNIQUE,
		  added_at TEXT DEFAULT (datetime('now'))
		);

		CREATE VIRTUAL TABLE IF NOT EXISTS tabs_fts USING fts5(
		  title, content, summary,
		  content='tabs', content_rowid='id'
		);

		CREATE TRIGGER IF NOT EXISTS tabs_fts_ai AFTER INSERT ON tabs BEGIN
		  INSERT INTO tabs_fts(rowid, title, content, summary)
		  VALUES (new.id, new.title, new.content, new.summary);
		END;

		CREATE TRIGGER IF NOT EXISTS tabs_fts_ad AFTER DELETE ON tabs BEGIN
		  INSERT INTO tabs_fts(tabs_fts, rowid, title, content, summary)
		  VALUES ('delete', old.id, old.title, old.content, old.summary);
		END;

		CREATE TRIGGER IF NOT EXISTS tabs_fts_au AFTER UPDATE ON tabs BEGIN
		  INSERT INTO tabs_fts(tabs_fts, rowid, title, content, summary)
		  VALUES ('delete', old.id, old.title, old.content, old.summary);
		  INSERT INTO tabs_fts(rowid, title, content, summary)
		  VALUES (new.id, new.title, new.content, new.summary);
		END;
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if err := SetUserVersion(db, 1); err != nil {
			return err
		}
	}

	// Future migrations go here:
	// if version < 2 { ... }

	return nil
}

// verifyWALMode checks that WAL mode is active (set via connection string).
func verifyWALMode(db *sql.DB) error {
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to verify journal mode: %w", err)
	}
	if journalMode != "wal" {
		return fmt.Errorf("expected WAL mode, got %s", journalMode)
	}
	return nil
}

// GetUserVersion returns the current schema version (user_version pragma).
func GetUserVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get user_version: %w", err)
	}
	return version, nil
}

// SetUserVersion sets the schema version (user_version pragma).
func SetUserVersion(db *sql.DB, version int) error {
	_, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", version))
	if err != nil {
		return fmt.Errorf("failed to set user_version: %w", err)
	}
	return nil
}

// toNullString converts a *string to sql.NullString.
func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// rawToNullString converts raw JSON to sql.NullString, NULL when empty.
func rawToNullString(raw []byte) sql.NullString {
	if len(raw) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}

// fromNullString converts a sql.NullString to *string.
func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}
