package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// InMemory is the DSN for a private in-memory database.
const InMemory = ":memory:"

// Store is the SQLite data access layer for the response cache and the
// per-pass analysis records.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database at dbPath. An empty path or InMemory
// opens an in-memory database pinned to a single connection, since every
// new connection would otherwise see its own empty database.
func NewStore(dbPath string) (*Store, error) {
	memory := dbPath == "" || dbPath == InMemory
	dsn := dbPath + "?_journal_mode=WAL&_busy_timeout=30000"
	if memory {
		dsn = "file::memory:?_busy_timeout=30000"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if memory {
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate creates the tables and indexes. Idempotent.
func (s *Store) Migrate() error {
	_, err := s.db.Exec(schemaDDL)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Reset empties every table. The service calls it on open so a file-backed
// database never carries responses over from an earlier process.
func (s *Store) Reset() error {
	for _, q := range []string{
		"DELETE FROM responses",
		"DELETE FROM analyses",
	} {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("reset: %w", err)
		}
	}
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS responses (
  path            TEXT PRIMARY KEY,
  payload         TEXT NOT NULL,
  is_failure      BOOLEAN NOT NULL DEFAULT FALSE,
  created_at      TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS analyses (
  id               INTEGER PRIMARY KEY,
  path             TEXT NOT NULL,
  version          TEXT NOT NULL,
  content_hash     TEXT,
  duration_ms      INTEGER,
  export_count     INTEGER DEFAULT 0,
  dependency_count INTEGER DEFAULT 0,
  error_count      INTEGER DEFAULT 0,
  analyzed_at      TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_analyses_path ON analyses(path);
`
