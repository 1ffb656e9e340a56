// Package db provides SQLite persistence for virtdashd.
//
// The daemon is deliberately stateless about server data — snapshots are
// refetched, never stored — so the database only holds what must survive
// a restart:
//   - vault entries: age-encrypted root passwords from reset operations,
//     keyed by server ID with an explicit expiry
//   - power action audit records
//
// The database uses SQLite with WAL mode. Max open connections is limited
// to 1 to avoid write conflicts.
package db

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const dataDirPerms = 0o750

// Store holds the SQLite handle for virtdashd.
type Store struct {
	Path string
	DB   *sql.DB
}

// Open connects to SQLite, applies pragmas, and runs migrations.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("db path is required")
	}
	if err := ensureDir(filepath.Dir(path)); err != nil {
		return nil, err
	}
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	if err := applyPragmas(conn); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}
	if err := Migrate(conn); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return &Store{Path: path, DB: conn}, nil
}

// Close releases the underlying database connection. Safe on nil.
func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

func ensureDir(path string) error {
	if path == "" {
		return errors.New("db directory is required")
	}
	if err := os.MkdirAll(path, dataDirPerms); err != nil {
		return fmt.Errorf("create db dir %s: %w", path, err)
	}
	return nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA foreign_keys = ON;",
		"PRAGMA journal_mode = WAL;",
		"PRAGMA busy_timeout = 5000;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", value, err)
	}
	return parsed, nil
}
