// ABOUTME: Database schema migrations and version tracking.
package db

import (
	"database/sql"
	"fmt"
)

// migration is a single schema migration with version, name, and SQL.
type migration struct {
	version    int
	name       string
	statements []string
}

var migrations = []migration{
	{
		version: 1,
		name:    "init_core_tables",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS vault_entries (
				server_id INTEGER PRIMARY KEY,
				ciphertext BLOB NOT NULL,
				created_at TEXT NOT NULL,
				expires_at TEXT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS power_actions (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				ts TEXT NOT NULL,
				server_id INTEGER NOT NULL,
				action TEXT NOT NULL,
				result TEXT NOT NULL,
				message TEXT,
				correlation_id TEXT
			)`,
			`CREATE INDEX IF NOT EXISTS idx_vault_entries_expires ON vault_entries(expires_at)`,
			`CREATE INDEX IF NOT EXISTS idx_power_actions_server ON power_actions(server_id)`,
			`CREATE INDEX IF NOT EXISTS idx_power_actions_ts ON power_actions(ts)`,
		},
	},
}

// Migrate applies all pending migrations inside transactions.
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TEXT NOT NULL
	)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	applied := make(map[int]bool)
	rows, err := db.Query(`SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("query schema_migrations: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return fmt.Errorf("scan schema_migrations: %w", err)
		}
		applied[version] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate schema_migrations: %w", err)
	}

	for _, m := range migrations {
		if applied[m.version] {
			continue
		}
		if err := applyMigration(db, m); err != nil {
			return err
		}
	}
	return nil
}

func applyMigration(db *sql.DB, m migration) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin migration %d: %w", m.version, err)
	}
	for _, stmt := range m.statements {
		if _, err := tx.Exec(stmt); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
		}
	}
	if _, err := tx.Exec(`INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, datetime('now'))`,
		m.version, m.name); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("record migration %d: %w", m.version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %d: %w", m.version, err)
	}
	return nil
}
