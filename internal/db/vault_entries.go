// ABOUTME: Vault entry database operations for encrypted root passwords.
// Entries are age ciphertext keyed by server ID; the db layer never sees
// plaintext.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// VaultEntry is one encrypted password record.
type VaultEntry struct {
	ServerID   int
	Ciphertext []byte
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// UpsertVaultEntry stores or replaces the encrypted password for a server.
func (s *Store) UpsertVaultEntry(ctx context.Context, entry VaultEntry) error {
	if s == nil || s.DB == nil {
		return errors.New("db store is nil")
	}
	if entry.ServerID <= 0 {
		return errors.New("server id must be positive")
	}
	if len(entry.Ciphertext) == 0 {
		return errors.New("ciphertext is required")
	}
	if entry.ExpiresAt.IsZero() {
		return errors.New("expires_at is required")
	}
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.DB.ExecContext(ctx, `INSERT INTO vault_entries (server_id, ciphertext, created_at, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(server_id) DO UPDATE SET ciphertext = excluded.ciphertext,
			created_at = excluded.created_at, expires_at = excluded.expires_at`,
		entry.ServerID,
		entry.Ciphertext,
		formatTime(createdAt),
		formatTime(entry.ExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("upsert vault entry for server %d: %w", entry.ServerID, err)
	}
	return nil
}

// GetVaultEntry loads the encrypted password for a server. The second
// return value is false when no entry exists.
func (s *Store) GetVaultEntry(ctx context.Context, serverID int) (VaultEntry, bool, error) {
	if s == nil || s.DB == nil {
		return VaultEntry{}, false, errors.New("db store is nil")
	}
	if serverID <= 0 {
		return VaultEntry{}, false, errors.New("server id must be positive")
	}
	row := s.DB.QueryRowContext(ctx, `SELECT server_id, ciphertext, created_at, expires_at
		FROM vault_entries WHERE server_id = ?`, serverID)

	var entry VaultEntry
	var createdAt, expiresAt string
	if err := row.Scan(&entry.ServerID, &entry.Ciphertext, &createdAt, &expiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return VaultEntry{}, false, nil
		}
		return VaultEntry{}, false, fmt.Errorf("load vault entry for server %d: %w", serverID, err)
	}
	var err error
	if entry.CreatedAt, err = parseTime(createdAt); err != nil {
		return VaultEntry{}, false, err
	}
	if entry.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return VaultEntry{}, false, err
	}
	return entry, true, nil
}

// DeleteVaultEntry removes the entry for a server. Missing entries are
// not an error.
func (s *Store) DeleteVaultEntry(ctx context.Context, serverID int) error {
	if s == nil || s.DB == nil {
		return errors.New("db store is nil")
	}
	if serverID <= 0 {
		return errors.New("server id must be positive")
	}
	if _, err := s.DB.ExecContext(ctx, `DELETE FROM vault_entries WHERE server_id = ?`, serverID); err != nil {
		return fmt.Errorf("delete vault entry for server %d: %w", serverID, err)
	}
	return nil
}

// PurgeExpiredVaultEntries deletes every entry whose expiry is at or
// before now, returning the number removed.
func (s *Store) PurgeExpiredVaultEntries(ctx context.Context, now time.Time) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("db store is nil")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	result, err := s.DB.ExecContext(ctx, `DELETE FROM vault_entries WHERE expires_at <= ?`, formatTime(now))
	if err != nil {
		return 0, fmt.Errorf("purge expired vault entries: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge expired vault entries: %w", err)
	}
	return removed, nil
}
