// Package vault stores root passwords produced by password resets.
//
// Plaintext passwords only exist in memory on the way in and out. At
// rest each password is age-encrypted to the daemon's X25519 recipient
// and written to SQLite with an explicit expiry. Expired entries are
// purged on read, so a restart never resurrects a stale credential.
package vault

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"filippo.io/age"

	"github.com/virtdash/virtdash/internal/db"
)

// ErrNotFound is returned when no live entry exists for a server.
var ErrNotFound = errors.New("vault: password not found")

// Vault encrypts and persists per-server passwords.
type Vault struct {
	Store      *db.Store
	TTL        time.Duration
	identities []age.Identity
	recipient  age.Recipient

	// Now is overridable for tests; defaults to time.Now.
	Now func() time.Time
}

// Entry is a decrypted password with its lifetime bounds.
type Entry struct {
	Password  string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Open loads the age identity file and returns a ready vault. The key
// file uses the standard age-keygen format: one AGE-SECRET-KEY- line,
// comments and blanks ignored.
func Open(store *db.Store, keyPath string, ttl time.Duration) (*Vault, error) {
	if store == nil {
		return nil, errors.New("vault: db store is required")
	}
	if ttl <= 0 {
		return nil, errors.New("vault: ttl must be positive")
	}
	if strings.TrimSpace(keyPath) == "" {
		return nil, errors.New("vault: age key path is required")
	}
	keyData, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("vault: read age key %s: %w", keyPath, err)
	}
	return New(store, keyData, ttl)
}

// New builds a vault from raw key material. Open is the production
// entry point; New exists so tests can feed generated identities.
func New(store *db.Store, keyData []byte, ttl time.Duration) (*Vault, error) {
	identities, err := parseIdentities(keyData)
	if err != nil {
		return nil, err
	}
	first, ok := identities[0].(*age.X25519Identity)
	if !ok {
		return nil, errors.New("vault: expected an X25519 identity")
	}
	return &Vault{
		Store:      store,
		TTL:        ttl,
		identities: identities,
		recipient:  first.Recipient(),
		Now:        time.Now,
	}, nil
}

// Put encrypts a password and stores it for a server, replacing any
// previous entry. Returns the expiry assigned to the new entry.
func (v *Vault) Put(ctx context.Context, serverID int, password string) (time.Time, error) {
	if v == nil {
		return time.Time{}, errors.New("vault is nil")
	}
	if password == "" {
		return time.Time{}, errors.New("vault: password is empty")
	}
	ciphertext, err := v.encrypt(password)
	if err != nil {
		return time.Time{}, err
	}
	now := v.Now().UTC()
	expires := now.Add(v.TTL)
	entry := db.VaultEntry{
		ServerID:   serverID,
		Ciphertext: ciphertext,
		CreatedAt:  now,
		ExpiresAt:  expires,
	}
	if err := v.Store.UpsertVaultEntry(ctx, entry); err != nil {
		return time.Time{}, err
	}
	return expires, nil
}

// Get decrypts the stored password for a server. An expired entry is
// deleted and reported as ErrNotFound.
func (v *Vault) Get(ctx context.Context, serverID int) (Entry, error) {
	if v == nil {
		return Entry{}, errors.New("vault is nil")
	}
	stored, ok, err := v.Store.GetVaultEntry(ctx, serverID)
	if err != nil {
		return Entry{}, err
	}
	if !ok {
		return Entry{}, ErrNotFound
	}
	if !v.Now().UTC().Before(stored.ExpiresAt) {
		if err := v.Store.DeleteVaultEntry(ctx, serverID); err != nil {
			return Entry{}, err
		}
		return Entry{}, ErrNotFound
	}
	password, err := v.decrypt(stored.Ciphertext)
	if err != nil {
		return Entry{}, err
	}
	return Entry{
		Password:  password,
		CreatedAt: stored.CreatedAt,
		ExpiresAt: stored.ExpiresAt,
	}, nil
}

// Delete removes the entry for a server regardless of expiry.
func (v *Vault) Delete(ctx context.Context, serverID int) error {
	if v == nil {
		return errors.New("vault is nil")
	}
	return v.Store.DeleteVaultEntry(ctx, serverID)
}

// PurgeExpired drops every expired entry. Intended for a periodic
// housekeeping call; Get already handles per-entry expiry.
func (v *Vault) PurgeExpired(ctx context.Context) (int64, error) {
	if v == nil {
		return 0, errors.New("vault is nil")
	}
	return v.Store.PurgeExpiredVaultEntries(ctx, v.Now().UTC())
}

func (v *Vault) encrypt(plaintext string) ([]byte, error) {
	var buf bytes.Buffer
	writer, err := age.Encrypt(&buf, v.recipient)
	if err != nil {
		return nil, fmt.Errorf("vault: encrypt: %w", err)
	}
	if _, err := io.WriteString(writer, plaintext); err != nil {
		return nil, fmt.Errorf("vault: encrypt: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("vault: encrypt: %w", err)
	}
	return buf.Bytes(), nil
}

func (v *Vault) decrypt(ciphertext []byte) (string, error) {
	reader, err := age.Decrypt(bytes.NewReader(ciphertext), v.identities...)
	if err != nil {
		return "", fmt.Errorf("vault: decrypt: %w", err)
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("vault: decrypt: %w", err)
	}
	return string(plaintext), nil
}

func parseIdentities(data []byte) ([]age.Identity, error) {
	var identities []age.Identity
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !strings.HasPrefix(line, "AGE-SECRET-KEY-") {
			continue
		}
		identity, err := age.ParseX25519Identity(line)
		if err != nil {
			return nil, fmt.Errorf("vault: parse age identity: %w", err)
		}
		identities = append(identities, identity)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("vault: read age key: %w", err)
	}
	if len(identities) == 0 {
		return nil, errors.New("vault: no age identities found")
	}
	return identities, nil
}
