// Package vault implements the encrypted credential store and the
// resolver API over it. All credentials for a vault live in one
// AES-256-GCM encrypted blob keyed by a generated key file; every write
// decrypts, mutates, and re-encrypts the whole blob atomically under a
// file lock.
package vault

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/soledad-rivas/vaultguard/internal/audit"
	"github.com/soledad-rivas/vaultguard/internal/crypto"
)

const (
	// KeyFilename is the vault key file inside the vault directory.
	KeyFilename = "vault.key"

	// StoreFilename is the encrypted credential store blob.
	StoreFilename = "credentials.enc"

	lockFilename = "vault.lock"
)

// Mirror is the optional remote secrets backend. Writes are mirrored on a
// best-effort basis; reads are attempted remote-first.
type Mirror interface {
	Put(ctx context.Context, service, key, value string) error
	Get(ctx context.Context, service, key string) (string, error)
}

// Vault is the credential resolver over one on-disk vault directory.
type Vault struct {
	dir    string
	key    []byte
	trail  *audit.Trail
	mirror Mirror

	// Now is the clock used for createdAt/rotateBy stamps; replaced in tests.
	Now func() time.Time
}

// Init ensures the vault directory exists with owner-only permissions and
// generates the key file if absent. Idempotent: an existing vault is
// opened unchanged.
func Init(dir string) (*Vault, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create vault directory: %w", err)
	}

	keyPath := filepath.Join(dir, KeyFilename)
	if _, err := os.Stat(keyPath); os.IsNotExist(err) {
		key, err := crypto.GenerateKey()
		if err != nil {
			return nil, err
		}
		if err := os.WriteFile(keyPath, key, 0600); err != nil {
			return nil, fmt.Errorf("write key file: %w", err)
		}
	}

	return Open(dir)
}

// Open loads an existing vault. The key file must already exist.
func Open(dir string) (*Vault, error) {
	keyPath := filepath.Join(dir, KeyFilename)
	key, err := os.ReadFile(keyPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotInitialized
		}
		return nil, fmt.Errorf("read key file: %w", err)
	}
	if len(key) != crypto.KeySize {
		return nil, fmt.Errorf("%w: key file has %d bytes", ErrCorruptedStore, len(key))
	}

	return &Vault{
		dir: dir,
		key: key,
		Now: time.Now,
	}, nil
}

// SetTrail attaches the audit trail. Operations run silently without one.
func (v *Vault) SetTrail(t *audit.Trail) { v.trail = t }

// SetMirror attaches the remote secrets backend.
func (v *Vault) SetMirror(m Mirror) { v.mirror = m }

// Dir returns the vault directory path.
func (v *Vault) Dir() string { return v.dir }

// Key returns the vault key material. It also keys the audit chain.
func (v *Vault) Key() []byte { return v.key }

// StorePath returns the encrypted store file path.
func (v *Vault) StorePath() string { return filepath.Join(v.dir, StoreFilename) }

// Lock returns the file lock guarding read-modify-write cycles on the
// store blob. The backup engine acquires the same lock while snapshotting
// the vault directory.
func Lock(dir string) *flock.Flock {
	path := filepath.Join(dir, lockFilename)
	// Pre-create with owner-only mode so the permission guardian never
	// flags the lock file.
	if f, err := os.OpenFile(path, os.O_CREATE, 0600); err == nil {
		f.Close()
	}
	return flock.New(path)
}

// Close zeros the key material.
func (v *Vault) Close() {
	crypto.ZeroBytes(v.key)
}

// Validate is the resolver's no-op validation call: it proves the key
// file loads and the store blob (if present) decrypts. Used by the backup
// engine's installation check.
func (v *Vault) Validate() error {
	_, err := v.loadStore()
	return err
}

// loadStore decrypts the whole store. A missing store file is a
// legitimate empty store; a present file that fails to decrypt is
// ErrCorruptedStore and must surface to the operator.
func (v *Vault) loadStore() (credentialStore, error) {
	blob, err := os.ReadFile(v.StorePath())
	if err != nil {
		if os.IsNotExist(err) {
			return make(credentialStore), nil
		}
		return nil, fmt.Errorf("read credential store: %w", err)
	}

	plaintext, err := crypto.Decrypt(v.key, blob)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptedStore, err)
	}
	defer crypto.ZeroBytes(plaintext)

	store := make(credentialStore)
	if err := json.Unmarshal(plaintext, &store); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptedStore, err)
	}
	return store, nil
}

// saveStore re-encrypts the whole store and replaces the blob atomically
// via a temp file and rename.
func (v *Vault) saveStore(store credentialStore) error {
	plaintext, err := json.Marshal(store)
	if err != nil {
		return fmt.Errorf("encode credential store: %w", err)
	}
	defer crypto.ZeroBytes(plaintext)

	blob, err := crypto.Encrypt(v.key, plaintext)
	if err != nil {
		return fmt.Errorf("encrypt credential store: %w", err)
	}

	tmp := v.StorePath() + ".tmp"
	if err := os.WriteFile(tmp, blob, 0600); err != nil {
		return fmt.Errorf("write credential store: %w", err)
	}
	if err := os.Rename(tmp, v.StorePath()); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace credential store: %w", err)
	}
	return nil
}

// withWriteLock runs fn while holding the vault's exclusive file lock.
func (v *Vault) withWriteLock(fn func() error) error {
	lock := Lock(v.dir)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("acquire vault lock: %w", err)
	}
	defer lock.Unlock()
	return fn()
}

// withReadLock runs fn while holding the vault's shared file lock.
func (v *Vault) withReadLock(fn func() error) error {
	lock := Lock(v.dir)
	if err := lock.RLock(); err != nil {
		return fmt.Errorf("acquire vault lock: %w", err)
	}
	defer lock.Unlock()
	return fn()
}

func (v *Vault) auditEvent(action audit.Action, details map[string]any) {
	if v.trail == nil {
		return
	}
	if err := v.trail.Append(action, details); err != nil {
		slog.Warn("failed to append audit event", "action", action, "error", err)
	}
}
