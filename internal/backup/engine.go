// Package backup implements the snapshot, prune, restore, and
// disaster-recovery pipeline over the vault's on-disk state. Backups are
// timestamped directories holding tar.gz archives of the vault and audit
// trail, copies of per-application configuration, and a manifest with an
// aggregate checksum. A "latest" symlink always points at the most recent
// successful backup.
package backup

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/soledad-rivas/vaultguard/internal/audit"
	"github.com/soledad-rivas/vaultguard/internal/crypto"
	"github.com/soledad-rivas/vaultguard/internal/vault"
)

const (
	latestName = "latest"
	idFormat   = "20060102-150405"

	vaultArchive     = "vault.tar.gz"
	vaultArchiveEnc  = "vault.tar.gz.enc"
	auditArchive     = "audit.tar.gz"
	configsDirName   = "configs"
	toolingDirName   = "tooling"
	manifestFilename = "manifest.json"
)

var (
	// ErrBackupNotFound is returned when the requested backup does not exist.
	ErrBackupNotFound = errors.New("backup not found")

	// ErrAborted is returned when the operator declines a destructive
	// confirmation.
	ErrAborted = errors.New("operation aborted by operator")

	// ErrNoPassphrase marks a skipped encrypted-archive step.
	ErrNoPassphrase = errors.New("no backup passphrase configured")
)

// Engine runs the backup/restore pipeline. All steps are sequential and
// synchronous; a restore blocks on Confirm before touching live state.
type Engine struct {
	VaultDir    string
	BackupDir   string
	AuditDir    string
	ConfigPaths []string
	MaxBackups  int
	Passphrase  string

	// Confirm gates destructive operations. A nil Confirm declines.
	Confirm func(prompt string) bool

	// Trail receives backup lifecycle events; optional.
	Trail *audit.Trail

	// Now is the clock used for backup IDs; replaced in tests.
	Now func() time.Time
}

// New builds an engine with the standard clock.
func New(vaultDir, backupDir, auditDir string) *Engine {
	return &Engine{
		VaultDir:   vaultDir,
		BackupDir:  backupDir,
		AuditDir:   auditDir,
		MaxBackups: 10,
		Now:        time.Now,
	}
}

// Backup snapshots the vault, configuration, audit trail, and tooling
// into a new timestamped backup directory, writes the manifest, enforces
// retention, and repoints the latest symlink only after every step has
// succeeded. Optional components that are missing downgrade to manifest
// warnings.
func (e *Engine) Backup() (*Manifest, error) {
	if err := os.MkdirAll(e.BackupDir, 0700); err != nil {
		return nil, fmt.Errorf("create backup root: %w", err)
	}

	id := e.Now().UTC().Format(idFormat)
	dir := filepath.Join(e.BackupDir, id)
	if err := os.Mkdir(dir, 0700); err != nil {
		return nil, fmt.Errorf("create backup directory: %w", err)
	}

	m := &Manifest{
		ID:            id,
		CreatedAt:     e.Now().UTC(),
		WorkspaceRoot: e.VaultDir,
	}
	m.Host, _ = os.Hostname()
	m.User = os.Getenv("USER")

	if err := e.backupVault(dir, m); err != nil {
		return nil, err
	}
	e.backupConfigs(dir, m)
	e.backupAudit(dir, m)
	e.backupTooling(dir, m)

	if err := e.writeManifest(dir, m); err != nil {
		return nil, err
	}

	if _, err := e.Prune(); err != nil {
		return nil, err
	}

	if err := e.pointLatest(id); err != nil {
		return nil, err
	}

	e.auditEvent(audit.ActionBackupCreated, map[string]any{
		"id":       id,
		"size":     m.TotalSizeBytes,
		"checksum": m.Checksum,
	})
	return m, nil
}

// backupVault archives the vault directory, plain and passphrase
// encrypted, while holding the vault's shared file lock so no writer can
// interleave with the snapshot. The vault is the one mandatory component.
func (e *Engine) backupVault(dir string, m *Manifest) error {
	if _, err := os.Stat(e.VaultDir); err != nil {
		return fmt.Errorf("vault directory %s: %w", e.VaultDir, err)
	}

	lock := vault.Lock(e.VaultDir)
	if err := lock.RLock(); err != nil {
		return fmt.Errorf("acquire vault lock for snapshot: %w", err)
	}
	defer lock.Unlock()

	plain := filepath.Join(dir, vaultArchive)
	files, size, err := tarGzDir(e.VaultDir, plain)
	if err != nil {
		return fmt.Errorf("archive vault: %w", err)
	}
	m.add(Component{Name: "vault", Files: files, SizeBytes: size})

	if err := e.encryptArchive(plain, filepath.Join(dir, vaultArchiveEnc)); err != nil {
		if errors.Is(err, ErrNoPassphrase) {
			slog.Warn("backup passphrase not configured, skipping encrypted vault archive")
			m.add(Component{Name: "vault-encrypted", Warning: "skipped: no passphrase configured"})
			return nil
		}
		return fmt.Errorf("encrypt vault archive: %w", err)
	}
	encInfo, err := os.Stat(filepath.Join(dir, vaultArchiveEnc))
	if err != nil {
		return err
	}
	m.add(Component{Name: "vault-encrypted", Files: 1, SizeBytes: encInfo.Size()})
	return nil
}

// backupConfigs copies every known per-application configuration file
// that exists. Missing files are warnings, not failures.
func (e *Engine) backupConfigs(dir string, m *Manifest) {
	c := Component{Name: "configs"}
	dst := filepath.Join(dir, configsDirName)

	for _, path := range e.ConfigPaths {
		info, err := os.Stat(path)
		if err != nil {
			c.Warning = appendWarning(c.Warning, fmt.Sprintf("%s missing", path))
			continue
		}
		if err := os.MkdirAll(dst, 0700); err != nil {
			c.Warning = appendWarning(c.Warning, err.Error())
			continue
		}
		if err := copyFile(path, filepath.Join(dst, filepath.Base(path)), 0600); err != nil {
			c.Warning = appendWarning(c.Warning, err.Error())
			continue
		}
		c.Files++
		c.SizeBytes += info.Size()
	}
	m.add(c)
}

// backupAudit archives the audit directory: the current log plus any
// rotated shards. A missing audit directory is a warning.
func (e *Engine) backupAudit(dir string, m *Manifest) {
	if _, err := os.Stat(e.AuditDir); err != nil {
		slog.Warn("audit directory missing, skipping audit backup", "dir", e.AuditDir)
		m.add(Component{Name: "audit", Warning: "audit directory missing"})
		return
	}

	files, size, err := tarGzDir(e.AuditDir, filepath.Join(dir, auditArchive))
	if err != nil {
		m.add(Component{Name: "audit", Warning: err.Error()})
		return
	}
	m.add(Component{Name: "audit", Files: files, SizeBytes: size})
}

// backupTooling copies the running binary so a bare host can restore
// with the exact tool version that produced the backup.
func (e *Engine) backupTooling(dir string, m *Manifest) {
	exe, err := os.Executable()
	if err != nil {
		m.add(Component{Name: "tooling", Warning: err.Error()})
		return
	}
	dst := filepath.Join(dir, toolingDirName)
	if err := os.MkdirAll(dst, 0700); err != nil {
		m.add(Component{Name: "tooling", Warning: err.Error()})
		return
	}
	if err := copyFile(exe, filepath.Join(dst, filepath.Base(exe)), 0700); err != nil {
		m.add(Component{Name: "tooling", Warning: err.Error()})
		return
	}
	info, _ := os.Stat(exe)
	var size int64
	if info != nil {
		size = info.Size()
	}
	m.add(Component{Name: "tooling", Files: 1, SizeBytes: size})
}

// encryptArchive writes salt + AES-256-GCM ciphertext of src, with the
// key derived from the backup passphrase via Argon2id.
func (e *Engine) encryptArchive(src, dst string) error {
	if e.Passphrase == "" {
		return ErrNoPassphrase
	}

	plaintext, err := os.ReadFile(src)
	if err != nil {
		return err
	}

	salt, err := crypto.GenerateSalt()
	if err != nil {
		return err
	}
	key, err := crypto.DeriveKey([]byte(e.Passphrase), salt)
	if err != nil {
		return err
	}
	defer crypto.ZeroBytes(key)

	ciphertext, err := crypto.Encrypt(key, plaintext)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, append(salt, ciphertext...), 0600)
}

// Prune deletes the oldest backups beyond MaxBackups. The latest symlink
// is never counted and never removed.
func (e *Engine) Prune() ([]string, error) {
	ids, err := e.backupIDs()
	if err != nil {
		return nil, err
	}
	if len(ids) <= e.MaxBackups {
		return nil, nil
	}

	var removed []string
	for _, id := range ids[:len(ids)-e.MaxBackups] {
		if err := os.RemoveAll(filepath.Join(e.BackupDir, id)); err != nil {
			return removed, fmt.Errorf("remove backup %s: %w", id, err)
		}
		removed = append(removed, id)
	}

	if len(removed) > 0 {
		e.auditEvent(audit.ActionBackupPruned, map[string]any{"removed": removed})
	}
	return removed, nil
}

// List returns the manifest of every retained backup, oldest first.
// Backups without a readable manifest still appear, by ID alone.
func (e *Engine) List() ([]Manifest, error) {
	ids, err := e.backupIDs()
	if err != nil {
		return nil, err
	}

	manifests := make([]Manifest, 0, len(ids))
	for _, id := range ids {
		m, err := readManifest(filepath.Join(e.BackupDir, id))
		if err != nil {
			manifests = append(manifests, Manifest{ID: id})
			continue
		}
		manifests = append(manifests, *m)
	}
	return manifests, nil
}

// LatestID resolves the latest symlink to a backup ID.
func (e *Engine) LatestID() (string, error) {
	target, err := os.Readlink(filepath.Join(e.BackupDir, latestName))
	if err != nil {
		return "", ErrBackupNotFound
	}
	return filepath.Base(target), nil
}

// backupIDs lists timestamp-named backup directories, oldest first.
func (e *Engine) backupIDs() ([]string, error) {
	entries, err := os.ReadDir(e.BackupDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read backup root: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := time.Parse(idFormat, entry.Name()); err != nil {
			continue
		}
		ids = append(ids, entry.Name())
	}
	sort.Strings(ids)
	return ids, nil
}

// pointLatest atomically repoints the latest symlink at the new backup.
func (e *Engine) pointLatest(id string) error {
	link := filepath.Join(e.BackupDir, latestName)
	tmp := link + ".tmp"
	os.Remove(tmp)
	if err := os.Symlink(id, tmp); err != nil {
		return fmt.Errorf("create latest symlink: %w", err)
	}
	if err := os.Rename(tmp, link); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("update latest symlink: %w", err)
	}
	return nil
}

func (e *Engine) auditEvent(action audit.Action, details map[string]any) {
	if e.Trail == nil {
		return
	}
	if err := e.Trail.Append(action, details); err != nil {
		slog.Warn("failed to append audit event", "action", action, "error", err)
	}
}

func appendWarning(existing, add string) string {
	if existing == "" {
		return add
	}
	return existing + "; " + add
}
