package backup

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/soledad-rivas/vaultguard/internal/audit"
	"github.com/soledad-rivas/vaultguard/internal/vault"
)

// Restore extracts a backup over the live state. The operator must
// confirm before anything is touched; any live component is first
// renamed aside with a date suffix, so the previous state stays
// recoverable as a dated sibling. The installation is verified after.
func (e *Engine) Restore(id string) (*Report, error) {
	return e.restore(id, false)
}

func (e *Engine) restore(id string, skipConfirm bool) (*Report, error) {
	if id == "" || id == latestName {
		var err error
		if id, err = e.LatestID(); err != nil {
			return nil, err
		}
	}

	dir := filepath.Join(e.BackupDir, id)
	if _, err := os.Stat(dir); err != nil {
		available, _ := e.backupIDs()
		return nil, fmt.Errorf("%w: %s (available: %v)", ErrBackupNotFound, id, available)
	}

	if !skipConfirm {
		prompt := fmt.Sprintf("Restore backup %s over the live vault at %s?", id, e.VaultDir)
		if e.Confirm == nil || !e.Confirm(prompt) {
			return nil, ErrAborted
		}
	}

	suffix := ".pre-restore-" + e.Now().UTC().Format(idFormat)

	// Vault.
	if err := e.restoreArchive(filepath.Join(dir, vaultArchive), e.VaultDir, suffix); err != nil {
		return nil, fmt.Errorf("restore vault: %w", err)
	}

	// Audit trail.
	auditSrc := filepath.Join(dir, auditArchive)
	if _, err := os.Stat(auditSrc); err == nil {
		if err := e.restoreArchive(auditSrc, e.AuditDir, suffix); err != nil {
			return nil, fmt.Errorf("restore audit trail: %w", err)
		}
	} else {
		slog.Warn("backup has no audit archive, leaving live audit trail untouched", "id", id)
	}

	// Per-application configuration files.
	for _, path := range e.ConfigPaths {
		src := filepath.Join(dir, configsDirName, filepath.Base(path))
		if _, err := os.Stat(src); err != nil {
			continue
		}
		if _, err := os.Stat(path); err == nil {
			if err := os.Rename(path, path+suffix); err != nil {
				return nil, fmt.Errorf("set aside %s: %w", path, err)
			}
		}
		if err := copyFile(src, path, 0600); err != nil {
			return nil, fmt.Errorf("restore config %s: %w", path, err)
		}
	}

	// The log on disk just changed underneath the open trail; re-sync
	// the chain tail before appending restore-lifecycle events.
	if e.Trail != nil {
		if err := e.Trail.Reload(); err != nil {
			return nil, fmt.Errorf("reload audit trail: %w", err)
		}
	}

	e.auditEvent(audit.ActionBackupRestored, map[string]any{"id": id})

	report := e.VerifyInstallation()
	return report, nil
}

// restoreArchive renames a live directory aside and extracts the archive
// in its place.
func (e *Engine) restoreArchive(archive, liveDir, suffix string) error {
	if _, err := os.Stat(archive); err != nil {
		return fmt.Errorf("backup component missing: %w", err)
	}
	if _, err := os.Stat(liveDir); err == nil {
		if err := os.Rename(liveDir, liveDir+suffix); err != nil {
			return fmt.Errorf("set aside %s: %w", liveDir, err)
		}
	}
	if err := extractTarGz(archive, liveDir); err != nil {
		return err
	}
	return os.Chmod(liveDir, 0700)
}

// Report is the result of an installation verification pass.
type Report struct {
	Issues   []string
	Warnings []string
}

// Pass reports whether verification found no fatal issues.
func (r *Report) Pass() bool { return len(r.Issues) == 0 }

func (r *Report) issue(format string, a ...any) {
	r.Issues = append(r.Issues, fmt.Sprintf(format, a...))
}

func (r *Report) warn(format string, a ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, a...))
}

// VerifyInstallation runs the post-restore checklist: the vault
// directory and encrypted store exist, permissions are correct (drift is
// fixed and reported as a warning), the known configuration files are
// present (missing is a warning), and the credential resolver completes
// a no-op validation (failure is fatal).
func (e *Engine) VerifyInstallation() *Report {
	r := &Report{}

	if _, err := os.Stat(e.VaultDir); err != nil {
		r.issue("vault directory missing: %s", e.VaultDir)
		return r
	}
	if _, err := os.Stat(filepath.Join(e.VaultDir, vault.StoreFilename)); err != nil {
		r.issue("encrypted credential store missing: %s", filepath.Join(e.VaultDir, vault.StoreFilename))
	}

	fixes, err := vault.ValidatePermissions(e.VaultDir)
	if err != nil {
		r.issue("permission check failed: %v", err)
	}
	for _, fix := range fixes {
		r.warn("fixed permissions on %s (%o -> %o)", fix.Path, fix.Before, fix.After)
	}

	for _, path := range e.ConfigPaths {
		if _, err := os.Stat(path); err != nil {
			r.warn("config file missing: %s", path)
		}
	}

	v, err := vault.Open(e.VaultDir)
	if err != nil {
		r.issue("resolver validation failed: %v", err)
		return r
	}
	defer v.Close()
	if err := v.Validate(); err != nil {
		r.issue("resolver validation failed: %v", err)
	}
	return r
}
