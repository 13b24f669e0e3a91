package vault

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/soledad-rivas/vaultguard/internal/audit"
)

const (
	// DirMode is the required mode for the vault directory.
	DirMode fs.FileMode = 0700

	// FileMode is the required mode for sensitive files in the vault.
	FileMode fs.FileMode = 0600
)

// Remediation records one permission fix applied by ValidatePermissions.
type Remediation struct {
	Path   string
	Before fs.FileMode
	After  fs.FileMode
}

// ValidatePermissions inspects the vault directory and every file inside
// it and corrects any mode drift in place. Drift is a remediation report,
// never a fatal error.
func ValidatePermissions(dir string) ([]Remediation, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotInitialized
		}
		return nil, fmt.Errorf("stat vault directory: %w", err)
	}

	var fixes []Remediation
	if mode := info.Mode().Perm(); mode != DirMode {
		if err := os.Chmod(dir, DirMode); err != nil {
			return fixes, fmt.Errorf("chmod vault directory: %w", err)
		}
		fixes = append(fixes, Remediation{Path: dir, Before: mode, After: DirMode})
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fixes, fmt.Errorf("read vault directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			return fixes, fmt.Errorf("stat %s: %w", path, err)
		}
		if mode := info.Mode().Perm(); mode != FileMode {
			if err := os.Chmod(path, FileMode); err != nil {
				return fixes, fmt.Errorf("chmod %s: %w", path, err)
			}
			fixes = append(fixes, Remediation{Path: path, Before: mode, After: FileMode})
		}
	}
	return fixes, nil
}

// ValidatePermissions fixes drift on this vault's directory and records
// an audit event when anything needed repair.
func (v *Vault) ValidatePermissions() ([]Remediation, error) {
	fixes, err := ValidatePermissions(v.dir)
	if err != nil {
		return fixes, err
	}
	if len(fixes) > 0 {
		paths := make([]string, len(fixes))
		for i, f := range fixes {
			paths[i] = f.Path
		}
		v.auditEvent(audit.ActionPermissionsFixed, map[string]any{"paths": paths})
	}
	return fixes, nil
}
