package vault

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/soledad-rivas/vaultguard/internal/audit"
)

// MigrationResult reports a legacy env-file migration.
type MigrationResult struct {
	Migrated []string
	Warnings []string
	Renamed  string
}

// MigrateLegacyFile imports a flat KEY=value file into the vault under
// one service. Blank lines and comment lines are skipped; a malformed
// line becomes a warning and never aborts the rest of the file. On
// success the original file is renamed aside with a .backup suffix.
func (v *Vault) MigrateLegacyFile(ctx context.Context, path, service string) (*MigrationResult, error) {
	if service == "" {
		return nil, ErrServiceRequired
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open legacy file: %w", err)
	}
	defer f.Close()

	result := &MigrationResult{}
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("line %d: not a KEY=value pair, skipped", lineNo))
			continue
		}
		value = strings.TrimSpace(value)
		value = strings.Trim(value, `"'`)

		if err := v.Store(ctx, service, key, value, ClassifyRotation(key)); err != nil {
			return nil, fmt.Errorf("store %s: %w", key, err)
		}
		result.Migrated = append(result.Migrated, key)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read legacy file: %w", err)
	}

	result.Renamed = path + ".backup"
	if err := os.Rename(path, result.Renamed); err != nil {
		return nil, fmt.Errorf("rename legacy file: %w", err)
	}

	v.auditEvent(audit.ActionEnvFileMigrated, map[string]any{
		"file":    path,
		"service": service,
		"keys":    result.Migrated,
	})
	return result, nil
}
