package cmd

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/soledad-rivas/vaultguard/internal/config"
	"github.com/soledad-rivas/vaultguard/internal/vault"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	return &config.Config{
		Vault: config.VaultConfig{Dir: filepath.Join(root, "vault")},
		Audit: config.AuditConfig{Dir: filepath.Join(root, "audit"), MaxBytes: 1 << 20},
	}
}

func TestOpenVault_NotInitialized(t *testing.T) {
	cfg := testConfig(t)

	_, _, err := openVault(context.Background(), cfg)
	if err == nil {
		t.Fatal("expected error for missing vault")
	}
	if !strings.Contains(err.Error(), "vaultguard init") {
		t.Errorf("error = %q, want a pointer to 'vaultguard init'", err)
	}
}

func TestOpenVault_CorruptKeyFileIsNotMissingVault(t *testing.T) {
	cfg := testConfig(t)
	if err := os.MkdirAll(cfg.Vault.Dir, 0700); err != nil {
		t.Fatalf("mkdir vault: %v", err)
	}
	keyPath := filepath.Join(cfg.Vault.Dir, vault.KeyFilename)
	if err := os.WriteFile(keyPath, []byte("short"), 0600); err != nil {
		t.Fatalf("write key file: %v", err)
	}

	_, _, err := openVault(context.Background(), cfg)
	if !errors.Is(err, vault.ErrCorruptedStore) {
		t.Fatalf("error = %v, want ErrCorruptedStore", err)
	}
	if strings.Contains(err.Error(), "vaultguard init") {
		t.Errorf("corrupted key misreported as uninitialized vault: %q", err)
	}
}
