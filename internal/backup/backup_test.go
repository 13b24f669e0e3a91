package backup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/soledad-rivas/vaultguard/internal/audit"
	"github.com/soledad-rivas/vaultguard/internal/vault"
)

// testEnv wires a vault with one credential, an audit dir, a config
// file, and an engine over them.
type testEnv struct {
	engine *Engine
	vault  *vault.Vault
	clock  *fakeClock
}

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

// advance moves the clock so consecutive backups get distinct IDs.
func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()

	v, err := vault.Init(filepath.Join(root, "vault"))
	if err != nil {
		t.Fatalf("Init vault: %v", err)
	}
	t.Cleanup(v.Close)
	if err := v.Store(context.Background(), "gmail", "oauth_token", "abc123", 90); err != nil {
		t.Fatalf("Store: %v", err)
	}

	auditDir := filepath.Join(root, "audit")
	if err := os.MkdirAll(auditDir, 0700); err != nil {
		t.Fatalf("mkdir audit: %v", err)
	}
	if err := os.WriteFile(filepath.Join(auditDir, "audit.log"), []byte("{}\n"), 0600); err != nil {
		t.Fatalf("seed audit log: %v", err)
	}

	cfgPath := filepath.Join(root, "app-security.yaml")
	if err := os.WriteFile(cfgPath, []byte("checks: true\n"), 0600); err != nil {
		t.Fatalf("seed config: %v", err)
	}

	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	e := New(v.Dir(), filepath.Join(root, "backups"), auditDir)
	e.ConfigPaths = []string{cfgPath}
	e.Passphrase = "drill-passphrase"
	e.MaxBackups = 3
	e.Now = clock.Now
	e.Confirm = func(string) bool { return true }

	return &testEnv{engine: e, vault: v, clock: clock}
}

func TestBackup_ProducesAllComponents(t *testing.T) {
	env := newTestEnv(t)

	m, err := env.engine.Backup()
	if err != nil {
		t.Fatalf("Backup: %v", err)
	}

	dir := filepath.Join(env.engine.BackupDir, m.ID)
	for _, name := range []string{vaultArchive, vaultArchiveEnc, auditArchive, manifestFilename} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("backup missing %s: %v", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, configsDirName, "app-security.yaml")); err != nil {
		t.Errorf("backup missing config copy: %v", err)
	}

	if m.Checksum == "" {
		t.Error("manifest has no checksum")
	}
	if m.TotalSizeBytes == 0 {
		t.Error("manifest reports zero size")
	}
	if err := env.engine.VerifyChecksum(m.ID); err != nil {
		t.Errorf("VerifyChecksum: %v", err)
	}

	// Latest symlink points at the new backup.
	id, err := env.engine.LatestID()
	if err != nil {
		t.Fatalf("LatestID: %v", err)
	}
	if id != m.ID {
		t.Errorf("latest = %s, want %s", id, m.ID)
	}
}

func TestBackup_MissingAuditDirIsWarning(t *testing.T) {
	env := newTestEnv(t)
	os.RemoveAll(env.engine.AuditDir)

	m, err := env.engine.Backup()
	if err != nil {
		t.Fatalf("Backup without audit dir: %v", err)
	}
	warnings := m.Warnings()
	if len(warnings) == 0 {
		t.Error("expected a warning for the missing audit directory")
	}
}

func TestBackup_NoPassphraseIsWarning(t *testing.T) {
	env := newTestEnv(t)
	env.engine.Passphrase = ""

	m, err := env.engine.Backup()
	if err != nil {
		t.Fatalf("Backup without passphrase: %v", err)
	}
	if _, err := os.Stat(filepath.Join(env.engine.BackupDir, m.ID, vaultArchiveEnc)); !os.IsNotExist(err) {
		t.Error("encrypted archive produced without a passphrase")
	}
	if len(m.Warnings()) == 0 {
		t.Error("expected a warning for the skipped encrypted archive")
	}
}

func TestRetentionBound(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < 6; i++ {
		if _, err := env.engine.Backup(); err != nil {
			t.Fatalf("Backup %d: %v", i, err)
		}
		env.clock.advance(time.Minute)
	}

	ids, err := env.engine.backupIDs()
	if err != nil {
		t.Fatalf("backupIDs: %v", err)
	}
	if len(ids) > env.engine.MaxBackups {
		t.Errorf("retained %d backups, want at most %d", len(ids), env.engine.MaxBackups)
	}

	// The latest pointer survives pruning and stays valid.
	if _, err := env.engine.LatestID(); err != nil {
		t.Errorf("LatestID after pruning: %v", err)
	}
}

func TestRestore_NotFound(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.engine.Restore("19990101-000000"); !errors.Is(err, ErrBackupNotFound) {
		t.Fatalf("Restore error = %v, want ErrBackupNotFound", err)
	}
}

func TestRestore_Declined(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.engine.Backup(); err != nil {
		t.Fatalf("Backup: %v", err)
	}
	env.engine.Confirm = func(string) bool { return false }

	if _, err := env.engine.Restore("latest"); !errors.Is(err, ErrAborted) {
		t.Fatalf("Restore error = %v, want ErrAborted", err)
	}
}

func TestRestore_ThenVerifyPasses(t *testing.T) {
	env := newTestEnv(t)

	m, err := env.engine.Backup()
	if err != nil {
		t.Fatalf("Backup: %v", err)
	}
	env.clock.advance(time.Minute)

	report, err := env.engine.Restore(m.ID)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if !report.Pass() {
		t.Fatalf("verification after restore failed: %v", report.Issues)
	}

	// The restored vault still resolves the credential.
	v, err := vault.Open(env.engine.VaultDir)
	if err != nil {
		t.Fatalf("Open restored vault: %v", err)
	}
	defer v.Close()
	got, err := v.Get(context.Background(), "gmail", "oauth_token")
	if err != nil {
		t.Fatalf("Get from restored vault: %v", err)
	}
	if got != "abc123" {
		t.Errorf("restored credential = %q, want %q", got, "abc123")
	}
}

func TestRestore_PreservesPreviousLiveState(t *testing.T) {
	env := newTestEnv(t)

	m, err := env.engine.Backup()
	if err != nil {
		t.Fatalf("Backup: %v", err)
	}
	env.clock.advance(time.Minute)

	if _, err := env.engine.Restore(m.ID); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	aside, err := filepath.Glob(env.engine.VaultDir + ".pre-restore-*")
	if err != nil || len(aside) != 1 {
		t.Fatalf("expected 1 pre-restore sibling, got %v (err %v)", aside, err)
	}
	if _, err := os.Stat(filepath.Join(aside[0], vault.StoreFilename)); err != nil {
		t.Errorf("pre-restore sibling lost the store file: %v", err)
	}
}

func TestVerifyInstallation_CorruptedStoreFails(t *testing.T) {
	env := newTestEnv(t)

	if !env.engine.VerifyInstallation().Pass() {
		t.Fatal("verification failed on a healthy installation")
	}

	storePath := filepath.Join(env.engine.VaultDir, vault.StoreFilename)
	if err := os.WriteFile(storePath, []byte("garbage"), 0600); err != nil {
		t.Fatalf("corrupt store: %v", err)
	}
	if env.engine.VerifyInstallation().Pass() {
		t.Fatal("verification passed on a corrupted store")
	}
}

func TestVerifyInstallation_PermissionDriftIsWarning(t *testing.T) {
	env := newTestEnv(t)

	if err := os.Chmod(env.engine.VaultDir, 0755); err != nil {
		t.Fatalf("chmod: %v", err)
	}

	report := env.engine.VerifyInstallation()
	if !report.Pass() {
		t.Fatalf("permission drift treated as fatal: %v", report.Issues)
	}
	if len(report.Warnings) == 0 {
		t.Error("expected a warning for the fixed permissions")
	}

	info, _ := os.Stat(env.engine.VaultDir)
	if mode := info.Mode().Perm(); mode != 0700 {
		t.Errorf("vault dir mode = %o, want 0700", mode)
	}
}

func TestDRTest(t *testing.T) {
	env := newTestEnv(t)

	result, err := env.engine.DRTest()
	if err != nil {
		t.Fatalf("DRTest: %v", err)
	}
	if !result.DetectionOK {
		t.Error("drill did not detect the induced corruption")
	}
	if !result.RecoveryOK {
		t.Error("drill did not verify the recovery")
	}
	if !result.Passed() {
		t.Error("drill did not pass")
	}

	// Repeatable without manual setup.
	env.clock.advance(time.Minute)
	if result, err = env.engine.DRTest(); err != nil || !result.Passed() {
		t.Fatalf("second DRTest = (%+v, %v), want pass", result, err)
	}
}

func TestDRTest_AuditChainSurvives(t *testing.T) {
	env := newTestEnv(t)

	// Start from a real chained trail instead of the seeded placeholder
	// log, wired the way the CLI wires it.
	if err := os.Remove(filepath.Join(env.engine.AuditDir, "audit.log")); err != nil {
		t.Fatalf("remove seeded log: %v", err)
	}
	trail, err := audit.Open(env.engine.AuditDir, env.vault.Key(), 1<<20)
	if err != nil {
		t.Fatalf("Open trail: %v", err)
	}
	env.vault.SetTrail(trail)
	env.engine.Trail = trail

	if err := env.vault.Store(context.Background(), "gmail", "oauth_token", "rotated", 90); err != nil {
		t.Fatalf("Store: %v", err)
	}

	result, err := env.engine.DRTest()
	if err != nil {
		t.Fatalf("DRTest: %v", err)
	}
	if !result.Passed() {
		t.Fatalf("drill did not pass: %+v", result)
	}

	// The drill restored an older log and then appended its own events;
	// a fresh open must still verify the whole chain.
	reopened, err := audit.Open(env.engine.AuditDir, env.vault.Key(), 1<<20)
	if err != nil {
		t.Fatalf("reopen trail: %v", err)
	}
	if n, verr := reopened.Verify(); verr != nil {
		t.Fatalf("Verify after drill = (%d, %v), want intact chain", n, verr)
	}
}

func TestList(t *testing.T) {
	env := newTestEnv(t)

	want := 2
	for i := 0; i < want; i++ {
		if _, err := env.engine.Backup(); err != nil {
			t.Fatalf("Backup: %v", err)
		}
		env.clock.advance(time.Minute)
	}

	manifests, err := env.engine.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(manifests) != want {
		t.Fatalf("List = %d backups, want %d", len(manifests), want)
	}
	for _, m := range manifests {
		if m.ID == "" || m.Checksum == "" {
			t.Errorf("manifest incomplete: %+v", m)
		}
	}
}
