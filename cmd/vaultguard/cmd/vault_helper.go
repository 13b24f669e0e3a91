package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/soledad-rivas/vaultguard/internal/audit"
	"github.com/soledad-rivas/vaultguard/internal/backup"
	"github.com/soledad-rivas/vaultguard/internal/config"
	"github.com/soledad-rivas/vaultguard/internal/monitor"
	"github.com/soledad-rivas/vaultguard/internal/remote"
	"github.com/soledad-rivas/vaultguard/internal/vault"
)

// openVault opens the configured vault and wires in the audit trail and,
// when enabled, the remote mirror. The caller must Close the vault. The
// trail is returned alongside so other subsystems share the same chain.
func openVault(ctx context.Context, cfg *config.Config) (*vault.Vault, *audit.Trail, error) {
	v, err := vault.Open(cfg.Vault.Dir)
	if errors.Is(err, vault.ErrNotInitialized) {
		return nil, nil, fmt.Errorf("vault not found at %s, run 'vaultguard init' first", cfg.Vault.Dir)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open vault at %s: %w", cfg.Vault.Dir, err)
	}

	trail, err := audit.Open(cfg.Audit.Dir, v.Key(), cfg.Audit.MaxBytes)
	if err != nil {
		v.Close()
		return nil, nil, fmt.Errorf("open audit trail: %w", err)
	}
	v.SetTrail(trail)

	if cfg.Remote.Enabled {
		backend, err := remote.New(ctx, cfg.Remote.Region, remote.WithPrefix(cfg.Remote.Prefix))
		if err != nil {
			// Degraded mode: the local vault stays fully usable.
			slog.Warn("remote secrets backend unavailable", "error", err)
		} else {
			v.SetMirror(backend)
		}
	}

	return v, trail, nil
}

// newEngine builds the backup engine, attaching the open vault's audit
// trail so backup lifecycle events land in the same chain.
func newEngine(cfg *config.Config, trail *audit.Trail) *backup.Engine {
	e := backup.New(cfg.Vault.Dir, cfg.Backup.Dir, cfg.Audit.Dir)
	e.ConfigPaths = cfg.Backup.ConfigPaths
	e.MaxBackups = cfg.Backup.MaxBackups
	e.Passphrase = cfg.Backup.Passphrase
	e.Confirm = PromptConfirm
	e.Trail = trail
	return e
}

// newMonitor assembles the security monitor and its bbolt-backed state.
// The returned close function releases the state database.
func newMonitor(ctx context.Context, cfg *config.Config) (*monitor.Monitor, func(), error) {
	v, trail, err := openVault(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	state, err := monitor.OpenState(cfg.Monitor.StateDB)
	if err != nil {
		v.Close()
		return nil, nil, fmt.Errorf("open monitor state: %w", err)
	}

	alertLog := filepath.Join(filepath.Dir(cfg.Monitor.StateDB), "alerts.log")
	m := monitor.New(cfg.Monitor, v, trail, state, alertLog)

	cleanup := func() {
		state.Close()
		v.Close()
	}
	return m, cleanup, nil
}
