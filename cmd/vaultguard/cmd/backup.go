package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Create a full backup",
	Long: `Snapshot the vault, known configuration files, the audit trail,
and the vaultguard binary itself into a new timestamped backup
directory under the backup root. The "latest" symlink is repointed only
after every step has succeeded.

Missing optional components (for example an audit directory that does
not exist yet) downgrade to warnings recorded in the manifest.`,
	Args: cobra.NoArgs,
	RunE: runBackup,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List available backups",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Delete backups beyond the retention count",
	Long: `Delete the oldest backups beyond backup.max_backups. The same
pruning runs automatically after each backup; clean applies it on
demand.`,
	Args: cobra.NoArgs,
	RunE: runClean,
}

func init() {
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(cleanCmd)
}

func runBackup(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	v, trail, err := openVault(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer v.Close()

	e := newEngine(cfg, trail)
	if e.Passphrase == "" {
		e.Passphrase = promptBackupPassphrase()
	}

	m, err := e.Backup()
	if err != nil {
		return fmt.Errorf("backup failed: %w", err)
	}

	for _, w := range m.Warnings() {
		Warning("%s", w)
	}
	for _, c := range m.Components {
		fmt.Printf("  %-10s %4d files  %8d bytes\n", c.Name, c.Files, c.SizeBytes)
	}
	Success("Backup %s created (%d bytes, checksum %.12s)", m.ID, m.TotalSizeBytes, m.Checksum)
	return nil
}

// promptBackupPassphrase asks for an archive passphrase with echo
// disabled when running interactively. An empty answer skips the
// encrypted archive, which the manifest records as a warning.
func promptBackupPassphrase() string {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return ""
	}
	fmt.Fprint(os.Stderr, "Backup passphrase (empty to skip encrypted archive): ")
	bytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return ""
	}
	return string(bytes)
}

func runList(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	e := newEngine(cfg, nil)

	manifests, err := e.List()
	if err != nil {
		return fmt.Errorf("failed to list backups: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(manifests)
	}

	if len(manifests) == 0 {
		Info("No backups found in %s", cfg.Backup.Dir)
		return nil
	}

	latest, _ := e.LatestID()
	for _, m := range manifests {
		marker := " "
		if m.ID == latest {
			marker = "*"
		}
		fmt.Printf("%s %s  %2d components  %10d bytes\n", marker, m.ID, len(m.Components), m.TotalSizeBytes)
	}
	return nil
}

func runClean(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	v, trail, err := openVault(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer v.Close()

	e := newEngine(cfg, trail)

	removed, err := e.Prune()
	if err != nil {
		return fmt.Errorf("prune failed: %w", err)
	}

	if len(removed) == 0 {
		Success("Nothing to prune (%d backups retained)", cfg.Backup.MaxBackups)
		return nil
	}
	for _, id := range removed {
		fmt.Printf("  removed %s\n", id)
	}
	Success("Pruned %d backups", len(removed))
	return nil
}
