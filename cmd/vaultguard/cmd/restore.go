package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/soledad-rivas/vaultguard/internal/backup"
)

var restoreYes bool

var restoreCmd = &cobra.Command{
	Use:   "restore [backup-id|latest]",
	Short: "Restore from a backup",
	Long: `Restore the vault, configuration, and audit state from a backup.

This is destructive to the current live state, so it asks for
confirmation first. The previous live state is renamed aside with a
date suffix and remains recoverable as a sibling directory. After
restoring, the installation is verified.

Examples:
  vaultguard restore latest
  vaultguard restore 20260815-020000 --yes`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRestore,
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the installation",
	Long: `Run the installation checklist: vault directory and encrypted
store present, permissions correct (drift is fixed and counted as a
warning), known configuration files present, and the credential
resolver completing a no-op validation.`,
	Args: cobra.NoArgs,
	RunE: runVerify,
}

func init() {
	restoreCmd.Flags().BoolVarP(&restoreYes, "yes", "y", false, "skip the confirmation prompt")
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(verifyCmd)
}

func runRestore(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	e := newEngine(cfg, nil)
	if restoreYes {
		e.Confirm = func(string) bool { return true }
	}

	id := "latest"
	if len(args) == 1 {
		id = args[0]
	}

	report, err := e.Restore(id)
	if errors.Is(err, backup.ErrBackupNotFound) {
		Error("Backup %q not found. Available backups:", id)
		if manifests, lerr := e.List(); lerr == nil {
			for _, m := range manifests {
				fmt.Printf("  %s\n", m.ID)
			}
		}
		return err
	}
	if errors.Is(err, backup.ErrAborted) {
		Warning("Restore aborted")
		return err
	}
	if err != nil {
		return fmt.Errorf("restore failed: %w", err)
	}

	printReport(report)
	if !report.Pass() {
		return fmt.Errorf("post-restore verification failed with %d issues", len(report.Issues))
	}
	Success("Restore from %s complete", id)
	return nil
}

func runVerify(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	e := newEngine(cfg, nil)

	report := e.VerifyInstallation()
	printReport(report)
	if !report.Pass() {
		return fmt.Errorf("verification failed with %d issues", len(report.Issues))
	}
	Success("Installation verified")
	return nil
}

func printReport(r *backup.Report) {
	for _, w := range r.Warnings {
		Warning("%s", w)
	}
	for _, issue := range r.Issues {
		Error("%s", issue)
	}
}
