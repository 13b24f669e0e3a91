package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate <legacy-file> <service>",
	Short: "Migrate a legacy KEY=value file into the vault",
	Long: `Import a flat KEY=value text file into the vault under one service.

Blank lines and comment lines are skipped. A malformed line becomes a
warning and does not abort the rest of the file. On success the original
file is renamed aside with a .backup suffix, so plaintext credentials
never linger at the original path.

Examples:
  vaultguard migrate ~/.gmail-tokens gmail
  vaultguard migrate ./secrets.env automation`,
	Args: cobra.ExactArgs(2),
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	v, _, err := openVault(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer v.Close()

	path, service := args[0], args[1]

	result, err := v.MigrateLegacyFile(cmd.Context(), path, service)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	for _, w := range result.Warnings {
		Warning("%s", w)
	}
	for _, key := range result.Migrated {
		fmt.Printf("  %s/%s\n", service, key)
	}

	Success("Migrated %d credentials from %s", len(result.Migrated), path)
	if result.Renamed != "" {
		Info("Original file renamed to %s", result.Renamed)
	}
	return nil
}
