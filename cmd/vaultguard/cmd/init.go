package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/soledad-rivas/vaultguard/internal/vault"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the vault",
	Long: `Initialize the vault directory.

Creates the vault directory with owner-only permissions and generates
the master encryption key. Running init on an existing vault is a no-op.

Examples:
  vaultguard init
  vaultguard init --vault /secure/vault`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	v, err := vault.Init(cfg.Vault.Dir)
	if err != nil {
		return fmt.Errorf("failed to initialize vault: %w", err)
	}
	defer v.Close()

	Success("Vault initialized at %s", v.Dir())
	Info("Store a credential with 'vaultguard store <service> <key>'")
	return nil
}
