package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var validatePermissionsCmd = &cobra.Command{
	Use:   "validate-permissions",
	Short: "Check and repair vault file permissions",
	Long: `Inspect the vault directory and every file inside it.

The directory must be owner-only (mode 700) and files owner-only
(mode 600). Any deviation is corrected in place and reported as a
remediation rather than treated as fatal.`,
	Args: cobra.NoArgs,
	RunE: runValidatePermissions,
}

func init() {
	rootCmd.AddCommand(validatePermissionsCmd)
}

func runValidatePermissions(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	v, _, err := openVault(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer v.Close()

	fixes, err := v.ValidatePermissions()
	if err != nil {
		return fmt.Errorf("permission check failed: %w", err)
	}

	if len(fixes) == 0 {
		Success("Vault permissions are correct")
		return nil
	}

	for _, fix := range fixes {
		Warning("Fixed %s: %04o -> %04o", fix.Path, fix.Before, fix.After)
	}
	Success("Repaired %d permission deviations", len(fixes))
	return nil
}
