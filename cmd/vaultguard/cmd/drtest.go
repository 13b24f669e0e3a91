package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var drTestCmd = &cobra.Command{
	Use:   "dr-test",
	Short: "Run the disaster-recovery drill",
	Long: `Run the self-contained disaster-recovery drill: back up the
current state, deliberately corrupt the live vault, assert that
verification detects the damage, restore from the backup just taken,
and assert that verification passes again.

The drill needs no manual setup and is safe to run repeatedly. It is a
regression test of the whole backup/restore pipeline.`,
	Args: cobra.NoArgs,
	RunE: runDRTest,
}

func init() {
	rootCmd.AddCommand(drTestCmd)
}

func runDRTest(cmd *cobra.Command, _ []string) error {
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

	result, err := e.DRTest()
	if err != nil {
		return fmt.Errorf("drill failed to run: %w", err)
	}

	status := func(ok bool) string {
		if ok {
			return successColor.Sprint("PASS")
		}
		return errorColor.Sprint("FAIL")
	}
	PrintKeyValue("Backup", result.BackupID)
	PrintKeyValue("Detection", status(result.DetectionOK))
	PrintKeyValue("Recovery", status(result.RecoveryOK))

	if !result.Passed() {
		return fmt.Errorf("disaster-recovery drill failed")
	}
	Success("Disaster-recovery drill passed")
	return nil
}
