package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var checkRotationCmd = &cobra.Command{
	Use:   "check-rotation",
	Short: "List credentials whose rotation deadline has passed",
	Long: `List every credential whose rotation deadline has passed,
annotated with how many days it is overdue. Nothing is mutated.

Examples:
  vaultguard check-rotation
  vaultguard check-rotation --json`,
	Args: cobra.NoArgs,
	RunE: runCheckRotation,
}

func init() {
	rootCmd.AddCommand(checkRotationCmd)
}

func runCheckRotation(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	v, _, err := openVault(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer v.Close()

	due, err := v.RotationDue()
	if err != nil {
		return fmt.Errorf("rotation check failed: %w", err)
	}

	if jsonOutput {
		type overdue struct {
			Service     string `json:"service"`
			Key         string `json:"key"`
			DaysOverdue int    `json:"days_overdue"`
		}
		out := make([]overdue, 0, len(due))
		for _, d := range due {
			out = append(out, overdue{Service: d.Service, Key: d.Key, DaysOverdue: d.DaysOverdue})
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	if len(due) == 0 {
		Success("All credentials are within their rotation period")
		return nil
	}

	Warning("%d credentials are due for rotation:", len(due))
	for _, d := range due {
		fmt.Printf("  %s/%s  %s\n", d.Service, d.Key, Dim("%d days overdue", d.DaysOverdue))
	}
	return nil
}
