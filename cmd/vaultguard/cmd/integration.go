package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/soledad-rivas/vaultguard/internal/integrations"
)

var integrationOutput string

var buildIntegrationCmd = &cobra.Command{
	Use:   "build-integration-config <name,...>",
	Short: "Emit an integration config with credentials resolved from the vault",
	Long: `Build the runner configuration for one or more well-known
integrations, resolving each required credential from the vault and
injecting it as an environment variable.

Supported integrations: ` + strings.Join(integrations.Names(), ", ") + `.

Examples:
  vaultguard build-integration-config gmail
  vaultguard build-integration-config gmail,github -o runner.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runBuildIntegration,
}

func init() {
	buildIntegrationCmd.Flags().StringVarP(&integrationOutput, "output", "o", "", "write config to file instead of stdout")
	rootCmd.AddCommand(buildIntegrationCmd)
}

func runBuildIntegration(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	v, _, err := openVault(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer v.Close()

	names := strings.Split(args[0], ",")
	for i, n := range names {
		names[i] = strings.TrimSpace(n)
	}

	doc, err := integrations.Build(cmd.Context(), v, names)
	if err != nil {
		return fmt.Errorf("failed to build integration config: %w", err)
	}

	data, err := doc.Marshal()
	if err != nil {
		return err
	}

	if integrationOutput == "" {
		fmt.Print(string(data))
		return nil
	}

	// The emitted file carries plaintext credentials.
	if err := os.WriteFile(integrationOutput, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	Success("Integration config written to %s", integrationOutput)
	return nil
}
