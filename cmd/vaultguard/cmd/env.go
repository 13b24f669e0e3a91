package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
)

var envFormat string

var exportEnvCmd = &cobra.Command{
	Use:   "export-env",
	Short: "Export all credentials as environment variables",
	Long: `Flatten the vault into SERVICE_KEY=value environment pairs.

Output goes to stdout; nothing is written to disk. Formats:
  shell   export statements, suitable for eval
  dotenv  plain KEY=value lines
  json    a single JSON object

Examples:
  eval "$(vaultguard export-env)"
  vaultguard export-env --format dotenv > /dev/null`,
	Args: cobra.NoArgs,
	RunE: runExportEnv,
}

func init() {
	exportEnvCmd.Flags().StringVar(&envFormat, "format", "shell", "output format: shell, dotenv, or json")
	rootCmd.AddCommand(exportEnvCmd)
}

func runExportEnv(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	v, _, err := openVault(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer v.Close()

	env, err := v.ExportEnv()
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}

	names := make([]string, 0, len(env))
	for name := range env {
		names = append(names, name)
	}
	sort.Strings(names)

	switch envFormat {
	case "shell":
		for _, name := range names {
			fmt.Printf("export %s=%q\n", name, env[name])
		}
	case "dotenv":
		for _, name := range names {
			fmt.Printf("%s=%s\n", name, env[name])
		}
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(env)
	default:
		return fmt.Errorf("unknown format %q (want shell, dotenv, or json)", envFormat)
	}
	return nil
}
