package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get <service> <key>",
	Short: "Get a credential value",
	Long: `Resolve a credential and print its plaintext value to stdout.

When a remote secrets backend is enabled the remote copy is tried
first, falling back to the local vault on miss or backend error.
Messages go to stderr, making this command pipe-friendly.

Examples:
  vaultguard get gmail oauth_token
  vaultguard get openai api_key --json
  TOKEN=$(vaultguard get github pat)`,
	Aliases: []string{"g"},
	Args:    cobra.ExactArgs(2),
	RunE:    runGet,
}

func init() {
	rootCmd.AddCommand(getCmd)
}

func runGet(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	v, _, err := openVault(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer v.Close()

	service, key := args[0], args[1]

	value, err := v.Get(cmd.Context(), service, key)
	if err != nil {
		return fmt.Errorf("failed to get credential: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]string{
			"service": service,
			"key":     key,
			"value":   value,
		})
	}

	fmt.Print(value)
	return nil
}
