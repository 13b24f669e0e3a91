package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/soledad-rivas/vaultguard/internal/vault"
)

var rotateDays int

var storeCmd = &cobra.Command{
	Use:   "store <service> <key> [value]",
	Short: "Store a credential",
	Long: `Store a credential in the encrypted vault.

If value is not provided, it will be read from stdin. This is useful
for multi-line secrets or piping values. When --rotate-days is omitted
the rotation period is classified from the key name: names containing
"api" or "key" rotate every 90 days, everything else every 30.

Examples:
  vaultguard store gmail oauth_token "ya29...."
  echo "sk-..." | vaultguard store openai api_key
  vaultguard store github pat --rotate-days 14`,
	Args: cobra.RangeArgs(2, 3),
	RunE: runStore,
}

func init() {
	storeCmd.Flags().IntVar(&rotateDays, "rotate-days", 0, "rotation period in days (0 = classify from key name)")
	rootCmd.AddCommand(storeCmd)
}

func runStore(cmd *cobra.Command, args []string) error {
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

	var value string
	if len(args) == 3 {
		value = args[2]
	} else {
		value, err = readValue()
		if err != nil {
			return err
		}
	}
	if value == "" {
		return fmt.Errorf("value cannot be empty")
	}

	days := rotateDays
	if days == 0 {
		days = vault.ClassifyRotation(key)
	}

	if err := v.Store(cmd.Context(), service, key, value, days); err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}

	Success("Credential %s/%s stored (rotates in %d days)", service, key, days)
	return nil
}

// readValue reads a credential value from stdin: prompting when attached
// to a terminal, consuming everything when piped.
func readValue() (string, error) {
	stat, _ := os.Stdin.Stat()
	if (stat.Mode() & os.ModeCharDevice) != 0 {
		fmt.Print("Enter credential value: ")
		reader := bufio.NewReader(os.Stdin)
		v, err := reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return "", fmt.Errorf("failed to read value: %w", err)
		}
		return strings.TrimSuffix(v, "\n"), nil
	}

	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return strings.TrimSuffix(string(data), "\n"), nil
}
