// Package cmd provides the CLI commands for vaultguard.
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/soledad-rivas/vaultguard/internal/config"
	"github.com/soledad-rivas/vaultguard/internal/logging"
)

var (
	cfgFile    string
	vaultDir   string
	backupDir  string
	jsonOutput bool
	verbose    bool
)

// rootCmd represents the base command.
var rootCmd = &cobra.Command{
	Use:   "vaultguard",
	Short: "Encrypted credential vault with backup and disaster recovery",
	Long: `vaultguard protects the API keys and tokens used by personal
automation jobs: an encrypted local vault with rotation tracking, an
optional remote secrets-backend mirror, an append-only audit trail, a
backup/restore pipeline with a self-testing disaster-recovery drill,
and a polling security monitor.

Get started:
  vaultguard init                         Initialize the vault
  vaultguard store gmail oauth_token ...  Store a credential
  vaultguard get gmail oauth_token        Resolve a credential
  vaultguard backup                       Snapshot vault + config + audit state
  vaultguard dr-test                      Run the disaster-recovery drill`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.vaultguard/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&vaultDir, "vault", "", "vault directory (default ~/.vaultguard/vault)")
	rootCmd.PersistentFlags().StringVar(&backupDir, "backup-dir", "", "backup root directory (default ~/.vaultguard/backups)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		viper.AddConfigPath(filepath.Join(home, ".vaultguard"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// Load config file if it exists.
	_ = viper.ReadInConfig()

	if vaultDir != "" {
		viper.Set("vault.dir", vaultDir)
	}
	if backupDir != "" {
		viper.Set("backup.dir", backupDir)
	}
	if verbose {
		viper.Set("log.level", "debug")
	}
}

// loadConfig resolves the effective configuration and installs the
// logger at the configured level.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logging.Setup(cfg.Log.Level)
	return cfg, nil
}
