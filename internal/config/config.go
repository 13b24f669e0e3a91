// Package config provides application configuration management.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Vault   VaultConfig
	Backup  BackupConfig
	Remote  RemoteConfig
	Monitor MonitorConfig
	Audit   AuditConfig
	Log     LogConfig
}

// VaultConfig holds the on-disk vault location.
type VaultConfig struct {
	Dir string
}

// BackupConfig holds backup engine settings.
type BackupConfig struct {
	Dir         string
	MaxBackups  int
	Passphrase  string
	ConfigPaths []string
}

// RemoteConfig holds remote secrets backend settings.
type RemoteConfig struct {
	Enabled bool
	Region  string
	Prefix  string
}

// MonitorConfig holds security monitor settings.
type MonitorConfig struct {
	Interval   time.Duration
	Listen     string
	StateDB    string
	Apps       []string
	Thresholds Thresholds
}

// Thresholds holds the alert classification cutoffs: the number of
// critical audit events in the trailing hour that escalates a finding.
type Thresholds struct {
	Critical int
	High     int
	Medium   int
}

// AuditConfig holds audit trail settings.
type AuditConfig struct {
	Dir      string
	MaxBytes int64
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string
}

// Load reads configuration from viper (flags, env, optional config file).
func Load(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	v.SetEnvPrefix("VAULTGUARD")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfg := &Config{
		Vault: VaultConfig{
			Dir: v.GetString("vault.dir"),
		},
		Backup: BackupConfig{
			Dir:         v.GetString("backup.dir"),
			MaxBackups:  v.GetInt("backup.max_backups"),
			Passphrase:  v.GetString("backup.passphrase"),
			ConfigPaths: v.GetStringSlice("backup.config_paths"),
		},
		Remote: RemoteConfig{
			Enabled: v.GetBool("remote.enabled"),
			Region:  v.GetString("remote.region"),
			Prefix:  v.GetString("remote.prefix"),
		},
		Monitor: MonitorConfig{
			Interval: v.GetDuration("monitor.interval"),
			Listen:   v.GetString("monitor.listen"),
			StateDB:  v.GetString("monitor.state_db"),
			Apps:     v.GetStringSlice("monitor.apps"),
			Thresholds: Thresholds{
				Critical: v.GetInt("monitor.thresholds.critical"),
				High:     v.GetInt("monitor.thresholds.high"),
				Medium:   v.GetInt("monitor.thresholds.medium"),
			},
		},
		Audit: AuditConfig{
			Dir:      v.GetString("audit.dir"),
			MaxBytes: v.GetInt64("audit.max_bytes"),
		},
		Log: LogConfig{
			Level: v.GetString("log.level"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults configures default values. Paths default to subdirectories
// of ~/.vaultguard.
func setDefaults(v *viper.Viper) {
	root := defaultRoot()

	v.SetDefault("vault.dir", filepath.Join(root, "vault"))
	v.SetDefault("backup.dir", filepath.Join(root, "backups"))
	v.SetDefault("backup.max_backups", 10)
	v.SetDefault("backup.passphrase", "")
	v.SetDefault("backup.config_paths", []string{})

	v.SetDefault("remote.enabled", false)
	v.SetDefault("remote.region", "us-east-1")
	v.SetDefault("remote.prefix", "vaultguard")

	v.SetDefault("monitor.interval", 5*time.Minute)
	v.SetDefault("monitor.listen", "")
	v.SetDefault("monitor.state_db", filepath.Join(root, "monitor.db"))
	v.SetDefault("monitor.apps", []string{})
	v.SetDefault("monitor.thresholds.critical", 5)
	v.SetDefault("monitor.thresholds.high", 3)
	v.SetDefault("monitor.thresholds.medium", 1)

	v.SetDefault("audit.dir", filepath.Join(root, "audit"))
	v.SetDefault("audit.max_bytes", int64(10*1024*1024))

	v.SetDefault("log.level", "info")
}

func defaultRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".vaultguard"
	}
	return filepath.Join(home, ".vaultguard")
}

// Validate checks that all required configuration is present.
func (c *Config) Validate() error {
	if c.Vault.Dir == "" {
		return fmt.Errorf("vault directory is required")
	}
	if c.Backup.Dir == "" {
		return fmt.Errorf("backup directory is required")
	}
	if c.Backup.MaxBackups < 1 {
		return fmt.Errorf("backup.max_backups must be at least 1")
	}
	if c.Monitor.Interval <= 0 {
		return fmt.Errorf("monitor.interval must be positive")
	}
	return nil
}
