package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/soledad-rivas/vaultguard/internal/schedule"
)

var (
	scheduleSpec   string
	scheduleDaemon bool
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Register the daily backup job",
	Long: `Register a daily backup with the system crontab. Registration is
idempotent: an existing vaultguard entry is detected and left alone.

With --daemon, run an in-process scheduler instead of touching the
crontab. This suits containers and hosts without cron.

Examples:
  vaultguard schedule
  vaultguard schedule --spec "30 3 * * *"
  vaultguard schedule --daemon`,
	Args: cobra.NoArgs,
	RunE: runSchedule,
}

func init() {
	scheduleCmd.Flags().StringVar(&scheduleSpec, "spec", schedule.DefaultSpec, "cron spec for the backup job")
	scheduleCmd.Flags().BoolVar(&scheduleDaemon, "daemon", false, "run an in-process scheduler instead of registering with cron")
	rootCmd.AddCommand(scheduleCmd)
}

func runSchedule(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if err := schedule.ValidateSpec(scheduleSpec); err != nil {
		return fmt.Errorf("invalid cron spec: %w", err)
	}

	if scheduleDaemon {
		return runScheduleDaemon()
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("cannot resolve own binary path: %w", err)
	}
	command := fmt.Sprintf("%s backup --vault %s --backup-dir %s", exe, cfg.Vault.Dir, cfg.Backup.Dir)

	added, err := schedule.Register(schedule.SystemCrontab{}, scheduleSpec, command)
	if err != nil {
		return fmt.Errorf("failed to register schedule: %w", err)
	}
	if !added {
		Info("Daily backup already scheduled")
		return nil
	}
	Success("Daily backup scheduled (%s)", scheduleSpec)
	return nil
}

func runScheduleDaemon() error {
	d := schedule.NewDaemon()
	err := d.Add(scheduleSpec, func() {
		cfg, err := loadConfig()
		if err != nil {
			Error("scheduled backup: %v", err)
			return
		}
		e := newEngine(cfg, nil)
		if m, err := e.Backup(); err != nil {
			Error("scheduled backup failed: %v", err)
		} else {
			Success("Scheduled backup %s created", m.ID)
		}
	})
	if err != nil {
		return err
	}

	d.Start()
	defer d.Stop()
	Info("Scheduler running (%s); press Ctrl-C to stop", scheduleSpec)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	return nil
}
