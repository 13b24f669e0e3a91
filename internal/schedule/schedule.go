// Package schedule registers the daily backup with the host's periodic
// task scheduler, or runs it from an in-process cron daemon. Crontab
// registration is idempotent: an existing entry for this tool is
// detected and left alone.
package schedule

import (
	"bytes"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/robfig/cron/v3"
)

// Marker tags this tool's crontab entry so re-registration can detect it.
const Marker = "# vaultguard-daily-backup"

// DefaultSpec runs the backup daily at 02:00.
const DefaultSpec = "0 2 * * *"

// Crontab abstracts the host crontab for testing.
type Crontab interface {
	Read() (string, error)
	Write(content string) error
}

// SystemCrontab shells out to crontab(1).
type SystemCrontab struct{}

// Read returns the current user's crontab. An empty crontab is not an
// error: crontab -l exits non-zero with "no crontab" on a fresh user.
func (SystemCrontab) Read() (string, error) {
	out, err := exec.Command("crontab", "-l").CombinedOutput()
	if err != nil {
		if strings.Contains(string(out), "no crontab") {
			return "", nil
		}
		return "", fmt.Errorf("read crontab: %w: %s", err, out)
	}
	return string(out), nil
}

// Write replaces the current user's crontab.
func (SystemCrontab) Write(content string) error {
	cmd := exec.Command("crontab", "-")
	cmd.Stdin = bytes.NewBufferString(content)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("write crontab: %w: %s", err, out)
	}
	return nil
}

// ValidateSpec checks a standard five-field cron expression.
func ValidateSpec(spec string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(spec); err != nil {
		return fmt.Errorf("invalid cron spec %q: %w", spec, err)
	}
	return nil
}

// Register adds a daily backup entry to the crontab. Returns false when
// an entry for this tool already exists and nothing was changed.
func Register(ct Crontab, spec, command string) (bool, error) {
	if err := ValidateSpec(spec); err != nil {
		return false, err
	}

	current, err := ct.Read()
	if err != nil {
		return false, err
	}
	if strings.Contains(current, Marker) {
		return false, nil
	}

	entry := fmt.Sprintf("%s %s %s\n", spec, command, Marker)
	updated := current
	if updated != "" && !strings.HasSuffix(updated, "\n") {
		updated += "\n"
	}
	updated += entry

	if err := ct.Write(updated); err != nil {
		return false, err
	}
	return true, nil
}

// Daemon runs scheduled jobs in-process, for hosts without a crontab.
type Daemon struct {
	cron *cron.Cron
}

// NewDaemon builds an in-process scheduler.
func NewDaemon() *Daemon {
	return &Daemon{cron: cron.New()}
}

// Add schedules a job. The spec uses the standard five-field format.
func (d *Daemon) Add(spec string, job func()) error {
	if err := ValidateSpec(spec); err != nil {
		return err
	}
	if _, err := d.cron.AddFunc(spec, job); err != nil {
		return fmt.Errorf("schedule job: %w", err)
	}
	return nil
}

// Start launches the scheduler goroutine.
func (d *Daemon) Start() {
	d.cron.Start()
	slog.Info("in-process scheduler started")
}

// Stop halts the scheduler and waits for running jobs.
func (d *Daemon) Stop() {
	ctx := d.cron.Stop()
	<-ctx.Done()
	slog.Info("in-process scheduler stopped")
}
