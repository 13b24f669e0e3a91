package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/soledad-rivas/vaultguard/internal/monitor"
)

var monitorListen string

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Run the security monitor loop",
	Long: `Poll the vault, audit trail, and per-application budgets on an
interval. Findings are classified by severity, appended to the alert
log, and counted. With --listen, Prometheus metrics and a health check
are served alongside.

Examples:
  vaultguard monitor
  vaultguard monitor --listen :9203`,
	Args: cobra.NoArgs,
	RunE: runMonitor,
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run a single monitoring pass",
	Args:  cobra.NoArgs,
	RunE:  runCheck,
}

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show accumulated alert counters",
	Args:  cobra.NoArgs,
	RunE:  runSummary,
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear accumulated alert counters",
	Args:  cobra.NoArgs,
	RunE:  runReset,
}

func init() {
	monitorCmd.Flags().StringVar(&monitorListen, "listen", "", "serve /metrics and /healthz on this address")
	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(summaryCmd)
	rootCmd.AddCommand(resetCmd)
}

func runMonitor(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if monitorListen != "" {
		cfg.Monitor.Listen = monitorListen
	}

	m, cleanup, err := newMonitor(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := m.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func runCheck(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	m, cleanup, err := newMonitor(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	summary, err := m.Check(cmd.Context())
	if err != nil {
		return fmt.Errorf("monitoring pass failed: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}

	printSummary(summary)
	return nil
}

func printSummary(s *monitor.Summary) {
	PrintKeyValue("Audit events verified", fmt.Sprintf("%d", s.AuditEvents))
	PrintKeyValue("Rotation backlog", fmt.Sprintf("%d", s.RotationBacklog))
	PrintKeyValue("Permission fixes", fmt.Sprintf("%d", s.PermissionFixes))

	if len(s.Findings) == 0 {
		Success("No findings")
		return
	}
	Warning("%d findings:", len(s.Findings))
	for _, f := range s.Findings {
		target := f.Check
		if f.App != "" {
			target = f.App + "/" + f.Check
		}
		fmt.Printf("  [%s] %s: %s\n", f.Severity, target, f.Message)
	}
}

func runSummary(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	m, cleanup, err := newMonitor(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	counters, lastCheck, err := m.CounterSummary()
	if err != nil {
		return fmt.Errorf("failed to read counters: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"counters":   counters,
			"last_check": lastCheck,
		})
	}

	if !lastCheck.IsZero() {
		PrintKeyValue("Last check", lastCheck.Format("2006-01-02 15:04:05 MST"))
	}
	if len(counters) == 0 {
		Info("No alerts recorded")
		return nil
	}

	names := make([]string, 0, len(counters))
	for name := range counters {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		PrintKeyValue(name, fmt.Sprintf("%d", counters[name]))
	}
	return nil
}

func runReset(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	m, cleanup, err := newMonitor(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := m.Reset(); err != nil {
		return fmt.Errorf("failed to reset counters: %w", err)
	}
	Success("Alert counters cleared")
	return nil
}
