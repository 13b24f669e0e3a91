package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/soledad-rivas/vaultguard/internal/monitor"
)

var budgetCmd = &cobra.Command{
	Use:   "budget",
	Short: "Manage per-application consumption budgets",
	Long: `Manage the consumption budgets the security monitor watches.
A budget tracks units used against a limit; once exhausted, every
monitoring pass raises a HIGH finding for that application until the
budget is raised or reset.`,
}

var budgetSetCmd = &cobra.Command{
	Use:   "set <app> <limit>",
	Short: "Set an application's budget limit and reset its usage",
	Args:  cobra.ExactArgs(2),
	RunE:  runBudgetSet,
}

var budgetRecordCmd = &cobra.Command{
	Use:   "record <app> <units>",
	Short: "Record consumed units against an application's budget",
	Args:  cobra.ExactArgs(2),
	RunE:  runBudgetRecord,
}

var budgetShowCmd = &cobra.Command{
	Use:   "show <app>",
	Short: "Show an application's budget",
	Args:  cobra.ExactArgs(1),
	RunE:  runBudgetShow,
}

func init() {
	budgetCmd.AddCommand(budgetSetCmd)
	budgetCmd.AddCommand(budgetRecordCmd)
	budgetCmd.AddCommand(budgetShowCmd)
	rootCmd.AddCommand(budgetCmd)
}

func withState(fn func(*monitor.State) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	state, err := monitor.OpenState(cfg.Monitor.StateDB)
	if err != nil {
		return fmt.Errorf("open monitor state: %w", err)
	}
	defer state.Close()
	return fn(state)
}

func runBudgetSet(_ *cobra.Command, args []string) error {
	app := args[0]
	limit, err := strconv.Atoi(args[1])
	if err != nil || limit < 0 {
		return fmt.Errorf("limit must be a non-negative integer")
	}
	return withState(func(state *monitor.State) error {
		if err := state.SetBudget(app, limit); err != nil {
			return err
		}
		Success("Budget for %s set to %d", app, limit)
		return nil
	})
}

func runBudgetRecord(_ *cobra.Command, args []string) error {
	app := args[0]
	units, err := strconv.Atoi(args[1])
	if err != nil || units < 0 {
		return fmt.Errorf("units must be a non-negative integer")
	}
	return withState(func(state *monitor.State) error {
		if err := state.RecordUsage(app, units); err != nil {
			return err
		}
		budget, err := state.GetBudget(app)
		if err != nil {
			return err
		}
		if budget.Exhausted() {
			Warning("Budget for %s exhausted (%d/%d)", app, budget.Used, budget.Limit)
		} else {
			Success("Recorded %d units for %s (%d/%d)", units, app, budget.Used, budget.Limit)
		}
		return nil
	})
}

func runBudgetShow(_ *cobra.Command, args []string) error {
	return withState(func(state *monitor.State) error {
		budget, err := state.GetBudget(args[0])
		if err != nil {
			return err
		}
		if budget.Limit == 0 {
			Info("No budget configured for %s", args[0])
			return nil
		}
		PrintKeyValue(args[0], fmt.Sprintf("%d/%d used", budget.Used, budget.Limit))
		return nil
	})
}
