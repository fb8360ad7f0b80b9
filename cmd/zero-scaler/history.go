package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/opscart/k8s-zero-scaler/pkg/models"
	"github.com/opscart/k8s-zero-scaler/pkg/reporter"
)

var (
	historyLimit int
	savingsDays  int
	auditLimit   int
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show past scaling actions from storage",
		RunE:  runHistory,
	}
	cmd.Flags().IntVar(&historyLimit, "limit", 20, "Number of actions to show")
	return cmd
}

func newSavingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "savings",
		Short: "Show projected and realized savings over time",
		RunE:  runSavings,
	}
	cmd.Flags().IntVar(&savingsDays, "days", 30, "Number of days to look back")
	return cmd
}

func newAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit [action-id]",
		Short: "Show the audit trail for one action, or the most recent entries",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runAudit,
	}
	cmd.Flags().IntVar(&auditLimit, "limit", 50, "Number of entries to show")
	return cmd
}

func openStore(cmd *cobra.Command, component string) (*app, error) {
	a, err := newApp(cmd.Context(), component, setupOptions{storeOnly: true})
	if err != nil {
		return nil, err
	}
	if a.store == nil {
		a.Close()
		return nil, fmt.Errorf("storage is not available (set STORAGE_ENABLED=true and DATABASE_URL)")
	}
	return a, nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	a, err := openStore(cmd, "history")
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	actions, err := a.store.ListActions(ctx, namespace, historyLimit)
	if err != nil {
		return fmt.Errorf("failed to list actions: %w", err)
	}

	if outputFormat == "csv" {
		return reporter.GenerateActionsCSV(actions, os.Stdout)
	}

	handler, err := a.output()
	if err != nil {
		return err
	}
	values := make([]models.ScalingAction, 0, len(actions))
	for _, action := range actions {
		values = append(values, *action)
	}
	return handler.DisplayActions(ctx, values)
}

func runSavings(cmd *cobra.Command, args []string) error {
	a, err := openStore(cmd, "savings")
	if err != nil {
		return err
	}
	defer a.Close()

	trend, err := a.store.GetSavingsTrend(cmd.Context(), namespace, savingsDays)
	if err != nil {
		return err
	}

	scope := namespace
	if scope == "" {
		scope = "all namespaces"
	}
	fmt.Printf("Savings trend for %s (last %d days)\n\n", scope, trend.Days)
	fmt.Printf("%-12s %8s %10s %12s %14s %14s\n", "DATE", "ACTIONS", "CONFIRMED", "ROLLED BACK", "PROJECTED", "REALIZED")
	for _, p := range trend.DataPoints {
		fmt.Printf("%-12s %8d %10d %12d %14s %14s\n",
			p.Date.Format("2006-01-02"), p.ActionCount, p.ConfirmedCount, p.RolledBackCount,
			fmt.Sprintf("$%.2f", p.ProjectedSavings), fmt.Sprintf("$%.2f", p.RealizedSavings))
	}
	fmt.Printf("\nTotal projected:   $%.2f/month\n", trend.TotalProjectedSavings)
	fmt.Printf("Total realized:    $%.2f/month\n", trend.TotalRealizedSavings)
	fmt.Printf("Confirmation rate: %.1f%% (%d of %d actions)\n", trend.ConfirmationRate, trend.TotalConfirmed, trend.TotalActions)
	return nil
}

func runAudit(cmd *cobra.Command, args []string) error {
	a, err := openStore(cmd, "audit")
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	var actionID string
	if len(args) == 1 {
		actionID = args[0]
		if _, err := a.store.GetAction(ctx, actionID); err != nil {
			return fmt.Errorf("action %s: %w", actionID, err)
		}
	}

	entries, err := a.store.GetAuditLog(ctx, actionID, auditLimit)
	if err != nil {
		return fmt.Errorf("failed to read audit log: %w", err)
	}

	handler, err := a.output()
	if err != nil {
		return err
	}
	return handler.DisplayAudit(ctx, entries)
}
