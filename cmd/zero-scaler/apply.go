package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/opscart/k8s-zero-scaler/pkg/models"
	"github.com/opscart/k8s-zero-scaler/pkg/orchestrator"
	"github.com/opscart/k8s-zero-scaler/pkg/scanner"
)

var (
	applyWorkloads []string
	applyDryRun    bool
	listenAddr     string
)

func newApplyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Scale idle workloads to zero and monitor them through the safety window",
		Long: `Scans, then releases actionable workloads in batches. Each workload is re-assessed right
before its batch, scaled, and monitored for business traffic until the safety window elapses.
Business traffic during monitoring restores the workload automatically.

The command stays in the foreground until every action is terminal. Interrupting it cancels
pending actions and restores every workload it scaled down, including one still being applied.`,
		RunE: runApply,
	}

	cmd.Flags().StringSliceVar(&applyWorkloads, "workload", nil, "Only apply to these workloads (namespace/name, repeatable)")
	cmd.Flags().BoolVar(&applyDryRun, "dry-run", false, "Show the candidates without scaling")
	cmd.Flags().StringVar(&listenAddr, "listen", "", "Status API address (defaults to LISTEN_ADDR, empty disables)")
	return cmd
}

func runApply(cmd *cobra.Command, args []string) error {
	ns, err := targetNamespace()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, "apply", setupOptions{needCluster: !applyDryRun})
	if err != nil {
		return err
	}
	defer a.Close()

	handler, err := a.output()
	if err != nil {
		return err
	}

	report, err := a.scanner.Scan(ctx, ns)
	if err != nil {
		return err
	}
	a.observeScan(ctx, report, true)

	candidates := selectCandidates(report, applyWorkloads)
	if len(candidates) == 0 {
		fmt.Fprintln(os.Stderr, "[INFO] No workloads are eligible for scaling")
		return handler.DisplayReport(ctx, report)
	}

	if applyDryRun {
		fmt.Fprintf(os.Stderr, "[DRY-RUN] %d workload(s) would be scaled:\n", len(candidates))
		for _, c := range candidates {
			fmt.Fprintf(os.Stderr, "  %s -> %d replicas (%s, $%.2f/month)\n",
				c.Workload.Key(), c.TargetReplicas, c.Type, c.MonthlySavings)
		}
		return nil
	}

	orch, err := a.newOrchestrator(executedBy())
	if err != nil {
		return err
	}

	addr := listenAddr
	if !cmd.Flags().Changed("listen") {
		addr = a.cfg.ListenAddr
	}
	a.serve(ctx, addr, orch)

	a.logger.Info("Starting rollout",
		zap.Int("candidates", len(candidates)),
		zap.Int("batch_size", a.cfg.BatchSize),
		zap.Duration("batch_interval", a.cfg.BatchInterval),
		zap.Duration("safety_window", a.cfg.SafetyWindow))

	results := orch.Rollout(ctx, a.scanner, candidates)
	actions := awaitRollout(ctx, a.logger, orch, results)

	for _, r := range results {
		if r.Err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] %s: %v\n", r.Workload, r.Err)
		}
	}
	return handler.DisplayActions(context.Background(), actions)
}

// selectCandidates turns actionable recommendations into rollout candidates
func selectCandidates(report *scanner.Report, only []string) []orchestrator.Candidate {
	allowed := make(map[string]bool, len(only))
	for _, key := range only {
		allowed[key] = true
	}

	var candidates []orchestrator.Candidate
	for _, res := range report.Actionable() {
		if len(allowed) > 0 && !allowed[res.Workload.Key()] {
			continue
		}
		rec := res.Recommendation
		candidates = append(candidates, orchestrator.Candidate{
			Workload:       res.Workload,
			Type:           rec.ActionType(),
			TargetReplicas: rec.TargetReplicas,
			MonthlySavings: rec.SavingsMonthly,
		})
	}
	return candidates
}

// awaitRollout blocks until every released action is terminal. If ctx is cancelled first,
// all cancellable actions are cancelled and their goroutines drained.
func awaitRollout(ctx context.Context, logger *zap.Logger, orch *orchestrator.Orchestrator, results []orchestrator.RolloutResult) []models.ScalingAction {
	var ids []string
	for _, r := range results {
		if r.Action != nil {
			ids = append(ids, r.Action.ID)
		}
	}

	for _, id := range ids {
		if _, err := orch.Await(ctx, id); err != nil {
			break
		}
	}

	if ctx.Err() != nil {
		n := orch.CancelAll()
		logger.Warn("Interrupted, cancelling in-flight actions", zap.Int("cancelled", n))
	}
	orch.Wait()

	actions := make([]models.ScalingAction, 0, len(ids))
	for _, id := range ids {
		if a, ok := orch.Get(id); ok {
			actions = append(actions, a)
		}
	}
	return actions
}
