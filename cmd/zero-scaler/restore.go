package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/opscart/k8s-zero-scaler/pkg/models"
	"github.com/opscart/k8s-zero-scaler/pkg/orchestrator"
)

var restoreReplicas int32

func newRestoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore <namespace/name>",
		Short: "Scale a workload back up to its recorded baseline",
		Args:  cobra.ExactArgs(1),
		RunE:  runRestore,
	}
	cmd.Flags().Int32Var(&restoreReplicas, "to", 0, "Replica count (defaults to the baseline recorded when it was scaled down)")
	return cmd
}

func runRestore(cmd *cobra.Command, args []string) error {
	key := args[0]
	if _, _, err := models.ParseWorkloadKey(key); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, "restore", setupOptions{needCluster: true})
	if err != nil {
		return err
	}
	defer a.Close()

	w, err := a.inventory.GetWorkload(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to load workload %s: %w", key, err)
	}

	orch, err := a.newOrchestrator(executedBy())
	if err != nil {
		return err
	}

	action, err := orch.Submit(ctx, orchestrator.Request{
		Workload:       w,
		Type:           models.ActionScaleUp,
		TargetReplicas: restoreReplicas,
		RequestedBy:    executedBy(),
	})
	if err != nil {
		return err
	}

	action, err = orch.Await(ctx, action.ID)
	orch.Wait()
	if err != nil {
		return err
	}

	handler, err := a.output()
	if err != nil {
		return err
	}
	if err := handler.DisplayActions(ctx, []models.ScalingAction{action}); err != nil {
		return err
	}
	if action.State != models.StateConfirmed {
		return fmt.Errorf("restore of %s ended in %s: %s", key, action.State, action.Error)
	}
	return nil
}
