package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/opscart/k8s-zero-scaler/pkg/models"
)

// monitor watches a scaled-down workload for business traffic until the safety window ends.
// The ticker and deadline are armed before MONITORING is published.
func (o *Orchestrator) monitor(e *entry) {
	ticker := o.clock.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()
	deadline := o.clock.NewTimer(o.cfg.SafetyWindow)
	defer deadline.Stop()

	appliedAt := o.clock.Now()
	until := appliedAt.Add(o.cfg.SafetyWindow)
	err := o.transition(e, models.StateMonitoring, func(a *models.ScalingAction) {
		a.AppliedAt = &appliedAt
		a.MonitoringUntil = &until
	})
	if err != nil {
		o.fail(e, "could not enter monitoring", err)
		return
	}

	lastPoll := appliedAt
	for {
		select {
		case <-e.cancelCh:
			reason, _ := e.cancelled()
			o.rollback(e, reason, o.clock.Now())
			return
		case <-ticker.C():
			if o.poll(e, &lastPoll) {
				return
			}
		case <-deadline.C():
			if o.poll(e, &lastPoll) {
				return
			}
			err := o.transition(e, models.StateConfirmed, func(a *models.ScalingAction) {
				a.Reason = fmt.Sprintf("no business traffic for %s", o.cfg.SafetyWindow)
			})
			if errors.Is(err, ErrCancelled) {
				reason, _ := e.cancelled()
				o.rollback(e, reason, o.clock.Now())
			}
			return
		}
	}
}

// poll fetches records since the last successful poll and rolls back on business traffic.
// It returns true once the action is terminal.
func (o *Orchestrator) poll(e *entry, lastPoll *time.Time) bool {
	now := o.clock.Now()
	key := e.action.Workload

	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.ApplyTimeout)
	defer cancel()

	records, err := o.source.GetRequestRecords(ctx, key, *lastPoll, now)
	if err != nil {
		// window is retried on the next tick
		o.logger.Warn("Monitoring poll failed",
			zap.String("workload", key),
			zap.Time("since", *lastPoll),
			zap.Error(err))
		return false
	}
	*lastPoll = now

	found, sample := o.classifier.HasBusiness(records)
	if !found {
		return false
	}

	reason := fmt.Sprintf("business request at %s (rule %s)", sample.Timestamp.UTC().Format(time.RFC3339), sample.Rule)
	o.rollback(e, reason, now)
	return true
}

// rollback restores the baseline once. A failure is alerted and never retried.
func (o *Orchestrator) rollback(e *entry, reason string, triggeredAt time.Time) {
	snap := e.snapshot()
	baseline := snap.FromReplicas
	if snap.Assessment != nil && snap.Assessment.RollbackPlan != nil {
		baseline = snap.Assessment.RollbackPlan.BaselineReplicas
	}

	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.RollbackTimeout)
	defer cancel()

	scaleLatency, err := o.scaler.Scale(ctx, &e.workload, baseline)
	if err != nil {
		rf := &RollbackFailure{Workload: snap.Workload, ActionID: snap.ID, Baseline: baseline, Err: err}
		o.raise(Alert{
			Severity:  SeverityCritical,
			Workload:  snap.Workload,
			ActionID:  snap.ID,
			Message:   "Rollback failed, workload left below baseline",
			Error:     rf.Error(),
			Timestamp: o.clock.Now(),
		})
		o.fail(e, reason, rf)
		return
	}

	latency := o.clock.Since(triggeredAt)
	if scaleLatency > latency {
		latency = scaleLatency
	}
	if o.latencies != nil {
		o.latencies.Record(snap.Workload, latency)
	}

	_ = o.transition(e, models.StateRolledBack, func(a *models.ScalingAction) {
		a.Reason = reason
		a.RollbackLatency = latency
	})
}

func (o *Orchestrator) raise(alert Alert) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := o.alerter.Alert(ctx, alert); err != nil {
		o.logger.Error("Failed to deliver alert",
			zap.String("workload", alert.Workload),
			zap.String("action", alert.ActionID),
			zap.Error(err))
	}
}
