package orchestrator

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/opscart/k8s-zero-scaler/pkg/models"
)

// Assessor recomputes a fresh safety assessment for a workload
type Assessor interface {
	Reassess(ctx context.Context, w *models.Workload) (*models.SafetyAssessment, error)
}

// Candidate is a workload queued for a batched rollout
type Candidate struct {
	Workload       *models.Workload
	Type           models.ActionType
	TargetReplicas int32
	MonthlySavings float64
}

// RolloutResult is the submission outcome for one candidate
type RolloutResult struct {
	Workload   string                   `json:"workload"`
	Batch      int                      `json:"batch"`
	Action     *models.ScalingAction    `json:"action,omitempty"`
	Assessment *models.SafetyAssessment `json:"assessment,omitempty"`
	Err        error                    `json:"-"`
}

// Rollout releases candidates in batches of BatchSize every BatchInterval.
// Each workload is re-assessed right before its batch is released; failures stay per workload.
func (o *Orchestrator) Rollout(ctx context.Context, assessor Assessor, candidates []Candidate) []RolloutResult {
	results := make([]RolloutResult, len(candidates))
	for i, c := range candidates {
		if c.Workload != nil {
			results[i].Workload = c.Workload.Key()
		}
	}

	size := o.cfg.BatchSize
	for start, batch := 0, 0; start < len(candidates); start, batch = start+size, batch+1 {
		end := start + size
		if end > len(candidates) {
			end = len(candidates)
		}

		if batch > 0 {
			select {
			case <-o.clock.After(o.cfg.BatchInterval):
			case <-ctx.Done():
				for i := start; i < len(candidates); i++ {
					results[i].Batch = batch
					results[i].Err = fmt.Errorf("rollout stopped before release: %w", ctx.Err())
				}
				return results
			}
		}

		o.logger.Info("Releasing batch",
			zap.Int("batch", batch+1),
			zap.Int("workloads", end-start))

		var g errgroup.Group
		for i := start; i < end; i++ {
			i := i
			results[i].Batch = batch
			g.Go(func() error {
				o.release(ctx, assessor, candidates[i], &results[i])
				return nil
			})
		}
		_ = g.Wait()
	}
	return results
}

func (o *Orchestrator) release(ctx context.Context, assessor Assessor, c Candidate, result *RolloutResult) {
	if c.Workload == nil {
		result.Err = fmt.Errorf("candidate has no workload")
		return
	}

	w, err := o.refresh(ctx, c.Workload)
	if err != nil {
		result.Err = err
		return
	}

	req := Request{
		Workload:       w,
		Type:           c.Type,
		TargetReplicas: c.TargetReplicas,
		MonthlySavings: c.MonthlySavings,
	}
	if c.Type.ReducesCapacity() {
		assessment, err := assessor.Reassess(ctx, w)
		if err != nil {
			result.Err = fmt.Errorf("reassessment failed: %w", err)
			return
		}
		result.Assessment = assessment
		req.Assessment = assessment
	}

	action, err := o.Submit(ctx, req)
	if err != nil {
		result.Err = err
		o.logger.Warn("Workload not released",
			zap.String("workload", result.Workload),
			zap.Error(err))
		return
	}
	result.Action = &action
}

// refresh copies a scanned workload with its live replica count
func (o *Orchestrator) refresh(ctx context.Context, scanned *models.Workload) (*models.Workload, error) {
	current, err := o.scaler.GetReplicas(ctx, scanned)
	if err != nil {
		return nil, fmt.Errorf("failed to read replicas of %s: %w", scanned.Key(), err)
	}
	w := *scanned
	if current != w.CurrentReplicas {
		o.logger.Info("Replica count changed since scan",
			zap.String("workload", w.Key()),
			zap.Int32("scanned", w.CurrentReplicas),
			zap.Int32("current", current))
		w.CurrentReplicas = current
	}
	return &w, nil
}
