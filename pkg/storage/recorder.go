package storage

import (
	"context"
	"time"

	"go.uber.org/zap"
	"k8s.io/utils/clock"

	"github.com/opscart/k8s-zero-scaler/pkg/models"
)

// Recorder persists every action transition and appends it to the audit log.
// It satisfies orchestrator.Observer.
type Recorder struct {
	store      Store
	clock      clock.PassiveClock
	executedBy string
	timeout    time.Duration
	logger     *zap.Logger
}

// NewRecorder creates a recorder writing through store
func NewRecorder(store Store, clk clock.PassiveClock, executedBy string, logger *zap.Logger) *Recorder {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		store:      store,
		clock:      clk,
		executedBy: executedBy,
		timeout:    10 * time.Second,
		logger:     logger,
	}
}

// OnTransition saves the action and logs the new state. Storage errors are logged, never returned.
func (r *Recorder) OnTransition(action models.ScalingAction, from models.ActionState) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.store.SaveAction(ctx, &action); err != nil {
		r.logger.Warn("Failed to persist action",
			zap.String("action", action.ID),
			zap.String("state", string(action.State)),
			zap.Error(err))
	}

	// creation is not an executed step
	if from == "" {
		return
	}

	entry := &models.AuditEntry{
		ActionID:   action.ID,
		Workload:   action.Workload,
		Action:     action.State,
		Status:     models.AuditSuccess,
		ExecutedBy: action.RequestedBy,
		ExecutedAt: r.clock.Now(),
	}
	if entry.ExecutedBy == "" {
		entry.ExecutedBy = r.executedBy
	}
	if action.State == models.StateFailed {
		entry.Status = models.AuditFailed
		entry.ErrorMessage = action.Error
		if entry.ErrorMessage == "" {
			entry.ErrorMessage = action.Reason
		}
	}

	if err := r.store.LogAction(ctx, entry); err != nil {
		r.logger.Warn("Failed to write audit entry",
			zap.String("action", action.ID),
			zap.Error(err))
	}
}
