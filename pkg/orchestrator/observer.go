package orchestrator

import (
	"go.uber.org/zap"

	"github.com/opscart/k8s-zero-scaler/pkg/models"
)

// Observer is notified of every state transition. from is empty when the action is created.
type Observer interface {
	OnTransition(action models.ScalingAction, from models.ActionState)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(action models.ScalingAction, from models.ActionState)

// OnTransition calls f
func (f ObserverFunc) OnTransition(action models.ScalingAction, from models.ActionState) {
	f(action, from)
}

// LogObserver logs each transition
func LogObserver(logger *zap.Logger) Observer {
	return ObserverFunc(func(action models.ScalingAction, from models.ActionState) {
		fields := []zap.Field{
			zap.String("action", action.ID),
			zap.String("workload", action.Workload),
			zap.String("type", string(action.Type)),
			zap.String("from", string(from)),
			zap.String("to", string(action.State)),
		}
		if action.Reason != "" {
			fields = append(fields, zap.String("reason", action.Reason))
		}
		if action.Error != "" {
			logger.Warn("Action transition", append(fields, zap.String("error", action.Error))...)
			return
		}
		logger.Info("Action transition", fields...)
	})
}
