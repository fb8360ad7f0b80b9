package orchestrator

import "github.com/opscart/k8s-zero-scaler/pkg/models"

// transitions lists the allowed next states for each state
var transitions = map[models.ActionState][]models.ActionState{
	models.StatePending:    {models.StateApplying, models.StateFailed},
	models.StateApplying:   {models.StateMonitoring, models.StateConfirmed, models.StateFailed},
	models.StateMonitoring: {models.StateConfirmed, models.StateRolledBack, models.StateFailed},
}

// CanTransition reports whether the state machine allows from -> to
func CanTransition(from, to models.ActionState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// checkTransition applies the table plus the per-action guards
func (o *Orchestrator) checkTransition(a *models.ScalingAction, to models.ActionState) error {
	if !CanTransition(a.State, to) {
		return transitionError(a.State, to)
	}

	switch {
	case to == models.StateApplying && a.Type.ReducesCapacity():
		if err := o.validator.Validate(a.Assessment); err != nil {
			return err
		}
	case a.State == models.StateApplying && to == models.StateConfirmed && a.Type.ReducesCapacity():
		// capacity reductions are only confirmed after monitoring
		return transitionError(a.State, to)
	}
	return nil
}
