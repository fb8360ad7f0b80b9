package orchestrator

import (
	"errors"
	"fmt"

	"github.com/opscart/k8s-zero-scaler/pkg/models"
)

var (
	// ErrActionInFlight is returned when a workload already has a non-terminal action
	ErrActionInFlight = errors.New("workload already has an action in flight")
	// ErrNotCancellable is returned when an action's state does not allow cancellation
	ErrNotCancellable = errors.New("action cannot be cancelled in its current state")
	// ErrNotFound is returned for unknown workloads or action IDs
	ErrNotFound = errors.New("action not found")
	// ErrInvalidTransition is returned for transitions the state machine does not allow
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrCancelled is returned when confirming an action whose cancel was already accepted
	ErrCancelled = errors.New("action was cancelled")
)

// ReplicaDriftError is returned when a workload's replica count moved away from the assessed baseline
type ReplicaDriftError struct {
	Workload string
	Expected int32
	Actual   int32
}

func (e *ReplicaDriftError) Error() string {
	return fmt.Sprintf("%s has %d replicas, assessed at %d", e.Workload, e.Actual, e.Expected)
}

// ControlPlaneError is returned when applying a replica change keeps failing
type ControlPlaneError struct {
	Workload string
	Replicas int32
	Attempts int
	Err      error
}

func (e *ControlPlaneError) Error() string {
	return fmt.Sprintf("failed to scale %s to %d after %d attempts: %v", e.Workload, e.Replicas, e.Attempts, e.Err)
}

func (e *ControlPlaneError) Unwrap() error { return e.Err }

// RollbackFailure is raised when restoring the baseline fails. It is never retried automatically.
type RollbackFailure struct {
	Workload string
	ActionID string
	Baseline int32
	Err      error
}

func (e *RollbackFailure) Error() string {
	return fmt.Sprintf("rollback of %s (action %s) to %d replicas failed: %v", e.Workload, e.ActionID, e.Baseline, e.Err)
}

func (e *RollbackFailure) Unwrap() error { return e.Err }

func transitionError(from, to models.ActionState) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
