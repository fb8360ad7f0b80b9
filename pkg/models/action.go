package models

import "time"

// ActionType is the kind of scaling operation
type ActionType string

const (
	ActionScaleToZero ActionType = "scale_to_zero"
	ActionScaleUp     ActionType = "scale_up"
	ActionRightsizing ActionType = "rightsizing"
)

// ReducesCapacity reports whether the action lowers the replica count and therefore needs the gate
func (t ActionType) ReducesCapacity() bool {
	return t == ActionScaleToZero || t == ActionRightsizing
}

// ActionState is a ScalingAction lifecycle state
type ActionState string

const (
	StatePending    ActionState = "PENDING"
	StateApplying   ActionState = "APPLYING"
	StateMonitoring ActionState = "MONITORING"
	StateConfirmed  ActionState = "CONFIRMED"
	StateRolledBack ActionState = "ROLLED_BACK"
	StateFailed     ActionState = "FAILED"
)

// Terminal reports whether no further transition is possible
func (s ActionState) Terminal() bool {
	return s == StateConfirmed || s == StateRolledBack || s == StateFailed
}

// ScalingAction is one executed (or executing) scaling operation
type ScalingAction struct {
	ID             string       `json:"id" yaml:"id"`
	Workload       string       `json:"workload" yaml:"workload"`
	Kind           WorkloadKind `json:"kind" yaml:"kind"`
	Type           ActionType   `json:"type" yaml:"type"`
	FromReplicas   int32        `json:"fromReplicas" yaml:"fromReplicas"`
	TargetReplicas int32        `json:"targetReplicas" yaml:"targetReplicas"`
	State          ActionState  `json:"state" yaml:"state"`
	Reason         string       `json:"reason,omitempty" yaml:"reason,omitempty"`
	Error          string       `json:"error,omitempty" yaml:"error,omitempty"`
	Attempts       int          `json:"attempts" yaml:"attempts"`

	Assessment *SafetyAssessment `json:"assessment,omitempty" yaml:"assessment,omitempty"`

	CreatedAt       time.Time     `json:"createdAt" yaml:"createdAt"`
	AppliedAt       *time.Time    `json:"appliedAt,omitempty" yaml:"appliedAt,omitempty"`
	MonitoringUntil *time.Time    `json:"monitoringUntil,omitempty" yaml:"monitoringUntil,omitempty"`
	CompletedAt     *time.Time    `json:"completedAt,omitempty" yaml:"completedAt,omitempty"`
	RollbackLatency time.Duration `json:"rollbackLatency,omitempty" yaml:"rollbackLatency,omitempty"`
	RequestedBy     string        `json:"requestedBy,omitempty" yaml:"requestedBy,omitempty"`

	// Projected monthly savings if the action is confirmed
	MonthlySavings float64 `json:"monthlySavings,omitempty" yaml:"monthlySavings,omitempty"`
}

// Snapshot returns a copy safe to hand to other goroutines
func (a *ScalingAction) Snapshot() ScalingAction {
	cp := *a
	if a.Assessment != nil {
		assessment := *a.Assessment
		cp.Assessment = &assessment
	}
	return cp
}
