package models

import "time"

// RiskLevel represents the risk of applying an optimization action
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

var riskOrder = []RiskLevel{RiskLow, RiskMedium, RiskHigh, RiskCritical}

// Rank orders risk levels from 0 (LOW) to 3 (CRITICAL); unknown levels rank as CRITICAL
func (r RiskLevel) Rank() int {
	for i, level := range riskOrder {
		if level == r {
			return i
		}
	}
	return len(riskOrder) - 1
}

// Escalate raises the risk by n levels, capped at CRITICAL
func (r RiskLevel) Escalate(n int) RiskLevel {
	rank := r.Rank() + n
	if rank >= len(riskOrder) {
		rank = len(riskOrder) - 1
	}
	if rank < 0 {
		rank = 0
	}
	return riskOrder[rank]
}

// AtLeast returns the higher of r and floor
func (r RiskLevel) AtLeast(floor RiskLevel) RiskLevel {
	if floor.Rank() > r.Rank() {
		return floor
	}
	return r
}

// Actionable reports whether an automated action may proceed at this risk
func (r RiskLevel) Actionable() bool {
	return r == RiskLow || r == RiskMedium
}

// ParseRiskLevel validates a risk level string
func ParseRiskLevel(s string) (RiskLevel, bool) {
	for _, level := range riskOrder {
		if string(level) == s {
			return level, true
		}
	}
	return "", false
}

// GateDecision is the outcome of the safety gate
type GateDecision string

const (
	GateApproved GateDecision = "APPROVED"
	GateRejected GateDecision = "REJECTED"
)

// RestoreProcedure describes how to bring a workload back to its baseline
type RestoreProcedure struct {
	Kind      WorkloadKind `json:"kind" yaml:"kind"`
	Namespace string       `json:"namespace" yaml:"namespace"`
	Name      string       `json:"name" yaml:"name"`
	Replicas  int32        `json:"replicas" yaml:"replicas"`
	Command   string       `json:"command" yaml:"command"`
}

// RollbackPlan captures the pre-action state
type RollbackPlan struct {
	BaselineReplicas int32            `json:"baselineReplicas" yaml:"baselineReplicas"`
	Restore          RestoreProcedure `json:"restore" yaml:"restore"`
}

// SafetyAssessment combines confidence with workload metadata into a risk verdict
type SafetyAssessment struct {
	Workload                 string        `json:"workload" yaml:"workload"`
	RiskLevel                RiskLevel     `json:"riskLevel" yaml:"riskLevel"`
	IdleConfidence           float64       `json:"idleConfidence" yaml:"idleConfidence"`
	RollbackPlan             *RollbackPlan `json:"rollbackPlan,omitempty" yaml:"rollbackPlan,omitempty"`
	EstimatedRollbackLatency time.Duration `json:"estimatedRollbackLatency" yaml:"estimatedRollbackLatency"`

	Decision GateDecision `json:"decision" yaml:"decision"`
	Reasons  []string     `json:"reasons,omitempty" yaml:"reasons,omitempty"`

	ConfidenceComputedAt time.Time `json:"confidenceComputedAt" yaml:"confidenceComputedAt"`
	ComputedAt           time.Time `json:"computedAt" yaml:"computedAt"`
	ValidUntil           time.Time `json:"validUntil" yaml:"validUntil"`
}

// Approved reports whether the gate let the assessment through
func (a *SafetyAssessment) Approved() bool {
	return a.Decision == GateApproved
}

// Expired reports whether the assessment is past its validity TTL at now
func (a *SafetyAssessment) Expired(now time.Time) bool {
	return !now.Before(a.ValidUntil)
}
