package models

import "time"

// RecommendationType represents the type of recommendation
type RecommendationType string

const (
	RecommendationScaleToZero RecommendationType = "SCALE_TO_ZERO"
	RecommendationRightSize   RecommendationType = "RIGHT_SIZE"
	RecommendationNoAction    RecommendationType = "NO_ACTION"
)

// Recommendation is the outcome of one analysis cycle for a workload
type Recommendation struct {
	ID          string             `json:"id" yaml:"id"`
	Type        RecommendationType `json:"type" yaml:"type"`
	Workload    *Workload          `json:"workload" yaml:"workload"`
	Environment string             `json:"environment" yaml:"environment"`

	Confidence *ConfidenceRecord `json:"confidence,omitempty" yaml:"confidence,omitempty"`
	Assessment *SafetyAssessment `json:"assessment,omitempty" yaml:"assessment,omitempty"`
	Cost       *CostEstimate     `json:"cost,omitempty" yaml:"cost,omitempty"`

	TargetReplicas int32     `json:"targetReplicas" yaml:"targetReplicas"`
	Reason         string    `json:"reason" yaml:"reason"`
	SavingsMonthly float64   `json:"savingsMonthly" yaml:"savingsMonthly"`
	Impact         string    `json:"impact" yaml:"impact"` // HIGH, MEDIUM, LOW
	Risk           RiskLevel `json:"risk" yaml:"risk"`

	// Generated command
	Command string `json:"command,omitempty" yaml:"command,omitempty"`

	CreatedAt time.Time `json:"createdAt" yaml:"createdAt"`
}

// Actionable reports whether the recommendation leads to a scaling action
func (r *Recommendation) Actionable() bool {
	return r.Type != RecommendationNoAction
}

// ActionType maps the recommendation onto the orchestrator's action type
func (r *Recommendation) ActionType() ActionType {
	if r.Type == RecommendationRightSize {
		return ActionRightsizing
	}
	return ActionScaleToZero
}
