package models

import "time"

// AuditEntry represents an action taken
type AuditEntry struct {
	ID           string      `json:"id" yaml:"id"`
	ActionID     string      `json:"actionId" yaml:"actionId"`
	Workload     string      `json:"workload" yaml:"workload"`
	Action       ActionState `json:"action" yaml:"action"` // APPLYING, MONITORING, CONFIRMED, ROLLED_BACK, FAILED
	Status       string      `json:"status" yaml:"status"` // SUCCESS, FAILED
	ErrorMessage string      `json:"errorMessage,omitempty" yaml:"errorMessage,omitempty"`
	ExecutedBy   string      `json:"executedBy" yaml:"executedBy"`
	ExecutedAt   time.Time   `json:"executedAt" yaml:"executedAt"`
}

const (
	AuditSuccess = "SUCCESS"
	AuditFailed  = "FAILED"
)
