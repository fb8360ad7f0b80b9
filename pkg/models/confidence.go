package models

import "time"

// ConfidenceRecord is the per-workload idle estimate for one analysis window
type ConfidenceRecord struct {
	Workload    string    `json:"workload" yaml:"workload"`
	WindowStart time.Time `json:"windowStart" yaml:"windowStart"`
	WindowEnd   time.Time `json:"windowEnd" yaml:"windowEnd"`

	// Business requests per hour over the window
	BusinessRequestRate float64 `json:"businessRequestRate" yaml:"businessRequestRate"`
	BusinessRatio       float64 `json:"businessRatio" yaml:"businessRatio"`
	IdleConfidence      float64 `json:"idleConfidence" yaml:"idleConfidence"`

	LastBusinessAt   *time.Time            `json:"lastBusinessAt,omitempty" yaml:"lastBusinessAt,omitempty"`
	Summary          ClassificationSummary `json:"summary" yaml:"summary"`
	InsufficientData bool                  `json:"insufficientData" yaml:"insufficientData"`
	Scorer           string                `json:"scorer" yaml:"scorer"`

	ComputedAt time.Time `json:"computedAt" yaml:"computedAt"`
	ValidUntil time.Time `json:"validUntil" yaml:"validUntil"`
}

// Expired reports whether the record is past its validity TTL at now
func (c *ConfidenceRecord) Expired(now time.Time) bool {
	return !now.Before(c.ValidUntil)
}
