package models

import "time"

// SavingsTrend represents realized savings over time
type SavingsTrend struct {
	Namespace             string             `json:"namespace"`
	Days                  int                `json:"days"`
	DataPoints            []SavingsDataPoint `json:"dataPoints"`
	TotalProjectedSavings float64            `json:"totalProjectedSavings"`
	TotalRealizedSavings  float64            `json:"totalRealizedSavings"`
	TotalActions          int                `json:"totalActions"`
	TotalConfirmed        int                `json:"totalConfirmed"`
	TotalRolledBack       int                `json:"totalRolledBack"`
	ConfirmationRate      float64            `json:"confirmationRate"`
}

// SavingsDataPoint represents a single day's data
type SavingsDataPoint struct {
	Date             time.Time `json:"date"`
	ActionCount      int       `json:"actionCount"`
	ProjectedSavings float64   `json:"projectedSavings"`
	ConfirmedCount   int       `json:"confirmedCount"`
	RolledBackCount  int       `json:"rolledBackCount"`
	RealizedSavings  float64   `json:"realizedSavings"`
}

// Finalize computes totals and the confirmation rate from the data points
func (t *SavingsTrend) Finalize() {
	t.TotalProjectedSavings, t.TotalRealizedSavings = 0, 0
	t.TotalActions, t.TotalConfirmed, t.TotalRolledBack = 0, 0, 0
	for _, dp := range t.DataPoints {
		t.TotalProjectedSavings += dp.ProjectedSavings
		t.TotalRealizedSavings += dp.RealizedSavings
		t.TotalActions += dp.ActionCount
		t.TotalConfirmed += dp.ConfirmedCount
		t.TotalRolledBack += dp.RolledBackCount
	}
	t.ConfirmationRate = 0
	if t.TotalActions > 0 {
		t.ConfirmationRate = float64(t.TotalConfirmed) / float64(t.TotalActions) * 100
	}
}
