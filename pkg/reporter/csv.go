package reporter

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/opscart/k8s-zero-scaler/pkg/models"
)

// GenerateCSV creates a CSV report
func GenerateCSV(report *Report, writer io.Writer) error {
	w := csv.NewWriter(writer)

	header := []string{
		"Namespace",
		"Workload",
		"Kind",
		"Environment",
		"Type",
		"Current Replicas",
		"Target Replicas",
		"Idle Confidence",
		"Risk",
		"Gate",
		"Monthly Savings",
		"Impact",
		"Reason",
	}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, rec := range report.Recommendations {
		confidence, gate := "", ""
		if rec.Confidence != nil {
			confidence = strconv.FormatFloat(rec.Confidence.IdleConfidence, 'f', 3, 64)
		}
		if rec.Assessment != nil {
			gate = string(rec.Assessment.Decision)
		}
		row := []string{
			rec.Workload.Namespace,
			rec.Workload.Name,
			string(rec.Workload.Kind),
			rec.Environment,
			string(rec.Type),
			strconv.Itoa(int(rec.Workload.CurrentReplicas)),
			strconv.Itoa(int(rec.TargetReplicas)),
			confidence,
			string(rec.Risk),
			gate,
			fmt.Sprintf("%.2f", rec.SavingsMonthly),
			rec.Impact,
			rec.Reason,
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	summary := [][]string{
		{},
		{"SUMMARY"},
		{"Total Workloads", strconv.Itoa(report.WorkloadCount)},
		{"Scale-down Opportunities", strconv.Itoa(report.OptimizableCount)},
		{"Rejected by Safety Gate", strconv.Itoa(report.RejectedCount)},
		{"Failed Analyses", strconv.Itoa(report.FailedCount)},
		{"Total Monthly Savings", fmt.Sprintf("%.2f", report.TotalSavings)},
		{},
		{"ENVIRONMENT BREAKDOWN"},
		{"Environment", "Workloads", "Recommendations", "Rejected", "Savings"},
	}
	for _, envStat := range report.SortedEnvironments() {
		summary = append(summary, []string{
			envStat.Environment,
			strconv.Itoa(envStat.WorkloadCount),
			strconv.Itoa(envStat.Recommendations),
			strconv.Itoa(envStat.Rejected),
			fmt.Sprintf("%.2f", envStat.TotalSavings),
		})
	}
	if err := w.WriteAll(summary); err != nil {
		return fmt.Errorf("failed to write CSV summary: %w", err)
	}
	return nil
}

// GenerateActionsCSV writes the action history
func GenerateActionsCSV(actions []*models.ScalingAction, writer io.Writer) error {
	w := csv.NewWriter(writer)

	rows := [][]string{{
		"ID", "Workload", "Type", "From", "Target", "State",
		"Attempts", "Created", "Completed", "Restore Latency", "Monthly Savings", "Reason", "Error",
	}}
	for _, a := range actions {
		completed := ""
		if a.CompletedAt != nil {
			completed = a.CompletedAt.UTC().Format("2006-01-02T15:04:05Z")
		}
		latency := ""
		if a.RollbackLatency > 0 {
			latency = a.RollbackLatency.String()
		}
		rows = append(rows, []string{
			a.ID,
			a.Workload,
			string(a.Type),
			strconv.Itoa(int(a.FromReplicas)),
			strconv.Itoa(int(a.TargetReplicas)),
			string(a.State),
			strconv.Itoa(a.Attempts),
			a.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
			completed,
			latency,
			fmt.Sprintf("%.2f", a.MonthlySavings),
			a.Reason,
			a.Error,
		})
	}
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write actions CSV: %w", err)
	}
	return nil
}
