package output

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/opscart/k8s-zero-scaler/pkg/models"
	"github.com/opscart/k8s-zero-scaler/pkg/recommender"
	"github.com/opscart/k8s-zero-scaler/pkg/scanner"
)

// TextHandler writes human-readable output
type TextHandler struct {
	w io.Writer
}

func (h *TextHandler) Format() string { return "text" }

func (h *TextHandler) DisplayReport(ctx context.Context, report *scanner.Report) error {
	fmt.Fprintf(h.w, "=== Zero-Pod Scaling Analysis (%s) ===\n\n", report.DataSource)

	tw := tabwriter.NewWriter(h.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "WORKLOAD\tREPLICAS\tHEALTH\tBUSINESS\tUNKNOWN\tCONFIDENCE\tRISK\tGATE\tRECOMMENDATION")
	for _, res := range report.Results {
		if res.Error != "" {
			fmt.Fprintf(tw, "%s\t%d\t-\t-\t-\t-\t-\t-\terror: %s\n",
				res.Workload.Key(), res.Workload.CurrentReplicas, res.Error)
			continue
		}
		confidence, risk, gate, recType := "-", "-", "-", "-"
		if res.Confidence != nil {
			confidence = fmt.Sprintf("%.3f", res.Confidence.IdleConfidence)
			if res.Confidence.InsufficientData {
				confidence += " (insufficient)"
			}
		}
		if res.Assessment != nil {
			risk = string(res.Assessment.RiskLevel)
			gate = string(res.Assessment.Decision)
		}
		if res.Recommendation != nil {
			recType = string(res.Recommendation.Type)
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%s\t%s\t%s\t%s\n",
			res.Workload.Key(), res.Workload.CurrentReplicas,
			res.Summary.HealthCheck, res.Summary.Business, res.Summary.Unknown,
			confidence, risk, gate, recType)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	actionable := report.Actionable()
	if len(actionable) == 0 {
		fmt.Fprintln(h.w, "\n[INFO] No scale-down opportunities found")
	} else {
		fmt.Fprintf(h.w, "\n=== Recommendations ===\n\n")
		for i, res := range actionable {
			fmt.Fprintf(h.w, "%d. %s\n\n", i+1, recommender.Describe(res.Recommendation))
		}
	}

	if report.Cost != nil {
		c := report.Cost.Cluster
		fmt.Fprintf(h.w, "Total potential savings: %.2f/month (%d workloads, %.2f -> %.2f)\n",
			c.Savings, c.Workloads, c.MonthlyCostBefore, c.MonthlyCostAfter)
	}
	if report.Failed > 0 {
		fmt.Fprintf(h.w, "[WARN] %d workload(s) could not be analyzed\n", report.Failed)
	}
	return nil
}

func (h *TextHandler) DisplayActions(ctx context.Context, actions []models.ScalingAction) error {
	if len(actions) == 0 {
		_, err := fmt.Fprintln(h.w, "No scaling actions found")
		return err
	}

	tw := tabwriter.NewWriter(h.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tWORKLOAD\tTYPE\tREPLICAS\tSTATE\tCREATED\tRESTORE\tREASON")
	for _, a := range actions {
		restore := "-"
		if a.RollbackLatency > 0 {
			restore = a.RollbackLatency.Round(time.Millisecond).String()
		}
		reason := a.Reason
		if a.Error != "" {
			reason = strings.TrimSpace(reason + " " + a.Error)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d -> %d\t%s\t%s\t%s\t%s\n",
			shortID(a.ID), a.Workload, a.Type, a.FromReplicas, a.TargetReplicas,
			a.State, a.CreatedAt.Format("2006-01-02 15:04:05"), restore, reason)
	}
	return tw.Flush()
}

func (h *TextHandler) DisplayAudit(ctx context.Context, entries []*models.AuditEntry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(h.w, "No audit log entries found")
		return err
	}

	fmt.Fprintln(h.w, "Audit Log:")
	for i, e := range entries {
		fmt.Fprintf(h.w, "%d. %s %s - %s\n", i+1, e.Workload, e.Action, e.Status)
		fmt.Fprintf(h.w, "   Executed: %s\n", e.ExecutedAt.Format("2006-01-02 15:04:05"))
		if e.ExecutedBy != "" {
			fmt.Fprintf(h.w, "   By: %s\n", e.ExecutedBy)
		}
		if e.ErrorMessage != "" {
			fmt.Fprintf(h.w, "   Error: %s\n", e.ErrorMessage)
		}
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
