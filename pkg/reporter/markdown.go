package reporter

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// GenerateMarkdown creates a Markdown report
func GenerateMarkdown(report *Report, writer io.Writer) error {
	w := bufio.NewWriter(writer)

	ns := report.Namespace
	if ns == "" {
		ns = "all namespaces"
	}
	fmt.Fprintf(w, "# Zero-Pod Scaling Report\n\n")
	fmt.Fprintf(w, "- **Cluster:** %s\n", report.ClusterName)
	fmt.Fprintf(w, "- **Namespace:** %s\n", ns)
	fmt.Fprintf(w, "- **Traffic source:** %s\n", report.DataSource)
	fmt.Fprintf(w, "- **Generated:** %s\n\n", report.GeneratedAt.Format("2006-01-02 15:04:05 MST"))

	fmt.Fprintf(w, "## Summary\n\n")
	fmt.Fprintf(w, "| Workloads | Opportunities | Rejected | Failed | Savings/month |\n")
	fmt.Fprintf(w, "|---|---|---|---|---|\n")
	fmt.Fprintf(w, "| %d | %d | %d | %d | %.2f |\n\n",
		report.WorkloadCount, report.OptimizableCount, report.RejectedCount, report.FailedCount, report.TotalSavings)

	if len(report.EnvironmentStats) > 0 {
		fmt.Fprintf(w, "## By environment\n\n")
		fmt.Fprintf(w, "| Environment | Workloads | Recommendations | Rejected | Savings/month |\n")
		fmt.Fprintf(w, "|---|---|---|---|---|\n")
		for _, s := range report.SortedEnvironments() {
			fmt.Fprintf(w, "| %s | %d | %d | %d | %.2f |\n",
				s.Environment, s.WorkloadCount, s.Recommendations, s.Rejected, s.TotalSavings)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "## Workloads\n\n")
	fmt.Fprintf(w, "| Workload | Kind | Recommendation | Replicas | Idle confidence | Risk | Savings/month | Reason |\n")
	fmt.Fprintf(w, "|---|---|---|---|---|---|---|---|\n")
	for _, rec := range report.Recommendations {
		replicas := fmt.Sprintf("%d", rec.Workload.CurrentReplicas)
		savings := ""
		if rec.Actionable() {
			replicas = fmt.Sprintf("%d -> %d", rec.Workload.CurrentReplicas, rec.TargetReplicas)
			savings = fmt.Sprintf("%.2f", rec.SavingsMonthly)
		}
		confidence := ""
		if rec.Confidence != nil {
			confidence = fmt.Sprintf("%.3f", rec.Confidence.IdleConfidence)
		}
		fmt.Fprintf(w, "| %s | %s | %s | %s | %s | %s | %s | %s |\n",
			rec.Workload.Key(), rec.Workload.Kind, rec.Type, replicas, confidence, rec.Risk, savings, escapePipes(rec.Reason))
	}

	return w.Flush()
}

func escapePipes(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}
