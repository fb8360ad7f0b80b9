package reporter

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/opscart/k8s-zero-scaler/pkg/models"
	"github.com/opscart/k8s-zero-scaler/pkg/scanner"
)

// ReportFormat represents the output format
type ReportFormat string

const (
	FormatHTML     ReportFormat = "html"
	FormatMarkdown ReportFormat = "markdown"
	FormatCSV      ReportFormat = "csv"
)

// Extension returns the file extension for the format
func (f ReportFormat) Extension() string {
	switch f {
	case FormatMarkdown:
		return ".md"
	case FormatCSV:
		return ".csv"
	default:
		return ".html"
	}
}

// ParseFormat validates a report format name
func ParseFormat(s string) (ReportFormat, error) {
	switch s {
	case "html", "":
		return FormatHTML, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "csv":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("unsupported report format: %s", s)
	}
}

// Report contains all data for generating reports
type Report struct {
	ClusterName string
	Namespace   string
	DataSource  string
	GeneratedAt time.Time

	Results         []*scanner.Result
	Recommendations []*models.Recommendation
	Cost            *models.CostSummary

	TotalSavings     float64
	WorkloadCount    int
	OptimizableCount int
	RejectedCount    int
	FailedCount      int

	EnvironmentStats map[string]*EnvironmentStats
	KindStats        map[string]*KindStats
}

// EnvironmentStats holds statistics per environment
type EnvironmentStats struct {
	Environment     string
	WorkloadCount   int
	TotalSavings    float64
	Recommendations int
	Rejected        int
}

// KindStats holds statistics per workload kind
type KindStats struct {
	Kind             string
	Count            int
	TotalSavings     float64
	Recommendations  int
	OptimizationRate float64 // Percentage of workloads optimizable
}

// Generate builds a report from a scan
func Generate(scan *scanner.Report, clusterName string, generatedAt time.Time) *Report {
	report := &Report{
		ClusterName:      clusterName,
		Namespace:        scan.Namespace,
		DataSource:       scan.DataSource,
		GeneratedAt:      generatedAt,
		Results:          scan.Results,
		Cost:             scan.Cost,
		FailedCount:      scan.Failed,
		EnvironmentStats: make(map[string]*EnvironmentStats),
		KindStats:        make(map[string]*KindStats),
	}
	for _, res := range scan.Results {
		if res.Recommendation != nil {
			report.Recommendations = append(report.Recommendations, res.Recommendation)
		}
	}

	calculateStats(report)
	return report
}

// calculateStats computes all statistics for the report
func calculateStats(report *Report) {
	for _, rec := range report.Recommendations {
		report.WorkloadCount++
		optimizable := rec.Actionable()
		rejected := rec.Assessment != nil && !rec.Assessment.Approved()

		if optimizable {
			report.OptimizableCount++
			report.TotalSavings += rec.SavingsMonthly
		}
		if rejected {
			report.RejectedCount++
		}

		env := rec.Environment
		if env == "" {
			env = "unknown"
		}
		envStat, ok := report.EnvironmentStats[env]
		if !ok {
			envStat = &EnvironmentStats{Environment: env}
			report.EnvironmentStats[env] = envStat
		}
		envStat.WorkloadCount++
		if optimizable {
			envStat.Recommendations++
			envStat.TotalSavings += rec.SavingsMonthly
		}
		if rejected {
			envStat.Rejected++
		}

		kind := string(rec.Workload.Kind)
		kindStat, ok := report.KindStats[kind]
		if !ok {
			kindStat = &KindStats{Kind: kind}
			report.KindStats[kind] = kindStat
		}
		kindStat.Count++
		if optimizable {
			kindStat.Recommendations++
			kindStat.TotalSavings += rec.SavingsMonthly
		}
	}

	for _, stat := range report.KindStats {
		if stat.Count > 0 {
			stat.OptimizationRate = float64(stat.Recommendations) / float64(stat.Count) * 100
		}
	}
}

// SortedEnvironments returns environment stats ordered by name
func (r *Report) SortedEnvironments() []*EnvironmentStats {
	out := make([]*EnvironmentStats, 0, len(r.EnvironmentStats))
	for _, s := range r.EnvironmentStats {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Environment < out[j].Environment })
	return out
}

// SortedKinds returns kind stats ordered by name
func (r *Report) SortedKinds() []*KindStats {
	out := make([]*KindStats, 0, len(r.KindStats))
	for _, s := range r.KindStats {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

// Write renders the report in the given format
func Write(report *Report, format ReportFormat, w io.Writer) error {
	switch format {
	case FormatHTML:
		return GenerateHTML(report, w)
	case FormatMarkdown:
		return GenerateMarkdown(report, w)
	case FormatCSV:
		return GenerateCSV(report, w)
	default:
		return fmt.Errorf("unsupported report format: %s", format)
	}
}
