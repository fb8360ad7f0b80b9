package reporter

import (
	"fmt"
	"html/template"
	"io"
	"strings"
)

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>Zero-Pod Scaling Report - {{.ClusterName}}</title>
    <style>
        body { font-family: -apple-system, 'Segoe UI', Roboto, Arial, sans-serif; background: #f4f6f8; color: #24292f; margin: 0; padding: 24px; }
        main { max-width: 1280px; margin: 0 auto; background: #fff; border: 1px solid #d0d7de; border-radius: 6px; }
        header { padding: 28px 32px; border-bottom: 1px solid #d0d7de; }
        header h1 { margin: 0 0 8px; font-size: 1.8em; }
        header p { margin: 2px 0; color: #57606a; }
        .cards { display: flex; flex-wrap: wrap; gap: 16px; padding: 24px 32px; }
        .card { flex: 1 1 200px; border: 1px solid #d0d7de; border-radius: 6px; padding: 16px; }
        .card h3 { margin: 0 0 6px; font-size: 0.8em; text-transform: uppercase; color: #57606a; }
        .card .value { font-size: 2em; font-weight: 600; }
        section { padding: 8px 32px 24px; }
        table { width: 100%; border-collapse: collapse; font-size: 0.92em; }
        th, td { text-align: left; padding: 8px 10px; border-bottom: 1px solid #eaeef2; vertical-align: top; }
        th { background: #f6f8fa; }
        .tag { padding: 2px 8px; border-radius: 10px; font-size: 0.8em; font-weight: 600; }
        .scale_to_zero { background: #dafbe1; color: #1a7f37; }
        .right_size { background: #ddf4ff; color: #0969da; }
        .no_action { background: #eaeef2; color: #57606a; }
        .risk-low { color: #1a7f37; }
        .risk-medium { color: #9a6700; }
        .risk-high, .risk-critical { color: #cf222e; font-weight: 600; }
        footer { padding: 16px 32px; color: #57606a; border-top: 1px solid #d0d7de; font-size: 0.85em; }
    </style>
</head>
<body>
<main>
    <header>
        <h1>Zero-Pod Scaling Report</h1>
        <p><strong>Cluster:</strong> {{.ClusterName}} | <strong>Namespace:</strong> {{if .Namespace}}{{.Namespace}}{{else}}all namespaces{{end}}</p>
        <p><strong>Traffic source:</strong> {{.DataSource}}</p>
        <p><strong>Generated:</strong> {{.GeneratedAt.Format "2006-01-02 15:04:05 MST"}}</p>
    </header>

    <div class="cards">
        <div class="card"><h3>Monthly savings</h3><div class="value">{{money .TotalSavings}}</div></div>
        <div class="card"><h3>Workloads analyzed</h3><div class="value">{{.WorkloadCount}}</div></div>
        <div class="card"><h3>Scale-down opportunities</h3><div class="value">{{.OptimizableCount}}</div></div>
        <div class="card"><h3>Rejected by safety gate</h3><div class="value">{{.RejectedCount}}</div></div>
        {{if .FailedCount}}<div class="card"><h3>Failed analyses</h3><div class="value">{{.FailedCount}}</div></div>{{end}}
    </div>

    {{with .SortedEnvironments}}
    <section>
        <h2>By environment</h2>
        <table>
            <thead><tr><th>Environment</th><th>Workloads</th><th>Recommendations</th><th>Rejected</th><th>Savings/month</th></tr></thead>
            <tbody>
            {{range .}}
                <tr><td>{{.Environment}}</td><td>{{.WorkloadCount}}</td><td>{{.Recommendations}}</td><td>{{.Rejected}}</td><td>{{money .TotalSavings}}</td></tr>
            {{end}}
            </tbody>
        </table>
    </section>
    {{end}}

    <section>
        <h2>Workloads</h2>
        <table>
            <thead>
                <tr><th>Workload</th><th>Environment</th><th>Recommendation</th><th>Replicas</th><th>Idle confidence</th><th>Risk</th><th>Savings/month</th><th>Reason</th></tr>
            </thead>
            <tbody>
            {{range .Recommendations}}
                <tr>
                    <td><strong>{{.Workload.Namespace}}/{{.Workload.Name}}</strong><br>{{.Workload.Kind}}</td>
                    <td>{{.Environment}}</td>
                    <td><span class="tag {{lower .Type}}">{{.Type}}</span></td>
                    <td>{{.Workload.CurrentReplicas}}{{if .Actionable}} &rarr; {{.TargetReplicas}}{{end}}</td>
                    <td>{{with .Confidence}}{{printf "%.3f" .IdleConfidence}}{{end}}</td>
                    <td><span class="risk-{{lower .Risk}}">{{.Risk}}</span></td>
                    <td>{{if .Actionable}}{{money .SavingsMonthly}}{{end}}</td>
                    <td>{{.Reason}}{{if .Command}}<br><code>{{.Command}}</code>{{end}}</td>
                </tr>
            {{end}}
            </tbody>
        </table>
    </section>

    <footer>Generated by k8s-zero-scaler. Dry-run analysis: no workload was modified.</footer>
</main>
</body>
</html>
`

var reportTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"lower": func(s interface{}) string {
		return strings.ToLower(fmt.Sprintf("%v", s))
	},
	"money": func(v float64) string {
		return fmt.Sprintf("%.2f", v)
	},
}).Parse(htmlTemplate))

// GenerateHTML creates an HTML report
func GenerateHTML(report *Report, writer io.Writer) error {
	if err := reportTemplate.Execute(writer, report); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}
	return nil
}
