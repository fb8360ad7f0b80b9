package reporter

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opscart/k8s-zero-scaler/pkg/models"
	"github.com/opscart/k8s-zero-scaler/pkg/scanner"
)

var generatedAt = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func sampleScan() *scanner.Report {
	idle := &models.Workload{Kind: models.KindDeployment, Namespace: "shop", Name: "api", Environment: "development", CurrentReplicas: 3}
	busy := &models.Workload{Kind: models.KindDeployment, Namespace: "shop", Name: "web", Environment: "development", CurrentReplicas: 2}
	critical := &models.Workload{Kind: models.KindStatefulSet, Namespace: "payments", Name: "ledger", Environment: "production", CurrentReplicas: 2}

	return &scanner.Report{
		DataSource: "static",
		Results: []*scanner.Result{
			{Workload: idle, Recommendation: &models.Recommendation{
				Type: models.RecommendationScaleToZero, Workload: idle, Environment: "development",
				Confidence:     &models.ConfidenceRecord{IdleConfidence: 0.993},
				Assessment:     &models.SafetyAssessment{Decision: models.GateApproved, RiskLevel: models.RiskLow},
				TargetReplicas: 0, SavingsMonthly: 61.5, Impact: "HIGH", Risk: models.RiskLow,
				Reason:  "Only health-check traffic | 72h",
				Command: "kubectl scale deployment api -n shop --replicas=0",
			}},
			{Workload: busy, Recommendation: &models.Recommendation{
				Type: models.RecommendationNoAction, Workload: busy, Environment: "development",
				Assessment: &models.SafetyAssessment{Decision: models.GateRejected, RiskLevel: models.RiskHigh},
				Risk:       models.RiskHigh, Reason: "Safety gate rejected: idle confidence 0.2 below threshold",
			}},
			{Workload: critical, Recommendation: &models.Recommendation{
				Type: models.RecommendationNoAction, Workload: critical, Environment: "production",
				Assessment: &models.SafetyAssessment{Decision: models.GateRejected, RiskLevel: models.RiskCritical},
				Risk:       models.RiskCritical, Reason: "Safety gate rejected: production-critical",
			}},
			{Workload: &models.Workload{Namespace: "shop", Name: "broken"}, Error: "telemetry unavailable"},
		},
		Failed: 1,
	}
}

func TestGenerateStats(t *testing.T) {
	report := Generate(sampleScan(), "kind-local", generatedAt)

	assert.Equal(t, 3, report.WorkloadCount)
	assert.Equal(t, 1, report.OptimizableCount)
	assert.Equal(t, 2, report.RejectedCount)
	assert.Equal(t, 1, report.FailedCount)
	assert.InDelta(t, 61.5, report.TotalSavings, 0.001)

	dev := report.EnvironmentStats["development"]
	require.NotNil(t, dev)
	assert.Equal(t, 2, dev.WorkloadCount)
	assert.Equal(t, 1, dev.Recommendations)
	assert.Equal(t, 1, dev.Rejected)

	deployments := report.KindStats["Deployment"]
	require.NotNil(t, deployments)
	assert.InDelta(t, 50.0, deployments.OptimizationRate, 0.001)

	envs := report.SortedEnvironments()
	require.Len(t, envs, 2)
	assert.Equal(t, "development", envs[0].Environment)
}

func TestGenerateCSV(t *testing.T) {
	report := Generate(sampleScan(), "kind-local", generatedAt)

	var buf bytes.Buffer
	require.NoError(t, GenerateCSV(report, &buf))

	r := csv.NewReader(&buf)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	require.NoError(t, err)
	require.Greater(t, len(rows), 4)

	assert.Equal(t, "Namespace", rows[0][0])
	assert.Equal(t, []string{"shop", "api", "Deployment", "development", "SCALE_TO_ZERO", "3", "0", "0.993", "LOW", "APPROVED", "61.50", "HIGH", "Only health-check traffic | 72h"}, rows[1])
	assert.Equal(t, "REJECTED", rows[3][9])
}

func TestGenerateHTMLAndMarkdown(t *testing.T) {
	report := Generate(sampleScan(), "kind-local", generatedAt)

	var html bytes.Buffer
	require.NoError(t, Write(report, FormatHTML, &html))
	assert.Contains(t, html.String(), "shop/api")
	assert.Contains(t, html.String(), "61.50")
	assert.Contains(t, html.String(), "kubectl scale deployment api -n shop --replicas=0")

	var md bytes.Buffer
	require.NoError(t, Write(report, FormatMarkdown, &md))
	out := md.String()
	assert.Contains(t, out, "| shop/api | Deployment | SCALE_TO_ZERO | 3 -> 0 | 0.993 | LOW | 61.50 |")
	assert.Contains(t, out, `Only health-check traffic \| 72h`)
	assert.True(t, strings.HasPrefix(out, "# Zero-Pod Scaling Report"))
}

func TestGenerateActionsCSV(t *testing.T) {
	completed := generatedAt.Add(24 * time.Hour)
	actions := []*models.ScalingAction{{
		ID: "a1", Workload: "shop/api", Type: models.ActionScaleToZero, FromReplicas: 3, TargetReplicas: 0,
		State: models.StateRolledBack, Attempts: 1, CreatedAt: generatedAt, CompletedAt: &completed,
		RollbackLatency: 42 * time.Second, MonthlySavings: 61.5, Reason: "business request",
	}}

	var buf bytes.Buffer
	require.NoError(t, GenerateActionsCSV(actions, &buf))
	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "ROLLED_BACK", rows[1][5])
	assert.Equal(t, "2025-03-02T12:00:00Z", rows[1][8])
	assert.Equal(t, "42s", rows[1][9])
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("md")
	require.NoError(t, err)
	assert.Equal(t, FormatMarkdown, f)
	assert.Equal(t, ".md", f.Extension())

	_, err = ParseFormat("pdf")
	assert.Error(t, err)
}
