package output

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/opscart/k8s-zero-scaler/pkg/models"
	"github.com/opscart/k8s-zero-scaler/pkg/scanner"
)

func sampleReport() *scanner.Report {
	idle := &models.Workload{Kind: models.KindDeployment, Namespace: "shop", Name: "api", CurrentReplicas: 3, RequestedCPU: 250, RequestedMemory: 256 << 20}
	busy := &models.Workload{Kind: models.KindDeployment, Namespace: "shop", Name: "web", CurrentReplicas: 2}
	return &scanner.Report{
		DataSource: "static",
		Results: []*scanner.Result{
			{
				Workload:   idle,
				Summary:    models.ClassificationSummary{HealthCheck: 4320, Total: 4320},
				Confidence: &models.ConfidenceRecord{Workload: "shop/api", IdleConfidence: 0.995},
				Assessment: &models.SafetyAssessment{Decision: models.GateApproved, RiskLevel: models.RiskLow},
				Recommendation: &models.Recommendation{
					Type: models.RecommendationScaleToZero, Workload: idle, Impact: "HIGH",
					Reason: "Only health-check traffic", SavingsMonthly: 61.5, Risk: models.RiskLow,
					Command: "kubectl scale deployment api -n shop --replicas=0",
				},
			},
			{
				Workload:       busy,
				Summary:        models.ClassificationSummary{HealthCheck: 100, Business: 900, Total: 1000},
				Recommendation: &models.Recommendation{Type: models.RecommendationNoAction, Workload: busy, Impact: "NONE"},
			},
			{Workload: &models.Workload{Namespace: "shop", Name: "broken"}, Error: "telemetry unavailable"},
		},
		Cost:   &models.CostSummary{Cluster: models.CostTotals{Workloads: 1, MonthlyCostBefore: 61.5, Savings: 61.5}},
		Failed: 1,
	}
}

func TestTextHandlerReport(t *testing.T) {
	var buf bytes.Buffer
	h, err := NewHandler("text", &buf)
	require.NoError(t, err)

	require.NoError(t, h.DisplayReport(context.Background(), sampleReport()))
	out := buf.String()
	assert.Contains(t, out, "shop/api")
	assert.Contains(t, out, "0.995")
	assert.Contains(t, out, "error: telemetry unavailable")
	assert.Contains(t, out, "kubectl scale deployment api -n shop --replicas=0")
	assert.Contains(t, out, "Total potential savings: 61.50/month")
	assert.Contains(t, out, "1 workload(s) could not be analyzed")
}

func TestCommandsHandler(t *testing.T) {
	var buf bytes.Buffer
	h, err := NewHandler("commands", &buf)
	require.NoError(t, err)

	require.NoError(t, h.DisplayReport(context.Background(), sampleReport()))
	assert.Equal(t, "kubectl scale deployment api -n shop --replicas=0\n", buf.String())

	buf.Reset()
	actions := []models.ScalingAction{
		{Type: models.ActionScaleToZero, State: models.StateConfirmed, Assessment: &models.SafetyAssessment{
			RollbackPlan: &models.RollbackPlan{Restore: models.RestoreProcedure{Command: "kubectl scale deployment api -n shop --replicas=3"}},
		}},
		{Type: models.ActionScaleToZero, State: models.StateRolledBack},
	}
	require.NoError(t, h.DisplayActions(context.Background(), actions))
	assert.Equal(t, "kubectl scale deployment api -n shop --replicas=3\n", buf.String())
}

func TestStructuredHandlers(t *testing.T) {
	actions := []models.ScalingAction{{ID: "a1", Workload: "shop/api", State: models.StateMonitoring, CreatedAt: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)}}

	var jsonBuf bytes.Buffer
	h, err := NewHandler("json", &jsonBuf)
	require.NoError(t, err)
	require.NoError(t, h.DisplayActions(context.Background(), actions))

	var decoded struct {
		Actions []models.ScalingAction `json:"actions"`
		Count   int                    `json:"count"`
	}
	require.NoError(t, json.Unmarshal(jsonBuf.Bytes(), &decoded))
	assert.Equal(t, 1, decoded.Count)
	assert.Equal(t, models.StateMonitoring, decoded.Actions[0].State)

	var yamlBuf bytes.Buffer
	h, err = NewHandler("yaml", &yamlBuf)
	require.NoError(t, err)
	require.NoError(t, h.DisplayAudit(context.Background(), nil))

	var doc map[string]interface{}
	require.NoError(t, yaml.Unmarshal(yamlBuf.Bytes(), &doc))
	assert.Equal(t, 0, doc["count"])
}

func TestTextHandlerActionsAndAudit(t *testing.T) {
	var buf bytes.Buffer
	h := &TextHandler{w: &buf}

	require.NoError(t, h.DisplayActions(context.Background(), nil))
	assert.Contains(t, buf.String(), "No scaling actions found")

	buf.Reset()
	actions := []models.ScalingAction{{
		ID: "0123456789abcdef", Workload: "shop/api", Type: models.ActionScaleToZero,
		FromReplicas: 3, State: models.StateRolledBack, RollbackLatency: 42 * time.Second,
		Reason: "business request at 2025-03-01T03:00:00Z (rule default)",
	}}
	require.NoError(t, h.DisplayActions(context.Background(), actions))
	out := buf.String()
	assert.Contains(t, out, "01234567 ")
	assert.Contains(t, out, "3 -> 0")
	assert.Contains(t, out, "42s")

	buf.Reset()
	require.NoError(t, h.DisplayAudit(context.Background(), []*models.AuditEntry{
		{Workload: "shop/api", Action: models.StateFailed, Status: models.AuditFailed, ErrorMessage: "rollback failed"},
	}))
	assert.True(t, strings.HasPrefix(buf.String(), "Audit Log:"))
	assert.Contains(t, buf.String(), "Error: rollback failed")
}

func TestNewHandlerRejectsUnknownFormat(t *testing.T) {
	_, err := NewHandler("xml", &bytes.Buffer{})
	assert.Error(t, err)
}
