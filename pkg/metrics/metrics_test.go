package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/opscart/k8s-zero-scaler/pkg/models"
)

func TestOnTransitionTracksLifecycle(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)

	action := models.ScalingAction{ID: "a1", Workload: "shop/api", Type: models.ActionScaleToZero, State: models.StatePending, MonthlySavings: 42}
	steps := []models.ActionState{models.StateApplying, models.StateMonitoring, models.StateConfirmed}

	r.OnTransition(action, "")
	assert.Equal(t, 1.0, testutil.ToFloat64(r.active.WithLabelValues("PENDING")))

	from := action.State
	for _, to := range steps {
		action.State = to
		r.OnTransition(action, from)
		from = to
	}

	assert.Equal(t, 0.0, testutil.ToFloat64(r.active.WithLabelValues("PENDING")))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.active.WithLabelValues("MONITORING")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.transitions.WithLabelValues("scale_to_zero", "CONFIRMED")))
	assert.Equal(t, 42.0, testutil.ToFloat64(r.realizedSavings))
}

func TestOnTransitionObservesRestoreLatency(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)

	rolledBack := models.ScalingAction{Type: models.ActionScaleToZero, State: models.StateRolledBack, RollbackLatency: 20 * time.Second, MonthlySavings: 10}
	r.OnTransition(rolledBack, models.StateMonitoring)

	restored := models.ScalingAction{Type: models.ActionScaleUp, State: models.StateConfirmed, RollbackLatency: 40 * time.Second}
	r.OnTransition(restored, models.StateApplying)

	assert.Equal(t, 2, testutil.CollectAndCount(r.rollbackLatency))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.realizedSavings), "rollbacks and restores realize nothing")
}

func TestObserveAnalysis(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)
	w := &models.Workload{Namespace: "shop", Name: "api"}

	r.ObserveConfidence(&models.ConfidenceRecord{Workload: w.Key(), IdleConfidence: 0.97})
	r.ObserveAssessment(&models.SafetyAssessment{Decision: models.GateApproved, RiskLevel: models.RiskLow})
	r.ObserveAssessment(&models.SafetyAssessment{Decision: models.GateRejected, RiskLevel: models.RiskCritical})
	r.ObserveRecommendation(&models.Recommendation{Type: models.RecommendationScaleToZero, Workload: w, SavingsMonthly: 55})

	assert.Equal(t, 0.97, testutil.ToFloat64(r.idleConfidence.WithLabelValues("shop/api")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.gateDecisions.WithLabelValues("REJECTED", "CRITICAL")))
	assert.Equal(t, 55.0, testutil.ToFloat64(r.recommended.WithLabelValues("shop/api", "SCALE_TO_ZERO")))

	// busy again: the stale series is dropped
	r.ObserveRecommendation(&models.Recommendation{Type: models.RecommendationNoAction, Workload: w})
	assert.Equal(t, 0, testutil.CollectAndCount(r.recommended))

	r.ObserveConfidence(nil)
	r.ObserveAssessment(nil)
	r.ObserveRecommendation(nil)
}
