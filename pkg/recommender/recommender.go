// Package recommender turns an analysis cycle's confidence, assessment and cost into a recommendation.
package recommender

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/opscart/k8s-zero-scaler/pkg/cost"
	"github.com/opscart/k8s-zero-scaler/pkg/models"
	"github.com/opscart/k8s-zero-scaler/pkg/safety"
)

const (
	ImpactHigh   = "HIGH"
	ImpactMedium = "MEDIUM"
	ImpactLow    = "LOW"
	ImpactNone   = "NONE"
)

type Recommender struct {
	calculator *cost.Calculator
	minSavings float64
}

// New creates a recommender. Actions saving less than minSavings per month are not recommended.
func New(calculator *cost.Calculator, minSavings float64) *Recommender {
	if minSavings < 0 {
		minSavings = 0
	}
	return &Recommender{
		calculator: calculator,
		minSavings: minSavings,
	}
}

// Recommend decides between scale to zero, rightsizing to the warm floor and no action
func (r *Recommender) Recommend(ctx context.Context, w *models.Workload, conf *models.ConfidenceRecord, assessment *models.SafetyAssessment) (*models.Recommendation, error) {
	rec := &models.Recommendation{
		ID:          uuid.New().String(),
		Workload:    w,
		Environment: w.Environment,
		Confidence:  conf,
		Assessment:  assessment,
		Type:        models.RecommendationNoAction,
		Impact:      ImpactNone,
	}
	if assessment != nil {
		rec.Risk = assessment.RiskLevel
		rec.CreatedAt = assessment.ComputedAt
	}

	if w.CurrentReplicas == 0 {
		rec.Reason = "Already scaled to zero"
		return rec, nil
	}

	// the estimate is reported for every running workload, including rejected ones
	target := int32(0)
	if w.MinReplicas > 0 {
		target = w.MinReplicas
		if target > w.CurrentReplicas {
			target = w.CurrentReplicas
		}
	}
	estimate, err := r.calculator.Estimate(ctx, w, target)
	if err != nil {
		return nil, fmt.Errorf("failed to estimate cost for %s: %w", w.Key(), err)
	}
	rec.Cost = estimate

	if assessment == nil || !assessment.Approved() {
		rec.Reason = rejectionReason(assessment)
		return rec, nil
	}
	if w.MinReplicas > 0 && w.MinReplicas >= w.CurrentReplicas {
		rec.Reason = fmt.Sprintf("Idle, but already at the warm floor of %d replicas", w.MinReplicas)
		return rec, nil
	}

	rec.Type = models.RecommendationScaleToZero
	if target > 0 {
		rec.Type = models.RecommendationRightSize
	}
	rec.SavingsMonthly = estimate.Savings

	if estimate.Savings < r.minSavings {
		rec.Type = models.RecommendationNoAction
		rec.Reason = fmt.Sprintf("Savings too small to justify change (%.2f %s/month)", estimate.Savings, estimate.Currency)
		return rec, nil
	}

	rec.TargetReplicas = target
	rec.Impact = impactFor(estimate.Savings)
	rec.Command = safety.ScaleCommand(w.Kind, w.Namespace, w.Name, target)
	rec.Reason = idleReason(conf, assessment)
	return rec, nil
}

func impactFor(savings float64) string {
	switch {
	case savings > 50:
		return ImpactHigh
	case savings > 20:
		return ImpactMedium
	default:
		return ImpactLow
	}
}

func idleReason(conf *models.ConfidenceRecord, assessment *models.SafetyAssessment) string {
	if conf == nil {
		return fmt.Sprintf("Idle (confidence %.3f)", assessment.IdleConfidence)
	}
	window := conf.WindowEnd.Sub(conf.WindowStart)
	return fmt.Sprintf("Only health-check traffic for %s: %d probes, %d business requests (confidence %.3f)",
		window, conf.Summary.HealthCheck, conf.Summary.Business, conf.IdleConfidence)
}

func rejectionReason(assessment *models.SafetyAssessment) string {
	if assessment == nil {
		return "No safety assessment"
	}
	if len(assessment.Reasons) == 0 {
		return fmt.Sprintf("Safety gate rejected (risk %s)", assessment.RiskLevel)
	}
	return "Safety gate rejected: " + strings.Join(assessment.Reasons, "; ")
}

// Describe renders a recommendation for terminal output
func Describe(r *models.Recommendation) string {
	if r.Type == models.RecommendationNoAction {
		return fmt.Sprintf("[%s] %s: %s", r.Impact, r.Workload.Key(), r.Reason)
	}

	currency := ""
	if r.Cost != nil {
		currency = r.Cost.Currency
	}
	return fmt.Sprintf(
		"[%s] %s: %s\n"+
			"  Current: %d replicas x %dm CPU, %dMi memory\n"+
			"  Recommendation: scale to %d replicas\n"+
			"  Savings: %.2f %s/month\n"+
			"  Risk: %s\n"+
			"  Command: %s",
		r.Impact,
		r.Workload.Key(),
		r.Reason,
		r.Workload.CurrentReplicas,
		r.Workload.RequestedCPU,
		r.Workload.RequestedMemory/(1024*1024),
		r.TargetReplicas,
		r.SavingsMonthly,
		currency,
		r.Risk,
		r.Command,
	)
}
