// Package safety turns idle confidence and workload metadata into a risk verdict and gate decision.
package safety

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"k8s.io/utils/clock"

	"github.com/opscart/k8s-zero-scaler/pkg/logging"
	"github.com/opscart/k8s-zero-scaler/pkg/models"
)

var (
	// ErrStaleConfidence is returned when a confidence record is past its TTL
	ErrStaleConfidence = errors.New("confidence record expired")
	// ErrOutOfOrder is returned when an assessment would predate its confidence record
	ErrOutOfOrder = errors.New("assessment cannot precede its confidence record")
	// ErrStaleAssessment is returned when an assessment is past its TTL
	ErrStaleAssessment = errors.New("safety assessment expired")
)

// GateRejectedError is returned when the safety gate refuses an action
type GateRejectedError struct {
	Workload string
	Risk     models.RiskLevel
	Reasons  []string
}

func (e *GateRejectedError) Error() string {
	return fmt.Sprintf("safety gate rejected %s (risk %s): %s", e.Workload, e.Risk, strings.Join(e.Reasons, "; "))
}

// Policy holds the risk thresholds and gate parameters
type Policy struct {
	LowThreshold    float64
	MediumThreshold float64
	HighThreshold   float64

	// Minimum idle confidence the gate accepts
	ConfidenceThreshold float64

	AssessmentTTL          time.Duration
	DefaultRollbackLatency time.Duration

	// "namespace/name" or "namespace/*" to minimum risk level
	Overrides map[string]models.RiskLevel
}

// DefaultPolicy returns the default risk policy
func DefaultPolicy() Policy {
	return Policy{
		LowThreshold:           0.95,
		MediumThreshold:        0.85,
		HighThreshold:          0.50,
		ConfidenceThreshold:    0.85,
		AssessmentTTL:          5 * time.Minute,
		DefaultRollbackLatency: 30 * time.Second,
	}
}

// Validate checks the policy for consistency
func (p Policy) Validate() error {
	if !(p.LowThreshold >= p.MediumThreshold && p.MediumThreshold >= p.HighThreshold) {
		return fmt.Errorf("risk thresholds must satisfy low >= medium >= high")
	}
	if p.HighThreshold < 0 || p.LowThreshold > 1 {
		return fmt.Errorf("risk thresholds must be within [0, 1]")
	}
	if p.ConfidenceThreshold <= 0 || p.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence threshold must be in (0, 1]")
	}
	if p.AssessmentTTL <= 0 {
		return fmt.Errorf("assessment TTL must be > 0")
	}
	if p.DefaultRollbackLatency <= 0 {
		return fmt.Errorf("default rollback latency must be > 0")
	}
	for key, level := range p.Overrides {
		if _, ok := models.ParseRiskLevel(string(level)); !ok {
			return fmt.Errorf("invalid risk level %q for override %s", level, key)
		}
		if _, _, err := models.ParseWorkloadKey(key); err != nil {
			return fmt.Errorf("invalid risk override: %w", err)
		}
	}
	return nil
}

// BaseRisk maps idle confidence onto a risk level
func (p Policy) BaseRisk(confidence float64) models.RiskLevel {
	switch {
	case confidence >= p.LowThreshold:
		return models.RiskLow
	case confidence >= p.MediumThreshold:
		return models.RiskMedium
	case confidence >= p.HighThreshold:
		return models.RiskHigh
	default:
		return models.RiskCritical
	}
}

func (p Policy) override(w *models.Workload) (models.RiskLevel, bool) {
	if level, ok := p.Overrides[w.Key()]; ok {
		return level, true
	}
	if level, ok := p.Overrides[models.WorkloadKey(w.Namespace, "*")]; ok {
		return level, true
	}
	return "", false
}

// Analyzer produces safety assessments
type Analyzer struct {
	policy    Policy
	latencies *LatencyHistory
	clock     clock.PassiveClock
	logger    *zap.Logger
}

// NewAnalyzer creates a safety analyzer
func NewAnalyzer(policy Policy, latencies *LatencyHistory, clk clock.PassiveClock, logger *zap.Logger) (*Analyzer, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if latencies == nil {
		latencies = NewLatencyHistory(0)
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Analyzer{
		policy:    policy,
		latencies: latencies,
		clock:     clk,
		logger:    logging.OrNop(logger).Named("safety"),
	}, nil
}

// Policy returns the analyzer's policy
func (a *Analyzer) Policy() Policy { return a.policy }

// Latencies returns the rollback latency history
func (a *Analyzer) Latencies() *LatencyHistory { return a.latencies }

// Assess computes the risk level, rollback plan and gate decision for a workload.
// The confidence record must be unexpired and not stamped later than the assessment clock.
func (a *Analyzer) Assess(w *models.Workload, conf *models.ConfidenceRecord) (*models.SafetyAssessment, error) {
	if w == nil || conf == nil {
		return nil, fmt.Errorf("workload and confidence record are required")
	}
	if conf.Workload != w.Key() {
		return nil, fmt.Errorf("confidence record for %s cannot assess %s", conf.Workload, w.Key())
	}

	now := a.clock.Now()
	if now.Before(conf.ComputedAt) {
		return nil, fmt.Errorf("%s: %w", w.Key(), ErrOutOfOrder)
	}
	if conf.Expired(now) {
		return nil, fmt.Errorf("%s: confidence computed at %s: %w", w.Key(), conf.ComputedAt.Format(time.RFC3339), ErrStaleConfidence)
	}

	assessment := &models.SafetyAssessment{
		Workload:             w.Key(),
		IdleConfidence:       conf.IdleConfidence,
		RiskLevel:            a.riskLevel(w, conf),
		RollbackPlan:         RollbackPlanFor(w),
		ConfidenceComputedAt: conf.ComputedAt,
		ComputedAt:           now,
		ValidUntil:           now.Add(a.policy.AssessmentTTL),
	}

	assessment.EstimatedRollbackLatency = a.policy.DefaultRollbackLatency
	if p95, ok := a.latencies.P95(w.Key()); ok {
		assessment.EstimatedRollbackLatency = p95
	}

	var reasons []string
	if conf.InsufficientData {
		reasons = append(reasons, "insufficient traffic data in analysis window")
	}
	if !assessment.RiskLevel.Actionable() {
		reasons = append(reasons, fmt.Sprintf("risk level %s exceeds %s", assessment.RiskLevel, models.RiskMedium))
	}
	if conf.IdleConfidence < a.policy.ConfidenceThreshold {
		reasons = append(reasons, fmt.Sprintf("idle confidence %.3f below threshold %.3f", conf.IdleConfidence, a.policy.ConfidenceThreshold))
	}
	if assessment.RollbackPlan == nil {
		reasons = append(reasons, "no baseline replica count to restore")
	}
	if !GetKindConfig(w.Kind).ScaleToZero {
		reasons = append(reasons, fmt.Sprintf("workload kind %q is not supported", w.Kind))
	}

	assessment.Decision = models.GateApproved
	if len(reasons) > 0 {
		assessment.Decision = models.GateRejected
		assessment.Reasons = reasons
	}

	a.logger.Debug("Assessed workload",
		zap.String("workload", w.Key()),
		zap.Float64("idle_confidence", conf.IdleConfidence),
		zap.String("risk", string(assessment.RiskLevel)),
		zap.String("decision", string(assessment.Decision)),
		zap.Strings("reasons", reasons))

	return assessment, nil
}

func (a *Analyzer) riskLevel(w *models.Workload, conf *models.ConfidenceRecord) models.RiskLevel {
	risk := a.policy.BaseRisk(conf.IdleConfidence)
	if conf.InsufficientData {
		risk = models.RiskCritical
	}

	if len(w.InboundDependencies()) > 0 {
		risk = risk.Escalate(1)
	}
	if EffectiveCriticality(w) == models.CriticalityProductionCritical {
		risk = risk.AtLeast(models.RiskMedium)
	}
	risk = risk.AtLeast(GetKindConfig(w.Kind).RiskFloor)

	if floor, ok := a.policy.override(w); ok {
		risk = risk.AtLeast(floor)
	}
	return risk
}

// Validate checks that an assessment still lets an action through at now
func (a *Analyzer) Validate(assessment *models.SafetyAssessment) error {
	return CheckGate(assessment, a.clock.Now(), a.policy.ConfidenceThreshold)
}

// CheckGate returns nil only for an approved, unexpired assessment with a rollback plan whose
// risk is LOW or MEDIUM and whose idle confidence meets minConfidence. The values are checked
// independently of the recorded decision.
func CheckGate(assessment *models.SafetyAssessment, now time.Time, minConfidence float64) error {
	if assessment == nil {
		return &GateRejectedError{Reasons: []string{"no safety assessment"}}
	}
	if assessment.Expired(now) {
		return fmt.Errorf("%s: assessment computed at %s: %w", assessment.Workload, assessment.ComputedAt.Format(time.RFC3339), ErrStaleAssessment)
	}
	if !assessment.Approved() {
		return &GateRejectedError{Workload: assessment.Workload, Risk: assessment.RiskLevel, Reasons: assessment.Reasons}
	}

	var reasons []string
	if !assessment.RiskLevel.Actionable() {
		reasons = append(reasons, fmt.Sprintf("risk level %s exceeds %s", assessment.RiskLevel, models.RiskMedium))
	}
	if assessment.IdleConfidence < minConfidence {
		reasons = append(reasons, fmt.Sprintf("idle confidence %.3f below threshold %.3f", assessment.IdleConfidence, minConfidence))
	}
	if assessment.RollbackPlan == nil {
		reasons = append(reasons, "no rollback plan")
	}
	if len(reasons) > 0 {
		return &GateRejectedError{Workload: assessment.Workload, Risk: assessment.RiskLevel, Reasons: reasons}
	}
	return nil
}

// RollbackPlanFor captures the pre-action state of a workload, or nil when there is nothing to restore to
func RollbackPlanFor(w *models.Workload) *models.RollbackPlan {
	replicas := w.RestoreReplicas()
	if replicas <= 0 {
		return nil
	}
	return &models.RollbackPlan{
		BaselineReplicas: replicas,
		Restore: models.RestoreProcedure{
			Kind:      w.Kind,
			Namespace: w.Namespace,
			Name:      w.Name,
			Replicas:  replicas,
			Command:   ScaleCommand(w.Kind, w.Namespace, w.Name, replicas),
		},
	}
}

// ScaleCommand renders the equivalent kubectl command
func ScaleCommand(kind models.WorkloadKind, namespace, name string, replicas int32) string {
	return fmt.Sprintf("kubectl scale %s/%s --replicas=%d -n %s", strings.ToLower(string(kind)), name, replicas, namespace)
}
