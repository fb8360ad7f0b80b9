// Package metrics exports Prometheus collectors for analysis cycles and scaling actions.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/opscart/k8s-zero-scaler/pkg/models"
)

const namespace = "zero_scaler"

// Recorder holds the collectors. It satisfies orchestrator.Observer.
type Recorder struct {
	transitions     *prometheus.CounterVec
	active          *prometheus.GaugeVec
	rollbackLatency prometheus.Histogram
	realizedSavings prometheus.Counter

	gateDecisions  *prometheus.CounterVec
	idleConfidence *prometheus.GaugeVec
	recommended    *prometheus.GaugeVec
}

// NewRecorder registers the collectors with reg; nil uses the default registerer
func NewRecorder(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Recorder{
		transitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "actions",
				Name:      "transitions_total",
				Help:      "Scaling action state transitions",
			},
			[]string{"type", "state"},
		),
		active: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "actions",
				Name:      "active",
				Help:      "Scaling actions currently in a non-terminal state",
			},
			[]string{"state"},
		),
		rollbackLatency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "actions",
				Name:      "restore_latency_seconds",
				Help:      "Time from restore trigger to replicas ready",
				Buckets:   []float64{5, 10, 15, 30, 45, 60, 90, 120, 300},
			},
		),
		realizedSavings: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "actions",
				Name:      "confirmed_monthly_savings_total",
				Help:      "Projected monthly savings of confirmed actions",
			},
		),
		gateDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "safety",
				Name:      "gate_decisions_total",
				Help:      "Safety gate decisions by risk level",
			},
			[]string{"decision", "risk"},
		),
		idleConfidence: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "analysis",
				Name:      "idle_confidence",
				Help:      "Latest idle confidence per workload",
			},
			[]string{"workload"},
		),
		recommended: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "analysis",
				Name:      "recommended_monthly_savings",
				Help:      "Monthly savings of the latest actionable recommendation per workload",
			},
			[]string{"workload", "type"},
		),
	}
}

// OnTransition updates the action collectors
func (r *Recorder) OnTransition(action models.ScalingAction, from models.ActionState) {
	r.transitions.WithLabelValues(string(action.Type), string(action.State)).Inc()

	if from != "" && !from.Terminal() {
		r.active.WithLabelValues(string(from)).Dec()
	}
	if !action.State.Terminal() {
		r.active.WithLabelValues(string(action.State)).Inc()
	}

	switch action.State {
	case models.StateRolledBack:
		r.rollbackLatency.Observe(action.RollbackLatency.Seconds())
	case models.StateConfirmed:
		if action.Type == models.ActionScaleUp {
			if action.RollbackLatency > 0 {
				r.rollbackLatency.Observe(action.RollbackLatency.Seconds())
			}
		} else {
			r.realizedSavings.Add(action.MonthlySavings)
		}
	}
}

// ObserveConfidence records the latest idle confidence for a workload
func (r *Recorder) ObserveConfidence(rec *models.ConfidenceRecord) {
	if rec == nil {
		return
	}
	r.idleConfidence.WithLabelValues(rec.Workload).Set(rec.IdleConfidence)
}

// ObserveAssessment counts a gate decision
func (r *Recorder) ObserveAssessment(a *models.SafetyAssessment) {
	if a == nil {
		return
	}
	r.gateDecisions.WithLabelValues(string(a.Decision), string(a.RiskLevel)).Inc()
}

// ObserveRecommendation publishes savings for actionable recommendations and clears the rest
func (r *Recorder) ObserveRecommendation(rec *models.Recommendation) {
	if rec == nil || rec.Workload == nil {
		return
	}
	key := rec.Workload.Key()
	r.recommended.DeletePartialMatch(prometheus.Labels{"workload": key})
	if rec.Actionable() {
		r.recommended.WithLabelValues(key, string(rec.Type)).Set(rec.SavingsMonthly)
	}
}
