// Package scanner runs the analysis cycle: classify traffic, score idle confidence, assess safety and recommend.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"

	"github.com/opscart/k8s-zero-scaler/pkg/classifier"
	"github.com/opscart/k8s-zero-scaler/pkg/cost"
	"github.com/opscart/k8s-zero-scaler/pkg/datasource"
	"github.com/opscart/k8s-zero-scaler/pkg/logging"
	"github.com/opscart/k8s-zero-scaler/pkg/models"
	"github.com/opscart/k8s-zero-scaler/pkg/recommender"
	"github.com/opscart/k8s-zero-scaler/pkg/safety"
	"github.com/opscart/k8s-zero-scaler/pkg/scorer"
	"github.com/opscart/k8s-zero-scaler/pkg/stats"
)

// Result is the per-workload outcome of one analysis cycle
type Result struct {
	Workload       *models.Workload             `json:"workload" yaml:"workload"`
	Summary        models.ClassificationSummary `json:"summary" yaml:"summary"`
	ProbePattern   stats.Pattern                `json:"probePattern" yaml:"probePattern"`
	Confidence     *models.ConfidenceRecord     `json:"confidence,omitempty" yaml:"confidence,omitempty"`
	Assessment     *models.SafetyAssessment     `json:"assessment,omitempty" yaml:"assessment,omitempty"`
	Recommendation *models.Recommendation       `json:"recommendation,omitempty" yaml:"recommendation,omitempty"`
	Error          string                       `json:"error,omitempty" yaml:"error,omitempty"`

	err error
}

// Err returns the analysis error for this workload, if any
func (r *Result) Err() error { return r.err }

// Report is the outcome of a full scan
type Report struct {
	DataSource string              `json:"dataSource" yaml:"dataSource"`
	Namespace  string              `json:"namespace,omitempty" yaml:"namespace,omitempty"`
	StartedAt  time.Time           `json:"startedAt" yaml:"startedAt"`
	FinishedAt time.Time           `json:"finishedAt" yaml:"finishedAt"`
	Results    []*Result           `json:"results" yaml:"results"`
	Cost       *models.CostSummary `json:"cost" yaml:"cost"`
	Failed     int                 `json:"failed" yaml:"failed"`
}

// Actionable returns results whose recommendation leads to a scaling action
func (r *Report) Actionable() []*Result {
	var out []*Result
	for _, res := range r.Results {
		if res.Recommendation != nil && res.Recommendation.Actionable() {
			out = append(out, res)
		}
	}
	return out
}

// Config controls the analysis cycle
type Config struct {
	Window      time.Duration
	Concurrency int
}

// Deps are the scanner's collaborators
type Deps struct {
	Lister      datasource.WorkloadLister
	Source      datasource.DataSource
	Classifier  *classifier.Classifier
	Scorer      scorer.Scorer
	Analyzer    *safety.Analyzer
	Recommender *recommender.Recommender
	Clock       clock.PassiveClock
	Logger      *zap.Logger
}

// Scanner runs dry-run analysis cycles. It never calls the control plane.
type Scanner struct {
	cfg         Config
	lister      datasource.WorkloadLister
	source      datasource.DataSource
	classifier  *classifier.Classifier
	scorer      scorer.Scorer
	analyzer    *safety.Analyzer
	recommender *recommender.Recommender
	clock       clock.PassiveClock
	logger      *zap.Logger

	mu           sync.Mutex
	lastBusiness map[string]time.Time
}

// New creates a scanner
func New(cfg Config, deps Deps) (*Scanner, error) {
	if deps.Lister == nil || deps.Source == nil || deps.Classifier == nil || deps.Scorer == nil || deps.Analyzer == nil || deps.Recommender == nil {
		return nil, errors.New("scanner requires a lister, data source, classifier, scorer, analyzer and recommender")
	}
	if cfg.Window < scorer.MinWindow || cfg.Window > scorer.MaxWindow {
		return nil, fmt.Errorf("analysis window must be between %s and %s, got %s", scorer.MinWindow, scorer.MaxWindow, cfg.Window)
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	clk := deps.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Scanner{
		cfg:          cfg,
		lister:       deps.Lister,
		source:       deps.Source,
		classifier:   deps.Classifier,
		scorer:       deps.Scorer,
		analyzer:     deps.Analyzer,
		recommender:  deps.Recommender,
		clock:        clk,
		logger:       logging.OrNop(deps.Logger).Named("scanner"),
		lastBusiness: make(map[string]time.Time),
	}, nil
}

// Scan analyzes every workload in namespace ("" for all). Per-workload failures are recorded
// on the result and never abort the scan.
func (s *Scanner) Scan(ctx context.Context, namespace string) (*Report, error) {
	report := &Report{
		DataSource: s.source.Name(),
		Namespace:  namespace,
		StartedAt:  s.clock.Now(),
	}

	if !s.source.IsAvailable(ctx) {
		s.logger.Warn("Data source unavailable, confidence will fall back to insufficient data",
			zap.String("source", s.source.Name()))
	}

	workloads, err := s.lister.ListWorkloads(ctx, namespace)
	if err != nil {
		return nil, fmt.Errorf("failed to list workloads: %w", err)
	}
	sort.Slice(workloads, func(i, j int) bool { return workloads[i].Key() < workloads[j].Key() })

	s.logger.Info("Scanning workloads",
		zap.String("namespace", namespace),
		zap.Int("workloads", len(workloads)),
		zap.Duration("window", s.cfg.Window))

	report.Results = make([]*Result, len(workloads))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for i, w := range workloads {
		i, w := i, w
		g.Go(func() error {
			report.Results[i] = s.AnalyzeWorkload(gctx, w)
			return nil
		})
	}
	_ = g.Wait()

	var estimates []*models.CostEstimate
	for _, res := range report.Results {
		if res.err != nil {
			report.Failed++
			continue
		}
		if res.Recommendation != nil && res.Recommendation.Cost != nil && res.Recommendation.Actionable() {
			estimates = append(estimates, res.Recommendation.Cost)
		}
	}
	report.Cost = cost.Aggregate(estimates)
	report.FinishedAt = s.clock.Now()

	s.logger.Info("Scan complete",
		zap.Int("workloads", len(report.Results)),
		zap.Int("actionable", len(report.Actionable())),
		zap.Int("failed", report.Failed),
		zap.Float64("projected_savings", report.Cost.Cluster.Savings))

	return report, nil
}

// AnalyzeWorkload runs the full pipeline for one workload
func (s *Scanner) AnalyzeWorkload(ctx context.Context, w *models.Workload) *Result {
	res := &Result{Workload: w}

	conf, samples, err := s.confidence(ctx, w)
	if err != nil {
		return res.fail(s.logger, err)
	}
	res.Confidence = conf
	res.Summary = conf.Summary
	res.ProbePattern = probePattern(samples)

	assessment, err := s.analyzer.Assess(w, conf)
	if err != nil {
		return res.fail(s.logger, err)
	}
	res.Assessment = assessment

	rec, err := s.recommender.Recommend(ctx, w, conf, assessment)
	if err != nil {
		return res.fail(s.logger, err)
	}
	res.Recommendation = rec
	return res
}

// Reassess computes a fresh confidence record and assessment right before a release
func (s *Scanner) Reassess(ctx context.Context, w *models.Workload) (*models.SafetyAssessment, error) {
	conf, _, err := s.confidence(ctx, w)
	if err != nil {
		return nil, err
	}
	return s.analyzer.Assess(w, conf)
}

func (s *Scanner) confidence(ctx context.Context, w *models.Workload) (*models.ConfidenceRecord, []models.TrafficSample, error) {
	key := w.Key()
	end := s.clock.Now()
	start := end.Add(-s.cfg.Window)

	var samples []models.TrafficSample
	records, err := s.source.GetRequestRecords(ctx, key, start, end)
	if err != nil {
		// no telemetry scores as insufficient data rather than failing the workload
		s.logger.Warn("Failed to fetch request records",
			zap.String("workload", key),
			zap.Error(err))
	} else {
		samples, _ = s.classifier.Classify(records)
	}

	in := scorer.Input{
		Workload:    key,
		Samples:     samples,
		WindowStart: start,
		WindowEnd:   end,
		Now:         s.clock.Now(),
	}
	if last, ok := s.lastKnownBusiness(key); ok {
		in.LastKnownBusiness = &last
	}

	conf, err := s.scorer.Score(in)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to score %s: %w", key, err)
	}
	if conf.LastBusinessAt != nil {
		s.rememberBusiness(key, *conf.LastBusinessAt)
	}
	if insufficient := scorer.InsufficientData(conf); insufficient != nil {
		s.logger.Debug("Insufficient data", zap.String("workload", key), zap.Error(insufficient))
	}
	return conf, samples, nil
}

func (s *Scanner) lastKnownBusiness(key string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.lastBusiness[key]
	return t, ok
}

func (s *Scanner) rememberBusiness(key string, t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.lastBusiness[key]; !ok || t.After(prev) {
		s.lastBusiness[key] = t
	}
}

// SeedLastBusiness restores last-known business timestamps from an earlier run
func (s *Scanner) SeedLastBusiness(last map[string]time.Time) {
	for key, t := range last {
		s.rememberBusiness(key, t)
	}
}

func (r *Result) fail(logger *zap.Logger, err error) *Result {
	r.err = err
	r.Error = err.Error()
	logger.Warn("Workload analysis failed", zap.String("workload", r.Workload.Key()), zap.Error(err))
	return r
}

// probePattern describes how regular health-check arrivals are
func probePattern(samples []models.TrafficSample) stats.Pattern {
	var probes []time.Time
	for _, sample := range samples {
		if sample.Classification == models.ClassHealthCheck {
			probes = append(probes, sample.Timestamp)
		}
	}
	return stats.ClassifyPattern(stats.InterArrival(probes))
}
