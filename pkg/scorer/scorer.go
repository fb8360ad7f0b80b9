// Package scorer turns classified traffic into an idle confidence per workload.
package scorer

import (
	"fmt"
	"math"
	"time"

	"github.com/opscart/k8s-zero-scaler/pkg/models"
)

const (
	MinWindow = 1 * time.Hour
	MaxWindow = 7 * 24 * time.Hour
)

// Config holds the statistical scorer parameters
type Config struct {
	Window time.Duration
	// Business requests per hour at which the rate score drops to 0.5
	ExpectedMinRate float64
	RecencyTau      time.Duration
	RateWeight      float64
	RecencyWeight   float64
	// Upper bound for idle confidence; certainty is never claimed
	MaxConfidence float64
	TTL           time.Duration
}

// DefaultConfig returns the default scoring parameters
func DefaultConfig() Config {
	return Config{
		Window:          24 * time.Hour,
		ExpectedMinRate: 1.0,
		RecencyTau:      6 * time.Hour,
		RateWeight:      0.6,
		RecencyWeight:   0.4,
		MaxConfidence:   0.999,
		TTL:             5 * time.Minute,
	}
}

// Validate checks the scoring parameters
func (c Config) Validate() error {
	if c.Window < MinWindow {
		return fmt.Errorf("analysis window must be at least %v", MinWindow)
	}
	if c.Window > MaxWindow {
		return fmt.Errorf("analysis window cannot exceed %v", MaxWindow)
	}
	if c.ExpectedMinRate <= 0 {
		return fmt.Errorf("expected minimum business rate must be > 0")
	}
	if c.RecencyTau <= 0 {
		return fmt.Errorf("recency tau must be > 0")
	}
	if c.RateWeight < 0 || c.RecencyWeight < 0 || c.RateWeight+c.RecencyWeight <= 0 {
		return fmt.Errorf("scoring weights must be non-negative with a positive sum")
	}
	if c.MaxConfidence <= 0 || c.MaxConfidence > 1 {
		return fmt.Errorf("max confidence must be in (0, 1]")
	}
	if c.TTL <= 0 {
		return fmt.Errorf("confidence TTL must be > 0")
	}
	return nil
}

// InsufficientDataError is recorded when a window has no usable samples
type InsufficientDataError struct {
	Workload string
	Window   time.Duration
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient traffic data for %s over %v", e.Workload, e.Window)
}

// Input is everything a scorer needs for one workload and window
type Input struct {
	Workload    string
	Samples     []models.TrafficSample
	WindowStart time.Time
	WindowEnd   time.Time
	// Last business request seen in an earlier cycle, if any
	LastKnownBusiness *time.Time
	Now               time.Time
}

// Scorer computes a ConfidenceRecord. The returned error is non-nil only for invalid input;
// insufficient data is reported on the record.
type Scorer interface {
	Name() string
	Score(in Input) (*models.ConfidenceRecord, error)
}

// Statistical is the rate and recency based scorer
type Statistical struct {
	cfg Config
}

// NewStatistical creates the statistical scorer
func NewStatistical(cfg Config) (*Statistical, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Statistical{cfg: cfg}, nil
}

func (s *Statistical) Name() string { return "statistical" }

// Config returns the scorer parameters
func (s *Statistical) Config() Config { return s.cfg }

// Score computes idle confidence:
//
//	rate_score = 1 / (1 + rate/expected_min_rate)
//	recency    = 1 - exp(-time_since_last_business / tau)
//	quality    = 0.5 + 0.5*coverage
//	confidence = clamp((w_rate*rate_score + w_recency*recency) * quality, 0, max)
func (s *Statistical) Score(in Input) (*models.ConfidenceRecord, error) {
	if !in.WindowEnd.After(in.WindowStart) {
		return nil, fmt.Errorf("invalid window for %s: end %v is not after start %v", in.Workload, in.WindowEnd, in.WindowStart)
	}
	computedAt := in.Now
	if computedAt.IsZero() {
		computedAt = in.WindowEnd
	}

	window := in.WindowEnd.Sub(in.WindowStart)
	rec := &models.ConfidenceRecord{
		Workload:    in.Workload,
		WindowStart: in.WindowStart,
		WindowEnd:   in.WindowEnd,
		Scorer:      s.Name(),
		ComputedAt:  computedAt,
		ValidUntil:  computedAt.Add(s.cfg.TTL),
	}

	var firstSample time.Time
	var lastBusiness *time.Time
	for i := range in.Samples {
		sample := in.Samples[i]
		if sample.Timestamp.Before(in.WindowStart) || sample.Timestamp.After(in.WindowEnd) {
			continue
		}
		rec.Summary.Add(sample.Classification)
		if sample.Classification == models.ClassUnknown {
			continue
		}
		if firstSample.IsZero() || sample.Timestamp.Before(firstSample) {
			firstSample = sample.Timestamp
		}
		if sample.Classification == models.ClassBusiness {
			ts := sample.Timestamp
			if lastBusiness == nil || ts.After(*lastBusiness) {
				lastBusiness = &ts
			}
		}
	}

	if lastBusiness == nil && in.LastKnownBusiness != nil {
		ts := *in.LastKnownBusiness
		lastBusiness = &ts
	}
	rec.LastBusinessAt = lastBusiness

	known := rec.Summary.Known()
	if known == 0 {
		rec.InsufficientData = true
		rec.IdleConfidence = 0
		return rec, nil
	}

	hours := window.Hours()
	rec.BusinessRequestRate = float64(rec.Summary.Business) / hours
	rec.BusinessRatio = float64(rec.Summary.Business) / float64(known)

	rateScore := 1.0 / (1.0 + rec.BusinessRequestRate/s.cfg.ExpectedMinRate)

	sinceBusiness := window
	if lastBusiness != nil {
		sinceBusiness = in.WindowEnd.Sub(*lastBusiness)
		if sinceBusiness < 0 {
			sinceBusiness = 0
		}
	}
	recency := 1.0 - math.Exp(-sinceBusiness.Seconds()/s.cfg.RecencyTau.Seconds())

	coverage := float64(in.WindowEnd.Sub(firstSample)) / float64(window)
	coverage = clamp(coverage, 0, 1)
	quality := 0.5 + 0.5*coverage

	weightSum := s.cfg.RateWeight + s.cfg.RecencyWeight
	combined := (s.cfg.RateWeight*rateScore + s.cfg.RecencyWeight*recency) / weightSum
	rec.IdleConfidence = clamp(combined*quality, 0, s.cfg.MaxConfidence)

	return rec, nil
}

// InsufficientData returns the error describing an insufficient record, or nil
func InsufficientData(rec *models.ConfidenceRecord) error {
	if rec == nil || !rec.InsufficientData {
		return nil
	}
	return &InsufficientDataError{Workload: rec.Workload, Window: rec.WindowEnd.Sub(rec.WindowStart)}
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
