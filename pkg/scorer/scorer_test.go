package scorer

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opscart/k8s-zero-scaler/pkg/models"
)

var windowEnd = time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC)

func newScorer(t *testing.T) *Statistical {
	t.Helper()
	s, err := NewStatistical(DefaultConfig())
	require.NoError(t, err)
	return s
}

// healthChecks returns one probe every interval across the 24h window
func healthChecks(interval time.Duration) []models.TrafficSample {
	start := windowEnd.Add(-24 * time.Hour)
	var samples []models.TrafficSample
	for ts := start; ts.Before(windowEnd); ts = ts.Add(interval) {
		samples = append(samples, models.TrafficSample{Workload: "shop/api", Timestamp: ts, Classification: models.ClassHealthCheck})
	}
	return samples
}

func input(samples []models.TrafficSample) Input {
	return Input{
		Workload:    "shop/api",
		Samples:     samples,
		WindowStart: windowEnd.Add(-24 * time.Hour),
		WindowEnd:   windowEnd,
		Now:         windowEnd,
	}
}

func TestScoreOnlyHealthChecks(t *testing.T) {
	s := newScorer(t)

	samples := healthChecks(30 * time.Second)
	require.Len(t, samples, 2880)

	rec, err := s.Score(input(samples))
	require.NoError(t, err)

	assert.False(t, rec.InsufficientData)
	assert.Equal(t, 0.0, rec.BusinessRequestRate)
	assert.Nil(t, rec.LastBusinessAt)
	assert.GreaterOrEqual(t, rec.IdleConfidence, 0.95)
	assert.LessOrEqual(t, rec.IdleConfidence, 0.999)

	// 0.6 + 0.4*(1 - e^-4) at full coverage
	want := 0.6 + 0.4*(1-math.Exp(-4))
	assert.InDelta(t, want, rec.IdleConfidence, 1e-9)
	assert.Equal(t, "statistical", rec.Scorer)
	assert.Equal(t, windowEnd.Add(5*time.Minute), rec.ValidUntil)
}

func TestScoreSpreadBusinessTraffic(t *testing.T) {
	s := newScorer(t)

	samples := healthChecks(30 * time.Second)
	start := windowEnd.Add(-24 * time.Hour)
	step := 24 * time.Hour / 50
	for i := 0; i < 50; i++ {
		samples = append(samples, models.TrafficSample{
			Workload:       "shop/api",
			Timestamp:      start.Add(time.Duration(i)*step + step/2),
			Classification: models.ClassBusiness,
		})
	}

	rec, err := s.Score(input(samples))
	require.NoError(t, err)

	assert.InDelta(t, 50.0/24.0, rec.BusinessRequestRate, 1e-9)
	assert.Less(t, rec.IdleConfidence, 0.80)
	require.NotNil(t, rec.LastBusinessAt)
	assert.Equal(t, 50, rec.Summary.Business)
}

func TestScoreInsufficientData(t *testing.T) {
	s := newScorer(t)

	tests := []struct {
		name    string
		samples []models.TrafficSample
	}{
		{"no telemetry", nil},
		{"only unknown", []models.TrafficSample{
			{Workload: "shop/api", Timestamp: windowEnd.Add(-time.Hour), Classification: models.ClassUnknown},
		}},
		{"samples outside window", []models.TrafficSample{
			{Workload: "shop/api", Timestamp: windowEnd.Add(-48 * time.Hour), Classification: models.ClassHealthCheck},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := s.Score(input(tt.samples))
			require.NoError(t, err)
			assert.True(t, rec.InsufficientData)
			assert.Equal(t, 0.0, rec.IdleConfidence)

			var insufficient *InsufficientDataError
			require.True(t, errors.As(InsufficientData(rec), &insufficient))
			assert.Equal(t, 24*time.Hour, insufficient.Window)
		})
	}
}

func TestScoreInvalidWindow(t *testing.T) {
	s := newScorer(t)
	in := input(nil)
	in.WindowStart = in.WindowEnd
	_, err := s.Score(in)
	assert.Error(t, err)
}

func TestScorePartialCoverageLowersConfidence(t *testing.T) {
	s := newScorer(t)

	full, err := s.Score(input(healthChecks(time.Minute)))
	require.NoError(t, err)

	// telemetry only for the last 6h
	var recent []models.TrafficSample
	for _, sample := range healthChecks(time.Minute) {
		if !sample.Timestamp.Before(windowEnd.Add(-6 * time.Hour)) {
			recent = append(recent, sample)
		}
	}
	partial, err := s.Score(input(recent))
	require.NoError(t, err)

	assert.Less(t, partial.IdleConfidence, full.IdleConfidence)
	assert.InDelta(t, full.IdleConfidence*(0.5+0.5*0.25)/1.0, partial.IdleConfidence, 0.01)
}

func TestScoreUsesLastKnownBusinessFromEarlierCycle(t *testing.T) {
	s := newScorer(t)

	withoutHistory, err := s.Score(input(healthChecks(time.Minute)))
	require.NoError(t, err)

	in := input(healthChecks(time.Minute))
	lastSeen := windowEnd.Add(-2 * time.Hour)
	in.LastKnownBusiness = &lastSeen
	withHistory, err := s.Score(in)
	require.NoError(t, err)

	assert.Less(t, withHistory.IdleConfidence, withoutHistory.IdleConfidence)
	require.NotNil(t, withHistory.LastBusinessAt)
	assert.Equal(t, lastSeen, *withHistory.LastBusinessAt)
}

// Confidence never decreases as the last business request moves further into the past.
func TestConfidenceMonotonicInTimeSinceBusiness(t *testing.T) {
	s := newScorer(t)
	base := healthChecks(time.Minute)

	prev := -1.0
	for minutes := 1; minutes <= 24*60; minutes += 17 {
		samples := append([]models.TrafficSample(nil), base...)
		samples = append(samples, models.TrafficSample{
			Workload:       "shop/api",
			Timestamp:      windowEnd.Add(-time.Duration(minutes) * time.Minute),
			Classification: models.ClassBusiness,
		})

		rec, err := s.Score(input(samples))
		require.NoError(t, err)
		if rec.IdleConfidence < prev {
			t.Fatalf("confidence decreased at %d minutes: %.6f < %.6f", minutes, rec.IdleConfidence, prev)
		}
		if rec.IdleConfidence < 0 || rec.IdleConfidence > 1 {
			t.Fatalf("confidence out of range: %.6f", rec.IdleConfidence)
		}
		prev = rec.IdleConfidence
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"window too short", func(c *Config) { c.Window = 30 * time.Minute }, true},
		{"window too long", func(c *Config) { c.Window = 8 * 24 * time.Hour }, true},
		{"window at max", func(c *Config) { c.Window = MaxWindow }, false},
		{"zero expected rate", func(c *Config) { c.ExpectedMinRate = 0 }, true},
		{"zero tau", func(c *Config) { c.RecencyTau = 0 }, true},
		{"negative weight", func(c *Config) { c.RateWeight = -1 }, true},
		{"zero weights", func(c *Config) { c.RateWeight, c.RecencyWeight = 0, 0 }, true},
		{"max confidence above one", func(c *Config) { c.MaxConfidence = 1.5 }, true},
		{"zero ttl", func(c *Config) { c.TTL = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
