package stats

import (
	"math"
	"sort"
	"time"
)

// Pattern describes how regular a series is
type Pattern struct {
	Type       string  `json:"type"`
	Variation  float64 `json:"variation"`
	Confidence float64 `json:"confidence"`
}

// CoefficientOfVariation measures relative variability.
// Low CV (<0.2) = steady, high CV (>0.5) = spiky.
func CoefficientOfVariation(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}

	mean := Average(values)
	if mean == 0 {
		return 0
	}

	sumSquaredDiff := 0.0
	for _, v := range values {
		diff := v - mean
		sumSquaredDiff += diff * diff
	}

	return math.Sqrt(sumSquaredDiff/float64(len(values))) / mean
}

// ClassifyPattern labels a series as steady, moderate, spiky or highly-variable
func ClassifyPattern(values []float64) Pattern {
	if len(values) < 10 {
		return Pattern{Type: "unknown"}
	}

	cv := CoefficientOfVariation(values)

	var patternType string
	var confidence float64
	switch {
	case cv < 0.15:
		patternType, confidence = "steady", 0.95
	case cv < 0.35:
		patternType, confidence = "moderate", 0.85
	case cv < 0.70:
		patternType, confidence = "spiky", 0.80
	default:
		patternType, confidence = "highly-variable", 0.75
	}

	return Pattern{Type: patternType, Variation: cv, Confidence: confidence}
}

// InterArrival returns the gaps, in seconds, between consecutive timestamps
func InterArrival(timestamps []time.Time) []float64 {
	if len(timestamps) < 2 {
		return nil
	}
	sorted := make([]time.Time, len(timestamps))
	copy(sorted, timestamps)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	gaps := make([]float64, 0, len(sorted)-1)
	for i := 1; i < len(sorted); i++ {
		gaps = append(gaps, sorted[i].Sub(sorted[i-1]).Seconds())
	}
	return gaps
}
