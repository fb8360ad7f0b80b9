// Package stats holds the small numeric helpers shared by the analysis pipeline.
package stats

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Summary is a distribution summary of a set of samples
type Summary struct {
	Count   int
	Average float64
	P50     float64
	P90     float64
	P95     float64
	P99     float64
	Peak    float64
	Min     float64
}

// Summarize computes P50, P90, P95, P99, and peak from values
func Summarize(values []float64) (*Summary, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("no samples provided")
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	return &Summary{
		Count:   len(sorted),
		Average: Average(sorted),
		P50:     Percentile(sorted, 50),
		P90:     Percentile(sorted, 90),
		P95:     Percentile(sorted, 95),
		P99:     Percentile(sorted, 99),
		Peak:    sorted[len(sorted)-1],
		Min:     sorted[0],
	}, nil
}

// Percentile computes the Nth percentile of sorted values using linear interpolation
func Percentile(sortedValues []float64, percentile float64) float64 {
	if len(sortedValues) == 0 {
		return 0
	}
	if len(sortedValues) == 1 {
		return sortedValues[0]
	}

	n := float64(len(sortedValues))
	rank := (percentile / 100.0) * (n - 1)

	lowerIndex := int(math.Floor(rank))
	upperIndex := int(math.Ceil(rank))
	if lowerIndex == upperIndex {
		return sortedValues[lowerIndex]
	}

	lowerValue := sortedValues[lowerIndex]
	upperValue := sortedValues[upperIndex]
	fraction := rank - float64(lowerIndex)

	return lowerValue + (upperValue-lowerValue)*fraction
}

// DurationPercentile is Percentile over unsorted durations
func DurationPercentile(durations []time.Duration, percentile float64) time.Duration {
	if len(durations) == 0 {
		return 0
	}
	values := make([]float64, len(durations))
	for i, d := range durations {
		values[i] = float64(d)
	}
	sort.Float64s(values)
	return time.Duration(math.Round(Percentile(values, percentile)))
}

// Average computes the mean of values
func Average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
