/*
Package analysis computes statistics, reports, baselines, and exports
from completed test runs. All statistics are computed over successful
results only; failed results are counted but never averaged.
*/
package analysis

import (
	"sort"

	"github.com/montanaflynn/stats"
)

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	out, err := stats.Median(stats.Float64Data(values))
	if err != nil {
		return 0
	}
	return out
}

func stdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	out, err := stats.StandardDeviation(stats.Float64Data(values))
	if err != nil {
		return 0
	}
	return out
}

// p99 is the nearest-rank 99th percentile; a single sample is its own
// p99.
func p99(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64{}, values...)
	sort.Float64s(sorted)
	if len(sorted) == 1 {
		return sorted[0]
	}
	idx := int(float64(len(sorted)) * 0.99)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func minMax(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	min, max := values[0], values[0]
	for _, val := range values[1:] {
		if val < min {
			min = val
		}
		if val > max {
			max = val
		}
	}
	return min, max
}
