package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMedian(t *testing.T) {
	assert.Zero(t, median(nil))
	assert.Equal(t, 42.0, median([]float64{42}))
	assert.Equal(t, 20.0, median([]float64{10, 20, 30}))
	assert.Equal(t, 25.0, median([]float64{10, 20, 30, 40}))
}

func TestP99NearestRank(t *testing.T) {
	assert.Zero(t, p99(nil))

	// a single sample is its own p99
	assert.Equal(t, 500.0, p99([]float64{500}))

	values := make([]float64, 100)
	for i := range values {
		values[i] = float64(i + 1)
	}
	assert.Equal(t, 100.0, p99(values))

	// unsorted input
	assert.Equal(t, 30.0, p99([]float64{30, 10, 20}))
}

func TestStdDev(t *testing.T) {
	assert.Zero(t, stdDev(nil))
	assert.Zero(t, stdDev([]float64{100}))
	assert.InDelta(t, 2.0, stdDev([]float64{2, 4, 4, 4, 5, 5, 7, 9}), 0.001)
}

func TestMinMax(t *testing.T) {
	min, max := minMax(nil)
	assert.Zero(t, min)
	assert.Zero(t, max)

	min, max = minMax([]float64{30, 10, 20})
	assert.Equal(t, 10.0, min)
	assert.Equal(t, 30.0, max)
}
