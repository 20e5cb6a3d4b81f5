package distance

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCalculatorRejectsUnknownMetric(t *testing.T) {
	_, err := NewCalculator(Metric("manhattan"))
	assert.Error(t, err)
}

func TestL1Distance(t *testing.T) {
	calc, err := NewCalculator(MetricL1)
	require.NoError(t, err)

	d := calc.Distance([]float64{1, 2, 3}, []float64{2, 0, 3})
	assert.InDelta(t, 3.0, d, 1e-12)
}

func TestL2Distance(t *testing.T) {
	calc, err := NewCalculator(MetricL2)
	require.NoError(t, err)

	d := calc.Distance([]float64{0, 0}, []float64{3, 4})
	assert.InDelta(t, 5.0, d, 1e-12)
}

func TestCosineDistance(t *testing.T) {
	calc, err := NewCalculator(MetricCosine)
	require.NoError(t, err)

	// Orthogonal vectors: similarity 0, distance 1.
	d := calc.Distance([]float64{1, 0}, []float64{0, 1})
	assert.InDelta(t, 1.0, d, 1e-12)

	// Opposite vectors: similarity -1, distance 2.
	d = calc.Distance([]float64{1, 0}, []float64{-1, 0})
	assert.InDelta(t, 2.0, d, 1e-12)
}

func TestIdenticalVectorsFloorAtEpsilon(t *testing.T) {
	for _, metric := range []Metric{MetricL1, MetricL2, MetricCosine} {
		calc, err := NewCalculator(metric)
		require.NoError(t, err)

		d := calc.Distance([]float64{1, 2, 3}, []float64{1, 2, 3})
		assert.Equal(t, Epsilon, d, "metric %s", metric)
		assert.Greater(t, d, 0.0)
	}
}

func TestZeroVectorsCosine(t *testing.T) {
	calc, err := NewCalculator(MetricCosine)
	require.NoError(t, err)

	// Two zero vectors are treated as aligned.
	assert.Equal(t, Epsilon, calc.Distance([]float64{0, 0}, []float64{0, 0}))
	// A zero vector against a real one has no shared direction.
	assert.InDelta(t, 1.0, calc.Distance([]float64{0, 0}, []float64{1, 1}), 1e-12)
}

func TestSimilarityRange(t *testing.T) {
	vectors := [][]float64{
		{1, 2, 3},
		{-4, 0, 2},
		{0, 0, 0},
		{100, -50, 25},
	}

	for _, metric := range []Metric{MetricL1, MetricL2, MetricCosine} {
		calc, err := NewCalculator(metric)
		require.NoError(t, err)
		for _, a := range vectors {
			for _, b := range vectors {
				s := calc.Similarity(a, b)
				assert.GreaterOrEqual(t, s, 0.0)
				assert.LessOrEqual(t, s, 1.0)
				assert.False(t, math.IsNaN(s))
			}
		}
	}
}

func TestSimilarityOfIdenticalVectors(t *testing.T) {
	calc, err := NewCalculator(MetricCosine)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, calc.Similarity([]float64{2, 4}, []float64{2, 4}), 1e-12)

	calc, err = NewCalculator(MetricL2)
	require.NoError(t, err)
	// 1/(1+epsilon) is effectively 1.
	assert.InDelta(t, 1.0, calc.Similarity([]float64{2, 4}, []float64{2, 4}), 1e-6)
}
