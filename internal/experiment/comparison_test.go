package experiment

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/flsim/internal/distance"
	"github.com/inferloop/flsim/internal/model"
)

func experimentWithRounds(label string, losses []float64, clientValues map[string]float64) *ExperimentData {
	shape := model.WeightShape{HiddenRows: 1, HiddenCols: 2, OutputRows: 2, OutputCols: 1}

	data := &ExperimentData{}
	data.ServerConfig.AggregationMethod = label
	for i, loss := range losses {
		data.RoundHistory = append(data.RoundHistory, model.RoundMetrics{
			Round:          i,
			GlobalLoss:     loss,
			GlobalAccuracy: 1 - loss,
		})
	}
	for id, value := range clientValues {
		flat := make([]float64, shape.Len())
		for j := range flat {
			flat[j] = value
		}
		w, _ := model.Unflatten(flat, shape)
		data.ClientModels = append(data.ClientModels, model.ClientModel{ClientID: id, Weights: w})
	}
	return data
}

func TestAlignRejectsEmptyInput(t *testing.T) {
	comparator, err := NewComparator(distance.MetricCosine, logrus.New())
	require.NoError(t, err)

	_, err = comparator.Align(nil)
	assert.Error(t, err)
	_, err = comparator.SimilarityMatrix(nil)
	assert.Error(t, err)
}

func TestAlignPadsShorterExperiments(t *testing.T) {
	comparator, err := NewComparator(distance.MetricCosine, logrus.New())
	require.NoError(t, err)

	long := experimentWithRounds("fedavg", []float64{0.9, 0.7, 0.5}, nil)
	short := experimentWithRounds("gravity", []float64{0.8}, nil)

	alignment, err := comparator.Align([]*ExperimentData{long, short})
	require.NoError(t, err)

	assert.Equal(t, 3, alignment.Rounds)
	assert.Equal(t, []string{"fedavg", "gravity"}, alignment.Labels)

	require.Len(t, alignment.GlobalLoss[0], 3)
	require.Len(t, alignment.GlobalLoss[1], 3)

	// The shorter run's missing rounds stay nil, never interpolated.
	assert.NotNil(t, alignment.GlobalLoss[1][0])
	assert.InDelta(t, 0.8, *alignment.GlobalLoss[1][0], 1e-12)
	assert.Nil(t, alignment.GlobalLoss[1][1])
	assert.Nil(t, alignment.GlobalLoss[1][2])

	assert.InDelta(t, 0.5, *alignment.GlobalLoss[0][2], 1e-12)
	assert.InDelta(t, 0.5, *alignment.GlobalAccuracy[0][2], 1e-12)
}

func TestAlignClusterAccuracySeries(t *testing.T) {
	comparator, err := NewComparator(distance.MetricCosine, logrus.New())
	require.NoError(t, err)

	data := experimentWithRounds("gravity", []float64{0.9, 0.7}, nil)
	data.RoundHistory[1].ClusterMetrics = []model.ClusterMetrics{
		{ClusterID: 0, Accuracy: 0.5},
		{ClusterID: 1, Accuracy: 0.8},
	}

	alignment, err := comparator.Align([]*ExperimentData{data})
	require.NoError(t, err)

	series, ok := alignment.ClusterAccuracy[ClusterKey{Experiment: 0, ClusterID: 1}]
	require.True(t, ok)
	require.Len(t, series, 2)
	assert.Nil(t, series[0])
	require.NotNil(t, series[1])
	assert.InDelta(t, 0.8, *series[1], 1e-12)
}

func TestSimilarityMatrixShape(t *testing.T) {
	comparator, err := NewComparator(distance.MetricCosine, logrus.New())
	require.NoError(t, err)

	experiments := []*ExperimentData{
		experimentWithRounds("a", []float64{0.5}, map[string]float64{"c1": 1, "c2": 2}),
		experimentWithRounds("b", []float64{0.5}, map[string]float64{"c1": 1, "c2": 2}),
		experimentWithRounds("c", []float64{0.5}, map[string]float64{"c1": -1, "c2": -2}),
	}

	matrix, err := comparator.SimilarityMatrix(experiments)
	require.NoError(t, err)
	require.Len(t, matrix, 3)

	for i := range matrix {
		require.Len(t, matrix[i], 3)
		assert.Equal(t, 1.0, matrix[i][i])
		for j := range matrix[i] {
			assert.Equal(t, matrix[i][j], matrix[j][i])
			assert.GreaterOrEqual(t, matrix[i][j], 0.0)
			assert.LessOrEqual(t, matrix[i][j], 1.0)
		}
	}

	// Identical client models score full similarity; opposite-direction
	// models score zero under cosine.
	assert.InDelta(t, 1.0, matrix[0][1], 1e-9)
	assert.InDelta(t, 0.0, matrix[0][2], 1e-9)
}

func TestSimilarityFallsBackToMeanVectors(t *testing.T) {
	comparator, err := NewComparator(distance.MetricCosine, logrus.New())
	require.NoError(t, err)

	// Disjoint client id sets with the same weight direction.
	a := experimentWithRounds("a", []float64{0.5}, map[string]float64{"c1": 2})
	b := experimentWithRounds("b", []float64{0.5}, map[string]float64{"x1": 4})

	matrix, err := comparator.SimilarityMatrix([]*ExperimentData{a, b})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, matrix[0][1], 1e-9)
}
