package clustering

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/flsim/internal/distance"
)

func newTestEngine(t *testing.T, config *KMeansConfig) *Engine {
	t.Helper()
	calc, err := distance.NewCalculator(distance.MetricL2)
	require.NoError(t, err)
	engine, err := NewEngine(config, calc, logrus.New())
	require.NoError(t, err)
	return engine
}

func twoGroupPoints() []Point {
	return []Point{
		{ID: "a1", Vector: []float64{0, 0}},
		{ID: "a2", Vector: []float64{0.1, 0}},
		{ID: "b1", Vector: []float64{10, 10}},
		{ID: "b2", Vector: []float64{10.1, 10}},
	}
}

func TestNewEngineRejectsBadK(t *testing.T) {
	calc, err := distance.NewCalculator(distance.MetricL2)
	require.NoError(t, err)

	_, err = NewEngine(&KMeansConfig{NumClusters: 11}, calc, nil)
	assert.Error(t, err)

	_, err = NewEngine(&KMeansConfig{NumClusters: -1}, calc, nil)
	assert.Error(t, err)
}

func TestClusterEmptyInput(t *testing.T) {
	engine := newTestEngine(t, nil)
	_, err := engine.Cluster(nil)
	assert.Error(t, err)
}

func TestSingleClusterContainsEveryone(t *testing.T) {
	engine := newTestEngine(t, &KMeansConfig{NumClusters: 1, Seed: 1})

	result, err := engine.Cluster(twoGroupPoints())
	require.NoError(t, err)
	require.Len(t, result.Clusters, 1)
	assert.True(t, result.Converged)
	assert.ElementsMatch(t, []string{"a1", "a2", "b1", "b2"}, result.Clusters[0].Members)

	// Centroid of a single cluster is the mean of all points.
	assert.InDelta(t, 5.05, result.Clusters[0].Centroid[0], 1e-9)
	assert.InDelta(t, 5.0, result.Clusters[0].Centroid[1], 1e-9)
}

func TestTwoWellSeparatedGroups(t *testing.T) {
	engine := newTestEngine(t, &KMeansConfig{NumClusters: 2, Seed: 7})

	result, err := engine.Cluster(twoGroupPoints())
	require.NoError(t, err)
	require.Len(t, result.Clusters, 2)
	assert.True(t, result.Converged)

	// Each pair lands in the same cluster.
	assert.Equal(t, result.Assignments["a1"], result.Assignments["a2"])
	assert.Equal(t, result.Assignments["b1"], result.Assignments["b2"])
	assert.NotEqual(t, result.Assignments["a1"], result.Assignments["b1"])
}

func TestDeterministicForFixedSeed(t *testing.T) {
	first := newTestEngine(t, &KMeansConfig{NumClusters: 2, Seed: 99})
	second := newTestEngine(t, &KMeansConfig{NumClusters: 2, Seed: 99})

	r1, err := first.Cluster(twoGroupPoints())
	require.NoError(t, err)
	r2, err := second.Cluster(twoGroupPoints())
	require.NoError(t, err)

	assert.Equal(t, r1.Assignments, r2.Assignments)
	assert.Equal(t, r1.Iterations, r2.Iterations)
}

func TestInputOrderInvariance(t *testing.T) {
	engine := newTestEngine(t, &KMeansConfig{NumClusters: 2, Seed: 5})
	points := twoGroupPoints()
	reversed := []Point{points[3], points[2], points[1], points[0]}

	r1, err := engine.Cluster(points)
	require.NoError(t, err)
	r2, err := engine.Cluster(reversed)
	require.NoError(t, err)

	assert.Equal(t, r1.Assignments, r2.Assignments)
}

func TestAutomaticKSelection(t *testing.T) {
	engine := newTestEngine(t, &KMeansConfig{Seed: 3})

	// Two tight groups with zero within-group spread: the elbow settles at 2.
	points := []Point{
		{ID: "a1", Vector: []float64{0, 0}},
		{ID: "a2", Vector: []float64{0, 0}},
		{ID: "b1", Vector: []float64{10, 10}},
		{ID: "b2", Vector: []float64{10, 10}},
	}

	result, err := engine.Cluster(points)
	require.NoError(t, err)
	assert.Len(t, result.Clusters, 2)
	assert.InDelta(t, 0.0, result.WithinVariance, 1e-9)
}

func TestAutomaticKIdenticalPoints(t *testing.T) {
	engine := newTestEngine(t, &KMeansConfig{Seed: 3})

	points := []Point{
		{ID: "a", Vector: []float64{1, 1}},
		{ID: "b", Vector: []float64{1, 1}},
		{ID: "c", Vector: []float64{1, 1}},
	}

	result, err := engine.Cluster(points)
	require.NoError(t, err)
	assert.Len(t, result.Clusters, 1)
}

func TestKLargerThanPointCountIsCapped(t *testing.T) {
	engine := newTestEngine(t, &KMeansConfig{NumClusters: 5, Seed: 1})

	points := []Point{
		{ID: "a", Vector: []float64{0}},
		{ID: "b", Vector: []float64{1}},
	}

	result, err := engine.Cluster(points)
	require.NoError(t, err)
	total := 0
	for _, c := range result.Clusters {
		total += len(c.Members)
	}
	assert.Equal(t, 2, total)
}
