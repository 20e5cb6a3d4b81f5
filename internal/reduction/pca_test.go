package reduction

import (
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lineSamples() []Sample {
	// Points along a single direction in 3D: all variance lives on one axis.
	samples := make([]Sample, 0, 5)
	for i := 0; i < 5; i++ {
		samples = append(samples, Sample{
			Round:    i,
			EntityID: "global",
			Vector:   []float64{float64(i), 2 * float64(i), 0},
		})
	}
	return samples
}

func TestProjectEmptyInput(t *testing.T) {
	r := NewReducer(logrus.New())
	_, err := r.Project(nil)
	assert.Error(t, err)
}

func TestProjectRejectsMixedLengths(t *testing.T) {
	r := NewReducer(logrus.New())
	_, err := r.Project([]Sample{
		{Round: 0, EntityID: "a", Vector: []float64{1, 2}},
		{Round: 0, EntityID: "b", Vector: []float64{1, 2, 3}},
	})
	assert.Error(t, err)
}

func TestProjectSingleSampleAtOrigin(t *testing.T) {
	r := NewReducer(logrus.New())
	positions, err := r.Project([]Sample{
		{Round: 3, EntityID: "client-1", Vector: []float64{1, 2, 3}},
	})
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, 3, positions[0].Round)
	assert.Equal(t, "client-1", positions[0].EntityID)
	assert.Equal(t, 0.0, positions[0].X)
	assert.Equal(t, 0.0, positions[0].Y)
	assert.Equal(t, 0.0, positions[0].Z)
}

func TestProjectLinePreservesOrderOnFirstAxis(t *testing.T) {
	r := NewReducer(logrus.New())
	positions, err := r.Project(lineSamples())
	require.NoError(t, err)
	require.Len(t, positions, 5)

	// All variance is on the first component; the other axes stay near zero.
	for _, p := range positions {
		assert.InDelta(t, 0.0, p.Y, 1e-9)
		assert.InDelta(t, 0.0, p.Z, 1e-9)
	}

	// Collinear input keeps its ordering along the first axis, in one
	// direction or the other.
	ascending := positions[0].X < positions[4].X
	for i := 1; i < len(positions); i++ {
		if ascending {
			assert.Greater(t, positions[i].X, positions[i-1].X)
		} else {
			assert.Less(t, positions[i].X, positions[i-1].X)
		}
	}

	// Mean-centering puts the middle sample at the center.
	assert.InDelta(t, 0.0, positions[2].X, 1e-9)
}

func TestProjectSignStableAcrossRecomputation(t *testing.T) {
	r := NewReducer(logrus.New())
	samples := lineSamples()

	first, err := r.Project(samples)
	require.NoError(t, err)
	second, err := r.Project(samples)
	require.NoError(t, err)

	require.Len(t, second, len(first))
	for i := range first {
		assert.InDelta(t, first[i].X, second[i].X, 1e-9)
		assert.InDelta(t, first[i].Y, second[i].Y, 1e-9)
		assert.InDelta(t, first[i].Z, second[i].Z, 1e-9)
	}
}

func TestProjectConcurrentCalls(t *testing.T) {
	// A shared reducer serves every state reader, so simultaneous
	// projections must not corrupt the retained components.
	r := NewReducer(logrus.New())
	samples := lineSamples()

	reference, err := r.Project(samples)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([][]float64, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			positions, err := r.Project(samples)
			assert.NoError(t, err)
			xs := make([]float64, len(positions))
			for j, p := range positions {
				xs[j] = p.X
			}
			results[slot] = xs
		}(i)
	}
	wg.Wait()

	// Sign alignment keeps every concurrent projection on the axis the
	// first call established.
	for _, xs := range results {
		require.Len(t, xs, len(reference))
		for j := range xs {
			assert.InDelta(t, reference[j].X, xs[j], 1e-9)
		}
	}
}

func TestProjectGrowingTrail(t *testing.T) {
	r := NewReducer(logrus.New())
	samples := lineSamples()

	_, err := r.Project(samples[:3])
	require.NoError(t, err)

	// Recomputing over a longer trail must not flip the established axis.
	positions, err := r.Project(samples)
	require.NoError(t, err)

	ascending := positions[0].X < positions[1].X
	shorter, err := r.Project(samples[:3])
	require.NoError(t, err)
	assert.Equal(t, ascending, shorter[0].X < shorter[1].X)
}
