package training

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/flsim/internal/model"
	"github.com/inferloop/flsim/pkg/errors"
)

var trainerShape = model.WeightShape{HiddenRows: 2, HiddenCols: 3, OutputRows: 3, OutputCols: 1}

func TestTrainDeterministicForFixedSeed(t *testing.T) {
	global := model.RandomModelWeights(trainerShape, 1)
	first := NewSimTrainer(&Config{Seed: 42}, logrus.New())
	second := NewSimTrainer(&Config{Seed: 42}, logrus.New())

	a, err := first.Train(context.Background(), "client-1", 0, 100, global)
	require.NoError(t, err)
	b, err := second.Train(context.Background(), "client-1", 0, 100, global)
	require.NoError(t, err)

	assert.Equal(t, a.Weights, b.Weights)
	assert.Equal(t, a.Loss, b.Loss)
	assert.Equal(t, a.Accuracy, b.Accuracy)
}

func TestTrainDiffersAcrossClients(t *testing.T) {
	global := model.RandomModelWeights(trainerShape, 1)
	trainer := NewSimTrainer(&Config{Seed: 42}, logrus.New())

	a, err := trainer.Train(context.Background(), "client-1", 0, 100, global)
	require.NoError(t, err)
	b, err := trainer.Train(context.Background(), "client-2", 0, 100, global)
	require.NoError(t, err)

	assert.NotEqual(t, a.Weights, b.Weights)
}

func TestTrainDoesNotMutateGlobal(t *testing.T) {
	global := model.RandomModelWeights(trainerShape, 1)
	before := global.Clone()
	trainer := NewSimTrainer(&Config{Seed: 42}, logrus.New())

	_, err := trainer.Train(context.Background(), "client-1", 0, 100, global)
	require.NoError(t, err)
	assert.Equal(t, before, global)
}

func TestTrainLossDecaysOverRounds(t *testing.T) {
	global := model.RandomModelWeights(trainerShape, 1)
	trainer := NewSimTrainer(&Config{Seed: 42}, logrus.New())

	early, err := trainer.Train(context.Background(), "client-1", 0, 100, global)
	require.NoError(t, err)
	late, err := trainer.Train(context.Background(), "client-1", 10, 100, global)
	require.NoError(t, err)

	assert.Less(t, late.Loss, early.Loss)
	assert.Greater(t, late.Accuracy, early.Accuracy)
}

func TestTrainBoundsOutcome(t *testing.T) {
	global := model.RandomModelWeights(trainerShape, 1)
	trainer := NewSimTrainer(&Config{Seed: 7}, logrus.New())

	for round := 0; round < 30; round++ {
		outcome, err := trainer.Train(context.Background(), "client-1", round, 50, global)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, outcome.Loss, 0.01)
		assert.Greater(t, outcome.Accuracy, 0.0)
		assert.Less(t, outcome.Accuracy, 1.0)
		assert.GreaterOrEqual(t, outcome.TestAccuracy, 0.0)
	}
}

func TestTrainAlwaysFailsAtFullFailureRate(t *testing.T) {
	global := model.RandomModelWeights(trainerShape, 1)
	trainer := NewSimTrainer(&Config{Seed: 42, FailureRate: 1}, logrus.New())

	_, err := trainer.Train(context.Background(), "client-1", 0, 100, global)
	require.Error(t, err)

	var appErr *errors.AppError
	require.True(t, stderrors.As(err, &appErr))
	assert.Equal(t, errors.CodeTrainingFailed, appErr.Code)
}

func TestTrainHonorsCancelledContext(t *testing.T) {
	global := model.RandomModelWeights(trainerShape, 1)
	trainer := NewSimTrainer(&Config{Seed: 42}, logrus.New())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := trainer.Train(ctx, "client-1", 0, 100, global)
	assert.ErrorIs(t, err, context.Canceled)
}
