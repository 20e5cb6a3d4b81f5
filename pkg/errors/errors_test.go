package errors

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppErrorMessage(t *testing.T) {
	err := NewAggregationError(CodeNoParticipants, "no clients completed the round")
	assert.Equal(t, "NO_PARTICIPANTS: no clients completed the round", err.Error())

	err = err.WithDetails("round 3")
	assert.Equal(t, "NO_PARTICIPANTS: no clients completed the round - round 3", err.Error())
}

func TestWrapErrorPreservesCause(t *testing.T) {
	cause := stderrors.New("disk full")
	err := WrapError(cause, ErrorTypeStorage, CodeWriteFailed, "failed to write experiment")

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, cause, err.Unwrap())
}

func TestAppErrorIsMatchesTypeAndCode(t *testing.T) {
	err := NewExperimentError(CodeInvalidExperimentFile, "invalid field roundHistory")

	assert.True(t, stderrors.Is(err, NewExperimentError(CodeInvalidExperimentFile, "other message")))
	assert.False(t, stderrors.Is(err, NewExperimentError(CodeExperimentNotFound, "other message")))
	assert.False(t, stderrors.Is(err, NewStorageError(CodeInvalidExperimentFile, "other message")))
}

func TestErrorsAsThroughWrapping(t *testing.T) {
	inner := NewSimulationError(CodeTrainingFailed, "simulated failure")
	outer := WrapError(inner, ErrorTypeSimulation, CodeRoundCancelled, "round abandoned")

	var appErr *AppError
	require.True(t, stderrors.As(outer, &appErr))
	assert.Equal(t, CodeRoundCancelled, appErr.Code)
}

func TestWithContext(t *testing.T) {
	err := NewValidationError(CodeInvalidInput, "bad vector").
		WithContext("client_id", "c1").
		WithContext("round", 4)

	require.NotNil(t, err.Context)
	assert.Equal(t, "c1", err.Context["client_id"])
	assert.Equal(t, 4, err.Context["round"])
}

func TestConstructorTypes(t *testing.T) {
	cases := []struct {
		err      *AppError
		expected ErrorType
	}{
		{NewValidationError(CodeInvalidInput, "m"), ErrorTypeValidation},
		{NewConfigurationError(CodeInvalidMetric, "m"), ErrorTypeConfiguration},
		{NewSimulationError(CodeNoClients, "m"), ErrorTypeSimulation},
		{NewAggregationError(CodeShapeMismatch, "m"), ErrorTypeAggregation},
		{NewClusteringError(CodeNoVectors, "m"), ErrorTypeClustering},
		{NewExperimentError(CodeNoExperiments, "m"), ErrorTypeExperiment},
		{NewStorageError(CodeNotConnected, "m"), ErrorTypeStorage},
		{NewInternalError("m"), ErrorTypeInternal},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.expected, tc.err.Type)
	}
}
