package errors

import (
	"errors"
	"fmt"
)

// Common application errors
var (
	// Configuration errors
	ErrInvalidConfiguration  = errors.New("invalid configuration")
	ErrInvalidDistanceMetric = errors.New("invalid distance metric")
	ErrInvalidStrategy       = errors.New("invalid aggregation strategy")
	ErrMissingStrategyParams = errors.New("missing strategy parameters")
	ErrInvalidClusterCount   = errors.New("invalid cluster count: must be between 1 and 10")

	// Simulation errors
	ErrRoundInProgress   = errors.New("round already in progress")
	ErrRoundCancelled    = errors.New("round cancelled")
	ErrNoClients         = errors.New("simulation has no clients")
	ErrInvalidTransition = errors.New("invalid client state transition")
	ErrClientNotFound    = errors.New("client not found")

	// Aggregation errors
	ErrNoParticipants = errors.New("no clients completed the round")
	ErrShapeMismatch  = errors.New("model weight shapes do not match")
	ErrEmptyWeights   = errors.New("model weights are empty")

	// Clustering errors
	ErrNoVectors      = errors.New("no vectors to cluster")
	ErrNonConvergence = errors.New("clustering did not converge")

	// Experiment errors
	ErrInvalidExperimentFile = errors.New("invalid experiment file")
	ErrExperimentNotFound    = errors.New("experiment not found")
	ErrNoExperiments         = errors.New("no experiments to compare")

	// Storage errors
	ErrStorageNotFound         = errors.New("storage backend not found")
	ErrStorageConnectionFailed = errors.New("storage connection failed")
	ErrStorageWriteFailed      = errors.New("storage write failed")
	ErrStorageReadFailed       = errors.New("storage read failed")

	// Internal errors
	ErrInternal       = errors.New("internal error")
	ErrNotImplemented = errors.New("not implemented")
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeValidation    ErrorType = "validation"
	ErrorTypeConfiguration ErrorType = "configuration"
	ErrorTypeSimulation    ErrorType = "simulation"
	ErrorTypeAggregation   ErrorType = "aggregation"
	ErrorTypeClustering    ErrorType = "clustering"
	ErrorTypeExperiment    ErrorType = "experiment"
	ErrorTypeStorage       ErrorType = "storage"
	ErrorTypeInternal      ErrorType = "internal"
)

// AppError represents an application-specific error with additional context
type AppError struct {
	Type      ErrorType              `json:"type"`
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Cause     error                  `json:"-"`
	Context   map[string]interface{} `json:"context,omitempty"`
	Retryable bool                   `json:"retryable"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s - %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Type == t.Type && e.Code == t.Code
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// NewAppError creates a new application error
func NewAppError(errType ErrorType, code, message string) *AppError {
	return &AppError{
		Type:    errType,
		Code:    code,
		Message: message,
	}
}

// WrapError wraps an existing error with application context
func WrapError(err error, errType ErrorType, code, message string) *AppError {
	return &AppError{
		Type:    errType,
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// NewValidationError creates a validation error
func NewValidationError(code, message string) *AppError {
	return NewAppError(ErrorTypeValidation, code, message)
}

// NewConfigurationError creates a configuration error
func NewConfigurationError(code, message string) *AppError {
	return NewAppError(ErrorTypeConfiguration, code, message)
}

// NewSimulationError creates a simulation error
func NewSimulationError(code, message string) *AppError {
	return NewAppError(ErrorTypeSimulation, code, message)
}

// NewAggregationError creates an aggregation error
func NewAggregationError(code, message string) *AppError {
	return NewAppError(ErrorTypeAggregation, code, message)
}

// NewClusteringError creates a clustering error
func NewClusteringError(code, message string) *AppError {
	return NewAppError(ErrorTypeClustering, code, message)
}

// NewExperimentError creates an experiment error
func NewExperimentError(code, message string) *AppError {
	return NewAppError(ErrorTypeExperiment, code, message)
}

// NewStorageError creates a storage error
func NewStorageError(code, message string) *AppError {
	return NewAppError(ErrorTypeStorage, code, message)
}

// NewInternalError creates an internal error
func NewInternalError(message string) *AppError {
	return NewAppError(ErrorTypeInternal, CodeInternalError, message)
}

// Error codes for different error scenarios
const (
	// Validation error codes
	CodeInvalidInput  = "INVALID_INPUT"
	CodeMissingField  = "MISSING_FIELD"
	CodeInvalidFormat = "INVALID_FORMAT"
	CodeOutOfRange    = "OUT_OF_RANGE"

	// Configuration error codes
	CodeInvalidConfig         = "INVALID_CONFIG"
	CodeInvalidMetric         = "INVALID_METRIC"
	CodeInvalidStrategy       = "INVALID_STRATEGY"
	CodeMissingStrategyParams = "MISSING_STRATEGY_PARAMS"

	// Simulation error codes
	CodeRoundInProgress   = "ROUND_IN_PROGRESS"
	CodeRoundCancelled    = "ROUND_CANCELLED"
	CodeNoClients         = "NO_CLIENTS"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeClientNotFound    = "CLIENT_NOT_FOUND"
	CodeTrainingFailed    = "CLIENT_TRAINING_FAILURE"

	// Aggregation error codes
	CodeNoParticipants = "NO_PARTICIPANTS"
	CodeShapeMismatch  = "SHAPE_MISMATCH"

	// Clustering error codes
	CodeNonConvergence = "CLUSTERING_NON_CONVERGENCE"
	CodeNoVectors      = "NO_VECTORS"

	// Experiment error codes
	CodeInvalidExperimentFile = "INVALID_EXPERIMENT_FILE"
	CodeExperimentNotFound    = "EXPERIMENT_NOT_FOUND"
	CodeNoExperiments         = "NO_EXPERIMENTS"

	// Storage error codes
	CodeStorageError     = "STORAGE_ERROR"
	CodeConnectionFailed = "CONNECTION_FAILED"
	CodeWriteFailed      = "WRITE_FAILED"
	CodeReadFailed       = "READ_FAILED"
	CodeNotConnected     = "NOT_CONNECTED"
	CodeUnsupportedType  = "UNSUPPORTED_TYPE"

	// Internal error codes
	CodeInternalError  = "INTERNAL_ERROR"
	CodeNotImplemented = "NOT_IMPLEMENTED"
)
