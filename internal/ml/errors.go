package ml

import (
	"errors"
	"fmt"
)

// ValidationError reports a request whose feature vector cannot be fed to a
// pipeline, typically because its length does not match the pipeline arity.
type ValidationError struct {
	Pipeline string
	Reason   string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// DimensionMismatchError reports a vector whose length differs from what a
// component (schema, scaler) was built for.
type DimensionMismatchError struct {
	Component string
	Expected  int
	Actual    int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("%s: dimension mismatch: expected %d values, got %d", e.Component, e.Expected, e.Actual)
}

// InferenceError reports a classifier that rejected its input or produced an
// unusable output.
type InferenceError struct {
	Pipeline string
	Err      error
}

func (e *InferenceError) Error() string {
	if e.Pipeline == "" {
		return fmt.Sprintf("inference failed: %v", e.Err)
	}
	return fmt.Sprintf("%s inference failed: %v", e.Pipeline, e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }

// ExternalServiceError reports a failed call to a third-party service.
type ExternalServiceError struct {
	Provider string
	Err      error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// failureKind maps an error onto the label used for failure metrics.
func failureKind(err error) string {
	var (
		validation *ValidationError
		dimension  *DimensionMismatchError
		inference  *InferenceError
		external   *ExternalServiceError
	)
	switch {
	case errors.As(err, &validation):
		return "validation"
	case errors.As(err, &dimension):
		return "dimension"
	case errors.As(err, &inference):
		return "inference"
	case errors.As(err, &external):
		return "external"
	default:
		return "internal"
	}
}
