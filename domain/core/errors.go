package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Configuration errors
	ErrInvalidSpec   = errors.New("invalid parameter specification")
	ErrInvalidConfig = errors.New("invalid configuration")

	// Evaluation errors
	ErrEvaluation = errors.New("evaluation failed")

	// Data errors
	ErrInsufficientData = errors.New("insufficient data for analysis")
	ErrOutOfBounds      = fmt.Errorf("%w: vector outside parameter bounds", ErrInvalidSpec)
	ErrNumerical        = errors.New("non-finite surrogate output")

	// Budget errors
	ErrBudgetExhausted = errors.New("evaluation budget exhausted")

	// Posterior errors
	ErrInsufficientAcceptance = errors.New("insufficient posterior acceptance")

	// Persistence errors
	ErrNotFound    = errors.New("resource not found")
	ErrRunNotFound = fmt.Errorf("%w: run", ErrNotFound)
)

// EvaluationError describes a single failed simulator call.
type EvaluationError struct {
	Reason string
	Vector []float64
	Cause  error
}

func (e *EvaluationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("evaluation failed at %v: %s: %v", e.Vector, e.Reason, e.Cause)
	}
	return fmt.Sprintf("evaluation failed at %v: %s", e.Vector, e.Reason)
}

func (e *EvaluationError) Unwrap() error {
	return e.Cause
}

// Is makes every EvaluationError match ErrEvaluation.
func (e *EvaluationError) Is(target error) bool {
	return target == ErrEvaluation
}

// Error constructors with context
func NewEvaluationError(vector []float64, reason string, cause error) *EvaluationError {
	return &EvaluationError{
		Reason: reason,
		Vector: append([]float64(nil), vector...),
		Cause:  cause,
	}
}

func NewSpecError(name string, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidSpec, name, reason)
}

func NewConfigError(field string, reason string) error {
	return fmt.Errorf("%w: %s %s", ErrInvalidConfig, field, reason)
}

func NewNotFoundError(resource string, id string) error {
	return fmt.Errorf("%w: %s with id %s", ErrNotFound, resource, id)
}

// Error checking helpers
func IsEvaluationError(err error) bool {
	return errors.Is(err, ErrEvaluation)
}

func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidSpec) ||
		errors.Is(err, ErrInvalidConfig)
}

func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// AsEvaluationError extracts the typed failure, if any.
func AsEvaluationError(err error) (*EvaluationError, bool) {
	var evalErr *EvaluationError
	if errors.As(err, &evalErr) {
		return evalErr, true
	}
	return nil, false
}
