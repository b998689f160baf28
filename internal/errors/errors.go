package errors

import (
	"context"
	stderrors "errors"
	"fmt"

	"bayescal/domain/core"
)

// AppError represents a structured application error
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates a new AppError
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with additional context. The code is inherited
// from an AppError cause, derived from a domain sentinel otherwise.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return &AppError{
		Code:    GetCode(err),
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an error with formatted additional context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// WithCode adds an error code to an existing error
func WithCode(code string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return &AppError{
			Code:    code,
			Message: appErr.Message,
			Cause:   appErr.Cause,
		}
	}
	return &AppError{
		Code:    code,
		Message: err.Error(),
		Cause:   err,
	}
}

// GetCode returns the outermost AppError code, or the code of the
// calibration sentinel the error wraps, or CodeInternalError.
func GetCode(err error) string {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	for _, m := range sentinelCodes {
		if stderrors.Is(err, m.sentinel) {
			return m.code
		}
	}
	return CodeInternalError
}

// Predefined error codes
const (
	CodeConfigInvalid    = "CONFIG_INVALID"
	CodeDatabaseError    = "DATABASE_ERROR"
	CodeValidationError  = "VALIDATION_ERROR"
	CodeNotFound         = "NOT_FOUND"
	CodeInternalError    = "INTERNAL_ERROR"
	CodeInvalidInput     = "INVALID_INPUT"
	CodeEvaluationFailed = "EVALUATION_FAILED"
	CodeInsufficientData = "INSUFFICIENT_DATA"
	CodeNumerical        = "NUMERICAL_ERROR"
	CodeBudgetExhausted  = "BUDGET_EXHAUSTED"
	CodeLowAcceptance    = "INSUFFICIENT_ACCEPTANCE"
	CodeCancelled        = "CANCELLED"
)

// Order matters: ErrOutOfBounds wraps ErrInvalidSpec.
var sentinelCodes = []struct {
	sentinel error
	code     string
}{
	{core.ErrInvalidSpec, CodeValidationError},
	{core.ErrInvalidConfig, CodeConfigInvalid},
	{core.ErrEvaluation, CodeEvaluationFailed},
	{core.ErrInsufficientData, CodeInsufficientData},
	{core.ErrNumerical, CodeNumerical},
	{core.ErrBudgetExhausted, CodeBudgetExhausted},
	{core.ErrInsufficientAcceptance, CodeLowAcceptance},
	{core.ErrNotFound, CodeNotFound},
	{context.Canceled, CodeCancelled},
}

// ExitCode maps an error to a process exit status for the CLIs.
func ExitCode(err error) int {
	switch GetCode(err) {
	case "":
		return 0
	case CodeValidationError, CodeConfigInvalid, CodeInvalidInput:
		return 2
	case CodeInsufficientData, CodeLowAcceptance:
		return 3
	case CodeCancelled:
		return 130
	default:
		return 1
	}
}

// Common error constructors
func ConfigInvalid(message string) *AppError {
	return New(CodeConfigInvalid, message)
}

func DatabaseError(message string, cause error) *AppError {
	return &AppError{
		Code:    CodeDatabaseError,
		Message: message,
		Cause:   cause,
	}
}
