package errors

import (
	"fmt"
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

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return &AppError{
			Code:    appErr.Code,
			Message: message,
			Cause:   appErr,
		}
	}
	return &AppError{
		Code:    CodeInternal,
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
	if appErr, ok := err.(*AppError); ok {
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

// GetCode returns the error code if it's an AppError, otherwise "UNKNOWN"
func GetCode(err error) string {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code
	}
	return "UNKNOWN"
}

// Predefined error codes
const (
	CodeConfigInvalid = "CONFIG_INVALID"
	CodeContractLoad  = "CONTRACT_LOAD"
	CodeIntegrity     = "INTEGRITY"
	CodeMethodExec    = "METHOD_EXECUTION"
	CodeCardinality   = "STRUCTURAL_CARDINALITY"
	CodeSignalMissing = "SIGNAL_MISSING"
	CodeSinkFailure   = "SINK_FAILURE"
	CodeInternal      = "INTERNAL_ERROR"
)

// Common error constructors
func ConfigInvalid(message string) *AppError {
	return New(CodeConfigInvalid, message)
}

func ContractLoad(questionID string, cause error) *AppError {
	return &AppError{
		Code:    CodeContractLoad,
		Message: fmt.Sprintf("contract load failed for %s", questionID),
		Cause:   cause,
	}
}

func Integrity(questionID string, cause error) *AppError {
	return &AppError{
		Code:    CodeIntegrity,
		Message: fmt.Sprintf("contract integrity check failed for %s", questionID),
		Cause:   cause,
	}
}

func MethodExec(method string, cause error) *AppError {
	return &AppError{
		Code:    CodeMethodExec,
		Message: fmt.Sprintf("method %s failed", method),
		Cause:   cause,
	}
}

func SinkFailure(sink string, cause error) *AppError {
	return &AppError{
		Code:    CodeSinkFailure,
		Message: fmt.Sprintf("%s sink write failed", sink),
		Cause:   cause,
	}
}
