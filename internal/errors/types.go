package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorType defines the category of the error
type ErrorType string

const (
	ErrorTypeFileAccess    ErrorType = "FILE_ACCESS_ERROR"
	ErrorTypeTracingSetup  ErrorType = "TRACING_SETUP_ERROR"
	ErrorTypeConfiguration ErrorType = "CONFIGURATION_ERROR"
)

// AppError represents a structured error raised while the service sets itself up
type AppError struct {
	Type      ErrorType `json:"type"`
	Message   string    `json:"message"`
	ErrorCode string    `json:"errorCode"`
	Recovery  string    `json:"recoverySuggestion,omitempty"`
	Err       error     `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any
func (e *AppError) Unwrap() error {
	return e.Err
}

// Code returns the application-specific error code
func (e *AppError) Code() string {
	return e.ErrorCode
}

// RecoverySuggestion returns the suggestion on how to recover from the error
func (e *AppError) RecoverySuggestion() string {
	return e.Recovery
}

// IsType reports whether err is, or wraps, an AppError of the given type.
func IsType(err error, t ErrorType) bool {
	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		return false
	}
	return appErr.Type == t
}

// NewFileAccessError creates an error for a log destination that cannot be opened
func NewFileAccessError(path string, err error) *AppError {
	return &AppError{
		Type:      ErrorTypeFileAccess,
		Message:   fmt.Sprintf("cannot open log destination %q", path),
		ErrorCode: "FILE_ACCESS_FAILED",
		Recovery:  "Check that the directory exists and is writable by the service user.",
		Err:       err,
	}
}

// NewTracingSetupError creates a tracing setup error.
// The cause is only carried in the message, it is not wrapped.
func NewTracingSetupError(message string) *AppError {
	return &AppError{
		Type:      ErrorTypeTracingSetup,
		Message:   message,
		ErrorCode: "TRACING_SETUP_FAILED",
		Recovery:  "Verify APP_INSIGHT_CONNECTION_STRING and that instrumentation is enabled before instrumenting the app.",
	}
}

// NewConfigurationError creates an error for invalid configuration values
func NewConfigurationError(message string) *AppError {
	return &AppError{
		Type:      ErrorTypeConfiguration,
		Message:   message,
		ErrorCode: "INVALID_CONFIGURATION",
	}
}
