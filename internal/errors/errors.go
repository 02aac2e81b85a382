// Package errors defines the typed errors shared by the dispatch service, its stores and the HTTP layer.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a category of application error.
type ErrorCode string

const (
	// ErrCodeNotFound indicates no persisted dispatch state exists.
	ErrCodeNotFound ErrorCode = "not_found"
	// ErrCodeConflict indicates a concurrent or duplicate state write.
	ErrCodeConflict ErrorCode = "conflict"
	// ErrCodeValidation indicates an invalid dispatch request or state document.
	ErrCodeValidation ErrorCode = "validation"
	// ErrCodeInternal indicates an unexpected failure.
	ErrCodeInternal ErrorCode = "internal"
	// ErrCodeTimeout indicates a timeout occurred.
	ErrCodeTimeout ErrorCode = "timeout"
	// ErrCodeCanceled indicates the operation was canceled.
	ErrCodeCanceled ErrorCode = "canceled"
	// ErrCodeAlreadyRunning indicates a dispatch job is already in progress.
	ErrCodeAlreadyRunning ErrorCode = "already_running"
	// ErrCodeTransportConnect indicates the sending server session could not be opened.
	ErrCodeTransportConnect ErrorCode = "transport_connect"
	// ErrCodeBatchFailure indicates a whole batch failed to resolve.
	ErrCodeBatchFailure ErrorCode = "batch_failure"
	// ErrCodeRecipientFailure indicates the sending server rejected a single address.
	ErrCodeRecipientFailure ErrorCode = "recipient_failure"
	// ErrCodePersistence indicates dispatch state could not be loaded or saved.
	ErrCodePersistence ErrorCode = "persistence"
)

// AppError is a coded error that supports errors.Is and errors.As through its Cause.
type AppError struct {
	Code    ErrorCode
	Message string
	// Cause is optional.
	Cause error
	// Field names the offending request field or recipient address, when known.
	Field string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Validation creates a new Validation error.
func Validation(message string) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: message}
}

// ValidationField creates a Validation error tied to a request field.
func ValidationField(field, message string) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: message, Field: field}
}

// Wrap wraps err with code and message. A nil err yields nil.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: message, Cause: err}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...any) *AppError {
	if err == nil {
		return nil
	}
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

func isCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// IsNotFound checks if an error is a NotFound error.
func IsNotFound(err error) bool {
	return isCode(err, ErrCodeNotFound)
}

// IsConflict checks if an error is a Conflict error.
func IsConflict(err error) bool {
	return isCode(err, ErrCodeConflict)
}

// IsValidation checks if an error is a Validation error.
func IsValidation(err error) bool {
	return isCode(err, ErrCodeValidation)
}

// IsTimeout checks if an error is a Timeout error.
func IsTimeout(err error) bool {
	return isCode(err, ErrCodeTimeout)
}

// GetCode returns the ErrorCode from an error, or empty string if not an AppError.
func GetCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// GetField returns the Field from an error, or empty string if not an AppError or no field set.
func GetField(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Field
	}
	return ""
}
