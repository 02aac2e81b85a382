package errors

import "fmt"

// AlreadyRunning creates an error rejecting an operation while a dispatch job is running.
func AlreadyRunning(message string) *AppError {
	return &AppError{
		Code:    ErrCodeAlreadyRunning,
		Message: message,
	}
}

// TransportConnect wraps a failure to open the sending server session.
func TransportConnect(err error) *AppError {
	return &AppError{
		Code:    ErrCodeTransportConnect,
		Message: "failed to connect to sending server",
		Cause:   err,
	}
}

// BatchFailure wraps a batch-level failure for batch index idx.
func BatchFailure(idx int, err error) *AppError {
	return &AppError{
		Code:    ErrCodeBatchFailure,
		Message: fmt.Sprintf("batch %d failed", idx+1),
		Cause:   err,
	}
}

// RecipientFailure records a server-side rejection of addr.
func RecipientFailure(addr, reason string) *AppError {
	return &AppError{
		Code:    ErrCodeRecipientFailure,
		Message: reason,
		Field:   addr,
	}
}

// Persistence wraps a state store failure for operation op.
func Persistence(op string, err error) *AppError {
	return Wrapf(err, ErrCodePersistence, "dispatch state %s failed", op)
}

// IsAlreadyRunning checks if an error is an AlreadyRunning error.
func IsAlreadyRunning(err error) bool {
	return isCode(err, ErrCodeAlreadyRunning)
}

// IsTransportConnect checks if an error is a TransportConnect error.
func IsTransportConnect(err error) bool {
	return isCode(err, ErrCodeTransportConnect)
}

// IsBatchFailure checks if an error is a BatchFailure error.
func IsBatchFailure(err error) bool {
	return isCode(err, ErrCodeBatchFailure)
}

// IsPersistence checks if an error is a Persistence error.
func IsPersistence(err error) bool {
	return isCode(err, ErrCodePersistence)
}
