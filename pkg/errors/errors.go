package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents different types of errors in the system
type ErrorType string

const (
	// ErrorTypeNotFound indicates a resource was not found
	ErrorTypeNotFound ErrorType = "NOT_FOUND"

	// ErrorTypeValidation indicates a validation error
	ErrorTypeValidation ErrorType = "VALIDATION"

	// ErrorTypeConflict indicates a conflict with existing data
	ErrorTypeConflict ErrorType = "CONFLICT"

	// ErrorTypeUnauthorized indicates unauthorized access
	ErrorTypeUnauthorized ErrorType = "UNAUTHORIZED"

	// ErrorTypeInternal indicates an internal server error
	ErrorTypeInternal ErrorType = "INTERNAL"

	// ErrorTypeTransient indicates a store or broker failure that is safe to retry
	ErrorTypeTransient ErrorType = "TRANSIENT"

	// ErrorTypeClosed indicates the queue is closed for new patients
	ErrorTypeClosed ErrorType = "CLOSED"

	// ErrorTypeNotConfigured indicates no queue status exists for the department
	ErrorTypeNotConfigured ErrorType = "NOT_CONFIGURED"

	// ErrorTypeAlreadyInQueue indicates the patient already holds an active entry
	ErrorTypeAlreadyInQueue ErrorType = "ALREADY_IN_QUEUE"
)

// AppError represents an application error
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
	// Details carries structured context for the client, e.g. the current
	// queue entry on an already-in-queue rejection.
	Details map[string]interface{}
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements the unwrap interface
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetails attaches structured context to the error and returns it.
func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	e.Details = details
	return e
}

// AsAppError extracts an *AppError from err's chain, if present.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsType reports whether err is an AppError of the given type.
func IsType(err error, t ErrorType) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Type == t
	}
	return false
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string) *AppError {
	return &AppError{Type: ErrorTypeNotFound, Message: message}
}

// NewValidationError creates a new validation error
func NewValidationError(message string, err error) *AppError {
	return &AppError{Type: ErrorTypeValidation, Message: message, Err: err}
}

// NewConflictError creates a new conflict error
func NewConflictError(message string) *AppError {
	return &AppError{Type: ErrorTypeConflict, Message: message}
}

// NewUnauthorizedError creates a new unauthorized error
func NewUnauthorizedError(message string) *AppError {
	return &AppError{Type: ErrorTypeUnauthorized, Message: message}
}

// NewInternalError creates a new internal error
func NewInternalError(message string, err error) *AppError {
	return &AppError{Type: ErrorTypeInternal, Message: message, Err: err}
}

// NewTransientError creates a new transient error
func NewTransientError(message string, err error) *AppError {
	return &AppError{Type: ErrorTypeTransient, Message: message, Err: err}
}

// NewClosedError creates a queue-closed admission error
func NewClosedError(message string) *AppError {
	return &AppError{Type: ErrorTypeClosed, Message: message}
}

// NewNotConfiguredError creates a queue-not-configured admission error
func NewNotConfiguredError(message string) *AppError {
	return &AppError{Type: ErrorTypeNotConfigured, Message: message}
}

// NewAlreadyInQueueError creates a duplicate-entry admission error
func NewAlreadyInQueueError(message string) *AppError {
	return &AppError{Type: ErrorTypeAlreadyInQueue, Message: message}
}
