package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents different types of errors in the system
type ErrorType string

const (
	// ErrorTypeNotFound indicates a referenced entity does not exist
	ErrorTypeNotFound ErrorType = "NOT_FOUND"

	// ErrorTypeValidation indicates a missing or malformed required field
	ErrorTypeValidation ErrorType = "VALIDATION"

	// ErrorTypeInvalidState indicates an operation against an entity whose
	// lifecycle state does not allow it (e.g. ordering on a completed encounter)
	ErrorTypeInvalidState ErrorType = "INVALID_STATE"

	// ErrorTypeInvalidTransition indicates a task status transition that
	// violates the state machine
	ErrorTypeInvalidTransition ErrorType = "INVALID_TRANSITION"

	// ErrorTypeConflict indicates an optimistic-concurrency failure: the
	// entity changed since the caller last observed it
	ErrorTypeConflict ErrorType = "CONFLICT"

	// ErrorTypeTransientIO indicates the store or notification channel is
	// temporarily unavailable; safe to retry with backoff
	ErrorTypeTransientIO ErrorType = "TRANSIENT_IO"

	// ErrorTypeFatal indicates an irrecoverable integrity violation
	ErrorTypeFatal ErrorType = "FATAL"

	// ErrorTypeInternal indicates an internal server error
	ErrorTypeInternal ErrorType = "INTERNAL"
)

// AppError represents an application error
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
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

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeNotFound,
		Message: message,
	}
}

// NewValidationError creates a new validation error
func NewValidationError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeValidation,
		Message: message,
	}
}

// NewInvalidStateError creates a new invalid state error
func NewInvalidStateError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeInvalidState,
		Message: message,
	}
}

// NewInvalidTransitionError creates a new invalid transition error
func NewInvalidTransitionError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeInvalidTransition,
		Message: message,
	}
}

// NewConflictError creates a new conflict error
func NewConflictError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeConflict,
		Message: message,
	}
}

// NewTransientIOError creates a new transient IO error
func NewTransientIOError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeTransientIO,
		Message: message,
		Err:     err,
	}
}

// NewFatalError creates a new fatal error
func NewFatalError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeFatal,
		Message: message,
		Err:     err,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeInternal,
		Message: message,
		Err:     err,
	}
}

// IsType reports whether err is (or wraps) an AppError of the given type
func IsType(err error, t ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == t
	}
	return false
}

// IsNotFound reports whether err is a not found error
func IsNotFound(err error) bool {
	return IsType(err, ErrorTypeNotFound)
}

// IsConflict reports whether err is an optimistic-concurrency conflict
func IsConflict(err error) bool {
	return IsType(err, ErrorTypeConflict)
}

// IsTransient reports whether err is safe to retry with backoff
func IsTransient(err error) bool {
	return IsType(err, ErrorTypeTransientIO)
}
