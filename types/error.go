package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the library.
type ErrorCode string

const (
	// ErrCircuitOpen is returned when a breaker rejects a call because the
	// guarded dependency is considered down and the recovery timeout has
	// not elapsed.
	ErrCircuitOpen ErrorCode = "CIRCUIT_OPEN"

	// ErrRateLimited is returned when a limiter wait is abandoned before a
	// token became available.
	ErrRateLimited ErrorCode = "RATE_LIMITED"

	// ErrInvalidConfig is returned by constructors on invalid arguments.
	ErrInvalidConfig ErrorCode = "INVALID_CONFIG"

	// ErrTokenizer is returned when the underlying tokenizer fails.
	ErrTokenizer ErrorCode = "TOKENIZER_ERROR"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Component string    `json:"component,omitempty"` // name of the guarded resource
	Retryable bool      `json:"retryable"`
	Cause     error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Component != "" && e.Cause != nil:
		return fmt.Sprintf("[%s] %s: %s: %v", e.Code, e.Component, e.Message, e.Cause)
	case e.Component != "":
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Component, e.Message)
	case e.Cause != nil:
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	default:
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithComponent sets the name of the component that produced the error.
func (e *Error) WithComponent(name string) *Error {
	e.Component = name
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error, unwrapping as needed.
// Returns the empty code for errors not produced by this library.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given error code.
func IsCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}
