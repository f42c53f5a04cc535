// Package errors provides error handling utilities.
package errors

import (
	"fmt"
)

// Type identifies the category of error
type Type string

const (
	// TypeMalformedPlan indicates an invalid or inconsistent plan artifact
	TypeMalformedPlan Type = "MALFORMED_PLAN"

	// TypePricingUnavailable indicates a price could not be resolved after retries
	TypePricingUnavailable Type = "PRICING_UNAVAILABLE"

	// TypeRateLimited indicates the pricing provider throttled the request
	TypeRateLimited Type = "RATE_LIMITED"

	// TypeAuth indicates missing or rejected credentials
	TypeAuth Type = "AUTH_ERROR"

	// TypeNetwork indicates a transient network error
	TypeNetwork Type = "NETWORK_ERROR"

	// TypeCircuitOpen indicates the pricing circuit breaker is open
	TypeCircuitOpen Type = "CIRCUIT_OPEN"

	// TypeNotFound indicates no price exists for the requested spec
	TypeNotFound Type = "NOT_FOUND"

	// TypeConfig indicates a configuration error
	TypeConfig Type = "CONFIG_ERROR"

	// TypeStorage indicates a history store error
	TypeStorage Type = "STORAGE_ERROR"

	// TypeInternal indicates an internal error
	TypeInternal Type = "INTERNAL_ERROR"
)

// Error represents a domain error with context
type Error struct {
	Type    Type                   `json:"type"`
	Message string                 `json:"message"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is checks if the error is of a specific type
func (e *Error) Is(t Type) bool {
	return e.Type == t
}

// WithContext adds context to the error
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a new error
func New(errType Type, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
	}
}

// Newf creates a new formatted error
func Newf(errType Type, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an error with context
func Wrap(errType Type, message string, cause error) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Cause:   cause,
	}
}

// Wrapf wraps an error with formatted context
func Wrapf(errType Type, cause error, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// IsType checks if an error is of a specific type
func IsType(err error, t Type) bool {
	if e, ok := err.(*Error); ok {
		return e.Type == t
	}
	return false
}

// TypeOf returns the taxonomy type of an error, or TypeInternal
// for errors created outside this package.
func TypeOf(err error) Type {
	if e, ok := err.(*Error); ok {
		return e.Type
	}
	return TypeInternal
}

// Retryable reports whether the pricing client may retry the failed
// lookup. Circuit-open failures are excluded: they fail fast and must
// not consume a retry attempt.
func Retryable(err error) bool {
	switch TypeOf(err) {
	case TypeRateLimited, TypeNetwork:
		return true
	}
	return false
}

// Transient reports whether a failed pipeline run may recover on a
// later attempt. Used by the live monitor to decide between
// WaitingRetry and Failed.
func Transient(err error) bool {
	switch TypeOf(err) {
	case TypeRateLimited, TypeNetwork, TypePricingUnavailable, TypeCircuitOpen:
		return true
	}
	return false
}

// ExitCode maps an error to the process exit code: 0 success,
// 1 recoverable-error-exhausted, 2 malformed input, 3 auth failure.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch TypeOf(err) {
	case TypeMalformedPlan:
		return 2
	case TypeAuth:
		return 3
	}
	return 1
}

// MalformedPlan creates a malformed plan error
func MalformedPlan(message string) *Error {
	return New(TypeMalformedPlan, message)
}

// PricingUnavailable creates a pricing unavailable error
func PricingUnavailable(message string, cause error) *Error {
	return Wrap(TypePricingUnavailable, message, cause)
}

// RateLimited creates a rate limited error
func RateLimited(message string) *Error {
	return New(TypeRateLimited, message)
}

// Auth creates an auth error carrying the permissions the caller lacked
func Auth(message string, missing ...string) *Error {
	e := New(TypeAuth, message)
	if len(missing) > 0 {
		e = e.WithContext("missing_permissions", missing)
	}
	return e
}

// Network creates a network error
func Network(message string, cause error) *Error {
	return Wrap(TypeNetwork, message, cause)
}

// CircuitOpen creates a circuit open error
func CircuitOpen(message string) *Error {
	return New(TypeCircuitOpen, message)
}

// NotFound creates a not found error
func NotFound(what, identifier string) *Error {
	return Newf(TypeNotFound, "%s not found: %s", what, identifier)
}

// Config creates a configuration error
func Config(message string, cause error) *Error {
	return Wrap(TypeConfig, message, cause)
}

// Storage creates a history store error
func Storage(message string, cause error) *Error {
	return Wrap(TypeStorage, message, cause)
}

// Internal creates an internal error
func Internal(message string, cause error) *Error {
	return Wrap(TypeInternal, message, cause)
}
