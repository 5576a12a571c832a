package realtime

import (
	"errors"
	"fmt"
)

// Error represents a realtime engine error with categorization.
type Error struct {
	// Code is a machine-readable error code
	Code string

	// Message is a human-readable error message
	Message string

	// Err is the underlying error (if any)
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Error codes for realtime engine operations.
const (
	// ErrCodeNoData indicates no data was found.
	ErrCodeNoData = "NO_DATA"

	// ErrCodeValidation indicates validation failed.
	ErrCodeValidation = "VALIDATION_ERROR"

	// ErrCodeConfiguration indicates invalid configuration.
	ErrCodeConfiguration = "CONFIGURATION_ERROR"

	// ErrCodeDelivery indicates message delivery failed.
	ErrCodeDelivery = "DELIVERY_ERROR"

	// ErrCodeTimeout indicates an operation did not complete in time.
	ErrCodeTimeout = "TIMEOUT_ERROR"

	// ErrCodeCache indicates a cache operation failed.
	ErrCodeCache = "CACHE_ERROR"

	// ErrCodeDatabase indicates a database operation failed.
	ErrCodeDatabase = "DATABASE_ERROR"
)

// Common errors.
var (
	// ErrNoData is returned when a lookup finds nothing.
	// This is not necessarily an error condition in all cases.
	ErrNoData = &Error{
		Code:    ErrCodeNoData,
		Message: "no data found",
	}

	// ErrUnacknowledged is returned when an acknowledged publication times
	// out before every recipient confirmed receipt. It is always paired
	// with a result snapshot so callers can distinguish "fully failed"
	// from "partially delivered, some unconfirmed".
	ErrUnacknowledged = &Error{
		Code:    ErrCodeTimeout,
		Message: "unacknowledged publication",
	}
)

// NewError creates a new Error with the given code and message.
func NewError(code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// NewErrorWithCause creates a new Error wrapping an underlying error.
func NewErrorWithCause(code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     cause,
	}
}

// IsNoData checks if an error is ErrNoData.
func IsNoData(err error) bool {
	var rtErr *Error
	if errors.As(err, &rtErr) {
		return rtErr.Code == ErrCodeNoData
	}
	return errors.Is(err, ErrNoData)
}

// IsUnacknowledged checks if an error reports an unacknowledged publication.
func IsUnacknowledged(err error) bool {
	return errors.Is(err, ErrUnacknowledged)
}
