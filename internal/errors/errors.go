package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents stable error codes for all failure modes
type ErrorCode string

const (
	// TransientProvider indicates a retryable provider failure (5xx, network)
	TransientProvider ErrorCode = "TRANSIENT_PROVIDER"
	// PermanentProvider indicates a non-retryable provider failure (4xx, bad model)
	PermanentProvider ErrorCode = "PERMANENT_PROVIDER"
	// Validation indicates a malformed or out-of-range value
	Validation ErrorCode = "VALIDATION"
	// Storage indicates a database or filesystem failure
	Storage ErrorCode = "STORAGE"
	// Config indicates invalid or missing configuration
	Config ErrorCode = "CONFIG"
	// Timeout indicates an attempt exceeded its deadline
	Timeout ErrorCode = "TIMEOUT"
	// RateLimited indicates the request rate ceiling was hit
	RateLimited ErrorCode = "RATE_LIMITED"
	// BudgetExceeded indicates the daily token budget is exhausted
	BudgetExceeded ErrorCode = "BUDGET_EXCEEDED"
	// SymbolNotFound indicates the symbol doesn't exist
	SymbolNotFound ErrorCode = "SYMBOL_NOT_FOUND"
	// InternalError indicates an unexpected error
	InternalError ErrorCode = "INTERNAL_ERROR"
)

// CortexError represents an error with a stable code and optional cause
type CortexError struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	cause   error
}

// New creates a new CortexError
func New(code ErrorCode, message string, cause error) *CortexError {
	return &CortexError{Code: code, Message: message, cause: cause}
}

// Newf creates a new CortexError with a formatted message and no cause
func Newf(code ErrorCode, format string, args ...interface{}) *CortexError {
	return &CortexError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Error implements the error interface
func (e *CortexError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *CortexError) Unwrap() error {
	return e.cause
}

// WithDetails adds details to the error
func (e *CortexError) WithDetails(details interface{}) *CortexError {
	e.Details = details
	return e
}

// CodeOf extracts the error code, or INTERNAL_ERROR for foreign errors
func CodeOf(err error) ErrorCode {
	var ce *CortexError
	if stderrors.As(err, &ce) {
		return ce.Code
	}
	return InternalError
}

// IsTransient reports whether a failed attempt should be retried
func IsTransient(err error) bool {
	switch CodeOf(err) {
	case TransientProvider, RateLimited, Timeout:
		return true
	}
	return false
}
