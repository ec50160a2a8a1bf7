package types

import (
	"errors"
	"fmt"
)

// ErrorCode identifies a failure class across the retrieval core. The code
// doubles as the machine-readable `code` field of the HTTP error envelope
// and as the error_code label on metrics.
type ErrorCode string

// Request validation and auth failures, rejected before any stage runs.
const (
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST"
	ErrUnauthorized   ErrorCode = "UNAUTHORIZED"
)

// Stage failures inside the query pipeline.
const (
	ErrEmbeddingFailed   ErrorCode = "EMBEDDING_FAILED"
	ErrRetrievalFailed   ErrorCode = "RETRIEVAL_FAILED"
	ErrAllImplsFailed    ErrorCode = "ALL_IMPLEMENTATIONS_FAILED"
	ErrMemoryUnavailable ErrorCode = "MEMORY_UNAVAILABLE"
)

// Upstream and transport failures.
const (
	ErrRateLimited        ErrorCode = "RATE_LIMITED"
	ErrUpstreamTimeout    ErrorCode = "UPSTREAM_TIMEOUT"
	ErrUpstreamError      ErrorCode = "UPSTREAM_ERROR"
	ErrInternalError      ErrorCode = "INTERNAL_ERROR"
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
)

// Error is the structured error carried between pipeline stages and the API
// boundary. Code and Message are safe to expose to clients; Cause is kept
// out of the JSON form and only surfaces in logs.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Provider   string    `json:"provider,omitempty"`
	Cause      error     `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap exposes the cause to errors.Is / errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError builds an Error carrying just a code and a client-safe message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap builds an Error that records cause as the underlying error.
// Shorthand for NewError(code, message).WithCause(cause).
func Wrap(code ErrorCode, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// The With* setters return the receiver so construction reads as a chain.
// They mutate in place, so never use them on a shared sentinel value.

func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

func (e *Error) WithProvider(provider string) *Error {
	e.Provider = provider
	return e
}

// IsRetryable reports whether some *Error in the chain is marked retryable.
// Plain errors are never retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the code of the outermost *Error in the chain,
// or "" when the chain carries none.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsErrorCode reports whether the error chain carries the given code.
func IsErrorCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}
