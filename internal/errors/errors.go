// Package errors defines the service error model. Errors carry a stable code,
// a human-readable message, and the HTTP status used when rendered by the API
// layer. Failures are not retried internally; they propagate to callers.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode identifies an error category across the API surface.
type ErrorCode string

const (
	CodeInvalidInput      ErrorCode = "invalid_input"
	CodeNotFound          ErrorCode = "not_found"
	CodeAlreadyExists     ErrorCode = "already_exists"
	CodeUnauthorized      ErrorCode = "unauthorized"
	CodeForbidden         ErrorCode = "forbidden"
	CodeInvalidToken      ErrorCode = "invalid_token"
	CodeRateLimitExceeded ErrorCode = "rate_limit_exceeded"
	CodeInternal          ErrorCode = "internal_error"
	CodeUnavailable       ErrorCode = "unavailable"
)

// ServiceError is the typed error surfaced to API clients.
type ServiceError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Details    map[string]interface{}
	Err        error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is/As.
func (e *ServiceError) Unwrap() error { return e.Err }

// Is matches service errors by code.
func (e *ServiceError) Is(target error) bool {
	var se *ServiceError
	if errors.As(target, &se) {
		return se.Code == e.Code
	}
	return false
}

// WithDetails attaches a detail entry and returns the error for chaining.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// InvalidInput reports a request that failed validation.
func InvalidInput(message string) *ServiceError {
	return &ServiceError{Code: CodeInvalidInput, Message: message, HTTPStatus: http.StatusBadRequest}
}

// NotFound reports a missing resource.
func NotFound(resource, id string) *ServiceError {
	return &ServiceError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s %s not found", resource, id),
		HTTPStatus: http.StatusNotFound,
	}
}

// AlreadyExists reports a uniqueness conflict.
func AlreadyExists(message string) *ServiceError {
	return &ServiceError{Code: CodeAlreadyExists, Message: message, HTTPStatus: http.StatusConflict}
}

// Unauthorized reports a missing or failed authentication.
func Unauthorized(message string) *ServiceError {
	if message == "" {
		message = "authentication required"
	}
	return &ServiceError{Code: CodeUnauthorized, Message: message, HTTPStatus: http.StatusUnauthorized}
}

// Forbidden reports an authenticated caller lacking access.
func Forbidden(message string) *ServiceError {
	if message == "" {
		message = "access denied"
	}
	return &ServiceError{Code: CodeForbidden, Message: message, HTTPStatus: http.StatusForbidden}
}

// InvalidToken reports a malformed or expired credential.
func InvalidToken(err error) *ServiceError {
	return &ServiceError{
		Code:       CodeInvalidToken,
		Message:    "invalid or expired token",
		HTTPStatus: http.StatusUnauthorized,
		Err:        err,
	}
}

// RateLimitExceeded reports a caller over its request budget.
func RateLimitExceeded(limit int, window string) *ServiceError {
	e := &ServiceError{
		Code:       CodeRateLimitExceeded,
		Message:    "rate limit exceeded",
		HTTPStatus: http.StatusTooManyRequests,
	}
	e.WithDetails("limit", limit)
	e.WithDetails("window", window)
	return e
}

// Internal reports an unexpected server-side failure.
func Internal(message string, err error) *ServiceError {
	if message == "" {
		message = "internal error"
	}
	return &ServiceError{Code: CodeInternal, Message: message, HTTPStatus: http.StatusInternalServerError, Err: err}
}

// Unavailable reports a dependency that cannot currently serve requests.
func Unavailable(message string, err error) *ServiceError {
	return &ServiceError{Code: CodeUnavailable, Message: message, HTTPStatus: http.StatusServiceUnavailable, Err: err}
}

// GetServiceError extracts a *ServiceError from err, or nil when err carries
// no service error.
func GetServiceError(err error) *ServiceError {
	var se *ServiceError
	if errors.As(err, &se) {
		return se
	}
	return nil
}
