// Package errors defines the service error taxonomy shared by the control
// core and the HTTP layer. Errors carry a stable machine-readable code and
// the HTTP status the API layer should map them to.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a stable, wire-visible error code.
type Code string

const (
	CodeNotFound         Code = "not_found"
	CodeForbidden        Code = "forbidden"
	CodeUnauthorized     Code = "unauthorized"
	CodeRevokedOrMissing Code = "revoked_or_missing"
	CodeExpired          Code = "expired"
	CodeInvalidRequest   Code = "invalid_request"
	CodeRateLimited      Code = "rate_limited"
	CodeInternal         Code = "internal_error"
)

// ServiceError is the error type returned to API callers. Callers receive
// the code and message, never an internal stack or wrapped cause.
type ServiceError struct {
	Code       Code
	Message    string
	HTTPStatus int
	Details    map[string]interface{}
	cause      error
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *ServiceError) Unwrap() error {
	return e.cause
}

// WithDetails attaches a key/value pair to the error and returns it.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NotFound indicates the requested session does not exist.
func NotFound(message string) *ServiceError {
	return &ServiceError{Code: CodeNotFound, Message: message, HTTPStatus: http.StatusNotFound}
}

// Forbidden indicates the requester is not permitted to act on the session.
func Forbidden(message string) *ServiceError {
	return &ServiceError{Code: CodeForbidden, Message: message, HTTPStatus: http.StatusForbidden}
}

// Unauthorized indicates a missing or non-matching bearer token.
func Unauthorized(message string) *ServiceError {
	return &ServiceError{Code: CodeUnauthorized, Message: message, HTTPStatus: http.StatusUnauthorized}
}

// RevokedOrMissing covers both an unknown and an explicitly revoked session.
// The two cases are deliberately indistinguishable so that an unauthorized
// controller cannot probe for session existence.
func RevokedOrMissing() *ServiceError {
	return &ServiceError{
		Code:       CodeRevokedOrMissing,
		Message:    "session is revoked or does not exist",
		HTTPStatus: http.StatusNotFound,
	}
}

// Expired indicates the session is past its duration window.
func Expired() *ServiceError {
	return &ServiceError{
		Code:       CodeExpired,
		Message:    "session has expired",
		HTTPStatus: http.StatusGone,
	}
}

// InvalidRequest indicates a malformed request body.
func InvalidRequest(message string, cause error) *ServiceError {
	return &ServiceError{
		Code:       CodeInvalidRequest,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
		cause:      cause,
	}
}

// RateLimitExceeded indicates the caller exceeded its request budget.
func RateLimitExceeded(limit int, window string) *ServiceError {
	e := &ServiceError{
		Code:       CodeRateLimited,
		Message:    "rate limit exceeded",
		HTTPStatus: http.StatusTooManyRequests,
	}
	return e.WithDetails("limit", limit).WithDetails("window", window)
}

// Internal wraps an unexpected failure.
func Internal(message string, cause error) *ServiceError {
	return &ServiceError{
		Code:       CodeInternal,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		cause:      cause,
	}
}

// GetServiceError extracts a *ServiceError from an error chain, or nil.
func GetServiceError(err error) *ServiceError {
	var se *ServiceError
	if errors.As(err, &se) {
		return se
	}
	return nil
}

// IsCode reports whether err carries the given service error code.
func IsCode(err error, code Code) bool {
	se := GetServiceError(err)
	return se != nil && se.Code == code
}
