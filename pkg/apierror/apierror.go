// Package apierror provides standardized API error handling.
// These error types can be used across all API handlers for consistent error responses.
package apierror

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/tp12121212/sit-builder/pkg/domain/shared"
)

// Code represents an error code.
type Code string

// Standard error codes.
const (
	CodeBadRequest         Code = "BAD_REQUEST"
	CodeNotFound           Code = "NOT_FOUND"
	CodeConflict           Code = "CONFLICT"
	CodeValidationFailed   Code = "VALIDATION_FAILED"
	CodeInternalError      Code = "INTERNAL_ERROR"
	CodeServiceUnavailable Code = "SERVICE_UNAVAILABLE"
)

// Error represents a standardized API error.
type Error struct {
	// HTTP status code
	Status int `json:"-"`

	// Machine-readable error code
	Code Code `json:"code"`

	// Human-readable error message
	Message string `json:"message"`

	// Additional error details (optional)
	Details any `json:"details,omitempty"`

	// Internal error (not exposed to client)
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return string(e.Code) + ": " + e.Message + ": " + e.Err.Error()
	}
	return string(e.Code) + ": " + e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Response represents the error response structure.
type Response struct {
	Error   string `json:"error"`
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// WriteJSON writes the error as JSON to the response writer.
func (e *Error) WriteJSON(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Status)
	_ = json.NewEncoder(w).Encode(Response{
		Error:   string(e.Code),
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	})
}

// New creates a new API error.
func New(status int, code Code, message string) *Error {
	return &Error{Status: status, Code: code, Message: message}
}

// BadRequest creates a 400 error.
func BadRequest(message string) *Error {
	return New(http.StatusBadRequest, CodeBadRequest, message)
}

// ValidationFailed creates a 400 error with field details.
func ValidationFailed(message string, details any) *Error {
	e := New(http.StatusBadRequest, CodeValidationFailed, message)
	e.Details = details
	return e
}

// NotFound creates a 404 error.
func NotFound(message string) *Error {
	return New(http.StatusNotFound, CodeNotFound, message)
}

// Conflict creates a 409 error.
func Conflict(message string) *Error {
	return New(http.StatusConflict, CodeConflict, message)
}

// InternalError creates a 500 error wrapping the underlying cause.
func InternalError(err error) *Error {
	e := New(http.StatusInternalServerError, CodeInternalError, "Internal server error")
	e.Err = err
	return e
}

// ServiceUnavailable creates a 503 error.
func ServiceUnavailable(message string) *Error {
	return New(http.StatusServiceUnavailable, CodeServiceUnavailable, message)
}

// FromDomain maps a domain error to an API error.
func FromDomain(err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var domainErr *shared.DomainError
	message := err.Error()
	if errors.As(err, &domainErr) {
		message = domainErr.Message
	}

	switch {
	case shared.IsNotFound(err):
		return NotFound(message)
	case shared.IsValidation(err):
		return BadRequest(message)
	case errors.Is(err, shared.ErrConflict):
		return Conflict(message)
	case shared.IsUnavailable(err):
		return ServiceUnavailable(message)
	default:
		return InternalError(err)
	}
}
