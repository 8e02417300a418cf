// Package apierrors provides the structured error taxonomy shared by the
// entity services and the HTTP layer.
package apierrors

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/platinummonkey/httpusers/pkg/storage"
)

// Code identifies an error kind independent of its message
type Code string

const (
	CodeNotAuthorized Code = "NOT_AUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeConflict      Code = "CONFLICT"
	CodeInternal      Code = "INTERNAL_ERROR"
)

// Error is a typed error carrying the HTTP status it maps to
type Error struct {
	Code       Code   `json:"code"`
	Message    string `json:"error"`
	StatusCode int    `json:"-"`
	Details    any    `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

// Write writes the error as a JSON response
func (e *Error) Write(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.StatusCode)
	json.NewEncoder(w).Encode(e)
}

// NotAuthorized is returned when credentials are absent (401)
func NotAuthorized(message string) *Error {
	return &Error{Code: CodeNotAuthorized, Message: message, StatusCode: http.StatusUnauthorized}
}

// Forbidden is returned when credentials are present but insufficient (403)
func Forbidden(message string) *Error {
	return &Error{Code: CodeForbidden, Message: message, StatusCode: http.StatusForbidden}
}

// NotFound is returned when an entity does not exist (404)
func NotFound(message string) *Error {
	return &Error{Code: CodeNotFound, Message: message, StatusCode: http.StatusNotFound}
}

// Validation is returned for malformed input or type mismatches (400)
func Validation(message string) *Error {
	return &Error{Code: CodeValidation, Message: message, StatusCode: http.StatusBadRequest}
}

// Conflict is returned for duplicate keys and stale revisions (409)
func Conflict(message string) *Error {
	return &Error{Code: CodeConflict, Message: message, StatusCode: http.StatusConflict}
}

// Internal hides the underlying failure behind a generic message (500)
func Internal(message string) *Error {
	return &Error{Code: CodeInternal, Message: message, StatusCode: http.StatusInternalServerError}
}

// FromError converts any error into an *Error. Storage sentinels map to
// their HTTP equivalents; anything unrecognised becomes a 500.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return NotFound(err.Error())
	case errors.Is(err, storage.ErrConflict):
		return Conflict(err.Error())
	}
	return Internal("internal server error")
}

// Is reports whether err is, or wraps, an *Error with the given code
func Is(err error, code Code) bool {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == code
	}
	switch code {
	case CodeNotFound:
		return errors.Is(err, storage.ErrNotFound)
	case CodeConflict:
		return errors.Is(err, storage.ErrConflict)
	}
	return false
}

// IsNotFound is shorthand for Is(err, CodeNotFound)
func IsNotFound(err error) bool {
	return Is(err, CodeNotFound)
}
