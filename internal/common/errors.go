package common

import (
	"errors"
	"net/http"
)

// AppError represents an error with an attached code and HTTP status.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap allows errors.Is/As to inspect the underlying error.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// BadRequest builds a 400 AppError carrying a client-facing message.
func BadRequest(message string, err error) *AppError {
	return NewAppError("BAD_REQUEST", message, http.StatusBadRequest, err)
}

// StatusOf returns the HTTP status attached to err, or 500 when err carries none.
func StatusOf(err error) int {
	var target *AppError
	if errors.As(err, &target) && target.HTTPStatus > 0 {
		return target.HTTPStatus
	}
	return http.StatusInternalServerError
}

// MessageOf returns the client-facing message attached to err, or fallback.
func MessageOf(err error, fallback string) string {
	var target *AppError
	if errors.As(err, &target) && target.Message != "" {
		return target.Message
	}
	return fallback
}
