package apierr

import (
	"errors"
	"net/http"
)

// Error is the one error type lifecycle operations are allowed to surface.
// Handlers map it onto the response envelope; anything else becomes a 500.
type Error struct {
	StatusCode int      `json:"statusCode"`
	Message    string   `json:"message"`
	Errors     []string `json:"errors,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

func New(statusCode int, message string, details ...string) *Error {
	return &Error{StatusCode: statusCode, Message: message, Errors: details}
}

func BadRequest(message string, details ...string) *Error {
	return New(http.StatusBadRequest, message, details...)
}

func Unauthorized(message string) *Error {
	return New(http.StatusUnauthorized, message)
}

func NotFound(message string) *Error {
	return New(http.StatusNotFound, message)
}

func Conflict(message string) *Error {
	return New(http.StatusConflict, message)
}

func Internal(message string) *Error {
	return New(http.StatusInternalServerError, message)
}

// Status extracts the HTTP status for any error. Untyped errors are 500.
func Status(err error) int {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.StatusCode
	}
	return http.StatusInternalServerError
}

// From returns the typed error, wrapping untyped ones as a generic 500
// so the handler layer always has a uniform shape to render.
func From(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return Internal("something went wrong")
}
