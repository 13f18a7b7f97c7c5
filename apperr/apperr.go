// Package apperr holds the errors an executor can surface to HTTP. Each one carries the
// status code the router answers with.
package apperr

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// Error is an error with an HTTP status code and a client-facing message.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"` // Internal cause, logged but never sent
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(code int, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NotFound is returned when an id or code lookup matches nothing.
func NotFound(message string) *Error {
	if message == "" {
		message = http.StatusText(http.StatusNotFound)
	}
	return New(http.StatusNotFound, message, nil)
}

func BadRequest(message string, err error) *Error {
	return New(http.StatusBadRequest, message, err)
}

// Internal is a configuration fatal: a missing module, an unbound entity, a broken store.
func Internal(message string, err error) *Error {
	if message == "" {
		message = http.StatusText(http.StatusInternalServerError)
	}
	return New(http.StatusInternalServerError, message, err)
}

func MethodNotAllowed(message string) *Error {
	return New(http.StatusMethodNotAllowed, message, nil)
}

// CodeOf returns the status code carried by err, or 500 for anything else.
func CodeOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return http.StatusInternalServerError
}

// MessageOf returns the client-facing message for err. Errors that are not *Error
// never leak their text.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return http.StatusText(http.StatusInternalServerError)
}

// IsNotFound reports whether err is a 404.
func IsNotFound(err error) bool {
	return CodeOf(err) == http.StatusNotFound
}
