// Package apierr is the error taxonomy reported to API clients.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Version is reported in every error envelope and CDN banner. Overridden at
// build time with -ldflags "-X github.com/tendant/simple-media/internal/apierr.Version=...".
var Version = "0.1.0"

// Code is a stable numeric error code.
type Code int

const (
	NotFound             Code = 1
	Unknown              Code = 2
	MissingAuthorization Code = 3
	InvalidAuthorization Code = 4
	MethodNotAllowed     Code = 5
	InvalidContentType   Code = 6
	InvalidImageInput    Code = 7
	InvalidQuery         Code = 8
)

func (c Code) String() string {
	switch c {
	case NotFound:
		return "NotFound"
	case Unknown:
		return "Unknown"
	case MissingAuthorization:
		return "MissingAuthorization"
	case InvalidAuthorization:
		return "InvalidAuthorization"
	case MethodNotAllowed:
		return "MethodNotAllowed"
	case InvalidContentType:
		return "InvalidContentType"
	case InvalidImageInput:
		return "InvalidImageInput"
	case InvalidQuery:
		return "InvalidQuery"
	}
	return fmt.Sprintf("Code(%d)", int(c))
}

// Error is a client-facing failure with its HTTP status. Err, when set, is
// the internal cause; it is logged, never rendered.
type Error struct {
	Code    Code
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Envelope is the JSON body of an error response.
type Envelope struct {
	Error     string `json:"error"`
	ErrorCode Code   `json:"error_code"`
	Version   string `json:"version"`
}

func (e *Error) Envelope() Envelope {
	return Envelope{Error: e.Message, ErrorCode: e.Code, Version: Version}
}

func New(code Code, status int, msg string) *Error {
	return &Error{Code: code, Status: status, Message: msg}
}

// Wrap attaches an internal cause to a client-facing error.
func Wrap(err error, code Code, status int, msg string) *Error {
	return &Error{Code: code, Status: status, Message: msg, Err: err}
}

func NewNotFound(msg string) *Error {
	return New(NotFound, http.StatusNotFound, msg)
}

func NewBadRequest(msg string) *Error {
	return New(Unknown, http.StatusBadRequest, msg)
}

func NewMissingAuthorization() *Error {
	return New(MissingAuthorization, http.StatusUnauthorized, "Missing authorization")
}

func NewInvalidAuthorization() *Error {
	return New(InvalidAuthorization, http.StatusForbidden, "Invalid authorization")
}

func NewMethodNotAllowed() *Error {
	return New(MethodNotAllowed, http.StatusMethodNotAllowed, "Method not allowed")
}

func NewInvalidQuery(msg string) *Error {
	return New(InvalidQuery, http.StatusBadRequest, msg)
}

func NewInvalidImage(status int, msg string) *Error {
	return New(InvalidImageInput, status, msg)
}

// NewInternal hides err behind a generic message.
func NewInternal(err error) *Error {
	return Wrap(err, Unknown, http.StatusInternalServerError, "Internal server error")
}

// From returns err as an *Error, treating anything else as internal.
func From(err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return NewInternal(err)
}
