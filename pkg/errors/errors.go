// Package errors holds the error taxonomy shared by the messaging service
// and its transports.
package errors

import (
	stderrors "errors"
	"fmt"
)

type AppError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	Cause   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Cause }

// Is matches any AppError carrying the same code, so callers can write
// errors.Is(err, apperrors.ErrValidation).
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code && t.Message == ""
}

// Constructors
func New(code Code, message string) error {
	return &AppError{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) error {
	return &AppError{Code: code, Message: message, Cause: cause}
}

// Validation reports a client-correctable input problem on field.
func Validation(field, msg string) error {
	return &AppError{Code: CodeInvalidArgument, Message: msg, Field: field}
}

func Unauthenticated(msg string) error {
	return New(CodeUnauthenticated, msg)
}

func NotFound(msg string) error {
	return New(CodeNotFound, msg)
}

func RateLimited(msg string) error {
	return New(CodeRateLimited, msg)
}

// Storage wraps a persistence failure. The cause is kept for server-side
// logging and never shown to clients.
func Storage(op string, cause error) error {
	return Wrap(CodeInternal, op, cause)
}

// CodeOf returns the code of the first AppError in err's chain, or
// CodeInternal for anything else.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

// As is a shorthand for extracting the AppError from err's chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
