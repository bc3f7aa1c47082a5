package errors

import (
	stderrors "errors"
	"fmt"
)

type AppError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Cause }

// Constructors
func New(code Code, message string) error {
	return &AppError{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) error {
	return &AppError{Code: code, Message: message, Cause: cause}
}

func Validation(msg string) error {
	return New(CodeValidation, msg)
}

func NotFound(msg string) error {
	return New(CodeNotFound, msg)
}

func AlreadyExists(msg string) error {
	return New(CodeAlreadyExists, msg)
}

func Unauthorized(msg string) error {
	return New(CodeUnauthenticated, msg)
}

func AccessDenied(msg string) error {
	return New(CodeAccessDenied, msg)
}

func ContentRejected(msg string) error {
	return New(CodeContentRejected, msg)
}

func Internal(msg string) error {
	return New(CodeInternal, msg)
}

// CodeOf reports the Code carried by err, walking the wrap chain.
// Errors with no AppError in the chain report CodeUnknown.
func CodeOf(err error) Code {
	var app *AppError
	if stderrors.As(err, &app) {
		return app.Code
	}
	return CodeUnknown
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}

// MessageOf returns the user-facing message carried by err. Errors
// with no AppError in the chain get a generic message so internals
// never leak to the caller.
func MessageOf(err error) string {
	var app *AppError
	if stderrors.As(err, &app) {
		return app.Message
	}
	return "internal server error"
}
