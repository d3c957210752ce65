package core

import "github.com/pkg/errors"

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		if len(err.Fields) > 0 {
			return err.Fields[0].Field + ": " + err.Fields[0].Error
		}
		return ""
	}
	return err.Err.Error()
}

// NotFoundError is returned when the requested object does not exist.
type NotFoundError struct {
	msg string
}

func NewNotFoundError(msg string) error {
	return &NotFoundError{msg}
}

func (err NotFoundError) Error() string { return err.msg }

// ForbiddenError is returned when the acting user is not allowed to perform an operation.
type ForbiddenError struct {
	msg string
}

func NewForbiddenError(msg string) error {
	return &ForbiddenError{msg}
}

func (err ForbiddenError) Error() string { return err.msg }

// AuthError is returned when credentials or tokens are missing or invalid.
type AuthError struct {
	msg string
}

func NewAuthError(msg string) error {
	return &AuthError{msg}
}

func (err AuthError) Error() string { return err.msg }

// PayloadTooLargeError is returned when an uploaded payload exceeds the configured limit.
type PayloadTooLargeError struct {
	msg string
}

func NewPayloadTooLargeError(msg string) error {
	return &PayloadTooLargeError{msg}
}

func (err PayloadTooLargeError) Error() string { return err.msg }

// IsNotFound reports whether the cause of err is a NotFoundError.
func IsNotFound(err error) bool {
	_, ok := errors.Cause(err).(*NotFoundError)
	return ok
}

// IsForbidden reports whether the cause of err is a ForbiddenError.
func IsForbidden(err error) bool {
	_, ok := errors.Cause(err).(*ForbiddenError)
	return ok
}

// IsValidation reports whether the cause of err is a ValidationError.
func IsValidation(err error) bool {
	_, ok := errors.Cause(err).(*ValidationError)
	return ok
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
