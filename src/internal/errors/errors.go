// Package errors provides domain-specific error types for the wlt application.
//
// This package defines structured errors with error codes, making it easier to handle
// and test different error conditions consistently across the application.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a category of error that can occur in the application.
type ErrorCode string

const (
	// ErrCodeConfig indicates a configuration error. Fatal at startup.
	ErrCodeConfig ErrorCode = "CONFIG_ERROR"

	// ErrCodeValidation indicates a rejected request. No table access happened.
	ErrCodeValidation ErrorCode = "VALIDATION_ERROR"

	// ErrCodeTable indicates a failure of the kernel mark map.
	ErrCodeTable ErrorCode = "TABLE_ERROR"

	// ErrCodeInternal indicates an unexpected internal error.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// TableErrorKind narrows down a table failure.
type TableErrorKind string

const (
	TableErrPermission   TableErrorKind = "permission_denied"
	TableErrMissingMap   TableErrorKind = "missing_map"
	TableErrMalformedKey TableErrorKind = "malformed_key"
	TableErrUnsupported  TableErrorKind = "unsupported"
	// TableErrConflict means the entry changed between the read and the write.
	TableErrConflict TableErrorKind = "conflict"
	TableErrFailed   TableErrorKind = "failed"
)

// Error represents a domain-specific error with an error code and optional cause.
type Error struct {
	Code    ErrorCode
	Kind    TableErrorKind // only set for ErrCodeTable
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	code := string(e.Code)
	if e.Kind != "" {
		code = code + "/" + string(e.Kind)
	}
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", code, e.Message)
}

// Unwrap returns the underlying cause of the error for errors.Is and errors.As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target error code.
// A target with an empty Kind matches any kind of the same code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		if e.Code != t.Code {
			return false
		}
		return t.Kind == "" || e.Kind == t.Kind
	}
	return false
}

// New creates a new domain error with the specified code and message.
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new domain error wrapping an existing error.
func Wrap(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewConfigError creates a new configuration error.
func NewConfigError(message string, cause error) *Error {
	return Wrap(ErrCodeConfig, message, cause)
}

// NewValidationError creates a new request validation error.
func NewValidationError(message string, cause error) *Error {
	return Wrap(ErrCodeValidation, message, cause)
}

// NewTableError creates a new mark map error of the given kind.
func NewTableError(kind TableErrorKind, message string, cause error) *Error {
	return &Error{
		Code:    ErrCodeTable,
		Kind:    kind,
		Message: message,
		Cause:   cause,
	}
}

// NewInternalError creates a new internal error.
func NewInternalError(message string, cause error) *Error {
	return Wrap(ErrCodeInternal, message, cause)
}

// CodeOf returns the code of the first domain error in err's chain, or "" if there is none.
func CodeOf(err error) ErrorCode {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsConfig reports whether err is a configuration error.
func IsConfig(err error) bool {
	return CodeOf(err) == ErrCodeConfig
}

// IsValidation reports whether err is a request validation error.
func IsValidation(err error) bool {
	return CodeOf(err) == ErrCodeValidation
}

// IsTable reports whether err is a mark map error.
func IsTable(err error) bool {
	return CodeOf(err) == ErrCodeTable
}

// TableKindOf returns the table error kind, or "" if err is not a table error.
func TableKindOf(err error) TableErrorKind {
	var e *Error
	if stderrors.As(err, &e) && e.Code == ErrCodeTable {
		return e.Kind
	}
	return ""
}

// IsConflict reports whether err is a table write that lost a race with another writer.
func IsConflict(err error) bool {
	return TableKindOf(err) == TableErrConflict
}

// As is errors.As from the standard library, re-exported so callers need one errors import.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}
