package shared

import (
	"errors"
	"fmt"
)

// ErrorKind groups business failures by how callers should react to them.
type ErrorKind string

const (
	// KindValidation marks input that can never succeed as submitted.
	KindValidation ErrorKind = "validation"
	// KindNotFound marks a missing referenced record.
	KindNotFound ErrorKind = "not_found"
	// KindState marks an operation not allowed in the document's current status.
	KindState ErrorKind = "state"
	// KindConflict marks contention with another request.
	KindConflict ErrorKind = "conflict"
)

// Error is a business failure carrying a stable machine-readable code.
// Codes are part of the API contract and must not change.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

// Is matches another *Error with the same code.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return other.Code == e.Code
}

// Validation builds a validation error.
func Validation(code, message string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: message}
}

// Validationf builds a validation error whose code carries a positional
// suffix, e.g. Validationf("INVALID_QTY_AT_%d", "quantity must be > 0", 2).
func Validationf(codeFormat, message string, args ...any) *Error {
	return &Error{Kind: KindValidation, Code: fmt.Sprintf(codeFormat, args...), Message: message}
}

// NotFound builds a not-found error.
func NotFound(code, message string) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: message}
}

// State builds a state-transition error.
func State(code, message string) *Error {
	return &Error{Kind: KindState, Code: code, Message: message}
}

// Conflict builds a contention error.
func Conflict(code, message string) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: message}
}

// AsError extracts the business error from err.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// CodeOf returns the business error code of err, or "" for other errors.
func CodeOf(err error) string {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code string) bool {
	return CodeOf(err) == code
}

// ErrNotFound indicates a resource not found at the storage layer.
var ErrNotFound = errors.New("not found")
