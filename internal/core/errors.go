package core

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers that need to pick a response, such
// as an HTTP status code. The zero value is KindInternal.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindUnavailable
)

// Code returns the stable string code used in API error bodies.
func (k Kind) Code() string {
	switch k {
	case KindValidation:
		return "VALIDATION"
	case KindNotFound:
		return "NOT_FOUND"
	case KindConflict:
		return "CONFLICT"
	case KindUnavailable:
		return "UNAVAILABLE"
	default:
		return "INTERNAL"
	}
}

func (k Kind) String() string { return k.Code() }

// Error is the error type returned by the service. Message is safe to show
// to API clients; Err holds the underlying cause, if any, for logs.
type Error struct {
	Kind    Kind
	Message string
	Err     error
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

// Is reports whether target is an *Error with the same kind and message.
// This lets sentinel values like ErrNotFound match wrapped copies.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Message == e.Message
}

func newError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func validationf(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func internal(msg string, err error) *Error {
	return &Error{Kind: KindInternal, Message: msg, Err: err}
}

// Sentinel errors. Compare with errors.Is.
var (
	ErrNotFound          = newError(KindNotFound, "Transaction not found")
	ErrDuplicate         = newError(KindConflict, "Transaction already exists")
	ErrAmountNotPositive = newError(KindValidation, "Amount must be greater than zero")
	ErrAmountOutOfRange  = newError(KindValidation, "Amount must have at most 12 integer digits and 2 decimal places")
	ErrDeletedNotAllowed = newError(KindValidation, "'deleted' field is not allowed.")
	ErrMissingFields     = newError(KindValidation, "All fields are required")
	ErrNoIDs             = newError(KindValidation, "Invalid input: Array of IDs is required.")
	ErrNothingToImport   = newError(KindValidation, "Transactions are already Updated.")
	ErrTooManyImports    = newError(KindUnavailable, "too many concurrent imports, please try again later")
)

// ParseError reports a CSV stream that could not be decoded.
// It aborts the whole import and maps to KindInternal.
type ParseError struct {
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("Error parsing CSV file: line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("Error parsing CSV file: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of err. Errors that carry no kind are internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// PublicMessage returns the client-facing message for err.
// Errors without a Kind get a generic message so internals never leak.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	var pe *ParseError
	if errors.As(err, &pe) {
		return pe.Error()
	}
	return "An unexpected error occurred"
}
