package model

import (
	"errors"
	"fmt"
)

// Error kinds. Every *Error unwraps to exactly one of these.
var (
	ErrValidation    = errors.New("validation error")
	ErrAuthorization = errors.New("authorization error")
	ErrConflict      = errors.New("conflict")
	ErrInvalidState  = errors.New("invalid state")
	ErrNotFound      = errors.New("not found")
	ErrUnavailable   = errors.New("unavailable")
)

// Error is a domain error with enough context to render a message.
type Error struct {
	Kind    error
	Message string
	BookID  int64
	LoanID  int64
	Status  LoanStatus
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Kind
}

// Errorf builds an *Error of the given kind.
func Errorf(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// ForBook attaches a book id.
func (e *Error) ForBook(id int64) *Error {
	e.BookID = id
	return e
}

// ForLoan attaches the loan id, book id and current status of l.
func (e *Error) ForLoan(l *Loan) *Error {
	e.LoanID = l.ID
	e.BookID = l.BookID
	e.Status = l.Status
	return e
}

// KindName returns a stable name for the kind of err, or "internal".
func KindName(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrAuthorization):
		return "authorization"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	default:
		return "internal"
	}
}
