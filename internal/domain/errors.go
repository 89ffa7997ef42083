package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies ledger failures. The API layer maps each kind to a status code.
type Kind string

const (
	KindNotFound          Kind = "NOT_FOUND"
	KindForbidden         Kind = "FORBIDDEN"
	KindInsufficientFunds Kind = "INSUFFICIENT_FUNDS"
	KindDuplicateAccount  Kind = "DUPLICATE_ACCOUNT"
	KindInvalidRequest    Kind = "INVALID_REQUEST"
	KindStoreFailure      Kind = "STORE_FAILURE"
)

// Sentinels for errors.Is matching. Any *Error of the same kind matches.
var (
	ErrNotFound          = &Error{Kind: KindNotFound, Message: "not found"}
	ErrForbidden         = &Error{Kind: KindForbidden, Message: "forbidden"}
	ErrInsufficientFunds = &Error{Kind: KindInsufficientFunds, Message: "insufficient funds"}
	ErrDuplicateAccount  = &Error{Kind: KindDuplicateAccount, Message: "duplicate account"}
	ErrInvalidRequest    = &Error{Kind: KindInvalidRequest, Message: "invalid request"}
	ErrStoreFailure      = &Error{Kind: KindStoreFailure, Message: "store failure"}
)

// Error is a classified ledger failure carrying the operation that raised it
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on kind so callers can write errors.Is(err, domain.ErrNotFound).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Errorf builds a classified error with a formatted message.
func Errorf(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// StoreFailure wraps an underlying store error with the operation context.
func StoreFailure(op string, err error, format string, args ...any) error {
	return &Error{Kind: KindStoreFailure, Op: op, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of the first classified error in err's chain, or
// the empty kind when err is unclassified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
