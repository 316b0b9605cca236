package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures of the backup and restore flows.
type ErrorKind string

const (
	KindToolNotFound        ErrorKind = "tool_not_found"
	KindToolExecutionFailed ErrorKind = "tool_execution_failed"
	KindFileSystem          ErrorKind = "filesystem"
	KindValidation          ErrorKind = "validation"
	KindConcurrencyHazard   ErrorKind = "concurrency_hazard"
	KindNotFound            ErrorKind = "not_found"
)

// Sentinels for errors.Is. Any *Error of the same kind matches.
var (
	ErrToolNotFound        = &Error{Kind: KindToolNotFound}
	ErrToolExecutionFailed = &Error{Kind: KindToolExecutionFailed}
	ErrFileSystem          = &Error{Kind: KindFileSystem}
	ErrValidation          = &Error{Kind: KindValidation}
	ErrConcurrencyHazard   = &Error{Kind: KindConcurrencyHazard}
	ErrNotFound            = &Error{Kind: KindNotFound}
)

// Error carries a kind, the failing operation and an optional cause.
type Error struct {
	Kind    ErrorKind
	Op      string
	Message string
	Err     error
}

func NewError(kind ErrorKind, op, message string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

func Validationf(op, format string, args ...interface{}) *Error {
	return NewError(KindValidation, op, fmt.Sprintf(format, args...), nil)
}

func NotFoundf(op, format string, args ...interface{}) *Error {
	return NewError(KindNotFound, op, fmt.Sprintf(format, args...), nil)
}
