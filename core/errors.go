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

// ErrorKind classifies domain errors so that transports can map them.
type ErrorKind int

const (
	KindInvalid ErrorKind = iota + 1
	KindNotFound
	KindForbidden
	KindConflict
)

// AppError is a domain rule violation. It is safe to show its message to clients.
type AppError struct {
	Kind ErrorKind
	Msg  string
}

func (err *AppError) Error() string {
	return err.Msg
}

func NewInvalidError(msg string) error   { return &AppError{Kind: KindInvalid, Msg: msg} }
func NewNotFoundError(msg string) error  { return &AppError{Kind: KindNotFound, Msg: msg} }
func NewForbiddenError(msg string) error { return &AppError{Kind: KindForbidden, Msg: msg} }
func NewConflictError(msg string) error  { return &AppError{Kind: KindConflict, Msg: msg} }

// IsKind reports whether the cause of err is an AppError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	appErr, ok := errors.Cause(err).(*AppError)
	return ok && appErr.Kind == kind
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
