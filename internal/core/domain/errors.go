package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrTemporary          = errors.New("temporary failure")
)

// Failure is a typed error whose message is safe to return to API clients.
type Failure struct {
	kind      error
	operation string
	message   string
}

// Fail builds a Failure of the given kind.
func Fail(kind error, operation, message string) error {
	return &Failure{kind: kind, operation: operation, message: message}
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s: %s", f.operation, f.kind, f.message)
}

func (f *Failure) Unwrap() error { return f.kind }

func (f *Failure) Message() string { return f.message }

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// PublicMessage returns the client-facing text of err. Untyped errors
// collapse to a generic message so infrastructure details do not leak.
func PublicMessage(err error) string {
	var failure *Failure
	if errors.As(err, &failure) {
		return failure.message
	}
	for _, kind := range []error{
		ErrInvalidArgument,
		ErrNotFound,
		ErrConflict,
		ErrUnauthorized,
		ErrPermissionDenied,
		ErrPreconditionFailed,
		ErrTemporary,
	} {
		if errors.Is(err, kind) {
			return kind.Error()
		}
	}
	return "internal server error"
}
