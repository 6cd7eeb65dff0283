package core

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the service wraps exactly one of
// these, so callers classify with errors.Is.
var (
	// ErrInvalidInput covers user-correctable problems: bad file type,
	// size or shape, and metadata that fails validation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound is returned for unknown dataset ids.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState is returned when an operation is not legal for the
	// dataset's current status.
	ErrInvalidState = errors.New("invalid state")

	// ErrUpstream wraps failures of the AI collaborator, the store or
	// blob storage.
	ErrUpstream = errors.New("upstream failure")

	// ErrInternal marks unexpected failures.
	ErrInternal = errors.New("internal error")

	// ErrConflict is returned by Store.Update when a revision or status
	// precondition does not hold.
	ErrConflict = errors.New("concurrent modification")
)

// Error carries an error kind together with the operation that failed.
type Error struct {
	Kind error  // One of the Err* kinds above
	Op   string // Operation, e.g. "ingest" or "submit metadata"
	Msg  string // Human-readable detail
	Err  error  // Underlying cause, may be nil
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.Error()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, msg)
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(kind error, op, msg string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg, Err: cause}
}

func invalidInput(op, format string, args ...any) *Error {
	return newError(ErrInvalidInput, op, fmt.Sprintf(format, args...), nil)
}

func invalidState(op, format string, args ...any) *Error {
	return newError(ErrInvalidState, op, fmt.Sprintf(format, args...), nil)
}

func notFound(op, id string) *Error {
	return newError(ErrNotFound, op, fmt.Sprintf("dataset not found: %s", id), nil)
}

func upstream(op string, cause error) *Error {
	return newError(ErrUpstream, op, "", cause)
}

// KindOf returns the error kind of err, or ErrInternal when err carries
// none. ErrTooManyUploads is reported as its own kind.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range []error{ErrInvalidInput, ErrNotFound, ErrInvalidState, ErrConflict, ErrUpstream, ErrTooManyUploads} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return ErrInternal
}

// storeError classifies a store failure, passing NotFound through.
func storeError(op, id string, err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return notFound(op, id)
	case errors.Is(err, ErrConflict):
		return newError(ErrConflict, op, "", err)
	default:
		return upstream(op, err)
	}
}
