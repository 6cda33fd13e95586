package mutation

import (
	"errors"

	"modeldash/internal/mirror"
	"modeldash/pkg/types"
)

// invalidError rejects a request before any backend call.
type invalidError struct{ msg string }

func (e invalidError) Error() string { return e.msg }

// ErrInvalid constructs a validation error.
func ErrInvalid(msg string) error { return invalidError{msg: msg} }

// IsInvalid reports whether err is a validation error (400).
func IsInvalid(err error) bool {
	var e invalidError
	return errors.As(err, &e)
}

// tooBusyError signals that every mutation slot is taken (429).
type tooBusyError struct{ key string }

func (e tooBusyError) Error() string { return "too busy: " + e.key }

// IsTooBusy reports whether err indicates backpressure.
func IsTooBusy(err error) bool {
	var e tooBusyError
	return errors.As(err, &e)
}

// IsInProgress reports whether err rejected a mutation because another one
// holds the same key.
func IsInProgress(err error) bool { return mirror.IsInProgress(err) }

// failedError wraps the backend error of a failed mutation.
type failedError struct {
	kind types.MutationKind
	key  string
	err  error
}

func (e failedError) Error() string {
	return string(e.kind) + " " + e.key + " failed: " + e.err.Error()
}

func (e failedError) Unwrap() error { return e.err }

// ErrMutationFailed wraps err as the failure of a kind mutation on key.
func ErrMutationFailed(kind types.MutationKind, key string, err error) error {
	return failedError{kind: kind, key: key, err: err}
}

// IsMutationFailed reports whether err is a failed mutation.
func IsMutationFailed(err error) bool {
	var e failedError
	return errors.As(err, &e)
}
