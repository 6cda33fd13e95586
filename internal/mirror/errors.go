package mirror

import "errors"

// inProgressError signals a second mutation on a key that already has one pending.
type inProgressError struct {
	key     string
	pending string
}

func (e inProgressError) Error() string {
	return "mutation in progress for " + e.key + " (" + e.pending + ")"
}

// ErrInProgress constructs an inProgressError for key held by mutation id.
func ErrInProgress(key, id string) error { return inProgressError{key: key, pending: id} }

// IsInProgress reports whether err rejects a concurrent mutation on the same key.
func IsInProgress(err error) bool {
	var e inProgressError
	return errors.As(err, &e)
}
