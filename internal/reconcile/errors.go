package reconcile

import (
	"errors"
	"strconv"
)

// duplicateKeyError signals a snapshot that contains the same key twice.
type duplicateKeyError struct {
	key   string
	first int
	dup   int
}

func (e duplicateKeyError) Error() string {
	return "duplicate key in snapshot: " + strconv.Quote(e.key) +
		" at positions " + strconv.Itoa(e.first) + " and " + strconv.Itoa(e.dup)
}

// ErrDuplicateKey constructs a duplicate key error for key.
func ErrDuplicateKey(key string) error { return duplicateKeyError{key: key} }

// IsDuplicateKey reports whether err is a snapshot integrity violation.
func IsDuplicateKey(err error) bool {
	var e duplicateKeyError
	return errors.As(err, &e)
}

// DuplicateKey returns the offending key when err is a duplicate key error.
func DuplicateKey(err error) (string, bool) {
	var e duplicateKeyError
	if errors.As(err, &e) {
		return e.key, true
	}
	return "", false
}
