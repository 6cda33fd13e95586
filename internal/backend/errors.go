package backend

import (
	"errors"
	"net/http"
	"strconv"
)

// unavailableError signals a transport-level failure: the daemon could not be
// reached or the connection broke mid-response.
type unavailableError struct {
	op  string
	err error
}

func (e unavailableError) Error() string { return "backend unavailable: " + e.op + ": " + e.err.Error() }
func (e unavailableError) Unwrap() error { return e.err }

// StatusCode maps to 503 for the HTTP layer.
func (e unavailableError) StatusCode() int { return http.StatusServiceUnavailable }

// ErrUnavailable wraps err as a transport failure of op.
func ErrUnavailable(op string, err error) error { return unavailableError{op: op, err: err} }

// IsUnavailable reports whether err is a transport-level failure.
func IsUnavailable(err error) bool {
	var e unavailableError
	return errors.As(err, &e)
}

// backendError signals a protocol or application error reported by the daemon:
// a non-2xx status, an error line in a stream, or a malformed body.
type backendError struct {
	op     string
	status int
	msg    string
}

func (e backendError) Error() string {
	if e.status > 0 {
		return "backend error: " + e.op + ": status " + strconv.Itoa(e.status) + ": " + e.msg
	}
	return "backend error: " + e.op + ": " + e.msg
}

// StatusCode maps daemon 404s through and everything else to 502.
func (e backendError) StatusCode() int {
	if e.status == http.StatusNotFound {
		return http.StatusNotFound
	}
	return http.StatusBadGateway
}

// ErrBackend constructs a protocol/application error of op.
func ErrBackend(op string, status int, msg string) error {
	return backendError{op: op, status: status, msg: msg}
}

// IsBackendError reports whether err was reported by the daemon.
func IsBackendError(err error) bool {
	var e backendError
	return errors.As(err, &e)
}

// IsNotFound reports whether the daemon answered 404.
func IsNotFound(err error) bool {
	var e backendError
	return errors.As(err, &e) && e.status == http.StatusNotFound
}

// Message returns the daemon-provided message of a backend error, or err.Error().
func Message(err error) string {
	var e backendError
	if errors.As(err, &e) {
		return e.msg
	}
	return err.Error()
}
