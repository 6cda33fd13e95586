package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"modeldash/internal/backend"
	"modeldash/internal/mutation"
	"modeldash/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// statusFor maps service errors to HTTP status codes. Backend errors carry
// their own code (503 unreachable, 404 passthrough, 502 otherwise) and keep it
// when wrapped by a failed mutation.
func statusFor(err error) int {
	switch {
	case mutation.IsInvalid(err):
		return http.StatusBadRequest
	case mutation.IsInProgress(err):
		return http.StatusConflict
	case mutation.IsTooBusy(err):
		return http.StatusTooManyRequests
	case backend.IsNotFound(err):
		return http.StatusNotFound
	}
	var he HTTPError
	if errors.As(err, &he) {
		return he.StatusCode()
	}
	if mutation.IsMutationFailed(err) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// writeError maps err and writes it as a JSON error payload.
func writeError(w http.ResponseWriter, err error) int {
	code := statusFor(err)
	if code == http.StatusTooManyRequests {
		IncrementBackpressure("mutation_slots")
	}
	writeJSONError(w, code, err.Error())
	return code
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger().Debug().Err(err).Msg("encode response")
	}
}
