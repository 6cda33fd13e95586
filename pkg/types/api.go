package types

import "time"

// ModelsResponse wraps the installed collection returned by GET /models.
type ModelsResponse struct {
	Models []InstalledModel `json:"models"`
}

// RunningResponse wraps the running collection returned by GET /running.
type RunningResponse struct {
	Models []RunningModel `json:"models"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: model not found
	Error string `json:"error" example:"model not found"`
	// HTTP status code.
	// example: 404
	Code int `json:"code" example:"404"`
}

// PullRequest is the body of POST /models/pull.
type PullRequest struct {
	// example: llama3.2:3b
	Model string `json:"model" example:"llama3.2:3b"`
}

// CreateRequest is the body of POST /models/create.
type CreateRequest struct {
	// example: grumpy
	Model string `json:"model" example:"grumpy"`
	// example: FROM llama3.2:3b\nSYSTEM You are grumpy.
	Modelfile string `json:"modelfile" example:"FROM llama3.2:3b"`
}

// MutationResponse reports an accepted or settled mutation.
type MutationResponse struct {
	// example: 3f0c8a52-8a1e-4c3b-9d55-0d8f8f6b5a77
	ID    string       `json:"mutation_id"`
	Kind  MutationKind `json:"kind"`
	Model string       `json:"model"`
	// Set once the mutation settled.
	Done  bool   `json:"done"`
	Error string `json:"error,omitempty"`
}

// CollectionStatus is the outcome of the latest fetch of one collection.
type CollectionStatus struct {
	Collection CollectionID `json:"collection"`
	// Success of the latest fetch attempt.
	OK bool `json:"ok"`
	// Time the latest attempt finished.
	At    time.Time `json:"at"`
	Error string    `json:"error,omitempty"`
	// Lifecycle of the collection poller: idle, fetching, applying.
	State string `json:"state"`
	// Number of mirrored entities.
	Count int `json:"count"`
}

// StatusResponse is returned by GET /status and POST /refresh.
type StatusResponse struct {
	// Logical AND of every collection status of the latest cycle.
	OK bool `json:"ok"`
	// Least favourable completion time of the cycle.
	At time.Time `json:"at"`
	// example: Refreshed successfully at 12:04:05
	Message     string             `json:"message" example:"Refreshed successfully at 12:04:05"`
	BackendURL  string             `json:"backend_url"`
	Collections []CollectionStatus `json:"collections"`
	// Keys with a mutation in flight.
	Pending []string `json:"pending,omitempty"`
	// Uptime of the dashboard in seconds.
	UptimeSeconds int64 `json:"uptime_seconds"`
}

// Delta is the wire form of a reconciliation result for one collection.
type Delta struct {
	Added   []any    `json:"added,omitempty"`
	Removed []string `json:"removed,omitempty"`
	Changed []any    `json:"changed,omitempty"`
}

// EventType discriminates messages on the /events stream.
type EventType string

const (
	EventDelta          EventType = "delta"
	EventRefreshStatus  EventType = "refresh_status"
	EventProgress       EventType = "progress"
	EventMutationResult EventType = "mutation_result"
)

// Event is one message pushed to /events subscribers.
type Event struct {
	Type       EventType      `json:"type"`
	Collection CollectionID   `json:"collection,omitempty"`
	Delta      *Delta         `json:"delta,omitempty"`
	OK         *bool          `json:"ok,omitempty"`
	At         time.Time      `json:"at"`
	MutationID string         `json:"mutation_id,omitempty"`
	Progress   *ProgressEvent `json:"progress,omitempty"`
	Error      string         `json:"error,omitempty"`
}
