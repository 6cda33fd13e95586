package view

import (
	"sync"
	"time"

	"modeldash/pkg/types"
)

// Recorder stores events in memory. Used by tests.
type Recorder struct {
	mu     sync.Mutex
	events []types.Event
	notify chan struct{}
}

func NewRecorder() *Recorder { return &Recorder{notify: make(chan struct{}, 1)} }

func (r *Recorder) add(e types.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

func (r *Recorder) OnDelta(id types.CollectionID, d types.Delta) {
	r.add(types.Event{Type: types.EventDelta, Collection: id, Delta: &d})
}

func (r *Recorder) OnRefreshStatus(id types.CollectionID, ok bool, at time.Time) {
	r.add(types.Event{Type: types.EventRefreshStatus, Collection: id, OK: &ok, At: at})
}

func (r *Recorder) OnProgress(mutationID string, ev types.ProgressEvent) {
	r.add(types.Event{Type: types.EventProgress, MutationID: mutationID, Progress: &ev})
}

func (r *Recorder) OnMutationResult(mutationID string, ok bool, err error) {
	e := types.Event{Type: types.EventMutationResult, MutationID: mutationID, OK: &ok}
	if err != nil {
		e.Error = err.Error()
	}
	r.add(e)
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []types.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfType returns the recorded events of type t.
func (r *Recorder) OfType(t types.EventType) []types.Event {
	var out []types.Event
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// WaitFor blocks until match returns true for some recorded event or the
// timeout expires.
func (r *Recorder) WaitFor(timeout time.Duration, match func(types.Event) bool) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		for _, e := range r.Events() {
			if match(e) {
				return true
			}
		}
		select {
		case <-r.notify:
		case <-deadline.C:
			return false
		}
	}
}
