package view

import (
	"sync"
	"sync/atomic"
	"time"

	"modeldash/pkg/types"
)

const defaultSubscriberBuffer = 64

// Hub fans events out to subscribers without blocking the publisher. A
// subscriber whose buffer is full misses the event; Dropped counts those.
type Hub struct {
	mu      sync.Mutex
	subs    map[uint64]chan types.Event
	nextID  uint64
	dropped atomic.Uint64
	now     func() time.Time
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[uint64]chan types.Event), now: time.Now}
}

// Subscribe registers a subscriber with the given buffer (<=0 uses 64). The
// returned cancel func unregisters it and closes the channel; it is safe to
// call more than once.
func (h *Hub) Subscribe(buffer int) (<-chan types.Event, func()) {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	ch := make(chan types.Event, buffer)
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subs[id] = ch
	h.mu.Unlock()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers returns the number of active subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Dropped returns the number of events not delivered because a subscriber
// was too slow.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

// Publish delivers e to every subscriber that has room.
func (h *Hub) Publish(e types.Event) {
	if e.At.IsZero() {
		e.At = h.now()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- e:
		default:
			h.dropped.Add(1)
		}
	}
}

func (h *Hub) OnDelta(id types.CollectionID, d types.Delta) {
	h.Publish(types.Event{Type: types.EventDelta, Collection: id, Delta: &d})
}

func (h *Hub) OnRefreshStatus(id types.CollectionID, ok bool, at time.Time) {
	h.Publish(types.Event{Type: types.EventRefreshStatus, Collection: id, OK: &ok, At: at})
}

func (h *Hub) OnProgress(mutationID string, ev types.ProgressEvent) {
	h.Publish(types.Event{Type: types.EventProgress, MutationID: mutationID, Progress: &ev})
}

func (h *Hub) OnMutationResult(mutationID string, ok bool, err error) {
	e := types.Event{Type: types.EventMutationResult, MutationID: mutationID, OK: &ok}
	if err != nil {
		e.Error = err.Error()
	}
	h.Publish(e)
}
