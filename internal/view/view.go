// Package view defines how the dashboard core reports to the presentation
// layer, and the views shipped with it:
//
//   - view.go: View interface, Noop, Multi fan-out and delta conversion.
//   - hub.go: Hub, a non-blocking fan-out to event subscribers (websocket).
//   - recorder.go: Recorder, an in-memory view for tests.
//   - log.go: Log, a zerolog-backed view.
//   - table.go: terminal table rendering of the collections.
//
// Every callback may be invoked while a collection lock is held. Views must
// return quickly and must not call back into the core.
package view

import (
	"time"

	"modeldash/internal/reconcile"
	"modeldash/pkg/types"
)

// View receives reconciliation and mutation events.
type View interface {
	OnDelta(id types.CollectionID, d types.Delta)
	OnRefreshStatus(id types.CollectionID, ok bool, at time.Time)
	OnProgress(mutationID string, ev types.ProgressEvent)
	OnMutationResult(mutationID string, ok bool, err error)
}

// Noop drops every event.
type Noop struct{}

func (Noop) OnDelta(types.CollectionID, types.Delta)             {}
func (Noop) OnRefreshStatus(types.CollectionID, bool, time.Time) {}
func (Noop) OnProgress(string, types.ProgressEvent)              {}
func (Noop) OnMutationResult(string, bool, error)                {}

// Multi forwards every event to each view in order.
type Multi []View

func (m Multi) OnDelta(id types.CollectionID, d types.Delta) {
	for _, v := range m {
		v.OnDelta(id, d)
	}
}

func (m Multi) OnRefreshStatus(id types.CollectionID, ok bool, at time.Time) {
	for _, v := range m {
		v.OnRefreshStatus(id, ok, at)
	}
}

func (m Multi) OnProgress(mutationID string, ev types.ProgressEvent) {
	for _, v := range m {
		v.OnProgress(mutationID, ev)
	}
}

func (m Multi) OnMutationResult(mutationID string, ok bool, err error) {
	for _, v := range m {
		v.OnMutationResult(mutationID, ok, err)
	}
}

// Combine returns a single view over vs, skipping nils.
func Combine(vs ...View) View {
	out := make(Multi, 0, len(vs))
	for _, v := range vs {
		if v != nil {
			out = append(out, v)
		}
	}
	switch len(out) {
	case 0:
		return Noop{}
	case 1:
		return out[0]
	}
	return out
}

// FromDelta converts a typed delta to its wire form.
func FromDelta[E reconcile.Entity[E]](d reconcile.Delta[E]) types.Delta {
	var out types.Delta
	for _, e := range d.Added {
		out.Added = append(out.Added, e)
	}
	out.Removed = append(out.Removed, d.Removed...)
	for _, e := range d.Changed {
		out.Changed = append(out.Changed, e)
	}
	return out
}

// Forward returns an onDelta callback for a mirror that converts and hands
// deltas to v.
func Forward[E reconcile.Entity[E]](v View) func(types.CollectionID, reconcile.Delta[E]) {
	return func(id types.CollectionID, d reconcile.Delta[E]) {
		v.OnDelta(id, FromDelta(d))
	}
}
