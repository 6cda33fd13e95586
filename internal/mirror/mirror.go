// Package mirror guards one reconciled collection. Poll-driven snapshots and
// user mutations are the only two writers and both go through a Mirror, which
// serializes them per collection and keeps a pending mutation on a key from
// being undone by a poll that raced with it.
package mirror

import (
	"slices"
	"sync"

	"github.com/rs/zerolog"

	"modeldash/internal/reconcile"
	"modeldash/pkg/types"
)

// Token identifies one fetch. Tokens are ordered: a lower token started earlier.
type Token uint64

// queuedChange is the latest poll view of a pending key.
type queuedChange[E reconcile.Entity[E]] struct {
	present bool
	entity  E
	token   Token
}

// fence records a settled mutation so fetches that started before it cannot
// contradict its post-condition.
type fence struct {
	seq     uint64
	present bool
}

// Mirror owns a Collection and is safe for concurrent use.
type Mirror[E reconcile.Entity[E]] struct {
	id  types.CollectionID
	log zerolog.Logger

	mu       sync.Mutex
	coll     *reconcile.Collection[E]
	seq      uint64
	inflight map[Token]struct{}
	pending  map[string]string
	queued   map[string]queuedChange[E]
	fences   map[string]fence
	onDelta  func(types.CollectionID, reconcile.Delta[E])
}

// New returns an empty mirror. onDelta, if non-nil, is invoked with every
// applied delta while the mirror lock is held, so it must not block or call
// back into the mirror.
func New[E reconcile.Entity[E]](id types.CollectionID, onDelta func(types.CollectionID, reconcile.Delta[E]), log zerolog.Logger) *Mirror[E] {
	return &Mirror[E]{
		id:       id,
		log:      log.With().Str("collection", string(id)).Logger(),
		coll:     reconcile.NewCollection[E](),
		inflight: make(map[Token]struct{}),
		pending:  make(map[string]string),
		queued:   make(map[string]queuedChange[E]),
		fences:   make(map[string]fence),
		onDelta:  onDelta,
	}
}

// ID returns the collection this mirror holds.
func (m *Mirror[E]) ID() types.CollectionID { return m.id }

func (m *Mirror[E]) next() uint64 {
	m.seq++
	return m.seq
}

// BeginFetch registers a fetch about to start and returns its token. Every
// token must be released by Sync or AbandonFetch.
func (m *Mirror[E]) BeginFetch() Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := Token(m.next())
	m.inflight[t] = struct{}{}
	return t
}

// AbandonFetch releases a token whose fetch failed.
func (m *Mirror[E]) AbandonFetch(t Token) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.release(t)
}

func (m *Mirror[E]) release(t Token) {
	delete(m.inflight, t)
	for k, f := range m.fences {
		if !m.fetchStartedBefore(f.seq) {
			delete(m.fences, k)
		}
	}
}

func (m *Mirror[E]) fetchStartedBefore(seq uint64) bool {
	for t := range m.inflight {
		if uint64(t) < seq {
			return true
		}
	}
	return false
}

// Sync reconciles the snapshot fetched under t and applies the result.
// The snapshot's view of each pending key is queued until the mutation
// settles, and changes
// that contradict a mutation settled after t started are dropped. The
// returned delta is what was applied. A snapshot with a duplicate key leaves
// the collection untouched.
func (m *Mirror[E]) Sync(t Token, snapshot []E) (reconcile.Delta[E], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.release(t)

	d, err := reconcile.Reconcile(m.coll, snapshot)
	if err != nil {
		return reconcile.Delta[E]{}, err
	}
	held, rest := d.Split(func(k string) bool {
		_, ok := m.pending[k]
		return ok
	})
	// Record this poll's view of every pending key, including keys it agrees
	// on, so an older queued change never outlives a newer observation.
	if len(m.pending) > 0 {
		seen := make(map[string]E, len(m.pending))
		for _, e := range snapshot {
			if _, ok := m.pending[e.Key()]; ok {
				seen[e.Key()] = e
			}
		}
		for k := range m.pending {
			e, present := seen[k]
			m.enqueue(k, queuedChange[E]{present: present, entity: e, token: t})
		}
	}
	if held.Len() > 0 {
		m.log.Debug().Int("queued", held.Len()).Msg("poll changes held for pending mutations")
	}

	stale, apply := rest.Split(func(k string) bool {
		f, ok := m.fences[k]
		return ok && uint64(t) < f.seq
	})
	for _, e := range append(stale.Added, stale.Changed...) {
		if m.fences[e.Key()].present {
			apply.Changed = append(apply.Changed, e)
		} else {
			m.log.Debug().Str("key", e.Key()).Msg("dropped stale poll change")
		}
	}
	for _, k := range stale.Removed {
		if !m.fences[k].present {
			apply.Removed = append(apply.Removed, k)
		} else {
			m.log.Debug().Str("key", k).Msg("dropped stale poll removal")
		}
	}
	apply = m.normalize(apply)
	m.commit(apply)
	return apply, nil
}

func (m *Mirror[E]) enqueue(key string, q queuedChange[E]) {
	if prev, ok := m.queued[key]; ok && prev.token > q.token {
		return
	}
	m.queued[key] = q
}

// normalize classifies upserts against the current collection.
func (m *Mirror[E]) normalize(d reconcile.Delta[E]) reconcile.Delta[E] {
	var out reconcile.Delta[E]
	out.Removed = d.Removed
	for _, e := range append(d.Added, d.Changed...) {
		prev, ok := m.coll.Get(e.Key())
		switch {
		case !ok:
			out.Added = append(out.Added, e)
		case !prev.Equal(e):
			out.Changed = append(out.Changed, e)
		}
	}
	return out
}

func (m *Mirror[E]) commit(d reconcile.Delta[E]) {
	if d.Empty() {
		return
	}
	reconcile.Apply(m.coll, d)
	if m.onDelta != nil {
		m.onDelta(m.id, d)
	}
}

// Begin marks key as pending for mutation id. A key that already has a
// pending mutation fails fast with an in-progress error.
func (m *Mirror[E]) Begin(key, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if holder, ok := m.pending[key]; ok {
		return ErrInProgress(key, holder)
	}
	m.pending[key] = id
	return nil
}

// Settle clears the pending mark of mutation id on key.
//
// On success present is the post-condition of the mutation: false removes the
// key eagerly, true keeps whatever the collection holds. Queued poll changes
// that agree with the post-condition are applied, the rest are discarded, and
// fetches still in flight that started earlier are fenced off the key.
// On failure the collection is left as is and queued poll changes are applied.
func (m *Mirror[E]) Settle(key, id string, ok, present bool) reconcile.Delta[E] {
	m.mu.Lock()
	defer m.mu.Unlock()
	if holder, found := m.pending[key]; !found || holder != id {
		return reconcile.Delta[E]{}
	}
	delete(m.pending, key)
	settled := m.next()
	q, hasQueued := m.queued[key]
	delete(m.queued, key)

	var d reconcile.Delta[E]
	if ok {
		if !present && m.coll.Has(key) {
			d.Removed = append(d.Removed, key)
		}
		if hasQueued && present && q.present {
			d.Changed = append(d.Changed, q.entity)
		}
		if m.fetchStartedBefore(settled) {
			m.fences[key] = fence{seq: settled, present: present}
		}
	} else if hasQueued {
		if q.present {
			d.Changed = append(d.Changed, q.entity)
		} else if m.coll.Has(key) {
			d.Removed = append(d.Removed, key)
		}
	}
	d = m.normalize(d)
	m.commit(d)
	return d
}

// Pending returns the keys that have a mutation in flight.
func (m *Mirror[E]) Pending() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.pending))
	for k := range m.pending {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// IsPending reports whether key has a mutation in flight.
func (m *Mirror[E]) IsPending(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.pending[key]
	return ok
}

// List returns the mirrored entities ordered by key.
func (m *Mirror[E]) List() []E {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.coll.List()
}

// Get returns the entity stored under key.
func (m *Mirror[E]) Get(key string) (E, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.coll.Get(key)
}

// Len returns the number of mirrored entities.
func (m *Mirror[E]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.coll.Len()
}

// Snapshot returns a copy of the mirrored collection.
func (m *Mirror[E]) Snapshot() *reconcile.Collection[E] {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.coll.Clone()
}
