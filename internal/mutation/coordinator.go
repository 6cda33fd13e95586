// Package mutation runs user-initiated writes (delete, pull, create) against
// the backend and settles their outcome into the installed collection.
//
// A mutation marks its key pending before the backend call, so polls that
// complete meanwhile cannot undo it, and a second mutation on the same key
// fails fast. The backend call runs detached from the caller: dropping the
// caller's context only stops it from waiting, the operation still completes
// and is applied.
package mutation

import (
	"context"
	"iter"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"modeldash/internal/mirror"
	"modeldash/internal/view"
	"modeldash/pkg/types"
)

const defaultMaxConcurrent = 4

// Backend is the subset of the daemon API mutations use.
type Backend interface {
	Delete(ctx context.Context, name string) error
	Pull(ctx context.Context, name string) iter.Seq2[types.ProgressEvent, error]
	Create(ctx context.Context, name, modelfile string) iter.Seq2[types.ProgressEvent, error]
}

// Config configures a Coordinator.
type Config struct {
	Backend   Backend
	Installed *mirror.Mirror[types.InstalledModel]
	View      view.View
	// MaxConcurrent bounds mutations running against the backend. Zero uses 4.
	MaxConcurrent int
	// AfterSettle, if set, runs once a mutation settled, success or not.
	// Typically triggers a refresh of the installed collection.
	AfterSettle func(types.MutationKind)
	Logger      zerolog.Logger
	// NewID generates mutation ids; defaults to random UUIDs.
	NewID func() string
}

// Coordinator serializes mutations per key.
type Coordinator struct {
	be          Backend
	installed   *mirror.Mirror[types.InstalledModel]
	view        view.View
	sem         *semaphore.Weighted
	afterSettle func(types.MutationKind)
	newID       func() string
	log         zerolog.Logger
	wg          sync.WaitGroup
}

// New constructs a Coordinator.
func New(cfg Config) *Coordinator {
	n := cfg.MaxConcurrent
	if n <= 0 {
		n = defaultMaxConcurrent
	}
	c := &Coordinator{
		be:          cfg.Backend,
		installed:   cfg.Installed,
		view:        cfg.View,
		sem:         semaphore.NewWeighted(int64(n)),
		afterSettle: cfg.AfterSettle,
		newID:       cfg.NewID,
		log:         cfg.Logger.With().Str("component", "mutation").Logger(),
	}
	if c.view == nil {
		c.view = view.Noop{}
	}
	if c.newID == nil {
		c.newID = uuid.NewString
	}
	return c
}

// Mutation is a handle on one accepted mutation.
type Mutation struct {
	ID   string
	Kind types.MutationKind
	Key  string

	done chan struct{}
	mu   sync.Mutex
	last types.ProgressEvent
	err  error
}

// Done is closed once the mutation settled.
func (m *Mutation) Done() <-chan struct{} { return m.done }

// Err returns the failure of a settled mutation, nil on success or while running.
func (m *Mutation) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// LastProgress returns the most recent progress event.
func (m *Mutation) LastProgress() types.ProgressEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// Wait blocks until the mutation settles or ctx is done. A done ctx detaches
// the waiter only.
func (m *Mutation) Wait(ctx context.Context) error {
	select {
	case <-m.done:
		return m.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Response reports the mutation in API form.
func (m *Mutation) Response() types.MutationResponse {
	r := types.MutationResponse{ID: m.ID, Kind: m.Kind, Model: m.Key}
	select {
	case <-m.done:
		r.Done = true
		if err := m.Err(); err != nil {
			r.Error = err.Error()
		}
	default:
	}
	return r
}

// Delete removes name from the backend. On success name leaves the installed
// collection immediately.
func (c *Coordinator) Delete(ctx context.Context, name string) (*Mutation, error) {
	return c.start(ctx, types.MutationDelete, name, func(ctx context.Context, _ *Mutation) error {
		return c.be.Delete(ctx, name)
	})
}

// Pull downloads name, forwarding progress to the view.
func (c *Coordinator) Pull(ctx context.Context, name string) (*Mutation, error) {
	return c.start(ctx, types.MutationPull, name, func(ctx context.Context, m *Mutation) error {
		return c.drain(m, c.be.Pull(ctx, name))
	})
}

// Create builds name from a Modelfile definition, forwarding progress to the view.
func (c *Coordinator) Create(ctx context.Context, name, modelfile string) (*Mutation, error) {
	if strings.TrimSpace(modelfile) == "" {
		mutationsRejected.WithLabelValues("invalid").Inc()
		return nil, ErrInvalid("please enter a model definition")
	}
	return c.start(ctx, types.MutationCreate, name, func(ctx context.Context, m *Mutation) error {
		return c.drain(m, c.be.Create(ctx, name, modelfile))
	})
}

// Wait blocks until every accepted mutation settled or ctx is done.
func (c *Coordinator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) start(ctx context.Context, kind types.MutationKind, name string, op func(context.Context, *Mutation) error) (*Mutation, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		mutationsRejected.WithLabelValues("invalid").Inc()
		return nil, ErrInvalid("please enter a model name")
	}
	m := &Mutation{ID: c.newID(), Kind: kind, Key: name, done: make(chan struct{})}
	// A pending key reports in-progress even when every slot is taken.
	if err := c.installed.Begin(name, m.ID); err != nil {
		mutationsRejected.WithLabelValues("in_progress").Inc()
		return nil, err
	}
	if !c.sem.TryAcquire(1) {
		c.installed.Settle(name, m.ID, false, false)
		mutationsRejected.WithLabelValues("too_busy").Inc()
		return nil, tooBusyError{key: name}
	}
	log := c.log.With().Str("mutation_id", m.ID).Str("kind", string(kind)).Str("model", name).Logger()
	log.Info().Msg("mutation started")
	mutationsInflight.WithLabelValues(string(kind)).Inc()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		start := time.Now()
		err := op(context.WithoutCancel(ctx), m)
		c.sem.Release(1)
		mutationsInflight.WithLabelValues(string(kind)).Dec()
		c.settle(m, err)
		if err != nil {
			log.Warn().Err(err).Dur("dur", time.Since(start)).Msg("mutation failed")
		} else {
			log.Info().Dur("dur", time.Since(start)).Msg("mutation succeeded")
		}
		if c.afterSettle != nil {
			c.afterSettle(kind)
		}
	}()
	return m, nil
}

// drain consumes a progress stream. The first error ends it.
func (c *Coordinator) drain(m *Mutation, seq iter.Seq2[types.ProgressEvent, error]) error {
	for ev, err := range seq {
		if err != nil {
			return err
		}
		m.mu.Lock()
		m.last = ev
		m.mu.Unlock()
		c.view.OnProgress(m.ID, ev)
	}
	return nil
}

// settle applies the outcome to the collection and reports it. Delete
// guarantees absence, pull and create guarantee presence.
func (c *Coordinator) settle(m *Mutation, err error) {
	ok := err == nil
	present := m.Kind != types.MutationDelete
	if !ok {
		err = ErrMutationFailed(m.Kind, m.Key, err)
	}
	c.installed.Settle(m.Key, m.ID, ok, present)

	result := "success"
	if !ok {
		result = "failure"
	}
	mutationsTotal.WithLabelValues(string(m.Kind), result).Inc()

	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
	c.view.OnMutationResult(m.ID, ok, err)
	close(m.done)
}
