package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"modeldash/internal/mirror"
	"modeldash/internal/reconcile"
	"modeldash/internal/view"
	"modeldash/pkg/types"
)

// State is the lifecycle of one collection refresh.
type State string

const (
	StateIdle     State = "idle"
	StateFetching State = "fetching"
	StateApplying State = "applying"
)

// Result is the outcome of one refresh of one collection.
type Result struct {
	Collection types.CollectionID
	OK         bool
	At         time.Time
	Err        error
}

// Source is a collection the scheduler can refresh.
type Source interface {
	ID() types.CollectionID
	// Refresh fetches and applies a snapshot. Concurrent calls share one fetch.
	Refresh(ctx context.Context) Result
	State() State
	Count() int
}

// FetchFunc returns the current snapshot of a collection. It must not retry.
type FetchFunc[E any] func(ctx context.Context) ([]E, error)

// Poller refreshes one mirror from one fetch function.
type Poller[E reconcile.Entity[E]] struct {
	mirror *mirror.Mirror[E]
	fetch  FetchFunc[E]
	view   view.View
	now    func() time.Time
	log    zerolog.Logger

	sf    singleflight.Group
	mu    sync.Mutex
	state State
}

// NewPoller binds fetch to m. v receives one OnRefreshStatus per fetch.
func NewPoller[E reconcile.Entity[E]](m *mirror.Mirror[E], fetch FetchFunc[E], v view.View, log zerolog.Logger) *Poller[E] {
	if v == nil {
		v = view.Noop{}
	}
	return &Poller[E]{
		mirror: m,
		fetch:  fetch,
		view:   v,
		now:    time.Now,
		log:    log.With().Str("component", "poller").Str("collection", string(m.ID())).Logger(),
		state:  StateIdle,
	}
}

func (p *Poller[E]) ID() types.CollectionID { return p.mirror.ID() }

func (p *Poller[E]) Count() int { return p.mirror.Len() }

func (p *Poller[E]) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Poller[E]) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// Refresh runs one Idle→Fetching→Applying→Idle cycle, or joins the one in
// flight. ctx only bounds how long this caller waits; a started fetch runs
// to completion for the callers that share it.
func (p *Poller[E]) Refresh(ctx context.Context) Result {
	ch := p.sf.DoChan("refresh", func() (any, error) {
		return p.cycle(context.WithoutCancel(ctx)), nil
	})
	select {
	case r := <-ch:
		if r.Shared {
			refreshCoalesced.WithLabelValues(string(p.ID())).Inc()
		}
		return r.Val.(Result)
	case <-ctx.Done():
		return Result{Collection: p.ID(), At: p.now(), Err: ctx.Err()}
	}
}

func (p *Poller[E]) cycle(ctx context.Context) Result {
	id := p.ID()
	start := p.now()
	p.setState(StateFetching)
	tok := p.mirror.BeginFetch()
	snap, err := p.fetch(ctx)
	if err == nil {
		p.setState(StateApplying)
		var d deltaCounts
		d, err = p.apply(tok, snap)
		if err == nil {
			deltaEvents.WithLabelValues(string(id), "added").Add(float64(d.added))
			deltaEvents.WithLabelValues(string(id), "removed").Add(float64(d.removed))
			deltaEvents.WithLabelValues(string(id), "changed").Add(float64(d.changed))
		}
	} else {
		p.mirror.AbandonFetch(tok)
	}
	p.setState(StateIdle)

	at := p.now()
	refreshDuration.WithLabelValues(string(id)).Observe(at.Sub(start).Seconds())
	res := Result{Collection: id, OK: err == nil, At: at, Err: err}
	if err != nil {
		refreshTotal.WithLabelValues(string(id), "failure").Inc()
		p.log.Warn().Err(err).Msg("refresh failed")
	} else {
		refreshTotal.WithLabelValues(string(id), "success").Inc()
		p.log.Debug().Int("count", p.mirror.Len()).Msg("refreshed")
	}
	p.view.OnRefreshStatus(id, res.OK, at)
	return res
}

type deltaCounts struct{ added, removed, changed int }

func (p *Poller[E]) apply(tok mirror.Token, snap []E) (deltaCounts, error) {
	d, err := p.mirror.Sync(tok, snap)
	if err != nil {
		return deltaCounts{}, err
	}
	return deltaCounts{len(d.Added), len(d.Removed), len(d.Changed)}, nil
}
