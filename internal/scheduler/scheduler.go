// Package scheduler drives periodic and on-demand refreshes of the mirrored
// collections and folds their outcomes into one combined status.
//
// Each collection has its own Poller; collections refresh concurrently, and a
// manual trigger for a collection already being fetched joins that fetch.
// Failures are recorded, never retried before the next tick, and never stop
// the loop.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"modeldash/pkg/types"
)

// Status is the combined outcome of the latest refresh of every collection.
type Status struct {
	// OK is the logical AND over every collection.
	OK bool
	// At is the least favourable completion time: the oldest failure if any
	// collection failed, otherwise the oldest success.
	At          time.Time
	Message     string
	Collections []Result
	Cycles      uint64
}

// Scheduler refreshes a fixed set of sources.
type Scheduler struct {
	sources  []Source
	interval time.Duration
	log      zerolog.Logger

	mu     sync.RWMutex
	latest map[types.CollectionID]Result
	cycles uint64
	ready  chan struct{}
	once   sync.Once
}

// New returns a scheduler over sources. interval must be positive for Run.
func New(interval time.Duration, log zerolog.Logger, sources ...Source) *Scheduler {
	return &Scheduler{
		sources:  sources,
		interval: interval,
		log:      log.With().Str("component", "scheduler").Logger(),
		latest:   make(map[types.CollectionID]Result),
		ready:    make(chan struct{}),
	}
}

// Sources returns the scheduled sources in registration order.
func (s *Scheduler) Sources() []Source { return s.sources }

// Run performs an initial cycle, then one per interval until ctx is done.
// Ticks that fire while a cycle is still running are dropped.
func (s *Scheduler) Run(ctx context.Context) error {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	s.Cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			s.Cycle(ctx)
		}
	}
}

// Cycle refreshes every source concurrently and returns the combined status.
func (s *Scheduler) Cycle(ctx context.Context) Status {
	st := s.refresh(ctx, s.sources)
	if st.OK {
		s.log.Debug().Str("message", st.Message).Msg("cycle complete")
	} else {
		s.log.Warn().Str("message", st.Message).Msg("cycle complete with failures")
	}
	return st
}

// Refresh refreshes only the named collections, or all when ids is empty,
// and returns the combined status over the latest result of every source.
// If ctx ends first the status returned is the one recorded so far.
func (s *Scheduler) Refresh(ctx context.Context, ids ...types.CollectionID) Status {
	if len(ids) == 0 {
		return s.Cycle(ctx)
	}
	var sel []Source
	for _, src := range s.sources {
		for _, id := range ids {
			if src.ID() == id {
				sel = append(sel, src)
			}
		}
	}
	return s.refresh(ctx, sel)
}

// refresh records results when the fetches finish, not when the caller
// stops waiting, so a detached caller never records a failure for a fetch
// that later succeeds.
func (s *Scheduler) refresh(ctx context.Context, sources []Source) Status {
	done := make(chan struct{})
	go func() {
		defer close(done)
		results := make([]Result, len(sources))
		var wg sync.WaitGroup
		for i, src := range sources {
			wg.Add(1)
			go func() {
				defer wg.Done()
				results[i] = src.Refresh(context.WithoutCancel(ctx))
			}()
		}
		wg.Wait()

		full := len(sources) == len(s.sources)
		s.mu.Lock()
		for _, r := range results {
			s.latest[r.Collection] = r
		}
		if full {
			s.cycles++
		}
		s.mu.Unlock()
		if full {
			s.once.Do(func() { close(s.ready) })
		}
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.log.Debug().Err(ctx.Err()).Msg("refresh caller detached")
	}
	return s.Status()
}

// Ready is closed once the first full cycle has been recorded.
func (s *Scheduler) Ready() <-chan struct{} { return s.ready }

// Status combines the latest result of every source. Sources never refreshed
// count as failed.
func (s *Scheduler) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rs := make([]Result, 0, len(s.sources))
	for _, src := range s.sources {
		r, ok := s.latest[src.ID()]
		if !ok {
			r = Result{Collection: src.ID()}
		}
		rs = append(rs, r)
	}
	st := Combine(rs)
	st.Cycles = s.cycles
	return st
}

// Combine folds per-collection results into one status.
func Combine(rs []Result) Status {
	st := Status{OK: true, Collections: rs}
	var okAt, failAt time.Time
	for _, r := range rs {
		if r.OK {
			if okAt.IsZero() || r.At.Before(okAt) {
				okAt = r.At
			}
			continue
		}
		st.OK = false
		if failAt.IsZero() || (!r.At.IsZero() && r.At.Before(failAt)) {
			failAt = r.At
		}
	}
	if st.OK {
		st.At = okAt
	} else {
		st.At = failAt
	}
	st.Message = Message(st.OK, st.At)
	return st
}

// Message renders the status line shown next to the refresh control.
func Message(ok bool, at time.Time) string {
	if ok {
		return "Refreshed successfully at " + at.Format(time.TimeOnly)
	}
	return "Failed refresh at " + at.Format(time.TimeOnly)
}
