package view

import (
	"time"

	"github.com/rs/zerolog"

	"modeldash/pkg/types"
)

// Log writes every event to a zerolog logger. Deltas and progress log at
// debug, refresh failures and failed mutations at warn.
type Log struct {
	log zerolog.Logger
}

func NewLog(l zerolog.Logger) Log {
	return Log{log: l.With().Str("component", "view").Logger()}
}

func (v Log) OnDelta(id types.CollectionID, d types.Delta) {
	v.log.Debug().
		Str("collection", string(id)).
		Int("added", len(d.Added)).
		Int("removed", len(d.Removed)).
		Int("changed", len(d.Changed)).
		Msg("delta applied")
}

func (v Log) OnRefreshStatus(id types.CollectionID, ok bool, at time.Time) {
	if ok {
		v.log.Debug().Str("collection", string(id)).Time("at", at).Msg("refresh ok")
		return
	}
	v.log.Warn().Str("collection", string(id)).Time("at", at).Msg("refresh failed")
}

func (v Log) OnProgress(mutationID string, ev types.ProgressEvent) {
	v.log.Debug().
		Str("mutation_id", mutationID).
		Str("status", ev.Status).
		Int64("completed", ev.Completed).
		Int64("total", ev.Total).
		Msg("progress")
}

func (v Log) OnMutationResult(mutationID string, ok bool, err error) {
	if ok {
		v.log.Info().Str("mutation_id", mutationID).Msg("mutation succeeded")
		return
	}
	v.log.Warn().Str("mutation_id", mutationID).Err(err).Msg("mutation failed")
}
