package manager

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"modeldash/internal/backend"
	"modeldash/internal/mirror"
	"modeldash/internal/mutation"
	"modeldash/internal/scheduler"
	"modeldash/internal/view"
	"modeldash/pkg/types"
)

type Manager struct {
	be         backend.Backend
	backendURL string
	installed  *mirror.Mirror[types.InstalledModel]
	running    *mirror.Mirror[types.RunningModel]
	sched      *scheduler.Scheduler
	coord      *mutation.Coordinator
	hub        *view.Hub
	view       view.View
	log        zerolog.Logger
	startTime  time.Time
}

// Run polls until ctx is done, then waits for in-flight mutations to settle.
func (m *Manager) Run(ctx context.Context) error {
	m.log.Info().Str("backend", m.backendURL).Msg("polling started")
	err := m.sched.Run(ctx)
	m.log.Info().Msg("polling stopped")
	return err
}

// Ready reports whether the first refresh cycle completed.
func (m *Manager) Ready() bool {
	select {
	case <-m.sched.Ready():
		return true
	default:
		return false
	}
}

// Installed returns the mirrored installed models ordered by name.
func (m *Manager) Installed() []types.InstalledModel { return m.installed.List() }

// Running returns the mirrored running models ordered by name.
func (m *Manager) Running() []types.RunningModel { return m.running.List() }

// Show asks the backend for the inspection record of name.
func (m *Manager) Show(ctx context.Context, name string) (types.DetailRecord, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return types.DetailRecord{}, mutation.ErrInvalid("please enter a model name")
	}
	return m.be.Show(ctx, name)
}

func (m *Manager) Delete(ctx context.Context, name string) (*mutation.Mutation, error) {
	return m.coord.Delete(ctx, name)
}

func (m *Manager) Pull(ctx context.Context, name string) (*mutation.Mutation, error) {
	return m.coord.Pull(ctx, name)
}

func (m *Manager) Create(ctx context.Context, name, modelfile string) (*mutation.Mutation, error) {
	return m.coord.Create(ctx, name, modelfile)
}

// Subscribe registers an event stream subscriber. See view.Hub.
func (m *Manager) Subscribe(buffer int) (<-chan types.Event, func()) {
	return m.hub.Subscribe(buffer)
}

// Close waits for in-flight mutations to settle or ctx to be done.
func (m *Manager) Close(ctx context.Context) error {
	return m.coord.Wait(ctx)
}

// afterMutation refreshes the installed collection so pulled and created
// models show up without waiting for the next tick.
func (m *Manager) afterMutation(kind types.MutationKind) {
	st := m.sched.Refresh(context.Background(), types.CollectionInstalled)
	m.log.Debug().Str("kind", string(kind)).Bool("ok", st.OK).Msg("post-mutation refresh")
}
