package manager

import (
	"time"

	"github.com/rs/zerolog"

	"modeldash/internal/backend"
	"modeldash/internal/mirror"
	"modeldash/internal/mutation"
	"modeldash/internal/scheduler"
	"modeldash/internal/view"
	"modeldash/pkg/types"
)

// Defaults applied when corresponding ManagerConfig fields are unset.
const (
	defaultRefreshInterval = 60 * time.Second
	defaultMaxMutations    = 4
)

// ManagerConfig encapsulates all tunables for Manager construction.
type ManagerConfig struct {
	Backend backend.Backend
	// BackendURL is reported by Status only.
	BackendURL      string
	RefreshInterval time.Duration
	// MaxConcurrentMutations bounds delete/pull/create running at once.
	MaxConcurrentMutations int
	// View receives every event in addition to the subscriber hub.
	View   view.View
	Logger zerolog.Logger
}

// NewWithConfig constructs a Manager from ManagerConfig.
func NewWithConfig(cfg ManagerConfig) *Manager {
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = defaultRefreshInterval
	}
	if cfg.MaxConcurrentMutations <= 0 {
		cfg.MaxConcurrentMutations = defaultMaxMutations
	}
	log := cfg.Logger.With().Str("component", "manager").Logger()
	m := &Manager{
		be:         cfg.Backend,
		backendURL: cfg.BackendURL,
		hub:        view.NewHub(),
		log:        log,
		startTime:  time.Now(),
	}
	m.view = view.Combine(m.hub, cfg.View)

	m.installed = mirror.New[types.InstalledModel](types.CollectionInstalled, view.Forward[types.InstalledModel](m.view), cfg.Logger)
	m.running = mirror.New[types.RunningModel](types.CollectionRunning, view.Forward[types.RunningModel](m.view), cfg.Logger)

	m.sched = scheduler.New(cfg.RefreshInterval, cfg.Logger,
		scheduler.NewPoller(m.installed, m.be.ListInstalled, m.view, cfg.Logger),
		scheduler.NewPoller(m.running, m.be.ListRunning, m.view, cfg.Logger),
	)
	m.coord = mutation.New(mutation.Config{
		Backend:       m.be,
		Installed:     m.installed,
		View:          m.view,
		MaxConcurrent: cfg.MaxConcurrentMutations,
		AfterSettle:   m.afterMutation,
		Logger:        cfg.Logger,
	})
	return m
}
