package effects

import (
	"log/slog"
	"sync"

	"audiosession/assets"
	"audiosession/platform"

	"github.com/samber/lo"
)

// Config configures a Manager.
type Config struct {
	Enabled bool
	// Legacy enables the multi-engine load event workaround.
	Legacy bool
	// EngineCount is the pool size when Legacy is set. Otherwise one engine
	// is used.
	EngineCount int
	Engine      Options
}

// Manager dispatches effect requests round-robin over its engines.
type Manager struct {
	mu      sync.Mutex
	factory platform.EffectPoolFactory
	volume  platform.VolumeSource
	legacy  bool
	count   int
	opts    Options
	logger  *slog.Logger

	enabled bool
	engines []*Engine
	cursor  int
}

// NewManager creates a manager. Engines are built on the first Play, or
// right away under the legacy workaround.
func NewManager(factory platform.EffectPoolFactory, volume platform.VolumeSource, cfg Config) *Manager {
	count := 1
	if cfg.Legacy {
		count = cfg.EngineCount
		if count < 1 {
			count = DefaultEngineCount
		}
	}
	opts := cfg.Engine
	opts.Legacy = cfg.Legacy

	m := &Manager{
		factory: factory,
		volume:  volume,
		legacy:  cfg.Legacy,
		count:   count,
		opts:    opts.withDefaults(),
		logger:  slog.With("component", "effect-pool"),
		enabled: cfg.Enabled,
	}
	if m.legacy {
		m.mu.Lock()
		m.buildLocked()
		m.mu.Unlock()
	}
	return m
}

// Play fires effect id on the engine under the cursor and advances the
// cursor. It does not wait for the effect to finish.
func (m *Manager) Play(id assets.ResourceID, looped bool) error {
	if id == assets.NoResource {
		m.logger.Error("Invalid effect resource")
		return ErrNoResource
	}

	m.mu.Lock()
	if !m.enabled {
		m.mu.Unlock()
		m.logger.Warn("Effect rejected, effects are disabled", slog.String("effect", string(id)))
		return ErrDisabled
	}
	if m.engines == nil {
		m.buildLocked()
	}
	engine := m.engines[m.cursor]
	if len(m.engines) > 1 {
		m.cursor = (m.cursor + 1) % len(m.engines)
	}
	m.mu.Unlock()

	m.logger.Debug("Dispatching effect", slog.String("effect", string(id)), slog.Int("engine", engine.ID()))
	return engine.PrepareAndPlay(id, looped)
}

// PauseAll pauses every engine regardless of the enabled flag.
func (m *Manager) PauseAll() {
	engines := m.Engines()
	if len(engines) == 0 {
		m.logger.Debug("No effect engines to pause")
		return
	}
	lo.ForEach(engines, func(e *Engine, _ int) { e.Pause() })
	m.logger.Debug("All effect engines paused", slog.Int("engines", len(engines)))
}

// ResumeAll resumes every engine regardless of the enabled flag.
func (m *Manager) ResumeAll() {
	engines := m.Engines()
	if len(engines) == 0 {
		return
	}
	lo.ForEach(engines, func(e *Engine, _ int) { e.Resume() })
	m.logger.Debug("All effect engines resumed", slog.Int("engines", len(engines)))
}

// ReinitializeForPlatformDefect rebuilds every engine's pool and resets the
// load event counters. It is a no-op returning ErrUnsupported unless the
// legacy workaround is active.
func (m *Manager) ReinitializeForPlatformDefect() error {
	if !m.legacy {
		return ErrUnsupported
	}
	engines := m.Engines()
	for _, e := range engines {
		if err := e.Reinitialize(); err != nil {
			m.logger.Error("Failed to re-initialize effect engine", slog.Int("engine", e.ID()), slog.Any("error", err))
			return err
		}
	}
	m.logger.Debug("Effect engines re-initialized", slog.Int("engines", len(engines)))
	return nil
}

// Release tears down every engine. The next Play rebuilds the pool.
func (m *Manager) Release() {
	m.mu.Lock()
	engines := m.engines
	m.engines = nil
	m.cursor = 0
	m.mu.Unlock()

	lo.ForEach(engines, func(e *Engine, _ int) { e.retire() })
	m.logger.Debug("Effect engines released", slog.Int("engines", len(engines)))
}

// SetEngineCount rebuilds the pool with n engines. Only the legacy
// workaround uses more than one engine.
func (m *Manager) SetEngineCount(n int) error {
	if !m.legacy {
		return ErrUnsupported
	}
	if n < 1 {
		return ErrInvalidEngineCount
	}

	m.mu.Lock()
	old := m.engines
	m.count = n
	m.buildLocked()
	m.mu.Unlock()

	lo.ForEach(old, func(e *Engine, _ int) { e.retire() })
	m.logger.Info("Effect engine count changed", slog.Int("engines", n))
	return nil
}

// Enable sets the enabled gate for Play.
func (m *Manager) Enable(enabled bool) {
	m.mu.Lock()
	m.enabled = enabled
	m.mu.Unlock()
	m.logger.Debug("Effects enabled flag changed", slog.Bool("enabled", enabled))
}

func (m *Manager) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled
}

// Cursor returns the index of the engine the next Play dispatches to.
func (m *Manager) Cursor() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursor
}

// Engines returns a snapshot of the current engines.
func (m *Manager) Engines() []*Engine {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Engine(nil), m.engines...)
}

// LoadEvents sums the load event counters of every engine.
func (m *Manager) LoadEvents() int {
	return lo.SumBy(m.Engines(), func(e *Engine) int { return e.LoadEvents() })
}

func (m *Manager) buildLocked() {
	m.engines = lo.Times(m.count, func(i int) *Engine {
		return NewEngine(i, m.factory, m.volume, m.opts)
	})
	m.cursor = 0
	m.logger.Debug("Effect engines built", slog.Int("engines", m.count))
}
