package effects

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"audiosession/assets"
	"audiosession/platform"
)

var (
	ErrDisabled           = errors.New("effects are disabled")
	ErrNoResource         = fmt.Errorf("invalid effect: %w", assets.ErrNoResource)
	ErrInvalidEngineCount = errors.New("engine count must be at least 1")
	ErrUnsupported        = errors.New("only supported on the legacy effect platform")
	ErrRetired            = errors.New("effect engine retired")
)

const (
	DefaultMaxStreams    = 8
	DefaultMaxLoadEvents = 8
	DefaultPriority      = 1
	// DefaultEngineCount is the pool size under the legacy workaround.
	DefaultEngineCount = 2

	playbackRate = 1.0
)

// Options tune one effect engine.
type Options struct {
	MaxStreams int
	// MaxLoadEvents is the number of plays after which a legacy pool is
	// rebuilt before the next request.
	MaxLoadEvents int
	Priority      int
	Legacy        bool
}

func (o Options) withDefaults() Options {
	if o.MaxStreams < 1 {
		o.MaxStreams = DefaultMaxStreams
	}
	if o.MaxLoadEvents < 1 {
		o.MaxLoadEvents = DefaultMaxLoadEvents
	}
	if o.Priority < 1 {
		o.Priority = DefaultPriority
	}
	return o
}

// Engine wraps one platform effect pool and the cache of effects loaded
// into it.
type Engine struct {
	mu      sync.Mutex
	id      int
	factory platform.EffectPoolFactory
	volume  platform.VolumeSource
	opts    Options
	logger  *slog.Logger

	pool       platform.EffectPool
	generation uint64
	cache      *handleCache
	events     int
	retired    bool
}

// NewEngine creates an engine. The platform pool is created on first use.
func NewEngine(id int, factory platform.EffectPoolFactory, volume platform.VolumeSource, opts Options) *Engine {
	return &Engine{
		id:      id,
		factory: factory,
		volume:  volume,
		opts:    opts.withDefaults(),
		logger:  slog.With("component", "effect-engine", "engine", id),
		cache:   newHandleCache(),
	}
}

// ID returns the engine's position in its pool.
func (e *Engine) ID() int {
	return e.id
}

// PrepareAndPlay plays id, loading it into the pool first when it is not
// cached yet. On a miss the play happens once the platform reports the load
// complete.
func (e *Engine) PrepareAndPlay(id assets.ResourceID, looped bool) error {
	if id == assets.NoResource {
		return ErrNoResource
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.retired {
		return ErrRetired
	}
	if e.pool == nil {
		if err := e.initPoolLocked(); err != nil {
			return err
		}
	}
	if e.opts.Legacy && e.events >= e.opts.MaxLoadEvents {
		e.logger.Warn("Load event count reached the limit, re-initializing the pool",
			slog.Int("events", e.events),
			slog.Int("limit", e.opts.MaxLoadEvents))
		if err := e.reinitializeLocked(); err != nil {
			return err
		}
	}

	req := pendingPlay{volume: e.volume.MusicVolume(), loop: loopCount(looped)}

	entry, ok := e.cache.get(id)
	if !ok {
		loadID, err := e.pool.Load(id, e.opts.Priority)
		if err != nil {
			e.logger.Error("Failed to load effect", slog.String("effect", string(id)), slog.Any("error", err))
			return fmt.Errorf("failed to load effect %s: %w", id, err)
		}
		entry = e.cache.put(id, loadID)
		entry.waiting = append(entry.waiting, req)
		e.logger.Debug("Effect loading", slog.String("effect", string(id)), slog.Int("load", int(loadID)))
		return nil
	}

	if !entry.loaded {
		entry.waiting = append(entry.waiting, req)
		e.logger.Debug("Effect queued behind pending load", slog.String("effect", string(id)))
		return nil
	}

	e.logger.Debug("Effect already loaded", slog.String("effect", string(id)))
	return e.playLocked(id, entry.loadID, req)
}

// Pause pauses every effect playing on this engine.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pool == nil {
		e.logger.Debug("Nothing to pause, pool not initialized")
		return
	}
	e.pool.AutoPause()
	e.logger.Debug("Effects paused")
}

// Resume resumes effects paused by Pause.
func (e *Engine) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pool == nil {
		return
	}
	e.pool.AutoResume()
	e.logger.Debug("Effects resumed")
}

// Reinitialize releases and rebuilds the pool and resets the load event
// counter. Effects loaded before are forgotten.
func (e *Engine) Reinitialize() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.retired {
		return ErrRetired
	}
	return e.reinitializeLocked()
}

// Release frees the pool and clears the cache. Releasing twice only logs.
// A later PrepareAndPlay creates a fresh pool.
func (e *Engine) Release() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.releaseLocked()
}

// LoadEvents returns the number of plays issued since the pool was built.
func (e *Engine) LoadEvents() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.events
}

// Cached returns the number of effects loaded or loading in the pool.
func (e *Engine) Cached() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cache.size()
}

// retire releases the engine for good. It is used when the owning manager
// drops the engine while a dispatch may still be in flight.
func (e *Engine) retire() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pool != nil {
		e.releaseLocked()
	}
	e.retired = true
}

func (e *Engine) initPoolLocked() error {
	e.generation++
	gen := e.generation
	pool, err := e.factory.NewPool(e.opts.MaxStreams, func(loadID platform.LoadID, err error) {
		e.onLoaded(gen, loadID, err)
	})
	if err != nil {
		e.logger.Error("Failed to create effect pool", slog.Any("error", err))
		return fmt.Errorf("failed to create effect pool: %w", err)
	}
	e.pool = pool
	e.logger.Debug("Effect pool created", slog.Int("max_streams", e.opts.MaxStreams))
	return nil
}

func (e *Engine) reinitializeLocked() error {
	if e.pool != nil {
		e.releaseLocked()
	}
	if err := e.initPoolLocked(); err != nil {
		return err
	}
	e.events = 0
	e.logger.Debug("Effect pool re-initialized")
	return nil
}

func (e *Engine) releaseLocked() {
	if e.pool == nil {
		e.logger.Error("Effect pool is not initialized and cannot be released")
		return
	}
	e.pool.Release()
	e.pool = nil
	e.cache.reset()
	e.logger.Debug("Effect pool released")
}

// onLoaded is the pool's load callback. Callbacks from a pool that has since
// been released carry an old generation and are dropped.
func (e *Engine) onLoaded(gen uint64, loadID platform.LoadID, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.retired || gen != e.generation || e.pool == nil {
		e.logger.Debug("Stale load callback dropped", slog.Int("load", int(loadID)))
		return
	}
	id, entry, ok := e.cache.byLoadID(loadID)
	if !ok {
		e.logger.Debug("Load callback for unknown slot", slog.Int("load", int(loadID)))
		return
	}
	if err != nil {
		e.logger.Error("Effect failed to load", slog.String("effect", string(id)), slog.Any("error", err))
		e.cache.drop(id)
		return
	}

	entry.loaded = true
	waiting := entry.waiting
	entry.waiting = nil
	failed := 0
	for _, req := range waiting {
		if err := e.playLocked(id, loadID, req); err != nil {
			failed++
		}
	}
	if failed > 0 {
		e.logger.Warn("Queued effect plays failed after load",
			slog.String("effect", string(id)),
			slog.Int("failed", failed),
			slog.Int("queued", len(waiting)))
	}
}

func (e *Engine) playLocked(id assets.ResourceID, loadID platform.LoadID, req pendingPlay) error {
	stream, err := e.pool.Play(loadID, req.volume, req.volume, e.opts.Priority, req.loop, playbackRate)
	if err != nil {
		e.logger.Error("Failed to play effect", slog.String("effect", string(id)), slog.Any("error", err))
		return fmt.Errorf("failed to play effect %s: %w", id, err)
	}
	e.events++
	e.logger.Debug("Effect playing",
		slog.String("effect", string(id)),
		slog.Int("stream", int(stream)),
		slog.Float64("volume", req.volume),
		slog.Int("events", e.events))
	return nil
}

func loopCount(looped bool) int {
	if looped {
		return 1
	}
	return 0
}
