// Package session is the single entry point for playing music and effects.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"audiosession/assets"
	"audiosession/catalog"
	"audiosession/config"
	"audiosession/effects"
	"audiosession/logger"
	"audiosession/music"
	"audiosession/platform"
	"audiosession/track"

	"github.com/google/uuid"
)

var (
	ErrClosed    = errors.New("session is shut down")
	ErrNoCatalog = errors.New("no catalog loaded")
	ErrNoLibrary = errors.New("no asset library configured")
)

const commandQueueSize = 32

// Deps are the collaborators a session is built on.
type Deps struct {
	Backend platform.Backend
	// Capabilities are resolved once by the caller.
	Capabilities platform.Capabilities
	Library      *assets.Library
	Catalog      *catalog.Catalog
}

type command struct {
	name  string
	track track.Track
	run   func() error
	reply chan error
}

// Session owns one music engine and one effect pool.
type Session struct {
	id       string
	backend  platform.Backend
	library  *assets.Library
	catalog  *catalog.Catalog
	music    *music.Engine
	effects  *effects.Manager
	progress *ProgressMonitor
	logger   *slog.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	commands chan command
	stopOnce sync.Once

	mu          sync.Mutex
	listener    music.Listener
	suspended   bool
	pausedMusic bool
	systemOn    bool
}

// New creates a session and starts its worker and progress monitor.
func New(cfg *config.Config, deps Deps) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.NewString()

	s := &Session{
		id:       id,
		backend:  deps.Backend,
		library:  deps.Library,
		catalog:  deps.Catalog,
		logger:   logger.WithComponent("session").With("session", id),
		ctx:      ctx,
		cancel:   cancel,
		commands: make(chan command, commandQueueSize),
		systemOn: true,
	}

	caps := deps.Capabilities
	caps.Gapless = caps.Gapless && cfg.Music.GaplessSupported

	s.music = music.New(deps.Backend, caps)
	s.music.SetEnabled(cfg.Music.Enabled)
	s.music.SetListener(music.ListenerFunc(s.publish))

	s.effects = effects.NewManager(deps.Backend, deps.Backend, effects.Config{
		Enabled:     cfg.Effects.Enabled,
		Legacy:      caps.LegacyEffectPool,
		EngineCount: cfg.Effects.EngineCount,
		Engine: effects.Options{
			MaxStreams:    cfg.Effects.MaxStreams,
			MaxLoadEvents: cfg.Effects.MaxLoadEvents,
			Priority:      cfg.Effects.Priority,
		},
	})

	s.progress = NewProgressMonitor(ctx, cfg.Music.ProgressInterval, s.music, s.publish, &s.wg)

	s.wg.Add(1)
	go s.work()
	s.progress.Start()

	s.logger.Info("Session started",
		slog.Bool("music", cfg.Music.Enabled),
		slog.Bool("effects", cfg.Effects.Enabled),
		slog.Bool("gapless", caps.Gapless),
		slog.Bool("legacy_effects", caps.LegacyEffectPool))
	return s
}

// ID identifies the session in logs.
func (s *Session) ID() string {
	return s.id
}

// SetListener replaces the listener receiving music events, including
// progress updates. A nil listener drops them.
func (s *Session) SetListener(l music.Listener) {
	s.mu.Lock()
	s.listener = l
	s.mu.Unlock()
}

func (s *Session) publish(ev music.Event) {
	s.mu.Lock()
	l := s.listener
	s.mu.Unlock()

	if ev.Kind != music.EventProgress {
		s.logger.Debug("Music event", slog.String("event", ev.Kind.String()), slog.Any("track", ev.Track))
	}
	if l != nil {
		l.OnMusicEvent(ev)
	}
}

// work runs music commands in order, off the caller's goroutine.
func (s *Session) work() {
	defer s.wg.Done()
	for {
		select {
		case cmd := <-s.commands:
			err := cmd.run()
			if cmd.reply != nil {
				cmd.reply <- err
				continue
			}
			s.reportAsync(cmd, err)
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Session) reportAsync(cmd command, err error) {
	switch {
	case err == nil:
	case errors.Is(err, music.ErrAlreadyPlaying):
		s.logger.Debug("Redundant music request ignored", slog.String("command", cmd.name))
	default:
		s.logger.Error("Music command failed", slog.String("command", cmd.name), slog.Any("error", err))
		s.publish(music.Event{Kind: music.EventFailed, Track: cmd.track, Err: err})
	}
}

// enqueue hands fn to the worker. With wait set it blocks for the result.
func (s *Session) enqueue(name string, fn func() error, wait bool) error {
	t, _ := s.music.Track()
	return s.send(command{name: name, track: t, run: fn}, wait)
}

func (s *Session) send(cmd command, wait bool) error {
	if wait {
		cmd.reply = make(chan error, 1)
	}

	select {
	case <-s.ctx.Done():
		return ErrClosed
	default:
	}

	select {
	case s.commands <- cmd:
	case <-s.ctx.Done():
		return ErrClosed
	}
	if !wait {
		return nil
	}

	select {
	case err := <-cmd.reply:
		return err
	case <-s.ctx.Done():
		return ErrClosed
	}
}

// PlayMusic validates req and queues it. Invalid and disabled requests fail
// right away; the rest report through events.
func (s *Session) PlayMusic(req music.Request) error {
	if !s.music.Enabled() {
		return music.ErrDisabled
	}
	if err := req.Track.Validate(); err != nil {
		return err
	}
	return s.send(command{
		name:  "play",
		track: req.Track,
		run:   func() error { return s.music.Play(req) },
	}, false)
}

// PlayMusicNamed plays a catalog track.
func (s *Session) PlayMusicNamed(name string, start time.Duration, looped, gapless bool) error {
	if s.catalog == nil {
		return ErrNoCatalog
	}
	t, err := s.catalog.Track(name)
	if err != nil {
		return err
	}
	return s.PlayMusic(music.Request{Track: t, Start: start, Looped: looped, Gapless: gapless})
}

// PauseMusic pauses the current track.
func (s *Session) PauseMusic() error {
	return s.enqueue("pause", s.music.Pause, true)
}

// ResumeMusic queues a resume of the paused track.
func (s *Session) ResumeMusic() error {
	if s.music.Status() != music.StatePaused {
		return music.ErrNotPaused
	}
	return s.enqueue("resume", s.music.Resume, false)
}

// StopMusic stops the current track.
func (s *Session) StopMusic() error {
	return s.enqueue("stop", s.music.Stop, true)
}

func (s *Session) MusicStatus() music.State {
	return s.music.Status()
}

func (s *Session) MusicPosition() time.Duration {
	return s.music.Position()
}

// SetMusicPosition changes where the next resume starts.
func (s *Session) SetMusicPosition(pos time.Duration) {
	s.music.SetPosition(pos)
}

func (s *Session) IsMusicPlaying() bool {
	return s.music.IsPlaying()
}

// PlayEffect fires an effect.
func (s *Session) PlayEffect(id assets.ResourceID, looped bool) error {
	return s.effects.Play(id, looped)
}

// PlayEffectNamed fires a catalog effect.
func (s *Session) PlayEffectNamed(name string, looped bool) error {
	if s.catalog == nil {
		return ErrNoCatalog
	}
	id, err := s.catalog.Effect(name)
	if err != nil {
		return err
	}
	return s.effects.Play(id, looped)
}

func (s *Session) PauseEffects() {
	s.effects.PauseAll()
}

func (s *Session) ResumeEffects() {
	s.effects.ResumeAll()
}

// ReinitializeEffects rebuilds the effect pools under the legacy workaround.
func (s *Session) ReinitializeEffects() error {
	return s.effects.ReinitializeForPlatformDefect()
}

func (s *Session) SetEffectEngineCount(n int) error {
	return s.effects.SetEngineCount(n)
}

// ReleaseEffects frees every effect pool. The next effect rebuilds them.
func (s *Session) ReleaseEffects() {
	s.effects.Release()
}

// EffectLoadEvents reports the load events counted across all engines.
func (s *Session) EffectLoadEvents() int {
	return s.effects.LoadEvents()
}

// EnableMusic sets the music gate. Disabling stops the current track.
func (s *Session) EnableMusic(enabled bool) {
	s.music.SetEnabled(enabled)
	if enabled {
		return
	}
	err := s.enqueue("stop", s.music.Stop, true)
	if err != nil && !errors.Is(err, music.ErrNoStream) && !errors.Is(err, ErrClosed) {
		s.logger.Warn("Failed to stop music after disabling", slog.Any("error", err))
	}
}

func (s *Session) EnableEffects(enabled bool) {
	s.effects.Enable(enabled)
}

// EnableSystemSound mutes or unmutes the system output bus.
func (s *Session) EnableSystemSound(enabled bool) error {
	if err := s.backend.SetSystemMuted(!enabled); err != nil {
		s.logger.Error("Failed to change system sound", slog.Bool("enabled", enabled), slog.Any("error", err))
		return fmt.Errorf("failed to change system sound: %w", err)
	}
	s.mu.Lock()
	s.systemOn = enabled
	s.mu.Unlock()
	return nil
}

// SystemSoundEnabled reports the last system sound state applied.
func (s *Session) SystemSoundEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.systemOn
}

// PreloadEffects decodes effect assets ahead of their first play.
func (s *Session) PreloadEffects(ctx context.Context, ids ...assets.ResourceID) error {
	if s.library == nil {
		return ErrNoLibrary
	}
	if len(ids) == 0 && s.catalog != nil {
		ids = s.catalog.EffectResources()
	}
	start := time.Now()
	if err := s.library.Preload(ctx, ids...); err != nil {
		return err
	}
	s.logger.Info("Effects preloaded", slog.Int("count", len(ids)), slog.Duration("took", time.Since(start)))
	return nil
}

// Suspend pauses music and effects when the host goes to the background.
func (s *Session) Suspend() {
	s.mu.Lock()
	if s.suspended {
		s.mu.Unlock()
		return
	}
	s.suspended = true
	s.mu.Unlock()

	paused := false
	if s.music.IsPlaying() {
		if err := s.PauseMusic(); err != nil {
			s.logger.Warn("Failed to pause music on suspend", slog.Any("error", err))
		} else {
			paused = true
		}
	}
	s.mu.Lock()
	s.pausedMusic = paused
	s.mu.Unlock()

	s.effects.PauseAll()
	s.logger.Debug("Session suspended")
}

// Restore undoes Suspend. Music is resumed only if Suspend paused it. Under
// the legacy workaround the effect pools are rebuilt as well.
func (s *Session) Restore() {
	s.mu.Lock()
	if !s.suspended {
		s.mu.Unlock()
		return
	}
	s.suspended = false
	resume := s.pausedMusic
	s.pausedMusic = false
	s.mu.Unlock()

	s.effects.ResumeAll()
	if err := s.effects.ReinitializeForPlatformDefect(); err != nil && !errors.Is(err, effects.ErrUnsupported) {
		s.logger.Warn("Failed to re-initialize effects on restore", slog.Any("error", err))
	}
	if resume && s.music.Status() == music.StatePaused {
		if err := s.ResumeMusic(); err != nil {
			s.logger.Warn("Failed to resume music on restore", slog.Any("error", err))
		}
	}
	s.logger.Debug("Session restored")
}

// Done is closed once Shutdown has begun.
func (s *Session) Done() <-chan struct{} {
	return s.ctx.Done()
}

// Shutdown stops the worker and monitor and releases every engine.
func (s *Session) Shutdown() {
	s.stopOnce.Do(func() {
		s.logger.Info("Stopping session...")
		s.cancel()
		s.progress.Stop()
		s.wg.Wait()

		s.music.Release()
		s.effects.Release()
		s.SetListener(nil)
		s.logger.Info("Session stopped")
	})
}
