package music

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"audiosession/platform"
	"audiosession/track"
)

const eventQueueSize = 64

// Engine plays one background music channel over at most two stream
// handles. All state mutation, including platform callbacks, happens under
// mu; callbacks are queued on events and applied by a single goroutine.
type Engine struct {
	mu               sync.Mutex
	decoder          platform.Decoder
	gaplessSupported bool
	logger           *slog.Logger

	state    State
	enabled  bool
	track    track.Track
	hasTrack bool
	position time.Duration
	looped   bool
	gapless  bool

	current      platform.Handle
	next         platform.Handle
	nextPrepared bool
	nextLinked   bool

	listener Listener
	pending  []Event

	events    chan platform.Event
	done      chan struct{}
	closeOnce sync.Once
}

// New creates an enabled engine. caps.Gapless decides once whether gapless
// chaining is ever attempted.
func New(decoder platform.Decoder, caps platform.Capabilities) *Engine {
	e := &Engine{
		decoder:          decoder,
		gaplessSupported: caps.Gapless,
		logger:           slog.With("component", "music-engine"),
		state:            StateIdle,
		enabled:          true,
		events:           make(chan platform.Event, eventQueueSize),
		done:             make(chan struct{}),
	}
	go e.run()
	return e
}

// SetListener replaces the event listener. A nil listener drops events.
func (e *Engine) SetListener(l Listener) {
	e.mu.Lock()
	e.listener = l
	e.mu.Unlock()
}

// SetEnabled toggles the enabled gate for Play.
func (e *Engine) SetEnabled(enabled bool) {
	e.mu.Lock()
	e.enabled = enabled
	e.mu.Unlock()
	e.logger.Debug("Music enabled flag changed", slog.Bool("enabled", enabled))
}

// Enabled reports the enabled gate.
func (e *Engine) Enabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enabled
}

// Play stops whatever is playing and starts preparing req.Track. Playback
// begins asynchronously; EventPrepared is published once it does.
func (e *Engine) Play(req Request) error {
	e.mu.Lock()
	err := e.playLocked(req)
	events, l := e.takePending()
	e.mu.Unlock()

	e.emit(l, events)
	return err
}

// Pause captures the current position and pauses output.
func (e *Engine) Pause() error {
	e.mu.Lock()
	err := e.pauseLocked()
	events, l := e.takePending()
	e.mu.Unlock()

	e.emit(l, events)
	return err
}

// Resume replays the paused track from the captured position.
func (e *Engine) Resume() error {
	e.mu.Lock()
	err := e.resumeLocked()
	events, l := e.takePending()
	e.mu.Unlock()

	e.emit(l, events)
	return err
}

// Stop stops and releases every handle and rewinds to 0.
func (e *Engine) Stop() error {
	e.mu.Lock()
	err := e.stopLocked()
	events, l := e.takePending()
	e.mu.Unlock()

	e.emit(l, events)
	return err
}

// Release tears down all handles. The engine is unusable afterwards.
func (e *Engine) Release() {
	e.mu.Lock()
	e.releaseHandles()
	e.state = StateReleased
	e.listener = nil
	e.pending = nil
	e.mu.Unlock()

	e.closeOnce.Do(func() { close(e.done) })
	e.logger.Debug("Music engine released")
}

// IsPlaying reports whether audio is being produced by a handle the engine
// owns. During a gapless hand-off that may be the staged next handle.
func (e *Engine) IsPlaying() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.isPlayingLocked()
}

// Status returns the engine state, or StateDisabled while disabled.
func (e *Engine) Status() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.enabled && e.state != StateReleased {
		return StateDisabled
	}
	return e.state
}

// Position returns the live position while playing and the retained
// position otherwise.
func (e *Engine) Position() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StatePlaying && e.current != nil {
		return e.current.Position()
	}
	return e.position
}

// SetPosition overrides the retained position used by the next Resume.
func (e *Engine) SetPosition(pos time.Duration) {
	e.mu.Lock()
	e.position = pos
	e.mu.Unlock()
}

// Track returns the current track, if any.
func (e *Engine) Track() (track.Track, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.track, e.hasTrack
}

func (e *Engine) playLocked(req Request) error {
	if e.state == StateReleased {
		return ErrReleased
	}
	if !e.enabled {
		e.logger.Warn("Play rejected, music is disabled")
		return ErrDisabled
	}
	if err := req.Track.Validate(); err != nil {
		e.logger.Error("Play rejected", slog.Any("error", err))
		return err
	}
	if e.hasTrack && e.track.Same(req.Track) && e.current != nil && e.isPlayingLocked() {
		e.logger.Debug("Play rejected, track already playing", slog.Any("track", req.Track))
		return ErrAlreadyPlaying
	}

	if e.current != nil {
		e.logger.Debug("Releasing current stream before switching", slog.String("handle", e.current.ID()))
	}
	e.releaseHandles()

	h, err := e.decoder.NewHandle(e.sink)
	if err != nil {
		e.state = StateStopped
		e.logger.Error("Failed to create stream handle", slog.Any("error", err))
		return fmt.Errorf("failed to create stream handle: %w", err)
	}
	if err := h.PrepareAsync(req.Track.Locator); err != nil {
		h.Release()
		e.state = StateStopped
		e.logger.Error("Failed to prepare stream", slog.Any("track", req.Track), slog.Any("error", err))
		return fmt.Errorf("failed to prepare %s: %w", req.Track.Locator, err)
	}

	e.track, e.hasTrack = req.Track, true
	e.position = req.Start
	e.looped = req.Looped
	e.gapless = req.Gapless
	e.current = h
	e.state = StatePreparing

	e.logger.Debug("Preparing track",
		slog.Any("track", req.Track),
		slog.String("handle", h.ID()),
		slog.Duration("start", req.Start),
		slog.Bool("looped", req.Looped),
		slog.Bool("gapless", req.Gapless))
	return nil
}

func (e *Engine) pauseLocked() error {
	if e.state == StateReleased {
		return ErrReleased
	}
	if e.current == nil {
		e.logger.Error("Music could not be paused, no current stream")
		return ErrNoStream
	}

	// The platform may already have chained output to the linked handle while
	// the completion of the current one is still queued.
	if e.nextLinked && e.next != nil && e.safeIsPlaying(e.next) {
		old := e.promoteNext()
		e.logger.Debug("Pausing chained stream",
			slog.String("released", old.ID()),
			slog.String("current", e.current.ID()))
	}

	// While preparing, the requested start position is still authoritative.
	if e.state != StatePreparing {
		e.position = e.current.Position()
	}

	// Unlink so the staged handle can not start on its own while paused.
	if e.nextLinked {
		if err := e.current.SetNext(nil); err != nil {
			e.logger.Warn("Failed to unlink next stream", slog.Any("error", err))
		}
		e.nextLinked = false
	}

	if e.safeIsPlaying(e.current) {
		if err := e.current.Pause(); err != nil {
			e.logger.Warn("Failed to pause stream", slog.Any("error", err))
		}
	}

	e.state = StatePaused
	e.publish(Event{Kind: EventPaused, Position: e.position})
	e.logger.Debug("Music paused", slog.Duration("position", e.position))
	return nil
}

func (e *Engine) resumeLocked() error {
	if e.state != StatePaused {
		return ErrNotPaused
	}
	err := e.playLocked(Request{
		Track:   e.track,
		Start:   e.position,
		Looped:  e.looped,
		Gapless: e.gapless,
	})
	if err != nil {
		return err
	}
	e.publish(Event{Kind: EventResumed, Position: e.position})
	return nil
}

func (e *Engine) stopLocked() error {
	if e.state == StateReleased {
		return ErrReleased
	}
	if e.current == nil {
		e.logger.Error("Music could not be stopped, no current stream")
		return ErrNoStream
	}

	e.releaseHandles()
	e.position = 0
	e.state = StateStopped
	e.publish(Event{Kind: EventStopped})
	e.logger.Debug("Music stopped")
	return nil
}

// relayActive reports whether completion should hand off to a next handle.
func (e *Engine) relayActive() bool {
	return e.gaplessSupported && e.gapless && e.looped
}

// stageNext creates and prepares the next handle. On failure the current
// handle falls back to native looping.
func (e *Engine) stageNext() {
	h, err := e.decoder.NewHandle(e.sink)
	if err == nil {
		err = h.PrepareAsync(e.track.Locator)
		if err != nil {
			h.Release()
		}
	}
	if err != nil {
		e.logger.Error("Failed to stage next stream, falling back to native looping", slog.Any("error", err))
		e.current.SetLooping(true)
		return
	}

	e.next = h
	e.nextPrepared = false
	e.nextLinked = false
	e.logger.Debug("Staged next stream", slog.String("handle", h.ID()))
}

func (e *Engine) linkNext() {
	if e.current == nil || e.next == nil || !e.nextPrepared || e.nextLinked {
		return
	}
	if e.state != StatePlaying {
		return
	}
	if err := e.current.SetNext(e.next); err != nil {
		e.logger.Error("Failed to link next stream", slog.Any("error", err))
		return
	}
	e.nextLinked = true
	e.logger.Debug("Linked next stream for gapless playback",
		slog.String("current", e.current.ID()),
		slog.String("next", e.next.ID()))
}

// promoteNext makes the linked next handle current and releases the old one.
// Callbacks still queued for the old handle become stale.
func (e *Engine) promoteNext() platform.Handle {
	old := e.current
	e.current = e.next
	e.next = nil
	e.nextPrepared = false
	e.nextLinked = false
	old.Release()
	return old
}

func (e *Engine) releaseHandles() {
	if e.next != nil {
		e.next.Release()
	}
	if e.current != nil {
		if e.safeIsPlaying(e.current) {
			if err := e.current.Stop(); err != nil {
				e.logger.Warn("Failed to stop stream", slog.Any("error", err))
			}
		}
		e.current.Reset()
		e.current.Release()
	}
	e.current = nil
	e.next = nil
	e.nextPrepared = false
	e.nextLinked = false
}

func (e *Engine) isPlayingLocked() bool {
	if e.state == StateReleased || e.current == nil {
		return false
	}
	if e.safeIsPlaying(e.current) {
		return true
	}
	return e.nextLinked && e.next != nil && e.safeIsPlaying(e.next)
}

// safeIsPlaying treats a handle that fails mid-teardown as not playing.
func (e *Engine) safeIsPlaying(h platform.Handle) (playing bool) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("Stream handle failed while querying playback", slog.Any("panic", r))
			playing = false
		}
	}()
	return h.IsPlaying()
}

func (e *Engine) publish(ev Event) {
	ev.Track = e.track
	e.pending = append(e.pending, ev)
}

func (e *Engine) takePending() ([]Event, Listener) {
	events := e.pending
	e.pending = nil
	return events, e.listener
}

func (e *Engine) emit(l Listener, events []Event) {
	if l == nil {
		return
	}
	for _, ev := range events {
		l.OnMusicEvent(ev)
	}
}
