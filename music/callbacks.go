package music

import (
	"log/slog"

	"audiosession/platform"
)

// sink is handed to every handle the engine creates. It only queues.
func (e *Engine) sink(ev platform.Event) {
	select {
	case e.events <- ev:
	case <-e.done:
	}
}

func (e *Engine) run() {
	for {
		select {
		case ev := <-e.events:
			e.handleEvent(ev)
		case <-e.done:
			return
		}
	}
}

func (e *Engine) handleEvent(ev platform.Event) {
	e.mu.Lock()
	if e.state == StateReleased {
		e.mu.Unlock()
		return
	}

	switch ev.Kind {
	case platform.EventPrepared:
		e.onPrepared(ev.Handle)
	case platform.EventCompleted:
		e.onCompleted(ev.Handle)
	case platform.EventBuffering:
		e.onBuffering(ev.Handle, ev.Percent)
	case platform.EventError:
		e.onError(ev.Handle, ev.Err)
	}

	events, l := e.takePending()
	e.mu.Unlock()

	e.emit(l, events)
}

func (e *Engine) onPrepared(h platform.Handle) {
	switch {
	case h == nil:
		return
	case h == e.current:
		if e.state != StatePreparing {
			e.logger.Debug("Prepared callback ignored", slog.String("handle", h.ID()), slog.String("state", e.state.String()))
			return
		}

		if e.position != 0 {
			if err := h.Seek(e.position); err != nil {
				e.logger.Warn("Failed to seek", slog.Duration("position", e.position), slog.Any("error", err))
			}
		}

		if e.relayActive() {
			h.SetLooping(false)
			e.stageNext()
		} else {
			h.SetLooping(e.looped)
		}

		e.state = StateReady
		if err := h.Start(); err != nil {
			e.fail(err)
			return
		}
		e.state = StatePlaying
		e.publish(Event{Kind: EventPrepared, Position: e.position})
		e.logger.Info("Music playback has begun", slog.Any("track", e.track))

	case h == e.next:
		e.nextPrepared = true
		e.linkNext()

	default:
		e.logger.Debug("Stale prepared callback dropped", slog.String("handle", h.ID()))
	}
}

func (e *Engine) onCompleted(h platform.Handle) {
	if h == nil || h != e.current {
		if h != nil {
			e.logger.Debug("Stale completion callback dropped", slog.String("handle", h.ID()))
		}
		return
	}
	if e.state != StatePlaying {
		e.logger.Debug("Completion ignored", slog.String("state", e.state.String()))
		return
	}

	if e.relayActive() && e.next != nil {
		if !e.nextLinked {
			// The next handle was not ready in time; loop the finished one.
			e.logger.Warn("Next stream not linked at completion, restarting current stream")
			if err := h.Seek(0); err != nil {
				e.logger.Warn("Failed to rewind", slog.Any("error", err))
			}
			if err := h.Start(); err != nil {
				e.fail(err)
			}
			return
		}

		old := e.promoteNext()
		e.position = 0
		e.stageNext()
		e.logger.Debug("Gapless relay",
			slog.String("released", old.ID()),
			slog.String("current", e.current.ID()))
		return
	}

	e.position = 0
	e.state = StateStopped
	e.publish(Event{Kind: EventCompleted})
	e.logger.Info("Music playback has completed", slog.Any("track", e.track))
}

func (e *Engine) onBuffering(h platform.Handle, percent int) {
	if h == nil || h != e.current {
		return
	}
	e.publish(Event{Kind: EventBuffering, Percent: percent})
	e.logger.Debug("Music buffering", slog.Int("percent", percent))
}

func (e *Engine) onError(h platform.Handle, err error) {
	switch {
	case h == nil:
		return
	case h == e.current:
		e.fail(err)
	case h == e.next:
		e.logger.Error("Next stream failed, falling back to native looping", slog.Any("error", err))
		e.next.Release()
		e.next = nil
		e.nextPrepared = false
		e.nextLinked = false
		if e.current != nil {
			e.current.SetLooping(true)
		}
	default:
		e.logger.Debug("Stale error callback dropped", slog.String("handle", h.ID()), slog.Any("error", err))
	}
}

// fail rolls back to STOPPED after a platform failure on the current handle.
func (e *Engine) fail(err error) {
	e.logger.Error("Music stream failed", slog.Any("track", e.track), slog.Any("error", err))
	e.releaseHandles()
	e.state = StateStopped
	e.publish(Event{Kind: EventFailed, Err: err})
}
