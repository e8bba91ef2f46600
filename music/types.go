package music

import (
	"errors"
	"time"

	"audiosession/track"
)

var (
	ErrDisabled       = errors.New("music is disabled")
	ErrAlreadyPlaying = errors.New("track is already playing")
	ErrNoStream       = errors.New("no current stream")
	ErrNotPaused      = errors.New("music is not paused")
	ErrReleased       = errors.New("music engine released")
)

// State is the playback state of the engine.
type State int

const (
	StateIdle State = iota
	StatePreparing
	StateReady
	StatePlaying
	StatePaused
	StateStopped
	StateReleased
	// StateDisabled is reported by Status while the enabled flag is off.
	StateDisabled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StatePreparing:
		return "PREPARING"
	case StateReady:
		return "READY"
	case StatePlaying:
		return "PLAYING"
	case StatePaused:
		return "PAUSED"
	case StateStopped:
		return "STOPPED"
	case StateReleased:
		return "RELEASED"
	case StateDisabled:
		return "DISABLED"
	default:
		return "UNKNOWN"
	}
}

type EventKind int

const (
	EventPrepared EventKind = iota
	EventCompleted
	EventPaused
	EventResumed
	EventStopped
	EventBuffering
	EventFailed
	// EventProgress is not emitted by the engine itself; the session's
	// progress monitor publishes it.
	EventProgress
)

func (k EventKind) String() string {
	switch k {
	case EventPrepared:
		return "prepared"
	case EventCompleted:
		return "completed"
	case EventPaused:
		return "paused"
	case EventResumed:
		return "resumed"
	case EventStopped:
		return "stopped"
	case EventBuffering:
		return "buffering"
	case EventFailed:
		return "failed"
	case EventProgress:
		return "progress"
	default:
		return "unknown"
	}
}

// Event is a lifecycle notification for the current track.
type Event struct {
	Kind     EventKind
	Track    track.Track
	Percent  int
	Position time.Duration
	Err      error
}

// Listener receives lifecycle events. It is never called with engine locks
// held, so it may call back into the engine.
type Listener interface {
	OnMusicEvent(Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(Event)

func (f ListenerFunc) OnMusicEvent(ev Event) { f(ev) }

// Request is one play intent.
type Request struct {
	Track   track.Track
	Start   time.Duration
	Looped  bool
	Gapless bool
}
