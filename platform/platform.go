// Package platform defines the boundary between the session engines and the
// audio primitives that actually decode and output sound.
//
// Callbacks from the platform are delivered as Event values through an
// EventSink. Implementations may invoke the sink from any goroutine, but must
// never invoke it while holding a lock that a Handle method also takes.
package platform

import (
	"time"

	"audiosession/assets"
	"audiosession/track"
)

type EventKind int

const (
	EventPrepared EventKind = iota
	EventCompleted
	EventBuffering
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventPrepared:
		return "prepared"
	case EventCompleted:
		return "completed"
	case EventBuffering:
		return "buffering"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is a callback from a stream handle.
type Event struct {
	Kind    EventKind
	Handle  Handle
	Percent int
	Err     error
}

// EventSink receives handle callbacks.
type EventSink func(Event)

// Decoder creates stream handles.
type Decoder interface {
	NewHandle(sink EventSink) (Handle, error)
}

// Handle is one decoder/output unit. Handles are single use: once released
// they are never prepared again.
type Handle interface {
	ID() string
	// PrepareAsync starts decoding loc. EventPrepared or EventError follows.
	PrepareAsync(loc track.Locator) error
	Seek(pos time.Duration) error
	SetLooping(looping bool)
	// SetNext links next so that output continues on it, without a gap, when
	// this handle completes. A nil next removes the link.
	SetNext(next Handle) error
	Start() error
	Pause() error
	Stop() error
	Reset()
	Release()
	IsPlaying() bool
	Position() time.Duration
}

type LoadID int
type StreamID int

// LoadCallback is invoked once per Load when the effect is ready to play.
// It is never invoked from within Load itself.
type LoadCallback func(id LoadID, err error)

// EffectPoolFactory creates effect pools.
type EffectPoolFactory interface {
	NewPool(maxStreams int, onLoaded LoadCallback) (EffectPool, error)
}

// EffectPool plays short fire-and-forget effects from preloaded slots.
type EffectPool interface {
	Load(id assets.ResourceID, priority int) (LoadID, error)
	// Play starts a loaded effect. loop is the number of extra repetitions,
	// -1 meaning forever.
	Play(id LoadID, left, right float64, priority, loop int, rate float64) (StreamID, error)
	AutoPause()
	AutoResume()
	Release()
}

// VolumeSource reports the current output level of the music category.
type VolumeSource interface {
	MusicVolume() float64
}

// SystemBus mutes or unmutes the system output bus.
type SystemBus interface {
	SetSystemMuted(muted bool) error
}

// Backend bundles every primitive a session needs.
type Backend interface {
	Decoder
	EffectPoolFactory
	VolumeSource
	SystemBus
}

// Capabilities are resolved once at startup and injected into the engines.
type Capabilities struct {
	// Gapless reports whether handles support SetNext chaining.
	Gapless bool
	// LegacyEffectPool enables the load-event workaround for pools that
	// corrupt their buffers after too many loads.
	LegacyEffectPool bool
}
