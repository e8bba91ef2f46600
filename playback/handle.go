package playback

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"audiosession/platform"
	"audiosession/track"

	"github.com/google/uuid"
	"github.com/gopxl/beep/v2"
)

var _ platform.Handle = (*Handle)(nil)

// Handle is one decoded music stream. All fields below sink are guarded by
// the output lock since the speaker goroutine reads them while streaming.
type Handle struct {
	id     string
	out    *Output
	sink   platform.EventSink
	cancel context.CancelFunc
	logger *slog.Logger

	source    beep.StreamSeekCloser
	format    beep.Format
	stream    beep.Streamer
	preparing bool
	prepared  bool
	playing   bool
	looping   bool
	released  bool
	next      *Handle
	slot      *slot
}

// NewHandle creates an idle handle reporting to sink.
func (o *Output) NewHandle(sink platform.EventSink) (platform.Handle, error) {
	if o.isClosed() {
		return nil, ErrClosed
	}
	id := uuid.NewString()
	return &Handle{
		id:     id,
		out:    o,
		sink:   sink,
		logger: o.logger.With("handle", id),
	}, nil
}

func (h *Handle) ID() string { return h.id }

func (h *Handle) PrepareAsync(loc track.Locator) error {
	h.out.lock.Lock()
	defer h.out.lock.Unlock()

	switch {
	case h.released:
		return ErrReleased
	case h.preparing || h.prepared:
		return ErrAlreadyPrepare
	}
	h.preparing = true

	ctx, cancel := context.WithCancel(h.out.ctx)
	h.cancel = cancel
	go h.prepare(ctx, loc)
	return nil
}

func (h *Handle) prepare(ctx context.Context, loc track.Locator) {
	var progress func(int)
	if loc.IsURL() {
		progress = func(percent int) {
			h.sink(platform.Event{Kind: platform.EventBuffering, Handle: h, Percent: percent})
		}
	}

	source, format, err := h.out.openLocator(ctx, loc, progress)
	if err != nil {
		h.out.lock.Lock()
		released := h.released
		h.preparing = false
		h.out.lock.Unlock()
		if !released {
			h.sink(platform.Event{Kind: platform.EventError, Handle: h, Err: err})
		}
		return
	}

	h.out.lock.Lock()
	if h.released {
		h.out.lock.Unlock()
		source.Close()
		return
	}
	h.source = source
	h.format = format
	h.stream = h.out.resample(format.SampleRate, source)
	h.preparing = false
	h.prepared = true
	h.out.lock.Unlock()

	h.logger.Debug("Stream prepared",
		slog.String("locator", loc.String()),
		slog.Int("sample_rate", int(format.SampleRate)),
		slog.Duration("length", format.SampleRate.D(source.Len())))
	h.sink(platform.Event{Kind: platform.EventPrepared, Handle: h})
}

func (h *Handle) Seek(pos time.Duration) error {
	h.out.lock.Lock()
	defer h.out.lock.Unlock()

	if h.released {
		return ErrReleased
	}
	if !h.prepared {
		return ErrNotPrepared
	}
	return h.seekLocked(pos)
}

func (h *Handle) seekLocked(pos time.Duration) error {
	n := h.format.SampleRate.N(pos)
	if length := h.source.Len(); n > length {
		n = length
	}
	if n < 0 {
		n = 0
	}
	if err := h.source.Seek(n); err != nil {
		return fmt.Errorf("failed to seek to %s: %w", pos, err)
	}
	// The resampler buffers input, so a fresh one avoids replaying stale
	// samples after a jump.
	h.stream = h.out.resample(h.format.SampleRate, h.source)
	return nil
}

func (h *Handle) SetLooping(looping bool) {
	h.out.lock.Lock()
	h.looping = looping
	h.out.lock.Unlock()
}

func (h *Handle) SetNext(next platform.Handle) error {
	var n *Handle
	if next != nil {
		var ok bool
		n, ok = next.(*Handle)
		if !ok || n.out != h.out {
			return ErrForeignHandle
		}
	}

	h.out.lock.Lock()
	defer h.out.lock.Unlock()
	if h.released {
		return ErrReleased
	}
	h.next = n
	return nil
}

func (h *Handle) Start() error {
	h.out.lock.Lock()
	defer h.out.lock.Unlock()

	switch {
	case h.released:
		return ErrReleased
	case !h.prepared:
		return ErrNotPrepared
	case h.playing:
		return nil
	}

	h.playing = true
	if h.slot == nil {
		h.slot = &slot{owner: h}
		h.out.addLocked(h.slot)
	}
	return nil
}

func (h *Handle) Pause() error {
	h.out.lock.Lock()
	defer h.out.lock.Unlock()
	if h.released {
		return ErrReleased
	}
	h.playing = false
	return nil
}

func (h *Handle) Stop() error {
	h.out.lock.Lock()
	defer h.out.lock.Unlock()
	if h.released {
		return ErrReleased
	}
	h.playing = false
	h.detachLocked()
	if h.prepared {
		return h.seekLocked(0)
	}
	return nil
}

// Reset returns the handle to the unprepared state.
func (h *Handle) Reset() {
	h.out.lock.Lock()
	defer h.out.lock.Unlock()
	h.playing = false
	h.detachLocked()
	h.next = nil
	h.closeSourceLocked()
}

func (h *Handle) Release() {
	h.out.lock.Lock()
	if h.released {
		h.out.lock.Unlock()
		return
	}
	h.released = true
	h.playing = false
	h.detachLocked()
	h.next = nil
	h.closeSourceLocked()
	cancel := h.cancel
	h.out.lock.Unlock()

	if cancel != nil {
		cancel()
	}
	h.logger.Debug("Stream released")
}

func (h *Handle) IsPlaying() bool {
	h.out.lock.Lock()
	defer h.out.lock.Unlock()
	return h.playing && !h.released
}

func (h *Handle) Position() time.Duration {
	h.out.lock.Lock()
	defer h.out.lock.Unlock()
	if h.source == nil {
		return 0
	}
	return h.format.SampleRate.D(h.source.Position())
}

// detachLocked stops the handle's slot unless another handle took it over.
func (h *Handle) detachLocked() {
	if h.slot != nil && h.slot.owner == h {
		h.slot.owner = nil
	}
	h.slot = nil
}

func (h *Handle) closeSourceLocked() {
	if h.source != nil {
		if err := h.source.Close(); err != nil {
			h.logger.Warn("Failed to close stream source", slog.Any("error", err))
		}
	}
	h.source = nil
	h.stream = nil
	h.prepared = false
	h.preparing = false
}

// slot is the mixer entry music plays through. When its owner runs out and
// a prepared next handle is linked, ownership moves to that handle inside a
// single Stream call, so the mixer never sees a gap.
type slot struct {
	owner *Handle
}

func (s *slot) Stream(samples [][2]float64) (int, bool) {
	if s.owner == nil {
		return 0, false
	}

	filled := 0
	rewound := false
	for filled < len(samples) {
		h := s.owner
		if h == nil {
			clear(samples[filled:])
			return len(samples), true
		}
		if !h.playing || h.stream == nil {
			clear(samples[filled:])
			return len(samples), true
		}

		n, ok := h.stream.Stream(samples[filled:])
		filled += n
		if n > 0 {
			rewound = false
		}
		if ok && n > 0 {
			continue
		}

		if err := h.source.Err(); err != nil {
			s.finish(h, platform.Event{Kind: platform.EventError, Handle: h, Err: err})
			continue
		}
		if h.looping && !rewound {
			if err := h.seekLocked(0); err == nil {
				rewound = true
				continue
			}
		}
		s.finish(h, platform.Event{Kind: platform.EventCompleted, Handle: h})
	}
	return filled, true
}

// finish ends h on this slot and hands the slot to its linked next handle.
// The event is delivered from a new goroutine since the output lock is held.
func (s *slot) finish(h *Handle, ev platform.Event) {
	h.playing = false
	h.slot = nil
	s.owner = nil

	if next := h.next; next != nil && next.prepared && !next.released && next.slot == nil {
		next.playing = true
		next.slot = s
		s.owner = next
	}
	h.next = nil

	go h.sink(ev)
}

func (s *slot) Err() error {
	return nil
}
