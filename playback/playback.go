// Package playback implements the platform primitives on top of beep and
// the system speaker.
package playback

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"audiosession/assets"
	"audiosession/platform"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/speaker"
)

var _ platform.Backend = (*Output)(nil)

type speakerLock struct{}

func (speakerLock) Lock()   { speaker.Lock() }
func (speakerLock) Unlock() { speaker.Unlock() }

// Open initializes the speaker and starts playing the output mixer.
func Open(opts Options) (*Output, error) {
	if opts.SampleRate == 0 {
		opts.SampleRate = DefaultSampleRate
	}
	if opts.Buffer == 0 {
		opts.Buffer = DefaultBuffer
	}

	err := speaker.Init(opts.SampleRate, opts.SampleRate.N(opts.Buffer))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize speaker: %w", err)
	}

	o := newOutput(opts.Library, opts.SampleRate, speakerLock{})
	o.speaker = true
	speaker.Play(o.volume)

	o.logger.Info("Audio output opened",
		slog.Int("sample_rate", int(opts.SampleRate)),
		slog.Duration("buffer", opts.Buffer))
	return o, nil
}

func newOutput(library *assets.Library, sampleRate beep.SampleRate, lock sync.Locker) *Output {
	ctx, cancel := context.WithCancel(context.Background())
	mixer := &beep.Mixer{}

	return &Output{
		lock:       lock,
		library:    library,
		sampleRate: sampleRate,
		mixer:      mixer,
		volume:     &effects.Volume{Streamer: mixer, Base: 2},
		level:      1,
		ctx:        ctx,
		cancel:     cancel,
		logger:     slog.With("component", "playback"),
	}
}

// Capabilities reports what this output supports.
func (o *Output) Capabilities() platform.Capabilities {
	return platform.Capabilities{Gapless: true}
}

// SampleRate returns the output sample rate.
func (o *Output) SampleRate() beep.SampleRate {
	return o.sampleRate
}

// SetVolume sets the master level (0.0 to 1.0).
func (o *Output) SetVolume(level float64) {
	level = math.Max(0, math.Min(1, level))

	o.lock.Lock()
	o.level = level
	o.applyVolumeLocked()
	o.lock.Unlock()
}

// MusicVolume returns the master level.
func (o *Output) MusicVolume() float64 {
	o.lock.Lock()
	defer o.lock.Unlock()
	return o.level
}

// SetSystemMuted silences the whole output without stopping any stream.
func (o *Output) SetSystemMuted(muted bool) error {
	o.mu.Lock()
	closed := o.closed
	o.mu.Unlock()
	if closed {
		return ErrClosed
	}

	o.lock.Lock()
	o.muted = muted
	o.applyVolumeLocked()
	o.lock.Unlock()

	o.logger.Debug("System output mute changed", slog.Bool("muted", muted))
	return nil
}

func (o *Output) applyVolumeLocked() {
	o.volume.Silent = o.muted || o.level == 0
	if o.level > 0 {
		o.volume.Volume = math.Log2(o.level)
	}
}

// Close stops every stream and releases the speaker.
func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return nil
	}
	o.closed = true
	o.cancel()

	o.lock.Lock()
	o.mixer.Clear()
	o.lock.Unlock()

	if o.speaker {
		speaker.Close()
	}
	o.logger.Debug("Audio output closed")
	return nil
}

func (o *Output) isClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

// addLocked puts s on the output mixer.
func (o *Output) addLocked(s beep.Streamer) {
	o.mixer.Add(s)
}

// resample adapts s from rate to the output rate.
func (o *Output) resample(rate beep.SampleRate, s beep.Streamer) beep.Streamer {
	if rate == o.sampleRate {
		return s
	}
	return beep.Resample(resampleQuality, rate, o.sampleRate, s)
}
