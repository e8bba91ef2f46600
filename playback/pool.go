package playback

import (
	"fmt"
	"log/slog"

	"audiosession/assets"
	"audiosession/platform"

	"github.com/gopxl/beep/v2"
)

var _ platform.EffectPool = (*EffectPool)(nil)

// EffectPool plays predecoded effects through its own mixer so the whole
// pool can be paused at once. Fields below logger are guarded by the output
// lock.
type EffectPool struct {
	out        *Output
	onLoaded   platform.LoadCallback
	maxStreams int
	logger     *slog.Logger

	mixer      *beep.Mixer
	ctrl       *beep.Ctrl
	loaded     map[platform.LoadID]*assets.PredecodedAudio
	nextLoad   platform.LoadID
	nextStream platform.StreamID
	released   bool
}

// NewPool creates an effect pool mixed into the output.
func (o *Output) NewPool(maxStreams int, onLoaded platform.LoadCallback) (platform.EffectPool, error) {
	if o.isClosed() {
		return nil, ErrClosed
	}
	if o.library == nil {
		return nil, fmt.Errorf("no asset library configured")
	}

	mixer := &beep.Mixer{}
	p := &EffectPool{
		out:        o,
		onLoaded:   onLoaded,
		maxStreams: maxStreams,
		logger:     o.logger.With("pool", fmt.Sprintf("%p", mixer)),
		mixer:      mixer,
		ctrl:       &beep.Ctrl{Streamer: mixer},
		loaded:     make(map[platform.LoadID]*assets.PredecodedAudio),
	}

	o.lock.Lock()
	o.addLocked(p)
	o.lock.Unlock()
	return p, nil
}

// Load decodes id in the background and reports through the load callback.
func (p *EffectPool) Load(id assets.ResourceID, priority int) (platform.LoadID, error) {
	p.out.lock.Lock()
	if p.released {
		p.out.lock.Unlock()
		return 0, ErrReleased
	}
	p.nextLoad++
	loadID := p.nextLoad
	p.out.lock.Unlock()

	go func() {
		audio, err := p.out.library.Predecoded(id)

		p.out.lock.Lock()
		released := p.released
		if err == nil && !released {
			p.loaded[loadID] = audio
		}
		p.out.lock.Unlock()

		if released {
			return
		}
		if err != nil {
			p.logger.Error("Failed to load effect", slog.String("effect", string(id)), slog.Any("error", err))
		}
		p.onLoaded(loadID, err)
	}()
	return loadID, nil
}

func (p *EffectPool) Play(id platform.LoadID, left, right float64, priority, loop int, rate float64) (platform.StreamID, error) {
	p.out.lock.Lock()
	defer p.out.lock.Unlock()

	if p.released {
		return 0, ErrReleased
	}
	audio, ok := p.loaded[id]
	if !ok {
		return 0, ErrNotLoaded
	}
	if p.maxStreams > 0 && p.mixer.Len() >= p.maxStreams {
		return 0, fmt.Errorf("%w: %d playing", ErrStreamLimit, p.mixer.Len())
	}

	p.mixer.Add(p.out.effectStreamer(audio, left, right, loop, rate))
	p.nextStream++
	return p.nextStream, nil
}

// AutoPause pauses every effect in the pool.
func (p *EffectPool) AutoPause() {
	p.out.lock.Lock()
	p.ctrl.Paused = true
	p.out.lock.Unlock()
}

// AutoResume resumes effects paused by AutoPause.
func (p *EffectPool) AutoResume() {
	p.out.lock.Lock()
	p.ctrl.Paused = false
	p.out.lock.Unlock()
}

func (p *EffectPool) Release() {
	p.out.lock.Lock()
	p.released = true
	p.mixer.Clear()
	clear(p.loaded)
	p.out.lock.Unlock()
}

// Stream feeds the pool's effects to the output mixer until released.
func (p *EffectPool) Stream(samples [][2]float64) (int, bool) {
	if p.released {
		return 0, false
	}
	return p.ctrl.Stream(samples)
}

func (p *EffectPool) Err() error {
	return nil
}
