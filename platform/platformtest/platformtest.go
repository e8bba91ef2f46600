// Package platformtest provides in-memory platform primitives for tests.
// Nothing happens on its own: tests fire prepared, completion and load
// callbacks explicitly.
package platformtest

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"audiosession/assets"
	"audiosession/platform"
	"audiosession/track"
)

var ErrReleased = errors.New("handle released")

var (
	_ platform.Backend      = (*Backend)(nil)
	_ platform.Handle       = (*Handle)(nil)
	_ platform.EffectPool   = (*EffectPool)(nil)
	_ platform.Decoder      = (*Decoder)(nil)
	_ platform.VolumeSource = (*Volume)(nil)
)

// Backend bundles fakes for every primitive.
type Backend struct {
	*Decoder
	*EffectPools
	*Volume
	*Bus
}

// NewBackend returns a backend at full volume.
func NewBackend() *Backend {
	return &Backend{
		Decoder:     NewDecoder(),
		EffectPools: &EffectPools{},
		Volume:      NewVolume(1),
		Bus:         &Bus{},
	}
}

// Decoder records every handle it creates.
type Decoder struct {
	mu      sync.Mutex
	handles []*Handle

	// FailNewHandle, when set, is returned by NewHandle.
	FailNewHandle error
	// FailPrepare, when set, is returned by PrepareAsync.
	FailPrepare error
}

func NewDecoder() *Decoder {
	return &Decoder{}
}

func (d *Decoder) NewHandle(sink platform.EventSink) (platform.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.FailNewHandle != nil {
		return nil, d.FailNewHandle
	}
	h := &Handle{
		id:          fmt.Sprintf("handle-%d", len(d.handles)),
		sink:        sink,
		failPrepare: d.FailPrepare,
	}
	d.handles = append(d.handles, h)
	return h, nil
}

// Handles returns every handle created so far, oldest first.
func (d *Decoder) Handles() []*Handle {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Handle(nil), d.handles...)
}

// Handle returns the i-th handle or nil.
func (d *Decoder) Handle(i int) *Handle {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i < 0 || i >= len(d.handles) {
		return nil
	}
	return d.handles[i]
}

// Count returns the number of handles created.
func (d *Decoder) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.handles)
}

// Handle is a scripted stream handle.
type Handle struct {
	mu          sync.Mutex
	id          string
	sink        platform.EventSink
	failPrepare error

	locator   track.Locator
	preparing bool
	prepared  bool
	playing   bool
	looping   bool
	released  bool
	next      *Handle
	position  time.Duration
	seeks     []time.Duration
	starts    int
	panics    bool
}

func (h *Handle) ID() string { return h.id }

func (h *Handle) PrepareAsync(loc track.Locator) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return ErrReleased
	}
	if h.failPrepare != nil {
		return h.failPrepare
	}
	h.locator = loc
	h.preparing = true
	return nil
}

func (h *Handle) Seek(pos time.Duration) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return ErrReleased
	}
	h.seeks = append(h.seeks, pos)
	h.position = pos
	return nil
}

func (h *Handle) SetLooping(looping bool) {
	h.mu.Lock()
	h.looping = looping
	h.mu.Unlock()
}

func (h *Handle) SetNext(next platform.Handle) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return ErrReleased
	}
	if next == nil {
		h.next = nil
		return nil
	}
	n, ok := next.(*Handle)
	if !ok {
		return fmt.Errorf("unexpected handle type %T", next)
	}
	h.next = n
	return nil
}

func (h *Handle) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return ErrReleased
	}
	h.playing = true
	h.starts++
	return nil
}

func (h *Handle) Pause() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return ErrReleased
	}
	h.playing = false
	return nil
}

func (h *Handle) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return ErrReleased
	}
	h.playing = false
	return nil
}

func (h *Handle) Reset() {
	h.mu.Lock()
	h.playing = false
	h.prepared = false
	h.next = nil
	h.mu.Unlock()
}

func (h *Handle) Release() {
	h.mu.Lock()
	h.playing = false
	h.next = nil
	h.released = true
	h.mu.Unlock()
}

func (h *Handle) IsPlaying() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.panics {
		panic("handle torn down")
	}
	return h.playing
}

func (h *Handle) Position() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.position
}

// SetPanicOnIsPlaying simulates a handle torn down underneath the caller.
func (h *Handle) SetPanicOnIsPlaying(panics bool) {
	h.mu.Lock()
	h.panics = panics
	h.mu.Unlock()
}

// SetPosition moves the playback position as if audio had been played.
func (h *Handle) SetPosition(pos time.Duration) {
	h.mu.Lock()
	h.position = pos
	h.mu.Unlock()
}

// FirePrepared delivers the prepared callback, even for a released handle.
func (h *Handle) FirePrepared() {
	h.mu.Lock()
	h.preparing = false
	h.prepared = true
	sink := h.sink
	h.mu.Unlock()

	sink(platform.Event{Kind: platform.EventPrepared, Handle: h})
}

// FireCompleted ends playback. A linked next handle takes over output before
// the completion callback is delivered, as a chaining platform would do.
func (h *Handle) FireCompleted() {
	h.mu.Lock()
	h.playing = false
	h.position = 0
	next := h.next
	sink := h.sink
	h.mu.Unlock()

	if next != nil {
		next.mu.Lock()
		if next.prepared && !next.released {
			next.playing = true
			next.starts++
		}
		next.mu.Unlock()
	}
	sink(platform.Event{Kind: platform.EventCompleted, Handle: h})
}

// FireBuffering delivers a buffering update.
func (h *Handle) FireBuffering(percent int) {
	h.sink(platform.Event{Kind: platform.EventBuffering, Handle: h, Percent: percent})
}

// FireError delivers an asynchronous failure.
func (h *Handle) FireError(err error) {
	h.sink(platform.Event{Kind: platform.EventError, Handle: h, Err: err})
}

func (h *Handle) Locator() track.Locator {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.locator
}

func (h *Handle) Playing() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.playing
}

func (h *Handle) Looping() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.looping
}

func (h *Handle) Released() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.released
}

func (h *Handle) Preparing() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.preparing
}

// Next returns the handle currently linked for chaining.
func (h *Handle) Next() *Handle {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.next
}

func (h *Handle) Seeks() []time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]time.Duration(nil), h.seeks...)
}

func (h *Handle) Starts() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.starts
}

// EffectPools records every pool it creates.
type EffectPools struct {
	mu    sync.Mutex
	pools []*EffectPool

	// FailNewPool, when set, is returned by NewPool.
	FailNewPool error
}

func (f *EffectPools) NewPool(maxStreams int, onLoaded platform.LoadCallback) (platform.EffectPool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailNewPool != nil {
		return nil, f.FailNewPool
	}
	p := &EffectPool{maxStreams: maxStreams, onLoaded: onLoaded}
	f.pools = append(f.pools, p)
	return p, nil
}

// Pools returns every pool created so far, oldest first.
func (f *EffectPools) Pools() []*EffectPool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*EffectPool(nil), f.pools...)
}

// PlayCall records one EffectPool.Play invocation.
type PlayCall struct {
	Load     LoadRecord
	Left     float64
	Right    float64
	Priority int
	Loop     int
	Rate     float64
}

// LoadRecord pairs a load id with the resource it loaded.
type LoadRecord struct {
	ID       platform.LoadID
	Resource assets.ResourceID
}

// EffectPool is a scripted effect pool.
type EffectPool struct {
	mu         sync.Mutex
	maxStreams int
	onLoaded   platform.LoadCallback
	loads      []LoadRecord
	pending    []platform.LoadID
	plays      []PlayCall
	paused     bool
	pauses     int
	resumes    int
	released   bool
	failPlay   error
}

// FailNextPlay makes the next Play call return err.
func (p *EffectPool) FailNextPlay(err error) {
	p.mu.Lock()
	p.failPlay = err
	p.mu.Unlock()
}

func (p *EffectPool) Load(id assets.ResourceID, priority int) (platform.LoadID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released {
		return 0, ErrReleased
	}
	lid := platform.LoadID(len(p.loads) + 1)
	p.loads = append(p.loads, LoadRecord{ID: lid, Resource: id})
	p.pending = append(p.pending, lid)
	return lid, nil
}

func (p *EffectPool) Play(id platform.LoadID, left, right float64, priority, loop int, rate float64) (platform.StreamID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released {
		return 0, ErrReleased
	}
	if err := p.failPlay; err != nil {
		p.failPlay = nil
		return 0, err
	}
	var rec LoadRecord
	for _, l := range p.loads {
		if l.ID == id {
			rec = l
		}
	}
	p.plays = append(p.plays, PlayCall{Load: rec, Left: left, Right: right, Priority: priority, Loop: loop, Rate: rate})
	return platform.StreamID(len(p.plays)), nil
}

func (p *EffectPool) AutoPause() {
	p.mu.Lock()
	p.paused = true
	p.pauses++
	p.mu.Unlock()
}

func (p *EffectPool) AutoResume() {
	p.mu.Lock()
	p.paused = false
	p.resumes++
	p.mu.Unlock()
}

func (p *EffectPool) Release() {
	p.mu.Lock()
	p.released = true
	p.mu.Unlock()
}

// CompleteLoads fires the load callback for every pending load.
func (p *EffectPool) CompleteLoads() {
	p.mu.Lock()
	pending := p.pending
	p.pending = nil
	cb := p.onLoaded
	p.mu.Unlock()

	for _, id := range pending {
		cb(id, nil)
	}
}

func (p *EffectPool) Loads() []LoadRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]LoadRecord(nil), p.loads...)
}

func (p *EffectPool) Plays() []PlayCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]PlayCall(nil), p.plays...)
}

func (p *EffectPool) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

func (p *EffectPool) PauseCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pauses
}

func (p *EffectPool) ResumeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resumes
}

func (p *EffectPool) Released() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.released
}

func (p *EffectPool) MaxStreams() int {
	return p.maxStreams
}

// Volume is a settable music volume.
type Volume struct {
	mu    sync.Mutex
	level float64
}

func NewVolume(level float64) *Volume {
	return &Volume{level: level}
}

func (v *Volume) MusicVolume() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.level
}

func (v *Volume) Set(level float64) {
	v.mu.Lock()
	v.level = level
	v.mu.Unlock()
}

// Bus records mute changes.
type Bus struct {
	mu    sync.Mutex
	muted bool
	calls int

	// Fail, when set, is returned by SetSystemMuted.
	Fail error
}

func (b *Bus) SetSystemMuted(muted bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Fail != nil {
		return b.Fail
	}
	b.muted = muted
	b.calls++
	return nil
}

func (b *Bus) Muted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.muted
}
