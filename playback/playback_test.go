package playback

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"audiosession/assets"
	"audiosession/platform"
	"audiosession/track"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/wav"
)

const testRate = beep.SampleRate(8000)

// toneWAV encodes a constant stereo signal of n samples.
func toneWAV(t *testing.T, n int, value float64) []byte {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "tone-*.wav")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	left := n
	tone := beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		if left == 0 {
			return 0, false
		}
		k := min(left, len(samples))
		for i := range samples[:k] {
			samples[i] = [2]float64{value, value}
		}
		left -= k
		return k, true
	})
	format := beep.Format{SampleRate: testRate, NumChannels: 2, Precision: 2}
	if err := wav.Encode(f, tone, format); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(f.Name())
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func newTestOutput(t *testing.T, files fstest.MapFS) *Output {
	t.Helper()
	lib, err := assets.NewLibrary(files, 8)
	if err != nil {
		t.Fatal(err)
	}
	o := newOutput(lib, testRate, &sync.Mutex{})
	t.Cleanup(func() { o.Close() })
	return o
}

// pull renders n samples the way the speaker goroutine would.
func pull(o *Output, n int) [][2]float64 {
	buf := make([][2]float64, n)
	o.lock.Lock()
	o.volume.Stream(buf)
	o.lock.Unlock()
	return buf
}

func audible(s [2]float64) bool {
	return s[0] > 0.05 || s[0] < -0.05
}

type eventLog chan platform.Event

func (l eventLog) sink(ev platform.Event) { l <- ev }

func (l eventLog) expect(t *testing.T, kind platform.EventKind) platform.Event {
	t.Helper()
	for {
		select {
		case ev := <-l:
			if ev.Kind == platform.EventBuffering && kind != platform.EventBuffering {
				continue
			}
			if ev.Kind != kind {
				t.Fatalf("got %s event (err %v), want %s", ev.Kind, ev.Err, kind)
			}
			return ev
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %s", kind)
		}
	}
}

func (l eventLog) expectNone(t *testing.T) {
	t.Helper()
	select {
	case ev := <-l:
		t.Fatalf("unexpected %s event", ev.Kind)
	case <-time.After(50 * time.Millisecond):
	}
}

func prepared(t *testing.T, o *Output, events eventLog, loc track.Locator) *Handle {
	t.Helper()
	ph, err := o.NewHandle(events.sink)
	if err != nil {
		t.Fatal(err)
	}
	h := ph.(*Handle)
	if err := h.PrepareAsync(loc); err != nil {
		t.Fatalf("PrepareAsync() error = %v", err)
	}
	ev := events.expect(t, platform.EventPrepared)
	if ev.Handle != h {
		t.Fatal("prepared event for another handle")
	}
	return h
}

var toneLocator = track.Locator{Resource: "music/tone.wav"}

func TestHandlePlaysToCompletion(t *testing.T) {
	o := newTestOutput(t, fstest.MapFS{"music/tone.wav": {Data: toneWAV(t, 250, 0.5)}})
	events := make(eventLog, 8)

	h := prepared(t, o, events, toneLocator)
	if err := h.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	for i, s := range pull(o, 100) {
		if !audible(s) {
			t.Fatalf("sample %d silent while playing", i)
		}
	}
	if got, want := h.Position(), testRate.D(100); got != want {
		t.Errorf("Position() = %v, want %v", got, want)
	}

	buf := pull(o, 200)
	for i, s := range buf {
		if want := i < 150; audible(s) != want {
			t.Fatalf("sample %d audible = %v, want %v", i, audible(s), want)
		}
	}
	events.expect(t, platform.EventCompleted)
	if h.IsPlaying() {
		t.Error("IsPlaying() after completion")
	}
}

func TestHandleGaplessHandOff(t *testing.T) {
	o := newTestOutput(t, fstest.MapFS{"music/tone.wav": {Data: toneWAV(t, 250, 0.5)}})
	events := make(eventLog, 8)

	first := prepared(t, o, events, toneLocator)
	second := prepared(t, o, events, toneLocator)
	if err := first.SetNext(second); err != nil {
		t.Fatalf("SetNext() error = %v", err)
	}
	if err := first.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	for i, s := range pull(o, 400) {
		if !audible(s) {
			t.Fatalf("gap at sample %d", i)
		}
	}

	ev := events.expect(t, platform.EventCompleted)
	if ev.Handle != first {
		t.Error("completion should be reported for the first handle")
	}
	if first.IsPlaying() || !second.IsPlaying() {
		t.Fatalf("playing first=%v second=%v, want false/true", first.IsPlaying(), second.IsPlaying())
	}
	if got, want := second.Position(), testRate.D(150); got != want {
		t.Errorf("second Position() = %v, want %v", got, want)
	}

	// Releasing the finished handle must not silence its successor.
	first.Release()
	for i, s := range pull(o, 50) {
		if !audible(s) {
			t.Fatalf("sample %d silent after releasing the previous handle", i)
		}
	}
}

func TestHandleNativeLoop(t *testing.T) {
	o := newTestOutput(t, fstest.MapFS{"music/tone.wav": {Data: toneWAV(t, 250, 0.5)}})
	events := make(eventLog, 8)

	h := prepared(t, o, events, toneLocator)
	h.SetLooping(true)
	if err := h.Start(); err != nil {
		t.Fatal(err)
	}

	for i, s := range pull(o, 700) {
		if !audible(s) {
			t.Fatalf("looping stream silent at sample %d", i)
		}
	}
	events.expectNone(t)
	if !h.IsPlaying() {
		t.Error("looping handle stopped")
	}
}

func TestHandleSeekPauseRelease(t *testing.T) {
	o := newTestOutput(t, fstest.MapFS{"music/tone.wav": {Data: toneWAV(t, 250, 0.5)}})
	events := make(eventLog, 8)

	h := prepared(t, o, events, toneLocator)
	if err := h.Seek(testRate.D(200)); err != nil {
		t.Fatalf("Seek() error = %v", err)
	}
	if err := h.Start(); err != nil {
		t.Fatal(err)
	}

	if err := h.Pause(); err != nil {
		t.Fatal(err)
	}
	for _, s := range pull(o, 20) {
		if audible(s) {
			t.Fatal("paused handle produced audio")
		}
	}
	if got, want := h.Position(), testRate.D(200); got != want {
		t.Errorf("Position() while paused = %v, want %v", got, want)
	}

	if err := h.Start(); err != nil {
		t.Fatal(err)
	}
	buf := pull(o, 100)
	for i, s := range buf {
		if want := i < 50; audible(s) != want {
			t.Fatalf("sample %d audible = %v, want %v", i, audible(s), want)
		}
	}
	events.expect(t, platform.EventCompleted)

	h.Release()
	if err := h.Start(); !errors.Is(err, ErrReleased) {
		t.Errorf("Start() after release error = %v, want ErrReleased", err)
	}
	if err := h.PrepareAsync(toneLocator); !errors.Is(err, ErrReleased) {
		t.Errorf("PrepareAsync() after release error = %v, want ErrReleased", err)
	}
}

func TestHandlePrepareFailure(t *testing.T) {
	o := newTestOutput(t, fstest.MapFS{})
	events := make(eventLog, 8)

	ph, err := o.NewHandle(events.sink)
	if err != nil {
		t.Fatal(err)
	}
	if err := ph.PrepareAsync(track.Locator{Resource: "music/missing.wav"}); err != nil {
		t.Fatalf("PrepareAsync() error = %v", err)
	}
	ev := events.expect(t, platform.EventError)
	if ev.Err == nil {
		t.Error("error event without error")
	}
	if err := ph.Start(); !errors.Is(err, ErrNotPrepared) {
		t.Errorf("Start() error = %v, want ErrNotPrepared", err)
	}
}

func TestHandleBufferingFromURL(t *testing.T) {
	data := toneWAV(t, 4000, 0.5)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.Write(data)
	}))
	defer srv.Close()

	o := newTestOutput(t, fstest.MapFS{})
	events := make(eventLog, 256)

	ph, err := o.NewHandle(events.sink)
	if err != nil {
		t.Fatal(err)
	}
	if err := ph.PrepareAsync(track.Locator{URL: srv.URL + "/stream/tone.wav"}); err != nil {
		t.Fatal(err)
	}

	last := 0
	for {
		ev := <-events
		if ev.Kind == platform.EventPrepared {
			break
		}
		if ev.Kind != platform.EventBuffering {
			t.Fatalf("unexpected %s event: %v", ev.Kind, ev.Err)
		}
		if ev.Percent < last {
			t.Errorf("buffering went backwards: %d after %d", ev.Percent, last)
		}
		last = ev.Percent
	}
	if last != 100 {
		t.Errorf("final buffering percent = %d, want 100", last)
	}
}

func TestEffectPool(t *testing.T) {
	o := newTestOutput(t, fstest.MapFS{"sfx/beep.wav": {Data: toneWAV(t, 400, 0.25)}})

	loaded := make(chan error, 1)
	pp, err := o.NewPool(2, func(_ platform.LoadID, err error) { loaded <- err })
	if err != nil {
		t.Fatal(err)
	}
	pool := pp.(*EffectPool)

	id, err := pool.Load("sfx/beep.wav", 1)
	if err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-loaded:
		if err != nil {
			t.Fatalf("load error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("load callback never fired")
	}

	for i := 0; i < 2; i++ {
		if _, err := pool.Play(id, 1, 1, 1, 0, 1); err != nil {
			t.Fatalf("Play() error = %v", err)
		}
	}
	if _, err := pool.Play(id, 1, 1, 1, 0, 1); !errors.Is(err, ErrStreamLimit) {
		t.Errorf("third Play() error = %v, want ErrStreamLimit", err)
	}

	if s := pull(o, 10)[5]; s[0] < 0.45 {
		t.Errorf("two effects mixed to %v, want about 0.5", s[0])
	}

	pool.AutoPause()
	if s := pull(o, 10)[5]; audible(s) {
		t.Error("paused pool produced audio")
	}
	pool.AutoResume()
	if s := pull(o, 10)[5]; !audible(s) {
		t.Error("resumed pool is silent")
	}

	pool.Release()
	if s := pull(o, 10)[5]; audible(s) {
		t.Error("released pool produced audio")
	}
	if _, err := pool.Play(id, 1, 1, 1, 0, 1); !errors.Is(err, ErrReleased) {
		t.Errorf("Play() after release error = %v, want ErrReleased", err)
	}
}

func TestEffectPoolUnknownLoad(t *testing.T) {
	o := newTestOutput(t, fstest.MapFS{})
	pool, err := o.NewPool(4, func(platform.LoadID, error) {})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := pool.Play(42, 1, 1, 1, 0, 1); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("Play() error = %v, want ErrNotLoaded", err)
	}
}

func TestVolumeAndMute(t *testing.T) {
	o := newTestOutput(t, fstest.MapFS{"music/tone.wav": {Data: toneWAV(t, 2000, 0.5)}})
	events := make(eventLog, 8)

	h := prepared(t, o, events, toneLocator)
	if err := h.Start(); err != nil {
		t.Fatal(err)
	}

	o.SetVolume(0.5)
	if got := o.MusicVolume(); got != 0.5 {
		t.Errorf("MusicVolume() = %v, want 0.5", got)
	}
	if s := pull(o, 10)[5]; s[0] < 0.2 || s[0] > 0.3 {
		t.Errorf("half volume sample = %v, want about 0.25", s[0])
	}

	if err := o.SetSystemMuted(true); err != nil {
		t.Fatal(err)
	}
	if s := pull(o, 10)[5]; audible(s) {
		t.Error("muted output produced audio")
	}
	if !h.IsPlaying() {
		t.Error("mute must not stop streams")
	}

	if err := o.SetSystemMuted(false); err != nil {
		t.Fatal(err)
	}
	if s := pull(o, 10)[5]; !audible(s) {
		t.Error("unmuted output is silent")
	}
}
