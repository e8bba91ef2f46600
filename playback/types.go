package playback

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"audiosession/assets"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
)

var (
	ErrClosed         = errors.New("output is closed")
	ErrReleased       = errors.New("handle released")
	ErrNotPrepared    = errors.New("handle not prepared")
	ErrAlreadyPrepare = errors.New("handle already prepared")
	ErrForeignHandle  = errors.New("handle belongs to another output")
	ErrNotLoaded      = errors.New("effect not loaded")
	ErrStreamLimit    = errors.New("too many simultaneous effects")
)

const (
	DefaultSampleRate = beep.SampleRate(44100)
	DefaultBuffer     = 100 * time.Millisecond

	resampleQuality = 4
)

// Options configure an Output.
type Options struct {
	SampleRate beep.SampleRate
	Buffer     time.Duration
	Library    *assets.Library
}

// Output mixes music handles and effect pools into one speaker stream.
// Every field read by the speaker goroutine is guarded by lock, which is
// the speaker lock in production.
type Output struct {
	mu         sync.Mutex
	lock       sync.Locker
	library    *assets.Library
	sampleRate beep.SampleRate
	mixer      *beep.Mixer
	volume     *effects.Volume
	level      float64
	muted      bool
	closed     bool
	speaker    bool
	ctx        context.Context
	cancel     context.CancelFunc
	logger     *slog.Logger
}
