package playback

import (
	"context"
	"fmt"
	"math"

	"audiosession/assets"
	"audiosession/track"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
)

// openLocator reads and decodes the audio behind loc. Buffering progress is
// reported for url locators only.
func (o *Output) openLocator(ctx context.Context, loc track.Locator, progress func(int)) (beep.StreamSeekCloser, beep.Format, error) {
	if o.library == nil {
		return nil, beep.Format{}, fmt.Errorf("no asset library configured")
	}

	var (
		data []byte
		err  error
	)
	if loc.IsURL() {
		data, err = o.library.FetchURL(ctx, loc.URL, progress)
	} else {
		data, err = o.library.ReadResource(loc.Resource)
	}
	if err != nil {
		return nil, beep.Format{}, err
	}

	streamer, format, err := assets.Decode(loc.Name(), data)
	if err != nil {
		return nil, beep.Format{}, fmt.Errorf("failed to decode %s: %w", loc, err)
	}
	return streamer, format, nil
}

// effectStreamer builds one effect instance from a predecoded buffer. loop
// counts extra repetitions, -1 meaning forever.
func (o *Output) effectStreamer(audio *assets.PredecodedAudio, left, right float64, loop int, rate float64) beep.Streamer {
	var s beep.Streamer = audio.Buffer.Streamer(0, audio.Buffer.Len())
	if loop != 0 {
		count := loop + 1
		if loop < 0 {
			count = -1
		}
		s = beep.Loop(count, audio.Buffer.Streamer(0, audio.Buffer.Len()))
	}
	if rate > 0 && rate != 1 {
		s = beep.ResampleRatio(resampleQuality, rate, s)
	}
	s = o.resample(audio.Format.SampleRate, s)

	gain := math.Max(left, right)
	if left != right && gain > 0 {
		s = &effects.Pan{Streamer: s, Pan: (right - left) / (right + left)}
	}
	return &effects.Volume{
		Streamer: s,
		Base:     2,
		Volume:   math.Log2(math.Max(gain, 1e-6)),
		Silent:   gain <= 0,
	}
}
