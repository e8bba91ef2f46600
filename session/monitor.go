package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"audiosession/music"
	"audiosession/track"
)

type progressSource interface {
	IsPlaying() bool
	Position() time.Duration
	Track() (track.Track, bool)
}

// ProgressMonitor publishes the playback position while music plays
type ProgressMonitor struct {
	interval    time.Duration
	source      progressSource
	publish     func(music.Event)
	logger      *slog.Logger
	ctx         context.Context
	cancel      context.CancelFunc
	wg          *sync.WaitGroup
	stopChannel chan struct{}
	stopOnce    sync.Once
}

// NewProgressMonitor creates a monitor that stops with parent.
func NewProgressMonitor(parent context.Context, interval time.Duration, source progressSource, publish func(music.Event), wg *sync.WaitGroup) *ProgressMonitor {
	ctx, cancel := context.WithCancel(parent)
	if interval <= 0 {
		interval = time.Second
	}

	return &ProgressMonitor{
		interval:    interval,
		source:      source,
		publish:     publish,
		logger:      slog.With("component", "progress-monitor"),
		ctx:         ctx,
		cancel:      cancel,
		wg:          wg,
		stopChannel: make(chan struct{}),
	}
}

// Start begins progress monitoring
func (p *ProgressMonitor) Start() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		p.logger.Debug("Starting progress monitoring", slog.Duration("interval", p.interval))

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				p.tick()
			case <-p.ctx.Done():
				p.logger.Debug("Progress monitoring stopped")
				return
			case <-p.stopChannel:
				p.logger.Debug("Progress monitoring stopped via stop channel")
				return
			}
		}
	}()
}

func (p *ProgressMonitor) tick() {
	if !p.source.IsPlaying() {
		return
	}
	t, ok := p.source.Track()
	if !ok {
		return
	}
	p.publish(music.Event{Kind: music.EventProgress, Track: t, Position: p.source.Position()})
}

// Stop stops progress monitoring
func (p *ProgressMonitor) Stop() {
	p.stopOnce.Do(func() {
		p.cancel()
		close(p.stopChannel)
	})
}
