package track

import (
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"audiosession/assets"
)

var (
	ErrNoLocator        = errors.New("track has no locator")
	ErrAmbiguousLocator = errors.New("track has both a resource and a url")
)

// Locator points the platform decoder at one audio source. Exactly one of
// Resource or URL is set on a valid locator.
type Locator struct {
	Resource assets.ResourceID
	URL      string
}

// Validate reports whether exactly one locator kind is set.
func (l Locator) Validate() error {
	switch {
	case l.Resource == assets.NoResource && l.URL == "":
		return ErrNoLocator
	case l.Resource != assets.NoResource && l.URL != "":
		return ErrAmbiguousLocator
	}
	return nil
}

// IsURL reports whether the locator refers to a url.
func (l Locator) IsURL() bool {
	return l.URL != ""
}

// Name returns a file-like name used for format detection.
func (l Locator) Name() string {
	if l.URL != "" {
		p := l.URL
		if i := strings.IndexAny(p, "?#"); i >= 0 {
			p = p[:i]
		}
		return path.Base(p)
	}
	return string(l.Resource)
}

func (l Locator) String() string {
	if l.URL != "" {
		return l.URL
	}
	return string(l.Resource)
}

// Track describes one playable music item. A Track is immutable once it has
// been handed to the music engine.
type Track struct {
	Locator Locator
	Title   string
	Artist  string
	Date    string
}

// Config holds the fields used to build a Track.
type Config struct {
	Resource assets.ResourceID
	URL      string
	Title    string
	Artist   string
	Date     string
}

// New validates cfg and returns the resulting Track.
func New(cfg Config) (Track, error) {
	t := Track{
		Locator: Locator{Resource: cfg.Resource, URL: cfg.URL},
		Title:   cfg.Title,
		Artist:  cfg.Artist,
		Date:    cfg.Date,
	}
	if err := t.Validate(); err != nil {
		return Track{}, err
	}
	return t, nil
}

// Validate checks the track's locator.
func (t Track) Validate() error {
	if err := t.Locator.Validate(); err != nil {
		return fmt.Errorf("invalid track %q: %w", t.Title, err)
	}
	return nil
}

// Same reports whether both tracks point at the same source.
func (t Track) Same(other Track) bool {
	return t.Locator == other.Locator
}

// DisplayName returns the title if set, the locator otherwise.
func (t Track) DisplayName() string {
	if t.Title != "" {
		return t.Title
	}
	return t.Locator.String()
}

// LogValue implements slog.LogValuer.
func (t Track) LogValue() slog.Value {
	attrs := []slog.Attr{slog.String("locator", t.Locator.String())}
	if t.Title != "" {
		attrs = append(attrs, slog.String("title", t.Title))
	}
	if t.Artist != "" {
		attrs = append(attrs, slog.String("artist", t.Artist))
	}
	return slog.GroupValue(attrs...)
}
