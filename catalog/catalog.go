// Package catalog maps friendly names to music tracks and sound effects.
package catalog

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"unicode"

	"audiosession/assets"
	"audiosession/track"

	"github.com/samber/lo"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

var (
	ErrNotFound     = errors.New("not found in catalog")
	ErrDuplicate    = errors.New("duplicate catalog name")
	ErrEmptyName    = errors.New("catalog entry has no usable name")
	ErrInvalidEntry = errors.New("invalid catalog entry")
)

// TrackEntry is one named music track.
type TrackEntry struct {
	Name     string `yaml:"name"`
	Resource string `yaml:"resource,omitempty"`
	URL      string `yaml:"url,omitempty"`
	Title    string `yaml:"title,omitempty"`
	Artist   string `yaml:"artist,omitempty"`
	Date     string `yaml:"date,omitempty"`
}

// EffectEntry is one named sound effect.
type EffectEntry struct {
	Name     string `yaml:"name"`
	Resource string `yaml:"resource"`
}

// Catalog is the parsed catalog file. Lookups ignore case and accents.
type Catalog struct {
	Tracks  []TrackEntry  `yaml:"tracks"`
	Effects []EffectEntry `yaml:"effects"`

	tracks  map[string]track.Track
	effects map[string]assets.ResourceID
}

// Load reads and parses a catalog file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog %s: %w", path, err)
	}
	slog.With("component", "catalog").Info("Catalog loaded",
		slog.String("path", path),
		slog.Int("tracks", len(c.Tracks)),
		slog.Int("effects", len(c.Effects)))
	return c, nil
}

// Parse parses catalog yaml and indexes the entries.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if err := c.index(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) index() error {
	c.tracks = make(map[string]track.Track, len(c.Tracks))
	c.effects = make(map[string]assets.ResourceID, len(c.Effects))

	for _, e := range c.Tracks {
		key, err := Key(e.Name)
		if err != nil {
			return err
		}
		if _, ok := c.tracks[key]; ok {
			return fmt.Errorf("%w: track %q", ErrDuplicate, e.Name)
		}
		t, err := track.New(track.Config{
			Resource: assets.ResourceID(e.Resource),
			URL:      e.URL,
			Title:    lo.Ternary(e.Title != "", e.Title, e.Name),
			Artist:   e.Artist,
			Date:     e.Date,
		})
		if err != nil {
			return fmt.Errorf("%w: track %q: %w", ErrInvalidEntry, e.Name, err)
		}
		c.tracks[key] = t
	}

	for _, e := range c.Effects {
		key, err := Key(e.Name)
		if err != nil {
			return err
		}
		if _, ok := c.effects[key]; ok {
			return fmt.Errorf("%w: effect %q", ErrDuplicate, e.Name)
		}
		if e.Resource == "" {
			return fmt.Errorf("%w: effect %q has no resource", ErrInvalidEntry, e.Name)
		}
		c.effects[key] = assets.ResourceID(e.Resource)
	}
	return nil
}

// Track returns the track registered under name.
func (c *Catalog) Track(name string) (track.Track, error) {
	key, err := Key(name)
	if err != nil {
		return track.Track{}, fmt.Errorf("track %q: %w", name, ErrNotFound)
	}
	t, ok := c.tracks[key]
	if !ok {
		return track.Track{}, fmt.Errorf("track %q: %w", name, ErrNotFound)
	}
	return t, nil
}

// Effect returns the resource registered under name.
func (c *Catalog) Effect(name string) (assets.ResourceID, error) {
	key, err := Key(name)
	if err != nil {
		return assets.NoResource, fmt.Errorf("effect %q: %w", name, ErrNotFound)
	}
	id, ok := c.effects[key]
	if !ok {
		return assets.NoResource, fmt.Errorf("effect %q: %w", name, ErrNotFound)
	}
	return id, nil
}

// EffectResources returns every distinct effect resource, in file order.
func (c *Catalog) EffectResources() []assets.ResourceID {
	return lo.Uniq(lo.Map(c.Effects, func(e EffectEntry, _ int) assets.ResourceID {
		return assets.ResourceID(e.Resource)
	}))
}

// Key folds name into its lookup form: accents removed, case folded and
// runs of spaces replaced by a single underscore. "Café  Theme" and
// "cafe_theme" share a key.
func Key(name string) (string, error) {
	t := transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		cases.Fold(),
	)
	folded, _, err := transform.String(t, name)
	if err != nil {
		return "", fmt.Errorf("failed to normalize %q: %w", name, err)
	}

	filtered := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			return r
		case unicode.IsSpace(r) || r == '_' || r == '-':
			return ' '
		}
		return -1
	}, folded)

	key := strings.Join(strings.Fields(filtered), "_")
	if key == "" {
		return "", fmt.Errorf("%w: %q", ErrEmptyName, name)
	}
	return key, nil
}
