package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"audiosession/assets"
	"audiosession/track"
)

const sample = `
tracks:
  - name: Café Theme
    resource: music/cafe.mp3
    artist: Huh X0015
  - name: Radio
    url: https://example.com/live.mp3
    title: Internet Radio
effects:
  - name: Jump
    resource: sfx/jump.wav
  - name: Double Jump
    resource: sfx/jump.wav
  - name: Coin
    resource: sfx/coin.wav
`

func TestKey(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "Café Theme", want: "cafe_theme"},
		{in: "  CAFÉ   theme ", want: "cafe_theme"},
		{in: "cafe_theme", want: "cafe_theme"},
		{in: "Straße-Lied", want: "strasse_lied"},
		{in: "level 2!", want: "level_2"},
		{in: "?!", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Key(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Key(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Key(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestLookup(t *testing.T) {
	c, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	cafe, err := c.Track("cafe theme")
	if err != nil {
		t.Fatalf("Track() error = %v", err)
	}
	if cafe.Locator != (track.Locator{Resource: "music/cafe.mp3"}) {
		t.Errorf("locator = %v", cafe.Locator)
	}
	if cafe.Title != "Café Theme" || cafe.Artist != "Huh X0015" {
		t.Errorf("metadata = %q / %q", cafe.Title, cafe.Artist)
	}

	radio, err := c.Track("RADIO")
	if err != nil {
		t.Fatalf("Track() error = %v", err)
	}
	if !radio.Locator.IsURL() || radio.Title != "Internet Radio" {
		t.Errorf("radio = %+v", radio)
	}

	if _, err := c.Track("unknown"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Track(unknown) error = %v, want ErrNotFound", err)
	}

	id, err := c.Effect("double-jump")
	if err != nil {
		t.Fatalf("Effect() error = %v", err)
	}
	if id != "sfx/jump.wav" {
		t.Errorf("Effect() = %s", id)
	}
	if _, err := c.Effect("!!"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Effect(!!) error = %v, want ErrNotFound", err)
	}

	want := []assets.ResourceID{"sfx/jump.wav", "sfx/coin.wav"}
	got := c.EffectResources()
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("EffectResources() = %v, want %v", got, want)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr error
	}{
		{
			name:    "duplicate after folding",
			data:    "tracks:\n  - {name: Theme, resource: a.mp3}\n  - {name: THEME, resource: b.mp3}\n",
			wantErr: ErrDuplicate,
		},
		{
			name:    "track without locator",
			data:    "tracks:\n  - {name: Theme}\n",
			wantErr: track.ErrNoLocator,
		},
		{
			name:    "track with both locators",
			data:    "tracks:\n  - {name: Theme, resource: a.mp3, url: http://x/a.mp3}\n",
			wantErr: track.ErrAmbiguousLocator,
		},
		{
			name:    "effect without resource",
			data:    "effects:\n  - {name: Jump}\n",
			wantErr: ErrInvalidEntry,
		},
		{
			name:    "unnamed effect",
			data:    "effects:\n  - {name: '', resource: a.wav}\n",
			wantErr: ErrEmptyName,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.data)); !errors.Is(err, tt.wantErr) {
				t.Errorf("Parse() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if _, err := Parse([]byte("tracks: [")); err == nil {
		t.Error("Parse() should reject malformed yaml")
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(c.Tracks) != 2 || len(c.Effects) != 3 {
		t.Errorf("loaded %d tracks and %d effects", len(c.Tracks), len(c.Effects))
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Load(missing) error = %v, want os.ErrNotExist", err)
	}
}
