package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	if !cfg.Music.Enabled || !cfg.Music.GaplessSupported {
		t.Error("music should be enabled with gapless support by default")
	}
	if cfg.Music.ProgressInterval != time.Second {
		t.Errorf("progress interval = %v, want 1s", cfg.Music.ProgressInterval)
	}
	if cfg.Effects.EngineCount != 2 || cfg.Effects.MaxStreams != 8 || cfg.Effects.MaxLoadEvents != 8 {
		t.Errorf("effects = %+v", cfg.Effects)
	}
	if cfg.Audio.SampleRate != 44100 || cfg.Audio.Buffer != 100*time.Millisecond {
		t.Errorf("audio = %+v", cfg.Audio)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{
			name:   "valid config",
			mutate: func(*Config) {},
		},
		{
			name:      "unknown log level",
			mutate:    func(c *Config) { c.Logging.Level = "verbose" },
			wantField: "logging.level",
		},
		{
			name:      "unknown log format",
			mutate:    func(c *Config) { c.Logging.Format = "xml" },
			wantField: "logging.format",
		},
		{
			name:      "zero engines",
			mutate:    func(c *Config) { c.Effects.EngineCount = 0 },
			wantField: "effects.engine_count",
		},
		{
			name:      "zero streams",
			mutate:    func(c *Config) { c.Effects.MaxStreams = 0 },
			wantField: "effects.max_streams",
		},
		{
			name:      "zero load events",
			mutate:    func(c *Config) { c.Effects.MaxLoadEvents = 0 },
			wantField: "effects.max_load_events",
		},
		{
			name:      "negative sample rate",
			mutate:    func(c *Config) { c.Audio.SampleRate = -1 },
			wantField: "audio.sample_rate",
		},
		{
			name:      "missing asset root",
			mutate:    func(c *Config) { c.Audio.AssetRoot = "" },
			wantField: "audio.asset_root",
		},
		{
			name:      "no progress interval",
			mutate:    func(c *Config) { c.Music.ProgressInterval = 0 },
			wantField: "music.progress_interval",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantField == "" {
				if err != nil {
					t.Errorf("Config.Validate() error = %v", err)
				}
				return
			}

			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("Config.Validate() error = %v, want *ConfigError", err)
			}
			if cfgErr.Field != tt.wantField {
				t.Errorf("field = %s, want %s", cfgErr.Field, tt.wantField)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	data := []byte(`
music:
  enabled: false
  progress_interval: 250ms
effects:
  legacy_platform: true
  engine_count: 3
audio:
  asset_root: /srv/sounds
`)
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Music.Enabled {
		t.Error("music.enabled should come from the file")
	}
	if cfg.Music.ProgressInterval != 250*time.Millisecond {
		t.Errorf("progress interval = %v", cfg.Music.ProgressInterval)
	}
	if !cfg.Effects.LegacyPlatform || cfg.Effects.EngineCount != 3 {
		t.Errorf("effects = %+v", cfg.Effects)
	}
	if cfg.Audio.AssetRoot != "/srv/sounds" {
		t.Errorf("asset root = %s", cfg.Audio.AssetRoot)
	}
	if cfg.Effects.MaxStreams != 8 {
		t.Errorf("unset keys should keep defaults, max_streams = %d", cfg.Effects.MaxStreams)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("AUDIOSESSION_EFFECTS_MAX_STREAMS", "4")
	t.Setenv("AUDIOSESSION_LOGGING_LEVEL", "debug")

	cfg, err := Load(viper.New())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Effects.MaxStreams != 4 {
		t.Errorf("max_streams = %d, want 4 from env", cfg.Effects.MaxStreams)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("logging.level = %s, want debug from env", cfg.Logging.Level)
	}
}
