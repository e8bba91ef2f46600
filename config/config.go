package config

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Keys read again on hot reload.
const (
	KeyMusicEnabled   = "music.enabled"
	KeyEffectsEnabled = "effects.enabled"
)

// Config holds all configuration for the application
type Config struct {
	// Music engine configuration
	Music MusicConfig `mapstructure:"music"`

	// Effect pool configuration
	Effects EffectsConfig `mapstructure:"effects"`

	// Audio output and asset configuration
	Audio AudioConfig `mapstructure:"audio"`

	// Named track and effect catalog
	Catalog CatalogConfig `mapstructure:"catalog"`

	// Logging configuration
	Logging LoggingConfig `mapstructure:"logging"`
}

// MusicConfig holds music engine configuration
type MusicConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// GaplessSupported can turn off gapless chaining even when the output
	// supports it.
	GaplessSupported bool          `mapstructure:"gapless_supported"`
	ProgressInterval time.Duration `mapstructure:"progress_interval"`
}

// EffectsConfig holds effect pool configuration
type EffectsConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	LegacyPlatform bool `mapstructure:"legacy_platform"`
	EngineCount    int  `mapstructure:"engine_count"`
	MaxStreams     int  `mapstructure:"max_streams"`
	MaxLoadEvents  int  `mapstructure:"max_load_events"`
	Priority       int  `mapstructure:"priority"`
}

// AudioConfig holds output device and asset configuration
type AudioConfig struct {
	SampleRate int           `mapstructure:"sample_rate"`
	Buffer     time.Duration `mapstructure:"buffer"`
	AssetRoot  string        `mapstructure:"asset_root"`
	CacheSize  int           `mapstructure:"cache_size"`
}

// CatalogConfig holds the catalog file location
type CatalogConfig struct {
	File string `mapstructure:"file"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or text
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("music.enabled", true)
	v.SetDefault("music.gapless_supported", true)
	v.SetDefault("music.progress_interval", "1s")
	v.SetDefault("effects.enabled", true)
	v.SetDefault("effects.legacy_platform", false)
	v.SetDefault("effects.engine_count", 2)
	v.SetDefault("effects.max_streams", 8)
	v.SetDefault("effects.max_load_events", 8)
	v.SetDefault("effects.priority", 1)
	v.SetDefault("audio.sample_rate", 44100)
	v.SetDefault("audio.buffer", "100ms")
	v.SetDefault("audio.asset_root", "assets")
	v.SetDefault("audio.cache_size", 64)
	v.SetDefault("catalog.file", "catalog.yaml")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig() (*Config, error) {
	return Load(viper.GetViper())
}

// Load reads configuration into v and decodes it.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	// Read config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.audiosession")
	v.AddConfigPath("/etc/audiosession")

	// Allow environment variables
	v.SetEnvPrefix("AUDIOSESSION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		slog.Debug("No config file found, using defaults and environment variables")
	} else {
		slog.Info("Using config file", slog.String("file", v.ConfigFileUsed()))
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// Default returns the configuration made of defaults only.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		panic("config: invalid defaults: " + err.Error())
	}
	return &config
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return &ConfigError{Field: "logging.level", Message: "must be one of debug, info, warn, error"}
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return &ConfigError{Field: "logging.format", Message: "must be text or json"}
	}
	if c.Music.ProgressInterval <= 0 {
		return &ConfigError{Field: "music.progress_interval", Message: "must be positive"}
	}
	if c.Effects.EngineCount < 1 {
		return &ConfigError{Field: "effects.engine_count", Message: "must be at least 1"}
	}
	if c.Effects.MaxStreams < 1 {
		return &ConfigError{Field: "effects.max_streams", Message: "must be at least 1"}
	}
	if c.Effects.MaxLoadEvents < 1 {
		return &ConfigError{Field: "effects.max_load_events", Message: "must be at least 1"}
	}
	if c.Effects.Priority < 0 {
		return &ConfigError{Field: "effects.priority", Message: "must not be negative"}
	}
	if c.Audio.SampleRate <= 0 {
		return &ConfigError{Field: "audio.sample_rate", Message: "must be positive"}
	}
	if c.Audio.Buffer <= 0 {
		return &ConfigError{Field: "audio.buffer", Message: "must be positive"}
	}
	if c.Audio.AssetRoot == "" {
		return &ConfigError{Field: "audio.asset_root", Message: "asset root is required"}
	}
	if c.Audio.CacheSize < 1 {
		return &ConfigError{Field: "audio.cache_size", Message: "must be at least 1"}
	}
	return nil
}

// ConfigError represents a configuration validation error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}
