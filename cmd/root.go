package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"audiosession/assets"
	"audiosession/catalog"
	"audiosession/config"
	"audiosession/logger"
	"audiosession/playback"
	"audiosession/session"
	"audiosession/track"

	"github.com/gopxl/beep/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "audiosession",
	Short: "Play music and sound effects through one audio session",
	Long: `Audiosession drives a music engine and a pool of sound effect players
through a single session.

Music tracks are decoded from local assets or streamed from URLs, can loop
natively or through a gapless relay of two stream handles, and keep their
position across pause and resume. Sound effects are preloaded and fired
round-robin across one or more effect pools.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().String("assets", "", "asset root directory")
	rootCmd.PersistentFlags().String("catalog", "", "catalog file")
	rootCmd.PersistentFlags().Bool("legacy-effects", false, "enable the legacy effect pool workaround")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")

	// Bind flags to viper
	viper.BindPFlag("audio.asset_root", rootCmd.PersistentFlags().Lookup("assets"))
	viper.BindPFlag("catalog.file", rootCmd.PersistentFlags().Lookup("catalog"))
	viper.BindPFlag("effects.legacy_platform", rootCmd.PersistentFlags().Lookup("legacy-effects"))
	viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig reads in config file and ENV variables
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if verbose {
		viper.Set("logging.level", "debug")
	}
}

// loadConfig loads, validates and applies the logging configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	if err := logger.Setup(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		return nil, fmt.Errorf("failed to setup logging: %w", err)
	}
	return cfg, nil
}

// loadCatalog returns nil when the configured catalog file does not exist.
func loadCatalog(cfg *config.Config) (*catalog.Catalog, error) {
	if cfg.Catalog.File == "" {
		return nil, nil
	}
	c, err := catalog.Load(cfg.Catalog.File)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Debug("No catalog file found", slog.String("file", cfg.Catalog.File))
		return nil, nil
	}
	return c, err
}

type app struct {
	output  *playback.Output
	catalog *catalog.Catalog
	session *session.Session
}

// openApp opens the audio output and builds a session on top of it.
func openApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	library, err := assets.NewLibrary(os.DirFS(cfg.Audio.AssetRoot), cfg.Audio.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create asset library: %w", err)
	}

	cat, err := loadCatalog(cfg)
	if err != nil {
		return nil, err
	}

	out, err := playback.Open(playback.Options{
		SampleRate: beep.SampleRate(cfg.Audio.SampleRate),
		Buffer:     cfg.Audio.Buffer,
		Library:    library,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open audio output: %w", err)
	}

	caps := out.Capabilities()
	caps.LegacyEffectPool = cfg.Effects.LegacyPlatform

	s := session.New(cfg, session.Deps{
		Backend:      out,
		Capabilities: caps,
		Library:      library,
		Catalog:      cat,
	})
	s.WatchConfig(viper.GetViper())

	return &app{output: out, catalog: cat, session: s}, nil
}

func (a *app) Close() {
	a.session.Shutdown()
	if err := a.output.Close(); err != nil {
		slog.Warn("Failed to close audio output", slog.Any("error", err))
	}
}

// resolveTrack looks arg up in the catalog, then treats it as a URL or an
// asset path.
func (a *app) resolveTrack(arg string) (track.Track, error) {
	if a.catalog != nil {
		if t, err := a.catalog.Track(arg); err == nil {
			return t, nil
		} else if !errors.Is(err, catalog.ErrNotFound) {
			return track.Track{}, err
		}
	}

	cfg := track.Config{Title: arg}
	if strings.Contains(arg, "://") {
		cfg.URL = arg
	} else {
		cfg.Resource = assets.ResourceID(arg)
	}
	return track.New(cfg)
}

// resolveEffect looks arg up in the catalog, then treats it as an asset path.
func (a *app) resolveEffect(arg string) assets.ResourceID {
	if a.catalog != nil {
		if id, err := a.catalog.Effect(arg); err == nil {
			return id
		}
	}
	return assets.ResourceID(arg)
}
