package cmd

import (
	"fmt"
	"log/slog"

	"audiosession/config"
	"audiosession/logger"

	"github.com/spf13/cobra"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
	Long:  "Commands for managing and validating audiosession configuration.",
}

// configValidateCmd validates the current configuration
var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	Long:  "Validate the current configuration file and environment variables.",
	RunE: func(cmd *cobra.Command, args []string) error {
		// Setup basic logging for validation
		if err := logger.Setup("info", "text"); err != nil {
			return fmt.Errorf("failed to setup logging: %w", err)
		}

		// Load configuration
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		// Validate configuration
		if err := cfg.Validate(); err != nil {
			slog.Error("Configuration validation failed", slog.Any("error", err))
			return err
		}

		slog.Info("Configuration is valid")
		fmt.Println("✅ Configuration is valid")
		return nil
	},
}

// configShowCmd shows the current configuration
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  "Display the current configuration values from file and environment variables.",
	RunE: func(cmd *cobra.Command, args []string) error {
		// Setup basic logging
		if err := logger.Setup("info", "text"); err != nil {
			return fmt.Errorf("failed to setup logging: %w", err)
		}

		// Load configuration
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		fmt.Println("Current Configuration:")
		fmt.Printf("  Music:\n")
		fmt.Printf("    Enabled: %t\n", cfg.Music.Enabled)
		fmt.Printf("    Gapless: %t\n", cfg.Music.GaplessSupported)
		fmt.Printf("    Progress Interval: %s\n", cfg.Music.ProgressInterval)
		fmt.Printf("  Effects:\n")
		fmt.Printf("    Enabled: %t\n", cfg.Effects.Enabled)
		fmt.Printf("    Legacy Platform: %t\n", cfg.Effects.LegacyPlatform)
		fmt.Printf("    Engines: %d\n", cfg.Effects.EngineCount)
		fmt.Printf("    Max Streams: %d\n", cfg.Effects.MaxStreams)
		fmt.Printf("    Max Load Events: %d\n", cfg.Effects.MaxLoadEvents)
		fmt.Printf("    Priority: %d\n", cfg.Effects.Priority)
		fmt.Printf("  Audio:\n")
		fmt.Printf("    Sample Rate: %d\n", cfg.Audio.SampleRate)
		fmt.Printf("    Buffer: %s\n", cfg.Audio.Buffer)
		fmt.Printf("    Asset Root: %s\n", cfg.Audio.AssetRoot)
		fmt.Printf("    Cache Size: %d\n", cfg.Audio.CacheSize)
		fmt.Printf("  Catalog:\n")
		fmt.Printf("    File: %s\n", cfg.Catalog.File)
		fmt.Printf("  Logging:\n")
		fmt.Printf("    Level: %s\n", cfg.Logging.Level)
		fmt.Printf("    Format: %s\n", cfg.Logging.Format)

		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configShowCmd)
}
