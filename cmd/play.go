package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"audiosession/music"

	"github.com/spf13/cobra"
)

// playCmd plays one music track until it ends or the process is interrupted
var playCmd = &cobra.Command{
	Use:   "play <name|path|url>",
	Short: "Play a music track",
	Long: `Play a music track by catalog name, asset path or URL.

With --loop the track repeats until interrupted. Adding --gapless relays
playback between two stream handles so that repetitions join without a gap.`,
	Args: cobra.ExactArgs(1),
	RunE: runPlay,
}

func init() {
	rootCmd.AddCommand(playCmd)

	playCmd.Flags().Bool("loop", false, "repeat the track")
	playCmd.Flags().Bool("gapless", false, "join repetitions without a gap (requires --loop)")
	playCmd.Flags().Duration("at", 0, "start position")
	playCmd.Flags().Float64("volume", 1, "music volume between 0 and 1")
}

func runPlay(cmd *cobra.Command, args []string) error {
	looped, _ := cmd.Flags().GetBool("loop")
	gapless, _ := cmd.Flags().GetBool("gapless")
	start, _ := cmd.Flags().GetDuration("at")
	volume, _ := cmd.Flags().GetFloat64("volume")

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	t, err := a.resolveTrack(args[0])
	if err != nil {
		return err
	}
	a.output.SetVolume(volume)

	done := make(chan error, 1)
	finish := func(err error) {
		select {
		case done <- err:
		default:
		}
	}
	a.session.SetListener(music.ListenerFunc(func(ev music.Event) {
		switch ev.Kind {
		case music.EventPrepared:
			fmt.Printf("▶ %s\n", ev.Track.DisplayName())
		case music.EventBuffering:
			fmt.Printf("  buffering %d%%\n", ev.Percent)
		case music.EventProgress:
			fmt.Printf("\r  %s", ev.Position.Truncate(time.Second))
		case music.EventCompleted:
			if !looped {
				finish(nil)
			}
		case music.EventFailed:
			finish(ev.Err)
		}
	}))

	err = a.session.PlayMusic(music.Request{Track: t, Start: start, Looped: looped, Gapless: gapless})
	if err != nil {
		return fmt.Errorf("failed to play %s: %w", t.DisplayName(), err)
	}

	// Setup graceful shutdown
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signalChan)

	select {
	case sig := <-signalChan:
		fmt.Printf("\nReceived %s, stopping...\n", sig)
		if err := a.session.StopMusic(); err != nil && !errors.Is(err, music.ErrNoStream) {
			return fmt.Errorf("failed to stop music: %w", err)
		}
	case err := <-done:
		fmt.Println()
		if err != nil {
			return fmt.Errorf("playback failed: %w", err)
		}
	}
	return nil
}
