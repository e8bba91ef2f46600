package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"audiosession/assets"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

// sfxCmd fires sound effects in sequence
var sfxCmd = &cobra.Command{
	Use:   "sfx <name|path>...",
	Short: "Play sound effects",
	Long: `Preload and fire sound effects by catalog name or asset path.

Effects are spread round-robin across the effect pools. With --legacy-effects
the pools are rebuilt every effects.max_load_events plays.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSfx,
}

func init() {
	rootCmd.AddCommand(sfxCmd)

	sfxCmd.Flags().Bool("loop", false, "loop every effect until interrupted")
	sfxCmd.Flags().Duration("interval", 250*time.Millisecond, "delay between effects")
	sfxCmd.Flags().Int("repeat", 1, "number of passes over the effect list")
	sfxCmd.Flags().Duration("tail", 2*time.Second, "time to let the last effect ring out")
}

func runSfx(cmd *cobra.Command, args []string) error {
	looped, _ := cmd.Flags().GetBool("loop")
	interval, _ := cmd.Flags().GetDuration("interval")
	repeat, _ := cmd.Flags().GetInt("repeat")
	tail, _ := cmd.Flags().GetDuration("tail")

	// Setup graceful shutdown
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signalChan)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-signalChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ids := lo.Map(args, func(arg string, _ int) assets.ResourceID { return a.resolveEffect(arg) })
	if err := a.session.PreloadEffects(ctx, lo.Uniq(ids)...); err != nil {
		return fmt.Errorf("failed to preload effects: %w", err)
	}

	for pass := 0; pass < repeat; pass++ {
		for _, id := range ids {
			if err := a.session.PlayEffect(id, looped); err != nil {
				return fmt.Errorf("failed to play %s: %w", id, err)
			}
			fmt.Printf("♪ %s\n", id)

			select {
			case <-time.After(interval):
			case <-ctx.Done():
				return nil
			}
		}
	}

	if looped {
		<-ctx.Done()
		return nil
	}
	select {
	case <-time.After(tail):
	case <-ctx.Done():
	}
	fmt.Printf("%d effects played, %d load events\n", repeat*len(ids), a.session.EffectLoadEvents())
	return nil
}
