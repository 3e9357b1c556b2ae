// File: cmd/run.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/wingminer/internal/observability"
	"github.com/xkilldash9x/wingminer/internal/status"
	"github.com/xkilldash9x/wingminer/internal/wingmining"
)

// newRunCmd creates the `run` command.
func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Runs wing mining until the mission target is reached",
		Long: `Runs the wing mining state machine. A saved run is resumed where it stopped.
Interrupting keeps the saved state; use "wingminer reset" to start over.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := getConfig(cmd)
			if err != nil {
				return err
			}
			if tick, _ := cmd.Flags().GetDuration("tick"); tick > 0 {
				cfg.SetWingMiningTickInterval(tick)
			}
			if engine, _ := cmd.Flags().GetString("ocr-engine"); engine != "" {
				cfg.SetOCREngine(engine)
			}

			c, err := initializeComponents(cfg, logger, true)
			if c != nil {
				defer c.Shutdown()
			}
			if err != nil {
				return fmt.Errorf("failed to initialize components: %w", err)
			}

			out := cmd.OutOrStdout()
			if c.Settings.MissionScannerMode() {
				logger.Info("Mission scanner mode is on, scanning without logistics.")
				return runWithServices(ctx, c, out, func(ctx context.Context) error {
					return scanAndPrint(ctx, c, cfg.WingMining().CargoCapacity, out)
				})
			}

			return runWithServices(ctx, c, out, func(ctx context.Context) error {
				o := c.Orchestrator
				if err := o.Start(ctx); err != nil {
					if errors.Is(err, wingmining.ErrStationsNotConfigured) {
						return fmt.Errorf("%w: set WingMining_StationA and WingMining_StationB in %s", err, c.Settings.Path())
					}
					return err
				}
				if err := o.Loop(ctx); err != nil {
					return err
				}
				snap := o.Snapshot()
				fmt.Fprintf(out, "Wing mining stopped in %s with %d/%d missions completed.\n",
					snap.Current, c.Settings.CompletedMissions(), cfg.WingMining().TargetMissions)
				return nil
			})
		},
	}

	runCmd.Flags().Duration("tick", 0, "Interval between state machine steps. (Overrides config/env)")
	runCmd.Flags().String("ocr-engine", "", "OCR backend, tesseract or remote. (Overrides config/env)")
	return runCmd
}

// runWithServices runs work next to the journal tailer, the carrier feed
// watcher and the status notifier. Those stop once work returns.
func runWithServices(ctx context.Context, c *components, out io.Writer, work func(context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := c.Tailer.Run(gctx); err != nil {
			return fmt.Errorf("journal: %w", err)
		}
		return nil
	})
	if c.Feed != nil {
		g.Go(func() error {
			if err := c.Feed.Run(gctx); err != nil {
				return fmt.Errorf("carrier feed: %w", err)
			}
			return nil
		})
	}

	messages, unsubscribe := c.Notifier.Subscribe()
	g.Go(func() error {
		c.Notifier.Run(gctx)
		return nil
	})
	g.Go(func() error {
		defer unsubscribe()
		printStatus(gctx, messages, out)
		return nil
	})

	g.Go(func() error {
		defer cancel()
		return work(gctx)
	})

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		observability.GetLogger().Error("Run ended with an error", zap.Error(err))
	}
	return err
}

// printStatus echoes progress lines to out until ctx is done or the
// channel closes.
func printStatus(ctx context.Context, messages <-chan status.Message, out io.Writer) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			fmt.Fprintf(out, "[%s] %s\n", msg.Timestamp.Format("15:04:05"), msg.Text)
		}
	}
}
