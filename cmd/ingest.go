// File: cmd/ingest.go
package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/wingminer/internal/carrier"
	"github.com/xkilldash9x/wingminer/internal/config"
	"github.com/xkilldash9x/wingminer/internal/desktop"
	"github.com/xkilldash9x/wingminer/internal/ocr"
	"github.com/xkilldash9x/wingminer/internal/observability"
	"github.com/xkilldash9x/wingminer/internal/screen"
)

// newIngestCmd creates the `ingest` command, which keeps the carrier feed
// snapshot fresh from the chat window.
func newIngestCmd() *cobra.Command {
	ingestCmd := &cobra.Command{
		Use:   "ingest",
		Short: "Reads carrier stock from the chat window into the feed snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := getConfig(cmd)
			if err != nil {
				return err
			}
			feedCfg := cfg.Feed()
			if interval, _ := cmd.Flags().GetDuration("interval"); interval > 0 {
				feedCfg.IngestInterval = interval
			}

			engine, err := ocr.New(cfg.OCR(), logger)
			if err != nil {
				return fmt.Errorf("failed to start OCR engine: %w", err)
			}
			defer engine.Close()

			layout, err := screen.NewLayout(cfg.Screen(), cfg.Regions(), cfg.Sizes())
			if err != nil {
				return fmt.Errorf("invalid screen layout: %w", err)
			}
			region, err := layout.Region("carrier_feed")
			if err != nil {
				return err
			}
			capturer := desktop.NewWindowCapturer(config.ScreenConfig{ProcessName: feedCfg.WindowProcess}, logger)

			vocabulary := make([]string, 0, len(cfg.Mission().Commodities))
			for _, c := range cfg.Mission().Commodities {
				vocabulary = append(vocabulary, c.Name)
			}
			in := carrier.NewIngester(capturer, engine, region, feedCfg, vocabulary, logger)

			if once, _ := cmd.Flags().GetBool("once"); once {
				snap, err := in.IngestOnce(ctx)
				if err != nil {
					return err
				}
				printSnapshot(cmd, snap)
				return nil
			}
			logger.Info("Ingesting carrier feed",
				zap.String("snapshot", feedCfg.SnapshotPath),
				zap.Duration("interval", feedCfg.IngestInterval))
			return in.Run(ctx)
		},
	}
	ingestCmd.Flags().Bool("once", false, "Ingest a single time and print the result.")
	ingestCmd.Flags().Duration("interval", 0, "Time between ingestions. (Overrides config/env)")
	return ingestCmd
}

func printSnapshot(cmd *cobra.Command, snap carrier.Snapshot) {
	stations := make([]string, 0, len(snap.Stations))
	for s := range snap.Stations {
		stations = append(stations, s)
	}
	sort.Strings(stations)
	for _, s := range stations {
		cmd.Printf("%s\n", s)
		for _, o := range snap.Stations[s] {
			cmd.Printf("  %-24s %-12s %6d t\n", o.CarrierName, o.Commodity, o.Quantity)
		}
	}
}
