// File: cmd/scan.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/wingminer/internal/mission"
	"github.com/xkilldash9x/wingminer/internal/observability"
)

// newScanCmd creates the `scan` command: mission scanner mode on demand.
func newScanCmd() *cobra.Command {
	scanCmd := &cobra.Command{
		Use:   "scan",
		Short: "Scans the mission board once and accepts matching wing mining missions",
		Long: `Scans the TRANSPORT and ALL tabs of the mission board of the station the ship
is docked at, accepts every mission that passes the filters and lists them.
No carrier logistics are run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := getConfig(cmd)
			if err != nil {
				return err
			}
			if engine, _ := cmd.Flags().GetString("ocr-engine"); engine != "" {
				cfg.SetOCREngine(engine)
			}

			c, err := initializeComponents(cfg, logger, false)
			if c != nil {
				defer c.Shutdown()
			}
			if err != nil {
				return fmt.Errorf("failed to initialize components: %w", err)
			}

			out := cmd.OutOrStdout()
			return runWithServices(ctx, c, out, func(ctx context.Context) error {
				return scanAndPrint(ctx, c, cfg.WingMining().CargoCapacity, out)
			})
		},
	}
	scanCmd.Flags().String("ocr-engine", "", "OCR backend, tesseract or remote. (Overrides config/env)")
	return scanCmd
}

func scanAndPrint(ctx context.Context, c *components, capacity int, out io.Writer) error {
	records, err := c.Station.ScanMissions(ctx, capacity)
	if err != nil {
		return fmt.Errorf("mission scan failed: %w", err)
	}
	observability.GetLogger().Info("Mission scan finished", zap.Int("accepted", len(records)))
	printMissions(out, records)
	return nil
}

func printMissions(out io.Writer, records []mission.Record) {
	if len(records) == 0 {
		fmt.Fprintln(out, "No matching missions found.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "COMMODITY\tTONNAGE\tREWARD\tMISSION ID")
	for _, r := range records {
		id := "-"
		if r.MissionID != 0 {
			id = fmt.Sprint(r.MissionID)
		}
		fmt.Fprintf(w, "%s\t%d\t%d CR\t%s\n", r.Commodity, r.OrderedTonnage(), r.Reward, id)
	}
	w.Flush()
}
