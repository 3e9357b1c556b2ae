// File: cmd/status.go
package cmd

import (
	"fmt"
	"io"
	"strings"

	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/wingminer/internal/config"
	"github.com/xkilldash9x/wingminer/internal/settings"
	"github.com/xkilldash9x/wingminer/internal/wingmining"
)

// newStatusCmd creates the `status` command.
func newStatusCmd() *cobra.Command {
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Shows the saved wing mining state and the completed mission counter",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfig(cmd)
			if err != nil {
				return err
			}
			store, err := wingmining.NewFileStore(cfg.WingMining().StateFile)
			if err != nil {
				return err
			}
			st, err := store.Load()
			if err != nil {
				return err
			}
			s, err := settings.Open(cfg.WingMining().SettingsFile)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				data, err := json.MarshalIndent(statusReport{
					State:             st,
					CompletedMissions: s.CompletedMissions(),
					TargetMissions:    cfg.WingMining().TargetMissions,
				}, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to encode status: %w", err)
				}
				fmt.Fprintln(out, string(data))
				return nil
			}
			printStatusReport(out, cfg, s, st)
			return nil
		},
	}
	statusCmd.Flags().Bool("json", false, "Print the status as JSON.")
	return statusCmd
}

type statusReport struct {
	State             *wingmining.State `json:"state"`
	CompletedMissions int               `json:"completed_missions"`
	TargetMissions    int               `json:"target_missions"`
}

func printStatusReport(out io.Writer, cfg *config.Config, s *settings.Store, st *wingmining.State) {
	fmt.Fprintf(out, "Completed: %d/%d missions\n", s.CompletedMissions(), cfg.WingMining().TargetMissions)
	fmt.Fprintf(out, "Station A: %s\n", valueOr(s.Station(0), "not configured"))
	fmt.Fprintf(out, "Station B: %s\n", valueOr(s.Station(1), "not configured"))
	if st == nil {
		fmt.Fprintln(out, "No saved run.")
		return
	}

	fmt.Fprintf(out, "State:     %s", st.Current)
	if st.Resume != "" {
		fmt.Fprintf(out, " (resumes at %s)", st.Resume)
	}
	fmt.Fprintln(out)
	if st.RunID != "" {
		fmt.Fprintf(out, "Run:       %s\n", st.RunID)
	}
	fmt.Fprintf(out, "At:        station %s\n", []string{"A", "B"}[st.StationIndex])
	if m := st.CurrentMission; m != nil {
		fmt.Fprintf(out, "Mission:   %s, %d of %d t left, %d t held\n", m.Commodity, m.Tonnage, m.OrderedTonnage(), st.CargoHeld)
	}
	if c := st.Carrier; c != nil {
		fmt.Fprintf(out, "Carrier:   %s at %s\n", c.Offer.CarrierName, c.Location)
	}
	if names := st.Blacklist.Names(); len(names) > 0 {
		fmt.Fprintf(out, "Excluded:  %s\n", strings.Join(names, ", "))
	}
	queued := st.Queue.Items()
	fmt.Fprintf(out, "Queued:    %d\n", len(queued))
	for _, r := range queued {
		fmt.Fprintf(out, "  - %s %d t, %d CR\n", r.Commodity, r.Tonnage, r.Reward)
	}
	if !st.UpdatedAt.IsZero() {
		fmt.Fprintf(out, "Saved:     %s\n", st.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
	}
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
