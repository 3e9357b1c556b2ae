// File: cmd/reset.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/wingminer/internal/observability"
	"github.com/xkilldash9x/wingminer/internal/settings"
	"github.com/xkilldash9x/wingminer/internal/wingmining"
)

// newResetCmd creates the `reset` command.
func newResetCmd() *cobra.Command {
	resetCmd := &cobra.Command{
		Use:   "reset",
		Short: "Deletes the saved run and sets the completed mission counter to zero",
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
			if err := store.Clear(); err != nil {
				return fmt.Errorf("failed to delete saved state: %w", err)
			}

			keep, _ := cmd.Flags().GetBool("keep-counter")
			if !keep {
				s, err := settings.Open(cfg.WingMining().SettingsFile)
				if err != nil {
					return err
				}
				s.SetCompletedMissions(0)
				if err := s.Persist(); err != nil {
					return fmt.Errorf("failed to persist counter reset: %w", err)
				}
			}

			observability.GetLogger().Info("Wing mining reset",
				zap.String("state_file", store.Path()),
				zap.Bool("counter_kept", keep))
			fmt.Fprintln(cmd.OutOrStdout(), "Wing mining reset.")
			return nil
		},
	}
	resetCmd.Flags().Bool("keep-counter", false, "Only delete the saved run, keep the completed mission counter.")
	return resetCmd
}
