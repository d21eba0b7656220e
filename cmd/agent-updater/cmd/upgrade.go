package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oshokin/agent-updater/internal/service/updater"
)

// upgradeCmd installs a newer version, the latest on the channel by default.
var upgradeCmd = &cobra.Command{
	Use:   "upgrade [version]",
	Short: "Download, verify and install a newer version",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var target string
		if len(args) > 0 {
			target = args[0]
		}

		return withService(func(ctx context.Context, service *updater.Service) error {
			installed, err := service.Upgrade(ctx, target)
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Version %s installed\n", installed)

			return nil
		})
	},
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	upgradeCmd.Flags().StringVar(&options.Channel, "channel", "", "release channel to follow (stable or edge)")
	upgradeCmd.Flags().BoolVar(&options.ShowProgress, "progress", false, "show a download progress bar")

	rootCmd.AddCommand(upgradeCmd)
}
