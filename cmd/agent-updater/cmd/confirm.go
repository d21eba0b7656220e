package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/oshokin/agent-updater/internal/service/updater"
)

// confirmCmd runs on agent start to report a finished upgrade.
var confirmCmd = &cobra.Command{
	Use:   "confirm",
	Short: "Report a completed upgrade after restarting on the new version",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		return withService(func(ctx context.Context, service *updater.Service) error {
			return service.ConfirmUpdate(ctx)
		})
	},
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.AddCommand(confirmCmd)
}
