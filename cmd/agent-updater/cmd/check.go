package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oshokin/agent-updater/internal/service/updater"
)

// checkCmd prints the newer version, if any.
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check the release channel for a newer version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withService(func(ctx context.Context, service *updater.Service) error {
			latest, newer, err := service.Check(ctx)
			if err != nil {
				return err
			}

			if !newer {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Already running latest version (%s)\n", service.CurrentVersion())

				return nil
			}

			_, _ = fmt.Fprintln(cmd.OutOrStdout(), latest)

			return nil
		})
	},
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	checkCmd.Flags().StringVar(&options.Channel, "channel", "", "release channel to query (stable or edge)")

	rootCmd.AddCommand(checkCmd)
}
