package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oshokin/agent-updater/internal/config"
	"github.com/oshokin/agent-updater/internal/service/updater"
)

var (
	// installProduct is the artifact prefix of the archive to install.
	installProduct string

	// installCmd unpacks a local artifact without contacting the release host.
	installCmd = &cobra.Command{
		Use:   "install <archive> <destination>",
		Short: "Install a release archive into a versions directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			service := updater.NewLocalInstaller(installProduct)

			defer func() {
				_ = service.Close()
			}()

			installed, err := service.Install(ctx, args[0], args[1])
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Version %s installed in %s\n", installed, args[1])

			return nil
		},
	}
)

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	installCmd.Flags().StringVar(&installProduct, "product", config.DefaultProduct, "artifact name prefix")

	rootCmd.AddCommand(installCmd)
}
