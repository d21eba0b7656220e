package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oshokin/agent-updater/internal/config"
	"github.com/oshokin/agent-updater/internal/service/packager"
)

var (
	// packageOptions configure the release packager.
	packageOptions = new(packager.Options)

	// packageCmd writes the release metadata for a directory of artifacts.
	packageCmd = &cobra.Command{
		Use:   "package <dir>",
		Short: "Write the checksum manifest and latest pointer for a release",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			packageOptions.Dir = args[0]

			result, err := packager.Run(ctx, packageOptions)
			if err != nil {
				return err
			}

			for _, file := range result.Files {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), file)
			}

			return nil
		},
	}
)

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	flags := packageCmd.Flags()

	flags.StringVar(&packageOptions.Version, "version", "", "version to package when several are present")
	flags.StringVar(&packageOptions.Product, "product", config.DefaultProduct, "artifact name prefix")
	flags.StringVar(&packageOptions.Algorithm, "algorithm", config.DefaultChecksumAlgorithm, "checksum algorithm")
	flags.BoolVar(&packageOptions.WriteLatest, "latest", false, "also write the stable latest pointer")
	flags.StringVar(&packageOptions.ReleasesURL, "releases-url", "", "release host, used in upload instructions")

	rootCmd.AddCommand(packageCmd)
}
