package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/agent-updater/internal/config"
	"github.com/oshokin/agent-updater/internal/service/updater"
	"github.com/oshokin/agent-updater/internal/version"
)

var (
	// options are shared by every command that opens the pipeline.
	options = new(updater.Options)

	// rootCmd represents the base command of the agent updater.
	rootCmd = &cobra.Command{
		Use:          "agent-updater",
		Short:        "Keep the agent up to date",
		Long:         "Resolve, download, verify and install new agent versions, and confirm them after a restart.",
		SilenceUsage: true,
	}
)

// Execute runs the agent-updater CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// signalContext is cancelled on SIGTERM or SIGINT.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
}

// withService opens the pipeline for the duration of fn.
func withService(fn func(ctx context.Context, service *updater.Service) error) error {
	ctx, stop := signalContext()
	defer stop()

	service, err := updater.Open(ctx, options)
	if err != nil {
		return err
	}

	defer func() {
		_ = service.Close()
	}()

	return fn(ctx, service)
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	flags := rootCmd.PersistentFlags()

	flags.StringVarP(&options.ConfigPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	flags.StringVar(&options.CurrentVersion, "current-version", "", "override the running agent version")
	flags.StringVar(&options.VersionsDir, "versions-dir", "", "override the versions root directory")

	_ = flags.MarkHidden("current-version")
}
