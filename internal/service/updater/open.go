package updater

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/oshokin/agent-updater/internal/config"
	"github.com/oshokin/agent-updater/internal/logger"
	"github.com/oshokin/agent-updater/internal/platform"
	"github.com/oshokin/agent-updater/internal/repository/kv"
	"github.com/oshokin/agent-updater/internal/service/fetcher"
	"github.com/oshokin/agent-updater/internal/service/installer"
	"github.com/oshokin/agent-updater/internal/service/reporter"
	"github.com/oshokin/agent-updater/internal/service/resolver"
	"github.com/oshokin/agent-updater/internal/service/tracker"
	"github.com/oshokin/agent-updater/internal/service/verifier"
	"github.com/oshokin/agent-updater/internal/version"
)

// Options are inputs accepted by the updater entry points.
type Options struct {
	// ConfigPath is the optional path to settings YAML file.
	ConfigPath string
	// CurrentVersion overrides the running version, mostly for tooling.
	CurrentVersion string
	// Channel overrides the configured release channel.
	Channel string
	// VersionsDir overrides the configured versions root.
	VersionsDir string
	// ShowProgress forces the download progress bar on.
	ShowProgress bool
}

// Open loads settings and wires every stage of the pipeline.
// Callers must Close the returned Service.
func Open(ctx context.Context, opts *Options) (*Service, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	if opts.Channel != "" {
		cfg.Channel = opts.Channel
	}

	if opts.VersionsDir != "" {
		cfg.VersionsDir = opts.VersionsDir
	}

	cfg.ShowProgress = cfg.ShowProgress || opts.ShowProgress

	if err = logger.Configure(cfg.LogLevel); err != nil {
		return nil, err
	}

	current := opts.CurrentVersion
	if current == "" {
		current = version.Short()
	}

	return NewFromConfig(ctx, cfg, current)
}

// NewLocalInstaller wires only the installer stage for archives already on
// disk. No settings file or release host is needed.
func NewLocalInstaller(product string) *Service {
	if product == "" {
		product = config.DefaultProduct
	}

	policy := platform.Current()

	return NewService(
		Settings{
			Product: product,
			Policy:  policy,
		},
		Dependencies{
			Installer: installer.New(product, policy),
		},
	)
}

// NewFromConfig wires the pipeline from already loaded settings.
func NewFromConfig(ctx context.Context, cfg *config.Config, current string) (*Service, error) {
	metadataClient := &http.Client{Timeout: cfg.Timeout}
	downloadClient := &http.Client{Timeout: cfg.DownloadTimeout}

	verifierOptions := []verifier.Option{
		verifier.WithHTTPClient(metadataClient),
		verifier.WithAlgorithm(cfg.ChecksumAlgorithm),
	}

	if cfg.PublicKeyFile != "" {
		armored, err := os.ReadFile(filepath.Clean(cfg.PublicKeyFile))
		if err != nil {
			return nil, fmt.Errorf("read public key: %w", err)
		}

		verifierOptions = append(verifierOptions, verifier.WithPublicKey(armored))
	}

	checksums, err := verifier.New(cfg.ReleasesURL, verifierOptions...)
	if err != nil {
		return nil, err
	}

	fetcherOptions := []fetcher.Option{fetcher.WithHTTPClient(downloadClient)}
	if cfg.ShowProgress {
		fetcherOptions = append(fetcherOptions, fetcher.WithProgress(os.Stderr))
	}

	events, closeEvents, err := reporter.FromConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	policy := platform.Current()

	service := NewService(
		Settings{
			Product:        cfg.Product,
			Channel:        cfg.Channel,
			VersionsDir:    cfg.VersionsDir,
			CurrentVersion: current,
			Policy:         policy,
		},
		Dependencies{
			Resolver:  resolver.New(cfg.ReleasesURL, cfg.EdgeMetadataURL, resolver.WithHTTPClient(metadataClient)),
			Fetcher:   fetcher.New(cfg.DownloadDir, cfg.ReleasesURL, fetcherOptions...),
			Verifier:  checksums,
			Installer: installer.New(cfg.Product, policy),
			Tracker: tracker.New(
				kv.NewFileStore(cfg.StateFile),
				events,
				tracker.WithMaxAttempts(cfg.MaxAttempts),
			),
			Reporter: events,
		},
	)

	service.closers = append(service.closers, closeEvents)

	logger.DebugKV(ctx, "Updater configured",
		"product", cfg.Product,
		"channel", cfg.Channel,
		"versions_dir", cfg.VersionsDir,
		"current", current,
	)

	return service, nil
}
