package updater

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/oshokin/agent-updater/internal/domain/release"
	"github.com/oshokin/agent-updater/internal/logger"
	"github.com/oshokin/agent-updater/internal/platform"
	"github.com/oshokin/agent-updater/internal/service/installer"
)

var (
	// ErrAlreadyLatest is returned when the target is not newer than the running version.
	ErrAlreadyLatest = errors.New("already running latest version")
	// ErrMaxAttempts is returned when the tracker denies another attempt.
	ErrMaxAttempts = errors.New("maximum number of upgrade attempts reached")
	// ErrInvalidChecksum is returned when the artifact does not match the manifest.
	ErrInvalidChecksum = errors.New("invalid checksum")
	// ErrAlreadyInstalled mirrors the installer error for callers of this package.
	ErrAlreadyInstalled = installer.ErrAlreadyInstalled
)

// Resolver finds the newest published version.
type Resolver interface {
	LatestVersion(ctx context.Context, channel string) (string, error)
}

// Fetcher downloads artifacts.
type Fetcher interface {
	URLFor(d release.Descriptor) (string, error)
	Download(ctx context.Context, rawURL string) (string, error)
}

// Verifier checks artifact integrity.
type Verifier interface {
	Verify(ctx context.Context, version, filename, path string) (bool, error)
}

// Installer unpacks artifacts into version directories.
type Installer interface {
	Install(ctx context.Context, archivePath, dest string) (*installer.Result, error)
}

// Tracker bounds attempts per target version.
type Tracker interface {
	RecordAttempt(ctx context.Context, oldVersion, newVersion string) (bool, error)
	Lookup(ctx context.Context, version string) (release.AttemptRecord, bool, error)
	Clear(ctx context.Context) error
}

// Reporter delivers outcome events.
type Reporter interface {
	CheckCredentials() error
	Send(ctx context.Context, status, oldVersion, newVersion string) error
}

// Settings are the static inputs of a Service.
type Settings struct {
	// Product is the artifact name prefix.
	Product string
	// Channel is the release stream used when no target is given.
	Channel string
	// VersionsDir is the root holding one directory per version.
	VersionsDir string
	// CurrentVersion is the version of the running agent.
	CurrentVersion string
	// Policy decides whether obsolete versions may be purged.
	Policy *platform.Policy
}

// Dependencies are the pipeline stages.
type Dependencies struct {
	Resolver  Resolver
	Fetcher   Fetcher
	Verifier  Verifier
	Installer Installer
	Tracker   Tracker
	Reporter  Reporter
}

// Service runs upgrades and confirmations.
type Service struct {
	Dependencies

	settings Settings
	closers  []func() error
}

// NewService assembles a Service from its stages.
func NewService(settings Settings, deps Dependencies) *Service {
	if settings.Policy == nil {
		settings.Policy = platform.Current()
	}

	return &Service{
		Dependencies: deps,
		settings:     settings,
	}
}

// CurrentVersion returns the running version the service compares against.
func (s *Service) CurrentVersion() string {
	return s.settings.CurrentVersion
}

// Close releases resources held by the stages.
func (s *Service) Close() error {
	var errs []error

	for _, closeFn := range s.closers {
		errs = append(errs, closeFn())
	}

	return errors.Join(errs...)
}

// Check returns the latest version on the configured channel and whether it is newer.
func (s *Service) Check(ctx context.Context) (string, bool, error) {
	latest, err := s.Resolver.LatestVersion(ctx, s.settings.Channel)
	if err != nil {
		return "", false, err
	}

	return latest, release.IsNewer(latest, s.settings.CurrentVersion), nil
}

// Upgrade installs target, or the latest version on the channel when target is empty.
// It returns the installed version.
func (s *Service) Upgrade(ctx context.Context, target string) (string, error) {
	ctx = logger.WithName(ctx, "upgrade")
	current := s.settings.CurrentVersion

	if target == "" {
		latest, err := s.Resolver.LatestVersion(ctx, s.settings.Channel)
		if err != nil {
			return "", fmt.Errorf("resolve latest version: %w", err)
		}

		target = latest
	}

	ctx = logger.WithFields(ctx, "current", current, "target", target)

	if !release.IsNewer(target, current) {
		return "", fmt.Errorf("%w: %s", ErrAlreadyLatest, current)
	}

	if err := s.Reporter.CheckCredentials(); err != nil {
		return "", fmt.Errorf("update cancelled for now: %w", err)
	}

	permit, err := s.Tracker.RecordAttempt(ctx, current, target)
	if err != nil {
		return "", err
	}

	if !permit {
		return "", fmt.Errorf("%w: %s", ErrMaxAttempts, target)
	}

	if installer.Installed(s.settings.VersionsDir, target) {
		return "", fmt.Errorf("%w: %s", ErrAlreadyInstalled, installer.FinalPath(s.settings.VersionsDir, target))
	}

	logger.Info(ctx, "Fetching version")

	archivePath, err := s.downloadVerify(ctx, target)
	if err != nil {
		return "", err
	}

	return s.install(ctx, archivePath, s.settings.VersionsDir)
}

// Install unpacks a local artifact into dest.
func (s *Service) Install(ctx context.Context, archivePath, dest string) (string, error) {
	return s.install(logger.WithName(ctx, "install"), archivePath, dest)
}

func (s *Service) install(ctx context.Context, archivePath, dest string) (string, error) {
	result, err := s.Installer.Install(ctx, archivePath, dest)
	if err != nil {
		return "", fmt.Errorf("install %s: %w", archivePath, err)
	}

	logger.InfoKV(ctx, "Version installed", "version", result.Version, "path", result.Path)

	return result.Version, nil
}

// downloadVerify fetches the artifact of version and removes it unless it verifies.
func (s *Service) downloadVerify(ctx context.Context, version string) (string, error) {
	descriptor := release.NewDescriptor(s.settings.Product, version)

	artifactURL, err := s.Fetcher.URLFor(descriptor)
	if err != nil {
		return "", err
	}

	archivePath, err := s.Fetcher.Download(ctx, artifactURL)
	if err != nil {
		return "", err
	}

	valid, err := s.Verifier.Verify(ctx, version, descriptor.Filename(), archivePath)
	if err == nil && !valid {
		err = fmt.Errorf("%w: %s", ErrInvalidChecksum, descriptor.Filename())
	}

	if err != nil {
		if removeErr := os.Remove(archivePath); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
			logger.WarnKV(ctx, "Failed to remove rejected artifact", "path", archivePath, "error", removeErr)
		}

		return "", err
	}

	logger.InfoKV(ctx, "Artifact checksum is valid", "path", archivePath)

	return archivePath, nil
}
