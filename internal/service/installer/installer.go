// Package installer turns a verified artifact into an installed version directory.
//
// Installation runs as a small state machine:
//
//	Start -> TargetCleared -> Unpacked -> Moved -> Finalized
//
// Any failure once the target is cleared rolls back to RolledBack and ends in
// Failed, leaving no partially installed version directory behind.
package installer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/oshokin/agent-updater/internal/domain/release"
	"github.com/oshokin/agent-updater/internal/logger"
	"github.com/oshokin/agent-updater/internal/platform"
)

// State is a step of the installation.
type State string

// Installation states.
const (
	StateStart         State = "start"
	StateTargetCleared State = "target_cleared"
	StateUnpacked      State = "unpacked"
	StateMoved         State = "moved"
	StateFinalized     State = "finalized"
	StateRolledBack    State = "rolled_back"
	StateFailed        State = "failed"
)

// executableMode is applied to launcher binaries.
const executableMode fs.FileMode = 0o755

// ErrAlreadyInstalled is returned when the version directory is already present.
var ErrAlreadyInstalled = errors.New("version already installed")

// Result describes the outcome of Install.
type Result struct {
	// Version is the version carried by the artifact.
	Version string
	// Path is the final version directory.
	Path string
	// State is the last state reached.
	State State
}

// Installer unpacks artifacts of one product.
type Installer struct {
	product string
	policy  *platform.Policy
}

// New creates an installer using the platform policy.
func New(product string, policy *platform.Policy) *Installer {
	if policy == nil {
		policy = platform.Current()
	}

	return &Installer{
		product: product,
		policy:  policy,
	}
}

// FinalPath returns the directory a version is installed into.
func FinalPath(dest, version string) string {
	return filepath.Join(dest, version)
}

// Installed reports whether version is present under dest.
func Installed(dest, version string) bool {
	_, err := os.Stat(FinalPath(dest, version))

	return err == nil
}

// Install unpacks archivePath into dest and returns the installed version.
// The returned Result is never nil.
func (i *Installer) Install(ctx context.Context, archivePath, dest string) (*Result, error) {
	result := &Result{State: StateStart}

	version, err := release.ParseFilename(i.product, archivePath)
	if err != nil {
		result.State = StateFailed

		return result, err
	}

	result.Version = version
	result.Path = FinalPath(dest, version)
	staging := filepath.Join(dest, release.StagingName(i.product, version))

	ctx = logger.WithFields(ctx, "version", version, "destination", dest)

	if Installed(dest, version) {
		result.State = StateFailed

		return result, fmt.Errorf("%w: %s", ErrAlreadyInstalled, result.Path)
	}

	if err = i.run(ctx, result, archivePath, dest, staging); err != nil {
		i.rollback(ctx, result, staging)

		return result, err
	}

	return result, nil
}

func (i *Installer) run(ctx context.Context, result *Result, archivePath, dest, staging string) error {
	if err := os.RemoveAll(staging); err != nil {
		return fmt.Errorf("clear staging directory: %w", err)
	}

	i.advance(ctx, result, StateTargetCleared)

	if err := i.policy.Extractor.Extract(ctx, archivePath, dest); err != nil {
		return fmt.Errorf("unpack artifact: %w", err)
	}

	i.advance(ctx, result, StateUnpacked)

	if err := i.policy.Mover.Move(ctx, staging, result.Path); err != nil {
		return fmt.Errorf("move version directory: %w", err)
	}

	i.advance(ctx, result, StateMoved)

	if i.policy.ExecutableBits {
		if err := i.markExecutables(result.Path); err != nil {
			return err
		}
	}

	i.advance(ctx, result, StateFinalized)

	return nil
}

func (i *Installer) markExecutables(root string) error {
	for _, name := range []string{"node", i.product} {
		path := filepath.Join(root, "bin", name)

		err := os.Chmod(path, executableMode)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("mark %s executable: %w", path, err)
		}
	}

	return nil
}

func (i *Installer) rollback(ctx context.Context, result *Result, staging string) {
	failedAt := result.State

	for _, dir := range []string{result.Path, staging} {
		if err := os.RemoveAll(dir); err != nil {
			logger.ErrorKV(ctx, "Failed to remove directory during rollback", "path", dir, "error", err)
		}
	}

	i.advance(ctx, result, StateRolledBack)
	logger.WarnKV(ctx, "Installation rolled back", "failed_after", string(failedAt))
	i.advance(ctx, result, StateFailed)
}

func (i *Installer) advance(ctx context.Context, result *Result, next State) {
	logger.DebugKV(ctx, "Installer state changed", "from", string(result.State), "to", string(next))

	result.State = next
}
