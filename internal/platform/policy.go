package platform

import (
	"context"
	"runtime"
	"time"

	"github.com/oshokin/agent-updater/internal/archive"
)

const (
	// LockRetryAttempts bounds the rename attempts while a folder is locked.
	LockRetryAttempts = 30
	// LockRetryInterval is the fixed wait between rename attempts.
	LockRetryInterval = time.Second
)

// Extractor unpacks an archive into a destination directory.
type Extractor interface {
	Extract(ctx context.Context, archivePath, dest string) error
}

// Mover relocates a directory.
type Mover interface {
	Move(ctx context.Context, from, to string) error
}

// Policy bundles the platform dependent capabilities used by the installer.
type Policy struct {
	// OS is the GOOS value the policy was built for.
	OS string
	// Extractor unpacks artifacts.
	Extractor Extractor
	// Mover finalizes the staging directory.
	Mover Mover
	// ExecutableBits is false on systems without an execute permission bit.
	ExecutableBits bool
	// CanPurge reports whether obsolete version directories may be deleted.
	CanPurge func() bool
}

// Current returns the policy of the running operating system.
func Current() *Policy {
	return ForOS(runtime.GOOS)
}

// ForOS returns the policy for the provided GOOS value.
func ForOS(goos string) *Policy {
	policy := &Policy{
		OS:             goos,
		Extractor:      archive.NewExtractor(),
		Mover:          NewRenameMover(),
		ExecutableBits: true,
		CanPurge:       Elevated,
	}

	switch goos {
	case "darwin":
		policy.Extractor = NewDittoExtractor()
	case "windows":
		policy.Mover = NewRetryingMover(LockRetryAttempts, LockRetryInterval)
		policy.ExecutableBits = false
		// The versions root is owned by the service account.
		policy.CanPurge = func() bool { return true }
	}

	return policy
}
