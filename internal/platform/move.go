package platform

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/oshokin/agent-updater/internal/logger"
)

// RenameMover performs a single rename.
type RenameMover struct{}

// NewRenameMover returns a mover without retries.
func NewRenameMover() *RenameMover {
	return new(RenameMover)
}

// Move renames from to to.
func (RenameMover) Move(_ context.Context, from, to string) error {
	return os.Rename(from, to)
}

// RetryingMover retries a rename at a fixed interval while it fails with a
// permission error, which is how Windows reports folders still held by
// antivirus scanners. Any other error is returned at once.
type RetryingMover struct {
	// Attempts is the total number of renames tried.
	Attempts int
	// Interval is the fixed pause between attempts.
	Interval time.Duration
	// Rename performs the move; os.Rename unless replaced in tests.
	Rename func(from, to string) error
}

// NewRetryingMover returns a mover using os.Rename.
func NewRetryingMover(attempts int, interval time.Duration) *RetryingMover {
	return &RetryingMover{
		Attempts: attempts,
		Interval: interval,
		Rename:   os.Rename,
	}
}

// Move renames from to to, retrying on permission errors.
func (m *RetryingMover) Move(ctx context.Context, from, to string) error {
	attempt := 0

	operation := func() error {
		attempt++

		err := m.Rename(from, to)
		if err == nil {
			return nil
		}

		if !errors.Is(err, fs.ErrPermission) {
			return backoff.Permanent(err)
		}

		logger.WarnKV(ctx, "Directory is locked, retrying move", "attempt", attempt, "error", err)

		return err
	}

	retries := uint64(max(m.Attempts-1, 0))
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(m.Interval), retries),
		ctx,
	)

	return backoff.Retry(operation, policy)
}
