package updater

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/oshokin/agent-updater/internal/domain/release"
	"github.com/oshokin/agent-updater/internal/logger"
)

// ConfirmUpdate runs after a restart. If the running version is the target of
// an unreported attempt, it purges obsolete versions where allowed, reports
// the success and clears the attempt table. Otherwise leftover records are
// discarded. Calling it twice has no further effect.
func (s *Service) ConfirmUpdate(ctx context.Context) error {
	ctx = logger.WithName(ctx, "confirm")
	running := s.settings.CurrentVersion

	record, ok, err := s.Tracker.Lookup(ctx, running)
	if err != nil {
		return fmt.Errorf("load attempts: %w", err)
	}

	if !ok || record.Notified {
		return s.Tracker.Clear(ctx)
	}

	if s.settings.Policy.CanPurge() {
		s.purgeVersions(ctx, record.From, record.To)
	}

	if err = s.Reporter.Send(ctx, release.OutcomeSuccess, record.From, record.To); err != nil {
		return fmt.Errorf("send update success event: %w", err)
	}

	if err = s.Tracker.Clear(ctx); err != nil {
		return fmt.Errorf("delete update attempts: %w", err)
	}

	logger.InfoKV(ctx, "Update confirmed", "from", record.From, "to", record.To)

	return nil
}

// purgeVersions removes version directories other than the previous, the new
// and the running one. Failures are logged and skipped.
func (s *Service) purgeVersions(ctx context.Context, previous, next string) {
	if _, err := release.ParseVersion(next); err != nil {
		return
	}

	entries, err := os.ReadDir(s.settings.VersionsDir)
	if err != nil {
		logger.WarnKV(ctx, "Unable to list versions", "error", err)

		return
	}

	keep := map[string]struct{}{
		previous:                  {},
		next:                      {},
		s.settings.CurrentVersion: {},
	}

	for _, entry := range entries {
		name := entry.Name()
		if _, found := keep[name]; found || !entry.IsDir() {
			continue
		}

		if _, err = release.ParseVersion(name); err != nil {
			continue
		}

		if err = os.RemoveAll(filepath.Join(s.settings.VersionsDir, name)); err != nil {
			logger.WarnKV(ctx, "Unable to delete version", "version", name, "error", err)

			continue
		}

		logger.InfoKV(ctx, "Version deleted", "version", name)
	}
}
