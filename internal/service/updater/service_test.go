package updater

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/agent-updater/internal/domain/release"
	"github.com/oshokin/agent-updater/internal/platform"
	"github.com/oshokin/agent-updater/internal/repository/kv"
	"github.com/oshokin/agent-updater/internal/service/installer"
	"github.com/oshokin/agent-updater/internal/service/reporter"
	"github.com/oshokin/agent-updater/internal/service/tracker"
)

var errOffline = errors.New("offline")

type fakeResolver struct {
	latest string
}

func (f fakeResolver) LatestVersion(context.Context, string) (string, error) {
	return f.latest, nil
}

type fakeFetcher struct {
	dir   string
	err   error
	calls int
}

func (f *fakeFetcher) URLFor(d release.Descriptor) (string, error) {
	return "https://downloads.local/" + d.Version + "/" + d.Filename(), nil
}

func (f *fakeFetcher) Download(_ context.Context, rawURL string) (string, error) {
	f.calls++

	if f.err != nil {
		return "", f.err
	}

	path := filepath.Join(f.dir, filepath.Base(rawURL))

	return path, os.WriteFile(path, []byte("artifact"), 0o600)
}

type fakeVerifier struct {
	valid bool
	err   error
}

func (f fakeVerifier) Verify(context.Context, string, string, string) (bool, error) {
	return f.valid, f.err
}

type fakeInstaller struct {
	calls []string
}

func (f *fakeInstaller) Install(_ context.Context, archivePath, dest string) (*installer.Result, error) {
	f.calls = append(f.calls, archivePath)

	version, err := release.ParseFilename("agent", archivePath)
	if err != nil {
		return &installer.Result{State: installer.StateFailed}, err
	}

	return &installer.Result{
		Version: version,
		Path:    filepath.Join(dest, version),
		State:   installer.StateFinalized,
	}, nil
}

type fakeReporter struct {
	mu      sync.Mutex
	missing bool
	err     error
	sent    []string
}

func (f *fakeReporter) CheckCredentials() error {
	if f.missing {
		return reporter.ErrMissingCredentials
	}

	return nil
}

func (f *fakeReporter) Send(_ context.Context, status, oldVersion, newVersion string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return f.err
	}

	f.sent = append(f.sent, status+":"+oldVersion+"->"+newVersion)

	return nil
}

type fixture struct {
	service   *Service
	fetcher   *fakeFetcher
	installer *fakeInstaller
	reporter  *fakeReporter
	tracker   *tracker.Tracker
	versions  string
}

func newFixture(t *testing.T, current, latest string, verifier fakeVerifier) *fixture {
	t.Helper()

	f := &fixture{
		fetcher:   &fakeFetcher{dir: t.TempDir()},
		installer: new(fakeInstaller),
		reporter:  new(fakeReporter),
		versions:  t.TempDir(),
	}

	f.tracker = tracker.New(kv.NewMemoryStore(), f.reporter)

	policy := platform.ForOS("linux")
	policy.CanPurge = func() bool { return true }

	f.service = NewService(
		Settings{
			Product:        "agent",
			Channel:        "stable",
			VersionsDir:    f.versions,
			CurrentVersion: current,
			Policy:         policy,
		},
		Dependencies{
			Resolver:  fakeResolver{latest: latest},
			Fetcher:   f.fetcher,
			Verifier:  verifier,
			Installer: f.installer,
			Tracker:   f.tracker,
			Reporter:  f.reporter,
		},
	)

	return f
}

// TestUpgrade_InstallsLatest runs every stage once in order.
func TestUpgrade_InstallsLatest(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "1.0.0", "1.2.0", fakeVerifier{valid: true})

	installed, err := f.service.Upgrade(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, "1.2.0", installed)
	require.Equal(t, 1, f.fetcher.calls)
	require.Len(t, f.installer.calls, 1)

	record, ok, err := f.tracker.Lookup(context.Background(), "1.2.0")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, record.Attempts)
	require.Equal(t, "1.0.0", record.From)
}

// TestUpgrade_AlreadyLatest stops before any attempt is recorded.
func TestUpgrade_AlreadyLatest(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "1.2.0", "1.2", fakeVerifier{valid: true})

	_, err := f.service.Upgrade(context.Background(), "")
	require.ErrorIs(t, err, ErrAlreadyLatest)
	require.Zero(t, f.fetcher.calls)

	_, ok, err := f.tracker.Lookup(context.Background(), "1.2")
	require.NoError(t, err)
	require.False(t, ok)
}

// TestUpgrade_MissingCredentials cancels without touching the tracker.
func TestUpgrade_MissingCredentials(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "1.0.0", "1.2.0", fakeVerifier{valid: true})
	f.reporter.missing = true

	_, err := f.service.Upgrade(context.Background(), "1.2.0")
	require.ErrorIs(t, err, reporter.ErrMissingCredentials)

	_, ok, err := f.tracker.Lookup(context.Background(), "1.2.0")
	require.NoError(t, err)
	require.False(t, ok)
}

// TestUpgrade_InvalidChecksum deletes the artifact and never installs.
func TestUpgrade_InvalidChecksum(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "1.0.0", "1.2.0", fakeVerifier{valid: false})

	_, err := f.service.Upgrade(context.Background(), "1.2.0")
	require.ErrorIs(t, err, ErrInvalidChecksum)
	require.Empty(t, f.installer.calls)

	entries, err := os.ReadDir(f.fetcher.dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

// TestUpgrade_VerifyErrorRemovesArtifact treats manifest failures like mismatches.
func TestUpgrade_VerifyErrorRemovesArtifact(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "1.0.0", "1.2.0", fakeVerifier{err: errOffline})

	_, err := f.service.Upgrade(context.Background(), "1.2.0")
	require.ErrorIs(t, err, errOffline)

	entries, err := os.ReadDir(f.fetcher.dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

// TestUpgrade_MaxAttempts reports the failure once and then keeps refusing.
func TestUpgrade_MaxAttempts(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "1.0.0", "1.2.0", fakeVerifier{valid: true})
	f.fetcher.err = errOffline

	for range 3 {
		_, err := f.service.Upgrade(context.Background(), "")
		require.ErrorIs(t, err, errOffline)
	}

	for range 2 {
		_, err := f.service.Upgrade(context.Background(), "")
		require.ErrorIs(t, err, ErrMaxAttempts)
	}

	require.Equal(t, 3, f.fetcher.calls)
	require.Equal(t, []string{"failed:1.0.0->1.2.0"}, f.reporter.sent)
}

// TestUpgrade_AlreadyInstalled refuses when the version directory exists.
func TestUpgrade_AlreadyInstalled(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "1.0.0", "1.2.0", fakeVerifier{valid: true})
	require.NoError(t, os.MkdirAll(filepath.Join(f.versions, "1.2.0"), 0o750))

	_, err := f.service.Upgrade(context.Background(), "")
	require.ErrorIs(t, err, ErrAlreadyInstalled)
	require.Zero(t, f.fetcher.calls)
}

// TestCheck reports whether the channel has something newer.
func TestCheck(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "1.0.0", "1.2.0", fakeVerifier{valid: true})

	latest, newer, err := f.service.Check(context.Background())
	require.NoError(t, err)
	require.Equal(t, "1.2.0", latest)
	require.True(t, newer)
}

// TestConfirmUpdate_ReportsOnceAndPurges sends one success event and removes stale versions.
func TestConfirmUpdate_ReportsOnceAndPurges(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "1.2.0", "1.2.0", fakeVerifier{valid: true})
	ctx := context.Background()

	for _, dir := range []string{"0.9.0", "1.0.0", "1.2.0", "agent-1.1.0"} {
		require.NoError(t, os.MkdirAll(filepath.Join(f.versions, dir), 0o750))
	}

	permit, err := f.tracker.RecordAttempt(ctx, "1.0.0", "1.2.0")
	require.NoError(t, err)
	require.True(t, permit)

	require.NoError(t, f.service.ConfirmUpdate(ctx))
	require.NoError(t, f.service.ConfirmUpdate(ctx))

	require.Equal(t, []string{"success:1.0.0->1.2.0"}, f.reporter.sent)

	entries, err := os.ReadDir(f.versions)
	require.NoError(t, err)

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}

	require.ElementsMatch(t, []string{"1.0.0", "1.2.0", "agent-1.1.0"}, names)

	_, ok, err := f.tracker.Lookup(ctx, "1.2.0")
	require.NoError(t, err)
	require.False(t, ok)
}

// TestConfirmUpdate_SendFailureKeepsRecord retries the report on the next start.
func TestConfirmUpdate_SendFailureKeepsRecord(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "1.2.0", "1.2.0", fakeVerifier{valid: true})
	ctx := context.Background()

	_, err := f.tracker.RecordAttempt(ctx, "1.0.0", "1.2.0")
	require.NoError(t, err)

	f.reporter.err = errOffline

	require.ErrorIs(t, f.service.ConfirmUpdate(ctx), errOffline)

	_, ok, err := f.tracker.Lookup(ctx, "1.2.0")
	require.NoError(t, err)
	require.True(t, ok)

	f.reporter.err = nil

	require.NoError(t, f.service.ConfirmUpdate(ctx))
	require.Len(t, f.reporter.sent, 1)
}

// TestConfirmUpdate_ClearsLeftovers drops records that do not target the running version.
func TestConfirmUpdate_ClearsLeftovers(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "1.0.0", "1.2.0", fakeVerifier{valid: true})
	ctx := context.Background()

	_, err := f.tracker.RecordAttempt(ctx, "1.0.0", "1.2.0")
	require.NoError(t, err)

	require.NoError(t, f.service.ConfirmUpdate(ctx))
	require.Empty(t, f.reporter.sent)

	_, ok, err := f.tracker.Lookup(ctx, "1.2.0")
	require.NoError(t, err)
	require.False(t, ok)
}
