package fetcher

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/agent-updater/internal/domain/release"
)

// TestDownload_TransfersOnce downloads the artifact once and reuses it afterwards.
func TestDownload_TransfersOnce(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32

	payload := bytes.Repeat([]byte("agent"), 1024)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)

		_, _ = w.Write(payload)
	}))
	defer ts.Close()

	dir := t.TempDir()
	f := New(dir, ts.URL, WithHTTPClient(ts.Client()), WithProgress(new(bytes.Buffer)))
	url := ts.URL + "/1.2.0/agent-linux-1.2.0-x64.zip"

	first, err := f.Download(context.Background(), url)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "agent-linux-1.2.0-x64.zip"), first)

	second, err := f.Download(context.Background(), url)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.EqualValues(t, 1, hits.Load())

	data, err := os.ReadFile(first)
	require.NoError(t, err)
	require.Equal(t, payload, data)
}

// TestDownload_BadStatus leaves nothing behind when the host answers 404.
func TestDownload_BadStatus(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.NotFoundHandler())
	defer ts.Close()

	dir := t.TempDir()
	f := New(dir, ts.URL, WithHTTPClient(ts.Client()))

	_, err := f.Download(context.Background(), ts.URL+"/1.2.0/agent-linux-1.2.0-x64.zip")
	require.ErrorIs(t, err, ErrBadHTTPStatus)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

// TestDownload_InterruptedTransfer removes the partial file so the next call retries.
func TestDownload_InterruptedTransfer(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Length", "4096")
		_, _ = w.Write([]byte("short"))
	}))
	defer ts.Close()

	dir := t.TempDir()
	f := New(dir, ts.URL, WithHTTPClient(ts.Client()))

	_, err := f.Download(context.Background(), ts.URL+"/agent-linux-1.2.0-x64.zip")
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

// TestURLFor builds the artifact URL from the descriptor.
func TestURLFor(t *testing.T) {
	t.Parallel()

	f := New(t.TempDir(), "https://downloads.local/agent/")
	d := release.Descriptor{Product: "agent", OS: "linux", Version: "1.2.0", Arch: "x64"}

	got, err := f.URLFor(d)
	require.NoError(t, err)
	require.Equal(t, "https://downloads.local/agent/1.2.0/agent-linux-1.2.0-x64.zip", got)

	_, err = f.LocalPath("https://downloads.local/")
	require.Error(t, err)
}
