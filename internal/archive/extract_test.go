package archive

import (
	"archive/tar"
	"context"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"
)

// entry describes one fixture file.
type entry struct {
	name string
	body string
	mode os.FileMode
}

var fixture = []entry{
	{name: "agent-1.2.0/", mode: os.ModeDir | 0o755},
	{name: "agent-1.2.0/bin/agent", body: "#!/bin/sh\necho agent\n", mode: 0o755},
	{name: "agent-1.2.0/lib/index.js", body: "module.exports = {}\n", mode: 0o644},
}

// writeZip builds a zip archive with the given entries.
func writeZip(t *testing.T, path string, entries []entry) {
	t.Helper()

	out, err := os.Create(path)
	require.NoError(t, err)

	zw := zip.NewWriter(out)

	for _, e := range entries {
		header := &zip.FileHeader{Name: e.name, Method: zip.Deflate}
		header.SetMode(e.mode)

		w, err := zw.CreateHeader(header)
		require.NoError(t, err)

		if e.mode.IsDir() {
			continue
		}

		_, err = io.WriteString(w, e.body)
		require.NoError(t, err)
	}

	require.NoError(t, zw.Close())
	require.NoError(t, out.Close())
}

// writeTar builds a tar archive wrapped by compress.
func writeTar(t *testing.T, path string, entries []entry, compress func(io.Writer) io.WriteCloser) {
	t.Helper()

	out, err := os.Create(path)
	require.NoError(t, err)

	cw := compress(out)
	tw := tar.NewWriter(cw)

	for _, e := range entries {
		header := &tar.Header{Name: e.name, Mode: int64(e.mode.Perm()), Size: int64(len(e.body))}
		header.Typeflag = tar.TypeReg

		if e.mode.IsDir() {
			header.Typeflag = tar.TypeDir
			header.Size = 0
		}

		require.NoError(t, tw.WriteHeader(header))

		if !e.mode.IsDir() {
			_, err = io.WriteString(tw, e.body)
			require.NoError(t, err)
		}
	}

	require.NoError(t, tw.Close())
	require.NoError(t, cw.Close())
	require.NoError(t, out.Close())
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// assertFixture checks that the fixture was unpacked under dest.
func assertFixture(t *testing.T, dest string) {
	t.Helper()

	body, err := os.ReadFile(filepath.Join(dest, "agent-1.2.0", "lib", "index.js"))
	require.NoError(t, err)
	require.Equal(t, "module.exports = {}\n", string(body))

	info, err := os.Stat(filepath.Join(dest, "agent-1.2.0", "bin", "agent"))
	require.NoError(t, err)

	if runtime.GOOS != "windows" {
		require.Equal(t, os.FileMode(0o755), info.Mode().Perm())
	}
}

// TestExtractor_Formats unpacks the same fixture from every supported format.
func TestExtractor_Formats(t *testing.T) {
	t.Parallel()

	cases := map[string]func(t *testing.T, path string){
		"agent.zip": func(t *testing.T, path string) { writeZip(t, path, fixture) },
		"agent.tar": func(t *testing.T, path string) {
			writeTar(t, path, fixture, func(w io.Writer) io.WriteCloser { return nopWriteCloser{w} })
		},
		"agent.tar.gz": func(t *testing.T, path string) {
			writeTar(t, path, fixture, func(w io.Writer) io.WriteCloser { return gzip.NewWriter(w) })
		},
		"agent.tar.xz": func(t *testing.T, path string) {
			writeTar(t, path, fixture, func(w io.Writer) io.WriteCloser {
				xw, err := xz.NewWriter(w)
				require.NoError(t, err)

				return xw
			})
		},
		"agent.tar.zst": func(t *testing.T, path string) {
			writeTar(t, path, fixture, func(w io.Writer) io.WriteCloser {
				zw, err := zstd.NewWriter(w)
				require.NoError(t, err)

				return zw
			})
		},
	}

	for name, build := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			archivePath := filepath.Join(dir, name)
			build(t, archivePath)

			dest := filepath.Join(dir, "out")
			require.NoError(t, NewExtractor().Extract(context.Background(), archivePath, dest))
			assertFixture(t, dest)
		})
	}
}

// TestExtractor_RejectsTraversal refuses entries escaping the destination.
func TestExtractor_RejectsTraversal(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	archivePath := filepath.Join(dir, "evil.zip")
	writeZip(t, archivePath, []entry{{name: "../escaped.txt", body: "x", mode: 0o644}})

	err := NewExtractor().Extract(context.Background(), archivePath, filepath.Join(dir, "out"))
	require.ErrorIs(t, err, ErrIllegalPath)

	_, statErr := os.Stat(filepath.Join(dir, "escaped.txt"))
	require.ErrorIs(t, statErr, os.ErrNotExist)
}

// TestExtractor_UnsupportedFormat reports unknown extensions.
func TestExtractor_UnsupportedFormat(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	archivePath := filepath.Join(dir, "agent.rar")
	require.NoError(t, os.WriteFile(archivePath, []byte("rar"), 0o600))

	err := NewExtractor().Extract(context.Background(), archivePath, dir)
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}

// TestExtractor_CorruptArchive surfaces reader errors.
func TestExtractor_CorruptArchive(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	archivePath := filepath.Join(dir, "agent.zip")
	require.NoError(t, os.WriteFile(archivePath, []byte("definitely not a zip"), 0o600))

	require.Error(t, NewExtractor().Extract(context.Background(), archivePath, filepath.Join(dir, "out")))
}

// TestExtractor_Cancelled stops before touching the destination.
func TestExtractor_Cancelled(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	archivePath := filepath.Join(dir, "agent.zip")
	writeZip(t, archivePath, fixture)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewExtractor().Extract(ctx, archivePath, filepath.Join(dir, "out"))
	require.ErrorIs(t, err, context.Canceled)
}
