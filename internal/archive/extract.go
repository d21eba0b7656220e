package archive

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

var (
	// ErrUnsupportedFormat is returned for archive extensions the extractor does not know.
	ErrUnsupportedFormat = errors.New("unsupported archive format")
	// ErrIllegalPath is returned for entries escaping the destination directory.
	ErrIllegalPath = errors.New("illegal path in archive")
)

const (
	defaultDirMode  os.FileMode = 0o755
	defaultFileMode os.FileMode = 0o644
)

// Extractor is the generic, pure-Go archive extraction engine.
type Extractor struct{}

// NewExtractor returns a generic extractor.
func NewExtractor() *Extractor {
	return new(Extractor)
}

// Extract unpacks archivePath into dest, creating dest when needed.
func (e *Extractor) Extract(ctx context.Context, archivePath, dest string) error {
	if err := os.MkdirAll(dest, defaultDirMode); err != nil {
		return fmt.Errorf("create destination: %w", err)
	}

	name := strings.ToLower(filepath.Base(archivePath))

	switch {
	case strings.HasSuffix(name, ".zip"):
		return extractZip(ctx, archivePath, dest)
	case strings.HasSuffix(name, ".tar.gz"), strings.HasSuffix(name, ".tgz"):
		return extractTar(ctx, archivePath, dest, func(r io.Reader) (io.Reader, func(), error) {
			gz, err := gzip.NewReader(r)
			if err != nil {
				return nil, nil, err
			}

			return gz, func() { _ = gz.Close() }, nil
		})
	case strings.HasSuffix(name, ".tar.xz"), strings.HasSuffix(name, ".txz"):
		return extractTar(ctx, archivePath, dest, func(r io.Reader) (io.Reader, func(), error) {
			xr, err := xz.NewReader(r)
			if err != nil {
				return nil, nil, err
			}

			return xr, func() {}, nil
		})
	case strings.HasSuffix(name, ".tar.zst"), strings.HasSuffix(name, ".tar.zstd"):
		return extractTar(ctx, archivePath, dest, func(r io.Reader) (io.Reader, func(), error) {
			decoder, err := zstd.NewReader(r)
			if err != nil {
				return nil, nil, err
			}

			return decoder, decoder.Close, nil
		})
	case strings.HasSuffix(name, ".tar"):
		return extractTar(ctx, archivePath, dest, func(r io.Reader) (io.Reader, func(), error) {
			return r, func() {}, nil
		})
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Base(archivePath))
	}
}

// extractZip unpacks every entry of a zip file.
func extractZip(ctx context.Context, archivePath, dest string) error {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("open zip archive: %w", err)
	}

	defer func() {
		_ = reader.Close()
	}()

	for _, entry := range reader.File {
		if err = ctx.Err(); err != nil {
			return err
		}

		var target string

		target, err = safeJoin(dest, entry.Name)
		if err != nil {
			return err
		}

		mode := entry.Mode()

		switch {
		case mode.IsDir():
			err = os.MkdirAll(target, dirMode(mode))
		case mode&os.ModeSymlink != 0:
			err = writeZipSymlink(entry, dest, target)
		default:
			err = writeZipFile(entry, target, mode)
		}

		if err != nil {
			return err
		}
	}

	return nil
}

func writeZipFile(entry *zip.File, target string, mode os.FileMode) error {
	source, err := entry.Open()
	if err != nil {
		return fmt.Errorf("open zip entry %s: %w", entry.Name, err)
	}

	defer func() {
		_ = source.Close()
	}()

	return writeFile(source, target, mode)
}

func writeZipSymlink(entry *zip.File, dest, target string) error {
	source, err := entry.Open()
	if err != nil {
		return fmt.Errorf("open zip entry %s: %w", entry.Name, err)
	}

	defer func() {
		_ = source.Close()
	}()

	link, err := io.ReadAll(source)
	if err != nil {
		return fmt.Errorf("read symlink %s: %w", entry.Name, err)
	}

	return writeSymlink(dest, target, string(link))
}

// extractTar unpacks a tar stream after passing the file through decompress.
func extractTar(
	ctx context.Context,
	archivePath, dest string,
	decompress func(io.Reader) (io.Reader, func(), error),
) error {
	file, err := os.Open(filepath.Clean(archivePath))
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}

	defer func() {
		_ = file.Close()
	}()

	stream, closeStream, err := decompress(file)
	if err != nil {
		return fmt.Errorf("decompress archive: %w", err)
	}

	defer closeStream()

	tr := tar.NewReader(stream)

	for {
		if err = ctx.Err(); err != nil {
			return err
		}

		var header *tar.Header

		header, err = tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}

		if err != nil {
			return fmt.Errorf("read archive: %w", err)
		}

		var target string

		target, err = safeJoin(dest, header.Name)
		if err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			err = os.MkdirAll(target, dirMode(header.FileInfo().Mode()))
		case tar.TypeReg:
			err = writeFile(tr, target, header.FileInfo().Mode())
		case tar.TypeSymlink:
			err = writeSymlink(dest, target, header.Linkname)
		default:
			// Devices, fifos and hard links never appear in release artifacts.
			continue
		}

		if err != nil {
			return err
		}
	}
}

// writeFile copies source into a new file at target.
func writeFile(source io.Reader, target string, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), defaultDirMode); err != nil {
		return fmt.Errorf("create parent of %s: %w", target, err)
	}

	perm := mode.Perm()
	if perm == 0 {
		perm = defaultFileMode
	}

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("create file %s: %w", target, err)
	}

	if _, err = io.Copy(out, source); err != nil {
		_ = out.Close()
		return fmt.Errorf("write file %s: %w", target, err)
	}

	if err = out.Close(); err != nil {
		return fmt.Errorf("close file %s: %w", target, err)
	}

	return nil
}

// writeSymlink creates a link whose resolved target stays inside dest.
func writeSymlink(dest, target, link string) error {
	resolved := link
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(filepath.Dir(target), link)
	}

	if err := ensureWithinRoot(dest, resolved); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(target), defaultDirMode); err != nil {
		return fmt.Errorf("create parent of %s: %w", target, err)
	}

	if err := os.Symlink(link, target); err != nil {
		return fmt.Errorf("symlink %s: %w", target, err)
	}

	return nil
}

// safeJoin resolves an entry name under root.
func safeJoin(root, name string) (string, error) {
	target := filepath.Join(root, filepath.FromSlash(name))
	if err := ensureWithinRoot(root, target); err != nil {
		return "", err
	}

	return target, nil
}

func ensureWithinRoot(root, target string) error {
	root = filepath.Clean(root)
	target = filepath.Clean(target)

	if target == root {
		return nil
	}

	if !strings.HasPrefix(target, root+string(os.PathSeparator)) {
		return fmt.Errorf("%w: %s", ErrIllegalPath, target)
	}

	return nil
}

func dirMode(mode os.FileMode) os.FileMode {
	if perm := mode.Perm(); perm != 0 {
		return perm | 0o700
	}

	return defaultDirMode
}
