// Package fetcher downloads release artifacts into a local directory.
//
// A file already present under the expected name is treated as downloaded,
// so repeated calls for the same URL transfer it at most once.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap/zapcore"

	"github.com/oshokin/agent-updater/internal/domain/release"
	"github.com/oshokin/agent-updater/internal/logger"
	"github.com/oshokin/agent-updater/internal/service/common"
)

// partialSuffix marks a transfer in progress.
const partialSuffix = ".part"

var (
	// ErrBadHTTPStatus is returned when the release host does not answer 200.
	ErrBadHTTPStatus = common.ErrBadHTTPStatus
	// ErrFileMissing is returned when the transfer finished but nothing is on disk.
	ErrFileMissing = errors.New("downloaded file is missing")
	// errNoFilename is returned when the URL path has no final element.
	errNoFilename = errors.New("url has no file name")
)

// Fetcher retrieves artifacts over HTTP.
type Fetcher struct {
	client      common.HTTPClient
	dir         string
	releasesURL string
	progress    io.Writer
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client common.HTTPClient) Option {
	return func(f *Fetcher) {
		if client != nil {
			f.client = client
		}
	}
}

// WithProgress renders a progress bar to w while downloading.
func WithProgress(w io.Writer) Option {
	return func(f *Fetcher) {
		f.progress = w
	}
}

// New creates a fetcher storing files in dir.
func New(dir, releasesURL string, opts ...Option) *Fetcher {
	f := &Fetcher{
		client:      http.DefaultClient,
		dir:         dir,
		releasesURL: releasesURL,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// URLFor returns <releases_url>/<version>/<filename> for the descriptor.
func (f *Fetcher) URLFor(d release.Descriptor) (string, error) {
	return common.JoinURL(f.releasesURL, d.Version, d.Filename())
}

// LocalPath returns where rawURL is stored once downloaded.
func (f *Fetcher) LocalPath(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", rawURL, err)
	}

	name := path.Base(parsed.Path)
	if name == "" || name == "." || name == "/" {
		return "", fmt.Errorf("%w: %s", errNoFilename, rawURL)
	}

	return filepath.Join(f.dir, name), nil
}

// Download stores rawURL under the fetcher directory and returns the local path.
func (f *Fetcher) Download(ctx context.Context, rawURL string) (string, error) {
	target, err := f.LocalPath(rawURL)
	if err != nil {
		return "", err
	}

	ctx = logger.WithKV(ctx, "file", target)

	if _, err = os.Stat(target); err == nil {
		logger.Debug(ctx, "Artifact already downloaded")

		return target, nil
	}

	if err = os.MkdirAll(f.dir, 0o750); err != nil {
		return "", fmt.Errorf("create download directory: %w", err)
	}

	logger.InfoKV(ctx, "Downloading artifact", "url", rawURL)

	started := time.Now()

	if err = f.transfer(ctx, rawURL, target); err != nil {
		return "", err
	}

	if _, err = os.Stat(target); err != nil {
		return "", fmt.Errorf("%w: %s", ErrFileMissing, target)
	}

	logger.InfoKV(ctx, "Artifact downloaded", "elapsed", time.Since(started).String())

	return target, nil
}

func (f *Fetcher) transfer(ctx context.Context, rawURL, target string) error {
	response, err := common.Get(ctx, f.client, rawURL)
	if err != nil {
		return fmt.Errorf("download %s: %w", rawURL, err)
	}

	defer func() {
		_ = response.Body.Close()
	}()

	partial := target + partialSuffix

	out, err := os.OpenFile(partial, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create %s: %w", partial, err)
	}

	var sink io.Writer = out
	if f.progress != nil {
		// Only warnings may interrupt the bar.
		ctx = logger.WithMinLevel(ctx, zapcore.WarnLevel)
		sink = io.MultiWriter(out, f.newBar(response.ContentLength, filepath.Base(target)))
	}

	logger.DebugKV(ctx, "Transfer started", "size", response.ContentLength)

	_, copyErr := io.Copy(sink, response.Body)
	if copyErr != nil {
		logger.WarnKV(ctx, "Transfer interrupted", "error", copyErr)
	}

	closeErr := out.Close()

	if err = errors.Join(copyErr, closeErr); err != nil {
		_ = os.Remove(partial)

		return fmt.Errorf("download %s: %w", rawURL, err)
	}

	if err = os.Rename(partial, target); err != nil {
		_ = os.Remove(partial)

		return fmt.Errorf("finalize download: %w", err)
	}

	return nil
}

func (f *Fetcher) newBar(size int64, name string) *progressbar.ProgressBar {
	return progressbar.NewOptions64(size,
		progressbar.OptionSetWriter(f.progress),
		progressbar.OptionSetDescription(name),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(200*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}
