//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
)

// ErrBadHTTPStatus is returned when a remote endpoint answers with anything but 200.
var ErrBadHTTPStatus = errors.New("unexpected http status")

// ErrBodyTooLarge is returned when a metadata document exceeds maxBodySize.
var ErrBodyTooLarge = errors.New("response body too large")

// maxBodySize caps metadata documents read into memory.
const maxBodySize = 8 << 20

// HTTPClient is the subset of *http.Client used by the pipeline.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// JoinURL appends path elements to base, normalizing duplicate slashes.
func JoinURL(base string, elems ...string) (string, error) {
	parsed, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", base, err)
	}

	parsed.Path = path.Join(append([]string{"/", parsed.Path}, elems...)...)

	return parsed.String(), nil
}

// Get issues a GET request and fails on any status other than 200.
// The caller owns the returned body.
func Get(ctx context.Context, client HTTPClient, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, err
	}

	response, err := client.Do(req)
	if err != nil {
		return nil, err
	}

	if response.StatusCode != http.StatusOK {
		_ = response.Body.Close()
		return nil, fmt.Errorf("%s, %s: %w", rawURL, response.Status, ErrBadHTTPStatus)
	}

	return response, nil
}

// GetBody fetches rawURL and returns its whole body.
func GetBody(ctx context.Context, client HTTPClient, rawURL string) ([]byte, error) {
	response, err := Get(ctx, client, rawURL)
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = response.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(response.Body, maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rawURL, err)
	}

	if len(body) > maxBodySize {
		return nil, fmt.Errorf("read %s: %w: over %d bytes", rawURL, ErrBodyTooLarge, maxBodySize)
	}

	return body, nil
}
