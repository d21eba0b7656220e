// Package resolver discovers the latest published version on a release channel.
package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/oshokin/agent-updater/internal/config"
	"github.com/oshokin/agent-updater/internal/domain/release"
	"github.com/oshokin/agent-updater/internal/logger"
	"github.com/oshokin/agent-updater/internal/service/common"
)

// latestPointer is the file holding the newest stable version.
const latestPointer = "latest.txt"

var (
	// ErrUnknownChannel is returned for channels other than stable and edge.
	ErrUnknownChannel = errors.New("unknown release channel")
	// ErrMalformedVersion is returned when the remote answer is not a version.
	ErrMalformedVersion = errors.New("malformed remote version")
	// ErrPrerelease is returned when a channel points at a prerelease tag.
	ErrPrerelease = errors.New("prerelease versions are not installable")
)

// Resolver queries release metadata endpoints.
type Resolver struct {
	client          common.HTTPClient
	releasesURL     string
	edgeMetadataURL string
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client common.HTTPClient) Option {
	return func(r *Resolver) {
		if client != nil {
			r.client = client
		}
	}
}

// New creates a resolver for the provided endpoints.
func New(releasesURL, edgeMetadataURL string, opts ...Option) *Resolver {
	r := &Resolver{
		client:          http.DefaultClient,
		releasesURL:     releasesURL,
		edgeMetadataURL: edgeMetadataURL,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// distTags is the part of the package registry document the edge channel reads.
type distTags struct {
	DistTags struct {
		Latest string `json:"latest"`
	} `json:"dist-tags"`
}

// LatestVersion returns the newest version published on channel.
func (r *Resolver) LatestVersion(ctx context.Context, channel string) (string, error) {
	var (
		raw string
		err error
	)

	switch channel {
	case config.ChannelStable:
		raw, err = r.stable(ctx)
	case config.ChannelEdge:
		raw, err = r.edge(ctx)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownChannel, channel)
	}

	if err != nil {
		return "", err
	}

	version, err := normalize(raw)
	if err != nil {
		return "", err
	}

	logger.DebugKV(ctx, "Resolved latest version", "channel", channel, "version", version)

	return version, nil
}

// NewVersionAvailable returns the latest version on channel when it is newer than current.
func (r *Resolver) NewVersionAvailable(ctx context.Context, channel, current string) (string, bool, error) {
	latest, err := r.LatestVersion(ctx, channel)
	if err != nil {
		return "", false, err
	}

	if !release.IsNewer(latest, current) {
		return latest, false, nil
	}

	return latest, true, nil
}

func (r *Resolver) stable(ctx context.Context) (string, error) {
	pointerURL, err := common.JoinURL(r.releasesURL, latestPointer)
	if err != nil {
		return "", err
	}

	body, err := common.GetBody(ctx, r.client, pointerURL)
	if err != nil {
		return "", fmt.Errorf("fetch latest stable version: %w", err)
	}

	return strings.TrimSpace(string(body)), nil
}

func (r *Resolver) edge(ctx context.Context) (string, error) {
	if r.edgeMetadataURL == "" {
		return "", fmt.Errorf("%w: edge metadata url is not configured", ErrUnknownChannel)
	}

	body, err := common.GetBody(ctx, r.client, r.edgeMetadataURL)
	if err != nil {
		return "", fmt.Errorf("fetch latest edge version: %w", err)
	}

	var doc distTags
	if err = json.Unmarshal(body, &doc); err != nil {
		return "", fmt.Errorf("%w: %w", ErrMalformedVersion, err)
	}

	return doc.DistTags.Latest, nil
}

// normalize validates the served version and returns it as published, minus
// a leading "v", because artifact and manifest paths are built from it.
// Prerelease tags are rejected: artifacts are only named by dotted numbers.
func normalize(raw string) (string, error) {
	version := strings.TrimPrefix(strings.TrimSpace(raw), "v")

	if _, err := release.ParseVersion(version); err != nil {
		if parsed, semverErr := semver.NewVersion(version); semverErr == nil && parsed.Prerelease() != "" {
			return "", fmt.Errorf("%w: %w: %q", ErrMalformedVersion, ErrPrerelease, raw)
		}

		return "", fmt.Errorf("%w: %w", ErrMalformedVersion, err)
	}

	return version, nil
}
