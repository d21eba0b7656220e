// Package verifier checks downloaded artifacts against the published checksum manifest.
package verifier

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/packet"

	"github.com/oshokin/agent-updater/internal/logger"
	"github.com/oshokin/agent-updater/internal/service/common"
)

// ErrBadSignature is returned when the manifest signature does not match the trusted key.
var ErrBadSignature = errors.New("checksum manifest signature mismatch")

// Verifier validates artifacts of one release host.
type Verifier struct {
	client      common.HTTPClient
	releasesURL string
	algorithm   string
	keyring     openpgp.EntityList
}

// Option configures a Verifier.
type Option func(*Verifier) error

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client common.HTTPClient) Option {
	return func(v *Verifier) error {
		if client != nil {
			v.client = client
		}

		return nil
	}
}

// WithAlgorithm selects the digest algorithm of the manifest.
func WithAlgorithm(algorithm string) Option {
	return func(v *Verifier) error {
		if algorithm == "" {
			return nil
		}

		if _, err := NewHash(algorithm); err != nil {
			return err
		}

		v.algorithm = algorithm

		return nil
	}
}

// WithPublicKey requires manifests to carry a detached signature made by
// one of the armored keys.
func WithPublicKey(armored []byte) Option {
	return func(v *Verifier) error {
		if len(armored) == 0 {
			return nil
		}

		keyring, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(armored))
		if err != nil {
			return fmt.Errorf("read public key: %w", err)
		}

		v.keyring = keyring

		return nil
	}
}

// New creates a verifier for releasesURL.
func New(releasesURL string, opts ...Option) (*Verifier, error) {
	v := &Verifier{
		client:      http.DefaultClient,
		releasesURL: releasesURL,
		algorithm:   AlgorithmSHA1,
	}

	for _, opt := range opts {
		if err := opt(v); err != nil {
			return nil, err
		}
	}

	return v, nil
}

// Algorithm returns the configured digest algorithm.
func (v *Verifier) Algorithm() string {
	return v.algorithm
}

// Verify reports whether the file at path matches the manifest entry of filename.
// A mismatch is not an error.
func (v *Verifier) Verify(ctx context.Context, version, filename, path string) (bool, error) {
	manifest, err := v.FetchManifest(ctx, version)
	if err != nil {
		return false, err
	}

	expected, err := manifest.Lookup(filename)
	if err != nil {
		return false, err
	}

	actual, err := HashFile(path, v.algorithm)
	if err != nil {
		return false, err
	}

	valid := SameDigest(expected, actual)

	logger.InfoKV(ctx, "Checksum compared",
		"file", filename,
		"algorithm", v.algorithm,
		"valid", valid,
	)

	return valid, nil
}

// FetchManifest downloads, authenticates and parses the manifest of version.
func (v *Verifier) FetchManifest(ctx context.Context, version string) (Manifest, error) {
	manifestURL, err := common.JoinURL(v.releasesURL, version, ManifestName)
	if err != nil {
		return nil, err
	}

	data, err := common.GetBody(ctx, v.client, manifestURL)
	if err != nil {
		return nil, fmt.Errorf("fetch checksum manifest: %w", err)
	}

	if v.keyring != nil {
		if err = v.checkSignature(ctx, version, data); err != nil {
			return nil, err
		}
	}

	return ParseManifest(data)
}

func (v *Verifier) checkSignature(ctx context.Context, version string, data []byte) error {
	signatureURL, err := common.JoinURL(v.releasesURL, version, SignatureName)
	if err != nil {
		return err
	}

	signature, err := common.GetBody(ctx, v.client, signatureURL)
	if err != nil {
		return fmt.Errorf("fetch manifest signature: %w", err)
	}

	_, err = openpgp.CheckArmoredDetachedSignature(
		v.keyring,
		bytes.NewReader(data),
		bytes.NewReader(signature),
		&packet.Config{},
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBadSignature, err)
	}

	logger.Debug(ctx, "Checksum manifest signature verified")

	return nil
}
