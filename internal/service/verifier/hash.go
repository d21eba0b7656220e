package verifier

import (
	"crypto/sha1" //nolint:gosec // The release host publishes sha1 digests.
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"
)

// Supported digest algorithms.
const (
	AlgorithmSHA1   = "sha1"
	AlgorithmSHA256 = "sha256"
	AlgorithmSHA512 = "sha512"
)

// ErrUnsupportedAlgorithm is returned for unknown digest names.
var ErrUnsupportedAlgorithm = errors.New("unsupported checksum algorithm")

// NewHash returns a fresh hash for algorithm.
func NewHash(algorithm string) (hash.Hash, error) {
	switch strings.ToLower(algorithm) {
	case AlgorithmSHA1:
		return sha1.New(), nil //nolint:gosec // See import.
	case AlgorithmSHA256:
		return sha256.New(), nil
	case AlgorithmSHA512:
		return sha512.New(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, algorithm)
	}
}

// HashFile streams the file at path through algorithm and returns the lowercase hex digest.
func HashFile(path, algorithm string) (string, error) {
	h, err := NewHash(algorithm)
	if err != nil {
		return "", err
	}

	file, err := os.Open(path) //nolint:gosec // Path comes from the fetcher.
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}

	defer func() {
		_ = file.Close()
	}()

	if _, err = io.Copy(h, file); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// SameDigest compares two hex digests ignoring case and surrounding whitespace.
func SameDigest(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
