package release

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidVersion is returned when a version string is not dotted numeric.
var ErrInvalidVersion = errors.New("invalid version")

// Version is a parsed dotted numeric version such as 1.10.0.
type Version []int

// ParseVersion parses a dotted numeric string. A leading "v" is tolerated.
func ParseVersion(s string) (Version, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(s), "v")
	if raw == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidVersion)
	}

	parts := strings.Split(raw, ".")
	result := make(Version, 0, len(parts))

	for _, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidVersion, s)
		}

		result = append(result, n)
	}

	return result, nil
}

// String renders the version back in dotted form.
func (v Version) String() string {
	parts := make([]string, len(v))
	for i, n := range v {
		parts[i] = strconv.Itoa(n)
	}

	return strings.Join(parts, ".")
}

// Compare returns -1, 0 or 1. The shorter version is padded with zeros,
// so 1.2 and 1.2.0 are equal.
func (v Version) Compare(other Version) int {
	length := max(len(v), len(other))

	for i := range length {
		a, b := segment(v, i), segment(other, i)

		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		}
	}

	return 0
}

func segment(v Version, i int) int {
	if i < len(v) {
		return v[i]
	}

	return 0
}

// CompareVersions parses and compares two version strings.
func CompareVersions(a, b string) (int, error) {
	left, err := ParseVersion(a)
	if err != nil {
		return 0, err
	}

	right, err := ParseVersion(b)
	if err != nil {
		return 0, err
	}

	return left.Compare(right), nil
}

// IsNewer reports whether remote is strictly greater than local.
// Unparsable input is never considered newer.
func IsNewer(remote, local string) bool {
	cmp, err := CompareVersions(remote, local)

	return err == nil && cmp > 0
}
