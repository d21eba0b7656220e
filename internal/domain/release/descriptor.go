package release

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
)

// DefaultArchiveExt is the extension of every published artifact.
const DefaultArchiveExt = ".zip"

// ErrNotAPackage is returned when a filename does not follow the artifact naming scheme.
var ErrNotAPackage = errors.New("not a release package")

// artifactSuffix matches the part of an artifact name after "<product>-".
var artifactSuffix = regexp.MustCompile(`^(\w+)-(\d+(?:\.\d+)*)`)

// Descriptor identifies a single release artifact.
type Descriptor struct {
	// Product is the artifact name prefix.
	Product string
	// OS is the release host's operating system name (windows, mac, linux).
	OS string
	// Version is the dotted version string.
	Version string
	// Arch is the release host's architecture name (x64, x86).
	Arch string
	// Ext is the archive extension including the dot.
	Ext string
}

// NewDescriptor builds the descriptor of a product version for the running platform.
func NewDescriptor(product, version string) Descriptor {
	return Descriptor{
		Product: product,
		OS:      OSName(runtime.GOOS),
		Version: version,
		Arch:    ArchName(runtime.GOARCH),
		Ext:     DefaultArchiveExt,
	}
}

// Filename returns <product>-<os>-<version>-<arch><ext>.
func (d Descriptor) Filename() string {
	ext := d.Ext
	if ext == "" {
		ext = DefaultArchiveExt
	}

	return strings.Join([]string{d.Product, d.OS, d.Version, d.Arch}, "-") + ext
}

// StagingName is the transient directory an artifact unpacks into.
func (d Descriptor) StagingName() string {
	return StagingName(d.Product, d.Version)
}

// StagingName returns <product>-<version>.
func StagingName(product, version string) string {
	return product + "-" + version
}

// OSName maps GOOS to the names used by the release host.
func OSName(goos string) string {
	switch goos {
	case "darwin":
		return "mac"
	default:
		return goos
	}
}

// ArchName maps GOARCH to the names used by the release host.
func ArchName(goarch string) string {
	switch goarch {
	case "amd64", "arm64":
		return "x64"
	default:
		return "x86"
	}
}

// ParseFilename validates that name looks like an artifact of product and
// returns the version it carries. Directories in name are ignored.
func ParseFilename(product, name string) (string, error) {
	rest, ok := strings.CutPrefix(filepath.Base(name), product+"-")
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotAPackage, name)
	}

	match := artifactSuffix.FindStringSubmatch(rest)
	if match == nil {
		return "", fmt.Errorf("%w: %s", ErrNotAPackage, name)
	}

	return match[2], nil
}
