package packager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/oshokin/agent-updater/internal/config"
	"github.com/oshokin/agent-updater/internal/domain/release"
	"github.com/oshokin/agent-updater/internal/logger"
	"github.com/oshokin/agent-updater/internal/service/verifier"
)

// LatestFilename is the pointer file read by the stable channel.
const LatestFilename = "latest.txt"

// metadataMode is used for generated files meant for upload.
const metadataMode os.FileMode = 0o644

var (
	// errNoArtifacts is returned when the directory holds no artifact of the product.
	errNoArtifacts = errors.New("no artifacts found")
	// errMixedVersions is returned when artifacts of several versions share the directory.
	errMixedVersions = errors.New("artifacts of several versions found")
	// errDirRequired is returned when no directory is given.
	errDirRequired = errors.New("artifact directory must be provided")
)

// Options contains inputs for the packager entry point.
type Options struct {
	// Dir holds the artifacts of one version.
	Dir string
	// Product is the artifact name prefix.
	Product string
	// Version restricts packaging to artifacts of this version. Empty means
	// the single version found in Dir.
	Version string
	// Algorithm is the manifest digest algorithm.
	Algorithm string
	// WriteLatest also writes the latest pointer.
	WriteLatest bool
	// ReleasesURL is only used to print upload instructions.
	ReleasesURL string
}

// Result lists what Run produced.
type Result struct {
	// Version is the packaged version.
	Version string
	// Manifest maps artifact names to digests.
	Manifest verifier.Manifest
	// Files are the generated metadata files.
	Files []string
}

// packager prepares release metadata for one directory.
// It is unexported; callers should use Run, which encapsulates setup and validation.
type packager struct {
	opts    *Options
	version string
	files   []string
}

// Run executes the packaging workflow.
func Run(ctx context.Context, opts *Options) (*Result, error) {
	ctx = logger.WithName(ctx, "packager")

	pkg, err := newPackager(opts)
	if err != nil {
		return nil, fmt.Errorf("initialize packager: %w", err)
	}

	result, err := pkg.run(ctx)
	if err != nil {
		return nil, fmt.Errorf("packager failed: %w", err)
	}

	logger.Info(ctx, "Packager completed successfully")

	return result, nil
}

func newPackager(opts *Options) (*packager, error) {
	if opts.Dir == "" {
		return nil, errDirRequired
	}

	if opts.Product == "" {
		opts.Product = config.DefaultProduct
	}

	if opts.Algorithm == "" {
		opts.Algorithm = config.DefaultChecksumAlgorithm
	}

	if _, err := verifier.NewHash(opts.Algorithm); err != nil {
		return nil, err
	}

	pkg := &packager{opts: opts}

	if err := pkg.collect(); err != nil {
		return nil, err
	}

	return pkg, nil
}

// collect finds the artifacts and settles the version.
func (p *packager) collect() error {
	entries, err := os.ReadDir(p.opts.Dir)
	if err != nil {
		return fmt.Errorf("list %s: %w", p.opts.Dir, err)
	}

	versions := make(map[string]struct{})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		version, parseErr := release.ParseFilename(p.opts.Product, entry.Name())
		if parseErr != nil {
			continue
		}

		if p.opts.Version != "" && version != p.opts.Version {
			continue
		}

		versions[version] = struct{}{}
		p.files = append(p.files, entry.Name())
	}

	switch len(versions) {
	case 0:
		return fmt.Errorf("%w: %s-*", errNoArtifacts, p.opts.Product)
	case 1:
		for version := range versions {
			p.version = version
		}
	default:
		return fmt.Errorf("%w, pass a version", errMixedVersions)
	}

	slices.Sort(p.files)

	return nil
}

func (p *packager) run(ctx context.Context) (*Result, error) {
	logger.InfoKV(ctx, "Hashing artifacts", "version", p.version, "count", len(p.files))

	manifest := make(verifier.Manifest, len(p.files))

	for _, name := range p.files {
		digest, err := verifier.HashFile(filepath.Join(p.opts.Dir, name), p.opts.Algorithm)
		if err != nil {
			return nil, err
		}

		manifest[name] = digest
	}

	contents, err := manifest.Marshal()
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}

	// The manifest must pass the schema the verifier enforces.
	if _, err = verifier.ParseManifest(contents); err != nil {
		return nil, err
	}

	result := &Result{
		Version:  p.version,
		Manifest: manifest,
	}

	manifestPath := filepath.Join(p.opts.Dir, verifier.ManifestName)
	if err = os.WriteFile(manifestPath, contents, metadataMode); err != nil {
		return nil, fmt.Errorf("write manifest: %w", err)
	}

	result.Files = append(result.Files, manifestPath)

	if p.opts.WriteLatest {
		latestPath := filepath.Join(p.opts.Dir, LatestFilename)
		if err = os.WriteFile(latestPath, []byte(p.version+"\n"), metadataMode); err != nil {
			return nil, fmt.Errorf("write latest pointer: %w", err)
		}

		result.Files = append(result.Files, latestPath)
	}

	p.printNextSteps(ctx)

	return result, nil
}

// printNextSteps logs human-readable guidance for uploading the release.
func (p *packager) printNextSteps(ctx context.Context) {
	base := strings.TrimSuffix(p.opts.ReleasesURL, "/")
	if base == "" {
		base = "<releases_url>"
	}

	var builder strings.Builder

	builder.WriteString("You should upload the following files to the folder ")
	builder.WriteString(base + "/" + p.version)
	builder.WriteString(":\n")
	builder.WriteString(strings.Join(append(slices.Clone(p.files), verifier.ManifestName), ",\n"))

	if p.opts.WriteLatest {
		builder.WriteString("\n\nThen replace ")
		builder.WriteString(base + "/" + LatestFilename)
		builder.WriteString(" to publish the version on the stable channel.")
	}

	logger.Info(ctx, builder.String())
}
