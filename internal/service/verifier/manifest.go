package verifier

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const (
	// ManifestName is the checksum manifest published next to every version.
	ManifestName = "shasums.json"
	// SignatureName is the detached armored signature of the manifest.
	SignatureName = ManifestName + ".sig"

	manifestSchemaName = "manifest.schema.json"
)

var (
	// ErrNoChecksum is returned when the manifest has no entry for the artifact.
	ErrNoChecksum = errors.New("no checksum available")
	// ErrInvalidManifest is returned when the manifest does not match its schema.
	ErrInvalidManifest = errors.New("invalid checksum manifest")
)

//go:embed schema/manifest.schema.json
var manifestSchema []byte

var compileSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(manifestSchemaName, bytes.NewReader(manifestSchema)); err != nil {
		return nil, fmt.Errorf("load manifest schema: %w", err)
	}

	return compiler.Compile(manifestSchemaName)
})

// Manifest maps artifact file names to hex digests.
type Manifest map[string]string

// ParseManifest validates data against the manifest schema and decodes it.
func ParseManifest(data []byte) (Manifest, error) {
	schema, err := compileSchema()
	if err != nil {
		return nil, err
	}

	var doc any
	if err = json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}

	if err = schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}

	var manifest Manifest
	if err = json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}

	return manifest, nil
}

// Lookup returns the digest recorded for filename.
func (m Manifest) Lookup(filename string) (string, error) {
	digest, ok := m[filename]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoChecksum, filename)
	}

	return digest, nil
}

// Marshal renders the manifest as indented JSON with sorted keys.
func (m Manifest) Marshal() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}
