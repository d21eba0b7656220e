package platform

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// DittoExtractor unpacks zip archives with macOS ditto so that extended
// attributes used by code signing and quarantine survive extraction.
type DittoExtractor struct {
	// Binary is the ditto executable, overridable for tests.
	Binary string
}

// NewDittoExtractor returns an extractor calling the system ditto.
func NewDittoExtractor() *DittoExtractor {
	return &DittoExtractor{Binary: "ditto"}
}

// Extract runs `ditto -xk <archive> <dest>`.
func (d *DittoExtractor) Extract(ctx context.Context, archivePath, dest string) error {
	var stderr bytes.Buffer

	//nolint:gosec // Arguments are file paths controlled by the updater.
	cmd := exec.CommandContext(ctx, d.Binary, "-xk", archivePath, dest)
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ditto %s: %w: %s", archivePath, err, strings.TrimSpace(stderr.String()))
	}

	return nil
}
