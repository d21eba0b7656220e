// Package packager prepares the release metadata consumed by the updater.
//
// It hashes every artifact of one version, writes the checksum manifest next
// to them and, for stable releases, the latest pointer. The resulting files
// are uploaded to the release host.
package packager
