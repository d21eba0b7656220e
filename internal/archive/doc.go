// Package archive unpacks release artifacts.
//
// Extractor understands zip, tar, tar.gz, tar.xz and tar.zst archives and
// refuses entries that would land outside the destination directory.
package archive
