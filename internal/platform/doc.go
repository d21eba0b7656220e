// Package platform isolates the operating system specific behaviour of the
// installer behind one Policy selected at process start.
//
// The policy decides how an artifact is unpacked (macOS keeps extended
// attributes by using ditto), how the staging directory is moved into place
// (Windows retries while security scanners hold new folders), whether
// executable bits exist, and whether old version directories may be purged.
package platform
