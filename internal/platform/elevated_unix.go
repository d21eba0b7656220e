//go:build unix

package platform

import "golang.org/x/sys/unix"

// Elevated reports whether the process runs as root.
func Elevated() bool {
	return unix.Geteuid() == 0
}
