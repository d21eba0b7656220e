//go:build !unix && !windows

package platform

// Elevated is always false where privileges cannot be inspected.
func Elevated() bool {
	return false
}
