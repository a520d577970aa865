//go:build !windows

package filesystem

import (
	"os"
	"syscall"
)

// isCrossDeviceError reports whether err is the result of attempting to
// rename a file across filesystem boundaries, in which case WriteFileAtomic
// must fall back to a copy.
func isCrossDeviceError(err error) bool {
	linkErr, ok := err.(*os.LinkError)
	if !ok {
		return false
	}
	return linkErr.Err == syscall.EXDEV
}
