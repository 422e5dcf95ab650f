//go:build !windows

package diskio

import (
	"errors"
	"syscall"
)

// classifyPlatform checks err against the Unix errno values the spec lists
// as proxies for "file locked": EAGAIN (11), EBUSY (16), and EACCES (13).
//
// EACCES is not EPERM; it is kept anyway per the spec's explicit
// instruction, since on some network filesystems a permission-denied
// response is the only observable signal of a conflicting lock held by
// another writer.
func classifyPlatform(err error) Classification {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return Other
	}

	switch errno {
	case syscall.EAGAIN, syscall.EBUSY, syscall.EACCES:
		return Locked
	default:
		return Other
	}
}
