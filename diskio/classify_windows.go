//go:build windows

package diskio

import (
	"errors"
	"syscall"

	"golang.org/x/sys/windows"
)

// classifyPlatform checks err against the Windows error codes for sharing
// and lock violations. Windows error codes are carried as the low 16 bits
// of the HRESULT a failed syscall would otherwise report, so the comparison
// masks to that range before comparing against the well-known constants
// from golang.org/x/sys/windows rather than hard-coding 0x20/0x21 inline.
func classifyPlatform(err error) Classification {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return Other
	}

	const lowWordMask = 0xFFFF

	code := uint32(errno) & lowWordMask

	switch code {
	case uint32(windows.ERROR_SHARING_VIOLATION), uint32(windows.ERROR_LOCK_VIOLATION):
		return Locked
	default:
		return Other
	}
}
