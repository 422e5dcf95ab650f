// Package fs provides the thin filesystem seam the cache writes through.
//
// It exists so tests can substitute a fake implementation instead of
// touching the real disk, and so the rest of the module (filewriter, the
// coordinator's fast disk probe) depends on a narrow interface rather than
// the os package directly.
package fs

import (
	"io"
	"os"
)

// File is the subset of *os.File the cache needs: read, write, seek, stat,
// and the raw descriptor for platform-specific error classification.
type File interface {
	io.ReadWriteCloser
	io.Seeker

	Fd() uintptr
	Stat() (os.FileInfo, error)
}

// FS defines the filesystem operations the cache performs. All methods
// mirror their os package equivalents with identical error semantics, so
// callers can use errors.Is(err, os.ErrNotExist) etc. against results from
// any implementation.
type FS interface {
	// Open opens a file for reading. See [os.Open].
	Open(path string) (File, error)

	// OpenFile opens a file with explicit flags and permissions. See
	// [os.OpenFile].
	OpenFile(path string, flag int, perm os.FileMode) (File, error)

	// MkdirAll creates a directory and all necessary parents. See
	// [os.MkdirAll].
	MkdirAll(path string, perm os.FileMode) error

	// Stat returns file info, or an error satisfying os.IsNotExist if the
	// path does not exist. See [os.Stat].
	Stat(path string) (os.FileInfo, error)

	// Remove deletes a single file. See [os.Remove].
	Remove(path string) error

	// Rename atomically moves oldpath to newpath on the same filesystem.
	// See [os.Rename].
	Rename(oldpath, newpath string) error
}

// Compile-time interface check.
var _ File = (*os.File)(nil)
