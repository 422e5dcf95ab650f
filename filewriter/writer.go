// Package filewriter writes a single artifact to disk via a sibling
// temporary file plus an atomic rename, serialized per destination path by
// a [keyedlock.Registry].
package filewriter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	stdatomic "sync/atomic"
	"time"

	natomic "github.com/natefinch/atomic"

	"github.com/calvinalkan/imgcache/fs"
	"github.com/calvinalkan/imgcache/keyedlock"
)

// Outcome is the result of [Writer.TryWrite].
type Outcome int

const (
	// FileCreated means the artifact was written and is now at the
	// destination path.
	FileCreated Outcome = iota
	// FileAlreadyExists means the destination already existed and was left
	// untouched (verifyExistsFirst caught it, or, with no MoveFunc
	// configured, the default rename-if-not-exists check found it). A
	// configured MoveFunc never yields this outcome; its failures are
	// returned as errors.
	FileAlreadyExists
	// LockTimeout means the per-path lock could not be acquired in time;
	// nothing was written.
	LockTimeout
)

func (o Outcome) String() string {
	switch o {
	case FileCreated:
		return "FileCreated"
	case FileAlreadyExists:
		return "FileAlreadyExists"
	case LockTimeout:
		return "LockTimeout"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Entry identifies the destination for a write: the stable key used to
// name the per-path lock, and the physical path to write to.
type Entry struct {
	StringKey    string
	PhysicalPath string
}

// MoveFunc atomically replaces dest with the contents of tempPath. It is
// the injectable "move file overwrite" hook from the spec's configuration:
// when set, it is used instead of the writer's own rename-if-not-exists
// default, letting a caller plug in a platform-specific atomic-replace
// primitive.
type MoveFunc func(tempPath, dest string) error

const (
	dirPerm  = 0o755
	filePerm = 0o644
)

// Writer writes artifacts to disk under a per-path lock.
type Writer struct {
	fs    fs.FS
	locks *keyedlock.Registry
	move  MoveFunc
}

// New returns a Writer that serializes writes through locks and uses move
// to replace the destination file, or the default rename-if-not-exists
// behavior when move is nil.
func New(filesystem fs.FS, locks *keyedlock.Registry, move MoveFunc) *Writer {
	return &Writer{fs: filesystem, locks: locks, move: move}
}

// TryWrite writes the bytes produce emits into entry.PhysicalPath.
//
// The whole operation - existence check, directory creation, temp write,
// and move into place - runs under the per-StringKey lock in locks, with
// the given timeout. If verifyExistsFirst is true and the destination
// already exists when the lock is acquired, TryWrite returns
// FileAlreadyExists without invoking produce.
//
// Any I/O error (other than the destination already existing, which is a
// normal outcome, not an error) is returned, never swallowed.
func (w *Writer) TryWrite(ctx context.Context, entry Entry, produce func(io.Writer) error, verifyExistsFirst bool, timeout time.Duration) (Outcome, error) {
	var (
		outcome Outcome
		writeErr error
	)

	ran, lockErr := w.locks.TryExecute(ctx, entry.StringKey, timeout, func(ctx context.Context) error {
		outcome, writeErr = w.writeLocked(ctx, entry, produce, verifyExistsFirst)
		return nil
	})

	if !ran {
		if lockErr != nil {
			// Context was cancelled while waiting for the lock, not a plain
			// timeout; surface it so callers can distinguish shutdown from
			// contention.
			return LockTimeout, lockErr
		}

		return LockTimeout, nil
	}

	return outcome, writeErr
}

func (w *Writer) writeLocked(_ context.Context, entry Entry, produce func(io.Writer) error, verifyExistsFirst bool) (Outcome, error) {
	if verifyExistsFirst {
		if _, err := w.fs.Stat(entry.PhysicalPath); err == nil {
			return FileAlreadyExists, nil
		} else if !os.IsNotExist(err) {
			return 0, fmt.Errorf("stat destination: %w", err)
		}
	}

	dir := filepath.Dir(entry.PhysicalPath)
	if err := w.fs.MkdirAll(dir, dirPerm); err != nil {
		return 0, fmt.Errorf("create parent directory: %w", err)
	}

	tempPath, err := w.writeTemp(dir, produce)
	if err != nil {
		return 0, err
	}

	if w.move != nil {
		if err := w.move(tempPath, entry.PhysicalPath); err != nil {
			_ = w.fs.Remove(tempPath)
			return 0, fmt.Errorf("move into place: %w", err)
		}

		return FileCreated, nil
	}

	// Default: rename-if-not-exists. Check-then-rename is still racy against
	// a writer outside this lock domain, but every writer that matters here
	// goes through the same per-StringKey lock, so within this process the
	// check is authoritative.
	if _, err := w.fs.Stat(entry.PhysicalPath); err == nil {
		_ = w.fs.Remove(tempPath)
		return FileAlreadyExists, nil
	} else if !os.IsNotExist(err) {
		_ = w.fs.Remove(tempPath)
		return 0, fmt.Errorf("stat destination: %w", err)
	}

	if err := w.fs.Rename(tempPath, entry.PhysicalPath); err != nil {
		_ = w.fs.Remove(tempPath)
		return 0, fmt.Errorf("rename into place: %w", err)
	}

	return FileCreated, nil
}

var tempFileCounter stdatomic.Uint64

const maxTempFileAttempts = 10000

// writeTemp writes produce's output to a fresh sibling temp file in dir and
// returns its path. The caller is responsible for moving or removing it.
func (w *Writer) writeTemp(dir string, produce func(io.Writer) error) (string, error) {
	for range maxTempFileAttempts {
		seq := tempFileCounter.Add(1)
		path := filepath.Join(dir, fmt.Sprintf(".imgcache-tmp-%d", seq))

		file, err := w.fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePerm)
		if err != nil {
			if os.IsExist(err) {
				continue
			}

			return "", fmt.Errorf("create temp file: %w", err)
		}

		writeErr := produce(file)
		closeErr := file.Close()

		if writeErr != nil {
			_ = w.fs.Remove(path)
			return "", fmt.Errorf("write temp file: %w", writeErr)
		}

		if closeErr != nil {
			_ = w.fs.Remove(path)
			return "", fmt.Errorf("close temp file: %w", closeErr)
		}

		return path, nil
	}

	return "", errors.New("filewriter: exhausted temp file name attempts")
}

// AtomicRename is a [MoveFunc] built on github.com/natefinch/atomic,
// replacing dest unconditionally (not rename-if-not-exists). Callers that
// want "last writer wins" semantics instead of FileAlreadyExists detection
// can pass this as the Writer's move function.
func AtomicRename(tempPath, dest string) error {
	f, err := os.Open(tempPath)
	if err != nil {
		return fmt.Errorf("open temp file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := natomic.WriteFile(dest, f); err != nil {
		return fmt.Errorf("atomic write: %w", err)
	}

	return os.Remove(tempPath)
}
