// Package cleanup defines the external metadata-layer seam the coordinator
// calls through: deriving paths for a key and bookkeeping which on-disk
// artifacts are in use, so a cache-size limit and an eviction policy can
// live outside the coordination engine itself.
//
// Both interfaces are declared out of scope for the coordination engine by
// design; this package also ships one reference implementation of each so
// the coordinator can run end to end without a real production metadata
// store wired in.
package cleanup

import (
	"context"
	"time"

	"github.com/calvinalkan/imgcache/keyedlock"
)

// Entry is the derived identity of a cache key, as produced by a
// [PathBuilder]. StringKey names the lock and queue entry for this key;
// PhysicalPath is where the artifact lives on disk; RelativePath is a
// display form suitable for logs.
type Entry struct {
	StringKey    string
	PhysicalPath string
	RelativePath string
}

// PathBuilder derives an [Entry] from an opaque key. Derive must be
// deterministic, and string key uniqueness must match physical path
// uniqueness: two keys that derive the same StringKey must derive the same
// PhysicalPath, and vice versa.
type PathBuilder interface {
	Derive(key []byte) Entry
}

// ReserveResult is the outcome of [Manager.TryReserveSpace].
type ReserveResult struct {
	Success bool
	Message string
}

// Manager is the external metadata layer: LRU bookkeeping, content-type
// lookup, and cache-size enforcement. Implementations must take per-key
// locks from the evict registry passed to TryReserveSpace before evicting
// anything, so a key never gets evicted while it is being read or written
// under that same key.
type Manager interface {
	// NotifyUsed fire-and-forget records that entry was just accessed, for
	// LRU purposes. Implementations must not block the caller on I/O.
	NotifyUsed(entry Entry)

	// GetContentType looks up a previously recorded content type for
	// entry, or returns ("", false) if unknown.
	GetContentType(ctx context.Context, entry Entry) (string, bool)

	// TryReserveSpace ensures that writing size bytes for entry stays
	// within the configured cache budget, evicting other entries first if
	// allowEviction is set. Eviction of any other key must go through
	// evictLocks to avoid racing a concurrent reader or writer of that
	// key.
	TryReserveSpace(ctx context.Context, entry Entry, contentType string, size int64, allowEviction bool, evictLocks *keyedlock.Registry) ReserveResult

	// MarkFileCreated persists metadata for entry after a write attempt,
	// regardless of its outcome.
	MarkFileCreated(entry Entry, contentType string, size int64, at time.Time)
}
