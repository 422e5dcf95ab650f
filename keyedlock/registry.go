// Package keyedlock provides a named-mutex registry: at most one caller runs
// per name at a time, with acquisition timeouts and context cancellation.
//
// A [Registry] backs the three per-key lock domains described by the cache
// coordinator (queue locks, file-write locks, evict-and-write locks). Entries
// are created lazily and removed once their refcount drops to zero, so the
// registry never grows unbounded with the lifetime of the process - only with
// the number of names concurrently in use.
package keyedlock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTimeout names the condition of a lock that could not be acquired within
// its timeout. [Registry.TryExecute] does not return it: it reports a
// timeout as (false, nil).
var ErrTimeout = errors.New("keyedlock: acquire timeout")

// entry is one named mutex plus the number of goroutines currently waiting
// on or holding it. The registry only ever touches entry fields while
// holding Registry.mu, so entry itself needs no lock of its own beyond the
// mutex callers acquire for the named critical section.
type entry struct {
	mu   sync.Mutex
	refs int
}

// Registry is a concurrent map of name to mutex, with lazy creation and
// refcounted release.
//
// The zero value is not usable; use [New]. Registry is safe for concurrent
// use by multiple goroutines.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// TryExecute acquires the mutex associated with name, runs body with the lock
// held, and releases it. It returns (true, err) if body ran - err is
// whatever body returned. It returns (false, nil) if the lock could not be
// acquired within timeout. It returns (false, ctx.Err()) if ctx is cancelled
// while waiting for the lock; cancellation while body itself is running is
// body's own responsibility to observe via ctx.
//
// Acquisition is fair in the sense that it defers to Go's runtime mutex,
// which does not guarantee strict FIFO but does bound starvation under
// normal scheduling.
func (r *Registry) TryExecute(ctx context.Context, name string, timeout time.Duration, body func(ctx context.Context) error) (bool, error) {
	e := r.acquireEntry(name)

	locked := make(chan struct{})

	go func() {
		e.mu.Lock()
		close(locked)
	}()

	select {
	case <-locked:
		defer func() {
			e.mu.Unlock()
			r.release(name, e)
		}()

		return true, body(ctx)
	case <-time.After(timeout):
		// We didn't get the lock in time, but the goroutine above may still
		// acquire it later - Lock() does not support cancellation. Let it
		// finish and release on its own turn; this TryExecute call's
		// reference to e is transferred to that goroutine, not dropped here,
		// so refs stays accurate until the mutex is actually released.
		go func() {
			<-locked
			e.mu.Unlock()
			r.release(name, e)
		}()

		return false, nil
	case <-ctx.Done():
		go func() {
			<-locked
			e.mu.Unlock()
			r.release(name, e)
		}()

		return false, ctx.Err()
	}
}

// acquireEntry returns the entry for name, creating it if absent, and bumps
// its refcount. Every acquireEntry must be matched by exactly one release.
func (r *Registry) acquireEntry(name string) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[name]
	if !ok {
		e = &entry{}
		r.entries[name] = e
	}

	e.refs++

	return e
}

// release drops a reference to the entry for name, removing it from the map
// once no goroutine is waiting on or holding it. Because refcount mutation
// and map lookup both happen under r.mu, a waiter that is about to call
// acquireEntry can never observe the entry removed out from under it: either
// it runs before the decrement that would remove the entry (and its own
// increment keeps it alive), or it runs after removal and allocates a fresh
// entry - there is no window where a name resolves to an orphaned mutex.
func (r *Registry) release(name string, e *entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e.refs--
	if e.refs == 0 {
		delete(r.entries, name)
	}
}

// Len reports the number of names currently tracked (held or waited on).
// Intended for tests asserting that the registry does not leak entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.entries)
}
