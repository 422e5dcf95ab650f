package cleanup

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/calvinalkan/imgcache/keyedlock"
)

// record is the metadata InMemoryManager keeps per entry.
type record struct {
	contentType string
	size        int64
	lastUsed    time.Time
	elem        *list.Element // position in the LRU list, keyed by StringKey
}

// InMemoryManager is a reference/test double for [Manager]: it tracks
// (size, content-type, last-used) per entry under a mutex-guarded map and
// evicts least-recently-used entries when TryReserveSpace would otherwise
// exceed maxBytes. It is explicitly in-process only, with no durability
// across restarts, and does not claim to behave like a real SQLite- or
// bbolt-backed metadata store.
type InMemoryManager struct {
	mu       sync.Mutex
	maxBytes int64
	used     int64
	records  map[string]*record
	lru      *list.List // front = most recently used
	onEvict  func(entry Entry)
}

// NewInMemoryManager returns a Manager that allows at most maxBytes of
// tracked artifact bytes before it starts evicting the least-recently-used
// entries. onEvict, if non-nil, is called synchronously for every entry
// evicted to make space.
func NewInMemoryManager(maxBytes int64, onEvict func(entry Entry)) *InMemoryManager {
	return &InMemoryManager{
		maxBytes: maxBytes,
		records:  make(map[string]*record),
		lru:      list.New(),
		onEvict:  onEvict,
	}
}

func (m *InMemoryManager) NotifyUsed(entry Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.records[entry.StringKey]
	if !ok {
		return
	}

	r.lastUsed = time.Now()
	m.lru.MoveToFront(r.elem)
}

func (m *InMemoryManager) GetContentType(_ context.Context, entry Entry) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.records[entry.StringKey]
	if !ok {
		return "", false
	}

	return r.contentType, true
}

func (m *InMemoryManager) TryReserveSpace(_ context.Context, entry Entry, _ string, size int64, allowEviction bool, evictLocks *keyedlock.Registry) ReserveResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	effectiveUsed := m.used

	if existing, ok := m.records[entry.StringKey]; ok {
		// Already accounted for; re-reserving the same key's existing size
		// is a no-op regardless of budget. Growing it only needs to budget
		// for the delta, not double-count the bytes it already holds.
		if size <= existing.size {
			return ReserveResult{Success: true}
		}

		effectiveUsed -= existing.size
	}

	if m.maxBytes <= 0 {
		return ReserveResult{Success: true}
	}

	for effectiveUsed+size > m.maxBytes {
		if !allowEviction {
			return ReserveResult{Success: false, Message: "over budget and eviction not allowed"}
		}

		victim := m.lru.Back()
		if victim == nil {
			return ReserveResult{Success: false, Message: "cache full: no evictable entries remain"}
		}

		key := victim.Value.(string) //nolint:forcetypeassert

		if key == entry.StringKey {
			// Don't evict the entry we're trying to make room for.
			prev := victim.Prev()
			if prev == nil {
				return ReserveResult{Success: false, Message: "cache full: requested size exceeds budget"}
			}

			key = prev.Value.(string) //nolint:forcetypeassert
			victim = prev
		}

		victimSize := int64(0)
		if r, ok := m.records[key]; ok {
			victimSize = r.size
		}

		if evictLocks != nil {
			ran, err := evictLocks.TryExecute(context.Background(), key, time.Second, func(context.Context) error {
				m.evictLocked(key, victim)
				return nil
			})
			if !ran {
				if err != nil {
					return ReserveResult{Success: false, Message: fmt.Sprintf("eviction cancelled for %q", key)}
				}

				return ReserveResult{Success: false, Message: fmt.Sprintf("eviction lock timed out for %q", key)}
			}
		} else {
			m.evictLocked(key, victim)
		}

		effectiveUsed -= victimSize
	}

	return ReserveResult{Success: true}
}

// evictLocked removes key's record and LRU node. Callers must already hold
// m.mu and (if using a registry) the corresponding evict lock.
func (m *InMemoryManager) evictLocked(key string, elem *list.Element) {
	r, ok := m.records[key]
	if !ok {
		return
	}

	m.used -= r.size
	delete(m.records, key)
	m.lru.Remove(elem)

	if m.onEvict != nil {
		m.onEvict(Entry{StringKey: key})
	}
}

func (m *InMemoryManager) MarkFileCreated(entry Entry, contentType string, size int64, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.records[entry.StringKey]; ok {
		m.used += size - existing.size
		existing.size = size
		existing.contentType = contentType
		existing.lastUsed = at
		m.lru.MoveToFront(existing.elem)

		return
	}

	elem := m.lru.PushFront(entry.StringKey)
	m.records[entry.StringKey] = &record{
		contentType: contentType,
		size:        size,
		lastUsed:    at,
		elem:        elem,
	}
	m.used += size
}

// UsedBytes reports the sum of tracked entry sizes, for tests.
func (m *InMemoryManager) UsedBytes() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.used
}

// Compile-time interface check.
var _ Manager = (*InMemoryManager)(nil)
