package dashboard

import (
	"sync"
	"time"

	"github.com/virtdash/virtdash/internal/models"
)

// table is a TTL cache for one data category with stale-overwrite
// protection. Every fetch claims a sequence number before it starts; a
// completed fetch may only install its result if no later fetch has
// already installed one for the same key. Slow responses that arrive
// after a newer fetch are discarded.
type table[T any] struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	nextSeq uint64
	entries map[int]tableEntry[T]
}

type tableEntry[T any] struct {
	value     T
	seq       uint64
	fetchedAt time.Time
}

func newTable[T any](ttl time.Duration, now func() time.Time) *table[T] {
	return &table[T]{
		ttl:     ttl,
		now:     now,
		entries: make(map[int]tableEntry[T]),
	}
}

// begin claims the sequence number for a fetch that is about to start.
func (t *table[T]) begin() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextSeq++
	return t.nextSeq
}

// put installs a fetch result. Returns false when a fetch that began
// later has already installed a value for this key.
func (t *table[T]) put(key int, seq uint64, value T) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if existing, ok := t.entries[key]; ok && existing.seq > seq {
		return false
	}
	t.entries[key] = tableEntry[T]{value: value, seq: seq, fetchedAt: t.now()}
	return true
}

// get returns the cached value when present and within TTL.
func (t *table[T]) get(key int) (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.entries[key]
	if !ok {
		var zero T
		return zero, false
	}
	if t.now().Sub(entry.fetchedAt) >= t.ttl {
		var zero T
		return zero, false
	}
	return entry.value, true
}

// peek returns the cached value even when stale, with its fetch time.
func (t *table[T]) peek(key int) (T, time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.entries[key]
	if !ok {
		var zero T
		return zero, time.Time{}, false
	}
	return entry.value, entry.fetchedAt, true
}

// invalidate drops the entry for a key without disturbing the sequence
// counter, so an in-flight fetch can still land.
func (t *table[T]) invalidate(key int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, key)
}

func (t *table[T]) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// globalKey is the map key used by categories that have a single
// instance rather than per-server entries.
const globalKey = 0

// Cache holds the per-category TTL tables for everything virtdashd
// mirrors from the control plane. Each category carries its own
// staleness window; none of the data here is authoritative.
type Cache struct {
	Servers   *table[models.ServerSnapshot]
	VNC       *table[models.VncStatus]
	Traffic   *table[[]models.TrafficPeriod]
	Templates *table[[]models.OSTemplate]
	Pinned    *table[models.OSTemplate]
	Branding  *table[models.Branding]
}

// CacheTTLs configures the staleness window per category.
type CacheTTLs struct {
	Server    time.Duration
	VNC       time.Duration
	Traffic   time.Duration
	Templates time.Duration
	Branding  time.Duration
}

// NewCache builds an empty cache. The now function is injectable for
// tests and defaults to time.Now.
func NewCache(ttls CacheTTLs, now func() time.Time) *Cache {
	if now == nil {
		now = time.Now
	}
	return &Cache{
		Servers:   newTable[models.ServerSnapshot](ttls.Server, now),
		VNC:       newTable[models.VncStatus](ttls.VNC, now),
		Traffic:   newTable[[]models.TrafficPeriod](ttls.Traffic, now),
		Templates: newTable[[]models.OSTemplate](ttls.Templates, now),
		Pinned:    newTable[models.OSTemplate](ttls.Templates, now),
		Branding:  newTable[models.Branding](ttls.Branding, now),
	}
}
