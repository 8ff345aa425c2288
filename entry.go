package tiercache

import (
	"time"

	c "github.com/unkn0wn-root/tiercache/codec"
)

// entry is one cached value plus the bookkeeping needed for expiry and
// eviction decisions. Entries are created on Set and mutated only by
// internal bookkeeping (access stats) afterwards.
//
// When the size estimate crosses the compaction threshold the encoded form
// is kept instead of the live value; reads decode a fresh copy and the
// stored form stays compacted.
type entry[V any] struct {
	key       string
	value     V      // live form; zero when compacted
	raw       []byte // encoded form; retained when compacted
	compacted bool

	createdAt    time.Time
	expiresAt    time.Time
	lastAccessed time.Time
	accessCount  uint64

	size     int64
	category string
	deps     []string
	metadata map[string]any
}

// newEntry builds an entry. encoded may be nil when the codec could not
// produce it; such entries stay live and report the given size (usually 0).
func newEntry[V any](key string, value V, encoded []byte, size, compactAbove int64, now time.Time, ttl time.Duration, opts SetOptions) *entry[V] {
	e := &entry[V]{
		key:          key,
		createdAt:    now,
		expiresAt:    now.Add(ttl),
		lastAccessed: now,
		size:         size,
		category:     opts.Category,
		deps:         opts.Dependencies,
		metadata:     opts.Metadata,
	}
	if encoded != nil && compactAbove > 0 && size >= compactAbove {
		e.raw = encoded
		e.compacted = true
	} else {
		e.value = value
	}
	return e
}

// get returns the value, decoding the compacted form when needed. With
// touch it updates access stats; without, it has no side effects.
func (e *entry[V]) get(cd c.Codec[V], touch bool, now time.Time) (V, error) {
	if touch {
		e.accessCount++
		e.lastAccessed = now
	}
	if !e.compacted {
		return e.value, nil
	}
	return cd.Decode(e.raw)
}

func (e *entry[V]) expired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// stale reports whether the entry is inside the tolerance window before
// expiry. Staleness is advisory: a stale entry is still usable.
func (e *entry[V]) stale(now time.Time, tolerance time.Duration) bool {
	return now.After(e.expiresAt.Add(-tolerance))
}

// extend raises expiresAt to max(expiresAt, now+additional); never shortens.
func (e *entry[V]) extend(now time.Time, additional time.Duration) {
	if next := now.Add(additional); next.After(e.expiresAt) {
		e.expiresAt = next
	}
}
