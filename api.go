package tiercache

import (
	"context"
	"time"

	c "github.com/unkn0wn-root/tiercache/codec"
	"github.com/unkn0wn-root/tiercache/tier"
)

// Level names a storage tier.
type Level string

const (
	LevelFast       Level = "fast"       // in-process live entries (volatile)
	LevelSession    Level = "session"    // session-scoped byte store
	LevelPersistent Level = "persistent" // long-lived byte store
)

// SizeFunc estimates the byte footprint of an entry from its encoded form.
// Substitute a more accurate estimator without changing the eviction contract.
type SizeFunc func(key string, encoded []byte) int64

// Fetcher produces a fresh value, typically from the network or a database.
// It is supplied by the caller; the cache never imposes a timeout on it.
type Fetcher[V any] func(ctx context.Context) (V, error)

// SetOptions tune a single write. The zero value is valid:
// default TTL, fast tier only, no category, no dependencies.
type SetOptions struct {
	TTL          time.Duration  // 0 => Options.DefaultTTL
	Category     string         // label for bulk clearing and stats grouping
	Level        Level          // tier to write to; "" => LevelFast
	Dependencies []string       // keys whose deletion cascades to this entry
	Metadata     map[string]any // opaque caller annotations
	Persist      bool           // also mirror to the persistent tier
}

// GetOptions tune a single read. The zero value reads all tiers in order
// (fast, session, persistent), rejects expired entries and touches
// access stats.
type GetOptions struct {
	Level      Level // consult only this tier; "" => all, first hit wins
	AllowStale bool  // return an expired entry instead of missing
	NoTouch    bool  // do not update access stats on hit
}

// WarmEntry is one unit of work for Cache.Warm.
type WarmEntry[V any] struct {
	Key     string
	Fetch   Fetcher[V]
	Options SetOptions
}

// Cache is the tiered cache manager. All methods are safe for concurrent
// use. Storage-tier faults never propagate: writes silently fail and reads
// silently miss (see package doc).
type Cache[V any] interface {
	// Set stores value under key. It reports false only when the cache is
	// disabled or the value cannot be encoded; tier faults still report true.
	Set(ctx context.Context, key string, value V, opts SetOptions) bool

	// Get returns the cached value. A miss (absent, expired, or decode
	// failure) reports ok=false; expired entries encountered are deleted.
	Get(ctx context.Context, key string, opts GetOptions) (v V, ok bool)

	// Delete removes key from every tier and cascades to its dependents
	// (one level).
	Delete(ctx context.Context, key string)

	// Has reports whether any tier holds a non-expired entry for key.
	// Tiers are not guaranteed consistent with each other.
	Has(ctx context.Context, key string) bool

	// Clear wipes all tiers and the dependency graph.
	Clear(ctx context.Context)

	// ClearCategory removes fast-tier entries with the given category.
	// Persistent tiers are not touched (documented asymmetry).
	ClearCategory(ctx context.Context, category string)

	// Extend raises the entry's expiry to at least now+additional.
	// It never shortens the expiry. Reports whether the key was found live.
	Extend(ctx context.Context, key string, additional time.Duration) bool

	// Stale reports whether the fast tier holds an entry for key that is
	// inside the stale-tolerance window (or already expired). Advisory only.
	Stale(ctx context.Context, key string) bool

	// Stats returns a snapshot of counters and fast-tier accounting.
	Stats() Stats

	// Warm resolves all fetchers concurrently and stores the successes.
	// Individual failures are logged and do not abort the batch.
	Warm(ctx context.Context, entries []WarmEntry[V])

	// Preload returns the cached value if present, otherwise fetches,
	// stores and returns it. Fetch errors are returned to the caller.
	Preload(ctx context.Context, key string, fetch Fetcher[V], opts SetOptions) (V, error)

	Enabled() bool
	Close(ctx context.Context) error
}

// Options tune a cache instance. Namespace and Codec are required; every
// other field has a sensible default.
type Options[V any] struct {
	// Required
	Namespace string     // isolates this cache's keys in shared stores
	Codec     c.Codec[V] // value (de)serializer for compaction/persistence

	Session    tier.Store // session-scoped tier; nil => tier disabled
	Persistent tier.Store // long-lived tier; nil => tier disabled

	Logger Logger // nil => NopLogger
	Hooks  Hooks  // nil => NopHooks

	DefaultTTL       time.Duration // 0 => 5m
	StaleTolerance   time.Duration // 0 => 30s before expiry counts as stale
	CleanupInterval  time.Duration // 0 => 1m
	MaxEntries       int           // fast tier entry cap; 0 => 1024
	MaxBytes         int64         // fast tier size cap; 0 => 64 MiB
	CompactThreshold int64         // store encoded form above this; 0 => 16 KiB

	Sizer    SizeFunc // nil => len(encoded)
	Disabled bool     // a disabled cache misses on reads, ignores writes
}

// New builds a Cache from opts.
func New[V any](opts Options[V]) (Cache[V], error) {
	return newManager[V](opts)
}
