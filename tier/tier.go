// Package tier defines the byte-store abstraction behind the session and
// long-lived cache tiers.
//
// Implementations MUST be byte-for-byte transparent: Read must return
// exactly the same []byte previously passed to Write for a key (no
// prepended metadata, no transcoding). Stores that transform internally
// (compression etc.) must fully reverse the transform.
//
// The keyspace "tc:<ns>:" is owned by tiercache. Foreign writes under it
// may be treated as corruption by strict record validation and deleted.
package tier

import (
	"context"
	"time"
)

// Store is a minimal string-keyed byte store. Must be safe for concurrent
// use. The TTL passed to Write is a hint: stores that support native
// expiry (e.g. Redis, Ristretto) should honor it, others may ignore it -
// the cache always re-checks expiry from the record itself on read.
type Store interface {
	// Read returns (value, true, nil) on hit and (nil, false, nil) on miss.
	// IO/remote errors return (nil, false, err).
	Read(ctx context.Context, key string) ([]byte, bool, error)

	// Write stores value under key with an optional TTL hint (0 = none).
	Write(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Remove deletes a key (best-effort; removing an absent key is not an
	// error).
	Remove(ctx context.Context, key string) error

	// Clear removes every key with the given prefix. An empty prefix
	// clears the whole store; stores backed by shared servers may refuse
	// it instead.
	Clear(ctx context.Context, prefix string) error

	// Close releases resources.
	Close(ctx context.Context) error
}
