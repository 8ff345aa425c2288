// Package tiercache implements a tiered, dependency-aware cache engine:
// a fast in-process tier of live entries plus up to two slower byte-store
// tiers (session-scoped and long-lived), with size-bounded eviction,
// TTL expiry, cascade invalidation and pluggable fetch strategies.
//
// Components:
//   - Cache[V]: the manager. Owns the fast tier, consults the session and
//     persistent tiers on miss (first hit wins), enforces capacity with a
//     frequency/idle hybrid eviction score, sweeps expired entries
//     periodically and tracks hit/miss/eviction stats.
//   - tier.Store: opaque byte store with TTL hints (e.g. memory, BigCache,
//     Ristretto, Redis). Tier faults are logged and degrade to a miss;
//     they never reach the caller.
//   - codec.Codec[V]: (de)serializes V for compaction and persistence.
//   - Strategy[V]: wraps a caller-supplied fetcher with one of five
//     policies (cache-first, network-first, cache-only, network-only,
//     stale-while-revalidate).
//
// Keys in backing stores are namespaced as
//
//	tc:<ns>:<key>
//
// so unrelated data in a shared store is never touched.
//
// Invalidation is by cascade: deleting a key also deletes every key that
// declared it as a dependency (one level, not recursive).
package tiercache
