package tiercache

import (
	"context"
	"fmt"
)

// Policy selects how a Strategy reconciles cache state with a live fetch.
type Policy string

const (
	// CacheFirst returns the cached value when present, fetching only on
	// a miss.
	CacheFirst Policy = "cache-first"
	// NetworkFirst always fetches; on fetch failure it falls back to the
	// cache (stale allowed) and rethrows the fetch error only when
	// nothing is cached.
	NetworkFirst Policy = "network-first"
	// CacheOnly never fetches; a miss yields a NotCachedError.
	CacheOnly Policy = "cache-only"
	// NetworkOnly always fetches and never reads or writes the cache.
	NetworkOnly Policy = "network-only"
	// StaleWhileRevalidate returns the cached value immediately and, when
	// it is stale, refreshes it in the background.
	StaleWhileRevalidate Policy = "stale-while-revalidate"
)

// Strategy wraps a caller-supplied fetcher with a fetch/cache policy.
// The policy is fixed for the strategy's lifetime.
type Strategy[V any] struct {
	cache  Cache[V]
	policy Policy
	log    Logger
	hooks  Hooks
}

// NewStrategy builds a Strategy over cache with the given policy.
func NewStrategy[V any](cache Cache[V], policy Policy) (*Strategy[V], error) {
	switch policy {
	case CacheFirst, NetworkFirst, CacheOnly, NetworkOnly, StaleWhileRevalidate:
	default:
		return nil, fmt.Errorf("tiercache: unknown policy %q", policy)
	}
	s := &Strategy[V]{cache: cache, policy: policy, log: NopLogger{}, hooks: NopHooks{}}
	if m, ok := cache.(*manager[V]); ok {
		s.log = m.log
		s.hooks = m.hooks
	}
	return s, nil
}

func (s *Strategy[V]) Policy() Policy { return s.policy }

// Execute resolves key per the strategy's policy. opts applies to any
// cache write the policy performs.
func (s *Strategy[V]) Execute(ctx context.Context, key string, fetch Fetcher[V], opts SetOptions) (V, error) {
	var zero V
	switch s.policy {
	case CacheFirst:
		if v, ok := s.cache.Get(ctx, key, GetOptions{}); ok {
			return v, nil
		}
		return s.fetchAndStore(ctx, key, fetch, opts)

	case NetworkFirst:
		v, err := fetch(ctx)
		if err == nil {
			s.cache.Set(ctx, key, v, opts)
			return v, nil
		}
		if cv, ok := s.cache.Get(ctx, key, GetOptions{AllowStale: true}); ok {
			s.log.Debug("network-first fell back to cache", Fields{"key": key, "err": err})
			return cv, nil
		}
		return zero, err

	case CacheOnly:
		if v, ok := s.cache.Get(ctx, key, GetOptions{}); ok {
			return v, nil
		}
		return zero, &NotCachedError{Key: key}

	case NetworkOnly:
		return fetch(ctx)

	case StaleWhileRevalidate:
		if v, ok := s.cache.Get(ctx, key, GetOptions{}); ok {
			if s.cache.Stale(ctx, key) {
				s.revalidate(ctx, key, fetch, opts)
			}
			return v, nil
		}
		return s.fetchAndStore(ctx, key, fetch, opts)
	}
	return zero, fmt.Errorf("tiercache: unknown policy %q", s.policy)
}

func (s *Strategy[V]) fetchAndStore(ctx context.Context, key string, fetch Fetcher[V], opts SetOptions) (V, error) {
	v, err := fetch(ctx)
	if err != nil {
		var zero V
		return zero, err
	}
	s.cache.Set(ctx, key, v, opts)
	return v, nil
}

// revalidate refreshes key in a detached task. The caller never waits on
// or observes the outcome except via the next read; a failed refresh
// leaves the existing entry untouched. If two refreshes for the same key
// overlap, both run and the last write wins.
func (s *Strategy[V]) revalidate(ctx context.Context, key string, fetch Fetcher[V], opts SetOptions) {
	bg := context.WithoutCancel(ctx)
	go func() {
		defer func() {
			// the task boundary must contain fetcher panics
			if r := recover(); r != nil {
				s.log.Error("background refresh panicked", Fields{"key": key, "panic": r})
			}
		}()
		v, err := fetch(bg)
		if err != nil {
			s.hooks.RefreshFault(key, err)
			s.log.Warn("background refresh failed", Fields{"key": key, "err": err})
			return
		}
		s.cache.Set(bg, key, v, opts)
	}()
}
