package tiercache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	c "github.com/unkn0wn-root/tiercache/codec"
	"github.com/unkn0wn-root/tiercache/tier/memory"
)

type user struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func newTestCache(t *testing.T, optsOpt func(*Options[user])) Cache[user] {
	t.Helper()
	opts := Options[user]{
		Namespace: "user",
		Codec:     c.JSON[user]{},
	}
	if optsOpt != nil {
		optsOpt(&opts)
	}
	cc, err := New[user](opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = cc.Close(context.Background()) })
	return cc
}

func mustImpl(t *testing.T, cc Cache[user]) *manager[user] {
	t.Helper()
	m, ok := cc.(*manager[user])
	if !ok {
		t.Fatalf("unexpected concrete type for Cache")
	}
	return m
}

func TestSetGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, nil)

	v := user{ID: "1", Name: "Ada"}
	if !cc.Set(ctx, "u:1", v, SetOptions{}) {
		t.Fatalf("Set reported failure")
	}
	got, ok := cc.Get(ctx, "u:1", GetOptions{})
	if !ok || got != v {
		t.Fatalf("Get after Set: ok=%v got=%v", ok, got)
	}
}

func TestGetMissOnUnknownKey(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, nil)

	if _, ok := cc.Get(ctx, "nope", GetOptions{}); ok {
		t.Fatalf("expected miss for unknown key")
	}
	if s := cc.Stats(); s.Misses != 1 || s.Hits != 0 {
		t.Fatalf("stats after miss: %+v", s)
	}
}

func TestExpiryCountsMissAndDeletes(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, nil)

	cc.Set(ctx, "a", user{ID: "a"}, SetOptions{TTL: 40 * time.Millisecond})
	if _, ok := cc.Get(ctx, "a", GetOptions{}); !ok {
		t.Fatalf("expected hit before expiry")
	}
	before := cc.Stats().Misses

	time.Sleep(50 * time.Millisecond)
	if _, ok := cc.Get(ctx, "a", GetOptions{}); ok {
		t.Fatalf("expected miss after expiry")
	}
	if got := cc.Stats().Misses; got != before+1 {
		t.Fatalf("misses: got %d want %d", got, before+1)
	}

	// expired entry was removed, not just hidden
	impl := mustImpl(t, cc)
	impl.mu.Lock()
	_, still := impl.fast["a"]
	impl.mu.Unlock()
	if still {
		t.Fatalf("expired entry should have been deleted")
	}
}

func TestAllowStaleReturnsExpired(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, nil)

	v := user{ID: "a", Name: "Old"}
	cc.Set(ctx, "a", v, SetOptions{TTL: 30 * time.Millisecond})
	time.Sleep(40 * time.Millisecond)

	got, ok := cc.Get(ctx, "a", GetOptions{AllowStale: true})
	if !ok || got != v {
		t.Fatalf("AllowStale should return the expired value, ok=%v got=%v", ok, got)
	}
}

func TestDeleteCascadesOneLevel(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, nil)

	cc.Set(ctx, "b", user{ID: "b"}, SetOptions{})
	cc.Set(ctx, "a", user{ID: "a"}, SetOptions{Dependencies: []string{"b"}})
	cc.Set(ctx, "c", user{ID: "c"}, SetOptions{Dependencies: []string{"a"}})

	cc.Delete(ctx, "b")

	if _, ok := cc.Get(ctx, "b", GetOptions{}); ok {
		t.Fatalf("deleted key should miss")
	}
	if _, ok := cc.Get(ctx, "a", GetOptions{}); ok {
		t.Fatalf("dependent of deleted key should miss")
	}
	// one level only: c depends on a, not on b
	if _, ok := cc.Get(ctx, "c", GetOptions{}); !ok {
		t.Fatalf("second-order dependent should survive")
	}
}

func TestCascadeFromUncachedDependency(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, nil)

	// "b" is declared as a dependency but never cached itself
	cc.Set(ctx, "a", user{ID: "a"}, SetOptions{Dependencies: []string{"b"}})
	cc.Delete(ctx, "b")
	if _, ok := cc.Get(ctx, "a", GetOptions{}); ok {
		t.Fatalf("cascade must fire even when the dependency key was never cached")
	}
}

func TestSelfDependencyIsNoop(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, nil)

	cc.Set(ctx, "x", user{ID: "x"}, SetOptions{Dependencies: []string{"x"}})
	cc.Delete(ctx, "x") // must not recurse or panic
	if _, ok := cc.Get(ctx, "x", GetOptions{}); ok {
		t.Fatalf("deleted key should miss")
	}
}

func TestEvictionByEntryCount(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, func(o *Options[user]) {
		o.MaxEntries = 2
	})

	cc.Set(ctx, "k1", user{ID: "1"}, SetOptions{})
	cc.Set(ctx, "k2", user{ID: "2"}, SetOptions{})
	if s := cc.Stats(); s.Evictions != 0 {
		t.Fatalf("eviction fired within limits: %+v", s)
	}

	// touch k1 so its frequency/idle score beats untouched k2
	if _, ok := cc.Get(ctx, "k1", GetOptions{}); !ok {
		t.Fatalf("k1 should hit")
	}

	cc.Set(ctx, "k3", user{ID: "3"}, SetOptions{})

	s := cc.Stats()
	if s.Evictions != 1 {
		t.Fatalf("exactly one eviction expected, got %d", s.Evictions)
	}
	if s.Entries != 2 {
		t.Fatalf("fast tier should hold 2 entries, got %d", s.Entries)
	}
	if _, ok := cc.Get(ctx, "k2", GetOptions{}); ok {
		t.Fatalf("k2 (lowest score) should have been evicted")
	}
	if _, ok := cc.Get(ctx, "k1", GetOptions{}); !ok {
		t.Fatalf("k1 should have survived eviction")
	}
}

func TestEvictionBySize(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, func(o *Options[user]) {
		o.MaxBytes = 40 // fits one small JSON user
	})

	cc.Set(ctx, "k1", user{ID: "1", Name: "A"}, SetOptions{})
	cc.Set(ctx, "k2", user{ID: "2", Name: "B"}, SetOptions{})
	cc.Set(ctx, "k3", user{ID: "3", Name: "C"}, SetOptions{})

	s := cc.Stats()
	if s.Evictions == 0 {
		t.Fatalf("size pressure should have evicted")
	}
	if s.Bytes > 40+40 { // bounded by limit + one incoming entry
		t.Fatalf("fast tier bytes way over limit: %d", s.Bytes)
	}
}

func TestHitRate(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, nil)

	if hr := cc.Stats().HitRate; hr != 0 {
		t.Fatalf("hit rate with no gets should be 0, got %v", hr)
	}

	cc.Set(ctx, "a", user{ID: "a"}, SetOptions{})
	cc.Get(ctx, "a", GetOptions{})    // hit
	cc.Get(ctx, "nope", GetOptions{}) // miss

	s := cc.Stats()
	if s.Hits != 1 || s.Misses != 1 || s.HitRate != 0.5 {
		t.Fatalf("stats: %+v", s)
	}
}

func TestCategoryStatsAndClear(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, nil)

	cc.Set(ctx, "a", user{ID: "a"}, SetOptions{Category: "api-responses"})
	cc.Set(ctx, "b", user{ID: "b"}, SetOptions{Category: "api-responses"})
	cc.Set(ctx, "c", user{ID: "c"}, SetOptions{Category: "form-drafts"})

	s := cc.Stats()
	if s.Categories["api-responses"].Entries != 2 || s.Categories["form-drafts"].Entries != 1 {
		t.Fatalf("category breakdown: %+v", s.Categories)
	}

	cc.ClearCategory(ctx, "api-responses")
	if _, ok := cc.Get(ctx, "a", GetOptions{}); ok {
		t.Fatalf("cleared category entry should miss")
	}
	if _, ok := cc.Get(ctx, "c", GetOptions{}); !ok {
		t.Fatalf("other category should survive")
	}
}

func TestCompactionRoundTrip(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, func(o *Options[user]) {
		o.CompactThreshold = 1 // compact everything
	})

	v := user{ID: "big", Name: "Payload"}
	cc.Set(ctx, "big", v, SetOptions{})

	impl := mustImpl(t, cc)
	impl.mu.Lock()
	e := impl.fast["big"]
	impl.mu.Unlock()
	if e == nil || !e.compacted {
		t.Fatalf("entry should be stored compacted")
	}

	got, ok := cc.Get(ctx, "big", GetOptions{})
	if !ok || got != v {
		t.Fatalf("compacted round-trip: ok=%v got=%v", ok, got)
	}

	// the stored form stays compacted after reads
	impl.mu.Lock()
	still := impl.fast["big"].compacted
	impl.mu.Unlock()
	if !still {
		t.Fatalf("read must not un-compact the stored form")
	}
}

func TestCompactedDecodeFaultIsMiss(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, func(o *Options[user]) {
		o.CompactThreshold = 1
	})
	impl := mustImpl(t, cc)

	cc.Set(ctx, "bad", user{ID: "bad"}, SetOptions{})
	impl.mu.Lock()
	impl.fast["bad"].raw = []byte("{not json") // corrupt the stored form
	impl.mu.Unlock()

	if _, ok := cc.Get(ctx, "bad", GetOptions{}); ok {
		t.Fatalf("decode fault should produce a miss")
	}
	// self-heal: broken entry removed
	impl.mu.Lock()
	_, still := impl.fast["bad"]
	impl.mu.Unlock()
	if still {
		t.Fatalf("broken entry should have been removed")
	}
}

func TestSessionTierFallthroughAndPromotion(t *testing.T) {
	ctx := context.Background()
	sess := memory.New()
	cc := newTestCache(t, func(o *Options[user]) {
		o.Session = sess
	})

	v := user{ID: "s", Name: "Session"}
	cc.Set(ctx, "s", v, SetOptions{Level: LevelSession, Category: "api-responses"})

	impl := mustImpl(t, cc)
	impl.mu.Lock()
	_, inFast := impl.fast["s"]
	impl.mu.Unlock()
	if inFast {
		t.Fatalf("session-level Set must not populate the fast tier")
	}

	got, ok := cc.Get(ctx, "s", GetOptions{})
	if !ok || got != v {
		t.Fatalf("session fallthrough: ok=%v got=%v", ok, got)
	}

	// hit was promoted with fresh stats and the persisted category
	impl.mu.Lock()
	e := impl.fast["s"]
	impl.mu.Unlock()
	if e == nil {
		t.Fatalf("session hit should promote into the fast tier")
	}
	if e.category != "api-responses" {
		t.Fatalf("promoted category: %q", e.category)
	}
	if len(e.deps) != 0 {
		t.Fatalf("promoted entry must not carry dependency edges")
	}
}

func TestPersistMirrorSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	long := memory.New()

	cc := newTestCache(t, func(o *Options[user]) {
		o.Persistent = long
	})
	v := user{ID: "p", Name: "Persisted"}
	cc.Set(ctx, "p", v, SetOptions{Persist: true})
	_ = cc.Close(ctx)

	// same store, fresh manager: simulates a process restart
	cc2, err := New[user](Options[user]{
		Namespace:  "user",
		Codec:      c.JSON[user]{},
		Persistent: long,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer cc2.Close(ctx)

	got, ok := cc2.Get(ctx, "p", GetOptions{})
	if !ok || got != v {
		t.Fatalf("persisted value should survive restart: ok=%v got=%v", ok, got)
	}
}

func TestPersistentTierExpiredDeletedOnRead(t *testing.T) {
	ctx := context.Background()
	long := memory.New()
	cc := newTestCache(t, func(o *Options[user]) {
		o.Persistent = long
	})

	cc.Set(ctx, "p", user{ID: "p"}, SetOptions{Level: LevelPersistent, TTL: 30 * time.Millisecond})
	time.Sleep(40 * time.Millisecond)

	if _, ok := cc.Get(ctx, "p", GetOptions{}); ok {
		t.Fatalf("expired persisted entry should miss")
	}
	if long.Len() != 0 {
		t.Fatalf("expired persisted record should have been deleted on read")
	}
}

func TestTierFaultIsSwallowed(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, func(o *Options[user]) {
		o.Session = failStore{}
	})

	// writes and reads against the broken tier must not surface errors
	if !cc.Set(ctx, "k", user{ID: "k"}, SetOptions{Level: LevelSession}) {
		t.Fatalf("Set must swallow tier faults")
	}
	if _, ok := cc.Get(ctx, "k", GetOptions{Level: LevelSession}); ok {
		t.Fatalf("broken tier must read as a miss")
	}
}

func TestHasAcrossTiers(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, func(o *Options[user]) {
		o.Session = memory.New()
	})

	if cc.Has(ctx, "a") {
		t.Fatalf("Has on empty cache")
	}
	cc.Set(ctx, "a", user{ID: "a"}, SetOptions{})
	cc.Set(ctx, "b", user{ID: "b"}, SetOptions{Level: LevelSession})
	if !cc.Has(ctx, "a") || !cc.Has(ctx, "b") {
		t.Fatalf("Has should see both tiers")
	}

	cc.Set(ctx, "e", user{ID: "e"}, SetOptions{TTL: 30 * time.Millisecond})
	time.Sleep(40 * time.Millisecond)
	if cc.Has(ctx, "e") {
		t.Fatalf("Has must reject expired entries")
	}
}

func TestClearWipesEverything(t *testing.T) {
	ctx := context.Background()
	sess := memory.New()
	cc := newTestCache(t, func(o *Options[user]) {
		o.Session = sess
	})

	cc.Set(ctx, "a", user{ID: "a"}, SetOptions{})
	cc.Set(ctx, "b", user{ID: "b"}, SetOptions{Level: LevelSession})
	cc.Clear(ctx)

	if cc.Has(ctx, "a") || cc.Has(ctx, "b") {
		t.Fatalf("Clear should wipe all tiers")
	}
	if sess.Len() != 0 {
		t.Fatalf("session store should be empty after Clear")
	}
}

func TestExtendNeverShortens(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, nil)
	impl := mustImpl(t, cc)

	cc.Set(ctx, "a", user{ID: "a"}, SetOptions{TTL: time.Hour})
	impl.mu.Lock()
	before := impl.fast["a"].expiresAt
	impl.mu.Unlock()

	// shorter extension must not pull expiry in
	if !cc.Extend(ctx, "a", time.Minute) {
		t.Fatalf("Extend on live key should report true")
	}
	impl.mu.Lock()
	after := impl.fast["a"].expiresAt
	impl.mu.Unlock()
	if after.Before(before) {
		t.Fatalf("Extend shortened expiry: %v -> %v", before, after)
	}

	if !cc.Extend(ctx, "a", 2*time.Hour) {
		t.Fatalf("Extend: %v", false)
	}
	impl.mu.Lock()
	longer := impl.fast["a"].expiresAt
	impl.mu.Unlock()
	if !longer.After(before) {
		t.Fatalf("Extend with longer TTL should raise expiry")
	}

	if cc.Extend(ctx, "missing", time.Minute) {
		t.Fatalf("Extend on missing key should report false")
	}
}

func TestWarmResolvesConcurrentlyAndToleratesFailures(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, nil)

	var calls sync.Map
	entries := make([]WarmEntry[user], 0, 5)
	for i := 0; i < 5; i++ {
		key := fmt.Sprintf("w%d", i)
		i := i
		entries = append(entries, WarmEntry[user]{
			Key: key,
			Fetch: func(context.Context) (user, error) {
				calls.Store(key, true)
				if i == 2 {
					return user{}, errors.New("boom")
				}
				return user{ID: key}, nil
			},
		})
	}
	cc.Warm(ctx, entries)

	for i := 0; i < 5; i++ {
		key := fmt.Sprintf("w%d", i)
		if _, fetched := calls.Load(key); !fetched {
			t.Fatalf("fetcher %s never invoked", key)
		}
		_, ok := cc.Get(ctx, key, GetOptions{})
		if i == 2 && ok {
			t.Fatalf("failed warm entry must not be cached")
		}
		if i != 2 && !ok {
			t.Fatalf("warm entry %s should be cached", key)
		}
	}
}

func TestPreload(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, nil)

	calls := 0
	fetch := func(context.Context) (user, error) {
		calls++
		return user{ID: "p"}, nil
	}

	v, err := cc.Preload(ctx, "p", fetch, SetOptions{})
	if err != nil || v.ID != "p" || calls != 1 {
		t.Fatalf("first preload: v=%v err=%v calls=%d", v, err, calls)
	}
	// second call is served from cache
	if _, err := cc.Preload(ctx, "p", fetch, SetOptions{}); err != nil || calls != 1 {
		t.Fatalf("second preload should not fetch: err=%v calls=%d", err, calls)
	}

	sentinel := errors.New("fetch down")
	if _, err := cc.Preload(ctx, "q", func(context.Context) (user, error) {
		return user{}, sentinel
	}, SetOptions{}); !errors.Is(err, sentinel) {
		t.Fatalf("preload should surface fetch error, got %v", err)
	}
}

func TestDisabledCacheMissesAndIgnoresWrites(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, func(o *Options[user]) {
		o.Disabled = true
	})

	if cc.Enabled() {
		t.Fatalf("Enabled should be false")
	}
	if cc.Set(ctx, "a", user{ID: "a"}, SetOptions{}) {
		t.Fatalf("disabled Set should report false")
	}
	if _, ok := cc.Get(ctx, "a", GetOptions{}); ok {
		t.Fatalf("disabled Get should miss")
	}
}

func TestSweepRemovesExpiredWithCascade(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, func(o *Options[user]) {
		o.CleanupInterval = time.Hour // drive the sweep by hand
	})
	impl := mustImpl(t, cc)

	cc.Set(ctx, "base", user{ID: "base"}, SetOptions{TTL: 30 * time.Millisecond})
	cc.Set(ctx, "child", user{ID: "child"}, SetOptions{Dependencies: []string{"base"}})
	time.Sleep(40 * time.Millisecond)

	impl.sweep(ctx)

	if _, ok := cc.Get(ctx, "base", GetOptions{}); ok {
		t.Fatalf("sweep should remove expired entries")
	}
	if _, ok := cc.Get(ctx, "child", GetOptions{}); ok {
		t.Fatalf("sweep expiry should cascade to dependents")
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New[user](Options[user]{Codec: c.JSON[user]{}}); err == nil {
		t.Fatalf("missing namespace should error")
	}
	if _, err := New[user](Options[user]{Namespace: "x"}); err == nil {
		t.Fatalf("missing codec should error")
	}
}

// failStore errors on every operation.
type failStore struct{}

func (failStore) Read(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("store down")
}
func (failStore) Write(context.Context, string, []byte, time.Duration) error {
	return errors.New("store down")
}
func (failStore) Remove(context.Context, string) error { return errors.New("store down") }
func (failStore) Clear(context.Context, string) error  { return errors.New("store down") }
func (failStore) Close(context.Context) error          { return nil }
