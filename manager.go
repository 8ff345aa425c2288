package tiercache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	c "github.com/unkn0wn-root/tiercache/codec"
	"github.com/unkn0wn-root/tiercache/internal/wire"
)

const (
	defaultTTL        = 5 * time.Minute
	defaultStaleTol   = 30 * time.Second
	defaultSweep      = time.Minute
	defaultMaxEntries = 1024
	defaultMaxBytes   = 64 << 20
	defaultCompactAt  = 16 << 10

	warmWorkers = 8
)

type manager[V any] struct {
	ns    string
	codec c.Codec[V]
	log   Logger
	hooks Hooks

	enabled bool

	defaultTTL   time.Duration
	staleTol     time.Duration
	sweepEvery   time.Duration
	maxEntries   int
	maxBytes     int64
	compactAbove int64
	sizer        SizeFunc

	session    *tierStore // nil when the tier is not configured
	persistent *tierStore

	// fast tier: live entries, guarded by mu together with size accounting
	mu    sync.Mutex
	fast  map[string]*entry[V]
	bytes int64

	graph *depGraph

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64

	// background sweep
	ticker    *time.Ticker
	stopCh    chan struct{}
	closeWg   sync.WaitGroup
	closeOnce sync.Once
}

func newManager[V any](opts Options[V]) (*manager[V], error) {
	if opts.Namespace == "" {
		return nil, fmt.Errorf("tiercache: namespace is required")
	}
	if opts.Codec == nil {
		return nil, fmt.Errorf("tiercache: codec is required")
	}

	m := &manager[V]{
		ns:    opts.Namespace,
		codec: opts.Codec,
		fast:  make(map[string]*entry[V]),
		graph: newDepGraph(),
	}

	m.log = coalesce[Logger](opts.Logger, NopLogger{})
	m.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	m.defaultTTL = coalesce[time.Duration](opts.DefaultTTL, defaultTTL)
	m.staleTol = coalesce[time.Duration](opts.StaleTolerance, defaultStaleTol)
	m.sweepEvery = coalesce[time.Duration](opts.CleanupInterval, defaultSweep)
	m.maxEntries = coalesce[int](opts.MaxEntries, defaultMaxEntries)
	m.maxBytes = coalesce[int64](opts.MaxBytes, defaultMaxBytes)
	m.compactAbove = coalesce[int64](opts.CompactThreshold, defaultCompactAt)

	if opts.Sizer != nil {
		m.sizer = opts.Sizer
	} else {
		m.sizer = func(_ string, encoded []byte) int64 { return int64(len(encoded)) }
	}

	m.session = newTierStore(LevelSession, opts.Session, m.ns, m.log, m.hooks)
	m.persistent = newTierStore(LevelPersistent, opts.Persistent, m.ns, m.log, m.hooks)

	m.enabled = !opts.Disabled

	if m.enabled {
		m.ticker = time.NewTicker(m.sweepEvery)
		m.stopCh = make(chan struct{})
		m.closeWg.Add(1)
		go m.sweepLoop()
	}
	return m, nil
}

func (m *manager[V]) Enabled() bool { return m.enabled }

func (m *manager[V]) Close(ctx context.Context) error {
	m.closeOnce.Do(func() {
		if m.stopCh != nil {
			close(m.stopCh)
			m.closeWg.Wait()
			if m.ticker != nil {
				m.ticker.Stop()
			}
		}
	})
	var firstErr error
	for _, t := range []*tierStore{m.session, m.persistent} {
		if t == nil {
			continue
		}
		if err := t.close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *manager[V]) Set(ctx context.Context, key string, value V, opts SetOptions) bool {
	if !m.enabled {
		return false
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = m.defaultTTL
	}

	encoded, err := m.codec.Encode(value)
	if err != nil {
		m.log.Warn("value encode failed; not cached", Fields{"key": key, "err": err})
		return false
	}

	now := time.Now()
	e := newEntry(key, value, encoded, m.sizer(key, encoded), m.compactAbove, now, ttl, opts)

	level := coalesce[Level](opts.Level, LevelFast)
	switch level {
	case LevelFast:
		m.insertFast(e)
	case LevelSession:
		m.writeTier(ctx, m.session, key, e, encoded, ttl)
	case LevelPersistent:
		m.writeTier(ctx, m.persistent, key, e, encoded, ttl)
	default:
		m.log.Warn("unknown level; using fast tier", Fields{"key": key, "level": level})
		m.insertFast(e)
	}

	// mirror to the long-lived tier regardless of level
	if opts.Persist && level != LevelPersistent {
		m.writeTier(ctx, m.persistent, key, e, encoded, ttl)
	}

	m.graph.register(key, opts.Dependencies)
	return true
}

func (m *manager[V]) writeTier(ctx context.Context, t *tierStore, key string, e *entry[V], encoded []byte, ttl time.Duration) {
	if t == nil {
		return
	}
	t.write(ctx, key, wire.Record{
		ExpiresAt: e.expiresAt.UnixMilli(),
		Category:  e.category,
		Compacted: e.compacted,
		Payload:   encoded,
	}, ttl)
}

// insertFast runs the capacity check before inserting so the fast tier
// never exceeds its limits by more than the incoming entry.
func (m *manager[V]) insertFast(e *entry[V]) {
	m.mu.Lock()
	if old, ok := m.fast[e.key]; ok {
		m.bytes -= old.size
		delete(m.fast, e.key)
		m.graph.unregister(e.key, old.deps)
	}
	m.evictWhileOverLocked(e.size, 1)
	m.fast[e.key] = e
	m.bytes += e.size
	m.mu.Unlock()
}

// evictWhileOverLocked evicts one entry at a time until the fast tier can
// absorb the incoming size and count, or the tier is empty. Selection is a
// frequency/recency hybrid: lowest accessCount per idle second goes first.
func (m *manager[V]) evictWhileOverLocked(incomingBytes int64, incomingCount int) {
	now := time.Now()
	for len(m.fast) > 0 &&
		(m.bytes+incomingBytes > m.maxBytes || len(m.fast)+incomingCount > m.maxEntries) {
		var (
			victim *entry[V]
			lowest float64
		)
		for _, e := range m.fast {
			s := evictionScore(e, now)
			if victim == nil || s < lowest {
				victim = e
				lowest = s
			}
		}
		delete(m.fast, victim.key)
		m.bytes -= victim.size
		m.graph.unregister(victim.key, victim.deps)
		m.evictions.Add(1)
		m.hooks.Evicted(victim.key, victim.category, victim.size)
		m.log.Debug("evicted under pressure", Fields{"key": victim.key, "score": lowest})
	}
}

func evictionScore[V any](e *entry[V], now time.Time) float64 {
	idle := now.Sub(e.lastAccessed)
	if idle < time.Second {
		idle = time.Second
	}
	return float64(e.accessCount) / idle.Seconds()
}

func (m *manager[V]) Get(ctx context.Context, key string, opts GetOptions) (V, bool) {
	var zero V
	if !m.enabled {
		return zero, false
	}
	now := time.Now()

	if opts.Level == "" || opts.Level == LevelFast {
		v, ok, action := m.getFast(key, opts, now)
		switch action {
		case fastExpired:
			// remove through the delete path so cascades apply
			m.hooks.Expired(key)
			m.Delete(ctx, key)
		case fastDecodeFault:
			m.removeFastOnly(key)
		}
		if ok {
			m.hits.Add(1)
			return v, true
		}
		if opts.Level == LevelFast {
			m.misses.Add(1)
			return zero, false
		}
	}

	if opts.Level == "" || opts.Level == LevelSession {
		if v, ok := m.getTier(ctx, m.session, key, opts, now); ok {
			m.hits.Add(1)
			return v, true
		}
		if opts.Level == LevelSession {
			m.misses.Add(1)
			return zero, false
		}
	}

	if opts.Level == "" || opts.Level == LevelPersistent {
		if v, ok := m.getTier(ctx, m.persistent, key, opts, now); ok {
			m.hits.Add(1)
			return v, true
		}
	}

	m.misses.Add(1)
	return zero, false
}

type fastAction int

const (
	fastNone fastAction = iota
	fastExpired
	fastDecodeFault
)

func (m *manager[V]) getFast(key string, opts GetOptions, now time.Time) (V, bool, fastAction) {
	var zero V
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.fast[key]
	if !ok {
		return zero, false, fastNone
	}
	if e.expired(now) && !opts.AllowStale {
		return zero, false, fastExpired
	}
	v, err := e.get(m.codec, !opts.NoTouch, now)
	if err != nil {
		m.hooks.DecodeFault(key, "value_decode")
		m.log.Warn("compacted value decode failed", Fields{"key": key, "err": err})
		return zero, false, fastDecodeFault
	}
	return v, true, fastNone
}

// getTier reads a persistent tier and promotes a live hit into the fast
// tier with fresh access stats and no dependency edges.
func (m *manager[V]) getTier(ctx context.Context, t *tierStore, key string, opts GetOptions, now time.Time) (V, bool) {
	var zero V
	if t == nil {
		return zero, false
	}
	rec, ok := t.read(ctx, key, opts.AllowStale)
	if !ok {
		return zero, false
	}
	v, err := m.codec.Decode(rec.Payload)
	if err != nil {
		m.hooks.DecodeFault(t.key(key), "value_decode")
		m.log.Warn("tier value decode failed", Fields{"level": t.level, "key": key, "err": err})
		t.remove(ctx, key)
		return zero, false
	}
	if !expiredMillis(rec.ExpiresAt) {
		e := newEntry(key, v, rec.Payload, m.sizer(key, rec.Payload), m.compactAbove, now, 0, SetOptions{Category: rec.Category})
		e.expiresAt = time.UnixMilli(rec.ExpiresAt) // keep the remaining TTL
		if !opts.NoTouch {
			e.accessCount++
		}
		m.insertFast(e)
	}
	return v, true
}

// removeFastOnly drops a broken entry without cascading.
func (m *manager[V]) removeFastOnly(key string) {
	m.mu.Lock()
	if e, ok := m.fast[key]; ok {
		delete(m.fast, key)
		m.bytes -= e.size
		m.graph.unregister(key, e.deps)
	}
	m.mu.Unlock()
}

func (m *manager[V]) Delete(ctx context.Context, key string) {
	if !m.enabled {
		return
	}
	dependents := m.graph.dependents(key)
	m.removeEverywhere(ctx, key)

	cascaded := 0
	for _, d := range dependents {
		if d == key {
			continue // self-reference is a no-op cascade
		}
		m.removeEverywhere(ctx, d)
		cascaded++
	}
	m.graph.drop(key)
	if cascaded > 0 {
		m.hooks.Cascade(key, cascaded)
		m.log.Debug("cascade invalidation", Fields{"key": key, "dependents": cascaded})
	}
}

func (m *manager[V]) removeEverywhere(ctx context.Context, key string) {
	m.mu.Lock()
	if e, ok := m.fast[key]; ok {
		delete(m.fast, key)
		m.bytes -= e.size
		m.graph.unregister(key, e.deps)
	}
	m.mu.Unlock()

	if m.session != nil {
		m.session.remove(ctx, key)
	}
	if m.persistent != nil {
		m.persistent.remove(ctx, key)
	}
}

func (m *manager[V]) Has(ctx context.Context, key string) bool {
	if !m.enabled {
		return false
	}
	now := time.Now()
	m.mu.Lock()
	e, ok := m.fast[key]
	live := ok && !e.expired(now)
	m.mu.Unlock()
	if live {
		return true
	}
	for _, t := range []*tierStore{m.session, m.persistent} {
		if t == nil {
			continue
		}
		if _, ok := t.read(ctx, key, false); ok {
			return true
		}
	}
	return false
}

func (m *manager[V]) Clear(ctx context.Context) {
	m.mu.Lock()
	m.fast = make(map[string]*entry[V])
	m.bytes = 0
	m.mu.Unlock()
	m.graph.clear()

	if m.session != nil {
		m.session.clear(ctx)
	}
	if m.persistent != nil {
		m.persistent.clear(ctx)
	}
}

// ClearCategory removes matching entries from the fast tier only; the
// persistent tiers keep their records (see package doc).
func (m *manager[V]) ClearCategory(_ context.Context, category string) {
	m.mu.Lock()
	for k, e := range m.fast {
		if e.category != category {
			continue
		}
		delete(m.fast, k)
		m.bytes -= e.size
		m.graph.unregister(k, e.deps)
	}
	m.mu.Unlock()
}

func (m *manager[V]) Extend(_ context.Context, key string, additional time.Duration) bool {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.fast[key]
	if !ok || e.expired(now) {
		return false
	}
	e.extend(now, additional)
	return true
}

func (m *manager[V]) Stale(_ context.Context, key string) bool {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.fast[key]
	return ok && e.stale(now, m.staleTol)
}

func (m *manager[V]) Stats() Stats {
	hits := m.hits.Load()
	misses := m.misses.Load()

	s := Stats{
		Hits:       hits,
		Misses:     misses,
		Evictions:  m.evictions.Load(),
		Categories: make(map[string]CategoryStats),
	}
	if total := hits + misses; total > 0 {
		s.HitRate = float64(hits) / float64(total)
	}

	m.mu.Lock()
	s.Entries = len(m.fast)
	s.Bytes = m.bytes
	for _, e := range m.fast {
		cs := s.Categories[e.category]
		cs.Entries++
		cs.Bytes += e.size
		s.Categories[e.category] = cs
	}
	m.mu.Unlock()
	return s
}

func (m *manager[V]) Warm(ctx context.Context, entries []WarmEntry[V]) {
	if !m.enabled || len(entries) == 0 {
		return
	}
	var g errgroup.Group
	g.SetLimit(warmWorkers)
	for _, we := range entries {
		we := we
		g.Go(func() error {
			v, err := we.Fetch(ctx)
			if err != nil {
				// individual failures never abort the batch
				m.log.Warn("warm fetch failed", Fields{"key": we.Key, "err": err})
				return nil
			}
			m.Set(ctx, we.Key, v, we.Options)
			return nil
		})
	}
	_ = g.Wait()
}

func (m *manager[V]) Preload(ctx context.Context, key string, fetch Fetcher[V], opts SetOptions) (V, error) {
	if v, ok := m.Get(ctx, key, GetOptions{}); ok {
		return v, nil
	}
	v, err := fetch(ctx)
	if err != nil {
		var zero V
		return zero, err
	}
	m.Set(ctx, key, v, opts)
	return v, nil
}

func (m *manager[V]) sweepLoop() {
	defer m.closeWg.Done()
	for {
		select {
		case <-m.ticker.C:
			m.sweep(context.Background())
		case <-m.stopCh:
			return
		}
	}
}

// sweep deletes expired fast-tier entries through the normal delete path
// (so cascades apply), then re-runs the capacity check once.
func (m *manager[V]) sweep(ctx context.Context) {
	now := time.Now()

	m.mu.Lock()
	var expired []string
	for k, e := range m.fast {
		if e.expired(now) {
			expired = append(expired, k)
		}
	}
	m.mu.Unlock()

	for _, k := range expired {
		m.hooks.Expired(k)
		m.Delete(ctx, k)
	}

	m.mu.Lock()
	m.evictWhileOverLocked(0, 0)
	m.mu.Unlock()

	if len(expired) > 0 {
		m.log.Debug("sweep removed expired entries", Fields{"removed": len(expired)})
	}
}
