package tiercache

import (
	"context"
	"time"

	"github.com/unkn0wn-root/tiercache/internal/util"
	"github.com/unkn0wn-root/tiercache/internal/wire"
	"github.com/unkn0wn-root/tiercache/tier"
)

// tierStore wraps a backing tier.Store with the persisted-record
// projection, namespacing, read-side expiry and fault swallowing. Every
// store error is caught here, logged, reported via hooks and degraded to
// a miss or no-op; nothing propagates to cache callers.
type tierStore struct {
	level Level
	store tier.Store
	ns    string
	log   Logger
	hooks Hooks
}

func newTierStore(level Level, store tier.Store, ns string, log Logger, hooks Hooks) *tierStore {
	if store == nil {
		return nil
	}
	return &tierStore{level: level, store: store, ns: ns, log: log, hooks: hooks}
}

func (t *tierStore) key(key string) string { return util.StorageKey(t.ns, key) }

func (t *tierStore) write(ctx context.Context, key string, rec wire.Record, ttl time.Duration) {
	b, err := wire.Encode(rec)
	if err != nil {
		t.log.Warn("tier record encode failed", Fields{"level": t.level, "key": key, "err": err})
		return
	}
	sk := t.key(key)
	if err := t.store.Write(ctx, sk, b, ttl); err != nil {
		t.hooks.TierFault(t.level, "write", sk, err)
		t.log.Warn("tier write failed", Fields{"level": t.level, "key": key, "err": err})
	}
}

// read returns the persisted record for key. Expired records are deleted
// on read and treated as absent unless allowStale is set.
func (t *tierStore) read(ctx context.Context, key string, allowStale bool) (wire.Record, bool) {
	sk := t.key(key)
	b, ok, err := t.store.Read(ctx, sk)
	if err != nil {
		t.hooks.TierFault(t.level, "read", sk, err)
		t.log.Warn("tier read failed", Fields{"level": t.level, "key": key, "err": err})
		return wire.Record{}, false
	}
	if !ok {
		return wire.Record{}, false
	}
	rec, err := wire.Decode(b)
	if err != nil {
		// self-heal corrupt record
		t.hooks.DecodeFault(sk, "corrupt")
		t.log.Warn("tier record corrupt", Fields{"level": t.level, "key": key})
		t.remove(ctx, key)
		return wire.Record{}, false
	}
	if expiredMillis(rec.ExpiresAt) {
		t.remove(ctx, key)
		if !allowStale {
			return wire.Record{}, false
		}
	}
	return rec, true
}

func (t *tierStore) remove(ctx context.Context, key string) {
	sk := t.key(key)
	if err := t.store.Remove(ctx, sk); err != nil {
		t.hooks.TierFault(t.level, "remove", sk, err)
		t.log.Warn("tier remove failed", Fields{"level": t.level, "key": key, "err": err})
	}
}

func (t *tierStore) clear(ctx context.Context) {
	if err := t.store.Clear(ctx, util.NamespacePrefix(t.ns)); err != nil {
		t.hooks.TierFault(t.level, "clear", util.NamespacePrefix(t.ns), err)
		t.log.Warn("tier clear failed", Fields{"level": t.level, "err": err})
	}
}

func (t *tierStore) close(ctx context.Context) error {
	return t.store.Close(ctx)
}

func expiredMillis(expiresAt int64) bool {
	return time.Now().UnixMilli() > expiresAt
}
