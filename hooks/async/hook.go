// Package asynchook decouples hook sinks from the cache's hot paths.
// Events are enqueued to a bounded queue serviced by worker goroutines;
// when the queue is full, events are dropped rather than blocking the
// caller.
//
// usage:
//
//	raw := loghooks.New(slog.Default(), loghooks.Options{TierFaultEvery: 10})
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	cache, _ := tiercache.New[User](tiercache.Options[User]{
//	    Namespace: "user",
//	    Codec:     codec.JSON[User]{},
//	    Hooks:     hooks, // or `raw` if you don't want async
//	})
package asynchook

import (
	"sync"

	"github.com/unkn0wn-root/tiercache"
)

type Hooks struct {
	inner tiercache.Hooks
	q     chan func()
	wg    sync.WaitGroup
	once  sync.Once
}

var _ tiercache.Hooks = (*Hooks)(nil)

func New(inner tiercache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

func (h *Hooks) Close() {
	h.once.Do(func() {
		close(h.q)
		h.wg.Wait()
	})
}

func (h *Hooks) try(f func()) {
	select {
	case h.q <- f:
	default: // drop
	}
}

func (h *Hooks) TierFault(l tiercache.Level, op, k string, err error) {
	h.try(func() { h.inner.TierFault(l, op, k, err) })
}
func (h *Hooks) DecodeFault(k, reason string) { h.try(func() { h.inner.DecodeFault(k, reason) }) }
func (h *Hooks) Evicted(k, cat string, size int64) {
	h.try(func() { h.inner.Evicted(k, cat, size) })
}
func (h *Hooks) Expired(k string)        { h.try(func() { h.inner.Expired(k) }) }
func (h *Hooks) Cascade(k string, n int) { h.try(func() { h.inner.Cascade(k, n) }) }
func (h *Hooks) RefreshFault(k string, err error) {
	h.try(func() { h.inner.RefreshFault(k, err) })
}
