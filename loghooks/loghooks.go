// Package loghooks turns cache events into slog records, with optional
// sampling for the noisy ones.
package loghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/tiercache"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	TierFaultEvery uint64
	EvictedEvery   uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	tierFaultCtr atomic.Uint64
	evictedCtr   atomic.Uint64
}

var _ tiercache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) TierFault(level tiercache.Level, op, storageKey string, err error) {
	if h.l == nil || !sample(h.opts.TierFaultEvery, &h.tierFaultCtr) {
		return
	}
	h.l.Warn("tiercache.tier_fault",
		"level", string(level),
		"op", op,
		"key", h.redact(storageKey),
		"err", err)
}

func (h *Hooks) DecodeFault(storageKey, reason string) {
	if h.l == nil {
		return
	}
	h.l.Warn("tiercache.decode_fault",
		"key", h.redact(storageKey),
		"reason", reason)
}

func (h *Hooks) Evicted(key, category string, size int64) {
	if h.l == nil || !sample(h.opts.EvictedEvery, &h.evictedCtr) {
		return
	}
	h.l.Debug("tiercache.evicted",
		"key", h.redact(key),
		"category", category,
		"size", size)
}

func (h *Hooks) Expired(key string) {
	if h.l == nil {
		return
	}
	h.l.Debug("tiercache.expired", "key", h.redact(key))
}

func (h *Hooks) Cascade(key string, dependents int) {
	if h.l == nil {
		return
	}
	h.l.Debug("tiercache.cascade",
		"key", h.redact(key),
		"dependents", dependents)
}

func (h *Hooks) RefreshFault(key string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("tiercache.refresh_fault",
		"key", h.redact(key),
		"err", err)
}
