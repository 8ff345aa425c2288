// Package ristretto adapts dgraph-io/ristretto as a session-scoped
// tier.Store. Ristretto cannot enumerate its keys, so the adapter keeps a
// side index of keys it has written to support Remove bookkeeping and
// prefix Clear.
package ristretto

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	rc "github.com/dgraph-io/ristretto"

	"github.com/unkn0wn-root/tiercache/tier"
)

type Store struct {
	c *rc.Cache

	mu   sync.Mutex
	keys map[string]struct{}
}

var _ tier.Store = (*Store)(nil)

type Config struct {
	NumCounters int64
	MaxCost     int64
	BufferItems int64
	Metrics     bool
}

func New(cfg Config) (*Store, error) {
	if cfg.NumCounters <= 0 || cfg.MaxCost <= 0 || cfg.BufferItems <= 0 {
		return nil, errors.New("ristretto: invalid config")
	}
	c, err := rc.NewCache(&rc.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
		Metrics:     cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}
	return &Store{c: c, keys: make(map[string]struct{})}, nil
}

func (s *Store) Read(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := s.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, _ := v.([]byte)
	if b == nil {
		// self-heal: drop unexpected entry shape
		s.c.Del(key)
		s.forget(key)
		return nil, false, nil
	}
	return b, true, nil
}

func (s *Store) Write(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if s.c.SetWithTTL(key, value, int64(len(value)), ttl) {
		s.mu.Lock()
		s.keys[key] = struct{}{}
		s.mu.Unlock()
	}
	// a rejected write under pressure is a legitimate no-op
	return nil
}

func (s *Store) Remove(_ context.Context, key string) error {
	s.c.Del(key)
	s.forget(key)
	return nil
}

func (s *Store) Clear(_ context.Context, prefix string) error {
	if prefix == "" {
		s.c.Clear()
		s.mu.Lock()
		s.keys = make(map[string]struct{})
		s.mu.Unlock()
		return nil
	}
	s.mu.Lock()
	var match []string
	for k := range s.keys {
		if strings.HasPrefix(k, prefix) {
			match = append(match, k)
			delete(s.keys, k)
		}
	}
	s.mu.Unlock()
	for _, k := range match {
		s.c.Del(k)
	}
	return nil
}

func (s *Store) Close(context.Context) error {
	s.c.Wait()
	s.c.Close()
	return nil
}

func (s *Store) forget(key string) {
	s.mu.Lock()
	delete(s.keys, key)
	s.mu.Unlock()
}

// Metrics exposes ristretto's own counters for applications that want them.
// Not part of tier.Store.
func (s *Store) Metrics() *rc.Metrics { return s.c.Metrics }
