// Package memory provides an in-process tier.Store backed by a mutex map.
// It is the default session tier and the store used throughout the tests.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/unkn0wn-root/tiercache/tier"
)

type record struct {
	v   []byte
	exp time.Time // zero => no TTL
}

type Store struct {
	mu sync.RWMutex
	m  map[string]record
}

var _ tier.Store = (*Store)(nil)

func New() *Store {
	return &Store{m: make(map[string]record)}
}

func (s *Store) Read(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	r, ok := s.m[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !r.exp.IsZero() && time.Now().After(r.exp) {
		s.mu.Lock()
		delete(s.m, key)
		s.mu.Unlock()
		return nil, false, nil
	}
	return r.v, true, nil
}

func (s *Store) Write(_ context.Context, key string, value []byte, ttl time.Duration) error {
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	s.mu.Lock()
	s.m[key] = record{v: value, exp: exp}
	s.mu.Unlock()
	return nil
}

func (s *Store) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.m, key)
	s.mu.Unlock()
	return nil
}

func (s *Store) Clear(_ context.Context, prefix string) error {
	s.mu.Lock()
	if prefix == "" {
		s.m = make(map[string]record)
	} else {
		for k := range s.m {
			if strings.HasPrefix(k, prefix) {
				delete(s.m, k)
			}
		}
	}
	s.mu.Unlock()
	return nil
}

func (s *Store) Close(context.Context) error { return nil }

// Len reports the number of live records. Intended for tests and metrics.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}
