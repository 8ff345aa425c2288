package tiercache

import (
	"errors"
	"fmt"
)

// ErrNotCached is the sentinel matched by errors.Is for a cache-only miss.
var ErrNotCached = errors.New("tiercache: not cached")

// NotCachedError is returned by the cache-only strategy when no entry
// exists for the requested key. Callers branch on it with
// errors.Is(err, ErrNotCached) or errors.As.
type NotCachedError struct {
	Key string
}

func (e *NotCachedError) Error() string {
	return fmt.Sprintf("tiercache: no cached value for %q", e.Key)
}

func (e *NotCachedError) Is(target error) bool { return target == ErrNotCached }
