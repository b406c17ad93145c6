// Package version keeps one monotonically increasing counter per physical index.
// Counters are cache-invalidation tokens shared by the query and write paths.
package version

import (
	"context"
	"fmt"
	"strconv"
	"sync"
)

const keyPrefix = "fedsearch:index_version:"

// store is the consumer interface for version counters (ISP).
type store interface {
	MGet(ctx context.Context, keys ...string) ([][]byte, error)
	Incr(ctx context.Context, key string) (int64, error)
}

// Store implements counters on top of INCR + MGET.
type Store struct {
	store store
}

// New creates a version store.
func New(s store) *Store {
	return &Store{store: s}
}

// Key returns the counter key of a physical index.
func Key(index string) string {
	return keyPrefix + index
}

// Current reads the counters of indexes in one round-trip. A counter never written reads as 0.
func (s *Store) Current(ctx context.Context, indexes ...string) ([]int64, error) {
	if len(indexes) == 0 {
		return []int64{}, nil
	}
	keys := make([]string, len(indexes))
	for i, idx := range indexes {
		keys[i] = Key(idx)
	}

	raw, err := s.store.MGet(ctx, keys...)
	if err != nil {
		return nil, fmt.Errorf("version MGET: %w", err)
	}
	if len(raw) != len(keys) {
		return nil, fmt.Errorf("version MGET: got %d values for %d keys", len(raw), len(keys))
	}

	out := make([]int64, len(raw))
	for i, data := range raw {
		if data == nil {
			continue
		}
		v, err := strconv.ParseInt(string(data), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("version GET %s parse: %w", keys[i], err)
		}
		out[i] = v
	}
	return out, nil
}

// Bump atomically increments the counter of a physical index and returns the new value.
func (s *Store) Bump(ctx context.Context, index string) (int64, error) {
	v, err := s.store.Incr(ctx, Key(index))
	if err != nil {
		return 0, fmt.Errorf("version INCR %s: %w", index, err)
	}
	return v, nil
}

// Local keeps counters in process memory, for deployments without a shared store.
type Local struct {
	mu     sync.Mutex
	values map[string]int64
}

// NewLocal creates an in-process counter set.
func NewLocal() *Local {
	return &Local{values: make(map[string]int64)}
}

// Current returns the counters of indexes.
func (l *Local) Current(_ context.Context, indexes ...string) ([]int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]int64, len(indexes))
	for i, idx := range indexes {
		out[i] = l.values[idx]
	}
	return out, nil
}

// Bump increments the counter of index.
func (l *Local) Bump(_ context.Context, index string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.values[index]++
	return l.values[index], nil
}
