// Package querycache stores federated results under content-hash keys in two tiers:
// a process-local expirable LRU and the shared key-value store.
package querycache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/kailas-cloud/fedsearch/internal/db"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/result"
	"github.com/kailas-cloud/fedsearch/internal/metrics"
)

// store is the consumer interface for the shared tier (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Cache is best-effort: failures are logged and read as misses.
type Cache struct {
	store  store
	local  *expirable.LRU[string, result.SearchResult]
	ttl    time.Duration
	logger *zap.Logger
}

// New creates a cache. A nil store disables the shared tier; localSize <= 0 disables the local one.
func New(s store, ttl time.Duration, localSize int, logger *zap.Logger) *Cache {
	c := &Cache{store: s, ttl: ttl, logger: logger}
	if localSize > 0 {
		c.local = expirable.NewLRU[string, result.SearchResult](localSize, nil, ttl)
	}
	return c
}

// Get returns a cached result.
func (c *Cache) Get(ctx context.Context, key string) (result.SearchResult, bool) {
	if c.local != nil {
		if res, ok := c.local.Get(key); ok {
			metrics.QueryCacheTotal.WithLabelValues("local", "hit").Inc()
			return res.Clone(), true
		}
		metrics.QueryCacheTotal.WithLabelValues("local", "miss").Inc()
	}
	if c.store == nil {
		return result.SearchResult{}, false
	}

	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("Failed to get cached result", zap.String("key", key), zap.Error(err))
		}
		metrics.QueryCacheTotal.WithLabelValues("shared", "miss").Inc()
		return result.SearchResult{}, false
	}

	var res result.SearchResult
	if err := json.Unmarshal(data, &res); err != nil {
		c.logger.Warn("Failed to parse cached result", zap.String("key", key), zap.Error(err))
		metrics.QueryCacheTotal.WithLabelValues("shared", "miss").Inc()
		return result.SearchResult{}, false
	}
	metrics.QueryCacheTotal.WithLabelValues("shared", "hit").Inc()
	if c.local != nil {
		c.local.Add(key, res.Clone())
	}
	return res, true
}

// Set stores a result in both tiers. It never fails the caller.
// The local tier keeps its own copy, so callers may keep mutating res.
func (c *Cache) Set(ctx context.Context, key string, res result.SearchResult) {
	if c.local != nil {
		c.local.Add(key, res.Clone())
	}
	if c.store == nil {
		return
	}
	data, err := json.Marshal(res)
	if err != nil {
		c.logger.Warn("Failed to encode result for cache", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.store.SetWithTTL(ctx, key, data, c.ttl); err != nil {
		c.logger.Warn("Failed to cache result", zap.String("key", key), zap.Error(err))
	}
}
