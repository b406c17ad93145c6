package federation

import (
	"context"

	"github.com/kailas-cloud/fedsearch/internal/domain/search/result"
	"github.com/kailas-cloud/fedsearch/internal/engine"
)

// Searcher runs a query against one physical index.
type Searcher interface {
	Search(ctx context.Context, index string, req engine.SearchRequest) (engine.SearchResponse, error)
}

// Versions reads per-index cache version counters.
type Versions interface {
	Current(ctx context.Context, indexes ...string) ([]int64, error)
}

// Cache stores merged results. Implementations are best-effort.
type Cache interface {
	Get(ctx context.Context, key string) (result.SearchResult, bool)
	Set(ctx context.Context, key string, res result.SearchResult)
}
