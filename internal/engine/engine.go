// Package engine defines the boundary to the external search engine.
// Adapters live in sub-packages; decorators in this package wrap any of them.
package engine

import (
	"context"
	"strings"

	"github.com/kailas-cloud/fedsearch/internal/domain"
	"github.com/kailas-cloud/fedsearch/internal/domain/document"
)

// ErrIndexNotFound is returned by GetSettings and Stats for an absent index.
var ErrIndexNotFound = domain.ErrIndexNotFound

// SearchRequest carries one per-index query.
// Filters are engine-native expressions; adapters AND them in their own syntax.
type SearchRequest struct {
	Query   string
	Limit   int
	Filters []string
}

// NonEmptyFilters returns the trimmed, non-blank filters.
func (r SearchRequest) NonEmptyFilters() []string {
	out := make([]string, 0, len(r.Filters))
	for _, f := range r.Filters {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// Hit is one engine hit. Matched reports that the engine annotated match positions.
type Hit struct {
	Document document.Document
	Matched  bool
}

// SearchResponse is the per-index search outcome.
type SearchResponse struct {
	Hits               []Hit
	EstimatedTotalHits int
}

// Settings is the subset of index settings the pipeline manages.
type Settings struct {
	PrimaryKey string
	Searchable []string
	Filterable []string
	Sortable   []string
	Synonyms   map[string][]string
	StopWords  []string
}

// IndexStats reports index size.
type IndexStats struct {
	NumDocuments int64
}

// Client is the minimal synchronous engine surface.
//
//nolint:interfacebloat // mirrors the engine API one-to-one
type Client interface {
	Search(ctx context.Context, index string, req SearchRequest) (SearchResponse, error)
	AddDocuments(ctx context.Context, index string, docs []document.Document, primaryKey string) error
	DeleteDocuments(ctx context.Context, index string, ids []string) error
	DeleteAllDocuments(ctx context.Context, index string) error
	CreateIndex(ctx context.Context, index, primaryKey string) error
	DeleteIndex(ctx context.Context, index string) error
	GetSettings(ctx context.Context, index string) (Settings, error)
	UpdateSettings(ctx context.Context, index string, settings Settings) error
	Health(ctx context.Context) error
	Stats(ctx context.Context, index string) (IndexStats, error)
}
