package indexing

import (
	"context"

	"github.com/kailas-cloud/fedsearch/internal/domain/document"
	"github.com/kailas-cloud/fedsearch/internal/domain/job"
	"github.com/kailas-cloud/fedsearch/internal/domain/mapping"
	"github.com/kailas-cloud/fedsearch/internal/engine"
)

// Mappings resolves source types and base indexes to mappings.
type Mappings interface {
	BySourceType(sourceType string) (mapping.Mapping, error)
	ByIndex(indexName string) (mapping.Mapping, error)
	All() []mapping.Mapping
	IndexNames() []string
}

// Source reads authoritative records.
type Source interface {
	FetchByIDs(ctx context.Context, m mapping.Mapping, ids []string) ([]document.Record, error)
	ListIDs(ctx context.Context, m mapping.Mapping, after string, limit int) ([]string, error)
	Count(ctx context.Context, m mapping.Mapping) (int64, error)
}

// Engine is the write and reconciliation surface of the search engine.
type Engine interface {
	AddDocuments(ctx context.Context, index string, docs []document.Document, primaryKey string) error
	DeleteDocuments(ctx context.Context, index string, ids []string) error
	DeleteAllDocuments(ctx context.Context, index string) error
	CreateIndex(ctx context.Context, index, primaryKey string) error
	DeleteIndex(ctx context.Context, index string) error
	GetSettings(ctx context.Context, index string) (engine.Settings, error)
	UpdateSettings(ctx context.Context, index string, s engine.Settings) error
	Stats(ctx context.Context, index string) (engine.IndexStats, error)
}

// Versions bumps and reads cache version counters.
type Versions interface {
	Bump(ctx context.Context, index string) (int64, error)
	Current(ctx context.Context, indexes ...string) ([]int64, error)
}

// Transformer turns records into documents.
type Transformer interface {
	Transform(ctx context.Context, rec document.Record, m mapping.Mapping, tenant string) document.Document
}

// Queue accepts jobs.
type Queue interface {
	Enqueue(ctx context.Context, jobs ...job.Job) error
}

// Locker serializes work per key.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}
