package chi

import (
	"context"

	"github.com/kailas-cloud/fedsearch/internal/domain/search/result"
	"github.com/kailas-cloud/fedsearch/internal/usecase/federation"
	healthuc "github.com/kailas-cloud/fedsearch/internal/usecase/health"
	"github.com/kailas-cloud/fedsearch/internal/usecase/indexing"
)

// Searcher runs federated queries.
type Searcher interface {
	Search(ctx context.Context, req federation.Request) (result.SearchResult, error)
}

// Indexer accepts indexing and admin operations.
type Indexer interface {
	IndexRecords(ctx context.Context, sourceType string, ids []string, tenant string) ([]string, error)
	DeleteRecords(ctx context.Context, sourceType string, ids []string, tenant string) ([]string, error)
	ReindexAll(ctx context.Context, tenant string) (int, error)
	FlushIndex(ctx context.Context, base, tenant string) error
	SyncSettings(ctx context.Context, tenant string) error
	Status(ctx context.Context, tenant string) ([]indexing.IndexStatus, error)
}

// HealthChecker reports component health and runs diagnostics.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
	Doctor(ctx context.Context) healthuc.DoctorReport
}
