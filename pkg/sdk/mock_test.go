package fedsearch

import (
	"context"

	"github.com/kailas-cloud/fedsearch/internal/domain/search/result"
	"github.com/kailas-cloud/fedsearch/internal/usecase/federation"
	healthuc "github.com/kailas-cloud/fedsearch/internal/usecase/health"
	"github.com/kailas-cloud/fedsearch/internal/usecase/indexing"
)

// --- searchUseCase mock ---

type mockSearchUC struct {
	searchFn func(ctx context.Context, req federation.Request) (result.SearchResult, error)
}

func (m *mockSearchUC) Search(ctx context.Context, req federation.Request) (result.SearchResult, error) {
	return m.searchFn(ctx, req)
}

// --- indexUseCase mock ---

type mockIndexUC struct {
	indexFn   func(ctx context.Context, sourceType string, ids []string, tenant string) ([]string, error)
	deleteFn  func(ctx context.Context, sourceType string, ids []string, tenant string) ([]string, error)
	reindexFn func(ctx context.Context, tenant string) (int, error)
	flushFn   func(ctx context.Context, base, tenant string) error
	syncFn    func(ctx context.Context, tenant string) error
	statusFn  func(ctx context.Context, tenant string) ([]indexing.IndexStatus, error)
}

func (m *mockIndexUC) IndexRecords(ctx context.Context, sourceType string, ids []string, tenant string) ([]string, error) {
	return m.indexFn(ctx, sourceType, ids, tenant)
}

func (m *mockIndexUC) DeleteRecords(ctx context.Context, sourceType string, ids []string, tenant string) ([]string, error) {
	return m.deleteFn(ctx, sourceType, ids, tenant)
}

func (m *mockIndexUC) ReindexAll(ctx context.Context, tenant string) (int, error) {
	return m.reindexFn(ctx, tenant)
}

func (m *mockIndexUC) FlushIndex(ctx context.Context, base, tenant string) error {
	return m.flushFn(ctx, base, tenant)
}

func (m *mockIndexUC) SyncSettings(ctx context.Context, tenant string) error {
	return m.syncFn(ctx, tenant)
}

func (m *mockIndexUC) Status(ctx context.Context, tenant string) ([]indexing.IndexStatus, error) {
	return m.statusFn(ctx, tenant)
}

// --- healthUseCase mock ---

type mockHealthUC struct {
	report healthuc.Report
	doctor healthuc.DoctorReport
}

func (m *mockHealthUC) Check(context.Context) healthuc.Report { return m.report }

func (m *mockHealthUC) Doctor(context.Context) healthuc.DoctorReport { return m.doctor }
