package chi

import (
	"context"

	"github.com/kailas-cloud/fedsearch/internal/domain/search/result"
	"github.com/kailas-cloud/fedsearch/internal/usecase/federation"
	healthuc "github.com/kailas-cloud/fedsearch/internal/usecase/health"
	"github.com/kailas-cloud/fedsearch/internal/usecase/indexing"
)

type mockSearcher struct {
	searchFn func(ctx context.Context, req federation.Request) (result.SearchResult, error)
	last     federation.Request
}

func (m *mockSearcher) Search(ctx context.Context, req federation.Request) (result.SearchResult, error) {
	m.last = req
	if m.searchFn != nil {
		return m.searchFn(ctx, req)
	}
	return result.Empty(req.Query, req.Limit), nil
}

type enqueueCall struct {
	sourceType string
	ids        []string
	tenant     string
}

type mockIndexer struct {
	indexFn   func(ctx context.Context, sourceType string, ids []string, tenant string) ([]string, error)
	deleteFn  func(ctx context.Context, sourceType string, ids []string, tenant string) ([]string, error)
	reindexFn func(ctx context.Context, tenant string) (int, error)
	flushFn   func(ctx context.Context, base, tenant string) error
	syncFn    func(ctx context.Context, tenant string) error
	statusFn  func(ctx context.Context, tenant string) ([]indexing.IndexStatus, error)

	indexed []enqueueCall
	deleted []enqueueCall
}

func (m *mockIndexer) IndexRecords(ctx context.Context, sourceType string, ids []string, tenant string) ([]string, error) {
	m.indexed = append(m.indexed, enqueueCall{sourceType, ids, tenant})
	if m.indexFn != nil {
		return m.indexFn(ctx, sourceType, ids, tenant)
	}
	return []string{"job-1"}, nil
}

func (m *mockIndexer) DeleteRecords(ctx context.Context, sourceType string, ids []string, tenant string) ([]string, error) {
	m.deleted = append(m.deleted, enqueueCall{sourceType, ids, tenant})
	if m.deleteFn != nil {
		return m.deleteFn(ctx, sourceType, ids, tenant)
	}
	return []string{"job-1"}, nil
}

func (m *mockIndexer) ReindexAll(ctx context.Context, tenant string) (int, error) {
	if m.reindexFn != nil {
		return m.reindexFn(ctx, tenant)
	}
	return 0, nil
}

func (m *mockIndexer) FlushIndex(ctx context.Context, base, tenant string) error {
	if m.flushFn != nil {
		return m.flushFn(ctx, base, tenant)
	}
	return nil
}

func (m *mockIndexer) SyncSettings(ctx context.Context, tenant string) error {
	if m.syncFn != nil {
		return m.syncFn(ctx, tenant)
	}
	return nil
}

func (m *mockIndexer) Status(ctx context.Context, tenant string) ([]indexing.IndexStatus, error) {
	if m.statusFn != nil {
		return m.statusFn(ctx, tenant)
	}
	return nil, nil
}

type mockHealth struct {
	report healthuc.Report
	doctor healthuc.DoctorReport
}

func (m *mockHealth) Check(context.Context) healthuc.Report        { return m.report }
func (m *mockHealth) Doctor(context.Context) healthuc.DoctorReport { return m.doctor }
