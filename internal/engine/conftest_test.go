package engine

import (
	"context"

	"github.com/kailas-cloud/fedsearch/internal/domain/document"
)

// mockClient records the deadline each call observed.
type mockClient struct {
	searchFn      func(ctx context.Context, index string, req SearchRequest) (SearchResponse, error)
	addFn         func(ctx context.Context, index string, docs []document.Document, pk string) error
	getSettingsFn func(ctx context.Context, index string) (Settings, error)

	lastDeadlineOK bool
}

func (m *mockClient) note(ctx context.Context) {
	_, m.lastDeadlineOK = ctx.Deadline()
}

func (m *mockClient) Search(ctx context.Context, index string, req SearchRequest) (SearchResponse, error) {
	m.note(ctx)
	if m.searchFn != nil {
		return m.searchFn(ctx, index, req)
	}
	return SearchResponse{}, nil
}

func (m *mockClient) AddDocuments(ctx context.Context, index string, docs []document.Document, pk string) error {
	m.note(ctx)
	if m.addFn != nil {
		return m.addFn(ctx, index, docs, pk)
	}
	return nil
}

func (m *mockClient) DeleteDocuments(ctx context.Context, _ string, _ []string) error {
	m.note(ctx)
	return nil
}

func (m *mockClient) DeleteAllDocuments(ctx context.Context, _ string) error {
	m.note(ctx)
	return nil
}

func (m *mockClient) CreateIndex(ctx context.Context, _, _ string) error {
	m.note(ctx)
	return nil
}

func (m *mockClient) DeleteIndex(ctx context.Context, _ string) error {
	m.note(ctx)
	return nil
}

func (m *mockClient) GetSettings(ctx context.Context, index string) (Settings, error) {
	m.note(ctx)
	if m.getSettingsFn != nil {
		return m.getSettingsFn(ctx, index)
	}
	return Settings{}, nil
}

func (m *mockClient) UpdateSettings(ctx context.Context, _ string, _ Settings) error {
	m.note(ctx)
	return nil
}

func (m *mockClient) Health(ctx context.Context) error {
	m.note(ctx)
	return nil
}

func (m *mockClient) Stats(ctx context.Context, _ string) (IndexStats, error) {
	m.note(ctx)
	return IndexStats{}, nil
}
