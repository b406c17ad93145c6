package federation

import (
	"context"
	"sync"

	"github.com/kailas-cloud/fedsearch/internal/domain/search/result"
	"github.com/kailas-cloud/fedsearch/internal/engine"
)

type mockSearcher struct {
	mu       sync.Mutex
	searchFn func(ctx context.Context, index string, req engine.SearchRequest) (engine.SearchResponse, error)
	calls    []string
	requests map[string]engine.SearchRequest
}

func (m *mockSearcher) Search(ctx context.Context, index string, req engine.SearchRequest) (engine.SearchResponse, error) {
	m.mu.Lock()
	m.calls = append(m.calls, index)
	if m.requests == nil {
		m.requests = map[string]engine.SearchRequest{}
	}
	m.requests[index] = req
	m.mu.Unlock()
	if m.searchFn != nil {
		return m.searchFn(ctx, index, req)
	}
	return engine.SearchResponse{}, nil
}

func (m *mockSearcher) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

type mockVersions struct {
	mu       sync.Mutex
	values   map[string]int64
	err      error
	requests int
}

func (m *mockVersions) Current(_ context.Context, indexes ...string) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests++
	if m.err != nil {
		return nil, m.err
	}
	out := make([]int64, len(indexes))
	for i, idx := range indexes {
		out[i] = m.values[idx]
	}
	return out, nil
}

func (m *mockVersions) bump(index string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.values == nil {
		m.values = map[string]int64{}
	}
	m.values[index]++
}

type mockCache struct {
	mu      sync.Mutex
	entries map[string]result.SearchResult
	sets    int
}

func (m *mockCache) Get(_ context.Context, key string) (result.SearchResult, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res, ok := m.entries[key]
	return res, ok
}

func (m *mockCache) Set(_ context.Context, key string, res result.SearchResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entries == nil {
		m.entries = map[string]result.SearchResult{}
	}
	m.entries[key] = res
	m.sets++
}
