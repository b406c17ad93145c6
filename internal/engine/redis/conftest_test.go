package redis

import (
	"context"
	"strings"
	"sync"

	"github.com/kailas-cloud/fedsearch/internal/db"
)

// mockStore is an in-memory stand-in for the consumer interface.
type mockStore struct {
	mu       sync.Mutex
	hashes   map[string]map[string]string
	docs     map[string][]byte
	indexes  map[string]*db.IndexDefinition
	altered  []db.IndexField
	dropped  []string
	deleted  []string
	searchFn func(ctx context.Context, q *db.TextQuery) (*db.SearchResult, error)
	createFn func(ctx context.Context, def *db.IndexDefinition) error
	docCount int
	synonyms map[string][]string
}

func newMockStore() *mockStore {
	return &mockStore{
		hashes:  map[string]map[string]string{},
		docs:    map[string][]byte{},
		indexes: map[string]*db.IndexDefinition{},
	}
}

func (m *mockStore) Ping(context.Context) error { return nil }

func (m *mockStore) HSet(_ context.Context, key string, fields map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hashes[key]
	if !ok {
		h = map[string]string{}
		m.hashes[key] = h
	}
	for k, v := range fields {
		h[k] = v
	}
	return nil
}

func (m *mockStore) HGetAll(_ context.Context, key string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]string{}
	for k, v := range m.hashes[key] {
		out[k] = v
	}
	return out, nil
}

func (m *mockStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.hashes, k)
		delete(m.docs, k)
		m.deleted = append(m.deleted, k)
	}
	return nil
}

func (m *mockStore) Scan(_ context.Context, pattern string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	var keys []string
	for k := range m.docs {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (m *mockStore) JSONSetMulti(_ context.Context, items []db.JSONSetItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range items {
		m.docs[it.Key] = it.Data
	}
	return nil
}

func (m *mockStore) CreateIndex(ctx context.Context, def *db.IndexDefinition) error {
	if m.createFn != nil {
		return m.createFn(ctx, def)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.indexes[def.Name]; ok {
		return db.ErrIndexExists
	}
	m.indexes[def.Name] = def
	return nil
}

func (m *mockStore) DropIndex(_ context.Context, name string, _ bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.indexes[name]; !ok {
		return db.ErrIndexNotFound
	}
	delete(m.indexes, name)
	m.dropped = append(m.dropped, name)
	return nil
}

func (m *mockStore) IndexExists(_ context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.indexes[name]
	return ok, nil
}

func (m *mockStore) AlterIndexAdd(_ context.Context, name string, field db.IndexField) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	def, ok := m.indexes[name]
	if !ok {
		return db.ErrIndexNotFound
	}
	for _, f := range def.Fields {
		if f.Alias == field.Alias {
			return db.ErrFieldExists
		}
	}
	def.Fields = append(def.Fields, field)
	m.altered = append(m.altered, field)
	return nil
}

func (m *mockStore) IndexDocCount(_ context.Context, name string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.indexes[name]; !ok {
		return 0, db.ErrIndexNotFound
	}
	return m.docCount, nil
}

func (m *mockStore) SynUpdate(_ context.Context, _, groupID string, terms ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.synonyms == nil {
		m.synonyms = map[string][]string{}
	}
	m.synonyms[groupID] = terms
	return nil
}

func (m *mockStore) SearchText(ctx context.Context, q *db.TextQuery) (*db.SearchResult, error) {
	if m.searchFn != nil {
		return m.searchFn(ctx, q)
	}
	return &db.SearchResult{}, nil
}
