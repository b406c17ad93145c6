package indexing

import (
	"context"
	"slices"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/fedsearch/internal/domain/document"
	"github.com/kailas-cloud/fedsearch/internal/domain/job"
	"github.com/kailas-cloud/fedsearch/internal/domain/mapping"
	"github.com/kailas-cloud/fedsearch/internal/domain/tenant"
	"github.com/kailas-cloud/fedsearch/internal/engine"
)

// --- Engine ---

type mockEngine struct {
	mu        sync.Mutex
	indexes   map[string]engine.Settings
	docs      map[string]map[string]document.Document
	batches   map[string][]int
	creates   []string
	deletes   []string
	updates   map[string]engine.Settings
	flushed   []string
	stats     map[string]int64
	getCalls  int
	addErr    error
	deleteErr error
	// lagPK, when set, is reported by GetSettings instead of the real primary key.
	lagPK string
}

func newMockEngine() *mockEngine {
	return &mockEngine{
		indexes: map[string]engine.Settings{},
		docs:    map[string]map[string]document.Document{},
		batches: map[string][]int{},
		updates: map[string]engine.Settings{},
		stats:   map[string]int64{},
	}
}

func (m *mockEngine) AddDocuments(_ context.Context, index string, docs []document.Document, pk string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.addErr != nil {
		return m.addErr
	}
	if m.docs[index] == nil {
		m.docs[index] = map[string]document.Document{}
	}
	for _, d := range docs {
		id, _ := d.ID(pk)
		m.docs[index][id] = d
	}
	m.batches[index] = append(m.batches[index], len(docs))
	return nil
}

func (m *mockEngine) DeleteDocuments(_ context.Context, index string, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	if _, ok := m.indexes[index]; !ok {
		return engine.ErrIndexNotFound
	}
	for _, id := range ids {
		delete(m.docs[index], id)
	}
	return nil
}

func (m *mockEngine) DeleteAllDocuments(_ context.Context, index string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushed = append(m.flushed, index)
	delete(m.docs, index)
	return nil
}

func (m *mockEngine) CreateIndex(_ context.Context, index, pk string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.indexes[index] = engine.Settings{PrimaryKey: pk}
	m.creates = append(m.creates, index)
	return nil
}

func (m *mockEngine) DeleteIndex(_ context.Context, index string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.indexes[index]; !ok {
		return engine.ErrIndexNotFound
	}
	delete(m.indexes, index)
	delete(m.docs, index)
	m.deletes = append(m.deletes, index)
	return nil
}

func (m *mockEngine) GetSettings(_ context.Context, index string) (engine.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	s, ok := m.indexes[index]
	if !ok {
		return engine.Settings{}, engine.ErrIndexNotFound
	}
	if m.lagPK != "" {
		s.PrimaryKey = m.lagPK
	}
	return s, nil
}

func (m *mockEngine) UpdateSettings(_ context.Context, index string, s engine.Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur := m.indexes[index]
	s.PrimaryKey = cur.PrimaryKey
	m.indexes[index] = s
	m.updates[index] = s
	return nil
}

func (m *mockEngine) Stats(_ context.Context, index string) (engine.IndexStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.indexes[index]; !ok {
		return engine.IndexStats{}, engine.ErrIndexNotFound
	}
	return engine.IndexStats{NumDocuments: int64(len(m.docs[index]))}, nil
}

// --- Source ---

type mockSource struct {
	mu      sync.Mutex
	rows    map[string][]document.Record // by source type, sorted by ID
	fetches [][]string
	fetchFn func(ctx context.Context, m mapping.Mapping, ids []string) ([]document.Record, error)
}

func (m *mockSource) FetchByIDs(ctx context.Context, mp mapping.Mapping, ids []string) ([]document.Record, error) {
	m.mu.Lock()
	m.fetches = append(m.fetches, slices.Clone(ids))
	m.mu.Unlock()
	if m.fetchFn != nil {
		return m.fetchFn(ctx, mp, ids)
	}
	var out []document.Record
	for _, r := range m.rows[mp.SourceType()] {
		if slices.Contains(ids, r.ID) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockSource) ListIDs(_ context.Context, mp mapping.Mapping, after string, limit int) ([]string, error) {
	var out []string
	for _, r := range m.rows[mp.SourceType()] {
		if r.ID > after {
			out = append(out, r.ID)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *mockSource) Count(_ context.Context, mp mapping.Mapping) (int64, error) {
	return int64(len(m.rows[mp.SourceType()])), nil
}

// --- Versions ---

type mockVersions struct {
	mu     sync.Mutex
	values map[string]int64
	bumps  []string
}

func (m *mockVersions) Bump(_ context.Context, index string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.values == nil {
		m.values = map[string]int64{}
	}
	m.values[index]++
	m.bumps = append(m.bumps, index)
	return m.values[index], nil
}

func (m *mockVersions) Current(_ context.Context, indexes ...string) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]int64, len(indexes))
	for i, idx := range indexes {
		out[i] = m.values[idx]
	}
	return out, nil
}

// --- Transformer ---

type stubTransformer struct{}

func (stubTransformer) Transform(_ context.Context, rec document.Record, m mapping.Mapping, tenantID string) document.Document {
	doc := document.Document{m.PrimaryKey(): rec.ID}
	for k, v := range rec.Attributes {
		doc[k] = v
	}
	if tenantID != "" {
		doc[document.FieldTenant] = tenantID
	}
	return doc
}

// --- Queue ---

type mockQueue struct {
	mu   sync.Mutex
	jobs []job.Job
	err  error
}

func (m *mockQueue) Enqueue(_ context.Context, jobs ...job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.jobs = append(m.jobs, jobs...)
	return nil
}

// --- Locker ---

type mockLocker struct {
	mu    sync.Mutex
	keys  []string
	held  map[string]bool
	nests int
}

func (m *mockLocker) Lock(_ context.Context, key string) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held == nil {
		m.held = map[string]bool{}
	}
	if m.held[key] {
		m.nests++
	}
	m.held[key] = true
	m.keys = append(m.keys, key)
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.held[key] = false
	}, nil
}

// --- Fixtures ---

func testMappings(t *testing.T) *mapping.Registry {
	t.Helper()
	products, err := mapping.New(mapping.Spec{
		SourceType: "products",
		IndexName:  "products",
		Searchable: []string{"name"},
		Filterable: []string{"status"},
	})
	if err != nil {
		t.Fatalf("mapping: %v", err)
	}
	pages, err := mapping.New(mapping.Spec{
		SourceType: "pages",
		IndexName:  "content",
		Searchable: []string{"title"},
	})
	if err != nil {
		t.Fatalf("mapping: %v", err)
	}
	posts, err := mapping.New(mapping.Spec{
		SourceType: "posts",
		IndexName:  "content",
		Searchable: []string{"title", "body"},
		Sortable:   []string{"published_at"},
	})
	if err != nil {
		t.Fatalf("mapping: %v", err)
	}
	reg, err := mapping.NewRegistry(products, pages, posts)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return reg
}

func records(n int) []document.Record {
	out := make([]document.Record, n)
	for i := range out {
		id := padID(i)
		out[i] = document.Record{ID: id, Attributes: map[string]any{"id": id, "name": "item " + id}}
	}
	return out
}

func padID(i int) string {
	const digits = "0123456789"
	return string([]byte{digits[i/1000%10], digits[i/100%10], digits[i/10%10], digits[i%10]})
}

func ids(recs []document.Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}

type fixture struct {
	svc      *Service
	engine   *mockEngine
	source   *mockSource
	versions *mockVersions
	queue    *mockQueue
	locker   *mockLocker
}

func newFixture(t *testing.T, resolver tenant.Resolver, cfg Config) *fixture {
	t.Helper()
	f := &fixture{
		engine:   newMockEngine(),
		source:   &mockSource{rows: map[string][]document.Record{}},
		versions: &mockVersions{},
		queue:    &mockQueue{},
		locker:   &mockLocker{},
	}
	if cfg.ReconcileInterval == 0 {
		cfg.ReconcileInterval = 1
	}
	f.svc = New(Deps{
		Mappings:    testMappings(t),
		Source:      f.source,
		Engine:      f.engine,
		Versions:    f.versions,
		Transformer: stubTransformer{},
		Queue:       f.queue,
		Locker:      f.locker,
		Resolver:    resolver,
	}, cfg, zap.NewNop())
	return f
}
