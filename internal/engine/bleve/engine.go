// Package bleve implements engine.Client on embedded bleve indexes, one per physical index.
// It serves single-binary deployments and local development.
package bleve

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/kailas-cloud/fedsearch/internal/domain/document"
	"github.com/kailas-cloud/fedsearch/internal/engine"
)

var settingsKey = []byte("__settings")

func docKey(id string) []byte { return []byte("doc:" + id) }

var _ engine.Client = (*Engine)(nil)

// Engine keeps bleve indexes in memory, or under dir when dir is set.
type Engine struct {
	mu      sync.RWMutex
	dir     string
	indexes map[string]bleve.Index
	closed  bool
}

// New creates an engine. An empty dir keeps every index in memory.
func New(dir string) (*Engine, error) {
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return &Engine{dir: dir, indexes: make(map[string]bleve.Index)}, nil
}

// Close closes every open index.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var errs []error
	for name, idx := range e.indexes {
		if err := idx.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}
	e.indexes = make(map[string]bleve.Index)
	e.closed = true
	return errors.Join(errs...)
}

// open returns the named index, opening it from disk on first use.
func (e *Engine) open(name string) (bleve.Index, error) {
	e.mu.RLock()
	idx, ok := e.indexes[name]
	e.mu.RUnlock()
	if ok {
		return idx, nil
	}
	if e.dir == "" {
		return nil, engine.ErrIndexNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if idx, ok := e.indexes[name]; ok {
		return idx, nil
	}
	idx, err := bleve.Open(filepath.Join(e.dir, name))
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		return nil, engine.ErrIndexNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open index %s: %w", name, err)
	}
	e.indexes[name] = idx
	return idx, nil
}

// CreateIndex creates an index with the default dynamic mapping.
func (e *Engine) CreateIndex(_ context.Context, index, primaryKey string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.indexes[index]; ok {
		return fmt.Errorf("index %s already exists", index)
	}

	var (
		idx bleve.Index
		err error
	)
	if e.dir == "" {
		idx, err = bleve.NewMemOnly(bleve.NewIndexMapping())
	} else {
		idx, err = bleve.New(filepath.Join(e.dir, index), bleve.NewIndexMapping())
	}
	if err != nil {
		return fmt.Errorf("create index %s: %w", index, err)
	}
	if err := writeSettings(idx, engine.Settings{PrimaryKey: primaryKey}); err != nil {
		_ = idx.Close()
		return err
	}
	e.indexes[index] = idx
	return nil
}

// DeleteIndex closes and removes the index. A missing index is not an error.
func (e *Engine) DeleteIndex(_ context.Context, index string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if idx, ok := e.indexes[index]; ok {
		delete(e.indexes, index)
		if err := idx.Close(); err != nil {
			return fmt.Errorf("close index %s: %w", index, err)
		}
	}
	if e.dir != "" {
		if err := os.RemoveAll(filepath.Join(e.dir, index)); err != nil {
			return fmt.Errorf("remove index %s: %w", index, err)
		}
	}
	return nil
}

func writeSettings(idx bleve.Index, s engine.Settings) error {
	data, err := json.Marshal(engine.EncodeSettings(s))
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	if err := idx.SetInternal(settingsKey, data); err != nil {
		return fmt.Errorf("store settings: %w", err)
	}
	return nil
}

func readSettings(idx bleve.Index) (engine.Settings, error) {
	data, err := idx.GetInternal(settingsKey)
	if err != nil {
		return engine.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	if len(data) == 0 {
		return engine.Settings{}, nil
	}
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return engine.Settings{}, fmt.Errorf("unmarshal settings: %w", err)
	}
	return engine.DecodeSettings(m)
}

// GetSettings returns the stored settings.
func (e *Engine) GetSettings(_ context.Context, index string) (engine.Settings, error) {
	idx, err := e.open(index)
	if err != nil {
		return engine.Settings{}, err
	}
	return readSettings(idx)
}

// UpdateSettings stores settings; the primary key is fixed at creation.
// The searchable list narrows which fields a query matches.
func (e *Engine) UpdateSettings(_ context.Context, index string, s engine.Settings) error {
	idx, err := e.open(index)
	if err != nil {
		return err
	}
	current, err := readSettings(idx)
	if err != nil {
		return err
	}
	s.PrimaryKey = current.PrimaryKey
	return writeSettings(idx, s)
}

// AddDocuments indexes documents in one batch and keeps their source JSON as internal data.
func (e *Engine) AddDocuments(_ context.Context, index string, docs []document.Document, primaryKey string) error {
	if len(docs) == 0 {
		return nil
	}
	idx, err := e.open(index)
	if err != nil {
		return err
	}
	if primaryKey == "" {
		s, err := readSettings(idx)
		if err != nil {
			return err
		}
		primaryKey = s.PrimaryKey
	}

	batch := idx.NewBatch()
	for i, doc := range docs {
		id, ok := doc.ID(primaryKey)
		if !ok {
			return fmt.Errorf("document %d: missing primary key %q", i, primaryKey)
		}
		raw, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("marshal document %s: %w", id, err)
		}
		if err := batch.Index(id, map[string]any(doc)); err != nil {
			return fmt.Errorf("failed to index document %s: %w", id, err)
		}
		batch.SetInternal(docKey(id), raw)
	}
	if err := idx.Batch(batch); err != nil {
		return fmt.Errorf("failed to execute batch: %w", err)
	}
	return nil
}

// DeleteDocuments removes documents by id.
func (e *Engine) DeleteDocuments(_ context.Context, index string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	idx, err := e.open(index)
	if err != nil {
		return err
	}
	batch := idx.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
		batch.DeleteInternal(docKey(id))
	}
	if err := idx.Batch(batch); err != nil {
		return fmt.Errorf("failed to delete documents: %w", err)
	}
	return nil
}

// DeleteAllDocuments removes every document while keeping the index and its settings.
func (e *Engine) DeleteAllDocuments(ctx context.Context, index string) error {
	idx, err := e.open(index)
	if err != nil {
		return err
	}
	count, err := idx.DocCount()
	if err != nil {
		return fmt.Errorf("count %s: %w", index, err)
	}
	if count == 0 {
		return nil
	}

	req := bleve.NewSearchRequestOptions(bleve.NewMatchAllQuery(), int(count), 0, false)
	res, err := idx.SearchInContext(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to search for all IDs: %w", err)
	}
	ids := make([]string, len(res.Hits))
	for i, hit := range res.Hits {
		ids[i] = hit.ID
	}
	return e.DeleteDocuments(ctx, index, ids)
}

// Search matches the query against the searchable fields (all fields when none are set)
// and ANDs a bleve query-string filter. A hit with term locations counts as matched.
func (e *Engine) Search(ctx context.Context, index string, req engine.SearchRequest) (engine.SearchResponse, error) {
	idx, err := e.open(index)
	if err != nil {
		return engine.SearchResponse{}, err
	}
	s, err := readSettings(idx)
	if err != nil {
		return engine.SearchResponse{}, err
	}

	q := buildQuery(strings.TrimSpace(req.Query), s.Searchable, req.NonEmptyFilters())
	sreq := bleve.NewSearchRequestOptions(q, max(req.Limit, 1), 0, false)
	sreq.IncludeLocations = true

	res, err := idx.SearchInContext(ctx, sreq)
	if err != nil {
		return engine.SearchResponse{}, fmt.Errorf("search %s: %w", index, err)
	}

	out := engine.SearchResponse{
		Hits:               make([]engine.Hit, 0, len(res.Hits)),
		EstimatedTotalHits: int(res.Total),
	}
	for _, hit := range res.Hits {
		raw, err := idx.GetInternal(docKey(hit.ID))
		if err != nil || len(raw) == 0 {
			continue
		}
		var doc document.Document
		if err := json.Unmarshal(raw, &doc); err != nil {
			continue
		}
		out.Hits = append(out.Hits, engine.Hit{Document: doc, Matched: len(hit.Locations) > 0})
	}
	return out, nil
}

func buildQuery(text string, searchable []string, filters []string) query.Query {
	var textQuery query.Query
	switch {
	case text == "":
		textQuery = bleve.NewMatchAllQuery()
	case len(searchable) == 0:
		textQuery = bleve.NewMatchQuery(text)
	default:
		per := make([]query.Query, 0, len(searchable))
		for _, f := range searchable {
			mq := bleve.NewMatchQuery(text)
			mq.SetField(f)
			per = append(per, mq)
		}
		textQuery = bleve.NewDisjunctionQuery(per...)
	}
	if len(filters) == 0 {
		return textQuery
	}
	conj := make([]query.Query, 0, len(filters)+1)
	conj = append(conj, textQuery)
	for _, f := range filters {
		conj = append(conj, bleve.NewQueryStringQuery(f))
	}
	return bleve.NewConjunctionQuery(conj...)
}

// Health reports whether the engine still accepts calls.
func (e *Engine) Health(_ context.Context) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return fmt.Errorf("bleve engine is closed")
	}
	return nil
}

// Stats returns the document count.
func (e *Engine) Stats(_ context.Context, index string) (engine.IndexStats, error) {
	idx, err := e.open(index)
	if err != nil {
		return engine.IndexStats{}, err
	}
	n, err := idx.DocCount()
	if err != nil {
		return engine.IndexStats{}, fmt.Errorf("count %s: %w", index, err)
	}
	return engine.IndexStats{NumDocuments: int64(n)}, nil
}
