// Package redis implements engine.Client on the Redis Query Engine over JSON documents.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/kailas-cloud/fedsearch/internal/db"
	"github.com/kailas-cloud/fedsearch/internal/domain/document"
	"github.com/kailas-cloud/fedsearch/internal/engine"
)

// contentField concatenates searchable text; FT indexes it as the only TEXT field.
const contentField = "__content"

const keyPrefix = "fedsearch:"

// store is the consumer interface for the engine adapter (ISP).
//
//nolint:interfacebloat // adapter needs JSON docs, hash settings and FT management
type store interface {
	Ping(ctx context.Context) error
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Del(ctx context.Context, keys ...string) error
	Scan(ctx context.Context, pattern string) ([]string, error)
	JSONSetMulti(ctx context.Context, items []db.JSONSetItem) error
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	DropIndex(ctx context.Context, name string, deleteDocs bool) error
	IndexExists(ctx context.Context, name string) (bool, error)
	AlterIndexAdd(ctx context.Context, name string, field db.IndexField) error
	IndexDocCount(ctx context.Context, name string) (int, error)
	SynUpdate(ctx context.Context, name, groupID string, terms ...string) error
	SearchText(ctx context.Context, q *db.TextQuery) (*db.SearchResult, error)
}

var _ engine.Client = (*Engine)(nil)

// Engine implements engine.Client on Redis 8+.
type Engine struct {
	store store
}

// New creates a Redis-backed engine.
func New(s store) *Engine {
	return &Engine{store: s}
}

// Key patterns: fedsearch:doc:{index}:{id}, fedsearch:engine:settings:{index}

func docPrefix(index string) string {
	return fmt.Sprintf("%sdoc:%s:", keyPrefix, index)
}

func docKey(index, id string) string {
	return docPrefix(index) + id
}

// CreateIndex stores settings then runs FT.CREATE; the settings hash is rolled back on failure.
func (e *Engine) CreateIndex(ctx context.Context, index, primaryKey string) error {
	def, err := db.NewIndex(index).
		OnJSON().
		Prefix(docPrefix(index)).
		Text("$."+contentField, contentField).
		Tag("$."+primaryKey, primaryKey).
		Build()
	if err != nil {
		return fmt.Errorf("build index %s: %w", index, err)
	}

	if err := e.store.HSet(ctx, engine.SettingsKey(index), engine.EncodeSettings(engine.Settings{PrimaryKey: primaryKey})); err != nil {
		return fmt.Errorf("hset settings %s: %w", index, err)
	}
	if err := e.store.CreateIndex(ctx, def); err != nil {
		cleanupErr := e.store.Del(ctx, engine.SettingsKey(index))
		return errors.Join(fmt.Errorf("create index %s: %w", index, err), cleanupErr)
	}
	return nil
}

// DeleteIndex drops the index together with its documents. A missing index is not an error.
func (e *Engine) DeleteIndex(ctx context.Context, index string) error {
	if err := e.store.DropIndex(ctx, index, true); err != nil && !errors.Is(err, db.ErrIndexNotFound) {
		return fmt.Errorf("drop index %s: %w", index, err)
	}
	if err := e.store.Del(ctx, engine.SettingsKey(index)); err != nil {
		return fmt.Errorf("del settings %s: %w", index, err)
	}
	return nil
}

// GetSettings returns the stored settings of an existing index.
func (e *Engine) GetSettings(ctx context.Context, index string) (engine.Settings, error) {
	exists, err := e.store.IndexExists(ctx, index)
	if err != nil {
		return engine.Settings{}, fmt.Errorf("check index %s: %w", index, err)
	}
	if !exists {
		return engine.Settings{}, engine.ErrIndexNotFound
	}
	m, err := e.store.HGetAll(ctx, engine.SettingsKey(index))
	if err != nil {
		return engine.Settings{}, fmt.Errorf("hgetall settings %s: %w", index, err)
	}
	return engine.DecodeSettings(m)
}

// UpdateSettings adds filterable (TAG) and sortable (NUMERIC) fields to the schema and
// installs one synonym group per root term. The primary key is fixed at creation and ignored here.
// Stop words are recorded only; FT fixes them at FT.CREATE time.
func (e *Engine) UpdateSettings(ctx context.Context, index string, s engine.Settings) error {
	current, err := e.GetSettings(ctx, index)
	if err != nil {
		return err
	}

	added := make(map[string]struct{})
	for _, f := range s.Filterable {
		if err := e.addField(ctx, index, db.IndexField{Name: "$." + f, Alias: f, Type: db.IndexFieldTag}, added); err != nil {
			return err
		}
	}
	for _, f := range s.Sortable {
		field := db.IndexField{Name: "$." + f, Alias: f, Type: db.IndexFieldNumeric, Sortable: true}
		if err := e.addField(ctx, index, field, added); err != nil {
			return err
		}
	}

	roots := make([]string, 0, len(s.Synonyms))
	for root := range s.Synonyms {
		roots = append(roots, root)
	}
	sort.Strings(roots)
	for _, root := range roots {
		terms := append([]string{root}, s.Synonyms[root]...)
		if err := e.store.SynUpdate(ctx, index, root, terms...); err != nil {
			return fmt.Errorf("synonyms %s/%s: %w", index, root, err)
		}
	}

	s.PrimaryKey = current.PrimaryKey
	if err := e.store.HSet(ctx, engine.SettingsKey(index), engine.EncodeSettings(s)); err != nil {
		return fmt.Errorf("hset settings %s: %w", index, err)
	}
	return nil
}

func (e *Engine) addField(ctx context.Context, index string, f db.IndexField, added map[string]struct{}) error {
	if _, ok := added[f.Alias]; ok {
		return nil
	}
	added[f.Alias] = struct{}{}
	err := e.store.AlterIndexAdd(ctx, index, f)
	switch {
	case err == nil, errors.Is(err, db.ErrFieldExists):
		return nil
	case errors.Is(err, db.ErrIndexNotFound):
		return engine.ErrIndexNotFound
	default:
		return fmt.Errorf("alter index %s add %s: %w", index, f.Alias, err)
	}
}

// AddDocuments upserts documents as JSON in one pipelined round-trip.
func (e *Engine) AddDocuments(ctx context.Context, index string, docs []document.Document, primaryKey string) error {
	if len(docs) == 0 {
		return nil
	}
	m, err := e.store.HGetAll(ctx, engine.SettingsKey(index))
	if err != nil {
		return fmt.Errorf("hgetall settings %s: %w", index, err)
	}
	settings, err := engine.DecodeSettings(m)
	if err != nil {
		return err
	}
	if primaryKey == "" {
		primaryKey = settings.PrimaryKey
	}

	items := make([]db.JSONSetItem, 0, len(docs))
	for i, doc := range docs {
		id, ok := doc.ID(primaryKey)
		if !ok {
			return fmt.Errorf("document %d: missing primary key %q", i, primaryKey)
		}
		body := doc.Clone()
		body[primaryKey] = id
		body[contentField] = contentOf(doc, settings.Searchable)
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal document %s: %w", id, err)
		}
		items = append(items, db.JSONSetItem{Key: docKey(index, id), Path: "$", Data: data})
	}

	if err := e.store.JSONSetMulti(ctx, items); err != nil {
		return fmt.Errorf("write documents to %s: %w", index, err)
	}
	return nil
}

// DeleteDocuments removes documents by primary-key value.
func (e *Engine) DeleteDocuments(ctx context.Context, index string, ids []string) error {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = docKey(index, id)
	}
	if err := e.store.Del(ctx, keys...); err != nil {
		return fmt.Errorf("delete documents from %s: %w", index, err)
	}
	return nil
}

const deleteChunk = 500

// DeleteAllDocuments removes every document under the index prefix, keeping the index.
func (e *Engine) DeleteAllDocuments(ctx context.Context, index string) error {
	keys, err := e.store.Scan(ctx, docPrefix(index)+"*")
	if err != nil {
		return fmt.Errorf("scan %s: %w", index, err)
	}
	for start := 0; start < len(keys); start += deleteChunk {
		end := min(start+deleteChunk, len(keys))
		if err := e.store.Del(ctx, keys[start:end]...); err != nil {
			return fmt.Errorf("delete documents from %s: %w", index, err)
		}
	}
	return nil
}

// Search runs a scored full-text query; a positive score counts as a match annotation.
func (e *Engine) Search(ctx context.Context, index string, req engine.SearchRequest) (engine.SearchResponse, error) {
	res, err := e.store.SearchText(ctx, &db.TextQuery{
		IndexName:    index,
		Field:        contentField,
		Query:        req.Query,
		Filter:       joinFilters(req.NonEmptyFilters()),
		TopK:         max(req.Limit, 1),
		ReturnFields: []string{"$"},
	})
	if err != nil {
		if errors.Is(err, db.ErrIndexNotFound) {
			return engine.SearchResponse{}, engine.ErrIndexNotFound
		}
		return engine.SearchResponse{}, fmt.Errorf("search %s: %w", index, err)
	}

	hits := make([]engine.Hit, 0, len(res.Entries))
	for _, entry := range res.Entries {
		raw, ok := entry.Fields["$"]
		if !ok {
			continue
		}
		var doc document.Document
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			continue
		}
		delete(doc, contentField)
		hits = append(hits, engine.Hit{
			Document: doc,
			Matched:  strings.TrimSpace(req.Query) != "" && entry.Score > 0,
		})
	}
	return engine.SearchResponse{Hits: hits, EstimatedTotalHits: res.Total}, nil
}

// Health pings the store.
func (e *Engine) Health(ctx context.Context) error {
	return e.store.Ping(ctx)
}

// Stats reads num_docs from FT.INFO.
func (e *Engine) Stats(ctx context.Context, index string) (engine.IndexStats, error) {
	n, err := e.store.IndexDocCount(ctx, index)
	if err != nil {
		if errors.Is(err, db.ErrIndexNotFound) {
			return engine.IndexStats{}, engine.ErrIndexNotFound
		}
		return engine.IndexStats{}, fmt.Errorf("stats %s: %w", index, err)
	}
	return engine.IndexStats{NumDocuments: int64(n)}, nil
}

// contentOf joins the searchable string values. Without a searchable list every
// top-level string field contributes, in key order so the text is stable.
func contentOf(doc document.Document, searchable []string) string {
	fields := searchable
	if len(fields) == 0 {
		fields = make([]string, 0, len(doc))
		for k := range doc {
			if strings.HasPrefix(k, "_") {
				continue
			}
			fields = append(fields, k)
		}
		sort.Strings(fields)
	}

	var parts []string
	for _, f := range fields {
		switch v := doc[f].(type) {
		case string:
			if v != "" {
				parts = append(parts, v)
			}
		case []any:
			for _, item := range v {
				if s, ok := item.(string); ok && s != "" {
					parts = append(parts, s)
				}
			}
		case []string:
			for _, s := range v {
				if s != "" {
					parts = append(parts, s)
				}
			}
		}
	}
	return strings.Join(parts, " ")
}

// joinFilters intersects FT filter expressions.
func joinFilters(filters []string) string {
	switch len(filters) {
	case 0:
		return ""
	case 1:
		return filters[0]
	}
	parts := make([]string, len(filters))
	for i, f := range filters {
		parts[i] = "(" + f + ")"
	}
	return strings.Join(parts, " ")
}
