// Package typesense implements engine.Client on a Typesense cluster.
package typesense

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/typesense/typesense-go/typesense"
	"github.com/typesense/typesense-go/typesense/api"
	"github.com/typesense/typesense-go/typesense/api/pointer"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/fedsearch/internal/domain/document"
	"github.com/kailas-cloud/fedsearch/internal/engine"
)

// Typesense always keys documents by "id"; the declared primary key lives in the settings store.
const typesenseID = "id"

// settingsStore keeps the settings Typesense has no place for.
type settingsStore interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Del(ctx context.Context, keys ...string) error
}

// Config holds connection parameters.
type Config struct {
	URL              string
	APIKey           string
	ConnTimeout      time.Duration
	WriteConcurrency int
	HealthTimeout    time.Duration
}

var _ engine.Client = (*Engine)(nil)

// Engine implements engine.Client via typesense-go.
type Engine struct {
	client      *typesense.Client
	settings    settingsStore
	concurrency int
	healthWait  time.Duration
}

// New creates a Typesense-backed engine.
func New(cfg Config, settings settingsStore) (*Engine, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("typesense url is required")
	}
	timeout := cfg.ConnTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	client := typesense.NewClient(
		typesense.WithServer(cfg.URL),
		typesense.WithAPIKey(cfg.APIKey),
		typesense.WithConnectionTimeout(timeout),
	)

	concurrency := cfg.WriteConcurrency
	if concurrency <= 0 {
		concurrency = 8
	}
	healthWait := cfg.HealthTimeout
	if healthWait <= 0 {
		healthWait = 5 * time.Second
	}
	return &Engine{client: client, settings: settings, concurrency: concurrency, healthWait: healthWait}, nil
}

func isNotFound(err error) bool {
	var httpErr *typesense.HTTPError
	return errors.As(err, &httpErr) && httpErr.Status == http.StatusNotFound
}

// CreateIndex creates a collection with an auto-detecting schema and records the primary key.
func (e *Engine) CreateIndex(ctx context.Context, index, primaryKey string) error {
	schema := &api.CollectionSchema{
		Name:   index,
		Fields: []api.Field{{Name: ".*", Type: "auto"}},
	}
	if _, err := e.client.Collections().Create(ctx, schema); err != nil {
		return fmt.Errorf("typesense create collection %s: %w", index, err)
	}
	if err := e.settings.HSet(ctx, engine.SettingsKey(index), engine.EncodeSettings(engine.Settings{PrimaryKey: primaryKey})); err != nil {
		return fmt.Errorf("hset settings %s: %w", index, err)
	}
	return nil
}

// DeleteIndex drops the collection. A missing collection is not an error.
func (e *Engine) DeleteIndex(ctx context.Context, index string) error {
	if _, err := e.client.Collection(index).Delete(ctx); err != nil && !isNotFound(err) {
		return fmt.Errorf("typesense delete collection %s: %w", index, err)
	}
	if err := e.settings.Del(ctx, engine.SettingsKey(index)); err != nil {
		return fmt.Errorf("del settings %s: %w", index, err)
	}
	return nil
}

// GetSettings confirms the collection exists and returns the recorded settings.
func (e *Engine) GetSettings(ctx context.Context, index string) (engine.Settings, error) {
	if _, err := e.client.Collection(index).Retrieve(ctx); err != nil {
		if isNotFound(err) {
			return engine.Settings{}, engine.ErrIndexNotFound
		}
		return engine.Settings{}, fmt.Errorf("typesense retrieve %s: %w", index, err)
	}
	return e.loadSettings(ctx, index)
}

func (e *Engine) loadSettings(ctx context.Context, index string) (engine.Settings, error) {
	m, err := e.settings.HGetAll(ctx, engine.SettingsKey(index))
	if err != nil {
		return engine.Settings{}, fmt.Errorf("hgetall settings %s: %w", index, err)
	}
	return engine.DecodeSettings(m)
}

// UpdateSettings records searchable, filterable and sortable lists. Auto-schema fields are
// filterable and sortable without schema changes; the searchable list becomes query_by.
func (e *Engine) UpdateSettings(ctx context.Context, index string, s engine.Settings) error {
	current, err := e.GetSettings(ctx, index)
	if err != nil {
		return err
	}
	s.PrimaryKey = current.PrimaryKey
	if err := e.settings.HSet(ctx, engine.SettingsKey(index), engine.EncodeSettings(s)); err != nil {
		return fmt.Errorf("hset settings %s: %w", index, err)
	}
	return nil
}

// AddDocuments upserts the batch with a single import request.
// Each document's "id" is set to its primary-key value.
func (e *Engine) AddDocuments(ctx context.Context, index string, docs []document.Document, primaryKey string) error {
	if len(docs) == 0 {
		return nil
	}
	if primaryKey == "" {
		s, err := e.loadSettings(ctx, index)
		if err != nil {
			return err
		}
		primaryKey = s.PrimaryKey
	}

	batch := make([]any, len(docs))
	for i, doc := range docs {
		id, ok := doc.ID(primaryKey)
		if !ok {
			return fmt.Errorf("document %d: missing primary key %q", i, primaryKey)
		}
		body := doc.Clone()
		body[typesenseID] = id
		batch[i] = map[string]any(body)
	}

	params := &api.ImportDocumentsParams{Action: pointer.String("upsert"), BatchSize: pointer.Int(len(batch))}
	results, err := e.client.Collection(index).Documents().Import(ctx, batch, params)
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("%s: %w", index, engine.ErrIndexNotFound)
		}
		return fmt.Errorf("typesense import into %s: %w", index, err)
	}
	// Import reports per-document outcomes in request order with a 200 overall.
	for i, r := range results {
		if r != nil && !r.Success {
			return fmt.Errorf("typesense import into %s: document %d: %s", index, i, r.Error)
		}
	}
	return nil
}

// DeleteDocuments deletes documents by id; ids that are already gone are skipped.
func (e *Engine) DeleteDocuments(ctx context.Context, index string, ids []string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for _, id := range ids {
		g.Go(func() error {
			if _, err := e.client.Collection(index).Document(id).Delete(gctx); err != nil && !isNotFound(err) {
				return fmt.Errorf("typesense delete %s from %s: %w", id, index, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// DeleteAllDocuments recreates the collection from its current schema. Settings survive.
func (e *Engine) DeleteAllDocuments(ctx context.Context, index string) error {
	col, err := e.client.Collection(index).Retrieve(ctx)
	if err != nil {
		if isNotFound(err) {
			return engine.ErrIndexNotFound
		}
		return fmt.Errorf("typesense retrieve %s: %w", index, err)
	}
	if _, err := e.client.Collection(index).Delete(ctx); err != nil && !isNotFound(err) {
		return fmt.Errorf("typesense delete collection %s: %w", index, err)
	}
	schema := &api.CollectionSchema{
		Name:                index,
		Fields:              col.Fields,
		DefaultSortingField: col.DefaultSortingField,
	}
	if _, err := e.client.Collections().Create(ctx, schema); err != nil {
		return fmt.Errorf("typesense recreate collection %s: %w", index, err)
	}
	return nil
}

// Search runs one query. Highlights or a text-match score count as a match annotation.
func (e *Engine) Search(ctx context.Context, index string, req engine.SearchRequest) (engine.SearchResponse, error) {
	queryBy, err := e.queryBy(ctx, index)
	if err != nil {
		return engine.SearchResponse{}, err
	}

	q := strings.TrimSpace(req.Query)
	if q == "" {
		q = "*"
	}
	params := &api.SearchCollectionParams{
		Q:       pointer.String(q),
		QueryBy: pointer.String(queryBy),
		PerPage: pointer.Int(max(req.Limit, 1)),
	}
	if filters := req.NonEmptyFilters(); len(filters) > 0 {
		params.FilterBy = pointer.String(joinFilters(filters))
	}

	res, err := e.client.Collection(index).Documents().Search(ctx, params)
	if err != nil {
		if isNotFound(err) {
			return engine.SearchResponse{}, engine.ErrIndexNotFound
		}
		return engine.SearchResponse{}, fmt.Errorf("typesense search %s: %w", index, err)
	}

	out := engine.SearchResponse{}
	if res.Found != nil {
		out.EstimatedTotalHits = *res.Found
	}
	if res.Hits == nil {
		return out, nil
	}
	out.Hits = make([]engine.Hit, 0, len(*res.Hits))
	for _, h := range *res.Hits {
		if h.Document == nil {
			continue
		}
		matched := q != "*" && ((h.Highlights != nil && len(*h.Highlights) > 0) || (h.TextMatch != nil && *h.TextMatch > 0))
		out.Hits = append(out.Hits, engine.Hit{Document: document.Document(*h.Document), Matched: matched})
	}
	return out, nil
}

// queryBy prefers the recorded searchable list and falls back to the string fields of the schema.
func (e *Engine) queryBy(ctx context.Context, index string) (string, error) {
	s, err := e.loadSettings(ctx, index)
	if err != nil {
		return "", err
	}
	if len(s.Searchable) > 0 {
		return strings.Join(s.Searchable, ","), nil
	}

	col, err := e.client.Collection(index).Retrieve(ctx)
	if err != nil {
		if isNotFound(err) {
			return "", engine.ErrIndexNotFound
		}
		return "", fmt.Errorf("typesense retrieve %s: %w", index, err)
	}
	var fields []string
	for _, f := range col.Fields {
		if f.Name == ".*" || strings.HasPrefix(f.Name, "_") {
			continue
		}
		if f.Type == "string" || f.Type == "string[]" {
			fields = append(fields, f.Name)
		}
	}
	if len(fields) == 0 {
		return typesenseID, nil
	}
	return strings.Join(fields, ","), nil
}

// Health asks the cluster for its health status.
func (e *Engine) Health(ctx context.Context) error {
	ok, err := e.client.Health(ctx, e.healthWait)
	if err != nil {
		return fmt.Errorf("typesense health check failed: %w", err)
	}
	if !ok {
		return fmt.Errorf("typesense is unhealthy")
	}
	return nil
}

// Stats reads num_documents from the collection.
func (e *Engine) Stats(ctx context.Context, index string) (engine.IndexStats, error) {
	col, err := e.client.Collection(index).Retrieve(ctx)
	if err != nil {
		if isNotFound(err) {
			return engine.IndexStats{}, engine.ErrIndexNotFound
		}
		return engine.IndexStats{}, fmt.Errorf("typesense retrieve %s: %w", index, err)
	}
	var n int64
	if col.NumDocuments != nil {
		n = *col.NumDocuments
	}
	return engine.IndexStats{NumDocuments: n}, nil
}

func joinFilters(filters []string) string {
	if len(filters) == 1 {
		return filters[0]
	}
	parts := make([]string, len(filters))
	for i, f := range filters {
		parts[i] = "(" + f + ")"
	}
	return strings.Join(parts, " && ")
}
