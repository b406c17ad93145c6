package engine

import (
	"context"
	"errors"
	"time"

	"github.com/kailas-cloud/fedsearch/internal/domain/document"
	"github.com/kailas-cloud/fedsearch/internal/metrics"
)

// Operation labels for engine metrics.
const (
	OpSearch         = "search"
	OpAddDocuments   = "add_documents"
	OpDeleteDocs     = "delete_documents"
	OpDeleteAllDocs  = "delete_all_documents"
	OpCreateIndex    = "create_index"
	OpDeleteIndex    = "delete_index"
	OpGetSettings    = "get_settings"
	OpUpdateSettings = "update_settings"
	OpHealth         = "health"
	OpStats          = "stats"
)

type instrumentedClient struct {
	inner  Client
	driver string
}

// Instrument records request count and latency per operation for inner.
func Instrument(inner Client, driver string) Client {
	return &instrumentedClient{inner: inner, driver: driver}
}

func (c *instrumentedClient) observe(op string, start time.Time, err error) {
	status := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrIndexNotFound):
		status = "not_found"
	case errors.Is(err, context.DeadlineExceeded):
		status = "timeout"
	case errors.Is(err, context.Canceled):
		status = "canceled"
	default:
		status = "error"
	}
	metrics.EngineRequestsTotal.WithLabelValues(c.driver, op, status).Inc()
	metrics.EngineRequestDuration.WithLabelValues(c.driver, op).Observe(time.Since(start).Seconds())
}

func (c *instrumentedClient) Search(ctx context.Context, index string, req SearchRequest) (SearchResponse, error) {
	start := time.Now()
	resp, err := c.inner.Search(ctx, index, req)
	c.observe(OpSearch, start, err)
	return resp, err
}

func (c *instrumentedClient) AddDocuments(ctx context.Context, index string, docs []document.Document, pk string) error {
	start := time.Now()
	err := c.inner.AddDocuments(ctx, index, docs, pk)
	c.observe(OpAddDocuments, start, err)
	if err == nil {
		metrics.DocumentsWrittenTotal.WithLabelValues(index).Add(float64(len(docs)))
	}
	return err
}

func (c *instrumentedClient) DeleteDocuments(ctx context.Context, index string, ids []string) error {
	start := time.Now()
	err := c.inner.DeleteDocuments(ctx, index, ids)
	c.observe(OpDeleteDocs, start, err)
	return err
}

func (c *instrumentedClient) DeleteAllDocuments(ctx context.Context, index string) error {
	start := time.Now()
	err := c.inner.DeleteAllDocuments(ctx, index)
	c.observe(OpDeleteAllDocs, start, err)
	return err
}

func (c *instrumentedClient) CreateIndex(ctx context.Context, index, pk string) error {
	start := time.Now()
	err := c.inner.CreateIndex(ctx, index, pk)
	c.observe(OpCreateIndex, start, err)
	return err
}

func (c *instrumentedClient) DeleteIndex(ctx context.Context, index string) error {
	start := time.Now()
	err := c.inner.DeleteIndex(ctx, index)
	c.observe(OpDeleteIndex, start, err)
	return err
}

func (c *instrumentedClient) GetSettings(ctx context.Context, index string) (Settings, error) {
	start := time.Now()
	s, err := c.inner.GetSettings(ctx, index)
	c.observe(OpGetSettings, start, err)
	return s, err
}

func (c *instrumentedClient) UpdateSettings(ctx context.Context, index string, s Settings) error {
	start := time.Now()
	err := c.inner.UpdateSettings(ctx, index, s)
	c.observe(OpUpdateSettings, start, err)
	return err
}

func (c *instrumentedClient) Health(ctx context.Context) error {
	start := time.Now()
	err := c.inner.Health(ctx)
	c.observe(OpHealth, start, err)
	return err
}

func (c *instrumentedClient) Stats(ctx context.Context, index string) (IndexStats, error) {
	start := time.Now()
	s, err := c.inner.Stats(ctx, index)
	c.observe(OpStats, start, err)
	return s, err
}
