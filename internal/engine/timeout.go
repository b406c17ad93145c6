package engine

import (
	"context"
	"time"

	"github.com/kailas-cloud/fedsearch/internal/domain/document"
)

// Timeouts bounds every engine call. Zero values fall back to Default.
type Timeouts struct {
	Default time.Duration
	Search  time.Duration
	Write   time.Duration
	Admin   time.Duration
}

// DefaultTimeout applies when Timeouts.Default is unset.
const DefaultTimeout = 5 * time.Second

func (t Timeouts) pick(specific time.Duration) time.Duration {
	if specific > 0 {
		return specific
	}
	if t.Default > 0 {
		return t.Default
	}
	return DefaultTimeout
}

type timeoutClient struct {
	inner Client
	t     Timeouts
}

// WithTimeout gives every call on inner its own deadline.
// A tighter deadline already on ctx wins.
func WithTimeout(inner Client, t Timeouts) Client {
	return &timeoutClient{inner: inner, t: t}
}

func (c *timeoutClient) Search(ctx context.Context, index string, req SearchRequest) (SearchResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.t.pick(c.t.Search))
	defer cancel()
	return c.inner.Search(ctx, index, req)
}

func (c *timeoutClient) AddDocuments(ctx context.Context, index string, docs []document.Document, pk string) error {
	ctx, cancel := context.WithTimeout(ctx, c.t.pick(c.t.Write))
	defer cancel()
	return c.inner.AddDocuments(ctx, index, docs, pk)
}

func (c *timeoutClient) DeleteDocuments(ctx context.Context, index string, ids []string) error {
	ctx, cancel := context.WithTimeout(ctx, c.t.pick(c.t.Write))
	defer cancel()
	return c.inner.DeleteDocuments(ctx, index, ids)
}

func (c *timeoutClient) DeleteAllDocuments(ctx context.Context, index string) error {
	ctx, cancel := context.WithTimeout(ctx, c.t.pick(c.t.Admin))
	defer cancel()
	return c.inner.DeleteAllDocuments(ctx, index)
}

func (c *timeoutClient) CreateIndex(ctx context.Context, index, pk string) error {
	ctx, cancel := context.WithTimeout(ctx, c.t.pick(c.t.Admin))
	defer cancel()
	return c.inner.CreateIndex(ctx, index, pk)
}

func (c *timeoutClient) DeleteIndex(ctx context.Context, index string) error {
	ctx, cancel := context.WithTimeout(ctx, c.t.pick(c.t.Admin))
	defer cancel()
	return c.inner.DeleteIndex(ctx, index)
}

func (c *timeoutClient) GetSettings(ctx context.Context, index string) (Settings, error) {
	ctx, cancel := context.WithTimeout(ctx, c.t.pick(c.t.Admin))
	defer cancel()
	return c.inner.GetSettings(ctx, index)
}

func (c *timeoutClient) UpdateSettings(ctx context.Context, index string, s Settings) error {
	ctx, cancel := context.WithTimeout(ctx, c.t.pick(c.t.Admin))
	defer cancel()
	return c.inner.UpdateSettings(ctx, index, s)
}

func (c *timeoutClient) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.t.pick(c.t.Admin))
	defer cancel()
	return c.inner.Health(ctx)
}

func (c *timeoutClient) Stats(ctx context.Context, index string) (IndexStats, error) {
	ctx, cancel := context.WithTimeout(ctx, c.t.pick(c.t.Admin))
	defer cancel()
	return c.inner.Stats(ctx, index)
}
