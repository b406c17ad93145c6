package fedsearch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/fedsearch/internal/app"
	"github.com/kailas-cloud/fedsearch/internal/config"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/result"
	"github.com/kailas-cloud/fedsearch/internal/usecase/federation"
	"github.com/kailas-cloud/fedsearch/internal/usecase/indexing"
)

// Внутренние интерфейсы для подмены в тестах.
type searchUseCase interface {
	Search(ctx context.Context, req federation.Request) (result.SearchResult, error)
}

type indexUseCase interface {
	IndexRecords(ctx context.Context, sourceType string, ids []string, tenant string) ([]string, error)
	DeleteRecords(ctx context.Context, sourceType string, ids []string, tenant string) ([]string, error)
	ReindexAll(ctx context.Context, tenant string) (int, error)
	FlushIndex(ctx context.Context, base, tenant string) error
	SyncSettings(ctx context.Context, tenant string) error
	Status(ctx context.Context, tenant string) ([]indexing.IndexStatus, error)
}

// Client is the fedsearch SDK entry point.
type Client struct {
	app       *app.App
	searchSvc searchUseCase
	indexSvc  indexUseCase
	healthSvc healthUseCase
	tenant    string
	obs       *observer

	stopWorker context.CancelFunc
	workerDone sync.WaitGroup
}

// New builds a fedsearch node from configuration and connects to its backends.
// The provided context bounds startup only.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &clientConfig{}
	for _, o := range opts {
		o.apply(cfg)
	}

	nodeCfg, err := loadConfig(cfg)
	if err != nil {
		return nil, err
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	a, err := app.New(ctx, nodeCfg, zap.NewNop())
	if err != nil {
		return nil, fmt.Errorf("fedsearch: %w", err)
	}

	c := wireClient(a, cfg.tenant, obs)
	if cfg.runWorker && a.Indexing != nil {
		c.startWorker()
	}
	return c, nil
}

func loadConfig(cfg *clientConfig) (config.Config, error) {
	switch {
	case cfg.configYAML != nil:
		c, err := config.Parse(cfg.configYAML)
		if err != nil {
			return config.Config{}, fmt.Errorf("fedsearch: %w", err)
		}
		return c, nil
	case cfg.configPath != "":
		c, err := config.LoadFile(cfg.configPath)
		if err != nil {
			return config.Config{}, fmt.Errorf("fedsearch: %w", err)
		}
		return c, nil
	default:
		return config.Config{}, errors.New("fedsearch: configuration required (use WithConfigFile or WithConfigYAML)")
	}
}

func wireClient(a *app.App, tenant string, obs *observer) *Client {
	c := &Client{
		app:       a,
		searchSvc: a.Federation,
		healthSvc: a.Health,
		tenant:    tenant,
		obs:       obs,
	}
	if a.Indexing != nil {
		c.indexSvc = a.Indexing
	}
	return c
}

func (c *Client) startWorker() {
	ctx, cancel := context.WithCancel(context.Background())
	c.stopWorker = cancel
	c.workerDone.Add(1)
	go func() {
		defer c.workerDone.Done()
		_ = c.app.Worker(ctx)
	}()
}

// Close stops the in-process worker and releases all resources.
func (c *Client) Close() {
	if c.stopWorker != nil {
		c.stopWorker()
		c.workerDone.Wait()
	}
	if c.app != nil {
		c.app.Close()
	}
}

// Search runs a federated query.
func (c *Client) Search(ctx context.Context, req SearchRequest) (res SearchResult, err error) {
	start := time.Now()
	defer func() { c.obs.observe("search", start, err) }()

	r, err := c.searchSvc.Search(ctx, toRequest(req, c.tenant))
	if err != nil {
		return SearchResult{}, fmt.Errorf("search: %w", err)
	}
	return fromResult(r), nil
}

// Index enqueues index jobs for the given records and returns the job ids.
func (c *Client) Index(ctx context.Context, sourceType string, ids ...string) (jobs []string, err error) {
	start := time.Now()
	defer func() { c.obs.observe("index", start, err) }()

	if c.indexSvc == nil {
		return nil, ErrIndexingDisabled
	}
	if jobs, err = c.indexSvc.IndexRecords(ctx, sourceType, ids, c.tenant); err != nil {
		return nil, fmt.Errorf("index %s: %w", sourceType, err)
	}
	return jobs, nil
}

// Delete enqueues delete jobs for the given records and returns the job ids.
func (c *Client) Delete(ctx context.Context, sourceType string, ids ...string) (jobs []string, err error) {
	start := time.Now()
	defer func() { c.obs.observe("delete", start, err) }()

	if c.indexSvc == nil {
		return nil, ErrIndexingDisabled
	}
	if jobs, err = c.indexSvc.DeleteRecords(ctx, sourceType, ids, c.tenant); err != nil {
		return nil, fmt.Errorf("delete %s: %w", sourceType, err)
	}
	return jobs, nil
}

// Reindex enqueues every record of every mapping and returns the number of jobs.
func (c *Client) Reindex(ctx context.Context) (n int, err error) {
	start := time.Now()
	defer func() { c.obs.observe("reindex", start, err) }()

	if c.indexSvc == nil {
		return 0, ErrIndexingDisabled
	}
	if n, err = c.indexSvc.ReindexAll(ctx, c.tenant); err != nil {
		return n, fmt.Errorf("reindex: %w", err)
	}
	return n, nil
}

// Flush removes every document from a base index.
func (c *Client) Flush(ctx context.Context, index string) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("flush", start, err) }()

	if c.indexSvc == nil {
		return ErrIndexingDisabled
	}
	if err = c.indexSvc.FlushIndex(ctx, index, c.tenant); err != nil {
		return fmt.Errorf("flush %s: %w", index, err)
	}
	return nil
}

// SyncSettings creates missing indexes and pushes mapping settings.
func (c *Client) SyncSettings(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("sync_settings", start, err) }()

	if c.indexSvc == nil {
		return ErrIndexingDisabled
	}
	if err = c.indexSvc.SyncSettings(ctx, c.tenant); err != nil {
		return fmt.Errorf("sync settings: %w", err)
	}
	return nil
}

// Status reports source record counts against indexed documents.
func (c *Client) Status(ctx context.Context) (_ []IndexStatus, err error) {
	start := time.Now()
	defer func() { c.obs.observe("status", start, err) }()

	if c.indexSvc == nil {
		return nil, ErrIndexingDisabled
	}
	st, err := c.indexSvc.Status(ctx, c.tenant)
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}
	return fromStatus(st), nil
}
