// Package federation fans a query out to several indexes and merges the weighted hits.
package federation

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/kailas-cloud/fedsearch/internal/domain"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/result"
	"github.com/kailas-cloud/fedsearch/internal/domain/tenant"
	"github.com/kailas-cloud/fedsearch/internal/engine"
	"github.com/kailas-cloud/fedsearch/internal/logger"
	"github.com/kailas-cloud/fedsearch/internal/metrics"
	"github.com/kailas-cloud/fedsearch/internal/telemetry"
)

// IndexConfig is one base index in the federated set.
type IndexConfig struct {
	Name   string
	Weight float64
	Filter string
}

// Config controls fan-out and merging.
type Config struct {
	Indexes         []IndexConfig
	DefaultLimit    int
	MaxLimit        int
	PerIndexTimeout time.Duration
	Concurrency     int
	TimestampField  string
	DefaultTenant   string
}

func (c *Config) applyDefaults() {
	if c.DefaultLimit <= 0 {
		c.DefaultLimit = 10
	}
	if c.MaxLimit <= 0 {
		c.MaxLimit = 50
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 8
	}
}

// Request is a federated query. Filters are keyed by base index name.
// Indexes optionally narrows the configured set; order follows configuration.
type Request struct {
	Query   string
	Filters map[string]string
	Indexes []string
	Limit   int
	Tenant  string
}

// Service handles federated search.
type Service struct {
	engine   Searcher
	versions Versions
	cache    Cache
	resolver tenant.Resolver
	cfg      Config
	logger   *zap.Logger
	group    singleflight.Group
}

// New creates a federation service. A nil cache or versions store disables caching.
func New(eng Searcher, versions Versions, cache Cache, resolver tenant.Resolver, cfg Config, l *zap.Logger) *Service {
	cfg.applyDefaults()
	return &Service{
		engine:   eng,
		versions: versions,
		cache:    cache,
		resolver: resolver,
		cfg:      cfg,
		logger:   l,
	}
}

// Limit clamps a requested limit into [1, MaxLimit]. Zero or negative means the default.
func (s *Service) Limit(requested int) int {
	if requested <= 0 {
		return s.cfg.DefaultLimit
	}
	return min(requested, s.cfg.MaxLimit)
}

// Search executes a federated query. A single index failure degrades the result instead of failing it.
func (s *Service) Search(ctx context.Context, req Request) (result.SearchResult, error) {
	limit := s.Limit(req.Limit)
	query := strings.TrimSpace(req.Query)

	targets, err := s.targets(req.Indexes)
	if err != nil {
		return result.SearchResult{}, err
	}
	if len(targets) == 0 || query == "" {
		return result.Empty(query, limit), nil
	}

	tenantID := req.Tenant
	if tenantID == "" {
		tenantID = s.cfg.DefaultTenant
	}
	bases := make([]string, len(targets))
	for i, t := range targets {
		bases[i] = t.Name
	}
	physical, err := s.resolver.ResolveAll(bases, tenantID)
	if err != nil {
		return result.SearchResult{}, fmt.Errorf("resolve indexes: %w", err)
	}

	ctx, span := telemetry.Tracer().Start(ctx, "federation.Search")
	defer span.End()
	span.SetAttributes(
		attribute.StringSlice("fedsearch.indexes", physical),
		attribute.Int("fedsearch.limit", limit),
	)

	log := logger.FromContext(ctx, s.logger)

	key, cacheable := s.key(ctx, physical, query, req.Filters, bases, limit, tenantID)
	if cacheable {
		if res, ok := s.cache.Get(ctx, key); ok {
			metrics.FederatedSearchesTotal.WithLabelValues("hit").Inc()
			span.SetAttributes(attribute.Bool("fedsearch.cache_hit", true))
			return res, nil
		}
		metrics.FederatedSearchesTotal.WithLabelValues("miss").Inc()
	} else {
		metrics.FederatedSearchesTotal.WithLabelValues("bypass").Inc()
	}

	run := func(ctx context.Context) (result.SearchResult, error) {
		res, err := s.fanOut(ctx, targets, physical, query, req.Filters, limit)
		if err != nil {
			return result.SearchResult{}, err
		}
		if cacheable && !res.IsEmpty() {
			s.cache.Set(ctx, key, res)
		}
		return res, nil
	}

	if !cacheable {
		res, err := run(ctx)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
		return res, err
	}

	// Shared work outlives any single caller; each caller still honours its own ctx.
	ch := s.group.DoChan(key, func() (any, error) { return run(context.WithoutCancel(ctx)) })
	select {
	case <-ctx.Done():
		err := fmt.Errorf("federated search: %w", ctx.Err())
		span.SetStatus(codes.Error, err.Error())
		return result.SearchResult{}, err
	case r := <-ch:
		if r.Err != nil {
			span.SetStatus(codes.Error, r.Err.Error())
			return result.SearchResult{}, r.Err
		}
		if r.Shared {
			log.Debug("Coalesced federated search", zap.String("key", key))
		}
		return r.Val.(result.SearchResult), nil
	}
}

// targets narrows the configured set to the requested base indexes.
func (s *Service) targets(requested []string) ([]IndexConfig, error) {
	if len(requested) == 0 {
		return s.cfg.Indexes, nil
	}
	for _, name := range requested {
		if !slices.ContainsFunc(s.cfg.Indexes, func(ic IndexConfig) bool { return ic.Name == name }) {
			return nil, fmt.Errorf("%w: index %q is not federated", domain.ErrInvalidRequest, name)
		}
	}
	out := make([]IndexConfig, 0, len(requested))
	for _, ic := range s.cfg.Indexes {
		if slices.Contains(requested, ic.Name) {
			out = append(out, ic)
		}
	}
	return out, nil
}

// key returns false when caching is disabled or the version snapshot cannot be read.
func (s *Service) key(ctx context.Context, physical []string, query string, filters map[string]string,
	bases []string, limit int, tenantID string,
) (string, bool) {
	if s.cache == nil || s.versions == nil {
		return "", false
	}
	versions, err := s.versions.Current(ctx, physical...)
	if err != nil {
		logger.FromContext(ctx, s.logger).Warn("Version snapshot unavailable, bypassing result cache", zap.Error(err))
		return "", false
	}
	return cacheKey(physical, versions, query, filters, bases, limit, s.resolver.CacheScope(tenantID)), true
}

func (s *Service) fanOut(ctx context.Context, targets []IndexConfig, physical []string,
	query string, filters map[string]string, limit int,
) (result.SearchResult, error) {
	log := logger.FromContext(ctx, s.logger)

	responses := make([]*engine.SearchResponse, len(targets))
	var mu sync.Mutex
	var failed []string

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for i, t := range targets {
		g.Go(func() error {
			resp, err := s.searchIndex(gctx, physical[i], engine.SearchRequest{
				Query:   query,
				Limit:   limit,
				Filters: []string{t.Filter, filters[t.Name]},
			})
			if err != nil {
				log.Warn("Index search failed, excluding from merge",
					zap.String("index", physical[i]), zap.Error(err))
				metrics.FederationIndexFailuresTotal.WithLabelValues(t.Name).Inc()
				mu.Lock()
				failed = append(failed, physical[i])
				mu.Unlock()
				return nil
			}
			responses[i] = &resp
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return result.SearchResult{}, fmt.Errorf("federated search: %w", err)
	}

	groups := make([]indexHits, 0, len(targets))
	searched := make([]string, 0, len(targets))
	total := 0
	for i, resp := range responses {
		if resp == nil {
			continue
		}
		searched = append(searched, physical[i])
		total += resp.EstimatedTotalHits
		groups = append(groups, indexHits{base: targets[i].Name, weight: targets[i].Weight, hits: resp.Hits})
	}
	slices.Sort(failed)

	return result.SearchResult{
		Hits: merge(groups, s.cfg.TimestampField, limit),
		Meta: result.Meta{
			Total:           total,
			IndexesSearched: searched,
			FailedIndexes:   failed,
			Query:           query,
			Limit:           limit,
		},
	}, nil
}

func (s *Service) searchIndex(ctx context.Context, index string, req engine.SearchRequest) (engine.SearchResponse, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "federation.searchIndex")
	defer span.End()
	span.SetAttributes(attribute.String("fedsearch.index", index))

	if s.cfg.PerIndexTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.PerIndexTimeout)
		defer cancel()
	}
	resp, err := s.engine.Search(ctx, index, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return engine.SearchResponse{}, err
	}
	return resp, nil
}
