// Package indexing keeps search indexes in step with the authoritative records.
// Public operations validate and enqueue; Process is the job handler run by queue workers.
package indexing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/fedsearch/internal/domain"
	"github.com/kailas-cloud/fedsearch/internal/domain/document"
	"github.com/kailas-cloud/fedsearch/internal/domain/job"
	"github.com/kailas-cloud/fedsearch/internal/domain/mapping"
	"github.com/kailas-cloud/fedsearch/internal/domain/tenant"
	"github.com/kailas-cloud/fedsearch/internal/engine"
	"github.com/kailas-cloud/fedsearch/internal/logger"
	"github.com/kailas-cloud/fedsearch/internal/queue"
	"github.com/kailas-cloud/fedsearch/internal/telemetry"
)

// Config controls batching, reconciliation and tenant fan-out.
type Config struct {
	ChunkSize         int
	BatchSize         int
	JobSize           int
	ReconcileAttempts int
	ReconcileInterval time.Duration
	DefaultTenant     string
	Tenants           []string
	Synonyms          map[string][]string
	StopWords         []string
	AdminConcurrency  int
}

func (c *Config) applyDefaults() {
	if c.ChunkSize <= 0 {
		c.ChunkSize = 100
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 1000
	}
	if c.JobSize <= 0 {
		c.JobSize = 500
	}
	if c.ReconcileAttempts <= 0 {
		c.ReconcileAttempts = 30
	}
	if c.ReconcileInterval <= 0 {
		c.ReconcileInterval = 500 * time.Millisecond
	}
	if c.AdminConcurrency <= 0 {
		c.AdminConcurrency = 4
	}
}

// Deps groups the collaborators of the service.
type Deps struct {
	Mappings    Mappings
	Source      Source
	Engine      Engine
	Versions    Versions
	Transformer Transformer
	Queue       Queue
	Locker      Locker
	Resolver    tenant.Resolver
}

// Service runs the indexing pipeline.
type Service struct {
	mappings    Mappings
	source      Source
	engine      Engine
	versions    Versions
	transformer Transformer
	queue       Queue
	locker      Locker
	resolver    tenant.Resolver
	cfg         Config
	logger      *zap.Logger
}

// New creates an indexing service.
func New(d Deps, cfg Config, l *zap.Logger) *Service {
	cfg.applyDefaults()
	return &Service{
		mappings:    d.Mappings,
		source:      d.Source,
		engine:      d.Engine,
		versions:    d.Versions,
		transformer: d.Transformer,
		queue:       d.Queue,
		locker:      d.Locker,
		resolver:    d.Resolver,
		cfg:         cfg,
		logger:      l,
	}
}

// IndexRecords enqueues index jobs for ids. Mapping and tenant errors surface before anything is enqueued.
func (s *Service) IndexRecords(ctx context.Context, sourceType string, ids []string, tenantID string) ([]string, error) {
	return s.enqueue(ctx, job.KindIndex, sourceType, ids, tenantID)
}

// DeleteRecords enqueues delete jobs for ids.
func (s *Service) DeleteRecords(ctx context.Context, sourceType string, ids []string, tenantID string) ([]string, error) {
	return s.enqueue(ctx, job.KindDelete, sourceType, ids, tenantID)
}

func (s *Service) enqueue(ctx context.Context, kind job.Kind, sourceType string, ids []string, tenantID string) ([]string, error) {
	m, err := s.mappings.BySourceType(sourceType)
	if err != nil {
		return nil, err
	}
	tenantID = s.tenantOrDefault(tenantID)
	if _, err := s.resolver.Resolve(m.IndexName(), tenantID); err != nil {
		return nil, err
	}

	jobs, err := job.Split(kind, sourceType, ids, tenantID, s.cfg.JobSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidRequest, err)
	}
	if len(jobs) == 0 {
		return nil, fmt.Errorf("%w: at least one record id is required", domain.ErrInvalidRequest)
	}
	if err := s.queue.Enqueue(ctx, jobs...); err != nil {
		return nil, fmt.Errorf("enqueue: %w", err)
	}

	out := make([]string, len(jobs))
	for i, j := range jobs {
		out[i] = j.ID
	}
	return out, nil
}

// ReindexAll pages through every mapping's source and enqueues index jobs.
// An empty tenant covers every configured tenant. Returns the number of jobs enqueued.
func (s *Service) ReindexAll(ctx context.Context, tenantID string) (int, error) {
	tenants, err := s.tenantsFor(tenantID)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, t := range tenants {
		for _, m := range s.mappings.All() {
			if _, err := s.resolver.Resolve(m.IndexName(), t); err != nil {
				return total, err
			}
			n, err := s.reindexMapping(ctx, m, t)
			total += n
			if err != nil {
				return total, err
			}
		}
	}
	return total, nil
}

func (s *Service) reindexMapping(ctx context.Context, m mapping.Mapping, tenantID string) (int, error) {
	after := ""
	n := 0
	for {
		ids, err := s.source.ListIDs(ctx, m, after, s.cfg.JobSize)
		if err != nil {
			return n, fmt.Errorf("list %s: %w", m.SourceType(), err)
		}
		if len(ids) == 0 {
			return n, nil
		}
		j, err := job.New(job.KindIndex, m.SourceType(), ids, tenantID)
		if err != nil {
			return n, err
		}
		if err := s.queue.Enqueue(ctx, j); err != nil {
			return n, fmt.Errorf("enqueue: %w", err)
		}
		n++
		if len(ids) < s.cfg.JobSize {
			return n, nil
		}
		after = ids[len(ids)-1]
	}
}

// FlushIndex removes every document of a physical index and invalidates its cached results.
func (s *Service) FlushIndex(ctx context.Context, base, tenantID string) error {
	if _, err := s.mappings.ByIndex(base); err != nil {
		return err
	}
	index, err := s.resolver.Resolve(base, s.tenantOrDefault(tenantID))
	if err != nil {
		return err
	}
	if err := s.engine.DeleteAllDocuments(ctx, index); err != nil {
		return fmt.Errorf("flush %s: %w", index, err)
	}
	if _, err := s.versions.Bump(ctx, index); err != nil {
		return fmt.Errorf("bump version %s: %w", index, err)
	}
	logger.FromContext(ctx, s.logger).Info("Index flushed", zap.String("index", index))
	return nil
}

// SyncSettings reconciles and pushes mapping settings to every physical index.
// An empty tenant covers every configured tenant.
func (s *Service) SyncSettings(ctx context.Context, tenantID string) error {
	tenants, err := s.tenantsFor(tenantID)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.AdminConcurrency)
	for _, t := range tenants {
		for _, base := range s.mappings.IndexNames() {
			m, err := s.mappings.ByIndex(base)
			if err != nil {
				return err
			}
			index, err := s.resolver.Resolve(base, t)
			if err != nil {
				return err
			}
			g.Go(func() error {
				pushed, err := s.reconcile(gctx, index, m)
				if err != nil || pushed {
					return err
				}
				if err := s.engine.UpdateSettings(gctx, index, s.settingsFor(base)); err != nil {
					return fmt.Errorf("update settings %s: %w", index, err)
				}
				return nil
			})
		}
	}
	return g.Wait()
}

// IndexStatus describes one physical index.
type IndexStatus struct {
	SourceType  string `json:"source_type"`
	Tenant      string `json:"tenant,omitempty"`
	Index       string `json:"index"`
	SourceCount int64  `json:"source_count"`
	Documents   int64  `json:"documents"`
	Version     int64  `json:"version"`
	Error       string `json:"error,omitempty"`
}

// Status reports source and index counts per mapping and tenant. Per-index failures are reported inline.
func (s *Service) Status(ctx context.Context, tenantID string) ([]IndexStatus, error) {
	tenants, err := s.tenantsFor(tenantID)
	if err != nil {
		return nil, err
	}

	var out []IndexStatus
	for _, t := range tenants {
		for _, m := range s.mappings.All() {
			index, err := s.resolver.Resolve(m.IndexName(), t)
			if err != nil {
				return nil, err
			}
			st := IndexStatus{SourceType: m.SourceType(), Tenant: t, Index: index}
			var errs []string
			if n, err := s.source.Count(ctx, m); err != nil {
				errs = append(errs, err.Error())
			} else {
				st.SourceCount = n
			}
			if stats, err := s.engine.Stats(ctx, index); err != nil {
				errs = append(errs, err.Error())
			} else {
				st.Documents = stats.NumDocuments
			}
			if v, err := s.versions.Current(ctx, index); err != nil {
				errs = append(errs, err.Error())
			} else {
				st.Version = v[0]
			}
			st.Error = strings.Join(errs, "; ")
			out = append(out, st)
		}
	}
	return out, nil
}

// Process handles one job delivery. Configuration errors are marked permanent so the queue does not retry them.
func (s *Service) Process(ctx context.Context, j job.Job) error {
	ctx, span := telemetry.Tracer().Start(ctx, "indexing.Process")
	defer span.End()
	span.SetAttributes(
		attribute.String("fedsearch.job_id", j.ID),
		attribute.String("fedsearch.kind", string(j.Kind)),
		attribute.String("fedsearch.source_type", j.SourceType),
		attribute.Int("fedsearch.records", len(j.RecordIDs)),
		attribute.Int("fedsearch.attempt", j.Attempt),
	)

	log := logger.FromContext(ctx, s.logger).With(
		zap.String("job_id", j.ID),
		zap.String("source_type", j.SourceType),
		zap.Int("attempt", j.Attempt),
	)
	ctx = logger.ContextWithLogger(ctx, log)

	err := s.process(ctx, j)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if domain.IsConfiguration(err) {
			return queue.Permanent(err)
		}
	}
	return err
}

func (s *Service) process(ctx context.Context, j job.Job) error {
	m, err := s.mappings.BySourceType(j.SourceType)
	if err != nil {
		return err
	}
	tenantID := s.tenantOrDefault(j.Tenant)
	index, err := s.resolver.Resolve(m.IndexName(), tenantID)
	if err != nil {
		return err
	}

	switch j.Kind {
	case job.KindDelete:
		return s.processDelete(ctx, index, j.RecordIDs)
	case job.KindIndex:
		return s.processIndex(ctx, m, index, tenantID, j.RecordIDs)
	default:
		return queue.Permanent(fmt.Errorf("unknown job kind %q", j.Kind))
	}
}

func (s *Service) processDelete(ctx context.Context, index string, ids []string) error {
	err := s.engine.DeleteDocuments(ctx, index, ids)
	if errors.Is(err, engine.ErrIndexNotFound) {
		logger.FromContext(ctx, s.logger).Debug("Delete on missing index", zap.String("index", index))
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete documents %s: %w", index, err)
	}
	if _, err := s.versions.Bump(ctx, index); err != nil {
		return fmt.Errorf("bump version %s: %w", index, err)
	}
	return nil
}

// processIndex fetches in chunks, flushes in batches and bumps the version once when anything was written.
func (s *Service) processIndex(ctx context.Context, m mapping.Mapping, index, tenantID string, ids []string) error {
	if _, err := s.reconcile(ctx, index, m); err != nil {
		return err
	}

	batch := make([]document.Document, 0, min(s.cfg.BatchSize, len(ids)))
	written := 0
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.engine.AddDocuments(ctx, index, batch, m.PrimaryKey()); err != nil {
			return fmt.Errorf("add documents %s: %w", index, err)
		}
		written += len(batch)
		batch = batch[:0]
		return nil
	}

	for start := 0; start < len(ids); start += s.cfg.ChunkSize {
		chunk := ids[start:min(start+s.cfg.ChunkSize, len(ids))]
		recs, err := s.source.FetchByIDs(ctx, m, chunk)
		if err != nil {
			return fmt.Errorf("fetch %s: %w", m.SourceType(), err)
		}
		for _, rec := range recs {
			batch = append(batch, s.transformer.Transform(ctx, rec, m, tenantID))
			if len(batch) >= s.cfg.BatchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}

	log := logger.FromContext(ctx, s.logger)
	if written == 0 {
		log.Debug("No records found for job", zap.String("index", index))
		return nil
	}
	v, err := s.versions.Bump(ctx, index)
	if err != nil {
		return fmt.Errorf("bump version %s: %w", index, err)
	}
	log.Info("Indexed records",
		zap.String("index", index),
		zap.Int("documents", written),
		zap.Int64("version", v),
	)
	return nil
}

func (s *Service) tenantOrDefault(tenantID string) string {
	if strings.TrimSpace(tenantID) == "" {
		return s.cfg.DefaultTenant
	}
	return tenantID
}

// tenantsFor expands an empty tenant to every configured tenant when tenancy is on.
func (s *Service) tenantsFor(tenantID string) ([]string, error) {
	if strings.TrimSpace(tenantID) != "" {
		return []string{tenantID}, nil
	}
	if s.resolver.Enabled() && len(s.cfg.Tenants) > 0 {
		return s.cfg.Tenants, nil
	}
	return []string{s.cfg.DefaultTenant}, nil
}
