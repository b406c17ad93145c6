// Package app wires configuration into the services shared by the server and the admin CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/kailas-cloud/fedsearch/internal/config"
	dbRedis "github.com/kailas-cloud/fedsearch/internal/db/redis"
	"github.com/kailas-cloud/fedsearch/internal/domain/mapping"
	"github.com/kailas-cloud/fedsearch/internal/domain/tenant"
	"github.com/kailas-cloud/fedsearch/internal/engine"
	bleveEngine "github.com/kailas-cloud/fedsearch/internal/engine/bleve"
	redisEngine "github.com/kailas-cloud/fedsearch/internal/engine/redis"
	typesenseEngine "github.com/kailas-cloud/fedsearch/internal/engine/typesense"
	"github.com/kailas-cloud/fedsearch/internal/metrics"
	"github.com/kailas-cloud/fedsearch/internal/queue"
	"github.com/kailas-cloud/fedsearch/internal/queue/memory"
	"github.com/kailas-cloud/fedsearch/internal/queue/natsqueue"
	"github.com/kailas-cloud/fedsearch/internal/repository/lock"
	"github.com/kailas-cloud/fedsearch/internal/repository/querycache"
	"github.com/kailas-cloud/fedsearch/internal/repository/source"
	"github.com/kailas-cloud/fedsearch/internal/repository/version"
	"github.com/kailas-cloud/fedsearch/internal/telemetry"
	"github.com/kailas-cloud/fedsearch/internal/transform"
	"github.com/kailas-cloud/fedsearch/internal/usecase/federation"
	healthuc "github.com/kailas-cloud/fedsearch/internal/usecase/health"
	"github.com/kailas-cloud/fedsearch/internal/usecase/indexing"
)

// ErrIndexingDisabled is returned by Worker when no record source is configured.
var ErrIndexingDisabled = errors.New("indexing disabled: source.dsn is not configured")

// App is the assembled object graph. Indexing and Consumer are nil without a record source.
type App struct {
	Config     config.Config
	Logger     *zap.Logger
	Mappings   *mapping.Registry
	Resolver   tenant.Resolver
	Engine     engine.Client
	Federation *federation.Service
	Indexing   *indexing.Service
	Health     *healthuc.Service
	Queue      queue.Queue
	Consumer   queue.Consumer
	Failures   *queue.MemorySink

	closers []func()
}

// New builds the application. Callers must Close it.
//
//nolint:gocyclo // composition root: one branch per driver
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *App, err error) {
	a := &App{Config: cfg, Logger: logger, Failures: &queue.MemorySink{}}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	metrics.Register()

	shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	a.onClose(func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdown(sctx)
	})

	a.Mappings, err = cfg.Registry()
	if err != nil {
		return nil, err
	}
	a.Resolver = tenant.NewResolver(cfg.Tenancy.Enabled, cfg.Tenancy.RequireTenant)

	var store *dbRedis.Store
	if len(cfg.Database.Addrs) > 0 {
		store, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Database.Addrs,
			Password: cfg.Database.Password,
		})
		if err != nil {
			return nil, fmt.Errorf("create store: %w", err)
		}
		a.onClose(store.Close)
		if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
			return nil, fmt.Errorf("store not ready: %w", err)
		}
		logger.Info("Connected to store", zap.Strings("addrs", cfg.Database.Addrs))
	}

	inner, err := a.buildEngine(cfg.Engine, store)
	if err != nil {
		return nil, err
	}
	a.Engine = engine.Instrument(engine.WithTimeout(inner, engine.Timeouts{
		Default: cfg.Engine.Timeouts.Default,
		Search:  cfg.Engine.Timeouts.Search,
		Write:   cfg.Engine.Timeouts.Write,
		Admin:   cfg.Engine.Timeouts.Admin,
	}), cfg.Engine.Driver)

	var versions interface {
		federation.Versions
		indexing.Versions
	}
	var cache federation.Cache
	var locker *lock.Locker
	cacheOn := config.BoolOr(cfg.Cache.Enabled, true)
	if store != nil {
		versions = version.New(store)
		locker = lock.New(store, logger, lock.WithTTL(cfg.Pipeline.LockTTL))
		if cacheOn {
			cache = querycache.New(store, cfg.Cache.TTL, cfg.Cache.LocalSize, logger)
		}
	} else {
		versions = version.NewLocal()
		locker = lock.New(nil, logger)
		if cacheOn {
			cache = querycache.New(nil, cfg.Cache.TTL, cfg.Cache.LocalSize, logger)
		}
	}

	a.Federation = federation.New(a.Engine, versions, cache, a.Resolver, federationConfig(cfg), logger)
	warnFederation(cfg, logger)

	healthDeps := healthuc.Deps{Engine: a.Engine}
	if store != nil {
		healthDeps.Store = store
	}

	if cfg.Source.DSN == "" {
		logger.Warn("No record source configured; indexing disabled")
	} else {
		pool, err := pgxpool.New(ctx, cfg.Source.DSN)
		if err != nil {
			return nil, fmt.Errorf("connect source: %w", err)
		}
		a.onClose(pool.Close)
		healthDeps.Source = pool

		q, consumer, check, err := a.buildQueue(cfg.Queue)
		if err != nil {
			return nil, err
		}
		a.Queue, a.Consumer = q, consumer
		if check != nil {
			healthDeps.Queue = check
		}

		tr := transform.New(nil, transform.Options{
			StampTenant:       config.BoolOr(cfg.Tenancy.StampTenant, cfg.Tenancy.Enabled),
			InjectMetadata:    config.BoolOr(cfg.Transform.InjectMetadata, true),
			StripNulls:        cfg.Transform.StripNulls,
			StripEmptyStrings: cfg.Transform.StripEmptyStrings,
			BaseURL:           cfg.Transform.BaseURL,
			MaxRelationItems:  cfg.Transform.MaxRelationItems,
		}, logger.Named("transform"))

		a.Indexing = indexing.New(indexing.Deps{
			Mappings:    a.Mappings,
			Source:      source.New(pool),
			Engine:      a.Engine,
			Versions:    versions,
			Transformer: tr,
			Queue:       a.Queue,
			Locker:      locker,
			Resolver:    a.Resolver,
		}, indexing.Config{
			ChunkSize:         cfg.Pipeline.ChunkSize,
			BatchSize:         cfg.Pipeline.BatchSize,
			JobSize:           cfg.Pipeline.JobSize,
			ReconcileAttempts: cfg.Pipeline.ReconcileAttempts,
			ReconcileInterval: cfg.Pipeline.ReconcileInterval,
			DefaultTenant:     cfg.Tenancy.DefaultTenant,
			Tenants:           cfg.Tenancy.Tenants,
			Synonyms:          cfg.IndexSettings.Synonyms,
			StopWords:         cfg.IndexSettings.StopWords,
		}, logger.Named("indexing"))
	}

	a.Health = healthuc.New(healthDeps, healthuc.DoctorConfig{
		Mappings:         a.Mappings,
		Resolver:         a.Resolver,
		FederatedIndexes: federatedNames(cfg),
		Tenants:          cfg.Tenancy.Tenants,
		DefaultTenant:    cfg.Tenancy.DefaultTenant,
	})

	return a, nil
}

func (a *App) buildEngine(cfg config.EngineConfig, store *dbRedis.Store) (engine.Client, error) {
	switch cfg.Driver {
	case config.DriverRedis:
		if store == nil {
			return nil, fmt.Errorf("engine %q needs database.addrs", cfg.Driver)
		}
		return redisEngine.New(store), nil
	case config.DriverTypesense:
		if store == nil {
			return nil, fmt.Errorf("engine %q needs database.addrs", cfg.Driver)
		}
		e, err := typesenseEngine.New(typesenseEngine.Config{
			URL:              cfg.Typesense.URL,
			APIKey:           cfg.Typesense.APIKey,
			ConnTimeout:      cfg.Typesense.ConnTimeout,
			WriteConcurrency: cfg.Typesense.WriteConcurrency,
		}, store)
		if err != nil {
			return nil, fmt.Errorf("create typesense engine: %w", err)
		}
		return e, nil
	case config.DriverBleve:
		e, err := bleveEngine.New(cfg.Bleve.Path)
		if err != nil {
			return nil, fmt.Errorf("create bleve engine: %w", err)
		}
		a.onClose(func() { _ = e.Close() })
		return e, nil
	default:
		return nil, fmt.Errorf("unknown engine driver %q", cfg.Driver)
	}
}

func (a *App) buildQueue(cfg config.QueueConfig) (queue.Queue, queue.Consumer, healthuc.Checker, error) {
	policy := queue.RetryPolicy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		Delay:       cfg.Retry.Delay,
		Exponential: cfg.Retry.Exponential,
		MaxDelay:    cfg.Retry.MaxDelay,
	}
	sink := queue.Sinks{queue.LogSink{Logger: a.Logger}, a.Failures}

	switch cfg.Driver {
	case config.QueueMemory:
		q := memory.New(cfg.Workers, cfg.Buffer, policy, sink, a.Logger.Named("queue"))
		a.onClose(q.Close)
		return q, q, nil, nil
	case config.QueueNATS:
		q, err := natsqueue.New(natsqueue.Config{
			URL:               cfg.URL,
			Stream:            cfg.Stream,
			Subject:           cfg.Subject,
			DeadLetterSubject: cfg.DeadLetterSubject,
			Group:             cfg.Group,
			Workers:           cfg.Workers,
			AckWait:           cfg.AckWait,
		}, policy, sink, a.Logger.Named("queue"))
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connect queue: %w", err)
		}
		a.onClose(func() { _ = q.Close() })
		check := healthuc.CheckFunc(func(context.Context) error { return q.Ping() })
		return q, q, check, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown queue driver %q", cfg.Driver)
	}
}

// Worker consumes index jobs until ctx is done.
func (a *App) Worker(ctx context.Context) error {
	if a.Indexing == nil || a.Consumer == nil {
		return ErrIndexingDisabled
	}
	return a.Consumer.Run(ctx, a.Indexing.Process)
}

// Drain runs in-process workers until every enqueued job has finished.
// It reports false without waiting when jobs go to a durable queue served by other processes.
func (a *App) Drain(ctx context.Context) (bool, error) {
	mq, ok := a.Consumer.(*memory.Queue)
	if !ok || a.Indexing == nil {
		return false, nil
	}
	wctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = mq.Run(wctx, a.Indexing.Process)
	}()
	err := mq.Wait(ctx)
	cancel()
	<-done
	return true, err
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *App) onClose(f func()) {
	a.closers = append(a.closers, f)
}

// federationConfig maps the configured federated set. An empty set searches nothing.
func federationConfig(cfg config.Config) federation.Config {
	fc := federation.Config{
		DefaultLimit:    cfg.Federation.DefaultLimit,
		MaxLimit:        cfg.Federation.MaxLimit,
		PerIndexTimeout: cfg.Federation.PerIndexTimeout,
		Concurrency:     cfg.Federation.Concurrency,
		TimestampField:  cfg.Federation.TimestampField,
		DefaultTenant:   cfg.Tenancy.DefaultTenant,
	}
	for _, fi := range cfg.Federation.Indexes {
		fc.Indexes = append(fc.Indexes, federation.IndexConfig{Name: fi.Name, Weight: fi.WeightValue(), Filter: fi.Filter})
	}
	return fc
}

func warnFederation(cfg config.Config, logger *zap.Logger) {
	if len(cfg.Federation.Indexes) == 0 {
		logger.Warn("No federated indexes configured, every search returns an empty result")
	}
	for _, fi := range cfg.Federation.Indexes {
		if w := fi.WeightValue(); w <= 0 {
			logger.Warn("Federated index weight is not positive, scoring uses the minimum weight",
				zap.String("index", fi.Name), zap.Float64("weight", w))
		}
	}
}

func federatedNames(cfg config.Config) []string {
	out := make([]string, len(cfg.Federation.Indexes))
	for i, fi := range cfg.Federation.Indexes {
		out[i] = fi.Name
	}
	return out
}
