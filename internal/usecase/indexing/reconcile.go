package indexing

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/fedsearch/internal/domain/mapping"
	"github.com/kailas-cloud/fedsearch/internal/engine"
	"github.com/kailas-cloud/fedsearch/internal/logger"
	"github.com/kailas-cloud/fedsearch/internal/metrics"
)

// reconcile makes sure index exists with the mapping's primary key.
// A primary key mismatch drops and recreates the index, which loses its documents.
// It reports whether the index was (re)created, in which case settings were pushed too.
func (s *Service) reconcile(ctx context.Context, index string, m mapping.Mapping) (bool, error) {
	unlock, err := s.locker.Lock(ctx, index)
	if err != nil {
		return false, fmt.Errorf("lock %s: %w", index, err)
	}
	defer unlock()

	log := logger.FromContext(ctx, s.logger).With(zap.String("index", index))
	pk := m.PrimaryKey()

	current, err := s.engine.GetSettings(ctx, index)
	switch {
	case errors.Is(err, engine.ErrIndexNotFound):
		log.Info("Creating index", zap.String("primary_key", pk))
		if err := s.engine.CreateIndex(ctx, index, pk); err != nil {
			return false, fmt.Errorf("create index %s: %w", index, err)
		}
	case err != nil:
		return false, fmt.Errorf("get settings %s: %w", index, err)
	case current.PrimaryKey == pk:
		return false, nil
	default:
		log.Warn("Primary key drift, recreating index; existing documents are dropped",
			zap.String("current_primary_key", current.PrimaryKey),
			zap.String("expected_primary_key", pk),
		)
		metrics.IndexRecreationsTotal.WithLabelValues(index).Inc()
		if err := s.engine.DeleteIndex(ctx, index); err != nil && !errors.Is(err, engine.ErrIndexNotFound) {
			return false, fmt.Errorf("delete index %s: %w", index, err)
		}
		if err := s.engine.CreateIndex(ctx, index, pk); err != nil {
			return false, fmt.Errorf("recreate index %s: %w", index, err)
		}
	}

	if err := s.awaitPrimaryKey(ctx, index, pk); err != nil {
		return false, err
	}
	if err := s.engine.UpdateSettings(ctx, index, s.settingsFor(m.IndexName())); err != nil {
		return false, fmt.Errorf("update settings %s: %w", index, err)
	}
	return true, nil
}

// awaitPrimaryKey polls until the engine reports pk. Exhaustion is logged and counted, not returned.
func (s *Service) awaitPrimaryKey(ctx context.Context, index, pk string) error {
	for attempt := 1; attempt <= s.cfg.ReconcileAttempts; attempt++ {
		current, err := s.engine.GetSettings(ctx, index)
		if err == nil && current.PrimaryKey == pk {
			return nil
		}
		if attempt == s.cfg.ReconcileAttempts {
			break
		}
		t := time.NewTimer(s.cfg.ReconcileInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("reconcile %s: %w", index, ctx.Err())
		case <-t.C:
		}
	}

	logger.FromContext(ctx, s.logger).Warn("Index primary key did not converge",
		zap.String("index", index),
		zap.String("expected_primary_key", pk),
		zap.Int("attempts", s.cfg.ReconcileAttempts),
	)
	metrics.ReconcileConvergenceFailuresTotal.WithLabelValues(index).Inc()
	return nil
}

// settingsFor unions the attributes of every mapping writing to a base index.
func (s *Service) settingsFor(base string) engine.Settings {
	var out engine.Settings
	for _, m := range s.mappings.All() {
		if m.IndexName() != base {
			continue
		}
		if out.PrimaryKey == "" {
			out.PrimaryKey = m.PrimaryKey()
		}
		out.Searchable = appendUnique(out.Searchable, m.Searchable()...)
		out.Filterable = appendUnique(out.Filterable, m.Filterable()...)
		out.Sortable = appendUnique(out.Sortable, m.Sortable()...)
	}
	out.Synonyms = s.cfg.Synonyms
	out.StopWords = s.cfg.StopWords
	return out
}

func appendUnique(dst []string, values ...string) []string {
	for _, v := range values {
		if !slices.Contains(dst, v) {
			dst = append(dst, v)
		}
	}
	return dst
}
