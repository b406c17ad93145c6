// Package source reads authoritative records from Postgres.
package source

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/kailas-cloud/fedsearch/internal/domain/document"
	"github.com/kailas-cloud/fedsearch/internal/domain/mapping"
)

// querier is satisfied by *pgxpool.Pool and pgxmock pools.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repo is a table-per-mapping record source.
type Repo struct {
	db querier
}

// New creates a source repository.
func New(db querier) *Repo {
	return &Repo{db: db}
}

// location returns the sanitized table and key column of a mapping.
// The table defaults to the source type.
func location(m mapping.Mapping) (table, key string) {
	src := m.Source()
	t := src.Table
	if t == "" {
		t = m.SourceType()
	}
	return pgx.Identifier{t}.Sanitize(), pgx.Identifier{src.Key}.Sanitize()
}

// FetchByIDs returns the rows whose key is among ids. Missing ids are skipped.
func (r *Repo) FetchByIDs(ctx context.Context, m mapping.Mapping, ids []string) ([]document.Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	table, key := location(m)
	sql := fmt.Sprintf("SELECT * FROM %s WHERE %s::text = ANY($1)", table, key)

	rows, err := r.db.Query(ctx, sql, ids)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", m.SourceType(), err)
	}
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, fmt.Errorf("collect %s: %w", m.SourceType(), err)
	}

	keyName := m.Source().Key
	out := make([]document.Record, 0, len(maps))
	for _, row := range maps {
		v, ok := row[keyName]
		if !ok || v == nil {
			continue
		}
		out = append(out, document.Record{ID: document.IDString(v), Attributes: row})
	}
	return out, nil
}

// ListIDs returns up to limit keys greater than after, in key order.
func (r *Repo) ListIDs(ctx context.Context, m mapping.Mapping, after string, limit int) ([]string, error) {
	table, key := location(m)
	sql := fmt.Sprintf("SELECT %[2]s::text FROM %[1]s WHERE %[2]s::text > $1 ORDER BY %[2]s::text LIMIT $2", table, key)

	rows, err := r.db.Query(ctx, sql, after, limit)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", m.SourceType(), err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collect %s ids: %w", m.SourceType(), err)
	}
	return ids, nil
}

// Count returns the number of rows behind a mapping.
func (r *Repo) Count(ctx context.Context, m mapping.Mapping) (int64, error) {
	table, _ := location(m)
	var n int64
	if err := r.db.QueryRow(ctx, "SELECT count(*) FROM "+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", m.SourceType(), err)
	}
	return n, nil
}
