package health

import (
	"context"

	"github.com/kailas-cloud/fedsearch/internal/domain/mapping"
	"github.com/kailas-cloud/fedsearch/internal/engine"
)

// DBPinger checks database availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// EngineChecker checks search engine availability and reads index settings.
type EngineChecker interface {
	Health(ctx context.Context) error
	GetSettings(ctx context.Context, index string) (engine.Settings, error)
}

// Checker is an optional component probe.
type Checker interface {
	Check(ctx context.Context) error
}

// CheckFunc adapts a function to Checker.
type CheckFunc func(ctx context.Context) error

// Check calls f.
func (f CheckFunc) Check(ctx context.Context) error { return f(ctx) }

// Mappings exposes the registry to the doctor.
type Mappings interface {
	All() []mapping.Mapping
	ByIndex(indexName string) (mapping.Mapping, error)
	IndexNames() []string
}
