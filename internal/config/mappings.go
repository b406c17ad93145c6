package config

import (
	"fmt"

	"github.com/kailas-cloud/fedsearch/internal/domain/mapping"
)

// Registry converts the mappings section into a validated registry.
func (c *Config) Registry() (*mapping.Registry, error) {
	ms := make([]mapping.Mapping, 0, len(c.Mappings))
	for _, mc := range c.Mappings {
		m, err := mapping.New(mc.spec())
		if err != nil {
			return nil, fmt.Errorf("mappings: %w", err)
		}
		ms = append(ms, m)
	}
	return mapping.NewRegistry(ms...)
}

func (mc MappingConfig) spec() mapping.Spec {
	relations := make([]mapping.Relation, len(mc.Relations))
	for i, r := range mc.Relations {
		relations[i] = mapping.Relation{Field: r.Field, Label: r.Label, MaxItems: r.MaxItems}
	}
	return mapping.Spec{
		SourceType:      mc.SourceType,
		IndexName:       mc.IndexName,
		PrimaryKey:      mc.PrimaryKey,
		Fields:          mc.Fields,
		Computed:        computed(mc.Computed),
		Transformations: computed(mc.Transformations),
		Relations:       relations,
		Searchable:      mc.Searchable,
		Filterable:      mc.Filterable,
		Sortable:        mc.Sortable,
		Source:          mapping.Source{Table: mc.Source.Table, Key: mc.Source.Key},
		URLPattern:      mc.URLPattern,
	}
}

func computed(cs []ComputedConfig) []mapping.Computed {
	out := make([]mapping.Computed, len(cs))
	for i, c := range cs {
		out[i] = mapping.Computed{
			Field: c.Field,
			Rule:  mapping.Rule{Name: c.Name, Source: c.Source, Args: c.Args},
		}
	}
	return out
}
