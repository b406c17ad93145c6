package mapping

import (
	"fmt"

	"github.com/kailas-cloud/fedsearch/internal/domain"
)

// Registry looks up mappings by source type or by base index name.
// Several source types may share one index; ByIndex returns the first declared.
type Registry struct {
	ordered  []Mapping
	bySource map[string]int
	byIndex  map[string]int
}

// NewRegistry builds a registry. Source types must be unique.
func NewRegistry(mappings ...Mapping) (*Registry, error) {
	r := &Registry{
		ordered:  make([]Mapping, 0, len(mappings)),
		bySource: make(map[string]int, len(mappings)),
		byIndex:  make(map[string]int, len(mappings)),
	}
	for _, m := range mappings {
		if _, dup := r.bySource[m.SourceType()]; dup {
			return nil, fmt.Errorf("duplicate mapping for source type %q", m.SourceType())
		}
		r.ordered = append(r.ordered, m)
		pos := len(r.ordered) - 1
		r.bySource[m.SourceType()] = pos
		if _, ok := r.byIndex[m.IndexName()]; !ok {
			r.byIndex[m.IndexName()] = pos
		}
	}
	return r, nil
}

// BySourceType returns the mapping bound to a source type.
func (r *Registry) BySourceType(sourceType string) (Mapping, error) {
	pos, ok := r.bySource[sourceType]
	if !ok {
		return Mapping{}, domain.NewConfigurationError(domain.ErrMappingNotFound, "source type "+sourceType)
	}
	return r.ordered[pos], nil
}

// ByIndex returns the first mapping writing to the base index.
func (r *Registry) ByIndex(indexName string) (Mapping, error) {
	pos, ok := r.byIndex[indexName]
	if !ok {
		return Mapping{}, domain.NewConfigurationError(domain.ErrMappingNotFound, "index "+indexName)
	}
	return r.ordered[pos], nil
}

// All returns mappings in declaration order.
func (r *Registry) All() []Mapping {
	out := make([]Mapping, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// IndexNames returns the distinct base index names in declaration order.
func (r *Registry) IndexNames() []string {
	seen := make(map[string]struct{}, len(r.ordered))
	names := make([]string, 0, len(r.ordered))
	for _, m := range r.ordered {
		if _, ok := seen[m.IndexName()]; ok {
			continue
		}
		seen[m.IndexName()] = struct{}{}
		names = append(names, m.IndexName())
	}
	return names
}

// Len returns the number of mappings.
func (r *Registry) Len() int { return len(r.ordered) }
