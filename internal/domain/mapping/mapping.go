package mapping

import (
	"fmt"
	"regexp"
	"slices"
)

var indexNameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// DefaultPrimaryKey is used when a mapping does not declare one.
const DefaultPrimaryKey = "id"

// Rule names a pure derivation from the record plus static arguments.
type Rule struct {
	Name   string
	Source string
	Args   map[string]string
}

// Computed binds a document field to the rule that derives it.
type Computed struct {
	Field string
	Rule  Rule
}

// Relation flattens a related collection into minimal {id, label...} objects.
type Relation struct {
	Field    string
	Label    []string
	MaxItems int
}

// Source locates the authoritative records for a mapping.
type Source struct {
	Table string
	Key   string
}

// Spec is the raw, unvalidated mapping declaration.
type Spec struct {
	SourceType      string
	IndexName       string
	PrimaryKey      string
	Fields          []string
	Computed        []Computed
	Transformations []Computed
	Relations       []Relation
	Searchable      []string
	Filterable      []string
	Sortable        []string
	Source          Source
	URLPattern      string
}

// Mapping binds a source type to its search index (immutable value object).
type Mapping struct {
	sourceType      string
	indexName       string
	primaryKey      string
	fields          []string
	computed        []Computed
	transformations []Computed
	relations       []Relation
	searchable      []string
	filterable      []string
	sortable        []string
	source          Source
	urlPattern      string
}

// New validates a Spec and creates a Mapping.
func New(s Spec) (Mapping, error) {
	if s.SourceType == "" {
		return Mapping{}, fmt.Errorf("source type is required")
	}
	if !indexNameRegex.MatchString(s.IndexName) {
		return Mapping{}, fmt.Errorf("mapping %s: index name %q must be alphanumeric with underscores and hyphens",
			s.SourceType, s.IndexName)
	}
	if err := uniqueNames(s.Fields); err != nil {
		return Mapping{}, fmt.Errorf("mapping %s: fields: %w", s.SourceType, err)
	}

	computedNames := make([]string, 0, len(s.Computed))
	for _, c := range s.Computed {
		if c.Field == "" || c.Rule.Name == "" {
			return Mapping{}, fmt.Errorf("mapping %s: computed field needs a name and a rule", s.SourceType)
		}
		computedNames = append(computedNames, c.Field)
	}
	if err := uniqueNames(computedNames); err != nil {
		return Mapping{}, fmt.Errorf("mapping %s: computed: %w", s.SourceType, err)
	}

	for _, r := range s.Relations {
		if r.Field == "" {
			return Mapping{}, fmt.Errorf("mapping %s: relation field is required", s.SourceType)
		}
	}

	pk := s.PrimaryKey
	if pk == "" {
		pk = DefaultPrimaryKey
	}
	src := s.Source
	if src.Key == "" {
		src.Key = "id"
	}

	return Mapping{
		sourceType:      s.SourceType,
		indexName:       s.IndexName,
		primaryKey:      pk,
		fields:          slices.Clone(s.Fields),
		computed:        slices.Clone(s.Computed),
		transformations: slices.Clone(s.Transformations),
		relations:       slices.Clone(s.Relations),
		searchable:      slices.Clone(s.Searchable),
		filterable:      slices.Clone(s.Filterable),
		sortable:        slices.Clone(s.Sortable),
		source:          src,
		urlPattern:      s.URLPattern,
	}, nil
}

func uniqueNames(names []string) error {
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		if n == "" {
			return fmt.Errorf("empty name")
		}
		if _, ok := seen[n]; ok {
			return fmt.Errorf("duplicate name: %s", n)
		}
		seen[n] = struct{}{}
	}
	return nil
}

// SourceType returns the opaque entity identifier.
func (m Mapping) SourceType() string { return m.sourceType }

// IndexName returns the base (tenant-less) index name.
func (m Mapping) IndexName() string { return m.indexName }

// PrimaryKey returns the document primary-key field.
func (m Mapping) PrimaryKey() string { return m.primaryKey }

// Fields returns the declared fields in order.
func (m Mapping) Fields() []string { return m.fields }

// Computed returns the computed fields in evaluation order.
func (m Mapping) Computed() []Computed { return m.computed }

// Transformations returns per-field rules applied to extracted values.
func (m Mapping) Transformations() []Computed { return m.transformations }

// Relations returns the relationship fields to flatten.
func (m Mapping) Relations() []Relation { return m.relations }

// Searchable returns the searchable attributes.
func (m Mapping) Searchable() []string { return m.searchable }

// Filterable returns the filterable attributes.
func (m Mapping) Filterable() []string { return m.filterable }

// Sortable returns the sortable attributes.
func (m Mapping) Sortable() []string { return m.sortable }

// Source returns the record source location.
func (m Mapping) Source() Source { return m.source }

// URLPattern returns the canonical URL template, e.g. "/products/{slug}".
func (m Mapping) URLPattern() string { return m.urlPattern }
