// Package transform turns source records into flat search documents.
package transform

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/fedsearch/internal/domain/document"
	"github.com/kailas-cloud/fedsearch/internal/domain/mapping"
	"github.com/kailas-cloud/fedsearch/internal/logger"
	"github.com/kailas-cloud/fedsearch/internal/metrics"
)

// DefaultMaxRelationItems caps flattened relation arrays.
const DefaultMaxRelationItems = 10

// Options toggles the optional steps.
type Options struct {
	StampTenant       bool
	InjectMetadata    bool
	StripNulls        bool
	StripEmptyStrings bool
	BaseURL           string
	MaxRelationItems  int
	Clock             func() time.Time
}

// Transformer builds documents. It is safe for concurrent use.
type Transformer struct {
	rules  *Rules
	opts   Options
	logger *zap.Logger
}

// New creates a transformer. A nil rules registry gets the built-ins.
func New(rules *Rules, opts Options, l *zap.Logger) *Transformer {
	if rules == nil {
		rules = NewRules()
	}
	if opts.MaxRelationItems <= 0 {
		opts.MaxRelationItems = DefaultMaxRelationItems
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if l == nil {
		l = zap.NewNop()
	}
	return &Transformer{rules: rules, opts: opts, logger: l}
}

// Rules exposes the registry so callers can register custom rules.
func (t *Transformer) Rules() *Rules { return t.rules }

// Transform converts one record. Field-level failures null the field and never abort.
// The primary-key field always carries the record identifier.
func (t *Transformer) Transform(ctx context.Context, rec document.Record, m mapping.Mapping, tenant string) document.Document {
	log := logger.FromContext(ctx, t.logger)
	doc := extract(rec, m.Fields())

	for _, c := range m.Transformations() {
		src := c.Rule.Source
		if src == "" {
			src = c.Field
		}
		v, ok := doc[src]
		if !ok {
			continue
		}
		doc[c.Field] = t.eval(log, m, c, rec, doc, v)
	}

	for _, c := range m.Computed() {
		var v any
		if c.Rule.Source != "" {
			v = lookup(rec, doc, c.Rule.Source)
		}
		doc[c.Field] = t.eval(log, m, c, rec, doc, v)
	}

	for _, r := range m.Relations() {
		raw, ok := rec.Attributes[r.Field]
		if !ok {
			continue
		}
		doc[r.Field] = t.flatten(raw, r)
	}

	if t.opts.StampTenant && tenant != "" {
		doc[document.FieldTenant] = tenant
	}

	if t.opts.InjectMetadata {
		doc[document.FieldMetadata] = map[string]any{
			"entity_type": m.SourceType(),
			"indexed_at":  t.opts.Clock().UTC().Format(time.RFC3339),
			"url":         t.canonicalURL(rec, doc, m),
		}
	}

	if t.opts.StripNulls || t.opts.StripEmptyStrings {
		for k, v := range doc {
			if t.opts.StripNulls && v == nil {
				delete(doc, k)
				continue
			}
			if s, ok := v.(string); ok && t.opts.StripEmptyStrings && s == "" {
				delete(doc, k)
			}
		}
	}

	pk := m.PrimaryKey()
	if id, ok := doc.ID(pk); !ok || id != rec.ID {
		doc[pk] = rec.ID
	}
	return doc
}

func extract(rec document.Record, fields []string) document.Document {
	if len(fields) == 0 {
		doc := make(document.Document, len(rec.Attributes))
		for k, v := range rec.Attributes {
			doc[k] = v
		}
		return doc
	}
	doc := make(document.Document, len(fields)+2)
	for _, f := range fields {
		if v, ok := rec.Attributes[f]; ok {
			doc[f] = v
		}
	}
	return doc
}

func lookup(rec document.Record, doc document.Document, field string) any {
	if v, ok := doc[field]; ok {
		return v
	}
	return rec.Attributes[field]
}

// eval runs one rule, converting an error or a panic into a nil value.
func (t *Transformer) eval(
	log *zap.Logger, m mapping.Mapping, c mapping.Computed,
	rec document.Record, doc document.Document, value any,
) (out any) {
	fail := func(err error) {
		log.Warn("Computed field failed",
			zap.String("source_type", m.SourceType()),
			zap.String("field", c.Field),
			zap.String("rule", c.Rule.Name),
			zap.String("record_id", rec.ID),
			zap.Error(err),
		)
		metrics.TransformFieldFailuresTotal.WithLabelValues(m.SourceType(), c.Field).Inc()
		out = nil
	}

	fn, ok := t.rules.Lookup(c.Rule.Name)
	if !ok {
		fail(fmt.Errorf("unknown rule %q", c.Rule.Name))
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			fail(fmt.Errorf("panic: %v", r))
		}
	}()

	v, err := fn(Input{Value: value, Record: rec, Document: doc, Args: c.Rule.Args, BaseURL: t.opts.BaseURL})
	if err != nil {
		fail(err)
		return nil
	}
	return v
}

// flatten caps a relation and projects each item to id plus its label fields.
func (t *Transformer) flatten(raw any, r mapping.Relation) any {
	limit := r.MaxItems
	if limit <= 0 {
		limit = t.opts.MaxRelationItems
	}
	labels := r.Label
	if len(labels) == 0 {
		labels = []string{"name"}
	}

	project := func(item map[string]any) map[string]any {
		out := make(map[string]any, len(labels)+1)
		if id, ok := item["id"]; ok {
			out["id"] = id
		}
		for _, l := range labels {
			if v, ok := item[l]; ok {
				out[l] = v
			}
		}
		return out
	}

	if single, ok := raw.(map[string]any); ok {
		return project(single)
	}
	items := asObjects(raw)
	if items == nil {
		return nil
	}
	out := make([]any, 0, min(len(items), limit))
	for _, item := range items[:min(len(items), limit)] {
		out = append(out, project(item))
	}
	return out
}

// canonicalURL prefers a "url" field, then the mapping's URL pattern, then base/{type}/{id}.
func (t *Transformer) canonicalURL(rec document.Record, doc document.Document, m mapping.Mapping) string {
	if u, ok := doc["url"].(string); ok && u != "" {
		return u
	}
	if p := m.URLPattern(); p != "" {
		path := placeholder.ReplaceAllStringFunc(p, func(ph string) string {
			v := lookup(rec, doc, ph[1:len(ph)-1])
			if v == nil {
				return ""
			}
			return toString(v)
		})
		if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
			return path
		}
		return JoinURL(t.opts.BaseURL, path)
	}
	return JoinURL(t.opts.BaseURL, m.SourceType()+"/"+rec.ID)
}
