package document

import (
	"fmt"
	"strconv"
)

// Reserved fields injected by the transformer and the merge step.
const (
	FieldTenant   = "_tenant_id"
	FieldMetadata = "_search_metadata"
	FieldIndex    = "_index"
	FieldScore    = "_score"
)

// Document is a flat searchable document keyed by field name.
type Document map[string]any

// Record is one authoritative source row. ID is the row identifier.
type Record struct {
	ID         string
	Attributes map[string]any
}

// Metadata is the _search_metadata object.
type Metadata struct {
	EntityType string `json:"entity_type"`
	IndexedAt  string `json:"indexed_at"`
	URL        string `json:"url,omitempty"`
}

// ID returns the primary-key value rendered as a string.
func (d Document) ID(primaryKey string) (string, bool) {
	v, ok := d[primaryKey]
	if !ok || v == nil {
		return "", false
	}
	return IDString(v), true
}

// Clone returns a shallow copy.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// IDString renders an identifier value the same way on every write and delete path.
func IDString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case int:
		return strconv.Itoa(t)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(v)
	}
}
