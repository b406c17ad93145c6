package result

import (
	"encoding/json"
	"fmt"

	"github.com/kailas-cloud/fedsearch/internal/domain/document"
)

// Hit is a document annotated with its base index and merged score.
// On the wire the annotations sit next to the document fields as _index and _score.
type Hit struct {
	Document document.Document
	Index    string
	Score    float64
}

// MarshalJSON flattens the hit into a single object.
func (h Hit) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(h.Document)+2)
	for k, v := range h.Document {
		flat[k] = v
	}
	flat[document.FieldIndex] = h.Index
	flat[document.FieldScore] = h.Score
	return json.Marshal(flat)
}

// UnmarshalJSON reverses MarshalJSON.
func (h *Hit) UnmarshalJSON(data []byte) error {
	var flat map[string]any
	if err := json.Unmarshal(data, &flat); err != nil {
		return fmt.Errorf("decode hit: %w", err)
	}
	if idx, ok := flat[document.FieldIndex].(string); ok {
		h.Index = idx
	}
	if score, ok := flat[document.FieldScore].(float64); ok {
		h.Score = score
	}
	delete(flat, document.FieldIndex)
	delete(flat, document.FieldScore)
	h.Document = flat
	return nil
}

// Meta describes how a result was produced.
type Meta struct {
	Total           int      `json:"total"`
	IndexesSearched []string `json:"indexes_searched"`
	FailedIndexes   []string `json:"failed_indexes,omitempty"`
	Query           string   `json:"query"`
	Limit           int      `json:"limit"`
}

// SearchResult is the federated response. Total sums every index's own estimate.
type SearchResult struct {
	Hits []Hit `json:"hits"`
	Meta Meta  `json:"meta"`
}

// Empty returns a result with no hits for the given query and limit.
func Empty(query string, limit int) SearchResult {
	return SearchResult{
		Hits: []Hit{},
		Meta: Meta{IndexesSearched: []string{}, Query: query, Limit: limit},
	}
}

// IsEmpty reports whether the result carries no hits.
func (r SearchResult) IsEmpty() bool { return len(r.Hits) == 0 }

// Clone copies the hits, their documents and the meta slices so the copy can be mutated freely.
func (r SearchResult) Clone() SearchResult {
	out := SearchResult{Meta: r.Meta}
	if r.Hits != nil {
		out.Hits = make([]Hit, len(r.Hits))
		for i, h := range r.Hits {
			h.Document = h.Document.Clone()
			out.Hits[i] = h
		}
	}
	if r.Meta.IndexesSearched != nil {
		out.Meta.IndexesSearched = append([]string{}, r.Meta.IndexesSearched...)
	}
	if r.Meta.FailedIndexes != nil {
		out.Meta.FailedIndexes = append([]string{}, r.Meta.FailedIndexes...)
	}
	return out
}
