package fedsearch

import (
	"context"
	"encoding/json"
	"fmt"
)

// TypedHit is a hit whose document has been decoded into T.
type TypedHit[T any] struct {
	Index    string
	Score    float64
	Document T
}

// SearchAs runs a federated query and decodes each hit document into T.
// Document fields map onto T through its json tags.
func SearchAs[T any](ctx context.Context, c *Client, req SearchRequest) ([]TypedHit[T], error) {
	res, err := c.Search(ctx, req)
	if err != nil {
		return nil, err
	}
	return decodeHits[T](res.Hits)
}

func decodeHits[T any](hits []Hit) ([]TypedHit[T], error) {
	out := make([]TypedHit[T], 0, len(hits))
	for _, h := range hits {
		raw, err := json.Marshal(h.Document)
		if err != nil {
			return nil, fmt.Errorf("encode %s hit: %w", h.Index, err)
		}
		var doc T
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("decode %s hit: %w", h.Index, err)
		}
		out = append(out, TypedHit[T]{Index: h.Index, Score: h.Score, Document: doc})
	}
	return out, nil
}
