package federation

import (
	"sort"

	"github.com/kailas-cloud/fedsearch/internal/domain/search/result"
	"github.com/kailas-cloud/fedsearch/internal/engine"
	"github.com/kailas-cloud/fedsearch/internal/transform"
)

// Score components.
const (
	matchedScore   = 1.0
	unmatchedScore = 0.5
	minWeight      = 0.1
)

// hitScore weights a hit. The weight floor keeps a misconfigured index from zeroing its hits.
func hitScore(matched bool, weight float64) float64 {
	base := unmatchedScore
	if matched {
		base = matchedScore
	}
	return base * max(minWeight, weight)
}

type scoredHit struct {
	hit result.Hit
	ts  int64
}

// indexHits is one index's contribution to a merge.
type indexHits struct {
	base   string
	weight float64
	hits   []engine.Hit
}

// merge scores every hit, orders by score then timestamp (both descending) and truncates.
// Hits without a parseable timestamp sort as the epoch. Equal keys keep fan-out order.
func merge(groups []indexHits, timestampField string, limit int) []result.Hit {
	total := 0
	for _, g := range groups {
		total += len(g.hits)
	}

	all := make([]scoredHit, 0, total)
	for _, g := range groups {
		for _, h := range g.hits {
			all = append(all, scoredHit{
				hit: result.Hit{
					Document: h.Document,
					Index:    g.base,
					Score:    hitScore(h.Matched, g.weight),
				},
				ts: timestampOf(h, timestampField),
			})
		}
	}

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].hit.Score != all[j].hit.Score {
			return all[i].hit.Score > all[j].hit.Score
		}
		return all[i].ts > all[j].ts
	})

	if len(all) > limit {
		all = all[:limit]
	}
	out := make([]result.Hit, len(all))
	for i, s := range all {
		out[i] = s.hit
	}
	return out
}

func timestampOf(h engine.Hit, field string) int64 {
	if field == "" {
		return 0
	}
	ts, ok := transform.ParseTime(h.Document[field])
	if !ok {
		return 0
	}
	return ts.UnixNano()
}
