package federation

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// KeyPrefix namespaces result cache keys.
const KeyPrefix = "fedsearch:result:"

type versionPair struct {
	Index   string `json:"index"`
	Version int64  `json:"version"`
}

// keyMaterial is the canonical input of a cache key. Field order is fixed by the struct,
// and encoding/json sorts map keys, so equal inputs always encode identically.
type keyMaterial struct {
	Versions []versionPair     `json:"versions"`
	Query    string            `json:"query"`
	Filters  map[string]string `json:"filters"`
	Indexes  []string          `json:"indexes"`
	Limit    int               `json:"limit"`
	Tenant   string            `json:"tenant"`
}

// cacheKey derives a content hash over the physical indexes and their versions,
// the query, the filters, the ordered base index list, the limit and the tenant scope.
func cacheKey(physical []string, versions []int64, query string, filters map[string]string,
	bases []string, limit int, tenantScope string,
) string {
	pairs := make([]versionPair, len(physical))
	for i, idx := range physical {
		pairs[i] = versionPair{Index: idx, Version: versions[i]}
	}
	if filters == nil {
		filters = map[string]string{}
	}
	// json.Marshal cannot fail for these types.
	data, _ := json.Marshal(keyMaterial{
		Versions: pairs,
		Query:    query,
		Filters:  filters,
		Indexes:  bases,
		Limit:    limit,
		Tenant:   tenantScope,
	})
	sum := sha256.Sum256(data)
	return KeyPrefix + hex.EncodeToString(sum[:])
}
