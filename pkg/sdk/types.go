package fedsearch

import (
	"github.com/kailas-cloud/fedsearch/internal/domain/search/result"
	"github.com/kailas-cloud/fedsearch/internal/usecase/federation"
	healthuc "github.com/kailas-cloud/fedsearch/internal/usecase/health"
	"github.com/kailas-cloud/fedsearch/internal/usecase/indexing"
)

// SearchRequest is a federated query.
type SearchRequest struct {
	Query string
	// Filters are engine filter expressions keyed by base index name.
	Filters map[string]string
	// Indexes narrows the configured federation; empty searches all of it.
	Indexes []string
	// Limit of 0 uses the configured default.
	Limit int
	// Tenant overrides the client tenant for this call.
	Tenant string
}

// Hit is a single search result.
type Hit struct {
	Index    string
	Score    float64
	Document map[string]any
}

// SearchResult holds the merged hits of a federated query.
type SearchResult struct {
	Hits            []Hit
	Total           int
	IndexesSearched []string
	FailedIndexes   []string
	Limit           int
}

// IndexStatus compares source records with indexed documents for one index.
type IndexStatus struct {
	SourceType  string
	Tenant      string
	Index       string
	SourceCount int64
	Documents   int64
	Version     int64
	Error       string
}

// Finding is one diagnostic result.
type Finding struct {
	Check    string
	Subject  string
	Severity string // "ok", "warn", "error"
	Message  string
}

// DoctorReport is the outcome of Doctor. Severity is the worst finding.
type DoctorReport struct {
	Severity string
	Findings []Finding
}

// OK reports whether no finding is an error.
func (r DoctorReport) OK() bool { return r.Severity != string(healthuc.SeverityError) }

func toRequest(r SearchRequest, tenant string) federation.Request {
	if r.Tenant != "" {
		tenant = r.Tenant
	}
	return federation.Request{
		Query:   r.Query,
		Filters: r.Filters,
		Indexes: r.Indexes,
		Limit:   r.Limit,
		Tenant:  tenant,
	}
}

func fromResult(r result.SearchResult) SearchResult {
	hits := make([]Hit, len(r.Hits))
	for i, h := range r.Hits {
		hits[i] = Hit{Index: h.Index, Score: h.Score, Document: h.Document}
	}
	return SearchResult{
		Hits:            hits,
		Total:           r.Meta.Total,
		IndexesSearched: r.Meta.IndexesSearched,
		FailedIndexes:   r.Meta.FailedIndexes,
		Limit:           r.Meta.Limit,
	}
}

func fromStatus(st []indexing.IndexStatus) []IndexStatus {
	out := make([]IndexStatus, len(st))
	for i, s := range st {
		out[i] = IndexStatus{
			SourceType:  s.SourceType,
			Tenant:      s.Tenant,
			Index:       s.Index,
			SourceCount: s.SourceCount,
			Documents:   s.Documents,
			Version:     s.Version,
			Error:       s.Error,
		}
	}
	return out
}

func fromDoctor(r healthuc.DoctorReport) DoctorReport {
	findings := make([]Finding, len(r.Findings))
	for i, f := range r.Findings {
		findings[i] = Finding{
			Check:    f.Check,
			Subject:  f.Subject,
			Severity: string(f.Severity),
			Message:  f.Message,
		}
	}
	return DoctorReport{Severity: string(r.Severity), Findings: findings}
}
