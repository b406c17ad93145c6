package db

// TextQuery is the input for a full-text FT.SEARCH.
// Query is user text and gets escaped; Filter is a raw FT query fragment and does not.
type TextQuery struct {
	IndexName    string
	Field        string
	Query        string
	Filter       string
	TopK         int
	ReturnFields []string
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single document hit from a search.
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}
