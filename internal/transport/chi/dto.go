package chi

// ErrorResponseCode is a machine-readable error code.
type ErrorResponseCode string

const (
	ErrorResponseCodeBadRequest       ErrorResponseCode = "bad_request"
	ErrorResponseCodeUnauthorized     ErrorResponseCode = "unauthorized"
	ErrorResponseCodeValidationFailed ErrorResponseCode = "validation_failed"
	ErrorResponseCodeMappingNotFound  ErrorResponseCode = "mapping_not_found"
	ErrorResponseCodeTenantRequired   ErrorResponseCode = "tenant_required"
	ErrorResponseCodeInvalidTenant    ErrorResponseCode = "invalid_tenant"
	ErrorResponseCodeIndexNotFound    ErrorResponseCode = "index_not_found"
	ErrorResponseCodeInternalError    ErrorResponseCode = "internal_error"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    ErrorResponseCode `json:"code"`
	Message string            `json:"message"`
}

// SearchRequest is the POST /search body. Filters are keyed by base index.
type SearchRequest struct {
	Query   string            `json:"query"`
	Limit   *int              `json:"limit,omitempty"`
	Indexes []string          `json:"indexes,omitempty"`
	Filters map[string]string `json:"filters,omitempty"`
	Tenant  string            `json:"tenant,omitempty"`
}

// RecordsRequest is the body of POST and DELETE /index/{source}.
type RecordsRequest struct {
	IDs    []string `json:"ids"`
	Tenant string   `json:"tenant,omitempty"`
}

// JobsResponse lists enqueued job ids.
type JobsResponse struct {
	Jobs []string `json:"jobs"`
}

// ReindexResponse reports how many jobs a reindex enqueued.
type ReindexResponse struct {
	Jobs int `json:"jobs"`
}
