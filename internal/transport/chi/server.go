// Package chi exposes search, indexing and admin operations over HTTP.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kailas-cloud/fedsearch/internal/domain"
	"github.com/kailas-cloud/fedsearch/internal/logger"
	"github.com/kailas-cloud/fedsearch/internal/metrics"
	"github.com/kailas-cloud/fedsearch/internal/usecase/federation"
	healthuc "github.com/kailas-cloud/fedsearch/internal/usecase/health"
)

const maxRecordsPerRequest = 10000

// TenantHeader carries the tenant when the request body or query does not.
const TenantHeader = "X-Tenant-ID"

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server holds the HTTP handlers.
type Server struct {
	search        Searcher
	indexer       Indexer
	health        HealthChecker
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server. indexer may be nil on search-only nodes.
func NewServer(search Searcher, indexer Indexer, health HealthChecker, logger *zap.Logger) *Server {
	s := &Server{
		search:  search,
		indexer: indexer,
		health:  health,
		logger:  logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrMappingNotFound, http.StatusNotFound, ErrorResponseCodeMappingNotFound),
		sentinelHandler(domain.ErrTenantRequired, http.StatusBadRequest, ErrorResponseCodeTenantRequired),
		sentinelHandler(domain.ErrInvalidTenant, http.StatusBadRequest, ErrorResponseCodeInvalidTenant),
		sentinelHandler(domain.ErrInvalidRequest, http.StatusBadRequest, ErrorResponseCodeValidationFailed),
		sentinelHandler(domain.ErrIndexNotFound, http.StatusNotFound, ErrorResponseCodeIndexNotFound),
	}
	return s
}

// Routes mounts every handler on r.
func (s *Server) Routes(r chi.Router) {
	r.Get("/health", s.HealthCheck)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Get("/search", s.SearchQuery)
	r.Post("/search", s.SearchBody)

	if s.indexer == nil {
		return
	}
	r.Post("/index/{source}", s.IndexRecords)
	r.Delete("/index/{source}", s.DeleteRecords)

	r.Route("/admin", func(r chi.Router) {
		r.Post("/reindex", s.Reindex)
		r.Post("/flush/{index}", s.Flush)
		r.Post("/sync-settings", s.SyncSettings)
		r.Get("/status", s.Status)
		r.Get("/doctor", s.Doctor)
	})
}

// SearchQuery handles GET /search?q=...&limit=...&indexes=a,b&filter[a]=....
func (s *Server) SearchQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := federation.Request{
		Query:  q.Get("q"),
		Tenant: tenantFrom(r, ""),
	}

	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, ErrorResponseCodeValidationFailed, "limit must be an integer")
			return
		}
		req.Limit = n
	}
	if raw := q.Get("indexes"); raw != "" {
		req.Indexes = splitCSV(raw)
	}
	for key, values := range q {
		if base, ok := filterKey(key); ok && len(values) > 0 {
			if req.Filters == nil {
				req.Filters = make(map[string]string)
			}
			req.Filters[base] = values[0]
		}
	}

	s.runSearch(w, r, req)
}

// SearchBody handles POST /search.
func (s *Server) SearchBody(w http.ResponseWriter, r *http.Request) {
	var body SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponseCodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	req := federation.Request{
		Query:   body.Query,
		Filters: body.Filters,
		Indexes: body.Indexes,
		Tenant:  tenantFrom(r, body.Tenant),
	}
	if body.Limit != nil {
		req.Limit = *body.Limit
	}

	s.runSearch(w, r, req)
}

func (s *Server) runSearch(w http.ResponseWriter, r *http.Request, req federation.Request) {
	res, err := s.search.Search(r.Context(), req)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// IndexRecords handles POST /index/{source}.
func (s *Server) IndexRecords(w http.ResponseWriter, r *http.Request) {
	s.enqueueRecords(w, r, s.indexer.IndexRecords)
}

// DeleteRecords handles DELETE /index/{source}.
func (s *Server) DeleteRecords(w http.ResponseWriter, r *http.Request) {
	s.enqueueRecords(w, r, s.indexer.DeleteRecords)
}

type enqueueFunc func(ctx context.Context, sourceType string, ids []string, tenant string) ([]string, error)

func (s *Server) enqueueRecords(w http.ResponseWriter, r *http.Request, enqueue enqueueFunc) {
	var req RecordsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponseCodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if len(req.IDs) == 0 || len(req.IDs) > maxRecordsPerRequest {
		writeError(w, http.StatusBadRequest, ErrorResponseCodeValidationFailed,
			fmt.Sprintf("ids count must be between 1 and %d", maxRecordsPerRequest))
		return
	}

	jobs, err := enqueue(r.Context(), chi.URLParam(r, "source"), req.IDs, tenantFrom(r, req.Tenant))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, JobsResponse{Jobs: jobs})
}

// Reindex handles POST /admin/reindex.
func (s *Server) Reindex(w http.ResponseWriter, r *http.Request) {
	n, err := s.indexer.ReindexAll(r.Context(), tenantFrom(r, ""))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, ReindexResponse{Jobs: n})
}

// Flush handles POST /admin/flush/{index}.
func (s *Server) Flush(w http.ResponseWriter, r *http.Request) {
	if err := s.indexer.FlushIndex(r.Context(), chi.URLParam(r, "index"), tenantFrom(r, "")); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SyncSettings handles POST /admin/sync-settings.
func (s *Server) SyncSettings(w http.ResponseWriter, r *http.Request) {
	if err := s.indexer.SyncSettings(r.Context(), tenantFrom(r, "")); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Status handles GET /admin/status.
func (s *Server) Status(w http.ResponseWriter, r *http.Request) {
	st, err := s.indexer.Status(r.Context(), tenantFrom(r, ""))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Doctor handles GET /admin/doctor.
func (s *Server) Doctor(w http.ResponseWriter, r *http.Request) {
	report := s.health.Doctor(r.Context())
	status := http.StatusOK
	if report.Severity == healthuc.SeverityError {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, report)
}

// tenantFrom prefers an explicit value, then the tenant header, then the query string.
func tenantFrom(r *http.Request, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if h := r.Header.Get(TenantHeader); h != "" {
		return h
	}
	return r.URL.Query().Get("tenant")
}

// filterKey extracts the base index from a filter[base] query key.
func filterKey(key string) (string, bool) {
	if !strings.HasPrefix(key, "filter[") || !strings.HasSuffix(key, "]") {
		return "", false
	}
	base := key[len("filter[") : len(key)-1]
	return base, base != ""
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorResponseCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a message for the client without exposing internals.
// Configuration errors carry their subject, which is caller input.
func safeDomainMessage(err error) string {
	var ce *domain.ConfigurationError
	if errors.As(err, &ce) {
		return ce.Error()
	}
	sentinels := []error{
		domain.ErrInvalidRequest,
		domain.ErrIndexNotFound,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return err.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorResponseCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.FromContext(r.Context(), s.logger)
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			log.Warn("domain error", zap.Error(err))
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, ErrorResponseCodeInternalError, "internal error")
}
