package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/fedsearch/internal/domain"
	"github.com/kailas-cloud/fedsearch/internal/domain/document"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/result"
	"github.com/kailas-cloud/fedsearch/internal/usecase/federation"
	healthuc "github.com/kailas-cloud/fedsearch/internal/usecase/health"
	"github.com/kailas-cloud/fedsearch/internal/usecase/indexing"
)

type testEnv struct {
	search  *mockSearcher
	indexer *mockIndexer
	health  *mockHealth
	handler http.Handler
}

func newTestEnv(apiKeys ...string) *testEnv {
	e := &testEnv{
		search:  &mockSearcher{},
		indexer: &mockIndexer{},
		health:  &mockHealth{report: healthuc.Report{Status: healthuc.Healthy}},
	}
	srv := NewServer(e.search, e.indexer, e.health, zap.NewNop())
	e.handler = NewRouter(srv, apiKeys, zap.NewNop())
	return e
}

func (e *testEnv) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, http.NoBody)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var er ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&er); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	return er
}

func TestSearchQuery_ParsesParameters(t *testing.T) {
	e := newTestEnv()
	e.search.searchFn = func(_ context.Context, req federation.Request) (result.SearchResult, error) {
		res := result.Empty(req.Query, 5)
		res.Hits = []result.Hit{{Document: document.Document{"id": "1"}, Index: "products", Score: 1.5}}
		return res, nil
	}

	rr := e.do(http.MethodGet, "/search?q=shoe&limit=5&indexes=products,content&filter[products]=status%3Dlive&tenant=acme", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body)
	}

	got := e.search.last
	if got.Query != "shoe" || got.Limit != 5 || got.Tenant != "acme" {
		t.Errorf("request = %+v", got)
	}
	if len(got.Indexes) != 2 || got.Indexes[1] != "content" {
		t.Errorf("indexes = %v", got.Indexes)
	}
	if got.Filters["products"] != "status=live" {
		t.Errorf("filters = %v", got.Filters)
	}

	var body map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	hits := body["hits"].([]any)
	hit := hits[0].(map[string]any)
	if hit["_index"] != "products" || hit["_score"] != 1.5 || hit["id"] != "1" {
		t.Errorf("hit = %v", hit)
	}
}

func TestSearchQuery_BadLimit(t *testing.T) {
	e := newTestEnv()
	rr := e.do(http.MethodGet, "/search?q=a&limit=ten", "")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestSearchBody_TenantHeaderFallback(t *testing.T) {
	e := newTestEnv()
	req := httptest.NewRequest(http.MethodPost, "/search",
		strings.NewReader(`{"query":"tee","limit":3,"filters":{"content":"lang = en"}}`))
	req.Header.Set(TenantHeader, "globex")
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	got := e.search.last
	if got.Tenant != "globex" || got.Limit != 3 || got.Filters["content"] != "lang = en" {
		t.Errorf("request = %+v", got)
	}
}

func TestSearchBody_InvalidJSON(t *testing.T) {
	e := newTestEnv()
	rr := e.do(http.MethodPost, "/search", "{")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
	if er := decodeError(t, rr); er.Code != ErrorResponseCodeBadRequest {
		t.Errorf("code = %s", er.Code)
	}
}

func TestSearch_DomainErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   ErrorResponseCode
	}{
		{"tenant required", domain.NewConfigurationError(domain.ErrTenantRequired, "index products"),
			http.StatusBadRequest, ErrorResponseCodeTenantRequired},
		{"invalid tenant", domain.NewConfigurationError(domain.ErrInvalidTenant, "!!"),
			http.StatusBadRequest, ErrorResponseCodeInvalidTenant},
		{"unknown index", domain.ErrInvalidRequest,
			http.StatusBadRequest, ErrorResponseCodeValidationFailed},
		{"internal", errors.New("redis: connection refused"),
			http.StatusInternalServerError, ErrorResponseCodeInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEnv()
			e.search.searchFn = func(context.Context, federation.Request) (result.SearchResult, error) {
				return result.SearchResult{}, tt.err
			}
			rr := e.do(http.MethodGet, "/search?q=x", "")
			if rr.Code != tt.status {
				t.Errorf("status = %d, want %d", rr.Code, tt.status)
			}
			er := decodeError(t, rr)
			if er.Code != tt.code {
				t.Errorf("code = %s, want %s", er.Code, tt.code)
			}
			if tt.code == ErrorResponseCodeInternalError && er.Message != "internal error" {
				t.Errorf("internal details leaked: %q", er.Message)
			}
		})
	}
}

func TestIndexRecords_Accepted(t *testing.T) {
	e := newTestEnv()
	rr := e.do(http.MethodPost, "/index/products", `{"ids":["1","2"],"tenant":"acme"}`)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body)
	}
	if len(e.indexer.indexed) != 1 {
		t.Fatalf("calls = %d", len(e.indexer.indexed))
	}
	call := e.indexer.indexed[0]
	if call.sourceType != "products" || len(call.ids) != 2 || call.tenant != "acme" {
		t.Errorf("call = %+v", call)
	}
	var resp JobsResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil || len(resp.Jobs) != 1 {
		t.Errorf("response = %+v, err %v", resp, err)
	}
}

func TestDeleteRecords_Accepted(t *testing.T) {
	e := newTestEnv()
	rr := e.do(http.MethodDelete, "/index/pages", `{"ids":["9"]}`)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rr.Code)
	}
	if len(e.indexer.deleted) != 1 || e.indexer.deleted[0].sourceType != "pages" {
		t.Errorf("deleted = %+v", e.indexer.deleted)
	}
}

func TestIndexRecords_Validation(t *testing.T) {
	e := newTestEnv()

	if rr := e.do(http.MethodPost, "/index/products", `{"ids":[]}`); rr.Code != http.StatusBadRequest {
		t.Errorf("empty ids: status = %d", rr.Code)
	}

	e.indexer.indexFn = func(context.Context, string, []string, string) ([]string, error) {
		return nil, domain.NewConfigurationError(domain.ErrMappingNotFound, "source type orders")
	}
	rr := e.do(http.MethodPost, "/index/orders", `{"ids":["1"]}`)
	if rr.Code != http.StatusNotFound {
		t.Errorf("unknown source: status = %d", rr.Code)
	}
	er := decodeError(t, rr)
	if er.Code != ErrorResponseCodeMappingNotFound || !strings.Contains(er.Message, "orders") {
		t.Errorf("error = %+v", er)
	}
}

func TestAdminEndpoints(t *testing.T) {
	e := newTestEnv()
	var flushed, synced, reindexed string
	e.indexer.flushFn = func(_ context.Context, base, tenant string) error {
		flushed = base + "/" + tenant
		return nil
	}
	e.indexer.syncFn = func(_ context.Context, tenant string) error {
		synced = tenant
		return nil
	}
	e.indexer.reindexFn = func(_ context.Context, tenant string) (int, error) {
		reindexed = tenant
		return 7, nil
	}
	e.indexer.statusFn = func(context.Context, string) ([]indexing.IndexStatus, error) {
		return []indexing.IndexStatus{{SourceType: "products", Index: "products", Documents: 3}}, nil
	}

	if rr := e.do(http.MethodPost, "/admin/flush/content?tenant=acme", ""); rr.Code != http.StatusNoContent {
		t.Errorf("flush status = %d", rr.Code)
	}
	if flushed != "content/acme" {
		t.Errorf("flushed = %q", flushed)
	}

	if rr := e.do(http.MethodPost, "/admin/sync-settings?tenant=globex", ""); rr.Code != http.StatusNoContent {
		t.Errorf("sync status = %d", rr.Code)
	}
	if synced != "globex" {
		t.Errorf("synced = %q", synced)
	}

	rr := e.do(http.MethodPost, "/admin/reindex", "")
	if rr.Code != http.StatusAccepted {
		t.Errorf("reindex status = %d", rr.Code)
	}
	var rresp ReindexResponse
	_ = json.NewDecoder(rr.Body).Decode(&rresp)
	if rresp.Jobs != 7 || reindexed != "" {
		t.Errorf("reindex = %+v tenant %q", rresp, reindexed)
	}

	rr = e.do(http.MethodGet, "/admin/status", "")
	var st []indexing.IndexStatus
	if err := json.NewDecoder(rr.Body).Decode(&st); err != nil || len(st) != 1 || st[0].Documents != 3 {
		t.Errorf("status = %+v, err %v", st, err)
	}
}

func TestDoctorEndpoint(t *testing.T) {
	e := newTestEnv()
	e.health.doctor = healthuc.DoctorReport{Severity: healthuc.SeverityWarn}
	if rr := e.do(http.MethodGet, "/admin/doctor", ""); rr.Code != http.StatusOK {
		t.Errorf("warn: status = %d", rr.Code)
	}

	e.health.doctor = healthuc.DoctorReport{Severity: healthuc.SeverityError}
	if rr := e.do(http.MethodGet, "/admin/doctor", ""); rr.Code != http.StatusServiceUnavailable {
		t.Errorf("error: status = %d", rr.Code)
	}
}

func TestHealthCheck(t *testing.T) {
	e := newTestEnv("secret")
	e.health.report = healthuc.Report{
		Status: healthuc.Degraded,
		Checks: map[string]healthuc.CheckResult{"store": healthuc.CheckError},
	}

	rr := e.do(http.MethodGet, "/health", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rr.Code)
	}
	var body healthuc.Report
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Checks["store"] != healthuc.CheckError {
		t.Errorf("checks = %v", body.Checks)
	}
}

func TestRouter_AuthAndRequestID(t *testing.T) {
	e := newTestEnv("secret")

	if rr := e.do(http.MethodGet, "/search?q=a", ""); rr.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated: status = %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/search?q=a", http.NoBody)
	req.Header.Set("Authorization", "Bearer secret")
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("authenticated: status = %d", rr.Code)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}
}

func TestJSONRecoverer(t *testing.T) {
	h := JSONRecoverer(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	if rr.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", rr.Code)
	}
	if er := decodeError(t, rr); er.Code != ErrorResponseCodeInternalError {
		t.Errorf("code = %s", er.Code)
	}
}

func TestSearchOnlyServerHasNoIndexRoutes(t *testing.T) {
	srv := NewServer(&mockSearcher{}, nil, &mockHealth{}, zap.NewNop())
	h := NewRouter(srv, nil, zap.NewNop())

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/admin/reindex", http.NoBody))
	if rr.Code != http.StatusNotFound && rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 404", rr.Code)
	}
}
