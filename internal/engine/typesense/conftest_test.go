package typesense

import (
	"context"
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
)

// fakeCluster serves the slice of the Typesense REST API the adapter calls.
type fakeCluster struct {
	mu          sync.Mutex
	collections map[string]*fakeCollection
	searches    []map[string]string
	imports     []url.Values
	rejectIDs   map[string]string
}

type fakeCollection struct {
	fields []map[string]any
	docs   map[string]map[string]any
}

func newFakeCluster(t *testing.T) (*fakeCluster, *httptest.Server) {
	t.Helper()
	fc := &fakeCluster{collections: map[string]*fakeCollection{}, rejectIDs: map[string]string{}}

	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	r.Post("/collections", fc.createCollection)
	r.Get("/collections/{name}", fc.retrieveCollection)
	r.Delete("/collections/{name}", fc.deleteCollection)
	r.Post("/collections/{name}/documents/import", fc.importDocuments)
	r.Get("/collections/{name}/documents/search", fc.search)
	r.Delete("/collections/{name}/documents/{id}", fc.deleteDocument)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return fc, srv
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func notFound(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, map[string]any{"message": "Not Found"})
}

func (fc *fakeCluster) collectionJSON(name string, c *fakeCollection) map[string]any {
	return map[string]any{
		"name":          name,
		"fields":        c.fields,
		"num_documents": len(c.docs),
		"created_at":    1700000000,
	}
}

func (fc *fakeCluster) createCollection(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name   string           `json:"name"`
		Fields []map[string]any `json:"fields"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": err.Error()})
		return
	}
	fc.mu.Lock()
	defer fc.mu.Unlock()
	if _, ok := fc.collections[body.Name]; ok {
		writeJSON(w, http.StatusConflict, map[string]any{"message": "already exists"})
		return
	}
	c := &fakeCollection{fields: body.Fields, docs: map[string]map[string]any{}}
	fc.collections[body.Name] = c
	writeJSON(w, http.StatusCreated, fc.collectionJSON(body.Name, c))
}

func (fc *fakeCluster) retrieveCollection(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	fc.mu.Lock()
	defer fc.mu.Unlock()
	c, ok := fc.collections[name]
	if !ok {
		notFound(w)
		return
	}
	writeJSON(w, http.StatusOK, fc.collectionJSON(name, c))
}

func (fc *fakeCluster) deleteCollection(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	fc.mu.Lock()
	defer fc.mu.Unlock()
	c, ok := fc.collections[name]
	if !ok {
		notFound(w)
		return
	}
	delete(fc.collections, name)
	writeJSON(w, http.StatusOK, fc.collectionJSON(name, c))
}

// importDocuments takes a JSONL body and answers one JSONL result line per document.
func (fc *fakeCluster) importDocuments(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.imports = append(fc.imports, r.URL.Query())
	c, ok := fc.collections[name]
	if !ok {
		notFound(w)
		return
	}

	var results []map[string]any
	sc := bufio.NewScanner(r.Body)
	for sc.Scan() {
		var doc map[string]any
		if err := json.Unmarshal(sc.Bytes(), &doc); err != nil {
			results = append(results, map[string]any{"success": false, "error": err.Error()})
			continue
		}
		id, _ := doc["id"].(string)
		if msg, bad := fc.rejectIDs[id]; bad {
			results = append(results, map[string]any{"success": false, "error": msg})
			continue
		}
		c.docs[id] = doc
		results = append(results, map[string]any{"success": true})
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	enc := json.NewEncoder(w)
	for _, res := range results {
		_ = enc.Encode(res)
	}
}

func (fc *fakeCluster) deleteDocument(w http.ResponseWriter, r *http.Request) {
	name, id := chi.URLParam(r, "name"), chi.URLParam(r, "id")
	fc.mu.Lock()
	defer fc.mu.Unlock()
	c, ok := fc.collections[name]
	if !ok {
		notFound(w)
		return
	}
	doc, ok := c.docs[id]
	if !ok {
		notFound(w)
		return
	}
	delete(c.docs, id)
	writeJSON(w, http.StatusOK, doc)
}

// search matches q as a case-insensitive substring of any query_by field.
func (fc *fakeCluster) search(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	q := r.URL.Query()
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.searches = append(fc.searches, map[string]string{
		"q": q.Get("q"), "query_by": q.Get("query_by"), "filter_by": q.Get("filter_by"), "per_page": q.Get("per_page"),
	})
	c, ok := fc.collections[name]
	if !ok {
		notFound(w)
		return
	}

	term := strings.ToLower(q.Get("q"))
	fields := strings.Split(q.Get("query_by"), ",")
	hits := []map[string]any{}
	for _, doc := range c.docs {
		var highlights []map[string]any
		for _, f := range fields {
			s, _ := doc[f].(string)
			if term != "*" && s != "" && strings.Contains(strings.ToLower(s), term) {
				highlights = append(highlights, map[string]any{"field": f, "snippet": s})
			}
		}
		if term != "*" && len(highlights) == 0 {
			continue
		}
		hit := map[string]any{"document": doc}
		if len(highlights) > 0 {
			hit["highlights"] = highlights
			hit["text_match"] = 100
		}
		hits = append(hits, hit)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"found":          len(hits),
		"out_of":         len(c.docs),
		"page":           1,
		"search_time_ms": 1,
		"hits":           hits,
	})
}

// memSettings is an in-memory settingsStore.
type memSettings struct {
	mu sync.Mutex
	m  map[string]map[string]string
}

func newMemSettings() *memSettings {
	return &memSettings{m: map[string]map[string]string{}}
}

func (s *memSettings) HSet(_ context.Context, key string, fields map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.m[key]
	if !ok {
		h = map[string]string{}
		s.m[key] = h
	}
	for k, v := range fields {
		h[k] = v
	}
	return nil
}

func (s *memSettings) HGetAll(_ context.Context, key string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]string{}
	for k, v := range s.m[key] {
		out[k] = v
	}
	return out, nil
}

func (s *memSettings) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.m, k)
	}
	return nil
}
