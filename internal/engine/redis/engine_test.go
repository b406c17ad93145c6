package redis

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/kailas-cloud/fedsearch/internal/db"
	"github.com/kailas-cloud/fedsearch/internal/domain/document"
	"github.com/kailas-cloud/fedsearch/internal/engine"
)

func TestEngine_GetSettings_MissingIndex(t *testing.T) {
	e := New(newMockStore())

	_, err := e.GetSettings(context.Background(), "products")
	if !errors.Is(err, engine.ErrIndexNotFound) {
		t.Fatalf("expected ErrIndexNotFound, got %v", err)
	}
}

func TestEngine_CreateIndex_StoresPrimaryKey(t *testing.T) {
	ms := newMockStore()
	e := New(ms)
	ctx := context.Background()

	if err := e.CreateIndex(ctx, "products_acme", "sku"); err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}

	def := ms.indexes["products_acme"]
	if def == nil {
		t.Fatal("expected FT index to be created")
	}
	if def.StorageType != db.StorageJSON {
		t.Errorf("storage = %s, want JSON", def.StorageType)
	}
	if len(def.Prefixes) != 1 || def.Prefixes[0] != "fedsearch:doc:products_acme:" {
		t.Errorf("prefixes = %v", def.Prefixes)
	}

	s, err := e.GetSettings(ctx, "products_acme")
	if err != nil {
		t.Fatalf("GetSettings: %v", err)
	}
	if s.PrimaryKey != "sku" {
		t.Errorf("primary key = %q, want sku", s.PrimaryKey)
	}
}

func TestEngine_CreateIndex_RollsBackSettings(t *testing.T) {
	ms := newMockStore()
	ms.createFn = func(context.Context, *db.IndexDefinition) error { return errors.New("boom") }
	e := New(ms)

	if err := e.CreateIndex(context.Background(), "products", "id"); err == nil {
		t.Fatal("expected error")
	}
	if _, ok := ms.hashes[engine.SettingsKey("products")]; ok {
		t.Error("settings hash should be removed after failed FT.CREATE")
	}
}

func TestEngine_DeleteIndex_MissingIsNoop(t *testing.T) {
	e := New(newMockStore())
	if err := e.DeleteIndex(context.Background(), "ghost"); err != nil {
		t.Fatalf("DeleteIndex on missing index: %v", err)
	}
}

func TestEngine_UpdateSettings_AltersSchemaOnce(t *testing.T) {
	ms := newMockStore()
	e := New(ms)
	ctx := context.Background()
	if err := e.CreateIndex(ctx, "products", "id"); err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}

	err := e.UpdateSettings(ctx, "products", engine.Settings{
		PrimaryKey: "ignored",
		Searchable: []string{"title", "body"},
		Filterable: []string{"brand", "price"},
		Sortable:   []string{"price", "updated_at"},
		Synonyms:   map[string][]string{"watch": {"timepiece"}},
	})
	if err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}
	// Second call must tolerate fields that already exist.
	if err := e.UpdateSettings(ctx, "products", engine.Settings{Filterable: []string{"brand"}}); err != nil {
		t.Fatalf("second UpdateSettings: %v", err)
	}

	if got := ms.synonyms["watch"]; len(got) != 2 || got[0] != "watch" || got[1] != "timepiece" {
		t.Errorf("synonym group = %v", got)
	}
	if len(ms.altered) != 3 {
		t.Errorf("altered fields = %d, want 3 (brand, price, updated_at)", len(ms.altered))
	}

	s, err := e.GetSettings(ctx, "products")
	if err != nil {
		t.Fatalf("GetSettings: %v", err)
	}
	if s.PrimaryKey != "id" {
		t.Errorf("primary key changed to %q", s.PrimaryKey)
	}
	if len(s.Filterable) != 1 || s.Filterable[0] != "brand" {
		t.Errorf("filterable = %v", s.Filterable)
	}
}

func TestEngine_AddDocuments_WritesContent(t *testing.T) {
	ms := newMockStore()
	e := New(ms)
	ctx := context.Background()
	if err := e.CreateIndex(ctx, "products", "id"); err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}
	if err := e.UpdateSettings(ctx, "products", engine.Settings{Searchable: []string{"title", "tags"}}); err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}

	docs := []document.Document{
		{"id": 7, "title": "Steel watch", "tags": []any{"luxury", "swiss"}, "price": 100},
	}
	if err := e.AddDocuments(ctx, "products", docs, "id"); err != nil {
		t.Fatalf("AddDocuments: %v", err)
	}

	raw, ok := ms.docs["fedsearch:doc:products:7"]
	if !ok {
		t.Fatal("document not written under primary-key key")
	}
	var stored map[string]any
	if err := json.Unmarshal(raw, &stored); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if stored[contentField] != "Steel watch luxury swiss" {
		t.Errorf("content = %v", stored[contentField])
	}
	if stored["id"] != "7" {
		t.Errorf("id = %v, want string 7", stored["id"])
	}
}

func TestEngine_AddDocuments_MissingPrimaryKey(t *testing.T) {
	e := New(newMockStore())
	err := e.AddDocuments(context.Background(), "products", []document.Document{{"title": "x"}}, "id")
	if err == nil {
		t.Fatal("expected error for document without primary key")
	}
}

func TestEngine_DeleteAllDocuments(t *testing.T) {
	ms := newMockStore()
	ms.docs["fedsearch:doc:products:1"] = []byte(`{}`)
	ms.docs["fedsearch:doc:products:2"] = []byte(`{}`)
	ms.docs["fedsearch:doc:pages:1"] = []byte(`{}`)
	e := New(ms)

	if err := e.DeleteAllDocuments(context.Background(), "products"); err != nil {
		t.Fatalf("DeleteAllDocuments: %v", err)
	}
	if len(ms.docs) != 1 {
		t.Errorf("remaining docs = %d, want 1", len(ms.docs))
	}
	if _, ok := ms.docs["fedsearch:doc:pages:1"]; !ok {
		t.Error("other index documents must survive")
	}
}

func TestEngine_Search(t *testing.T) {
	ms := newMockStore()
	var got *db.TextQuery
	ms.searchFn = func(_ context.Context, q *db.TextQuery) (*db.SearchResult, error) {
		got = q
		return &db.SearchResult{
			Total: 42,
			Entries: []db.SearchEntry{
				{Key: "fedsearch:doc:products:1", Score: 1.5, Fields: map[string]string{"$": `{"id":"1","title":"Watch","__content":"Watch"}`}},
				{Key: "fedsearch:doc:products:2", Score: 0, Fields: map[string]string{"$": `{"id":"2"}`}},
				{Key: "fedsearch:doc:products:3", Score: 1, Fields: map[string]string{"$": `not json`}},
			},
		}, nil
	}
	e := New(ms)

	resp, err := e.Search(context.Background(), "products", engine.SearchRequest{Query: "watch", Limit: 5, Filters: []string{"@brand:{acme}"}})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if got.TopK != 5 || got.Filter != "@brand:{acme}" || got.Field != contentField {
		t.Errorf("query = %+v", got)
	}
	if resp.EstimatedTotalHits != 42 {
		t.Errorf("total = %d, want 42", resp.EstimatedTotalHits)
	}
	if len(resp.Hits) != 2 {
		t.Fatalf("hits = %d, want 2 (malformed entry skipped)", len(resp.Hits))
	}
	if !resp.Hits[0].Matched || resp.Hits[1].Matched {
		t.Errorf("matched flags = %v, %v", resp.Hits[0].Matched, resp.Hits[1].Matched)
	}
	if _, ok := resp.Hits[0].Document[contentField]; ok {
		t.Error("internal content field leaked into hit")
	}
}

func TestEngine_Search_MissingIndex(t *testing.T) {
	ms := newMockStore()
	ms.searchFn = func(context.Context, *db.TextQuery) (*db.SearchResult, error) {
		return nil, db.ErrIndexNotFound
	}
	_, err := New(ms).Search(context.Background(), "ghost", engine.SearchRequest{Query: "x", Limit: 1})
	if !errors.Is(err, engine.ErrIndexNotFound) {
		t.Fatalf("expected ErrIndexNotFound, got %v", err)
	}
}

func TestEngine_Stats(t *testing.T) {
	ms := newMockStore()
	ms.docCount = 12
	e := New(ms)
	ctx := context.Background()
	if _, err := e.Stats(ctx, "products"); !errors.Is(err, engine.ErrIndexNotFound) {
		t.Fatalf("expected ErrIndexNotFound, got %v", err)
	}
	if err := e.CreateIndex(ctx, "products", "id"); err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}
	st, err := e.Stats(ctx, "products")
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.NumDocuments != 12 {
		t.Errorf("num docs = %d", st.NumDocuments)
	}
}

func TestContentOf_DefaultsToStringFields(t *testing.T) {
	doc := document.Document{"b": "beta", "a": "alpha", "n": 3, "_tenant_id": "acme"}
	if got := contentOf(doc, nil); got != "alpha beta" {
		t.Errorf("contentOf = %q, want %q", got, "alpha beta")
	}
}

func TestJoinFilters(t *testing.T) {
	if got := joinFilters(nil); got != "" {
		t.Errorf("empty = %q", got)
	}
	if got := joinFilters([]string{"@brand:{acme}"}); got != "@brand:{acme}" {
		t.Errorf("single = %q", got)
	}
	if got := joinFilters([]string{"@status:{active}", "@brand:{acme}"}); got != "(@status:{active}) (@brand:{acme})" {
		t.Errorf("multiple = %q", got)
	}
}
