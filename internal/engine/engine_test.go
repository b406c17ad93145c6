package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kailas-cloud/fedsearch/internal/domain/document"
	"github.com/kailas-cloud/fedsearch/internal/metrics"
)

func TestWithTimeout_EveryCallHasDeadline(t *testing.T) {
	m := &mockClient{}
	c := WithTimeout(m, Timeouts{})
	ctx := context.Background()

	calls := map[string]func(){
		"search":          func() { _, _ = c.Search(ctx, "i", SearchRequest{}) },
		"add":             func() { _ = c.AddDocuments(ctx, "i", nil, "id") },
		"delete":          func() { _ = c.DeleteDocuments(ctx, "i", nil) },
		"delete_all":      func() { _ = c.DeleteAllDocuments(ctx, "i") },
		"create":          func() { _ = c.CreateIndex(ctx, "i", "id") },
		"drop":            func() { _ = c.DeleteIndex(ctx, "i") },
		"get_settings":    func() { _, _ = c.GetSettings(ctx, "i") },
		"update_settings": func() { _ = c.UpdateSettings(ctx, "i", Settings{}) },
		"health":          func() { _ = c.Health(ctx) },
		"stats":           func() { _, _ = c.Stats(ctx, "i") },
	}
	for name, call := range calls {
		m.lastDeadlineOK = false
		call()
		if !m.lastDeadlineOK {
			t.Errorf("%s: expected a deadline on the inner context", name)
		}
	}
}

func TestWithTimeout_SearchDeadlineFires(t *testing.T) {
	m := &mockClient{
		searchFn: func(ctx context.Context, _ string, _ SearchRequest) (SearchResponse, error) {
			<-ctx.Done()
			return SearchResponse{}, ctx.Err()
		},
	}
	c := WithTimeout(m, Timeouts{Search: 10 * time.Millisecond})

	start := time.Now()
	_, err := c.Search(context.Background(), "products", SearchRequest{Query: "watch"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("search deadline did not bound the call")
	}
}

func TestTimeouts_Pick(t *testing.T) {
	tests := []struct {
		name     string
		t        Timeouts
		specific time.Duration
		want     time.Duration
	}{
		{"specific wins", Timeouts{Default: time.Second}, 2 * time.Second, 2 * time.Second},
		{"default", Timeouts{Default: time.Second}, 0, time.Second},
		{"fallback", Timeouts{}, 0, DefaultTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.t.pick(tt.specific); got != tt.want {
				t.Errorf("pick = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInstrument_RecordsStatus(t *testing.T) {
	m := &mockClient{
		getSettingsFn: func(_ context.Context, _ string) (Settings, error) {
			return Settings{}, fmt.Errorf("wrapped: %w", ErrIndexNotFound)
		},
	}
	c := Instrument(m, "test-driver")

	before := testutil.ToFloat64(metrics.EngineRequestsTotal.WithLabelValues("test-driver", OpGetSettings, "not_found"))
	_, err := c.GetSettings(context.Background(), "products")
	if !errors.Is(err, ErrIndexNotFound) {
		t.Fatalf("expected ErrIndexNotFound to pass through, got %v", err)
	}
	after := testutil.ToFloat64(metrics.EngineRequestsTotal.WithLabelValues("test-driver", OpGetSettings, "not_found"))
	if after-before != 1 {
		t.Errorf("not_found counter delta = %f, want 1", after-before)
	}
}

func TestInstrument_CountsWrittenDocuments(t *testing.T) {
	c := Instrument(&mockClient{}, "test-driver")
	docs := []document.Document{{"id": "1"}, {"id": "2"}}

	before := testutil.ToFloat64(metrics.DocumentsWrittenTotal.WithLabelValues("instrumented_docs"))
	if err := c.AddDocuments(context.Background(), "instrumented_docs", docs, "id"); err != nil {
		t.Fatalf("AddDocuments: %v", err)
	}
	after := testutil.ToFloat64(metrics.DocumentsWrittenTotal.WithLabelValues("instrumented_docs"))
	if after-before != 2 {
		t.Errorf("documents written delta = %f, want 2", after-before)
	}
}

func TestInstrument_FailedWriteNotCounted(t *testing.T) {
	m := &mockClient{
		addFn: func(_ context.Context, _ string, _ []document.Document, _ string) error {
			return errors.New("boom")
		},
	}
	c := Instrument(m, "test-driver")

	before := testutil.ToFloat64(metrics.DocumentsWrittenTotal.WithLabelValues("instrumented_fail"))
	if err := c.AddDocuments(context.Background(), "instrumented_fail", []document.Document{{"id": "1"}}, "id"); err == nil {
		t.Fatal("expected error")
	}
	after := testutil.ToFloat64(metrics.DocumentsWrittenTotal.WithLabelValues("instrumented_fail"))
	if after != before {
		t.Errorf("failed write must not count documents")
	}
}

func TestSettings_EncodeDecode(t *testing.T) {
	in := Settings{
		PrimaryKey: "sku",
		Searchable: []string{"title", "body"},
		Filterable: []string{"brand"},
		Synonyms:   map[string][]string{"watch": {"timepiece", "clock"}},
	}
	out, err := DecodeSettings(EncodeSettings(in))
	if err != nil {
		t.Fatalf("DecodeSettings: %v", err)
	}
	if out.PrimaryKey != "sku" || len(out.Searchable) != 2 || out.Filterable[0] != "brand" {
		t.Errorf("decoded = %+v", out)
	}
	if len(out.Synonyms["watch"]) != 2 {
		t.Errorf("synonyms = %v", out.Synonyms)
	}
	if out.Sortable != nil {
		t.Errorf("empty list should decode to nil, got %v", out.Sortable)
	}
}

func TestSettings_DecodeEmpty(t *testing.T) {
	s, err := DecodeSettings(map[string]string{})
	if err != nil {
		t.Fatalf("DecodeSettings: %v", err)
	}
	if s.PrimaryKey != "" {
		t.Errorf("primary key = %q, want empty", s.PrimaryKey)
	}
}

func TestSearchRequest_NonEmptyFilters(t *testing.T) {
	r := SearchRequest{Filters: []string{" status = live ", "", "   ", "lang = en"}}
	got := r.NonEmptyFilters()
	if len(got) != 2 || got[0] != "status = live" || got[1] != "lang = en" {
		t.Errorf("NonEmptyFilters() = %q", got)
	}
	if got := (SearchRequest{}).NonEmptyFilters(); len(got) != 0 {
		t.Errorf("expected no filters, got %q", got)
	}
}
