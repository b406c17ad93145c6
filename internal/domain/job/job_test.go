package job

import "testing"

func TestNew_DedupesAndKeepsOrder(t *testing.T) {
	j, err := New(KindIndex, "product", []string{"3", "1", "3", "", "2"}, "acme")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"3", "1", "2"}
	if len(j.RecordIDs) != len(want) {
		t.Fatalf("RecordIDs = %v, want %v", j.RecordIDs, want)
	}
	for i := range want {
		if j.RecordIDs[i] != want[i] {
			t.Errorf("RecordIDs[%d] = %q, want %q", i, j.RecordIDs[i], want[i])
		}
	}
	if j.Attempt != 1 {
		t.Errorf("Attempt = %d, want 1", j.Attempt)
	}
	if j.ID == "" {
		t.Error("expected generated id")
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New("upsert", "product", []string{"1"}, ""); err == nil {
		t.Error("expected error for unknown kind")
	}
	if _, err := New(KindDelete, "", []string{"1"}, ""); err == nil {
		t.Error("expected error for empty source type")
	}
	if _, err := New(KindDelete, "product", nil, ""); err == nil {
		t.Error("expected error for empty ids")
	}
}

func TestSplit(t *testing.T) {
	jobs, err := Split(KindIndex, "product", []string{"1", "2", "3", "4", "5"}, "", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(jobs) != 3 {
		t.Fatalf("expected 3 jobs, got %d", len(jobs))
	}
	if len(jobs[2].RecordIDs) != 1 || jobs[2].RecordIDs[0] != "5" {
		t.Errorf("last job ids = %v", jobs[2].RecordIDs)
	}
}

func TestSplit_NoSize(t *testing.T) {
	jobs, err := Split(KindDelete, "product", []string{"1", "2"}, "", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(jobs) != 1 || len(jobs[0].RecordIDs) != 2 {
		t.Errorf("unexpected split: %+v", jobs)
	}
}
