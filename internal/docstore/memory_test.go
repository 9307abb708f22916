package docstore

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryStoreCRUD(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	created, err := s.Create(ctx, Responses, Record{"question": "q1", "selected_option": float64(2)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID() == "" {
		t.Fatal("create must assign an id")
	}
	if _, ok := created["created_at"]; !ok {
		t.Fatal("create must stamp created_at")
	}

	updated, err := s.Update(ctx, Responses, created.ID(), Record{"marked_for_review": true, "id": "hijack"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.ID() != created.ID() {
		t.Fatalf("update changed id to %q", updated.ID())
	}
	if updated["selected_option"] != float64(2) || updated["marked_for_review"] != true {
		t.Fatalf("update must merge fields, got %v", updated)
	}

	got, err := s.Get(ctx, Responses, created.ID())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	got["question"] = "mutated"
	again, _ := s.Get(ctx, Responses, created.ID())
	if again["question"] != "q1" {
		t.Fatal("returned records must not alias stored state")
	}

	if _, err := s.Get(ctx, Responses, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get missing = %v, want ErrNotFound", err)
	}
	if _, err := s.Update(ctx, Responses, "missing", Record{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("update missing = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreListQuery(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.Seed(ExamQuestions,
		Record{"id": "m3", "exam": "e1", "order": float64(3)},
		Record{"id": "m1", "exam": "e1", "order": float64(1)},
		Record{"id": "m2", "exam": "e2", "order": float64(2)},
	)

	all, err := s.List(ctx, ExamQuestions, Query{OrderBy: "order"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 || all[0].ID() != "m1" || all[2].ID() != "m3" {
		t.Fatalf("ordered list = %v", all)
	}

	desc, _ := s.List(ctx, ExamQuestions, Query{OrderBy: "order", Desc: true, Limit: 1})
	if len(desc) != 1 || desc[0].ID() != "m3" {
		t.Fatalf("desc limited list = %v", desc)
	}

	filtered, _ := s.List(ctx, ExamQuestions, Query{Filter: map[string]any{"exam": "e2"}})
	if len(filtered) != 1 || filtered[0].ID() != "m2" {
		t.Fatalf("filtered list = %v", filtered)
	}
}

func TestMemoryStoreFault(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	denied := errors.New("boom")
	s.SetFault(func(_ context.Context, op Op, collection string, _ Record) error {
		if op == OpCreate && collection == Results {
			return denied
		}
		return nil
	})

	if _, err := s.Create(ctx, Results, Record{}); !errors.Is(err, denied) {
		t.Fatalf("create = %v, want injected fault", err)
	}
	if _, err := s.Create(ctx, Attempts, Record{}); err != nil {
		t.Fatalf("unrelated create failed: %v", err)
	}
	if got := s.Calls(OpCreate, Results); got != 1 {
		t.Fatalf("calls = %d, want 1", got)
	}
}

func TestDecodeEncode(t *testing.T) {
	type doc struct {
		ID      string `json:"id"`
		Student Ref    `json:"student"`
		Option  *int   `json:"selected_option"`
	}
	var d doc
	err := Decode(Record{"id": "r1", "student": map[string]any{"id": "s1"}, "selected_option": float64(1)}, &d)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if d.Student.ID() != "s1" || d.Option == nil || *d.Option != 1 {
		t.Fatalf("decoded = %+v", d)
	}

	rec, err := Encode(d)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if rec["student"] != "s1" {
		t.Fatalf("encoded student = %v", rec["student"])
	}
}
