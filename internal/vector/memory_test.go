package vector

import (
	"context"
	"errors"
	"math"
	"testing"
)

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"scaled", []float32{1, 1}, []float32{3, 3}, 1},
		{"zero", []float32{0, 0}, []float32{1, 1}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Cosine(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Cosine = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCheckDimension(t *testing.T) {
	if err := CheckDimension([]float32{1, 2}, 2); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := CheckDimension([]float32{1}, 2); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("err = %v, want ErrDimensionMismatch", err)
	}
}

func TestMemoryIndex_EmptyTopN(t *testing.T) {
	idx := NewMemory(2)
	got, err := idx.TopN(context.Background(), []float32{1, 0}, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("expected no matches, got %v", got)
	}
}

func TestMemoryIndex_OrderAndLimit(t *testing.T) {
	ctx := context.Background()
	idx := NewMemory(2)
	entries := []Entry{
		{ID: "far", Vector: []float32{0, 1}},
		{ID: "near", Vector: []float32{1, 0.1}},
		{ID: "exact", Vector: []float32{1, 0}},
	}
	for _, e := range entries {
		if err := idx.Upsert(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	got, err := idx.TopN(ctx, []float32{1, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "exact" || got[1].ID != "near" {
		t.Errorf("TopN = %+v", got)
	}
	if got[0].Similarity < got[1].Similarity {
		t.Error("results not in descending order")
	}
}

func TestMemoryIndex_TiesKeepInsertionOrder(t *testing.T) {
	ctx := context.Background()
	idx := NewMemory(2)
	for _, id := range []string{"first", "second", "third"} {
		if err := idx.Upsert(ctx, Entry{ID: id, Vector: []float32{1, 1}}); err != nil {
			t.Fatal(err)
		}
	}
	for i := 0; i < 3; i++ {
		got, _ := idx.TopN(ctx, []float32{1, 1}, 3)
		if got[0].ID != "first" || got[1].ID != "second" || got[2].ID != "third" {
			t.Fatalf("tie order = %v", got)
		}
	}
}

func TestMemoryIndex_UpsertReplaces(t *testing.T) {
	ctx := context.Background()
	idx := NewMemory(2)
	_ = idx.Upsert(ctx, Entry{ID: "a", Summary: "old", Vector: []float32{1, 0}})
	_ = idx.Upsert(ctx, Entry{ID: "b", Summary: "b", Vector: []float32{1, 0}})
	_ = idx.Upsert(ctx, Entry{ID: "a", Summary: "new", Vector: []float32{1, 0}})

	if idx.Len() != 2 {
		t.Fatalf("Len = %d, want 2", idx.Len())
	}
	got, _ := idx.TopN(ctx, []float32{1, 0}, 5)
	if got[0].ID != "a" || got[0].Summary != "new" {
		t.Errorf("replaced entry should keep its slot with new payload: %+v", got)
	}
}

func TestMemoryIndex_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	idx := NewMemory(3)
	if err := idx.Upsert(ctx, Entry{ID: "a", Vector: []float32{1}}); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Upsert err = %v", err)
	}
	if _, err := idx.TopN(ctx, []float32{1, 2}, 1); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("TopN err = %v", err)
	}
	if idx.Len() != 0 {
		t.Error("mismatched vector must not be stored")
	}
}

func TestMemoryIndex_CopiesVector(t *testing.T) {
	ctx := context.Background()
	idx := NewMemory(2)
	v := []float32{1, 0}
	_ = idx.Upsert(ctx, Entry{ID: "a", Vector: v})
	v[0], v[1] = 0, 1

	got, _ := idx.TopN(ctx, []float32{1, 0}, 1)
	if math.Abs(got[0].Similarity-1) > 1e-9 {
		t.Errorf("stored vector aliased caller slice: similarity %v", got[0].Similarity)
	}
}

type pingIndex struct {
	*MemoryIndex
	err error
}

func (p pingIndex) Ping(context.Context) error { return p.err }

func TestPing(t *testing.T) {
	ctx := context.Background()
	if err := Ping(ctx, NewMemory(2)); err != nil {
		t.Errorf("memory index ping = %v", err)
	}
	down := pingIndex{MemoryIndex: NewMemory(2), err: ErrUnavailable}
	if err := Ping(ctx, down); !errors.Is(err, ErrUnavailable) {
		t.Errorf("ping = %v", err)
	}
}
