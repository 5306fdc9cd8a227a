// Package storetest runs the shared behaviour checks every store.Store
// backend must pass.
package storetest

import (
	"context"
	"errors"
	"testing"

	"github.com/efebarandurmaz/bujo/internal/notebook"
	"github.com/efebarandurmaz/bujo/internal/store"
)

// Run exercises s, which must start empty.
func Run(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("PutAssignsIDAndCreatedAt", func(t *testing.T) {
		id, err := s.Put(ctx, notebook.New(map[string]any{"notebook_name": "Daily"}))
		if err != nil {
			t.Fatal(err)
		}
		if id == "" {
			t.Fatal("expected generated id")
		}
		got, err := s.Get(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if got.Name != "Daily" || got.CreatedAt.IsZero() || got.Indexed {
			t.Errorf("record = %+v", got)
		}
		if got.Payload["notebook_name"] != "Daily" {
			t.Errorf("payload = %v", got.Payload)
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		if _, err := s.Get(ctx, "does-not-exist"); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("PutExistingKeepsCreatedAt", func(t *testing.T) {
		id, _ := s.Put(ctx, notebook.New(map[string]any{"name": "v1"}))
		first, _ := s.Get(ctx, id)

		rec := notebook.New(map[string]any{"name": "v2"})
		rec.ID = id
		if _, err := s.Put(ctx, rec); err != nil {
			t.Fatal(err)
		}
		second, _ := s.Get(ctx, id)
		if !second.CreatedAt.Equal(first.CreatedAt) {
			t.Errorf("created_at changed: %v -> %v", first.CreatedAt, second.CreatedAt)
		}
		if second.Name != "v2" {
			t.Errorf("name = %q", second.Name)
		}
	})

	t.Run("SetIndexedAndListUnindexed", func(t *testing.T) {
		a, _ := s.Put(ctx, notebook.New(map[string]any{"name": "a"}))
		b, _ := s.Put(ctx, notebook.New(map[string]any{"name": "b"}))
		if err := s.SetIndexed(ctx, a, true); err != nil {
			t.Fatal(err)
		}
		if err := s.SetIndexed(ctx, "missing", true); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("SetIndexed(missing) err = %v", err)
		}

		pending, err := s.ListUnindexed(ctx, 0)
		if err != nil {
			t.Fatal(err)
		}
		var sawA, sawB bool
		for _, r := range pending {
			sawA = sawA || r.ID == a
			sawB = sawB || r.ID == b
		}
		if sawA || !sawB {
			t.Errorf("unindexed = %v", pending)
		}
	})

	t.Run("ListInsertionOrderAndLimit", func(t *testing.T) {
		all, err := s.List(ctx, 0)
		if err != nil {
			t.Fatal(err)
		}
		before := len(all)
		var ids []string
		for _, n := range []string{"x", "y", "z"} {
			id, _ := s.Put(ctx, notebook.New(map[string]any{"name": n}))
			ids = append(ids, id)
		}
		all, _ = s.List(ctx, 0)
		if len(all) != before+3 {
			t.Fatalf("len = %d, want %d", len(all), before+3)
		}
		tail := all[before:]
		for i, id := range ids {
			if tail[i].ID != id {
				t.Errorf("position %d = %s, want %s", i, tail[i].ID, id)
			}
		}
		two, _ := s.List(ctx, 2)
		if len(two) != 2 {
			t.Errorf("List(2) returned %d", len(two))
		}
	})

	t.Run("Replace", func(t *testing.T) {
		id, _ := s.Put(ctx, notebook.New(map[string]any{"name": "orig"}))
		rec, _ := s.Get(ctx, id)
		rec.Payload["pages"] = []any{map[string]any{"page_index": float64(1)}}
		rec.Name = ""
		if err := s.Replace(ctx, rec); err != nil {
			t.Fatal(err)
		}
		got, _ := s.Get(ctx, id)
		if got.Name != "orig" {
			t.Errorf("name = %q", got.Name)
		}
		if _, ok := got.Payload["pages"]; !ok {
			t.Errorf("payload not replaced: %v", got.Payload)
		}

		rec.ID = "missing"
		if err := s.Replace(ctx, rec); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("Replace(missing) err = %v", err)
		}
	})

	t.Run("Ping", func(t *testing.T) {
		if err := s.Ping(ctx); err != nil {
			t.Errorf("Ping: %v", err)
		}
	})
}
