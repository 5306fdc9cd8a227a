package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/efebarandurmaz/bujo/internal/notebook"
	"github.com/efebarandurmaz/bujo/internal/store"
	"github.com/efebarandurmaz/bujo/internal/vector"
)

func TestReindex_IndexesPendingRecords(t *testing.T) {
	ctx := context.Background()
	a := record("A", [2]string{"", "a"})
	b := record("B", [2]string{"", "b"})
	emb := &tableEmbedder{err: errors.New("down")}
	st := store.NewMemory()
	idx := vector.NewMemory(2)
	p := New(st, idx, emb, nil, WithLogger(quietLogger()))

	ra, _ := p.Ingest(ctx, a)
	rb, _ := p.Ingest(ctx, b)
	if idx.Len() != 0 {
		t.Fatal("nothing should be indexed while the embedder is down")
	}

	emb.err = nil
	emb.vectors = map[string][]float32{
		notebook.Summarize(a): {1, 0},
		notebook.Summarize(b): {0, 1},
	}
	res, err := p.Reindex(ctx, 0, 2)
	if err != nil {
		t.Fatal(err)
	}
	if res.Scanned != 2 || res.Indexed != 2 || res.Failed != 0 {
		t.Errorf("result = %+v", res)
	}
	if idx.Len() != 2 {
		t.Errorf("index has %d entries", idx.Len())
	}
	for _, id := range []string{ra.ID, rb.ID} {
		if got, _ := st.Get(ctx, id); !got.Indexed {
			t.Errorf("record %s not flagged indexed", id)
		}
	}

	// The next ingest of the same content is now a duplicate.
	again, err := p.Ingest(ctx, a)
	if err != nil {
		t.Fatal(err)
	}
	if again.ID != ra.ID || again.Committed {
		t.Errorf("after reindex = %+v", again)
	}
}

func TestReindex_CountsFailures(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	_, _ = st.Put(ctx, record("A", [2]string{"", "a"}))
	p := New(st, vector.NewMemory(2), &tableEmbedder{vectors: map[string][]float32{}}, nil, WithLogger(quietLogger()))

	res, err := p.Reindex(ctx, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if res.Scanned != 1 || res.Failed != 1 || res.Indexed != 0 {
		t.Errorf("result = %+v", res)
	}
}

func TestReindex_NoEmbedder(t *testing.T) {
	p := New(store.NewMemory(), vector.NewMemory(2), nil, nil, WithLogger(quietLogger()))
	if _, err := p.Reindex(context.Background(), 10, 1); !errors.Is(err, ErrEmbeddingUnavailable) {
		t.Errorf("err = %v", err)
	}
}
