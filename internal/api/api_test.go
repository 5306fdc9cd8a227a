package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/efebarandurmaz/bujo/internal/arbiter"
	"github.com/efebarandurmaz/bujo/internal/ingest"
	"github.com/efebarandurmaz/bujo/internal/notebook"
	"github.com/efebarandurmaz/bujo/internal/status"
	"github.com/efebarandurmaz/bujo/internal/store"
)

type fakeIngester struct {
	res  ingest.Result
	err  error
	seen []notebook.Record
}

func (f *fakeIngester) Ingest(_ context.Context, rec notebook.Record) (ingest.Result, error) {
	f.seen = append(f.seen, rec)
	return f.res, f.err
}

func newTestServer(t *testing.T, ing Ingester) (http.Handler, *store.Memory) {
	t.Helper()
	st := store.NewMemory()
	srv := NewServer(&Config{MaxBodyBytes: 1 << 10}, ing, st, status.New(st, nil, nil))
	return srv.Handler(), st
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(method, path, strings.NewReader(body)))
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func TestIngest_Created(t *testing.T) {
	ing := &fakeIngester{res: ingest.Result{
		ID:        "n1",
		Verdict:   arbiter.Verdict{Kind: arbiter.NoMatch},
		Committed: true,
		Warnings:  []ingest.Warning{{Stage: ingest.StageIndex, Code: ingest.CodeNotIndexed, Message: "not indexed"}},
	}}
	h, _ := newTestServer(t, ing)

	w := do(h, http.MethodPost, "/notebooks", `{"notebook_name":"Week 1","pages":[]}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	res := decode[ingest.Result](t, w)
	if res.ID != "n1" || !res.Committed || len(res.Warnings) != 1 || res.Warnings[0].Code != ingest.CodeNotIndexed {
		t.Errorf("result = %+v", res)
	}
	if len(ing.seen) != 1 || ing.seen[0].Name != "Week 1" {
		t.Errorf("ingester saw %+v", ing.seen)
	}
}

func TestIngest_DuplicateIsOK(t *testing.T) {
	ing := &fakeIngester{res: ingest.Result{
		ID:      "n1",
		Verdict: arbiter.Verdict{Kind: arbiter.ExactDuplicate, MatchedID: "n1", Similarity: 0.97},
	}}
	h, _ := newTestServer(t, ing)

	w := do(h, http.MethodPost, "/notebooks", `{"notebook_name":"Week 1"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if res := decode[ingest.Result](t, w); res.Verdict.Kind != arbiter.ExactDuplicate || res.Committed {
		t.Errorf("result = %+v", res)
	}
}

func TestIngest_Errors(t *testing.T) {
	storeDown := &ingest.StageError{Stage: ingest.StageCommit, Err: fmt.Errorf("%w: timeout", store.ErrUnavailable)}
	tests := []struct {
		name string
		body string
		err  error
		want int
	}{
		{"not json", `{"notebook_name":`, nil, http.StatusBadRequest},
		{"array payload", `[1,2]`, nil, http.StatusBadRequest},
		{"null payload", `null`, nil, http.StatusBadRequest},
		{"too large", `{"x":"` + strings.Repeat("a", 2<<10) + `"}`, nil, http.StatusRequestEntityTooLarge},
		{"store unavailable", `{}`, storeDown, http.StatusServiceUnavailable},
		{"unexpected", `{}`, errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newTestServer(t, &fakeIngester{err: tt.err})
			w := do(h, http.MethodPost, "/notebooks", tt.body)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", w.Code, tt.want, w.Body.String())
			}
			if e := decode[errorResponse](t, w); e.Error == "" {
				t.Error("error body missing")
			}
		})
	}
}

func TestGetAndList(t *testing.T) {
	h, st := newTestServer(t, &fakeIngester{})
	ctx := context.Background()
	var ids []string
	for i := 0; i < 3; i++ {
		id, err := st.Put(ctx, notebook.New(map[string]any{"notebook_name": fmt.Sprintf("N%d", i)}))
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
	}

	w := do(h, http.MethodGet, "/notebooks/"+ids[1], "")
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	if rec := decode[notebook.Record](t, w); rec.ID != ids[1] || rec.Name != "N1" {
		t.Errorf("get = %+v", rec)
	}

	if w := do(h, http.MethodGet, "/notebooks/missing", ""); w.Code != http.StatusNotFound {
		t.Errorf("missing id status = %d", w.Code)
	}

	w = do(h, http.MethodGet, "/notebooks?limit=2", "")
	if recs := decode[[]notebook.Record](t, w); len(recs) != 2 || recs[0].ID != ids[0] {
		t.Errorf("list = %+v", recs)
	}
	w = do(h, http.MethodGet, "/notebooks", "")
	if recs := decode[[]notebook.Record](t, w); len(recs) != 3 {
		t.Errorf("list without limit = %d records", len(recs))
	}
	if w := do(h, http.MethodGet, "/notebooks?limit=abc", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d", w.Code)
	}
}

func TestList_EmptyIsArray(t *testing.T) {
	h, _ := newTestServer(t, &fakeIngester{})
	w := do(h, http.MethodGet, "/notebooks", "")
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("body = %q", w.Body.String())
	}
}

func TestStatus(t *testing.T) {
	h, st := newTestServer(t, &fakeIngester{})
	id, err := st.Put(context.Background(), notebook.New(map[string]any{
		"notebook_name": "Week 2",
		"pages": []any{map[string]any{
			"page_index": 1,
			"extracted_items": []any{
				map[string]any{"type": "event", "content": "dentist", "status": "scheduled", "symbol": "O"},
			},
		}},
	}))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		id      string
		body    string
		want    int
		message string
	}{
		{"complete event", id, `{"page_index":1,"item_index":0,"new_status":"completed"}`, http.StatusOK, "status updated"},
		{"again", id, `{"page_index":1,"item_index":0,"new_status":"completed"}`, http.StatusOK, "no change"},
		{"unknown notebook", "nope", `{"page_index":1,"item_index":0,"new_status":"completed"}`, http.StatusNotFound, ""},
		{"unknown page", id, `{"page_index":7,"item_index":0,"new_status":"completed"}`, http.StatusNotFound, ""},
		{"bad item", id, `{"page_index":1,"item_index":3,"new_status":"completed"}`, http.StatusBadRequest, ""},
		{"invalid status", id, `{"page_index":1,"item_index":0,"new_status":"in_progress"}`, http.StatusBadRequest, ""},
		{"missing status", id, `{"page_index":1,"item_index":0}`, http.StatusBadRequest, ""},
		{"missing page index", id, `{"item_index":0,"new_status":"completed"}`, http.StatusBadRequest, ""},
		{"missing item index", id, `{"page_index":1,"new_status":"completed"}`, http.StatusBadRequest, ""},
		{"unknown field", id, `{"page":1}`, http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(h, http.MethodPost, "/notebooks/"+tt.id+"/status", tt.body)
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tt.want, w.Body.String())
			}
			if tt.message == "" {
				return
			}
			resp := decode[statusResponse](t, w)
			if resp.Message != tt.message || resp.Symbol != "●" {
				t.Errorf("response = %+v", resp)
			}
		})
	}
}

func TestStatus_MissingFieldsNamed(t *testing.T) {
	h, _ := newTestServer(t, &fakeIngester{})
	w := do(h, http.MethodPost, "/notebooks/x/status", `{"new_status":"completed"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	resp := decode[errorResponse](t, w)
	if resp.Error != "missing required fields: page_index, item_index" {
		t.Errorf("error = %q", resp.Error)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h, _ := newTestServer(t, &fakeIngester{})
	if w := do(h, http.MethodDelete, "/notebooks", ""); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d", w.Code)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("load: %w", store.ErrNotFound), http.StatusNotFound},
		{notebook.ErrPageNotFound, http.StatusNotFound},
		{notebook.ErrInvalidPayload, http.StatusBadRequest},
		{notebook.ErrNotUpdatable, http.StatusBadRequest},
		{store.ErrUnavailable, http.StatusServiceUnavailable},
		{&ingest.StageError{Stage: ingest.StageCommit, Err: errors.New("x")}, http.StatusServiceUnavailable},
		{errors.New("x"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
