package notebook

import (
	"errors"
	"strings"
	"testing"
	"time"
)

const sampleJSON = `{
  "notebook_name": "Morning Log",
  "pages": [
    {
      "page_index": 1,
      "page_metadata": {"file_name": "p1.jpg"},
      "extracted_items": [
        {"time": "06:00", "content": "yoga", "type": "task", "status": "incomplete", "symbol": "•"},
        {"content": "feeling rested", "type": "note"}
      ]
    },
    {
      "page_index": 2,
      "page_metadata": {"file_name": "p2.jpg"},
      "extracted_items": [
        {"time": "09:00", "content": "standup", "type": "event", "status": "scheduled", "symbol": "O"}
      ]
    }
  ]
}`

func TestParse(t *testing.T) {
	r, err := Parse([]byte(sampleJSON))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if r.Name != "Morning Log" {
		t.Errorf("Name = %q, want Morning Log", r.Name)
	}
	if r.ID != "" || !r.CreatedAt.IsZero() {
		t.Error("parsed record should not carry an id or created_at")
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, in := range []string{"", "[1,2]", "null", "{bad"} {
		if _, err := Parse([]byte(in)); !errors.Is(err, ErrInvalidPayload) {
			t.Errorf("Parse(%q) err = %v, want ErrInvalidPayload", in, err)
		}
	}
}

func TestNameOf(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]any
		want    string
	}{
		{"notebook_name", map[string]any{"notebook_name": "A", "name": "B"}, "A"},
		{"name fallback", map[string]any{"name": "B"}, "B"},
		{"empty", map[string]any{"notebook_name": ""}, DefaultName},
		{"missing", map[string]any{}, DefaultName},
		{"wrong type", map[string]any{"notebook_name": 3.0}, DefaultName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NameOf(tt.payload); got != tt.want {
				t.Errorf("NameOf = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSummarize(t *testing.T) {
	r, _ := Parse([]byte(sampleJSON))
	want := strings.Join([]string{
		"Notebook: Morning Log",
		"Total Pages: 2",
		"",
		"Page 1: p1.jpg",
		"06:00 - yoga",
		"feeling rested",
		"",
		"Page 2: p2.jpg",
		"09:00 - standup",
	}, "\n")
	if got := Summarize(r); got != want {
		t.Errorf("Summarize mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestSummarize_Deterministic(t *testing.T) {
	r, _ := Parse([]byte(sampleJSON))
	first := Summarize(r)
	for i := 0; i < 5; i++ {
		if got := Summarize(r.Clone()); got != first {
			t.Fatalf("summary changed between calls: %q vs %q", got, first)
		}
	}
}

func TestSummarize_PageWithoutHeader(t *testing.T) {
	r := New(map[string]any{
		"notebook_name": "X",
		"pages": []any{
			map[string]any{"extracted_items": []any{
				map[string]any{"time": "06:00", "content": "yoga"},
			}},
		},
	})
	want := "Notebook: X\nTotal Pages: 1\n\n06:00 - yoga"
	if got := Summarize(r); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestSummarize_NoPages(t *testing.T) {
	got := Summarize(New(nil))
	want := "Notebook: Untitled Notebook\nTotal Pages: 0"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestLines(t *testing.T) {
	if Lines("") != nil {
		t.Error("empty summary should have no lines")
	}
	got := Lines("a\n\nb")
	if len(got) != 3 || got[1] != "" {
		t.Errorf("Lines = %q", got)
	}
}

func TestClone_IsDeep(t *testing.T) {
	r, _ := Parse([]byte(sampleJSON))
	c := r.Clone()
	pages := c.Payload["pages"].([]any)
	pages[0].(map[string]any)["page_index"] = 99.0

	orig := r.Payload["pages"].([]any)[0].(map[string]any)["page_index"]
	if orig != 1.0 {
		t.Errorf("mutating clone changed original: page_index=%v", orig)
	}
}

func TestEncodeDecodePayload(t *testing.T) {
	s, err := EncodePayload(nil)
	if err != nil || s != "{}" {
		t.Fatalf("EncodePayload(nil) = %q, %v", s, err)
	}
	p, err := DecodePayload(`{"a":[1,"b"]}`)
	if err != nil {
		t.Fatal(err)
	}
	if len(p["a"].([]any)) != 2 {
		t.Errorf("decoded payload = %v", p)
	}
	if _, err := DecodePayload("nope"); err == nil {
		t.Error("expected error for invalid payload text")
	}
}

func TestUpdateItemStatus(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name       string
		page, item int
		status     string
		wantSymbol string
		wantErr    error
	}{
		{"task completed", 1, 0, "completed", "X", nil},
		{"task in progress", 1, 0, "in_progress", "/", nil},
		{"event completed", 2, 0, "completed", "●", nil},
		{"note not updatable", 1, 1, "completed", "", ErrNotUpdatable},
		{"event invalid status", 2, 0, "in_progress", "", ErrInvalidStatus},
		{"missing page", 7, 0, "completed", "", ErrPageNotFound},
		{"bad item index", 1, 5, "completed", "", ErrItemIndex},
		{"negative item index", 1, -1, "completed", "", ErrItemIndex},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := Parse([]byte(sampleJSON))
			change, err := UpdateItemStatus(&r, tt.page, tt.item, tt.status, now)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !change.Changed || change.Symbol != tt.wantSymbol {
				t.Errorf("change = %+v, want symbol %q", change, tt.wantSymbol)
			}
			page := findPage(r.Payload, tt.page)
			item := page["extracted_items"].([]any)[tt.item].(map[string]any)
			if item["status"] != tt.status || item["symbol"] != tt.wantSymbol {
				t.Errorf("item not updated: %v", item)
			}
			if tt.status == "completed" && item["completed_at"] != "2026-01-02T03:04:05Z" {
				t.Errorf("completed_at = %v", item["completed_at"])
			}
		})
	}
}

func TestUpdateItemStatus_NoChange(t *testing.T) {
	r, _ := Parse([]byte(sampleJSON))
	change, err := UpdateItemStatus(&r, 1, 0, "incomplete", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if change.Changed {
		t.Error("expected no change when status and symbol already match")
	}
}

func TestSymbolFor(t *testing.T) {
	if s, ok := SymbolFor(ItemEvent, "scheduled"); !ok || s != "O" {
		t.Errorf("SymbolFor(event, scheduled) = %q, %v", s, ok)
	}
	if _, ok := SymbolFor("note", "completed"); ok {
		t.Error("notes have no symbols")
	}
}
