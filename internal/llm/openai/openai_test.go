package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/efebarandurmaz/bujo/internal/llm"
	"github.com/openai/openai-go"
)

func newTestServer(t *testing.T, handler func(path string, body map[string]any) string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(raw, &body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, handler(r.URL.Path, body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_Complete(t *testing.T) {
	var gotBody map[string]any
	srv := newTestServer(t, func(path string, body map[string]any) string {
		if !strings.HasSuffix(path, "/chat/completions") {
			t.Errorf("unexpected path %s", path)
		}
		gotBody = body
		return `{"id":"c1","object":"chat.completion","created":1,"model":"gpt-test",
			"choices":[{"index":0,"message":{"role":"assistant","content":"hi"},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":3,"completion_tokens":1,"total_tokens":4}}`
	})

	c := New(Config{APIKey: "k", Model: "gpt-test", BaseURL: srv.URL + "/v1"})
	resp, err := c.Complete(context.Background(), llm.UserPrompt("be terse", "hello"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "hi" || resp.InputTokens != 3 || resp.OutputTokens != 1 || resp.StopReason != "stop" {
		t.Errorf("resp = %+v", resp)
	}
	msgs, _ := gotBody["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("expected system + user messages, got %v", gotBody["messages"])
	}
	if gotBody["model"] != "gpt-test" {
		t.Errorf("model = %v", gotBody["model"])
	}
}

func TestClient_EmbedReordersByIndex(t *testing.T) {
	srv := newTestServer(t, func(path string, body map[string]any) string {
		if !strings.HasSuffix(path, "/embeddings") {
			t.Errorf("unexpected path %s", path)
		}
		if body["dimensions"] != float64(2) {
			t.Errorf("dimensions = %v", body["dimensions"])
		}
		return `{"object":"list","model":"e","usage":{"prompt_tokens":2,"total_tokens":2},
			"data":[{"object":"embedding","index":1,"embedding":[0,1]},
			        {"object":"embedding","index":0,"embedding":[1,0]}]}`
	})

	c := New(Config{APIKey: "k", BaseURL: srv.URL + "/v1", Dimensions: 2})
	vecs, err := c.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatal(err)
	}
	if len(vecs) != 2 || vecs[0][0] != 1 || vecs[1][1] != 1 {
		t.Errorf("vecs = %v", vecs)
	}
}

func TestClient_EmbedEmptyInput(t *testing.T) {
	c := New(Config{})
	vecs, err := c.Embed(context.Background(), nil)
	if err != nil || vecs != nil {
		t.Errorf("Embed(nil) = %v, %v", vecs, err)
	}
}

func TestToVectors_CountMismatch(t *testing.T) {
	if _, err := toVectors([]openai.Embedding{{Index: 0, Embedding: []float64{1}}}, 2); err == nil {
		t.Error("expected error on count mismatch")
	}
	if _, err := toVectors([]openai.Embedding{{Index: 0}, {Index: 5}}, 2); err == nil {
		t.Error("expected error on gap in indexes")
	}
}

func TestToMessages(t *testing.T) {
	p := &llm.Prompt{
		SystemPrompt: "sys",
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: "u"},
			{Role: llm.RoleAssistant, Content: "a"},
		},
	}
	if got := toMessages(p); len(got) != 3 {
		t.Errorf("got %d messages, want 3", len(got))
	}
}
