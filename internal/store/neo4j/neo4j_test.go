package neo4j

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/efebarandurmaz/bujo/internal/store/storetest"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

func TestFromValues(t *testing.T) {
	created := time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC)
	rec, err := fromValues(map[string]any{
		"id":         "n1",
		"name":       "Daily",
		"payload":    `{"notebook_name":"Daily","pages":[]}`,
		"created_at": created.Format(time.RFC3339Nano),
		"indexed":    true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if rec.ID != "n1" || rec.Name != "Daily" || !rec.Indexed || !rec.CreatedAt.Equal(created) {
		t.Errorf("rec = %+v", rec)
	}
	if rec.Payload["notebook_name"] != "Daily" {
		t.Errorf("payload = %v", rec.Payload)
	}
}

func TestFromValues_BadPayload(t *testing.T) {
	if _, err := fromValues(map[string]any{"id": "x", "payload": "{not json"}); err == nil {
		t.Error("expected payload decode error")
	}
}

// TestIntegration runs the shared store checks against an empty database when
// BUJO_TEST_NEO4J_URI is set.
func TestIntegration(t *testing.T) {
	uri := os.Getenv("BUJO_TEST_NEO4J_URI")
	if uri == "" {
		t.Skip("BUJO_TEST_NEO4J_URI not set")
	}
	ctx := context.Background()
	r, err := New(ctx, uri, os.Getenv("BUJO_TEST_NEO4J_USER"), os.Getenv("BUJO_TEST_NEO4J_PASSWORD"), "")
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close(ctx)
	session := r.session(ctx, neo4j.AccessModeWrite)
	_, _ = session.Run(ctx, "MATCH (n:Notebook) DETACH DELETE n", nil)
	session.Close(ctx)

	storetest.Run(t, r)
}
