package observability

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
)

func TestAuditLogger_WritesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	l := NewAuditWriter(&buf, "s1")

	if err := l.Log(&AuditEvent{EventType: AuditEventIngestCommit, NotebookID: "n1", Success: true}); err != nil {
		t.Fatal(err)
	}
	if err := l.Log(&AuditEvent{EventType: AuditEventIngestDuplicate, MatchedID: "n1", Success: true}); err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var ev AuditEvent
	if err := json.Unmarshal([]byte(lines[0]), &ev); err != nil {
		t.Fatal(err)
	}
	if ev.SessionID != "s1" || ev.NotebookID != "n1" || ev.Timestamp.IsZero() {
		t.Errorf("event = %+v", ev)
	}
}

func TestAuditLogger_DisabledAndNil(t *testing.T) {
	l, err := NewAuditLogger(&AuditConfig{Enabled: false})
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Log(&AuditEvent{EventType: AuditEventReindex}); err != nil {
		t.Errorf("disabled logger returned %v", err)
	}

	var nilLogger *AuditLogger
	if err := nilLogger.Log(&AuditEvent{}); err != nil {
		t.Errorf("nil logger returned %v", err)
	}
	if err := nilLogger.Close(); err != nil {
		t.Errorf("nil Close returned %v", err)
	}
}

func TestAuditLogger_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	l, err := NewAuditLogger(&AuditConfig{Enabled: true, OutputPath: path})
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Log(&AuditEvent{EventType: AuditEventStatusUpdate}); err != nil {
		t.Fatal(err)
	}
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}
}
