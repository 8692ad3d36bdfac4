package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestTraceHandler_AddsContextFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "production")

	ctx := WithLogFields(context.Background(), LogFields{SessionID: "s1", Component: "classboard.board"})
	ctx = WithLogFields(ctx, LogFields{UserID: "alice"})
	log.InfoContext(ctx, "question posted")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", buf.String(), err)
	}
	if entry["session_id"] != "s1" || entry["user_id"] != "alice" || entry["component"] != "classboard.board" {
		t.Errorf("context fields missing: %v", entry)
	}
	if _, ok := entry["trace_id"]; ok {
		t.Error("trace_id should be absent without a span")
	}
}

func TestNew_DevelopmentUsesText(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, "development").Debug("hello", "k", "v")

	if !strings.Contains(buf.String(), "msg=hello") {
		t.Errorf("expected text debug output, got %q", buf.String())
	}
}

func TestMergeFields_KeepsExisting(t *testing.T) {
	merged := mergeFields(LogFields{SessionID: "s1", UserID: "u1"}, LogFields{UserID: "u2"})
	if merged.SessionID != "s1" || merged.UserID != "u2" {
		t.Errorf("unexpected merge result %+v", merged)
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("abcdef", 3); got != "abc..." {
		t.Errorf("Truncate = %q", got)
	}
	if got := Truncate("ab", 3); got != "ab" {
		t.Errorf("Truncate = %q", got)
	}
}
