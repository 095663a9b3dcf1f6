package splitfile

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/boshu2/recall/internal/types"
)

func mustWriteJSON(t *testing.T, path string, v any) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func buildSession(t *testing.T, root string) string {
	t.Helper()
	sessionDir := filepath.Join(root, "sess1")
	mustWriteJSON(t, filepath.Join(sessionDir, "session.json"), sessionMeta{
		SessionID: "sess1", CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})

	completed := time.Date(2024, 1, 1, 0, 1, 0, 0, time.UTC)
	mustWriteJSON(t, filepath.Join(sessionDir, "messages", "m1.json"), messageMeta{
		MessageID: "m1", Role: "user",
		CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	mustWriteJSON(t, filepath.Join(sessionDir, "messages", "m2.json"), messageMeta{
		MessageID: "m2", Role: "assistant",
		CreatedAt:    time.Date(2024, 1, 1, 0, 0, 30, 0, time.UTC),
		CompletedAt:  &completed,
		InputTokens:  10,
		OutputTokens: 5,
	})

	mustWriteJSON(t, filepath.Join(sessionDir, "parts", "m1", "p1.json"), partFile{
		PartID: "p1", Type: "text", StartedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), Text: "please fix the bug",
	})
	mustWriteJSON(t, filepath.Join(sessionDir, "parts", "m2", "p1.json"), partFile{
		PartID: "p1", Type: "text", StartedAt: time.Date(2024, 1, 1, 0, 0, 30, 0, time.UTC), Text: "looking into it",
	})
	mustWriteJSON(t, filepath.Join(sessionDir, "parts", "m2", "p2.json"), partFile{
		PartID: "tc1", Type: "tool_call", StartedAt: time.Date(2024, 1, 1, 0, 0, 31, 0, time.UTC),
		ToolName: "read_file", ToolArgs: `{"file_path":"a.go"}`,
	})
	mustWriteJSON(t, filepath.Join(sessionDir, "parts", "m2", "p3.json"), partFile{
		PartID: "p3", Type: "tool_result", StartedAt: time.Date(2024, 1, 1, 0, 0, 32, 0, time.UTC),
		ToolUseID: "tc1", Text: "package main",
	})

	return sessionDir
}

func TestAdapter_Discover_FindsSessionDirectories(t *testing.T) {
	root := t.TempDir()
	buildSession(t, root)
	_ = os.MkdirAll(filepath.Join(root, "not-a-session"), 0o755)

	a := New(root)
	candidates, err := a.Discover(nil)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("expected 1 session candidate, got %d: %v", len(candidates), candidates)
	}
	if candidates[0].Kind != types.SourceKindSplitTranscript {
		t.Errorf("unexpected kind: %v", candidates[0].Kind)
	}
}

func TestAdapter_Ingest_CompletionGating(t *testing.T) {
	root := t.TempDir()
	sessionDir := buildSession(t, root)

	// Make a third, incomplete assistant message that should be skipped.
	mustWriteJSON(t, filepath.Join(sessionDir, "messages", "m3.json"), messageMeta{
		MessageID: "m3", Role: "assistant",
		CreatedAt: time.Date(2024, 1, 1, 0, 1, 0, 0, time.UTC),
	})
	mustWriteJSON(t, filepath.Join(sessionDir, "parts", "m3", "p1.json"), partFile{
		PartID: "p1", Type: "text", StartedAt: time.Date(2024, 1, 1, 0, 1, 0, 0, time.UTC), Text: "still thinking",
	})

	a := New(root)
	src := types.Source{SourceID: "s1", DeviceID: "d1", Locator: sessionDir}
	result, err := a.Ingest(nil, src, nil)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	for _, e := range result.Events {
		if e.TextRedacted == "still thinking" {
			t.Fatalf("incomplete assistant message should have been gated out")
		}
	}
}

func TestAdapter_Ingest_TokenAttachedOnceToFirstEventOfMessage(t *testing.T) {
	root := t.TempDir()
	sessionDir := buildSession(t, root)

	a := New(root)
	src := types.Source{SourceID: "s1", DeviceID: "d1", Locator: sessionDir}
	result, err := a.Ingest(nil, src, nil)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	var tokenEvents int
	for _, e := range result.Events {
		if e.MetaJSON == "" {
			continue
		}
		var meta types.EventMeta
		if err := json.Unmarshal([]byte(e.MetaJSON), &meta); err != nil {
			continue
		}
		if meta.Tokens != nil {
			tokenEvents++
		}
	}
	if tokenEvents != 1 {
		t.Errorf("expected exactly 1 event carrying token metadata, got %d", tokenEvents)
	}
}

func TestAdapter_Ingest_ToolCallResultPairing(t *testing.T) {
	root := t.TempDir()
	sessionDir := buildSession(t, root)

	a := New(root)
	src := types.Source{SourceID: "s1", DeviceID: "d1", Locator: sessionDir}
	result, err := a.Ingest(nil, src, nil)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	var call, res *types.Event
	for i := range result.Events {
		e := &result.Events[i]
		if e.EventType == types.EventToolCall && e.ToolName == "read_file" {
			call = e
		}
		if e.EventType == types.EventToolResult && e.TextRedacted == "package main" {
			res = e
		}
	}
	if call == nil || res == nil {
		t.Fatalf("expected both a tool_call and its tool_result, got %+v", result.Events)
	}
	if res.SourceSeq != call.SourceSeq+0.5 {
		t.Errorf("expected result seq = call seq + 0.5, got call=%v result=%v", call.SourceSeq, res.SourceSeq)
	}
}

func TestAdapter_Ingest_SkipsWhenBothMtimesUnchanged(t *testing.T) {
	root := t.TempDir()
	sessionDir := buildSession(t, root)

	a := New(root)
	src := types.Source{SourceID: "s1", DeviceID: "d1", Locator: sessionDir}
	first, err := a.Ingest(nil, src, nil)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	second, err := a.Ingest(nil, src, first.NewCursor)
	if err != nil {
		t.Fatalf("Ingest second tick: %v", err)
	}
	if len(second.Events) != 0 {
		t.Errorf("expected no events on an unchanged tick, got %d", len(second.Events))
	}
}

func TestAdapter_Ingest_DiffConvertsToEditEvent(t *testing.T) {
	root := t.TempDir()
	sessionDir := buildSession(t, root)
	mustWriteJSON(t, filepath.Join(sessionDir, "diff.json"), []diffEntry{
		{File: "b.go", Before: "old\n", After: "new\n", Additions: 1, Deletions: 1},
	})

	a := New(root)
	src := types.Source{SourceID: "s1", DeviceID: "d1", Locator: sessionDir}
	result, err := a.Ingest(nil, src, nil)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	var found bool
	for _, e := range result.Events {
		if e.EventType == types.EventToolCall && e.ToolName == "edit" {
			found = true
			var args types.EditToolArgs
			if err := json.Unmarshal([]byte(e.ToolArgsJSON), &args); err != nil {
				t.Fatalf("unmarshal edit args: %v", err)
			}
			if args.FilePath != "b.go" || args.OldString != "old\n" || args.NewString != "new\n" {
				t.Errorf("unexpected edit args: %+v", args)
			}
		}
	}
	if !found {
		t.Fatalf("expected a synthesized edit tool_call event from the diff file")
	}
}

func TestBackfillStats(t *testing.T) {
	additions, deletions := backfillStats("line1\nline2\n", "line1\nline2changed\nline3\n")
	if additions == 0 {
		t.Errorf("expected at least one addition, got %d", additions)
	}
	if deletions == 0 {
		t.Errorf("expected at least one deletion, got %d", deletions)
	}
}
