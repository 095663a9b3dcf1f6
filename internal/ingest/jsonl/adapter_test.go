package jsonl

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/boshu2/recall/internal/ingest"
	"github.com/boshu2/recall/internal/types"
)

func TestAdapter_Discover_FindsJSONLFilesRecursively(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeFile(t, filepath.Join(dir, "a.jsonl"), "{}\n")
	writeFile(t, filepath.Join(dir, "sub", "b.jsonl"), "{}\n")
	writeFile(t, filepath.Join(dir, "notes.txt"), "ignore me")

	a := New(dir)
	candidates, err := a.Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	var locators []string
	for _, c := range candidates {
		if c.Kind != types.SourceKindJSONLTranscript {
			t.Errorf("unexpected kind: %v", c.Kind)
		}
		locators = append(locators, c.Locator)
	}
	sort.Strings(locators)
	if len(locators) != 2 {
		t.Fatalf("expected 2 candidates, got %d: %v", len(locators), locators)
	}
}

func TestAdapter_Ingest_VanishedSource(t *testing.T) {
	a := New(t.TempDir())
	src := types.Source{SourceID: "s1", Locator: filepath.Join(t.TempDir(), "missing.jsonl")}
	_, err := a.Ingest(context.Background(), src, nil)
	if err == nil {
		t.Fatalf("expected an error for a missing transcript file")
	}
}

func TestAdapter_Ingest_UserAndAssistantText(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.jsonl")
	writeFile(t, path, `{"role":"user","content":"please fix the bug","timestamp":"2024-01-01T00:00:00Z"}
{"role":"assistant","content":"looking into it","timestamp":"2024-01-01T00:00:01Z"}
`)

	a := New(dir)
	src := types.Source{SourceID: "s1", DeviceID: "d1", Locator: path}
	result, err := a.Ingest(context.Background(), src, nil)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if len(result.Events) != 2 {
		t.Fatalf("expected 2 events, got %d: %+v", len(result.Events), result.Events)
	}
	if result.Events[0].EventType != types.EventUserMessage {
		t.Errorf("expected first event to be a user message, got %v", result.Events[0].EventType)
	}
	if result.Events[1].EventType != types.EventAssistantMessage {
		t.Errorf("expected second event to be an assistant message, got %v", result.Events[1].EventType)
	}
	if result.NewCursor == nil || result.NewCursor.SourceID != "s1" {
		t.Fatalf("expected cursor to carry the source id")
	}
}

func TestAdapter_Ingest_ToolCallPairedWithResult(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.jsonl")
	writeFile(t, path, `{"role":"assistant","content":[{"type":"tool_use","id":"tu1","name":"read_file","input":{"file_path":"a.go"}}],"timestamp":"2024-01-01T00:00:00Z"}
{"role":"user","content":[{"type":"tool_result","tool_use_id":"tu1","content":"package main"}],"timestamp":"2024-01-01T00:00:01Z"}
`)

	a := New(dir)
	src := types.Source{SourceID: "s1", DeviceID: "d1", Locator: path}
	result, err := a.Ingest(context.Background(), src, nil)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if len(result.Events) != 2 {
		t.Fatalf("expected 2 events, got %d: %+v", len(result.Events), result.Events)
	}
	call, res := result.Events[0], result.Events[1]
	if call.EventType != types.EventToolCall || call.ToolName != "read_file" {
		t.Fatalf("unexpected call event: %+v", call)
	}
	if res.EventType != types.EventToolResult {
		t.Fatalf("unexpected result event: %+v", res)
	}
	if res.SourceSeq != call.SourceSeq+0.5 {
		t.Errorf("expected result seq to be call seq + 0.5, got call=%v result=%v", call.SourceSeq, res.SourceSeq)
	}
}

func TestAdapter_Ingest_WriteToolCapturesContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.jsonl")
	writeFile(t, path, `{"role":"assistant","content":[{"type":"tool_use","id":"tu1","name":"write_file","input":{"file_path":"out.go","content":"package main\n"}}],"timestamp":"2024-01-01T00:00:00Z"}
`)

	a := New(dir)
	src := types.Source{SourceID: "s1", DeviceID: "d1", Locator: path}
	result, err := a.Ingest(context.Background(), src, nil)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if len(result.Events) != 2 {
		t.Fatalf("expected a tool_call plus a write-content capture, got %d: %+v", len(result.Events), result.Events)
	}
	capture := result.Events[1]
	if capture.EventType != types.EventToolResult || capture.TextRedacted != "package main\n" {
		t.Fatalf("unexpected capture event: %+v", capture)
	}
	if len(capture.FilePaths) != 1 || capture.FilePaths[0] != "out.go" {
		t.Errorf("unexpected file paths: %v", capture.FilePaths)
	}
}

func TestAdapter_Ingest_XMLInvocationPairing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.jsonl")
	writeFile(t, path, `{"role":"assistant","content":"<function_calls>\n<invoke name=\"read_file\">\n<parameter name=\"path\">a.go</parameter>\n</invoke>\n</function_calls>\n<result>package main\n</result>\n","timestamp":"2024-01-01T00:00:00Z"}
`)

	a := New(dir)
	src := types.Source{SourceID: "s1", DeviceID: "d1", Locator: path}
	result, err := a.Ingest(context.Background(), src, nil)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	var callCount, resultCount, textCount int
	for _, e := range result.Events {
		switch e.EventType {
		case types.EventToolCall:
			callCount++
		case types.EventToolResult:
			resultCount++
		case types.EventAssistantMessage:
			textCount++
		}
	}
	if callCount != 1 || resultCount != 1 {
		t.Fatalf("expected 1 call and 1 result from the embedded XML invocation, got call=%d result=%d", callCount, resultCount)
	}
}

func TestAdapter_Ingest_MalformedLineCountsAsParseError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.jsonl")
	writeFile(t, path, "not json at all\n{\"role\":\"user\",\"content\":\"hi\"}\n")

	a := New(dir)
	src := types.Source{SourceID: "s1", DeviceID: "d1", Locator: path}
	result, err := a.Ingest(context.Background(), src, nil)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if result.Report.ParseErrors != 1 {
		t.Errorf("expected 1 parse error, got %d", result.Report.ParseErrors)
	}
	if len(result.Events) != 1 {
		t.Errorf("expected the valid line to still produce 1 event, got %d", len(result.Events))
	}
}

func TestAdapter_Ingest_ResumesSeqAcrossTicks(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.jsonl")
	writeFile(t, path, `{"role":"user","content":"first"}
`)

	a := New(dir)
	src := types.Source{SourceID: "s1", DeviceID: "d1", Locator: path}
	first, err := a.Ingest(context.Background(), src, nil)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open for append: %v", err)
	}
	if _, err := f.WriteString("{\"role\":\"user\",\"content\":\"second\"}\n"); err != nil {
		t.Fatalf("append: %v", err)
	}
	f.Close()

	second, err := a.Ingest(context.Background(), src, first.NewCursor)
	if err != nil {
		t.Fatalf("Ingest resume: %v", err)
	}
	if len(second.Events) != 1 {
		t.Fatalf("expected 1 new event, got %d", len(second.Events))
	}
	if second.Events[0].SourceSeq <= first.Events[0].SourceSeq {
		t.Errorf("expected sequence numbers to keep increasing across ticks: first=%v second=%v",
			first.Events[0].SourceSeq, second.Events[0].SourceSeq)
	}
}

var _ ingest.Adapter = (*Adapter)(nil)
