package plaintext

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/boshu2/recall/internal/types"
)

func writeTranscript(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestTokenize_SplitsByHeader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.txt")
	writeTranscript(t, path, `### USER TURN
please fix the bug

### ASSISTANT TURN
looking into it

### TOOL CALL
read_file a.go

### TOOL RESULT
package main
`)
	blocks, err := tokenize(path)
	if err != nil {
		t.Fatalf("tokenize: %v", err)
	}
	if len(blocks) != 4 {
		t.Fatalf("expected 4 blocks, got %d: %+v", len(blocks), blocks)
	}
	if blocks[0].eventType != types.EventUserMessage {
		t.Errorf("unexpected first block type: %v", blocks[0].eventType)
	}
	if blocks[2].eventType != types.EventToolCall {
		t.Errorf("unexpected third block type: %v", blocks[2].eventType)
	}
}

func TestAdapter_Discover_FindsTxtFiles(t *testing.T) {
	dir := t.TempDir()
	writeTranscript(t, filepath.Join(dir, "proj", "a.txt"), "### USER TURN\nhi\n")
	writeTranscript(t, filepath.Join(dir, "b.md"), "ignore")

	a := New(dir)
	candidates, err := a.Discover(nil)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d: %v", len(candidates), candidates)
	}
}

func TestAdapter_Ingest_EmitsOneEventPerBlock(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.txt")
	writeTranscript(t, path, "### USER TURN\nhello\n\n### ASSISTANT TURN\nhi there\n")

	a := New(dir)
	src := types.Source{SourceID: "s1", DeviceID: "d1", Locator: path}
	result, err := a.Ingest(nil, src, nil)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if len(result.Events) != 2 {
		t.Fatalf("expected 2 events, got %d: %+v", len(result.Events), result.Events)
	}
}

func TestAdapter_Ingest_SkipsWhenMtimeUnchanged(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.txt")
	writeTranscript(t, path, "### USER TURN\nhello\n")

	a := New(dir)
	src := types.Source{SourceID: "s1", DeviceID: "d1", Locator: path}
	first, err := a.Ingest(nil, src, nil)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	second, err := a.Ingest(nil, src, first.NewCursor)
	if err != nil {
		t.Fatalf("Ingest second tick: %v", err)
	}
	if len(second.Events) != 0 {
		t.Errorf("expected no events when mtime is unchanged, got %d", len(second.Events))
	}
}

func TestAdapter_Ingest_VanishedFile(t *testing.T) {
	a := New(t.TempDir())
	src := types.Source{SourceID: "s1", Locator: filepath.Join(t.TempDir(), "missing.txt")}
	if _, err := a.Ingest(nil, src, nil); err == nil {
		t.Fatalf("expected an error for a missing file")
	}
}
