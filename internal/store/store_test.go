package store

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/boshu2/recall/internal/types"
)

// openTestStore opens a fresh in-memory database with the full migration
// chain applied, the same way a real caller would via Open.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func mustInsert(t *testing.T, st *Store, events []types.Event) {
	t.Helper()
	if _, err := st.InsertBatch(context.Background(), events, nil); err != nil {
		t.Fatalf("InsertBatch: %v", err)
	}
}

func baseEvent(id string, ts time.Time, eventType types.EventType) types.Event {
	return types.Event{
		EventID:    id,
		SourceID:   "src1",
		SourceSeq:  1,
		DeviceID:   "dev1",
		ProjectID:  "proj1",
		SessionID:  "sess1",
		EventTS:    ts,
		IngestTS:   ts,
		SourceKind: types.SourceKindJSONLTranscript,
		EventType:  eventType,
	}
}

func TestInsertBatch_IdempotentOnDuplicateEventID(t *testing.T) {
	st := openTestStore(t)
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	e := baseEvent("e1", ts, types.EventUserMessage)
	e.TextRedacted = "hello world"

	report, err := st.InsertBatch(context.Background(), []types.Event{e}, nil)
	if err != nil {
		t.Fatalf("InsertBatch: %v", err)
	}
	if report.Inserted != 1 || report.Ignored != 0 {
		t.Fatalf("first insert: %+v", report)
	}

	report, err = st.InsertBatch(context.Background(), []types.Event{e}, nil)
	if err != nil {
		t.Fatalf("InsertBatch (re-ingest): %v", err)
	}
	if report.Inserted != 0 || report.Ignored != 1 {
		t.Fatalf("re-ingesting the same event_id should be a no-op, got %+v", report)
	}

	page, _, err := st.Timeline(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("Timeline: %v", err)
	}
	if page.Total != 1 {
		t.Fatalf("expected exactly one row to survive duplicate ingestion, got total=%d", page.Total)
	}
}

func TestSearch_MatchesTextAndOrdersByRelevance(t *testing.T) {
	st := openTestStore(t)
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	e1 := baseEvent("e1", ts, types.EventUserMessage)
	e1.TextRedacted = "please refactor the authentication module"
	e2 := baseEvent("e2", ts.Add(time.Minute), types.EventAssistantMessage)
	e2.TextRedacted = "the weather today is sunny"
	e3 := baseEvent("e3", ts.Add(2*time.Minute), types.EventUserMessage)
	e3.TextRedacted = "authentication authentication authentication module"

	mustInsert(t, st, []types.Event{e1, e2, e3})

	page, err := st.Search(context.Background(), "authentication", Filter{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if page.Total != 2 {
		t.Fatalf("expected 2 matches, got %d", page.Total)
	}
	if len(page.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(page.Items))
	}
	// e3 repeats the term and should rank above e1 under BM25.
	if page.Items[0].Event.EventID != "e3" {
		t.Errorf("expected the denser match to rank first, got %s", page.Items[0].Event.EventID)
	}
}

func TestSearch_PipeQueryDoesNotProduceFTSSyntaxError(t *testing.T) {
	st := openTestStore(t)
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	e1 := baseEvent("e1", ts, types.EventUserMessage)
	e1.TextRedacted = "found a bug in the parser"
	e2 := baseEvent("e2", ts.Add(time.Minute), types.EventUserMessage)
	e2.TextRedacted = "added a new feature flag"
	e3 := baseEvent("e3", ts.Add(2*time.Minute), types.EventUserMessage)
	e3.TextRedacted = "completely unrelated text"

	mustInsert(t, st, []types.Event{e1, e2, e3})

	page, err := st.Search(context.Background(), "bug|feature", Filter{})
	if err != nil {
		t.Fatalf("Search with a pipe query should not error, got: %v", err)
	}
	if page.Total != 2 {
		t.Fatalf("expected 2 matches for bug|feature, got %d", page.Total)
	}
}

func TestSearch_LiteralOrWordDoesNotProduceFTSSyntaxError(t *testing.T) {
	st := openTestStore(t)
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	e1 := baseEvent("e1", ts, types.EventUserMessage)
	e1.TextRedacted = "cats are great"
	e2 := baseEvent("e2", ts.Add(time.Minute), types.EventUserMessage)
	e2.TextRedacted = "dogs are great too"

	mustInsert(t, st, []types.Event{e1, e2})

	page, err := st.Search(context.Background(), "cats OR dogs", Filter{})
	if err != nil {
		t.Fatalf("Search with a literal OR query should not error, got: %v", err)
	}
	if page.Total != 2 {
		t.Fatalf("expected both rows to match cats OR dogs, got %d", page.Total)
	}
}

func TestNormalizeFTSQuery(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain terms join with OR", "foo bar", "foo OR bar"},
		{"pipe expands to a single OR", "foo|bar", "foo OR bar"},
		{"literal OR is not duplicated", "foo OR bar", "foo OR bar"},
		{"parenthesized group flattens then joins", "(a|b|c)", "a OR b OR c"},
		{"mixed explicit and implicit operators", "a b OR c", "a OR b OR c"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := normalizeFTSQuery(tc.in)
			if got != tc.want {
				t.Errorf("normalizeFTSQuery(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestTimeline_OrdersAscendingAndSummarizesCommits(t *testing.T) {
	st := openTestStore(t)
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	e1 := baseEvent("e1", ts.Add(2*time.Minute), types.EventUserMessage)
	e2 := baseEvent("e2", ts, types.EventAssistantMessage)
	commit := baseEvent("e3", ts.Add(time.Minute), types.EventGitCommit)
	meta, _ := json.Marshal(types.EventMeta{CommitSHA: "abc123", Insertions: 5, Deletions: 2})
	commit.MetaJSON = string(meta)

	mustInsert(t, st, []types.Event{e1, e2, commit})

	page, summary, err := st.Timeline(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("Timeline: %v", err)
	}
	if len(page.Items) != 3 {
		t.Fatalf("expected 3 events, got %d", len(page.Items))
	}
	if page.Items[0].EventID != "e2" || page.Items[1].EventID != "e3" || page.Items[2].EventID != "e1" {
		t.Fatalf("expected ascending event_ts order, got %v", []string{page.Items[0].EventID, page.Items[1].EventID, page.Items[2].EventID})
	}
	if summary.CommitCount != 1 {
		t.Errorf("expected CommitCount=1, got %d", summary.CommitCount)
	}
	if summary.Insertions != 5 || summary.Deletions != 2 {
		t.Errorf("expected Insertions=5 Deletions=2, got %+v", summary)
	}
	if summary.CountsByType["user_message"] != 1 || summary.CountsByType["assistant_message"] != 1 {
		t.Errorf("unexpected per-type counts: %+v", summary.CountsByType)
	}
}

func TestTimeline_FiltersByTimeWindow(t *testing.T) {
	st := openTestStore(t)
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	early := baseEvent("e1", ts, types.EventUserMessage)
	middle := baseEvent("e2", ts.Add(time.Hour), types.EventUserMessage)
	late := baseEvent("e3", ts.Add(2*time.Hour), types.EventUserMessage)
	mustInsert(t, st, []types.Event{early, middle, late})

	page, _, err := st.Timeline(context.Background(), Filter{
		Since: ts.Add(30 * time.Minute).Format(time.RFC3339),
		Until: ts.Add(90 * time.Minute).Format(time.RFC3339),
	})
	if err != nil {
		t.Fatalf("Timeline: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].EventID != "e2" {
		t.Fatalf("expected only the middle event in the window, got %+v", page.Items)
	}
}

func TestGetEdits_ParsesArgsAndFiltersByFilePath(t *testing.T) {
	st := openTestStore(t)
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	e1 := baseEvent("e1", ts, types.EventToolCall)
	e1.ToolName = "edit"
	args1, _ := json.Marshal(map[string]any{
		"file_path": "main.go",
		"oldString": "",
		"newString": "package main\n",
	})
	e1.ToolArgsJSON = string(args1)

	e2 := baseEvent("e2", ts.Add(time.Minute), types.EventToolCall)
	e2.ToolName = "str_replace"
	args2, _ := json.Marshal(map[string]any{
		"file_path": "other.go",
		"oldString": "a",
		"newString": "b",
	})
	e2.ToolArgsJSON = string(args2)

	mustInsert(t, st, []types.Event{e1, e2})

	edits, err := st.GetEdits(context.Background(), Filter{}, "main.go", 100)
	if err != nil {
		t.Fatalf("GetEdits: %v", err)
	}
	if len(edits) != 1 {
		t.Fatalf("expected 1 edit for main.go, got %d", len(edits))
	}
	if edits[0].FilePath != "main.go" || edits[0].NewString != "package main\n" {
		t.Errorf("unexpected edit: %+v", edits[0])
	}

	all, err := st.GetEdits(context.Background(), Filter{}, "", 100)
	if err != nil {
		t.Fatalf("GetEdits (unfiltered): %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected both edits with no file_path filter, got %d", len(all))
	}
}

func TestFindReadResult_SkipsTruncatedSnapshots(t *testing.T) {
	st := openTestStore(t)
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	complete := baseEvent("e1", ts, types.EventToolResult)
	complete.FilePaths = []string{"big.go"}
	complete.TextRedacted = "package main\n\n" + strings.Repeat("// padding line\n", 100)

	truncated := baseEvent("e2", ts.Add(time.Minute), types.EventToolResult)
	truncated.FilePaths = []string{"big.go"}
	truncated.TextRedacted = strings.Repeat("x", 2000) // no terminator on the last byte

	mustInsert(t, st, []types.Event{complete, truncated})

	ev, ok, err := st.FindReadResult(context.Background(), "big.go", "")
	if err != nil {
		t.Fatalf("FindReadResult: %v", err)
	}
	if !ok {
		t.Fatal("expected a substantially-complete snapshot to be found")
	}
	if ev.EventID != "e1" {
		t.Errorf("expected the complete snapshot e1, got %s (the truncated e2 is more recent but not complete)", ev.EventID)
	}
}

func TestFindReadResult_NoSnapshotReturnsNotOK(t *testing.T) {
	st := openTestStore(t)
	_, ok, err := st.FindReadResult(context.Background(), "missing.go", "")
	if err != nil {
		t.Fatalf("FindReadResult: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false when no snapshot exists")
	}
}

func TestGetTokenStats_DedupesByMessageIDAcrossSourceSplit(t *testing.T) {
	st := openTestStore(t)
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	meta, _ := json.Marshal(types.EventMeta{
		ToolCallID: "msg-1",
		Model:      "claude",
		Tokens:     &types.TokenUsage{Input: 10, Output: 20},
	})

	e1 := baseEvent("e1", ts, types.EventAssistantMessage)
	e1.MetaJSON = string(meta)
	// Simulate a split-file transcript re-reporting the same message's
	// tokens under a second event row; GetTokenStats must not double-count.
	e2 := baseEvent("e2", ts.Add(time.Second), types.EventAssistantMessage)
	e2.MetaJSON = string(meta)

	other, _ := json.Marshal(types.EventMeta{
		ToolCallID: "msg-2",
		Model:      "gpt",
		Tokens:     &types.TokenUsage{Input: 5, Output: 7},
	})
	e3 := baseEvent("e3", ts.Add(2*time.Second), types.EventAssistantMessage)
	e3.MetaJSON = string(other)

	mustInsert(t, st, []types.Event{e1, e2, e3})

	stats, err := st.GetTokenStats(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("GetTokenStats: %v", err)
	}
	// msg-1 is reported by both e1 and e2 (simulating a split-file
	// transcript); it must be counted once. msg-2 (e3) is distinct and
	// adds on top.
	if stats.TotalInput != 15 || stats.TotalOutput != 27 {
		t.Fatalf("expected the duplicate message to be counted once (10+5 input, 20+7 output), got %+v", stats)
	}
	if stats.ByModel["claude"].Input != 10 || stats.ByModel["claude"].Output != 20 {
		t.Errorf("unexpected per-model rollup: %+v", stats.ByModel["claude"])
	}
	if stats.ByModel["gpt"].Input != 5 || stats.ByModel["gpt"].Output != 7 {
		t.Errorf("unexpected per-model rollup: %+v", stats.ByModel["gpt"])
	}
}
