package reconstruct

import (
	"context"
	"errors"
	"testing"

	"github.com/boshu2/recall/internal/store"
	"github.com/boshu2/recall/internal/types"
)

type fakeStore struct {
	snapshot    types.Event
	hasSnapshot bool
	edits       []store.Edit
}

func (f *fakeStore) FindReadResult(ctx context.Context, filePath, before string) (types.Event, bool, error) {
	return f.snapshot, f.hasSnapshot, nil
}

func (f *fakeStore) GetEdits(ctx context.Context, filter store.Filter, filePath string, limit int) ([]store.Edit, error) {
	return f.edits, nil
}

func TestReconstruct_PrefersSnapshot(t *testing.T) {
	fs := &fakeStore{hasSnapshot: true, snapshot: types.Event{TextRedacted: "package main\n"}}
	bytes, report, err := Reconstruct(context.Background(), fs, "a.go", "2024-01-01T00:00:00Z", "", Options{})
	if err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}
	if string(bytes) != "package main\n" {
		t.Errorf("unexpected content: %q", bytes)
	}
	if report.Applied != 0 || report.Failed != 0 {
		t.Errorf("expected a snapshot hit to report no replay activity, got %+v", report)
	}
}

func TestReconstruct_ReplaysEditsInOrder(t *testing.T) {
	fs := &fakeStore{
		edits: []store.Edit{
			{OldString: "", NewString: "package main\n\nfunc main() {}\n"},
			{OldString: "func main() {}", NewString: "func main() { println(1) }"},
		},
	}
	bytes, report, err := Reconstruct(context.Background(), fs, "a.go", "2024-01-01T00:00:00Z", "", Options{})
	if err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}
	want := "package main\n\nfunc main() { println(1) }\n"
	if string(bytes) != want {
		t.Errorf("unexpected content: %q, want %q", bytes, want)
	}
	if report.Applied != 2 || report.Failed != 0 {
		t.Errorf("unexpected report: %+v", report)
	}
}

func TestReconstruct_FailedEditIsCountedNotThrown(t *testing.T) {
	fs := &fakeStore{
		edits: []store.Edit{
			{OldString: "", NewString: "hello\n"},
			{OldString: "not present anywhere", NewString: "x"},
		},
	}
	bytes, report, err := Reconstruct(context.Background(), fs, "a.go", "2024-01-01T00:00:00Z", "", Options{})
	if err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}
	if string(bytes) != "hello\n" {
		t.Errorf("expected content to remain the seed when an edit fails to apply, got %q", bytes)
	}
	if report.Applied != 1 || report.Failed != 1 {
		t.Errorf("unexpected report: %+v", report)
	}
}

// TestReconstruct_CreateEditThenAmendments mirrors spec.md §8 scenario 4
// verbatim: a from-scratch file (old_string="") followed by edits that
// replay cleanly.
func TestReconstruct_CreateEditThenAmendments(t *testing.T) {
	fs := &fakeStore{
		edits: []store.Edit{
			{OldString: "", NewString: "a\nb\n"},
			{OldString: "a\nb\n", NewString: "a\nB\nc\n"},
			{OldString: "c\n", NewString: "C\n"},
		},
	}
	bytes, report, err := Reconstruct(context.Background(), fs, "foo.txt", "2024-01-01T00:00:00Z", "", Options{})
	if err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}
	if string(bytes) != "a\nB\nC\n" {
		t.Errorf("unexpected content: %q, want %q", bytes, "a\nB\nC\n")
	}
	if report.Applied != 3 || report.Failed != 0 {
		t.Errorf("unexpected report: %+v, want applied=3 failed=0", report)
	}
}

// TestReconstruct_CreateEditThenAmendmentsWithOneMiss mirrors spec.md §8
// scenario 5: the same sequence as scenario 4 with an unmatchable edit
// inserted between edits 2 and 3. The output is unchanged and the miss is
// merely counted as failed.
func TestReconstruct_CreateEditThenAmendmentsWithOneMiss(t *testing.T) {
	fs := &fakeStore{
		edits: []store.Edit{
			{OldString: "", NewString: "a\nb\n"},
			{OldString: "a\nb\n", NewString: "a\nB\nc\n"},
			{OldString: "nonexistent", NewString: "x"},
			{OldString: "c\n", NewString: "C\n"},
		},
	}
	bytes, report, err := Reconstruct(context.Background(), fs, "foo.txt", "2024-01-01T00:00:00Z", "", Options{})
	if err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}
	if string(bytes) != "a\nB\nC\n" {
		t.Errorf("unexpected content: %q, want %q", bytes, "a\nB\nC\n")
	}
	if report.Applied != 3 || report.Failed != 1 {
		t.Errorf("unexpected report: %+v, want applied=3 failed=1", report)
	}
}

func TestReconstruct_NoSnapshotNoEditsFails(t *testing.T) {
	fs := &fakeStore{}
	_, _, err := Reconstruct(context.Background(), fs, "a.go", "2024-01-01T00:00:00Z", "", Options{})
	if !errors.Is(err, types.ErrNotReconstructible) {
		t.Fatalf("expected ErrNotReconstructible, got %v", err)
	}
}

func TestReconstruct_FuzzyFallbackAppliesApproximateMatch(t *testing.T) {
	fs := &fakeStore{
		edits: []store.Edit{
			{OldString: "", NewString: "func main() {\n\tfmt.Println(\"hi\")\n}\n"},
			{OldString: "func main() {\n\tfmt.Println(\"hi\")\n}", NewString: "func main() {\n\tfmt.Println(\"hello\")\n}"},
		},
	}
	_, report, err := Reconstruct(context.Background(), fs, "a.go", "2024-01-01T00:00:00Z", "", Options{FuzzyFallback: true})
	if err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}
	if report.Applied != 2 {
		t.Errorf("expected the exact match to apply without needing fuzzy fallback, got %+v", report)
	}
}
