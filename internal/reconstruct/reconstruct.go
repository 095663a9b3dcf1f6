// Package reconstruct implements spec.md §4.7: rebuilding a file's contents
// at a point in time from captured reads and edits.
package reconstruct

import (
	"context"
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/boshu2/recall/internal/store"
	"github.com/boshu2/recall/internal/types"
)

// Store is the subset of *store.Store reconstruction needs.
type Store interface {
	FindReadResult(ctx context.Context, filePath, before string) (types.Event, bool, error)
	GetEdits(ctx context.Context, f store.Filter, filePath string, limit int) ([]store.Edit, error)
}

// Report summarizes how faithfully the replay strategy reconstructed a
// file: how many edits applied cleanly vs. how many could not find their
// old_string anchor (spec.md §4.7 step 2).
type Report struct {
	Applied int
	Failed  int
	Total   int
	Bytes   int
}

// Options tunes the reconstruction algorithm.
type Options struct {
	// FuzzyFallback enables an additive best-effort match via
	// diffmatchpatch.MatchMain when an edit's old_string is no longer
	// present verbatim (spec.md §4.7's "best-effort" framing, enriched per
	// the original distillation's looser matching behavior).
	FuzzyFallback bool
}

const editLimit = 100000

// Reconstruct implements the deterministic algorithm of spec.md §4.7:
// prefer a substantially-complete snapshot via FindReadResult, falling back
// to replaying captured edits in order.
func Reconstruct(ctx context.Context, st Store, filePath, atTime, sessionID string, opts Options) ([]byte, Report, error) {
	if ev, ok, err := st.FindReadResult(ctx, filePath, atTime); err != nil {
		return nil, Report{}, fmt.Errorf("find read result: %w", err)
	} else if ok {
		return []byte(ev.TextRedacted), Report{Bytes: len(ev.TextRedacted)}, nil
	}

	filter := store.Filter{Until: atTime, SessionID: sessionID}
	edits, err := st.GetEdits(ctx, filter, filePath, editLimit)
	if err != nil {
		return nil, Report{}, fmt.Errorf("get edits: %w", err)
	}
	if len(edits) == 0 {
		return nil, Report{}, types.ErrNotReconstructible
	}

	var content string
	report := Report{Total: len(edits)}
	for _, e := range edits {
		if e.OldString == "" {
			content = e.NewString
			report.Applied++
			continue
		}
		if idx := strings.Index(content, e.OldString); idx >= 0 {
			content = content[:idx] + e.NewString + content[idx+len(e.OldString):]
			report.Applied++
			continue
		}
		if opts.FuzzyFallback {
			if applied, ok := fuzzyApply(content, e.OldString, e.NewString); ok {
				content = applied
				report.Applied++
				continue
			}
		}
		report.Failed++
	}
	report.Bytes = len(content)
	return []byte(content), report, nil
}

// fuzzyApply attempts an approximate match of oldStr within content using
// diffmatchpatch's fuzzy locator, for when an intervening external write
// has shifted the surrounding text slightly (spec.md §4.7 rationale).
func fuzzyApply(content, oldStr, newStr string) (string, bool) {
	dmp := diffmatchpatch.New()
	loc := dmp.MatchMain(content, oldStr, 0)
	if loc < 0 {
		return "", false
	}
	end := loc + len(oldStr)
	if end > len(content) {
		end = len(content)
	}
	return content[:loc] + newStr + content[end:], true
}
