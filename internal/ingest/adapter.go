// Package ingest defines the adapter contract of spec.md §4.4 and the
// orchestrator of §4.5 that drives adapters, applies redaction, and writes
// events and cursors atomically through internal/store.
package ingest

import (
	"context"

	"github.com/boshu2/recall/internal/types"
)

// SourceCandidate is one locator an adapter's Discover found on this
// machine, not yet registered as a types.Source.
type SourceCandidate struct {
	Kind    types.SourceKind
	Locator string
}

// Report summarizes one Ingest call's non-fatal outcomes — malformed lines
// or documents skipped rather than aborting the whole tick (spec.md §7
// ParseSkip).
type Report struct {
	ParseErrors int
}

// Result is the output of one adapter Ingest call.
type Result struct {
	Events    []types.Event
	NewCursor *types.Cursor
	Report    Report
}

// Adapter is implemented once per source_kind (spec.md §4.4). All adapters
// share the normalization context of NormContext and produce events whose
// event_id is a stable hash of (source_id, source_seq, payload_hash), so
// that re-running Ingest with unchanged input yields the same set of
// event_ids.
type Adapter interface {
	// Discover returns locators for this adapter's kind found on this
	// machine (new transcript files, repositories, etc).
	Discover(ctx context.Context) ([]SourceCandidate, error)

	// WorkingDirs returns directories this adapter would want auto-watched
	// for git-repo auto-registration (spec.md §4.4.4); adapters with no
	// notion of a working directory return nil.
	WorkingDirs(ctx context.Context) ([]string, error)

	// Ingest reads new data for src since cursor (nil on first ingest) and
	// returns the normalized event batch, the cursor's new value, and a
	// non-fatal-error report.
	Ingest(ctx context.Context, src types.Source, cursor *types.Cursor) (Result, error)
}

// NormContext is the shared normalization context every adapter stamps onto
// the events it produces (spec.md §4.4).
type NormContext struct {
	SourceID      string
	DeviceID      string
	ProjectID     string
	SessionID     string
	SourceKind    types.SourceKind
	RedactSecrets bool
}
