package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/boshu2/recall/internal/redact"
	"github.com/boshu2/recall/internal/store"
	"github.com/boshu2/recall/internal/types"
	"github.com/boshu2/recall/internal/worker"
)

// Store is the subset of *store.Store the orchestrator needs, narrowed so
// this package can be tested against a fake.
type Store interface {
	ListSources(ctx context.Context, status types.SourceStatus) ([]types.Source, error)
	GetCursor(ctx context.Context, sourceID string) (*types.Cursor, error)
	InsertBatch(ctx context.Context, events []types.Event, cursor *types.Cursor) (store.IngestReport, error)
	UpdateSourceStatus(ctx context.Context, sourceID string, status types.SourceStatus, errMsg string) error
}

// Orchestrator drives the adapters registered for each source_kind,
// applying redaction and committing each tick atomically (spec.md §4.5).
type Orchestrator struct {
	store    Store
	adapters map[types.SourceKind]Adapter
	pool     *worker.Pool[types.Source, sourceOutcome]
}

// New builds an Orchestrator. concurrency <= 0 uses runtime.NumCPU(), per
// internal/worker's own default.
func New(st Store, adapters map[types.SourceKind]Adapter, concurrency int) *Orchestrator {
	return &Orchestrator{
		store:    st,
		adapters: adapters,
		pool:     worker.NewPool[types.Source, sourceOutcome](concurrency),
	}
}

type sourceOutcome struct {
	sourceID    string
	parseErrors int
}

// ErrVanished signals a TransientIo condition (spec.md §7): the adapter
// could not find its backing file/repo this tick. Adapters wrap this with
// fmt.Errorf("...: %w", ErrVanished) when their source input disappears.
var ErrVanished = errors.New("source input vanished")

// IngestAll iterates active sources and calls IngestSource on each
// concurrently; a failing source never aborts the batch (spec.md §4.5).
func (o *Orchestrator) IngestAll(ctx context.Context) ([]Report, error) {
	sources, err := o.store.ListSources(ctx, types.SourceActive)
	if err != nil {
		return nil, fmt.Errorf("list active sources: %w", err)
	}
	if len(sources) == 0 {
		return nil, nil
	}

	results := o.pool.Process(sources, func(src types.Source) (sourceOutcome, error) {
		report, err := o.IngestSource(ctx, src)
		return sourceOutcome{sourceID: src.SourceID, parseErrors: report.ParseErrors}, err
	})

	reports := make([]Report, len(results))
	for i, r := range results {
		if r.Err != nil {
			continue
		}
		reports[i] = Report{ParseErrors: r.Value.parseErrors}
	}
	return reports, nil
}

// IngestSource dispatches on src.Kind to the registered adapter. On success
// it inserts the event batch and upserts the cursor in one transaction and
// marks the source active; on a vanished input it marks the source missing
// without touching the cursor; on any other adapter error it marks the
// source error with the captured message. The coordinator always continues
// to the next source regardless of which branch this took (spec.md §4.5,
// §7).
func (o *Orchestrator) IngestSource(ctx context.Context, src types.Source) (Report, error) {
	adapter, ok := o.adapters[src.Kind]
	if !ok {
		return Report{}, fmt.Errorf("no adapter registered for source kind %q", src.Kind)
	}

	cursor, err := o.store.GetCursor(ctx, src.SourceID)
	if err != nil {
		return Report{}, fmt.Errorf("get cursor for %s: %w", src.SourceID, err)
	}

	result, err := adapter.Ingest(ctx, src, cursor)
	if err != nil {
		if errors.Is(err, ErrVanished) {
			_ = o.store.UpdateSourceStatus(ctx, src.SourceID, types.SourceMissing, "")
			return Report{}, nil
		}
		_ = o.store.UpdateSourceStatus(ctx, src.SourceID, types.SourceError, err.Error())
		return Report{}, nil
	}

	if src.RedactSecrets {
		redactEvents(result.Events)
	}

	if _, err := o.store.InsertBatch(ctx, result.Events, result.NewCursor); err != nil {
		_ = o.store.UpdateSourceStatus(ctx, src.SourceID, types.SourceError, err.Error())
		return Report{}, nil
	}

	_ = o.store.UpdateSourceStatus(ctx, src.SourceID, types.SourceActive, "")
	return result.Report, nil
}

// redactEvents applies redaction to the roles spec.md §4.2 designates:
// user messages and tool arguments/results are redacted; assistant text is
// passed through unchanged since it is model output, not captured user
// data. Tool arguments live in ToolArgsJSON rather than TextRedacted, so
// tool_call events additionally run redact.RedactJSON over the parsed
// argument tree.
func redactEvents(events []types.Event) {
	for i := range events {
		e := &events[i]
		switch e.EventType {
		case types.EventAssistantMessage:
			continue
		case types.EventUserMessage, types.EventToolCall, types.EventToolResult:
			var manifest types.RedactionManifest

			r := redact.Redact(e.TextRedacted)
			e.TextRedacted = r.Text
			if r.HadRedactions {
				manifest.Redactions = append(manifest.Redactions, r.Manifest.Redactions...)
			}

			if e.EventType == types.EventToolCall && e.ToolArgsJSON != "" {
				if redacted, argManifest, ok := redactToolArgsJSON(e.ToolArgsJSON); ok {
					e.ToolArgsJSON = redacted
					manifest.Redactions = append(manifest.Redactions, argManifest.Redactions...)
				}
			}

			if len(manifest.Redactions) > 0 {
				e.RedactionJSON = marshalManifest(manifest)
			}
		}
	}
}

// redactToolArgsJSON parses argsJSON, runs redact.RedactJSON over the
// resulting tree, and re-serializes it. ok is false if argsJSON does not
// parse as JSON, in which case the caller leaves it untouched.
func redactToolArgsJSON(argsJSON string) (string, types.RedactionManifest, bool) {
	var parsed any
	if err := json.Unmarshal([]byte(argsJSON), &parsed); err != nil {
		return "", types.RedactionManifest{}, false
	}

	redacted, manifest := redact.RedactJSON(parsed)

	data, err := json.Marshal(redacted)
	if err != nil {
		return "", types.RedactionManifest{}, false
	}
	return string(data), manifest, true
}

func marshalManifest(m types.RedactionManifest) string {
	data, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	return string(data)
}
