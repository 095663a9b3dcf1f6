package splitfile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/boshu2/recall/internal/ingest"
	"github.com/boshu2/recall/internal/types"
)

const (
	otherCap = 50 * 1024
)

// Adapter implements ingest.Adapter for split-file transcripts (spec.md
// §4.4.2): each session is a directory tree rather than a single file.
type Adapter struct {
	root string
}

// New returns an Adapter that discovers session directories under root.
func New(root string) *Adapter {
	return &Adapter{root: root}
}

func (a *Adapter) Discover(ctx context.Context) ([]ingest.SourceCandidate, error) {
	var out []ingest.SourceCandidate
	entries, err := os.ReadDir(a.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		sessionDir := filepath.Join(a.root, e.Name())
		if _, err := os.Stat(layoutFor(sessionDir).sessionFile); err != nil {
			continue
		}
		out = append(out, ingest.SourceCandidate{Kind: types.SourceKindSplitTranscript, Locator: sessionDir})
	}
	return out, nil
}

func (a *Adapter) WorkingDirs(ctx context.Context) ([]string, error) {
	return nil, nil
}

func (a *Adapter) Ingest(ctx context.Context, src types.Source, cursor *types.Cursor) (ingest.Result, error) {
	layout := layoutFor(src.Locator)

	sessionMtime, ok := mtimeOf(layout.sessionFile)
	if !ok {
		return ingest.Result{}, fmt.Errorf("stat %s: %w", layout.sessionFile, ingest.ErrVanished)
	}
	diffMtime, _ := mtimeOf(layout.diffFile)

	newCursor := &types.Cursor{SourceID: src.SourceID, FileMtime: sessionMtime, DiffMtime: diffMtime}

	if cursor != nil && !sessionMtime.After(cursor.FileMtime) && !diffMtime.After(cursor.DiffMtime) {
		newCursor.LastRowID = cursor.LastRowID
		return ingest.Result{NewCursor: newCursor}, nil
	}

	sess, err := readJSON[sessionMeta](layout.sessionFile)
	if err != nil {
		return ingest.Result{}, fmt.Errorf("read session meta: %w", err)
	}

	messages, err := listMessages(layout.messagesDir)
	if err != nil {
		return ingest.Result{}, fmt.Errorf("list messages: %w", err)
	}

	normCtx := ingest.NormContext{
		SourceID:      src.SourceID,
		DeviceID:      src.DeviceID,
		ProjectID:     src.ProjectID,
		SessionID:     sess.SessionID,
		SourceKind:    types.SourceKindSplitTranscript,
		RedactSecrets: src.RedactSecrets,
	}

	var report ingest.Report
	seq := float64(0)
	if cursor != nil {
		seq = float64(cursor.LastRowID)
	}
	pendingCall := map[string]float64{}
	var events []types.Event
	var firstCompletedAt time.Time

	nextSeq := func() float64 { seq++; return seq }

	for _, msg := range messages {
		if msg.Role == "assistant" && msg.CompletedAt == nil {
			continue // completion gating: re-evaluate on a later tick
		}
		if msg.CompletedAt != nil && firstCompletedAt.IsZero() {
			firstCompletedAt = *msg.CompletedAt
		}

		parts, err := listParts(layout.partsRoot, msg.MessageID)
		if err != nil {
			report.ParseErrors++
			continue
		}

		tokenAttached := false
		attachTokens := func() *types.EventMeta {
			if tokenAttached || (msg.InputTokens == 0 && msg.OutputTokens == 0) {
				return nil
			}
			tokenAttached = true
			return &types.EventMeta{
				Model: msg.Model,
				Tokens: &types.TokenUsage{
					Input:      msg.InputTokens,
					Output:     msg.OutputTokens,
					CacheRead:  msg.CacheReadTok,
					CacheWrite: msg.CacheWriteTok,
					Model:      msg.Model,
				},
			}
		}

		eventType := types.EventUserMessage
		if msg.Role == "assistant" {
			eventType = types.EventAssistantMessage
		}

		for _, part := range parts {
			switch part.Type {
			case "text":
				if strings.TrimSpace(part.Text) == "" {
					continue
				}
				s := nextSeq()
				meta := attachTokens()
				ev := types.Event{
					SourceID:     normCtx.SourceID,
					SourceSeq:    s,
					DeviceID:     normCtx.DeviceID,
					ProjectID:    normCtx.ProjectID,
					SessionID:    normCtx.SessionID,
					EventTS:      part.StartedAt,
					IngestTS:     time.Now().UTC(),
					SourceKind:   normCtx.SourceKind,
					EventType:    eventType,
					TextRedacted: part.Text,
				}
				if meta != nil {
					if data, err := json.Marshal(meta); err == nil {
						ev.MetaJSON = string(data)
					}
				}
				ev.EventID = ingest.EventID(normCtx.SourceID, s, part.Text)
				events = append(events, ev)

			case "tool_call":
				s := nextSeq()
				pendingCall[part.PartID] = s
				meta := types.EventMeta{ToolCallID: part.PartID}
				if m := attachTokens(); m != nil {
					meta.Model, meta.Tokens = m.Model, m.Tokens
				}
				metaJSON, _ := json.Marshal(meta)
				ev := types.Event{
					SourceID:     normCtx.SourceID,
					SourceSeq:    s,
					DeviceID:     normCtx.DeviceID,
					ProjectID:    normCtx.ProjectID,
					SessionID:    normCtx.SessionID,
					EventTS:      part.StartedAt,
					IngestTS:     time.Now().UTC(),
					SourceKind:   normCtx.SourceKind,
					EventType:    types.EventToolCall,
					ToolName:     part.ToolName,
					ToolArgsJSON: part.ToolArgs,
					MetaJSON:     string(metaJSON),
				}
				ev.EventID = ingest.EventID(normCtx.SourceID, s, part.ToolArgs)
				events = append(events, ev)

			case "tool_result":
				callSeq, paired := pendingCall[part.ToolUseID]
				s := nextSeq()
				if paired {
					s = callSeq + 0.5
					delete(pendingCall, part.ToolUseID)
				}
				text := part.Text
				if len(text) > otherCap {
					text = text[:otherCap]
				}
				ev := types.Event{
					SourceID:     normCtx.SourceID,
					SourceSeq:    s,
					DeviceID:     normCtx.DeviceID,
					ProjectID:    normCtx.ProjectID,
					SessionID:    normCtx.SessionID,
					EventTS:      part.StartedAt,
					IngestTS:     time.Now().UTC(),
					SourceKind:   normCtx.SourceKind,
					EventType:    types.EventToolResult,
					TextRedacted: text,
				}
				ev.EventID = ingest.EventID(normCtx.SourceID, s, text)
				events = append(events, ev)
			}
		}
	}

	diffEvents, err := a.ingestDiffs(normCtx, layout, firstCompletedAt, nextSeq)
	if err != nil {
		report.ParseErrors++
	} else {
		events = append(events, diffEvents...)
	}

	newCursor.LastRowID = int64(seq)
	return ingest.Result{Events: events, NewCursor: newCursor, Report: report}, nil
}

func (a *Adapter) ingestDiffs(normCtx ingest.NormContext, layout sessionLayout, ts time.Time, nextSeq func() float64) ([]types.Event, error) {
	data, err := os.ReadFile(layout.diffFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var entries []diffEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	var out []types.Event
	for _, d := range entries {
		additions, deletions := d.Additions, d.Deletions
		if additions == 0 && deletions == 0 {
			additions, deletions = backfillStats(d.Before, d.After)
		}

		args := types.EditToolArgs{FilePath: d.File, OldString: d.Before, NewString: d.After}
		argsJSON, _ := json.Marshal(args)
		meta := types.EventMeta{Insertions: additions, Deletions: deletions}
		metaJSON, _ := json.Marshal(meta)

		s := nextSeq()
		ev := types.Event{
			SourceID:     normCtx.SourceID,
			SourceSeq:    s,
			DeviceID:     normCtx.DeviceID,
			ProjectID:    normCtx.ProjectID,
			SessionID:    normCtx.SessionID,
			EventTS:      ts,
			IngestTS:     time.Now().UTC(),
			SourceKind:   normCtx.SourceKind,
			EventType:    types.EventToolCall,
			ToolName:     "edit",
			ToolArgsJSON: string(argsJSON),
			FilePaths:    []string{d.File},
			MetaJSON:     string(metaJSON),
		}
		ev.EventID = ingest.EventID(normCtx.SourceID, s, string(argsJSON))
		out = append(out, ev)
	}
	return out, nil
}

// backfillStats estimates line additions/deletions when a diff entry omits
// them, using a line-level diff (spec.md §4.4.2 "Diffs").
func backfillStats(before, after string) (additions, deletions int) {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lines)
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			additions += strings.Count(d.Text, "\n")
		case diffmatchpatch.DiffDelete:
			deletions += strings.Count(d.Text, "\n")
		}
	}
	return additions, deletions
}

var _ ingest.Adapter = (*Adapter)(nil)
