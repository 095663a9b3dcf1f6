// Package plaintext implements spec.md §4.4.3: transcripts recorded as
// plain-text files whose structure is marked by literal section headers
// rather than JSON. The whole file's mtime is the cursor granularity; any
// change re-ingests the entire file, relying on event_id dedup at insert
// time to keep re-ingestion idempotent.
package plaintext

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/boshu2/recall/internal/ingest"
	"github.com/boshu2/recall/internal/types"
)

var headerPrefixes = map[string]types.EventType{
	"### USER TURN":      types.EventUserMessage,
	"### ASSISTANT TURN": types.EventAssistantMessage,
	"### THINKING":       types.EventAssistantMessage,
	"### TOOL CALL":      types.EventToolCall,
	"### TOOL RESULT":    types.EventToolResult,
}

// Adapter implements ingest.Adapter for header-delimited plain-text
// transcript files.
type Adapter struct {
	root string
}

// New returns an Adapter that discovers transcript files under root.
func New(root string) *Adapter {
	return &Adapter{root: root}
}

func (a *Adapter) Discover(ctx context.Context) ([]ingest.SourceCandidate, error) {
	var out []ingest.SourceCandidate
	err := filepath.WalkDir(a.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() || !strings.HasSuffix(path, ".txt") {
			return nil
		}
		out = append(out, ingest.SourceCandidate{Kind: types.SourceKindPlainTranscript, Locator: path})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (a *Adapter) WorkingDirs(ctx context.Context) ([]string, error) {
	return nil, nil
}

func (a *Adapter) Ingest(ctx context.Context, src types.Source, cursor *types.Cursor) (ingest.Result, error) {
	info, err := os.Stat(src.Locator)
	if err != nil {
		return ingest.Result{}, fmt.Errorf("stat %s: %w", src.Locator, ingest.ErrVanished)
	}
	mtime := info.ModTime()

	newCursor := &types.Cursor{SourceID: src.SourceID, FileMtime: mtime}
	if cursor != nil && !mtime.After(cursor.FileMtime) {
		newCursor.LastRowID = cursor.LastRowID
		return ingest.Result{NewCursor: newCursor}, nil
	}

	blocks, err := tokenize(src.Locator)
	if err != nil {
		return ingest.Result{}, fmt.Errorf("tokenize %s: %w", src.Locator, err)
	}

	normCtx := ingest.NormContext{
		SourceID:      src.SourceID,
		DeviceID:      src.DeviceID,
		ProjectID:     src.ProjectID,
		SessionID:     strings.TrimSuffix(filepath.Base(src.Locator), filepath.Ext(src.Locator)),
		SourceKind:    types.SourceKindPlainTranscript,
		RedactSecrets: src.RedactSecrets,
	}
	seq := float64(0)

	var events []types.Event
	for _, b := range blocks {
		if strings.TrimSpace(b.text) == "" {
			continue
		}
		seq++
		ev := types.Event{
			SourceID:     normCtx.SourceID,
			SourceSeq:    seq,
			DeviceID:     normCtx.DeviceID,
			ProjectID:    normCtx.ProjectID,
			SessionID:    normCtx.SessionID,
			EventTS:      mtime,
			IngestTS:     time.Now().UTC(),
			SourceKind:   normCtx.SourceKind,
			EventType:    b.eventType,
			TextRedacted: b.text,
		}
		ev.EventID = ingest.EventID(normCtx.SourceID, seq, b.text)
		events = append(events, ev)
	}

	newCursor.LastRowID = int64(seq)
	return ingest.Result{Events: events, NewCursor: newCursor}, nil
}

type block struct {
	eventType types.EventType
	text      string
}

// tokenize splits a transcript file by its literal section headers,
// returning one block per section with the header line stripped.
func tokenize(path string) ([]block, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var blocks []block
	var cur *block
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if eventType, ok := matchHeader(line); ok {
			if cur != nil {
				blocks = append(blocks, *cur)
			}
			cur = &block{eventType: eventType}
			continue
		}
		if cur == nil {
			continue
		}
		if cur.text != "" {
			cur.text += "\n"
		}
		cur.text += line
	}
	if cur != nil {
		blocks = append(blocks, *cur)
	}
	return blocks, scanner.Err()
}

func matchHeader(line string) (types.EventType, bool) {
	trimmed := strings.TrimSpace(line)
	for prefix, eventType := range headerPrefixes {
		if strings.HasPrefix(trimmed, prefix) {
			return eventType, true
		}
	}
	return "", false
}

var _ ingest.Adapter = (*Adapter)(nil)
