package jsonl

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/boshu2/recall/internal/ingest"
	"github.com/boshu2/recall/internal/types"
)

const (
	readWriteCap = 100 * 1024
	otherCap     = 50 * 1024
)

var writeToolNames = map[string]bool{
	"write":       true,
	"write_file":  true,
	"create_file": true,
	"Write":       true,
}

// Adapter implements ingest.Adapter for line-delimited JSON transcripts
// (spec.md §4.4.1).
type Adapter struct {
	root string
}

// New returns an Adapter that discovers *.jsonl files under root.
func New(root string) *Adapter {
	return &Adapter{root: root}
}

func (a *Adapter) Discover(ctx context.Context) ([]ingest.SourceCandidate, error) {
	var out []ingest.SourceCandidate
	err := filepath.WalkDir(a.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() || !strings.HasSuffix(path, ".jsonl") {
			return nil
		}
		out = append(out, ingest.SourceCandidate{Kind: types.SourceKindJSONLTranscript, Locator: path})
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
	if _, err := os.Stat(src.Locator); err != nil {
		return ingest.Result{}, fmt.Errorf("stat %s: %w", src.Locator, ingest.ErrVanished)
	}

	tr, err := tailFile(src.Locator, cursor)
	if err != nil {
		return ingest.Result{}, err
	}
	tr.newCursor.SourceID = src.SourceID

	sessionID := src.SessionID
	if sessionID == "" {
		sessionID = sessionIDFromLocator(src.Locator)
	}
	p := &parser{
		ctx: ingest.NormContext{
			SourceID:      src.SourceID,
			DeviceID:      src.DeviceID,
			ProjectID:     src.ProjectID,
			SessionID:     sessionID,
			SourceKind:    types.SourceKindJSONLTranscript,
			RedactSecrets: src.RedactSecrets,
		},
		seq:         0,
		pendingCall: map[string]float64{},
	}
	if cursor != nil {
		p.seq = float64(cursor.LastRowID)
	}

	var report ingest.Report
	for _, line := range tr.lines {
		var e entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			report.ParseErrors++
			continue
		}
		p.processLine(e)
	}

	tr.newCursor.LastRowID = int64(p.seq)
	return ingest.Result{Events: p.events, NewCursor: &tr.newCursor, Report: report}, nil
}

func sessionIDFromLocator(locator string) string {
	base := filepath.Base(locator)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// parser accumulates events across the lines of one Ingest tick, pairing
// tool_call/tool_result occurrences by their shared id.
type parser struct {
	ctx         ingest.NormContext
	seq         float64
	pendingCall map[string]float64 // tool_use id -> call's source_seq
	events      []types.Event
}

func (p *parser) nextSeq() float64 {
	p.seq++
	return p.seq
}

func (p *parser) processLine(e entry) {
	ts := parseTimestamp(e.Timestamp)

	switch e.Role {
	case "user":
		p.processUserLine(e, ts)
	case "assistant":
		p.processAssistantLine(e, ts)
	}
}

func (p *parser) processUserLine(e entry, ts time.Time) {
	if text, ok := e.plainText(); ok {
		p.emitText(types.EventUserMessage, text, ts, true, "")
		return
	}

	blocks, ok := e.blocks()
	if !ok {
		return
	}
	for _, b := range blocks {
		switch b.Type {
		case "text":
			p.emitText(types.EventUserMessage, b.Text, ts, true, "")
		case "tool_result":
			p.emitToolResult(b, ts)
		}
	}
}

func (p *parser) processAssistantLine(e entry, ts time.Time) {
	var attachedTokens bool

	emitMeta := func(meta *types.EventMeta) {
		if !attachedTokens && e.Usage != nil {
			meta.Model = e.Model
			meta.Tokens = &types.TokenUsage{
				Input:      e.Usage.InputTokens,
				Output:     e.Usage.OutputTokens,
				CacheRead:  e.Usage.CacheReadInputTokens,
				CacheWrite: e.Usage.CacheCreationInputTokens,
				Model:      e.Model,
			}
			attachedTokens = true
		}
	}

	if text, ok := e.plainText(); ok {
		for _, inv := range parseXMLInvocations(text) {
			p.emitXMLInvocation(inv, ts, emitMeta)
		}
		p.emitTextWithMeta(types.EventAssistantMessage, text, ts, false, "", emitMeta)
		return
	}

	blocks, ok := e.blocks()
	if !ok {
		return
	}
	for _, b := range blocks {
		switch b.Type {
		case "text":
			for _, inv := range parseXMLInvocations(b.Text) {
				p.emitXMLInvocation(inv, ts, emitMeta)
			}
			p.emitTextWithMeta(types.EventAssistantMessage, b.Text, ts, false, "", emitMeta)
		case "tool_use":
			p.emitToolCall(b, ts, emitMeta)
		}
	}
}

func (p *parser) emitText(eventType types.EventType, text string, ts time.Time, redactCandidate bool, toolName string) {
	p.emitTextWithMeta(eventType, text, ts, redactCandidate, toolName, nil)
}

func (p *parser) emitTextWithMeta(eventType types.EventType, text string, ts time.Time, redactCandidate bool, toolName string, attach func(*types.EventMeta)) {
	if strings.TrimSpace(text) == "" {
		return
	}
	seq := p.nextSeq()
	meta := types.EventMeta{}
	hasMeta := false
	if attach != nil {
		attach(&meta)
		hasMeta = meta.Model != "" || meta.Tokens != nil
	}
	metaJSON := ""
	if hasMeta {
		if data, err := json.Marshal(meta); err == nil {
			metaJSON = string(data)
		}
	}

	ev := types.Event{
		SourceID:     p.ctx.SourceID,
		SourceSeq:    seq,
		DeviceID:     p.ctx.DeviceID,
		ProjectID:    p.ctx.ProjectID,
		SessionID:    p.ctx.SessionID,
		EventTS:      ts,
		IngestTS:     time.Now().UTC(),
		SourceKind:   p.ctx.SourceKind,
		EventType:    eventType,
		TextRedacted: text,
		ToolName:     toolName,
		MetaJSON:     metaJSON,
	}
	ev.EventID = ingest.EventID(p.ctx.SourceID, seq, text)
	p.events = append(p.events, ev)
}

func (p *parser) emitToolCall(b contentBlock, ts time.Time, attach func(*types.EventMeta)) {
	seq := p.nextSeq()
	p.pendingCall[b.ID] = seq

	meta := types.EventMeta{ToolCallID: b.ID}
	if attach != nil {
		attach(&meta)
	}
	argsJSON := string(b.Input)

	ev := types.Event{
		SourceID:     p.ctx.SourceID,
		SourceSeq:    seq,
		DeviceID:     p.ctx.DeviceID,
		ProjectID:    p.ctx.ProjectID,
		SessionID:    p.ctx.SessionID,
		EventTS:      ts,
		IngestTS:     time.Now().UTC(),
		SourceKind:   p.ctx.SourceKind,
		EventType:    types.EventToolCall,
		ToolName:     b.Name,
		ToolArgsJSON: argsJSON,
	}
	if data, err := json.Marshal(meta); err == nil {
		ev.MetaJSON = string(data)
	}
	ev.EventID = ingest.EventID(p.ctx.SourceID, seq, argsJSON)
	p.events = append(p.events, ev)

	if writeToolNames[b.Name] {
		p.emitWriteContentCapture(b, seq, ts)
	}
}

func (p *parser) emitWriteContentCapture(b contentBlock, callSeq float64, ts time.Time) {
	var args map[string]any
	_ = json.Unmarshal(b.Input, &args)
	content, _ := args["content"].(string)
	if content == "" {
		return
	}
	content = truncate(content, readWriteCap)

	seq := callSeq + 0.5
	meta := types.EventMeta{ToolCallID: b.ID, IsWriteContent: true}
	metaJSON, _ := json.Marshal(meta)

	filePath, _ := args["file_path"].(string)
	var filePaths []string
	if filePath != "" {
		filePaths = []string{filePath}
	}

	ev := types.Event{
		SourceID:     p.ctx.SourceID,
		SourceSeq:    seq,
		DeviceID:     p.ctx.DeviceID,
		ProjectID:    p.ctx.ProjectID,
		SessionID:    p.ctx.SessionID,
		EventTS:      ts,
		IngestTS:     time.Now().UTC(),
		SourceKind:   p.ctx.SourceKind,
		EventType:    types.EventToolResult,
		TextRedacted: content,
		ToolName:     b.Name,
		FilePaths:    filePaths,
		MetaJSON:     string(metaJSON),
	}
	ev.EventID = ingest.EventID(p.ctx.SourceID, seq, content)
	p.events = append(p.events, ev)
}

func (p *parser) emitToolResult(b contentBlock, ts time.Time) {
	callSeq, paired := p.pendingCall[b.ToolUseID]
	seq := p.nextSeq()
	if paired {
		seq = callSeq + 0.5
		delete(p.pendingCall, b.ToolUseID)
	}

	text := truncate(b.resultText(), otherCap)
	meta := types.EventMeta{ToolCallID: b.ToolUseID}
	metaJSON, _ := json.Marshal(meta)

	ev := types.Event{
		SourceID:     p.ctx.SourceID,
		SourceSeq:    seq,
		DeviceID:     p.ctx.DeviceID,
		ProjectID:    p.ctx.ProjectID,
		SessionID:    p.ctx.SessionID,
		EventTS:      ts,
		IngestTS:     time.Now().UTC(),
		SourceKind:   p.ctx.SourceKind,
		EventType:    types.EventToolResult,
		TextRedacted: text,
		MetaJSON:     string(metaJSON),
	}
	ev.EventID = ingest.EventID(p.ctx.SourceID, seq, text)
	p.events = append(p.events, ev)
}

func (p *parser) emitXMLInvocation(inv xmlInvocation, ts time.Time, attach func(*types.EventMeta)) {
	callSeq := p.nextSeq()
	argsJSON, _ := json.Marshal(inv.Args)

	meta := types.EventMeta{}
	if attach != nil {
		attach(&meta)
	}
	metaJSON, _ := json.Marshal(meta)

	call := types.Event{
		SourceID:     p.ctx.SourceID,
		SourceSeq:    callSeq,
		DeviceID:     p.ctx.DeviceID,
		ProjectID:    p.ctx.ProjectID,
		SessionID:    p.ctx.SessionID,
		EventTS:      ts,
		IngestTS:     time.Now().UTC(),
		SourceKind:   p.ctx.SourceKind,
		EventType:    types.EventToolCall,
		ToolName:     inv.ToolName,
		ToolArgsJSON: string(argsJSON),
		MetaJSON:     string(metaJSON),
	}
	call.EventID = ingest.EventID(p.ctx.SourceID, callSeq, string(argsJSON))
	p.events = append(p.events, call)

	if inv.Result == "" {
		return
	}
	resultSeq := callSeq + 0.5
	resultText := truncate(inv.Result, otherCap)
	result := types.Event{
		SourceID:     p.ctx.SourceID,
		SourceSeq:    resultSeq,
		DeviceID:     p.ctx.DeviceID,
		ProjectID:    p.ctx.ProjectID,
		SessionID:    p.ctx.SessionID,
		EventTS:      ts,
		IngestTS:     time.Now().UTC(),
		SourceKind:   p.ctx.SourceKind,
		EventType:    types.EventToolResult,
		TextRedacted: resultText,
		ToolName:     inv.ToolName,
	}
	result.EventID = ingest.EventID(p.ctx.SourceID, resultSeq, resultText)
	p.events = append(p.events, result)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Now().UTC()
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC()
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC()
	}
	return time.Now().UTC()
}
