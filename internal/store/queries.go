// Query primitives: search, timeline, edit/file history, reconstruction
// support, and token aggregation, per spec.md §4.3.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/boshu2/recall/internal/types"
)

// parseUTC parses a stored ISO-8601 timestamp, returning the zero time on
// a malformed or empty value rather than erroring — callers treat a zero
// event_ts as "unknown", not a fatal condition.
func parseUTC(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse("2006-01-02T15:04:05.000Z", s)
	if err == nil {
		return t
	}
	t, err = time.Parse(time.RFC3339Nano, s)
	if err == nil {
		return t
	}
	return time.Time{}
}

// Page is a paginated result set: Total is the unpaginated match count so
// callers can paginate without a second round-trip (spec.md §4.3).
type Page[T any] struct {
	Items []T
	Total int
}

// SearchResult pairs an event with its BM25-derived score (higher is
// better, per spec.md §4.3 "BM25 values are negated on output").
type SearchResult struct {
	Event types.Event
	Score float64
}

const eventColumns = `
	event_id, source_id, source_seq, device_id, project_id, session_id,
	event_ts, ingest_ts, source_kind, event_type, text_redacted, tool_name,
	tool_args_json, file_paths_json, meta_json, redaction_manifest_json
`

func scanEvent(row rowScanner) (types.Event, error) {
	var e types.Event
	var projectID, sessionID, textRedacted, toolName, toolArgsJSON, metaJSON, redactionJSON sql.NullString
	var filePathsJSON string
	var eventTS, ingestTS, sourceKind, eventType string

	err := row.Scan(
		&e.EventID, &e.SourceID, &e.SourceSeq, &e.DeviceID, &projectID, &sessionID,
		&eventTS, &ingestTS, &sourceKind, &eventType, &textRedacted, &toolName,
		&toolArgsJSON, &filePathsJSON, &metaJSON, &redactionJSON,
	)
	if err != nil {
		return types.Event{}, err
	}

	e.ProjectID = projectID.String
	e.SessionID = sessionID.String
	e.TextRedacted = textRedacted.String
	e.ToolName = toolName.String
	e.ToolArgsJSON = toolArgsJSON.String
	e.MetaJSON = metaJSON.String
	e.RedactionJSON = redactionJSON.String
	e.SourceKind = types.SourceKind(sourceKind)
	e.EventType = types.EventType(eventType)
	e.EventTS = parseStoredTime(eventTS)
	e.IngestTS = parseStoredTime(ingestTS)

	if filePathsJSON != "" && filePathsJSON != "null" {
		_ = json.Unmarshal([]byte(filePathsJSON), &e.FilePaths)
	}
	return e, nil
}

func parseStoredTime(s string) time.Time {
	return parseUTC(s)
}

// Search runs a full-text query over events_fts, joined back to events and
// filtered, ordered ascending by BM25 (best match first).
func (s *Store) Search(ctx context.Context, rawQuery string, f Filter) (Page[SearchResult], error) {
	ftsQuery := normalizeFTSQuery(rawQuery)
	where, args, err := buildWhere(ctx, s.db, f)
	if err != nil {
		return Page[SearchResult]{}, err
	}

	whereClause := "events_fts MATCH ?"
	queryArgs := []any{ftsQuery}
	if where != "" {
		whereClause += " AND " + where
		queryArgs = append(queryArgs, args...)
	}

	var total int
	countSQL := `SELECT count(*) FROM events JOIN events_fts ON events_fts.rowid = events.id WHERE ` + whereClause
	if err := s.db.QueryRowContext(ctx, countSQL, queryArgs...).Scan(&total); err != nil {
		return Page[SearchResult]{}, err
	}

	limit, offset := pageArgs(f)
	querySQL := `
		SELECT ` + prefixColumns("events", eventColumns) + `, bm25(events_fts) AS rank
		FROM events JOIN events_fts ON events_fts.rowid = events.id
		WHERE ` + whereClause + `
		ORDER BY rank ASC
		LIMIT ? OFFSET ?
	`
	rows, err := s.db.QueryContext(ctx, querySQL, append(append([]any{}, queryArgs...), limit, offset)...)
	if err != nil {
		return Page[SearchResult]{}, err
	}
	defer rows.Close()

	var items []SearchResult
	for rows.Next() {
		var e types.Event
		var projectID, sessionID, textRedacted, toolName, toolArgsJSON, metaJSON, redactionJSON sql.NullString
		var filePathsJSON, eventTS, ingestTS, sourceKind, eventType string
		var rank float64

		err := rows.Scan(
			&e.EventID, &e.SourceID, &e.SourceSeq, &e.DeviceID, &projectID, &sessionID,
			&eventTS, &ingestTS, &sourceKind, &eventType, &textRedacted, &toolName,
			&toolArgsJSON, &filePathsJSON, &metaJSON, &redactionJSON, &rank,
		)
		if err != nil {
			return Page[SearchResult]{}, err
		}
		e.ProjectID = projectID.String
		e.SessionID = sessionID.String
		e.TextRedacted = textRedacted.String
		e.ToolName = toolName.String
		e.ToolArgsJSON = toolArgsJSON.String
		e.MetaJSON = metaJSON.String
		e.RedactionJSON = redactionJSON.String
		e.SourceKind = types.SourceKind(sourceKind)
		e.EventType = types.EventType(eventType)
		e.EventTS = parseUTC(eventTS)
		e.IngestTS = parseUTC(ingestTS)
		if filePathsJSON != "" && filePathsJSON != "null" {
			_ = json.Unmarshal([]byte(filePathsJSON), &e.FilePaths)
		}

		items = append(items, SearchResult{Event: e, Score: -rank})
	}
	if err := rows.Err(); err != nil {
		return Page[SearchResult]{}, err
	}

	return Page[SearchResult]{Items: items, Total: total}, nil
}

// Timeline returns events matching f ordered ascending by event_ts, plus
// per-type counts and commit insertion/deletion sums drawn from meta_json.
type TimelineSummary struct {
	CountsByType map[string]int
	CommitCount  int
	Insertions   int
	Deletions    int
}

func (s *Store) Timeline(ctx context.Context, f Filter) (Page[types.Event], TimelineSummary, error) {
	where, args, err := buildWhere(ctx, s.db, f)
	if err != nil {
		return Page[types.Event]{}, TimelineSummary{}, err
	}

	whereSQL := ""
	if where != "" {
		whereSQL = "WHERE " + where
	}

	var total int
	countSQL := `SELECT count(*) FROM events ` + whereSQL
	if err := s.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return Page[types.Event]{}, TimelineSummary{}, err
	}

	limit, offset := pageArgs(f)
	querySQL := `SELECT ` + eventColumns + ` FROM events ` + whereSQL + ` ORDER BY event_ts ASC LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, querySQL, append(append([]any{}, args...), limit, offset)...)
	if err != nil {
		return Page[types.Event]{}, TimelineSummary{}, err
	}
	defer rows.Close()

	var items []types.Event
	summary := TimelineSummary{CountsByType: map[string]int{}}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return Page[types.Event]{}, TimelineSummary{}, err
		}
		items = append(items, e)
		summary.CountsByType[string(e.EventType)]++
		if e.EventType == types.EventGitCommit {
			summary.CommitCount++
			var meta types.EventMeta
			if e.MetaJSON != "" {
				_ = json.Unmarshal([]byte(e.MetaJSON), &meta)
				summary.Insertions += meta.Insertions
				summary.Deletions += meta.Deletions
			}
		}
	}
	if err := rows.Err(); err != nil {
		return Page[types.Event]{}, TimelineSummary{}, err
	}

	return Page[types.Event]{Items: items, Total: total}, summary, nil
}

// editToolNames identifies tool_call events that represent file edits; the
// three common argument key names get_edits matches file_path against.
var editToolNames = []string{"edit", "str_replace", "str_replace_editor"}
var editFilePathKeys = []string{"file_path", "path", "filePath"}

// Edit is a parsed edit-tool invocation surfaced by GetEdits.
type Edit struct {
	Event     types.Event
	FilePath  string
	OldString string
	NewString string
}

// GetEdits returns tool_call events whose tool name is an edit-tool
// identifier, optionally narrowed to a single file path via substring
// matching across the common argument key names.
func (s *Store) GetEdits(ctx context.Context, f Filter, filePath string, limit int) ([]Edit, error) {
	if len(f.EventTypes) == 0 {
		f.EventTypes = []string{string(types.EventToolCall)}
	}
	if len(f.ToolNames) == 0 {
		f.ToolNames = editToolNames
	}
	f.Limit = limit

	where, args, err := buildWhere(ctx, s.db, f)
	if err != nil {
		return nil, err
	}
	whereSQL := ""
	if where != "" {
		whereSQL = "WHERE " + where
	}

	limitN, offset := pageArgs(f)
	querySQL := `SELECT ` + eventColumns + ` FROM events ` + whereSQL + ` ORDER BY event_ts ASC LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, querySQL, append(append([]any{}, args...), limitN, offset)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Edit
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		var argsMap map[string]any
		if e.ToolArgsJSON != "" {
			_ = json.Unmarshal([]byte(e.ToolArgsJSON), &argsMap)
		}
		path := stringField(argsMap, editFilePathKeys)
		if filePath != "" && !strings.Contains(path, filePath) {
			continue
		}
		out = append(out, Edit{
			Event:     e,
			FilePath:  path,
			OldString: anyToString(argsMap["oldString"]),
			NewString: anyToString(argsMap["newString"]),
		})
	}
	return out, rows.Err()
}

func stringField(m map[string]any, keys []string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return anyToString(v)
		}
	}
	return ""
}

func anyToString(v any) string {
	s, _ := v.(string)
	return s
}

// GetLatestFileContent returns the most recent tool_result against
// filePath, optionally bounded by before. Resolution joins on either the
// result's own file_paths array or a shared tool_call_id with a paired
// call whose arguments name filePath.
func (s *Store) GetLatestFileContent(ctx context.Context, filePath string, before string) (types.Event, bool, error) {
	f := Filter{EventTypes: []string{string(types.EventToolResult)}, Until: before, Limit: 1}
	where, args, err := buildWhere(ctx, s.db, f)
	if err != nil {
		return types.Event{}, false, err
	}
	whereSQL := "WHERE " + where
	querySQL := `SELECT ` + eventColumns + ` FROM events ` + whereSQL + ` ORDER BY event_ts DESC`
	rows, err := s.db.QueryContext(ctx, querySQL, args...)
	if err != nil {
		return types.Event{}, false, err
	}
	defer rows.Close()

	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return types.Event{}, false, err
		}
		if eventReferencesFile(e, filePath) {
			return e, true, nil
		}
	}
	return types.Event{}, false, rows.Err()
}

func eventReferencesFile(e types.Event, filePath string) bool {
	for _, p := range e.FilePaths {
		if p == filePath || strings.Contains(p, filePath) {
			return true
		}
	}
	return false
}

// GetFileHistory returns the ASC-ordered sequence of read/write snapshots
// for filePath.
func (s *Store) GetFileHistory(ctx context.Context, filePath string, f Filter) ([]types.Event, error) {
	f.EventTypes = []string{string(types.EventToolResult)}
	where, args, err := buildWhere(ctx, s.db, f)
	if err != nil {
		return nil, err
	}
	whereSQL := "WHERE " + where
	limit, offset := pageArgs(f)
	querySQL := `SELECT ` + eventColumns + ` FROM events ` + whereSQL + ` ORDER BY event_ts ASC LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, querySQL, append(append([]any{}, args...), limit, offset)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		if eventReferencesFile(e, filePath) {
			out = append(out, e)
		}
	}
	return out, rows.Err()
}

// minSnapshotBytes and the terminator set define "substantially complete"
// per spec.md §4.3 find_read_result: long enough, and not cut mid-line.
const minSnapshotBytes = 1000

var snapshotTerminators = []byte{'}', ')', '`', '\n'}

// FindReadResult returns the most recent tool_result for filePath whose
// text looks like a complete, non-truncated snapshot.
func (s *Store) FindReadResult(ctx context.Context, filePath string, before string) (types.Event, bool, error) {
	f := Filter{EventTypes: []string{string(types.EventToolResult)}, Until: before}
	where, args, err := buildWhere(ctx, s.db, f)
	if err != nil {
		return types.Event{}, false, err
	}
	querySQL := `SELECT ` + eventColumns + ` FROM events WHERE ` + where + ` ORDER BY event_ts DESC`
	rows, err := s.db.QueryContext(ctx, querySQL, args...)
	if err != nil {
		return types.Event{}, false, err
	}
	defer rows.Close()

	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return types.Event{}, false, err
		}
		if !eventReferencesFile(e, filePath) {
			continue
		}
		if isSubstantiallyComplete(e.TextRedacted) {
			return e, true, nil
		}
	}
	return types.Event{}, false, rows.Err()
}

func isSubstantiallyComplete(text string) bool {
	if len(text) < minSnapshotBytes {
		return false
	}
	last := text[len(text)-1]
	for _, t := range snapshotTerminators {
		if last == t {
			return true
		}
	}
	return false
}

// AccessedFile is one row of ListAccessedFiles.
type AccessedFile struct {
	FilePath     string
	LastAccessed time.Time
	AccessCount  int
	ToolsUsed    []string
}

// ListAccessedFiles groups tool_call events by extracted file path.
func (s *Store) ListAccessedFiles(ctx context.Context, f Filter) ([]AccessedFile, error) {
	f.EventTypes = []string{string(types.EventToolCall)}
	where, args, err := buildWhere(ctx, s.db, f)
	if err != nil {
		return nil, err
	}
	whereSQL := ""
	if where != "" {
		whereSQL = "WHERE " + where
	}
	querySQL := `SELECT ` + eventColumns + ` FROM events ` + whereSQL + ` ORDER BY event_ts ASC`
	rows, err := s.db.QueryContext(ctx, querySQL, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byPath := map[string]*AccessedFile{}
	var order []string
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		paths := e.FilePaths
		if len(paths) == 0 {
			var argsMap map[string]any
			if e.ToolArgsJSON != "" {
				_ = json.Unmarshal([]byte(e.ToolArgsJSON), &argsMap)
			}
			if p := stringField(argsMap, editFilePathKeys); p != "" {
				paths = []string{p}
			}
		}
		for _, p := range paths {
			af, ok := byPath[p]
			if !ok {
				af = &AccessedFile{FilePath: p}
				byPath[p] = af
				order = append(order, p)
			}
			af.AccessCount++
			af.LastAccessed = e.EventTS
			if !containsString(af.ToolsUsed, e.ToolName) {
				af.ToolsUsed = append(af.ToolsUsed, e.ToolName)
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]AccessedFile, 0, len(order))
	for _, p := range order {
		out = append(out, *byPath[p])
	}
	return out, nil
}

func containsString(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

// TokenStats is the aggregated result of GetTokenStats, before pricing is
// applied by internal/tokenusage.
type TokenStats struct {
	TotalInput      int
	TotalOutput     int
	TotalCacheRead  int
	TotalCacheWrite int
	ByDay           map[string]TokenUsageRollup
	BySession       map[string]TokenUsageRollup
	ByModel         map[string]TokenUsageRollup
}

// TokenUsageRollup is one grouped bucket within TokenStats.
type TokenUsageRollup struct {
	Input      int
	Output     int
	CacheRead  int
	CacheWrite int
}

// GetTokenStats aggregates token counts carried in meta_json.tokens,
// counting each (source_id, key) pair once, where key is meta.tool_call_id
// or, when that is empty, the event's own event_id. Events carry no
// separate message id, so two token-bearing events of one message with
// different keys are both counted.
func (s *Store) GetTokenStats(ctx context.Context, f Filter) (TokenStats, error) {
	where, args, err := buildWhere(ctx, s.db, f)
	if err != nil {
		return TokenStats{}, err
	}
	whereSQL := ""
	if where != "" {
		whereSQL = "WHERE " + where
	}
	querySQL := `SELECT ` + eventColumns + ` FROM events ` + whereSQL
	rows, err := s.db.QueryContext(ctx, querySQL, args...)
	if err != nil {
		return TokenStats{}, err
	}
	defer rows.Close()

	stats := TokenStats{
		ByDay:     map[string]TokenUsageRollup{},
		BySession: map[string]TokenUsageRollup{},
		ByModel:   map[string]TokenUsageRollup{},
	}
	seen := map[string]bool{}

	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return TokenStats{}, err
		}
		if e.MetaJSON == "" {
			continue
		}
		var meta types.EventMeta
		if err := json.Unmarshal([]byte(e.MetaJSON), &meta); err != nil || meta.Tokens == nil {
			continue
		}

		messageID := meta.ToolCallID
		if messageID == "" {
			messageID = e.EventID
		}
		dedupeKey := e.SourceID + ":" + messageID
		if seen[dedupeKey] {
			continue
		}
		seen[dedupeKey] = true

		u := meta.Tokens
		stats.TotalInput += u.Input
		stats.TotalOutput += u.Output
		stats.TotalCacheRead += u.CacheRead
		stats.TotalCacheWrite += u.CacheWrite

		day := e.EventTS.Format("2006-01-02")
		addRollup(stats.ByDay, day, u)
		addRollup(stats.BySession, e.SessionID, u)
		addRollup(stats.ByModel, meta.Model, u)
	}

	return stats, rows.Err()
}

func addRollup(m map[string]TokenUsageRollup, key string, u *types.TokenUsage) {
	if key == "" {
		return
	}
	r := m[key]
	r.Input += u.Input
	r.Output += u.Output
	r.CacheRead += u.CacheRead
	r.CacheWrite += u.CacheWrite
	m[key] = r
}

func pageArgs(f Filter) (limit, offset int) {
	limit = f.Limit
	if limit <= 0 {
		limit = 100
	}
	return limit, f.Offset
}

func prefixColumns(table, cols string) string {
	fields := strings.Split(strings.TrimSpace(cols), ",")
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = table + "." + strings.TrimSpace(f)
	}
	return strings.Join(out, ", ")
}

// --- FTS query normalization (spec.md §4.3 "search(req)") ---

var (
	escapedPipeRe = regexp.MustCompile(`\\\|`)
	groupRe       = regexp.MustCompile(`\(([^()]+)\)`)
	regexMetaRe   = regexp.MustCompile("[\\\\/^$.*+?\\[\\]{}]")
)

// normalizeFTSQuery applies the five-step normalization spec.md §4.3
// describes before handing a raw user query to FTS5's MATCH operator.
func normalizeFTSQuery(raw string) string {
	q := escapedPipeRe.ReplaceAllString(raw, "|")

	// Flatten parenthesized alternation groups: (a|b|c) -> a|b|c.
	q = groupRe.ReplaceAllString(q, "$1")

	q = strings.ReplaceAll(q, "|", " OR ")
	q = strings.ReplaceAll(q, " AND ", " ")

	q = regexMetaRe.ReplaceAllString(q, "")

	terms := strings.Fields(q)
	quoted := make([]string, 0, len(terms))
	for _, term := range terms {
		if term == "OR" {
			quoted = append(quoted, term)
			continue
		}
		if strings.HasPrefix(term, `"`) && strings.HasSuffix(term, `"`) && len(term) >= 2 {
			quoted = append(quoted, term)
			continue
		}
		if isAlphanumericUnderscore(term) {
			quoted = append(quoted, term)
			continue
		}
		escaped := strings.ReplaceAll(term, `"`, `""`)
		quoted = append(quoted, `"`+escaped+`"`)
	}
	// Step 5 joins terms with OR, but step 3 may have already expanded a
	// pipe into a literal "OR" token sitting in quoted. Inserting another
	// " OR " next to one of those produces "a OR OR b", which FTS5's MATCH
	// parser rejects. Only insert an operator between two real terms;
	// where one side is already the literal marker, a plain space carries
	// it through unduplicated.
	var b strings.Builder
	for i, term := range quoted {
		if i > 0 {
			if quoted[i-1] == "OR" || term == "OR" {
				b.WriteString(" ")
			} else {
				b.WriteString(" OR ")
			}
		}
		b.WriteString(term)
	}
	return b.String()
}

func isAlphanumericUnderscore(s string) bool {
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_') {
			return false
		}
	}
	return len(s) > 0
}
