// Package types defines the canonical data structures shared across Recall's
// ingestion and retrieval engine: devices, projects, sources, cursors, and
// the event record every adapter normalizes into.
package types

import "time"

// SourceKind identifies which adapter produced an event or owns a source.
type SourceKind string

const (
	SourceKindJSONLTranscript SourceKind = "jsonl_transcript"
	SourceKindSplitTranscript SourceKind = "split_transcript"
	SourceKindPlainTranscript SourceKind = "plain_transcript"
	SourceKindGit             SourceKind = "git"
)

// EventType enumerates the canonical event kinds.
type EventType string

const (
	EventUserMessage      EventType = "user_message"
	EventAssistantMessage EventType = "assistant_message"
	EventToolCall         EventType = "tool_call"
	EventToolResult       EventType = "tool_result"
	EventGitCommit        EventType = "git_commit"
	EventGitBranch        EventType = "git_branch"
)

// SourceStatus is the lifecycle status of a registered source.
type SourceStatus string

const (
	SourceActive  SourceStatus = "active"
	SourcePaused  SourceStatus = "paused"
	SourceMissing SourceStatus = "missing"
	SourceError   SourceStatus = "error"
)

// Device is a stable per-install identity, persisted once and reused.
type Device struct {
	DeviceID   string    `json:"device_id"`
	Nickname   string    `json:"nickname"`
	CreatedAt  time.Time `json:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

// Project identifies a directory tree being ingested from, keyed so that
// the same checkout on different machines (or different clones sharing a
// remote) resolves to the same project_id.
type Project struct {
	ProjectID   string    `json:"project_id"`
	DisplayName string    `json:"display_name"`
	GitRemote   string    `json:"git_remote,omitempty"`
	RootPath    string    `json:"root_path"`
	SharePolicy string    `json:"share_policy"`
	CreatedAt   time.Time `json:"created_at"`
}

// Source is the unit of ingestion: one on-disk artifact (file or repo).
type Source struct {
	SourceID         string       `json:"source_id"`
	Kind             SourceKind   `json:"kind"`
	Locator          string       `json:"locator"`
	DeviceID         string       `json:"device_id"`
	ProjectID        string       `json:"project_id,omitempty"`
	SessionID        string       `json:"session_id,omitempty"`
	Status           SourceStatus `json:"status"`
	ErrorMessage     string       `json:"error_message,omitempty"`
	LastSeenAt       time.Time    `json:"last_seen_at"`
	RedactSecrets    bool         `json:"redact_secrets"`
	RetainOnDelete   bool         `json:"retain_on_delete"`
	EncryptOriginals bool         `json:"encrypt_originals"`
	CreatedAt        time.Time    `json:"created_at"`
}

// Cursor is the durable ingestion progress for a single source.
type Cursor struct {
	SourceID    string    `json:"source_id"`
	FileInode   uint64    `json:"file_inode,omitempty"`
	FileSize    int64     `json:"file_size,omitempty"`
	FileMtime   time.Time `json:"file_mtime,omitempty"`
	ByteOffset  int64     `json:"byte_offset,omitempty"`
	DiffMtime   time.Time `json:"diff_mtime,omitempty"`
	LastEventID string    `json:"last_event_id,omitempty"`
	LastRowID   int64     `json:"last_rowid,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TokenUsage carries model-reported token counts for a single event.
type TokenUsage struct {
	Input      int    `json:"input,omitempty"`
	Output     int    `json:"output,omitempty"`
	CacheRead  int    `json:"cache_read,omitempty"`
	CacheWrite int    `json:"cache_write,omitempty"`
	Model      string `json:"model,omitempty"`
}

// RedactionMatch is one scrubbed span in the pre-redaction text.
type RedactionMatch struct {
	Type         string `json:"type"`
	Start        int    `json:"start"`
	End          int    `json:"end"`
	OriginalHash string `json:"original_hash"`
}

// RedactionManifest records every span redacted from an event's text.
type RedactionManifest struct {
	Redactions []RedactionMatch `json:"redactions"`
}

// Event is the canonical retrieval unit every adapter produces.
type Event struct {
	EventID       string     `json:"event_id"`
	SourceID      string     `json:"source_id"`
	SourceSeq     float64    `json:"source_seq"`
	DeviceID      string     `json:"device_id"`
	ProjectID     string     `json:"project_id,omitempty"`
	SessionID     string     `json:"session_id,omitempty"`
	EventTS       time.Time  `json:"event_ts"`
	IngestTS      time.Time  `json:"ingest_ts"`
	SourceKind    SourceKind `json:"source_kind"`
	EventType     EventType  `json:"event_type"`
	TextRedacted  string     `json:"text_redacted,omitempty"`
	ToolName      string     `json:"tool_name,omitempty"`
	ToolArgsJSON  string     `json:"tool_args_json,omitempty"`
	FilePaths     []string   `json:"file_paths,omitempty"`
	MetaJSON      string     `json:"meta_json,omitempty"`
	RedactionJSON string     `json:"redaction_manifest_json,omitempty"`
}

// EventMeta is the structured shape commonly stored in Event.MetaJSON.
// Adapters populate only the fields relevant to the event; it is
// marshaled/unmarshaled with omitempty so unrelated fields stay absent.
type EventMeta struct {
	ToolCallID     string      `json:"tool_call_id,omitempty"`
	Model          string      `json:"model,omitempty"`
	Tokens         *TokenUsage `json:"tokens,omitempty"`
	IsWriteContent bool        `json:"is_write_content,omitempty"`
	OccurrenceIdx  int         `json:"occurrence_index,omitempty"`

	// Git commit metadata.
	CommitSHA      string       `json:"commit_sha,omitempty"`
	CommitShortSHA string       `json:"commit_short_sha,omitempty"`
	ParentSHAs     []string     `json:"parent_shas,omitempty"`
	AuthorName     string       `json:"author_name,omitempty"`
	AuthorEmail    string       `json:"author_email,omitempty"`
	Branches       []string     `json:"branches,omitempty"`
	Files          []CommitFile `json:"files,omitempty"`
	Insertions     int          `json:"insertions,omitempty"`
	Deletions      int          `json:"deletions,omitempty"`

	// Git branch-switch metadata.
	FromBranch string `json:"from,omitempty"`
	ToBranch   string `json:"to,omitempty"`
	FromSHA    string `json:"from_sha,omitempty"`
	ToSHA      string `json:"to_sha,omitempty"`
}

// CommitFile is one changed path within a git_commit event.
type CommitFile struct {
	Path       string `json:"path"`
	Status     string `json:"status"` // A, M, D, R
	Insertions int    `json:"insertions"`
	Deletions  int    `json:"deletions"`
}

// EditToolArgs is the common shape of tool_args_json for edit-tool calls.
type EditToolArgs struct {
	FilePath  string `json:"file_path"`
	OldString string `json:"oldString"`
	NewString string `json:"newString"`
}
