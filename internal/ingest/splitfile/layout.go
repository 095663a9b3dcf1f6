// Package splitfile implements spec.md §4.4.2: a transcript recorded as a
// tree of small files — one directory of session metadata, one directory of
// per-session message metadata, one directory of per-message part files —
// rather than a single append-only log.
package splitfile

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// sessionMeta is one file under the sessions directory.
type sessionMeta struct {
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
}

// messageMeta is one file under a session's messages directory.
type messageMeta struct {
	MessageID     string     `json:"message_id"`
	Role          string     `json:"role"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	Model         string     `json:"model,omitempty"`
	InputTokens   int        `json:"input_tokens,omitempty"`
	OutputTokens  int        `json:"output_tokens,omitempty"`
	CacheReadTok  int        `json:"cache_read_tokens,omitempty"`
	CacheWriteTok int        `json:"cache_write_tokens,omitempty"`
}

// partFile is one file under a message's parts directory.
type partFile struct {
	PartID    string    `json:"part_id"`
	Type      string    `json:"type"` // "text", "tool_call", "tool_result"
	StartedAt time.Time `json:"started_at"`
	Text      string    `json:"text,omitempty"`
	ToolName  string    `json:"tool_name,omitempty"`
	ToolArgs  string    `json:"tool_args,omitempty"`
	ToolUseID string    `json:"tool_use_id,omitempty"`
}

// diffEntry is one row of a session's diff file (spec.md §4.4.2 "Diffs").
type diffEntry struct {
	File       string `json:"file"`
	Before     string `json:"before"`
	After      string `json:"after"`
	Additions  int    `json:"additions"`
	Deletions  int    `json:"deletions"`
}

// sessionLayout is the resolved set of paths for one session directory tree.
type sessionLayout struct {
	root         string
	sessionFile  string
	messagesDir  string
	partsRoot    string
	diffFile     string
}

func layoutFor(sessionDir string) sessionLayout {
	return sessionLayout{
		root:        sessionDir,
		sessionFile: filepath.Join(sessionDir, "session.json"),
		messagesDir: filepath.Join(sessionDir, "messages"),
		partsRoot:   filepath.Join(sessionDir, "parts"),
		diffFile:    filepath.Join(sessionDir, "diff.json"),
	}
}

func readJSON[T any](path string) (T, error) {
	var v T
	data, err := os.ReadFile(path)
	if err != nil {
		return v, err
	}
	err = json.Unmarshal(data, &v)
	return v, err
}

// listMessages returns a session's messages ordered by creation time, per
// spec.md §4.4.2 "a session's message order is determined by each message's
// creation time".
func listMessages(messagesDir string) ([]messageMeta, error) {
	entries, err := os.ReadDir(messagesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []messageMeta
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m, err := readJSON[messageMeta](filepath.Join(messagesDir, e.Name()))
		if err != nil {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// listParts returns a message's parts ordered by start time, per spec.md
// §4.4.2 "a message's parts are ordered by the part's start time".
func listParts(partsRoot, messageID string) ([]partFile, error) {
	dir := filepath.Join(partsRoot, messageID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []partFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		p, err := readJSON[partFile](filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

func mtimeOf(path string) (time.Time, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, false
	}
	return info.ModTime(), true
}
