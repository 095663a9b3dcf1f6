// Package jsonl implements spec.md §4.4.1: tailing a line-delimited JSON
// transcript, pairing tool_call/tool_result events, capturing write-file
// content, and attaching token metadata.
package jsonl

import "encoding/json"

// entry is one line of the transcript: a single user or assistant turn.
type entry struct {
	Role      string          `json:"role"`
	Content   json.RawMessage `json:"content"`
	Timestamp string          `json:"timestamp"`
	Model     string          `json:"model,omitempty"`
	Usage     *usage          `json:"usage,omitempty"`
}

type usage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
}

// contentBlock is one element of an assistant/user content array: plain
// text, a tool invocation, or a tool's result.
type contentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
}

// plainText returns the entry's content as a flat string when it is a bare
// JSON string rather than a content-block array.
func (e entry) plainText() (string, bool) {
	var s string
	if err := json.Unmarshal(e.Content, &s); err != nil {
		return "", false
	}
	return s, true
}

// blocks returns the entry's content as a content-block array, when it is
// one.
func (e entry) blocks() ([]contentBlock, bool) {
	var blocks []contentBlock
	if err := json.Unmarshal(e.Content, &blocks); err != nil {
		return nil, false
	}
	return blocks, true
}

// resultText extracts a tool_result block's content as a string, whether
// it was encoded as a bare string or as a nested array of text blocks.
func (b contentBlock) resultText() string {
	var s string
	if err := json.Unmarshal(b.Content, &s); err == nil {
		return s
	}
	var nested []contentBlock
	if err := json.Unmarshal(b.Content, &nested); err == nil {
		var out string
		for _, n := range nested {
			out += n.Text
		}
		return out
	}
	return ""
}
