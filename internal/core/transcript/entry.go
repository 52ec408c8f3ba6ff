// Package transcript defines the normalized vocabulary for agent session
// output: entries, tool uses and their results. Every producer (transcript
// parsers, stores, the live delta stream) speaks in these types.
package transcript

import (
	"encoding/json"
	"fmt"
	"time"
)

// Role identifies who produced a text entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleThinking  Role = "thinking"
	RoleSystem    Role = "system"
)

// Entry is one normalized unit of agent output. Exactly one of Text or Tool
// is set. Entries are append-only; the only change an entry ever sees is a
// late tool result, applied through WithResult which returns a new value.
type Entry struct {
	Index     int       // position in the conversation
	Model     string    // model that produced the entry, if known
	Timestamp time.Time // zero when the source carries no timestamp
	Role      Role
	Text      string
	ToolUseID string // correlates a tool call with its late result
	Tool      ToolUse
}

// NewText creates a free-text entry.
func NewText(role Role, text string) Entry {
	return Entry{Role: role, Text: text}
}

// NewToolCall creates a tool-use entry. Tool calls are always attributed to
// the assistant.
func NewToolCall(id string, tool ToolUse) Entry {
	return Entry{Role: RoleAssistant, ToolUseID: id, Tool: tool}
}

// IsTool reports whether the entry carries a tool use.
func (e Entry) IsTool() bool {
	return e.Tool != nil
}

// Pending reports whether the entry is a tool call still awaiting its result.
func (e Entry) Pending() bool {
	return e.Tool != nil && e.Tool.Result() == nil
}

// WithResult returns a copy of e with r attached to its tool use. Text
// entries are returned unchanged.
func (e Entry) WithResult(r Result) Entry {
	if e.Tool == nil {
		return e
	}
	e.Tool = e.Tool.withResult(&r)
	return e
}

type wireTool struct {
	Name   ToolName        `json:"name"`
	Input  json.RawMessage `json:"input,omitempty"`
	Result *Result         `json:"result,omitempty"`
}

type wireEntry struct {
	Index     int        `json:"index"`
	Model     string     `json:"model,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
	Role      Role       `json:"role,omitempty"`
	Text      string     `json:"text,omitempty"`
	ToolUseID string     `json:"tool_use_id,omitempty"`
	Tool      *wireTool  `json:"tool,omitempty"`
}

// MarshalJSON encodes the entry with its tool use flattened to
// name/input/result.
func (e Entry) MarshalJSON() ([]byte, error) {
	w := wireEntry{
		Index:     e.Index,
		Model:     e.Model,
		Role:      e.Role,
		Text:      e.Text,
		ToolUseID: e.ToolUseID,
	}
	if !e.Timestamp.IsZero() {
		ts := e.Timestamp
		w.Timestamp = &ts
	}
	if e.Tool != nil {
		input, err := EncodeInput(e.Tool)
		if err != nil {
			return nil, err
		}
		w.Tool = &wireTool{Name: e.Tool.Name(), Input: input, Result: e.Tool.Result()}
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes an entry produced by MarshalJSON. Tool inputs that do
// not match their declared tool are kept as UnknownTool.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var w wireEntry
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	*e = Entry{
		Index:     w.Index,
		Model:     w.Model,
		Role:      w.Role,
		Text:      w.Text,
		ToolUseID: w.ToolUseID,
	}
	if w.Timestamp != nil {
		e.Timestamp = *w.Timestamp
	}
	if w.Tool != nil {
		tool, err := DecodeToolUse(string(w.Tool.Name), w.Tool.Input)
		if err != nil {
			tool = UnknownTool{ToolName: w.Tool.Name, Input: w.Tool.Input}
		}
		if w.Tool.Result != nil {
			tool = tool.withResult(w.Tool.Result)
		}
		e.Tool = tool
	}
	return nil
}

// String implements fmt.Stringer for log output.
func (e Entry) String() string {
	if e.Tool != nil {
		return fmt.Sprintf("#%d %s", e.Index, Summarize(e.Tool))
	}
	return fmt.Sprintf("#%d %s: %s", e.Index, e.Role, e.Text)
}
