package claude

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/colonyops/taskdeck/internal/core/taskstate"
	"github.com/colonyops/taskdeck/internal/core/transcript"
)

// Claude Code writes one JSON object per line. Only the fields the
// normalizer reads are declared.
type jsonlEntry struct {
	Type              string    `json:"type"`
	SessionID         string    `json:"sessionId"`
	Timestamp         time.Time `json:"timestamp"`
	IsMeta            bool      `json:"isMeta"`
	IsSidechain       bool      `json:"isSidechain"`
	IsAPIErrorMessage bool      `json:"isApiErrorMessage"`
	Level             string    `json:"level"`
	Content           string    `json:"content"`
	Message           *message  `json:"message"`
}

type message struct {
	Role       string  `json:"role"`
	Model      string  `json:"model"`
	Content    blocks  `json:"content"`
	StopReason *string `json:"stop_reason"`
	Usage      usage   `json:"usage"`
}

type usage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens"`
}

type block struct {
	Type      string          `json:"type"`
	Text      string          `json:"text"`
	Thinking  string          `json:"thinking"`
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Input     json.RawMessage `json:"input"`
	ToolUseID string          `json:"tool_use_id"`
	Content   json.RawMessage `json:"content"`
	IsError   bool            `json:"is_error"`
}

// blocks accepts either a bare string or an array of content blocks.
type blocks []block

func (b *blocks) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*b = blocks{{Type: "text", Text: s}}
		return nil
	}
	var out []block
	if err := json.Unmarshal(data, &out); err != nil {
		return err
	}
	*b = out
	return nil
}

// resultText flattens a tool_result content field, which is either a string
// or a list of text blocks.
func resultText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var parts []block
	if err := json.Unmarshal(raw, &parts); err != nil {
		return string(raw)
	}
	texts := make([]string, 0, len(parts))
	for _, p := range parts {
		if p.Type == "text" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n")
}

const interruptMarker = "[Request interrupted by user"

// Normalizer converts the lines of one session transcript into task deltas.
// It carries the little state the transcript leaves implicit: the last
// emitted status and the outstanding AskUserQuestion calls. A Normalizer is
// not safe for concurrent use.
type Normalizer struct {
	status    taskstate.Status
	questions map[string]struct{}
	analytics Analytics
}

// NewNormalizer returns a normalizer for a fresh transcript.
func NewNormalizer() *Normalizer {
	return &Normalizer{questions: make(map[string]struct{})}
}

// Analytics returns the usage totals accumulated so far.
func (n *Normalizer) Analytics() Analytics {
	return n.analytics.clone()
}

// Parse decodes one transcript line. Blank lines and record types that carry
// no session activity yield no deltas.
func (n *Normalizer) Parse(line []byte) ([]taskstate.Delta, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil, nil
	}

	var e jsonlEntry
	if err := json.Unmarshal(line, &e); err != nil {
		return nil, fmt.Errorf("decode transcript line: %w", err)
	}
	if e.IsSidechain {
		return nil, nil
	}

	switch e.Type {
	case "user":
		return n.user(e), nil
	case "assistant":
		return n.assistant(e), nil
	case "system":
		if e.Level == "error" && e.Content != "" {
			n.status = taskstate.StatusError
			return []taskstate.Delta{taskstate.ErrorOccurred{Message: e.Content}}, nil
		}
	}
	return nil, nil
}

func (n *Normalizer) user(e jsonlEntry) []taskstate.Delta {
	if e.Message == nil {
		return nil
	}

	var out []taskstate.Delta
	prompted := false
	interrupted := false
	for _, b := range e.Message.Content {
		switch b.Type {
		case "text":
			if e.IsMeta || strings.TrimSpace(b.Text) == "" {
				continue
			}
			if strings.HasPrefix(b.Text, interruptMarker) {
				interrupted = true
			} else {
				prompted = true
			}
			entry := transcript.NewText(transcript.RoleUser, b.Text)
			entry.Timestamp = e.Timestamp
			out = append(out, taskstate.NewEntry{Entry: entry})
		case "tool_result":
			out = append(out, taskstate.ToolResult{
				ToolUseID: b.ToolUseID,
				Result:    transcript.Result{Content: resultText(b.Content), IsError: b.IsError},
			})
			if _, ok := n.questions[b.ToolUseID]; ok {
				delete(n.questions, b.ToolUseID)
				out = append(out, taskstate.QuestionAnswered{RequestID: b.ToolUseID})
			}
		}
	}

	switch {
	case interrupted:
		out = n.setStatus(out, taskstate.StatusWaiting)
	case prompted:
		out = n.setStatus(out, taskstate.StatusRunning)
	}
	return out
}

func (n *Normalizer) assistant(e jsonlEntry) []taskstate.Delta {
	if e.Message == nil {
		return nil
	}
	m := e.Message
	n.analytics.observe(e.Timestamp, m)

	if e.IsAPIErrorMessage {
		msg := "API error"
		for _, b := range m.Content {
			if b.Type == "text" && b.Text != "" {
				msg = b.Text
				break
			}
		}
		n.status = taskstate.StatusError
		return []taskstate.Delta{taskstate.ErrorOccurred{Message: msg}}
	}

	var out []taskstate.Delta
	for _, b := range m.Content {
		var entry transcript.Entry
		switch b.Type {
		case "text":
			if strings.TrimSpace(b.Text) == "" {
				continue
			}
			entry = transcript.NewText(transcript.RoleAssistant, b.Text)
		case "thinking":
			if strings.TrimSpace(b.Thinking) == "" {
				continue
			}
			entry = transcript.NewText(transcript.RoleThinking, b.Thinking)
		case "tool_use":
			tool, err := transcript.DecodeToolUse(b.Name, b.Input)
			if err != nil {
				tool = transcript.UnknownTool{ToolName: transcript.ToolName(b.Name), Input: b.Input}
			}
			entry = transcript.NewToolCall(b.ID, tool)
		default:
			continue
		}
		entry.Model = m.Model
		entry.Timestamp = e.Timestamp
		out = append(out, taskstate.NewEntry{Entry: entry})

		if ask, ok := entry.Tool.(transcript.AskUserQuestionTool); ok {
			n.questions[b.ID] = struct{}{}
			out = append(out, taskstate.QuestionAsked{Request: taskstate.QuestionRequest{
				ID:        b.ID,
				ToolUseID: b.ID,
				Questions: ask.Input.Questions,
				AskedAt:   e.Timestamp,
			}})
		}
	}

	next := taskstate.StatusRunning
	if m.StopReason != nil {
		switch *m.StopReason {
		case "end_turn", "stop_sequence", "max_tokens", "refusal":
			next = taskstate.StatusWaiting
		}
	}
	return n.setStatus(out, next)
}

func (n *Normalizer) setStatus(out []taskstate.Delta, s taskstate.Status) []taskstate.Delta {
	if n.status == s {
		return out
	}
	n.status = s
	return append(out, taskstate.StatusChanged{Status: s})
}
