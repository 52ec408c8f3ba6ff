package claude

import (
	"cmp"
	"slices"
	"time"
)

// DefaultModelLimit is the context window assumed when none is configured.
const DefaultModelLimit = 200_000

// Analytics summarizes token usage and tool activity of a session.
type Analytics struct {
	CurrentContextTokens int // last turn's input + cache read
	InputTokens          int
	OutputTokens         int
	CacheReadTokens      int
	CacheWriteTokens     int
	TotalTurns           int
	Duration             time.Duration
	ToolCalls            []ToolCall // sorted by count, descending

	first, last time.Time
	counts      map[string]int
}

// ToolCall is a tool name and how often the session invoked it.
type ToolCall struct {
	Name  string
	Count int
}

// ContextPercent reports context usage as a percentage of modelLimit.
func (a Analytics) ContextPercent(modelLimit int) float64 {
	if modelLimit <= 0 {
		modelLimit = DefaultModelLimit
	}
	return float64(a.CurrentContextTokens) / float64(modelLimit) * 100
}

func (a *Analytics) observe(ts time.Time, m *message) {
	if !ts.IsZero() {
		if a.first.IsZero() || ts.Before(a.first) {
			a.first = ts
		}
		if ts.After(a.last) {
			a.last = ts
		}
		a.Duration = a.last.Sub(a.first)
	}

	a.InputTokens += m.Usage.InputTokens
	a.OutputTokens += m.Usage.OutputTokens
	a.CacheReadTokens += m.Usage.CacheReadInputTokens
	a.CacheWriteTokens += m.Usage.CacheCreationInputTokens
	a.CurrentContextTokens = m.Usage.InputTokens + m.Usage.CacheReadInputTokens
	a.TotalTurns++

	for _, b := range m.Content {
		if b.Type != "tool_use" || b.Name == "" {
			continue
		}
		if a.counts == nil {
			a.counts = make(map[string]int)
		}
		a.counts[b.Name]++
	}
}

func (a Analytics) clone() Analytics {
	out := a
	out.counts = nil
	out.ToolCalls = make([]ToolCall, 0, len(a.counts))
	for name, count := range a.counts {
		out.ToolCalls = append(out.ToolCalls, ToolCall{Name: name, Count: count})
	}
	slices.SortFunc(out.ToolCalls, func(x, y ToolCall) int {
		if c := cmp.Compare(y.Count, x.Count); c != 0 {
			return c
		}
		return cmp.Compare(x.Name, y.Name)
	})
	return out
}
