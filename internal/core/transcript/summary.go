package transcript

import (
	"fmt"
	"net/url"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/colonyops/taskdeck/internal/core/todo"
)

const maxCommandWidth = 80

// Summarize renders a short, human-readable status line for a tool use. The
// output depends only on the tool's name, input and result: calls in flight
// read "Reading `x`...", completed calls read "Read `x` (3 lines)".
func Summarize(t ToolUse) string {
	if t == nil {
		return ""
	}

	res := t.Result()
	done := res != nil
	failed := done && res.IsError

	var s string
	switch t := t.(type) {
	case ReadTool:
		name := code(baseName(t.Input.FilePath))
		switch {
		case !done:
			s = "Reading " + name + "..."
		case failed:
			s = "Read " + name
		default:
			s = "Read " + name + metric(countLines(res.Content), "line", "lines")
		}
	case WriteTool:
		name := code(baseName(t.Input.FilePath))
		switch {
		case !done:
			s = "Writing " + name + "..."
		case failed:
			s = "Wrote " + name
		default:
			s = "Wrote " + name + metric(countLines(t.Input.Content), "line", "lines")
		}
	case EditTool:
		name := code(baseName(t.Input.FilePath))
		switch {
		case !done:
			s = "Editing " + name + "..."
		case failed:
			s = "Edited " + name
		default:
			s = fmt.Sprintf("Edited %s (+%d -%d)", name, countLines(t.Input.NewString), countLines(t.Input.OldString))
		}
	case BashTool:
		cmd := code(shortCommand(t.Input.Command))
		if !done {
			s = "Running " + cmd + "..."
		} else {
			s = "Ran " + cmd
		}
	case GrepTool:
		pattern := code(t.Input.Pattern)
		switch {
		case !done:
			s = "Searching for " + pattern + "..."
		case failed:
			s = "Searched for " + pattern
		default:
			s = "Searched for " + pattern + metric(countNonBlank(res.Content), "match", "matches")
		}
	case GlobTool:
		pattern := code(t.Input.Pattern)
		switch {
		case !done:
			s = "Finding files matching " + pattern + "..."
		case failed:
			s = "Searched for files matching " + pattern
		default:
			n := countNonBlank(res.Content)
			s = fmt.Sprintf("Found %d %s matching %s", n, plural(n, "file", "files"), pattern)
		}
	case TaskTool:
		desc := strings.TrimSpace(t.Input.Description)
		switch {
		case !done && desc == "":
			s = "Running agent..."
		case !done:
			s = "Running agent: " + desc + "..."
		case desc == "":
			s = "Agent finished"
		default:
			s = "Agent finished: " + desc
		}
	case WebFetchTool:
		host := hostName(t.Input.URL)
		if !done {
			s = "Fetching " + host + "..."
		} else {
			s = "Fetched " + host
		}
	case WebSearchTool:
		q := code(t.Input.Query)
		if !done {
			s = "Searching the web for " + q + "..."
		} else {
			s = "Searched the web for " + q
		}
	case TodoWriteTool:
		switch {
		case !done:
			s = "Updating todos..."
		case failed:
			s = "Updated todos"
		default:
			c, n := todo.Progress(t.Input.Todos)
			s = fmt.Sprintf("Updated todos (%d/%d completed)", c, n)
		}
	case AskUserQuestionTool:
		q := firstQuestion(t.Input.Questions)
		switch {
		case !done:
			s = "Asking a question..."
		case q == "":
			s = "Asked a question"
		default:
			s = "Asked: " + q
		}
	case SkillTool:
		name := code(t.Input.Skill)
		if !done {
			s = "Loading skill " + name + "..."
		} else {
			s = "Loaded skill " + name
		}
	case ExitPlanModeTool:
		if !done {
			s = "Presenting plan..."
		} else {
			s = "Presented plan"
		}
	case UnknownTool:
		s = genericSummary(t.ToolName, done)
	default:
		s = genericSummary(t.Name(), done)
	}

	if failed {
		s += " (error)"
	}
	return s
}

func genericSummary(name ToolName, done bool) string {
	if done {
		return "Used " + code(string(name))
	}
	return "Using " + code(string(name))
}

func code(s string) string {
	return "`" + s + "`"
}

func metric(n int, one, many string) string {
	if n == 0 {
		return ""
	}
	return fmt.Sprintf(" (%d %s)", n, plural(n, one, many))
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

// countLines counts newline-delimited segments. A single trailing newline
// terminates the last line rather than starting a new one.
func countLines(s string) int {
	if s == "" {
		return 0
	}
	s = strings.TrimSuffix(s, "\n")
	return strings.Count(s, "\n") + 1
}

func countNonBlank(s string) int {
	n := 0
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	return n
}

func baseName(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	if p == "" {
		return ""
	}
	return path.Base(p)
}

// shortCommand keeps the first line of a command, marking dropped lines and
// overlong commands with an ellipsis.
func shortCommand(cmd string) string {
	cmd = strings.TrimSpace(cmd)
	first, rest, multi := strings.Cut(cmd, "\n")
	first = strings.TrimSpace(first)

	if utf8.RuneCountInString(first) > maxCommandWidth {
		runes := []rune(first)
		return string(runes[:maxCommandWidth]) + " ..."
	}
	if multi && strings.TrimSpace(rest) != "" {
		return first + " ..."
	}
	return first
}

func hostName(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Hostname() == "" {
		return "web page"
	}
	return u.Hostname()
}

func firstQuestion(qs []Question) string {
	for _, q := range qs {
		if text := strings.TrimSpace(q.Question); text != "" {
			return text
		}
	}
	return ""
}
