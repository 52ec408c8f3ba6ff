package commands

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/colonyops/taskdeck/internal/core/eventbus"
	"github.com/colonyops/taskdeck/internal/core/styles"
	"github.com/colonyops/taskdeck/internal/core/taskstate"
	"github.com/colonyops/taskdeck/internal/core/todo"
	"github.com/colonyops/taskdeck/internal/core/transcript"
)

const maxTextWidth = 120

func renderStatus(s taskstate.Status) string {
	switch s {
	case taskstate.StatusRunning:
		return styles.SuccessStyle.Render(styles.IconRunning + " running")
	case taskstate.StatusCompleted:
		return styles.MutedStyle.Render(styles.IconCompleted + " completed")
	case taskstate.StatusError:
		return styles.ErrorStyle.Render(styles.IconError + " error")
	default:
		return styles.WarningStyle.Render(styles.IconWaiting + " waiting")
	}
}

// renderEntry renders one transcript entry as a single line.
func renderEntry(e transcript.Entry) string {
	if e.IsTool() {
		line := "  " + transcript.Summarize(e.Tool)
		if r := e.Tool.Result(); r != nil && r.IsError {
			return styles.ErrorStyle.Render(line)
		}
		return styles.TextStyle.Render(line)
	}

	text := truncate(firstLine(e.Text), maxTextWidth)
	switch e.Role {
	case transcript.RoleUser:
		return styles.HeaderStyle.Render("> ") + styles.TextStyle.Render(text)
	case transcript.RoleThinking:
		return styles.MutedStyle.Render("  ~ " + text)
	case transcript.RoleSystem:
		return styles.MutedStyle.Render("  # " + text)
	default:
		return styles.TextStyle.Render("  " + text)
	}
}

// renderTodos renders the todo list, highlighting items whose status changed
// since prev.
func renderTodos(prev, cur []todo.Item) []string {
	changed := todo.Diff(prev, cur)
	out := make([]string, 0, len(cur))
	for i, it := range cur {
		line := todoIcon(it.Status) + " " + it.Content
		if _, ok := changed[i]; ok && prev != nil {
			line = styles.ChangedStyle.Render(line)
		} else if it.Status == todo.StatusCompleted {
			line = styles.MutedStyle.Render(line)
		} else {
			line = styles.TextStyle.Render(line)
		}
		out = append(out, line)
	}
	return out
}

func todoIcon(s todo.Status) string {
	switch s {
	case todo.StatusCompleted:
		return styles.IconTodoCompleted
	case todo.StatusInProgress:
		return styles.IconTodoInProgress
	default:
		return styles.IconTodoPending
	}
}

func renderNotification(p eventbus.NotificationPublishedPayload, now time.Time) string {
	ts := styles.MutedStyle.Render(now.Format(time.Kitchen))
	switch p.Level {
	case eventbus.LevelError:
		return ts + " " + styles.ErrorStyle.Render(styles.IconError+" "+p.Message)
	case eventbus.LevelWarning:
		return ts + " " + styles.WarningStyle.Render(styles.IconAttention+" "+p.Message)
	default:
		return ts + " " + styles.TextStyle.Render(p.Message)
	}
}

// renderState renders a task state for `show`.
func renderState(s taskstate.TaskState, limit int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s  %s\n", styles.HeaderStyle.Render(s.TaskID), renderStatus(s.Status))
	if s.Error != "" {
		fmt.Fprintln(&b, styles.ErrorStyle.Render("error: "+s.Error))
	}

	msgs := s.Messages
	if limit > 0 && len(msgs) > limit {
		fmt.Fprintln(&b, styles.MutedStyle.Render(fmt.Sprintf("  ... %d earlier entries", len(msgs)-limit)))
		msgs = msgs[len(msgs)-limit:]
	}
	for _, e := range msgs {
		fmt.Fprintln(&b, renderEntry(e))
	}

	if todos := s.Todos(); len(todos) > 0 {
		done, total := todo.Progress(todos)
		fmt.Fprintln(&b, styles.DividerStyle.Render(strings.Repeat("─", 40)))
		fmt.Fprintln(&b, styles.HeaderStyle.Render(fmt.Sprintf("todos %d/%d", done, total)))
		for _, line := range renderTodos(s.PreviousTodos(), todos) {
			fmt.Fprintln(&b, line)
		}
	}

	if p := s.PendingPermission; p != nil {
		fmt.Fprintln(&b, styles.WarningStyle.Render(styles.IconAttention+" permission requested: "+transcript.Summarize(p.Tool)))
	}
	if q := s.PendingQuestion; q != nil {
		for _, item := range q.Questions {
			fmt.Fprintln(&b, styles.WarningStyle.Render(styles.IconAttention+" "+item.Question))
		}
	}
	return b.String()
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " …"
	}
	return s
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}
