// Package taskstate keeps a bounded, per-task view of live agent sessions.
// State is loaded lazily through a Fetcher, updated in place by deltas from
// the live event stream, and evicted least-recently-touched first once the
// cache grows past its capacity.
package taskstate

import (
	"slices"
	"time"

	"github.com/colonyops/taskdeck/internal/core/todo"
	"github.com/colonyops/taskdeck/internal/core/transcript"
)

// Status is the agent lifecycle status of a task.
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusWaiting, StatusRunning, StatusCompleted, StatusError:
		return true
	}
	return false
}

// PermissionRequest is an outstanding request from the agent to run a tool,
// awaiting the user's decision.
type PermissionRequest struct {
	ID          string
	ToolUseID   string
	Tool        transcript.ToolUse
	RequestedAt time.Time
}

// QuestionRequest is an outstanding question from the agent awaiting the
// user's answer.
type QuestionRequest struct {
	ID        string
	ToolUseID string
	Questions []transcript.Question
	AskedAt   time.Time
}

// TaskState is a snapshot of one task's session. Values returned by the
// Cache are copies; mutating them has no effect on the cache.
type TaskState struct {
	TaskID            string
	Messages          []transcript.Entry
	Status            Status
	Error             string
	PendingPermission *PermissionRequest
	PendingQuestion   *QuestionRequest

	// LastAccessedAt is a monotonic tick refreshed on every read or write.
	// It orders eviction and is 0 for a state that is not resident.
	LastAccessedAt int64

	// Loaded is false for the placeholder returned while a task is absent
	// or still loading.
	Loaded bool
}

// Default returns the placeholder state for a task that is not resident.
func Default(taskID string) TaskState {
	return TaskState{
		TaskID: taskID,
		Status: StatusWaiting,
	}
}

// Todos returns the most recent todo list written by the agent, or nil.
func (s TaskState) Todos() []todo.Item {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if tw, ok := s.Messages[i].Tool.(transcript.TodoWriteTool); ok {
			return slices.Clone(tw.Input.Todos)
		}
	}
	return nil
}

// PreviousTodos returns the todo list written before the most recent one, or
// nil. Paired with Todos it gives the two lists a todo diff compares.
func (s TaskState) PreviousTodos() []todo.Item {
	seen := false
	for i := len(s.Messages) - 1; i >= 0; i-- {
		tw, ok := s.Messages[i].Tool.(transcript.TodoWriteTool)
		if !ok {
			continue
		}
		if seen {
			return slices.Clone(tw.Input.Todos)
		}
		seen = true
	}
	return nil
}

// NeedsInput reports whether the agent is blocked on the user.
func (s TaskState) NeedsInput() bool {
	return s.PendingPermission != nil || s.PendingQuestion != nil
}

func (s TaskState) clone() TaskState {
	out := s
	out.Messages = slices.Clone(s.Messages)
	if s.PendingPermission != nil {
		p := *s.PendingPermission
		out.PendingPermission = &p
	}
	if s.PendingQuestion != nil {
		q := *s.PendingQuestion
		q.Questions = slices.Clone(q.Questions)
		out.PendingQuestion = &q
	}
	return out
}
