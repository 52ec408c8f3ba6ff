package taskstate

import (
	"context"
	"errors"

	"github.com/colonyops/taskdeck/internal/core/transcript"
)

var (
	// ErrTaskNotFound is returned by a Fetcher when the task no longer exists.
	ErrTaskNotFound = errors.New("task not found")
	// ErrLoadFailed wraps any failure to load a task's state.
	ErrLoadFailed = errors.New("task state load failed")
	// ErrNotResident is returned when a delta targets a task with no resident
	// state. The delta is dropped.
	ErrNotResident = errors.New("task state not resident")
	// ErrUnknownToolUse is returned when a tool result names a tool call that
	// is not in the task's messages.
	ErrUnknownToolUse = errors.New("no tool call with that id")
)

// TaskRecord is the persisted status record of a task.
type TaskRecord struct {
	ID     string
	Status Status
	Error  string
}

// Fetcher is the point-in-time read port used to populate the cache.
type Fetcher interface {
	// GetMessages returns the task's persisted message log in order.
	GetMessages(ctx context.Context, taskID string) ([]transcript.Entry, error)

	// GetTask returns the task's status record.
	// Returns ErrTaskNotFound if the task does not exist.
	GetTask(ctx context.Context, taskID string) (TaskRecord, error)
}
