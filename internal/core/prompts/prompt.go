// Package prompts tracks prompts a user submits while a task's agent is busy
// and cannot take new input. Prompts wait in a per-task FIFO queue until the
// agent is ready, or until the user cancels them.
package prompts

import (
	"context"
	"errors"
	"time"
)

// ErrEmptyPrompt is returned when enqueuing a prompt with no content.
var ErrEmptyPrompt = errors.New("prompt content is empty")

// Prompt is a user prompt waiting for the agent.
type Prompt struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists queued prompts. The queue reads everything once when it is
// opened and writes a task's full queue after every change.
type Store interface {
	// LoadAll returns every persisted queue keyed by task ID, each in FIFO order.
	LoadAll(ctx context.Context) (map[string][]Prompt, error)

	// Replace overwrites the persisted queue for a task. An empty slice
	// removes the task's queue.
	Replace(ctx context.Context, taskID string, prompts []Prompt) error
}
