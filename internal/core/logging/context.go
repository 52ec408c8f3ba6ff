package logging

import "context"

type contextKey string

const (
	taskIDKey   contextKey = "task_id"
	promptIDKey contextKey = "prompt_id"
)

// WithTaskID tags ctx with the task a log line belongs to.
func WithTaskID(ctx context.Context, taskID string) context.Context {
	return context.WithValue(ctx, taskIDKey, taskID)
}

// WithPromptID tags ctx with a queued prompt ID.
func WithPromptID(ctx context.Context, promptID string) context.Context {
	return context.WithValue(ctx, promptIDKey, promptID)
}

// TaskID returns the task ID stored in ctx, or "".
func TaskID(ctx context.Context) string {
	id, _ := ctx.Value(taskIDKey).(string)
	return id
}

// PromptID returns the prompt ID stored in ctx, or "".
func PromptID(ctx context.Context) string {
	id, _ := ctx.Value(promptIDKey).(string)
	return id
}
