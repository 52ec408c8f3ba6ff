// Package eventbus provides a typed publish/subscribe event bus for
// cross-component communication within taskdeck.
package eventbus

import (
	"github.com/colonyops/taskdeck/internal/core/prompts"
	"github.com/colonyops/taskdeck/internal/core/taskstate"
)

// Event names a kind of event carried by the bus.
type Event string

const (
	// Keep list sorted A-Z
	EventNotificationPublished Event = "notification.published"
	EventPromptCancelled       Event = "prompt.cancelled"
	EventPromptDispatched      Event = "prompt.dispatched"
	EventPromptQueued          Event = "prompt.queued"
	EventTaskDelta             Event = "task.delta"
	EventTasksPruned           Event = "tasks.pruned"
)

// TaskDeltaPayload is emitted for every live update to a task's session.
type TaskDeltaPayload struct {
	TaskID string
	Delta  taskstate.Delta
}

// PromptQueuedPayload is emitted when a prompt is added to a task's queue.
type PromptQueuedPayload struct {
	Prompt prompts.Prompt
}

// PromptCancelledPayload is emitted when a queued prompt is removed before
// it was sent.
type PromptCancelledPayload struct {
	TaskID   string
	PromptID string
}

// PromptDispatchedPayload is emitted after a queued prompt was delivered to
// the agent.
type PromptDispatchedPayload struct {
	Prompt prompts.Prompt
}

// TasksPrunedPayload is emitted when the retention sweep removes tasks.
type TasksPrunedPayload struct {
	TaskIDs []string
}

// NotificationPublishedPayload is a user-facing message derived from other
// events.
type NotificationPublishedPayload struct {
	TaskID  string
	Level   Level
	Message string
}
