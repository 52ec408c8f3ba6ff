package eventbus

import (
	"fmt"

	"github.com/colonyops/taskdeck/internal/core/taskstate"
	"github.com/colonyops/taskdeck/internal/core/transcript"
)

// Level is the severity of a notification.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// NotificationRouter maps domain events to user-facing notifications.
type NotificationRouter struct {
	bus *EventBus
}

// NewNotificationRouter constructs a router for event-to-notification mappings.
func NewNotificationRouter(bus *EventBus) *NotificationRouter {
	return &NotificationRouter{bus: bus}
}

// Register subscribes all supported event mappings.
func (r *NotificationRouter) Register() {
	if r == nil || r.bus == nil {
		return
	}

	r.bus.SubscribeTaskDelta(func(p TaskDeltaPayload) {
		switch d := p.Delta.(type) {
		case taskstate.PermissionRequested:
			what := "a tool"
			if d.Request.Tool != nil {
				what = transcript.Summarize(d.Request.Tool)
			}
			r.notifyf(p.TaskID, LevelWarning, "task %s needs permission: %s", p.TaskID, what)
		case taskstate.QuestionAsked:
			r.notifyf(p.TaskID, LevelWarning, "task %s asked %d question(s)", p.TaskID, len(d.Request.Questions))
		case taskstate.ErrorOccurred:
			r.notifyf(p.TaskID, LevelError, "task %s failed: %s", p.TaskID, d.Message)
		case taskstate.StatusChanged:
			if d.Status == taskstate.StatusCompleted {
				r.notifyf(p.TaskID, LevelInfo, "task %s completed", p.TaskID)
			}
		}
	})

	r.bus.SubscribePromptDispatched(func(p PromptDispatchedPayload) {
		r.notifyf(p.Prompt.TaskID, LevelInfo, "sent queued prompt %s to task %s", p.Prompt.ID, p.Prompt.TaskID)
	})

	r.bus.SubscribeTasksPruned(func(p TasksPrunedPayload) {
		if len(p.TaskIDs) == 0 {
			return
		}
		r.notifyf("", LevelInfo, "pruned %d stale task(s)", len(p.TaskIDs))
	})
}

func (r *NotificationRouter) notifyf(taskID string, level Level, format string, args ...any) {
	r.bus.PublishNotificationPublished(NotificationPublishedPayload{
		TaskID:  taskID,
		Level:   level,
		Message: fmt.Sprintf(format, args...),
	})
}
