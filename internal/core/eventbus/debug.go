package eventbus

import (
	"fmt"

	"github.com/rs/zerolog"
)

// RegisterDebugLogger logs every publish at debug level, drops as warnings
// and subscriber panics as errors. Each line carries the task and prompt the
// payload refers to.
func RegisterDebugLogger(bus *EventBus, logger zerolog.Logger) {
	bus.OnPublish(func(event Event, payload any) {
		logger.Debug().Str("event", string(event)).Func(payloadFields(payload)).Msg("event fired")
	})

	bus.OnDrop(func(event Event, payload any) {
		logger.Warn().Str("event", string(event)).Func(payloadFields(payload)).Msg("event dropped: buffer full")
	})

	bus.OnPanic(func(event Event, payload any, recovered any) {
		logger.Error().
			Str("event", string(event)).
			Func(payloadFields(payload)).
			Str("panic", fmt.Sprint(recovered)).
			Msg("subscriber panicked")
	})
}

func payloadFields(payload any) func(*zerolog.Event) {
	return func(e *zerolog.Event) {
		switch p := payload.(type) {
		case TaskDeltaPayload:
			e.Str("task_id", p.TaskID)
			if p.Delta != nil {
				e.Str("kind", string(p.Delta.Kind()))
			}
		case PromptQueuedPayload:
			e.Str("task_id", p.Prompt.TaskID).Str("prompt_id", p.Prompt.ID)
		case PromptDispatchedPayload:
			e.Str("task_id", p.Prompt.TaskID).Str("prompt_id", p.Prompt.ID)
		case PromptCancelledPayload:
			e.Str("task_id", p.TaskID).Str("prompt_id", p.PromptID)
		case TasksPrunedPayload:
			e.Int("tasks", len(p.TaskIDs))
		case NotificationPublishedPayload:
			e.Str("task_id", p.TaskID).Str("level", string(p.Level))
		}
	}
}
