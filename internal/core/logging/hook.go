package logging

import (
	"context"

	"github.com/rs/zerolog"
)

// ContextHook copies task_id and prompt_id from an event's context onto the
// event.
type ContextHook struct{}

func (ContextHook) Run(e *zerolog.Event, _ zerolog.Level, _ string) {
	ctx := e.GetCtx()
	if ctx == nil || ctx == context.Background() {
		return
	}

	if id := TaskID(ctx); id != "" {
		e.Str(string(taskIDKey), id)
	}
	if id := PromptID(ctx); id != "" {
		e.Str(string(promptIDKey), id)
	}
}
