package eventbus_test

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/colonyops/taskdeck/internal/core/eventbus"
	"github.com/colonyops/taskdeck/internal/core/eventbus/testbus"
	"github.com/colonyops/taskdeck/internal/core/prompts"
	"github.com/colonyops/taskdeck/internal/core/taskstate"
)

func TestRegisterDebugLogger(t *testing.T) {
	tb := testbus.New(t)

	var buf bytes.Buffer
	eventbus.RegisterDebugLogger(tb.EventBus, zerolog.New(&buf).Level(zerolog.DebugLevel))

	tb.PublishPromptQueued(eventbus.PromptQueuedPayload{Prompt: prompts.Prompt{ID: "p1", TaskID: "t1"}})
	tb.PublishTaskDelta(eventbus.TaskDeltaPayload{
		TaskID: "t1",
		Delta:  taskstate.StatusChanged{Status: taskstate.StatusRunning},
	})

	tb.AssertPublished(t, eventbus.EventTaskDelta)
	assert.Contains(t, buf.String(), string(eventbus.EventPromptQueued))
	assert.Contains(t, buf.String(), "event fired")

	out := buf.String()
	assert.Contains(t, out, `"task_id":"t1"`)
	assert.Contains(t, out, `"prompt_id":"p1"`)
	assert.Contains(t, out, `"kind":"status_changed"`)
}

func TestRegisterDebugLogger_DropCarriesTask(t *testing.T) {
	bus := eventbus.New(1)

	var buf bytes.Buffer
	eventbus.RegisterDebugLogger(bus, zerolog.New(&buf).Level(zerolog.DebugLevel))

	bus.PublishTasksPruned(eventbus.TasksPrunedPayload{TaskIDs: []string{"a", "b"}})
	bus.PublishTaskDelta(eventbus.TaskDeltaPayload{
		TaskID: "t9",
		Delta:  taskstate.ErrorOccurred{Message: "overloaded"},
	})

	out := buf.String()
	assert.Contains(t, out, `"tasks":2`)
	assert.Contains(t, out, "event dropped: buffer full")
	assert.Contains(t, out, `"task_id":"t9"`)
	assert.Contains(t, out, `"kind":"error_occurred"`)
}
