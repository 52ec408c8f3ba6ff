package eventbus_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colonyops/taskdeck/internal/core/eventbus"
	"github.com/colonyops/taskdeck/internal/core/eventbus/testbus"
	"github.com/colonyops/taskdeck/internal/core/prompts"
	"github.com/colonyops/taskdeck/internal/core/taskstate"
	"github.com/colonyops/taskdeck/internal/core/transcript"
)

func latestNotificationPayload(tb *testbus.Bus, t *testing.T) eventbus.NotificationPublishedPayload {
	t.Helper()
	tb.AssertPublished(t, eventbus.EventNotificationPublished)

	payloads := testbus.Payloads[eventbus.NotificationPublishedPayload](tb, eventbus.EventNotificationPublished)
	require.NotEmpty(t, payloads)
	return payloads[len(payloads)-1]
}

func publishDelta(tb *testbus.Bus, taskID string, d taskstate.Delta) {
	tb.PublishTaskDelta(eventbus.TaskDeltaPayload{TaskID: taskID, Delta: d})
}

func TestNotificationRouter_PermissionRequested(t *testing.T) {
	tb := testbus.New(t)
	eventbus.NewNotificationRouter(tb.EventBus).Register()

	publishDelta(tb, "task-1", taskstate.PermissionRequested{Request: taskstate.PermissionRequest{
		ID:   "perm-1",
		Tool: transcript.BashTool{Input: transcript.BashInput{Command: "rm -rf build"}},
	}})
	p := latestNotificationPayload(tb, t)

	assert.Equal(t, eventbus.LevelWarning, p.Level)
	assert.Equal(t, "task-1", p.TaskID)
	assert.Contains(t, p.Message, "Running `rm -rf build`")
}

func TestNotificationRouter_QuestionAsked(t *testing.T) {
	tb := testbus.New(t)
	eventbus.NewNotificationRouter(tb.EventBus).Register()

	publishDelta(tb, "task-2", taskstate.QuestionAsked{Request: taskstate.QuestionRequest{
		ID:        "q-1",
		Questions: []transcript.Question{{Question: "Which database?"}},
	}})
	p := latestNotificationPayload(tb, t)

	assert.Equal(t, eventbus.LevelWarning, p.Level)
	assert.Contains(t, p.Message, "1 question")
}

func TestNotificationRouter_ErrorOccurred(t *testing.T) {
	tb := testbus.New(t)
	eventbus.NewNotificationRouter(tb.EventBus).Register()

	publishDelta(tb, "task-3", taskstate.ErrorOccurred{Message: "rate limited"})
	p := latestNotificationPayload(tb, t)

	assert.Equal(t, eventbus.LevelError, p.Level)
	assert.Contains(t, p.Message, "rate limited")
}

func TestNotificationRouter_Completed(t *testing.T) {
	tb := testbus.New(t)
	eventbus.NewNotificationRouter(tb.EventBus).Register()

	publishDelta(tb, "task-4", taskstate.StatusChanged{Status: taskstate.StatusCompleted})
	p := latestNotificationPayload(tb, t)

	assert.Equal(t, eventbus.LevelInfo, p.Level)
	assert.Contains(t, p.Message, "task-4 completed")
}

func TestNotificationRouter_PromptDispatched(t *testing.T) {
	tb := testbus.New(t)
	eventbus.NewNotificationRouter(tb.EventBus).Register()

	tb.PublishPromptDispatched(eventbus.PromptDispatchedPayload{Prompt: prompts.Prompt{ID: "p-9", TaskID: "task-5"}})
	p := latestNotificationPayload(tb, t)

	assert.Equal(t, eventbus.LevelInfo, p.Level)
	assert.Contains(t, p.Message, "p-9")
}

func TestNotificationRouter_StatusRunning_doesNotPublish(t *testing.T) {
	tb := testbus.New(t)
	eventbus.NewNotificationRouter(tb.EventBus).Register()

	publishDelta(tb, "task-6", taskstate.StatusChanged{Status: taskstate.StatusRunning})
	tb.AssertNotPublished(t, eventbus.EventNotificationPublished, 100*time.Millisecond)
}

func TestNotificationRouter_NewEntry_doesNotPublish(t *testing.T) {
	tb := testbus.New(t)
	eventbus.NewNotificationRouter(tb.EventBus).Register()

	publishDelta(tb, "task-7", taskstate.NewEntry{Entry: transcript.NewText(transcript.RoleAssistant, "hi")})
	tb.AssertNotPublished(t, eventbus.EventNotificationPublished, 100*time.Millisecond)
}

func TestNotificationRouter_EmptyPrune_doesNotPublish(t *testing.T) {
	tb := testbus.New(t)
	eventbus.NewNotificationRouter(tb.EventBus).Register()

	tb.PublishTasksPruned(eventbus.TasksPrunedPayload{})
	tb.AssertNotPublished(t, eventbus.EventNotificationPublished, 100*time.Millisecond)
}
