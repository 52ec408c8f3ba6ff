package taskstate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/colonyops/taskdeck/internal/core/todo"
	"github.com/colonyops/taskdeck/internal/core/transcript"
)

func todoWrite(id string, items ...todo.Item) transcript.Entry {
	return transcript.NewToolCall(id, transcript.TodoWriteTool{
		Input: transcript.TodoWriteInput{Todos: items},
	})
}

func TestTaskState_Todos(t *testing.T) {
	first := []todo.Item{
		{Content: "a", Status: todo.StatusPending},
		{Content: "b", Status: todo.StatusPending},
	}
	second := []todo.Item{
		{Content: "a", Status: todo.StatusCompleted},
		{Content: "b", Status: todo.StatusInProgress},
	}

	s := TaskState{Messages: []transcript.Entry{
		text("planning"),
		todoWrite("t1", first...),
		text("working"),
		todoWrite("t2", second...),
		text("still working"),
	}}

	assert.Equal(t, second, s.Todos())
	assert.Equal(t, first, s.PreviousTodos())
	assert.Equal(t, []int{0, 1}, todo.Changed(s.PreviousTodos(), s.Todos()))
}

func TestTaskState_TodosEmpty(t *testing.T) {
	s := Default("x")
	assert.Nil(t, s.Todos())
	assert.Nil(t, s.PreviousTodos())

	s.Messages = []transcript.Entry{todoWrite("t1", todo.Item{Content: "only"})}
	assert.Len(t, s.Todos(), 1)
	assert.Nil(t, s.PreviousTodos())
}

func TestStatus_Valid(t *testing.T) {
	for _, s := range []Status{StatusWaiting, StatusRunning, StatusCompleted, StatusError} {
		assert.True(t, s.Valid(), s)
	}
	assert.False(t, Status("paused").Valid())
	assert.False(t, Status("").Valid())
}

func TestDefault(t *testing.T) {
	s := Default("t1")
	assert.Equal(t, "t1", s.TaskID)
	assert.Equal(t, StatusWaiting, s.Status)
	assert.Empty(t, s.Messages)
	assert.False(t, s.Loaded)
	assert.False(t, s.NeedsInput())
}
