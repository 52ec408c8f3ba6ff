package transcript

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colonyops/taskdeck/internal/core/todo"
)

func TestDecodeToolUse(t *testing.T) {
	t.Run("known tool", func(t *testing.T) {
		tool, err := DecodeToolUse("Read", json.RawMessage(`{"file_path":"/src/app.ts","limit":20}`))
		require.NoError(t, err)

		read, ok := tool.(ReadTool)
		require.True(t, ok, "expected ReadTool, got %T", tool)
		assert.Equal(t, "/src/app.ts", read.Input.FilePath)
		assert.Equal(t, 20, read.Input.Limit)
		assert.Nil(t, read.Result())
	})

	t.Run("todo list", func(t *testing.T) {
		raw := json.RawMessage(`{"todos":[{"content":"a","status":"in_progress","activeForm":"Doing a"}]}`)
		tool, err := DecodeToolUse("TodoWrite", raw)
		require.NoError(t, err)

		tw := tool.(TodoWriteTool)
		require.Len(t, tw.Input.Todos, 1)
		assert.Equal(t, todo.StatusInProgress, tw.Input.Todos[0].Status)
	})

	t.Run("unknown tool keeps raw input", func(t *testing.T) {
		raw := json.RawMessage(`{"q":1}`)
		tool, err := DecodeToolUse("mcp__x__y", raw)
		require.NoError(t, err)

		u, ok := tool.(UnknownTool)
		require.True(t, ok)
		assert.Equal(t, ToolName("mcp__x__y"), u.Name())
		assert.JSONEq(t, `{"q":1}`, string(u.Input))
	})

	t.Run("malformed input", func(t *testing.T) {
		_, err := DecodeToolUse("Bash", json.RawMessage(`{"command":42}`))
		assert.Error(t, err)
	})
}

func TestEntry_WithResult(t *testing.T) {
	e := NewToolCall("toolu_1", BashTool{Input: BashInput{Command: "ls"}})
	assert.True(t, e.Pending())

	done := e.WithResult(Result{Content: "a\nb"})

	assert.True(t, e.Pending(), "original entry must not change")
	assert.False(t, done.Pending())
	require.NotNil(t, done.Tool.Result())
	assert.Equal(t, "a\nb", done.Tool.Result().Content)
	assert.Equal(t, ToolBash, done.Tool.Name())

	text := NewText(RoleAssistant, "hi")
	assert.Equal(t, text, text.WithResult(Result{Content: "x"}))
}

func TestEntry_JSON(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	in := []Entry{
		{Index: 0, Role: RoleUser, Text: "fix the build", Timestamp: ts},
		{
			Index:     1,
			Model:     "claude-sonnet",
			Role:      RoleAssistant,
			ToolUseID: "toolu_1",
			Tool: EditTool{
				Input:  EditInput{FilePath: "main.go", OldString: "a", NewString: "b"},
				Output: &Result{Content: "ok"},
			},
		},
		{Index: 2, Role: RoleAssistant, ToolUseID: "toolu_2", Tool: UnknownTool{ToolName: "Mystery", Input: json.RawMessage(`{"k":"v"}`)}},
	}

	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out []Entry
	require.NoError(t, json.Unmarshal(data, &out))
	require.Len(t, out, 3)

	assert.Equal(t, RoleUser, out[0].Role)
	assert.Equal(t, "fix the build", out[0].Text)
	assert.True(t, ts.Equal(out[0].Timestamp))
	assert.Nil(t, out[0].Tool)

	assert.Equal(t, in[1], out[1])

	u, ok := out[2].Tool.(UnknownTool)
	require.True(t, ok)
	assert.JSONEq(t, `{"k":"v"}`, string(u.Input))
	assert.Nil(t, u.Result())
}

func TestEntry_UnmarshalMismatchedInputDegrades(t *testing.T) {
	var e Entry
	err := json.Unmarshal([]byte(`{"index":3,"tool":{"name":"Read","input":{"file_path":7}}}`), &e)
	require.NoError(t, err)

	u, ok := e.Tool.(UnknownTool)
	require.True(t, ok, "expected UnknownTool, got %T", e.Tool)
	assert.Equal(t, ToolRead, u.Name())
}
