package claude

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colonyops/taskdeck/internal/core/taskstate"
)

const sessionUUID = "a1b2c3d4-1234-5678-90ab-cdef12345678"

func jsonl(lines ...string) string {
	return strings.Join(lines, "\n") + "\n"
}

func TestSessionID(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/p/-Users-me-code/" + sessionUUID + ".jsonl", sessionUUID},
		{sessionUUID + ".jsonl", sessionUUID},
		{"/p/agent-1234.jsonl", ""},
		{"/p/" + sessionUUID + ".json", ""},
		{"/p/notes.jsonl", ""},
		{"/p/urn:uuid:" + sessionUUID + ".jsonl", ""},
		{"/p/a1b2c3d41234567890abcdef12345678.jsonl", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SessionID(tt.path), tt.path)
	}
}

func TestProjectDir(t *testing.T) {
	got := ProjectDir("/home/me/.claude/projects", "/does/not/exist/my app")
	assert.Equal(t, "/home/me/.claude/projects/-does-not-exist-my-app", got)
}

func TestReadTranscript(t *testing.T) {
	data := jsonl(
		lineUserPrompt,
		lineAssistant,
		`{"type":"user",`,
		lineToolResult,
		lineEndTurn,
	)

	tr, err := ReadTranscript(strings.NewReader(data), "t1")
	require.NoError(t, err)

	assert.Equal(t, 1, tr.Skipped)
	assert.Equal(t, "t1", tr.State.TaskID)
	assert.Equal(t, taskstate.StatusWaiting, tr.State.Status)
	require.Len(t, tr.State.Messages, 5)

	for i, m := range tr.State.Messages {
		assert.Equal(t, i, m.Index)
	}
	call := tr.State.Messages[3]
	require.True(t, call.IsTool())
	assert.False(t, call.Pending(), "late result should be attached")
	assert.Equal(t, "Done.", tr.State.Messages[4].Text)
	assert.Equal(t, 2, tr.Analytics.TotalTurns)
}

func TestReadTranscript_PartialLastLine(t *testing.T) {
	data := lineUserPrompt + "\n" + lineEndTurn // no trailing newline

	tr, err := ReadTranscript(strings.NewReader(data), "t1")
	require.NoError(t, err)
	assert.Len(t, tr.State.Messages, 2)
	assert.Equal(t, taskstate.StatusWaiting, tr.State.Status)
}

func TestReadTranscriptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), sessionUUID+".jsonl")
	require.NoError(t, os.WriteFile(path, []byte(jsonl(lineUserPrompt)), 0o644))

	tr, err := ReadTranscriptFile(path)
	require.NoError(t, err)
	assert.Equal(t, sessionUUID, tr.State.TaskID)
	assert.Len(t, tr.State.Messages, 1)

	_, err = ReadTranscriptFile(filepath.Join(t.TempDir(), "missing.jsonl"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
