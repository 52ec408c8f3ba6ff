package logutils

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "taskdeck.log")

	l, closer, err := New("info", path)
	require.NoError(t, err)

	l.Debug().Msg("hidden")
	l.Info().Str("task_id", "t1").Msg("visible")
	closer()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "visible", entry["message"])
	assert.Equal(t, "t1", entry["task_id"])
	assert.Contains(t, entry, "time")
}

func TestNew_Appends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taskdeck.log")

	for range 2 {
		l, closer, err := New("debug", path)
		require.NoError(t, err)
		l.Info().Msg("line")
		closer()
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "\n"))
}

func TestNew_BadLevel(t *testing.T) {
	_, closer, err := New("loud", "")
	require.Error(t, err)
	closer()
}

func TestNew_Level(t *testing.T) {
	l, closer, err := New("warn", "")
	require.NoError(t, err)
	defer closer()
	assert.Equal(t, zerolog.WarnLevel, l.GetLevel())
}
