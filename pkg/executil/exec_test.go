package executil

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRealExecutor_Run(t *testing.T) {
	ctx := context.Background()
	var e RealExecutor

	t.Run("stdout", func(t *testing.T) {
		out, err := e.Run(ctx, "echo", "hello")
		require.NoError(t, err)
		assert.Equal(t, "hello\n", string(out))
	})

	t.Run("command not found", func(t *testing.T) {
		_, err := e.Run(ctx, "nonexistent-command-12345")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "exec nonexistent-command-12345")
	})

	t.Run("exit error is preserved", func(t *testing.T) {
		_, err := e.Run(ctx, "sh", "-c", "echo 'bad things' >&2; exit 3")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bad things")

		var exitErr *exec.ExitError
		require.ErrorAs(t, err, &exitErr)
		assert.Equal(t, 3, exitErr.ExitCode())
	})

	t.Run("stderr is capped", func(t *testing.T) {
		_, err := e.Run(ctx, "sh", "-c", "printf '%s' \""+strings.Repeat("A", maxOutputLen*2)+"\" >&2; exit 1")
		require.Error(t, err)
		assert.Equal(t, maxOutputLen, strings.Count(err.Error(), "A"))
	})
}

func TestRecordingExecutor(t *testing.T) {
	ctx := context.Background()

	t.Run("records commands", func(t *testing.T) {
		e := &RecordingExecutor{}
		_, _ = e.Run(ctx, "tmux", "send-keys", "-t", "a")
		_, _ = e.Run(ctx, "tmux", "has-session", "-t", "a")

		cmds := e.Commands()
		require.Len(t, cmds, 2)
		assert.Equal(t, "tmux", cmds[0].Cmd)
		assert.Equal(t, []string{"send-keys", "-t", "a"}, cmds[0].Args)

		e.Reset()
		assert.Empty(t, e.Commands())
	})

	t.Run("keyed by subcommand", func(t *testing.T) {
		boom := errors.New("no session")
		e := &RecordingExecutor{
			Outputs: map[string][]byte{"display-message": []byte("%1\n")},
			Errors:  map[string]error{"has-session": boom},
		}

		out, err := e.Run(ctx, "tmux", "display-message", "-p")
		require.NoError(t, err)
		assert.Equal(t, "%1\n", string(out))

		_, err = e.Run(ctx, "tmux", "has-session", "-t", "x")
		assert.ErrorIs(t, err, boom)
	})

	t.Run("keyed by command", func(t *testing.T) {
		e := &RecordingExecutor{Errors: map[string]error{"tmux": errors.New("down")}}
		_, err := e.Run(ctx, "tmux", "anything")
		assert.Error(t, err)
	})
}
