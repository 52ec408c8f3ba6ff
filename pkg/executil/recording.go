package executil

import (
	"context"
	"slices"
	"sync"
)

// RecordedCommand captures a command that was executed.
type RecordedCommand struct {
	Cmd  string
	Args []string
}

// RecordingExecutor captures commands for testing.
// Configure Outputs and Errors maps to control return values.
type RecordingExecutor struct {
	mu       sync.Mutex
	commands []RecordedCommand

	// Outputs and Errors are keyed by the first argument (the subcommand),
	// falling back to the command name.
	Outputs map[string][]byte
	Errors  map[string]error
}

// Run records the command and returns configured output/error.
func (e *RecordingExecutor) Run(_ context.Context, cmd string, args ...string) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.commands = append(e.commands, RecordedCommand{Cmd: cmd, Args: slices.Clone(args)})

	key := cmd
	if len(args) > 0 {
		if _, ok := e.Outputs[args[0]]; ok {
			key = args[0]
		}
		if _, ok := e.Errors[args[0]]; ok {
			key = args[0]
		}
	}
	return e.Outputs[key], e.Errors[key]
}

// Commands returns a copy of the recorded commands.
func (e *RecordingExecutor) Commands() []RecordedCommand {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.commands)
}

// Reset clears recorded commands.
func (e *RecordingExecutor) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.commands = nil
}
