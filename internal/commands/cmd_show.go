package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/colonyops/taskdeck/internal/core/prompts"
	"github.com/colonyops/taskdeck/internal/core/styles"
	"github.com/colonyops/taskdeck/internal/core/todo"
	"github.com/colonyops/taskdeck/internal/core/transcript"
	"github.com/colonyops/taskdeck/internal/deck"
	"github.com/colonyops/taskdeck/pkg/iojson"
)

type ShowCmd struct {
	flags *Flags
	app   *deck.App

	// flags
	limit      int
	jsonOutput bool
	timeout    time.Duration
}

// NewShowCmd creates a new show command
func NewShowCmd(flags *Flags, app *deck.App) *ShowCmd {
	return &ShowCmd{flags: flags, app: app}
}

// Register adds the show command to the application
func (cmd *ShowCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "show",
		Usage:     "Show a task's conversation, todos and queued prompts",
		UsageText: "taskdeck show <task-id> [--limit N] [--json]",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:        "limit",
				Aliases:     []string{"n"},
				Usage:       "show only the last N entries (0 for all)",
				Value:       30,
				Destination: &cmd.limit,
			},
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "output as JSON",
				Destination: &cmd.jsonOutput,
			},
			&cli.DurationFlag{
				Name:        "timeout",
				Usage:       "how long to wait for the task to load",
				Value:       10 * time.Second,
				Destination: &cmd.timeout,
			},
		},
		ShellComplete: TaskIDCompleter(cmd.app, true),
		Action:        cmd.run,
	})

	return app
}

// taskView is the JSON output format for taskdeck show --json.
type taskView struct {
	ID           string             `json:"id"`
	Status       string             `json:"status"`
	Error        string             `json:"error,omitempty"`
	Messages     []transcript.Entry `json:"messages"`
	Todos        []todo.Item        `json:"todos,omitempty"`
	ChangedTodos []int              `json:"changed_todos,omitempty"`
	Queued       []prompts.Prompt   `json:"queued,omitempty"`
}

func (cmd *ShowCmd) run(ctx context.Context, c *cli.Command) error {
	taskID := c.Args().First()
	if taskID == "" {
		return fmt.Errorf("task id is required")
	}

	ctx, cancel := context.WithTimeout(ctx, cmd.timeout)
	defer cancel()

	state, err := cmd.app.Tasks.Await(ctx, taskID)
	if err != nil {
		return fmt.Errorf("load task %s: %w", taskID, err)
	}
	queued := cmd.app.Tasks.Queued(taskID)
	out := c.Root().Writer

	if cmd.jsonOutput {
		view := taskView{
			ID:       state.TaskID,
			Status:   string(state.Status),
			Error:    state.Error,
			Messages: state.Messages,
			Todos:    state.Todos(),
			Queued:   queued,
		}
		if prev := state.PreviousTodos(); prev != nil {
			view.ChangedTodos = todo.Changed(prev, view.Todos)
		}
		return iojson.Write(out, view)
	}

	_, _ = fmt.Fprint(out, renderState(state, cmd.limit))
	if len(queued) > 0 {
		_, _ = fmt.Fprintln(out, styles.HeaderStyle.Render(fmt.Sprintf("queued prompts (%d)", len(queued))))
		for _, p := range queued {
			_, _ = fmt.Fprintf(out, "  %s  %s\n", styles.MutedStyle.Render(p.ID), truncate(firstLine(p.Content), maxTextWidth))
		}
	}
	return nil
}
