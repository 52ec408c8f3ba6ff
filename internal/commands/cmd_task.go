package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/colonyops/taskdeck/internal/core/styles"
	"github.com/colonyops/taskdeck/internal/core/taskstate"
	"github.com/colonyops/taskdeck/internal/deck"
)

// TaskCmd groups the commands that change a single task: target and done.
type TaskCmd struct {
	flags *Flags
	app   *deck.App
}

// NewTaskCmd creates the task commands
func NewTaskCmd(flags *Flags, app *deck.App) *TaskCmd {
	return &TaskCmd{flags: flags, app: app}
}

// Register adds the target and done commands to the application
func (cmd *TaskCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands,
		&cli.Command{
			Name:      "target",
			Usage:     "Set the tmux pane queued prompts are typed into",
			UsageText: "taskdeck target <task-id> <pane>",
			Description: `Records the tmux target (session:window.pane) the agent for a task runs in.
Queued prompts are only delivered to tasks that have a target.`,
			ShellComplete: TaskIDCompleter(cmd.app, false),
			Action:        cmd.runTarget,
		},
		&cli.Command{
			Name:          "done",
			Usage:         "Mark a task as completed",
			UsageText:     "taskdeck done <task-id>",
			ShellComplete: TaskIDCompleter(cmd.app, false),
			Action:        cmd.runDone,
		},
	)

	return app
}

func (cmd *TaskCmd) runTarget(ctx context.Context, c *cli.Command) error {
	if c.Args().Len() != 2 {
		return fmt.Errorf("usage: taskdeck target <task-id> <pane>")
	}
	taskID, pane := c.Args().Get(0), c.Args().Get(1)

	if err := cmd.app.Tasks.SetTarget(ctx, taskID, pane); err != nil {
		return taskError(taskID, err)
	}

	_, _ = fmt.Fprintln(c.Root().Writer, styles.SuccessStyle.Render(fmt.Sprintf("%s %s → %s", styles.IconCompleted, taskID, pane)))
	return nil
}

func (cmd *TaskCmd) runDone(ctx context.Context, c *cli.Command) error {
	taskID := c.Args().First()
	if taskID == "" {
		return fmt.Errorf("task id is required")
	}

	if err := cmd.app.Tasks.Complete(ctx, taskID); err != nil {
		return taskError(taskID, err)
	}

	_, _ = fmt.Fprintln(c.Root().Writer, renderStatus(taskstate.StatusCompleted)+" "+taskID)
	return nil
}

func taskError(taskID string, err error) error {
	if errors.Is(err, taskstate.ErrTaskNotFound) {
		return fmt.Errorf("task %s not found", taskID)
	}
	return fmt.Errorf("task %s: %w", taskID, err)
}
