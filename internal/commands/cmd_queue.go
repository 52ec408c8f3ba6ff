package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/colonyops/taskdeck/internal/deck"
	"github.com/colonyops/taskdeck/pkg/iojson"
)

type QueueCmd struct {
	flags *Flags
	app   *deck.App

	// add flags
	addFile string

	// next flags
	nextSend bool

	// ls flags
	jsonOutput bool
}

// NewQueueCmd creates a new queue command.
func NewQueueCmd(flags *Flags, app *deck.App) *QueueCmd {
	return &QueueCmd{flags: flags, app: app}
}

// Register adds the queue command to the application.
func (cmd *QueueCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "queue",
		Usage: "Queue prompts for a busy agent",
		Description: `Prompts queued for a task wait until its agent finishes the current
turn, then go out one at a time, oldest first, to the task's tmux pane
(see 'taskdeck target').`,
		Commands: []*cli.Command{
			cmd.addCmd(),
			cmd.cancelCmd(),
			cmd.nextCmd(),
			cmd.lsCmd(),
		},
	})

	return app
}

func (cmd *QueueCmd) addCmd() *cli.Command {
	return &cli.Command{
		Name:      "add",
		Usage:     "Queue a prompt",
		UsageText: "taskdeck queue add <task-id> [prompt...]",
		Description: `The prompt is taken from the arguments, from --file, or from stdin
when it is not a terminal.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "file",
				Aliases:     []string{"f"},
				Usage:       "read the prompt from a file",
				Destination: &cmd.addFile,
			},
		},
		ShellComplete: TaskIDCompleter(cmd.app, false),
		Action:        func(ctx context.Context, c *cli.Command) error {
			taskID := c.Args().First()
			if taskID == "" {
				return fmt.Errorf("task id is required")
			}

			content, err := readPrompt(c.Args().Tail(), cmd.addFile)
			if err != nil {
				return err
			}

			p, err := cmd.app.Tasks.Enqueue(ctx, taskID, content)
			if err != nil {
				return fmt.Errorf("queue prompt: %w", err)
			}
			_, _ = fmt.Fprintln(c.Root().Writer, p.ID)
			return nil
		},
	}
}

func (cmd *QueueCmd) cancelCmd() *cli.Command {
	return &cli.Command{
		Name:          "cancel",
		Usage:         "Remove a queued prompt",
		UsageText:     "taskdeck queue cancel <task-id> <prompt-id>",
		ShellComplete: TaskIDCompleter(cmd.app, false),
		Action:        func(ctx context.Context, c *cli.Command) error {
			taskID, promptID := c.Args().Get(0), c.Args().Get(1)
			if taskID == "" || promptID == "" {
				return fmt.Errorf("task id and prompt id are required")
			}
			if !cmd.app.Tasks.Cancel(taskID, promptID) {
				fmt.Fprintf(os.Stderr, "prompt %s is not queued\n", promptID)
			}
			return nil
		},
	}
}

func (cmd *QueueCmd) nextCmd() *cli.Command {
	return &cli.Command{
		Name:      "next",
		Usage:     "Take the oldest queued prompt",
		UsageText: "taskdeck queue next <task-id> [--send]",
		Description: `Removes the oldest queued prompt and prints it. With --send the prompt
is delivered to the task's tmux pane instead, provided the agent is waiting.`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "send",
				Usage:       "deliver the prompt to the agent",
				Destination: &cmd.nextSend,
			},
		},
		ShellComplete: TaskIDCompleter(cmd.app, false),
		Action:        func(ctx context.Context, c *cli.Command) error {
			taskID := c.Args().First()
			if taskID == "" {
				return fmt.Errorf("task id is required")
			}

			if cmd.nextSend {
				p, ok, err := cmd.app.Tasks.Dispatch(ctx, taskID)
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintf(os.Stderr, "nothing sent: queue empty or agent busy\n")
					return nil
				}
				_, _ = fmt.Fprintln(c.Root().Writer, p.ID)
				return nil
			}

			p, ok := cmd.app.Tasks.DequeueNext(taskID)
			if !ok {
				fmt.Fprintf(os.Stderr, "queue is empty\n")
				return nil
			}
			_, _ = fmt.Fprintln(c.Root().Writer, p.Content)
			return nil
		},
	}
}

func (cmd *QueueCmd) lsCmd() *cli.Command {
	return &cli.Command{
		Name:      "ls",
		Usage:     "List queued prompts",
		UsageText: "taskdeck queue ls <task-id> [--json]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "output as JSON lines",
				Destination: &cmd.jsonOutput,
			},
		},
		ShellComplete: TaskIDCompleter(cmd.app, false),
		Action:        func(ctx context.Context, c *cli.Command) error {
			taskID := c.Args().First()
			if taskID == "" {
				return fmt.Errorf("task id is required")
			}

			out := c.Root().Writer
			for _, p := range cmd.app.Tasks.Queued(taskID) {
				if cmd.jsonOutput {
					if err := iojson.WriteLine(out, p); err != nil {
						return err
					}
					continue
				}
				_, _ = fmt.Fprintf(out, "%s\t%s\n", p.ID, truncate(firstLine(p.Content), maxTextWidth))
			}
			return nil
		},
	}
}

// readPrompt returns the prompt from args, a file, or piped stdin.
func readPrompt(args []string, file string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}

	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("read prompt file: %w", err)
		}
		return string(data), nil
	}

	if term.IsTerminal(int(os.Stdin.Fd())) {
		return "", errors.New("no prompt provided; pass it as arguments, use -f, or pipe it on stdin")
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(data), nil
}
