package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/colonyops/taskdeck/internal/deck"
	"github.com/colonyops/taskdeck/pkg/iojson"
)

type LsCmd struct {
	flags *Flags
	app   *deck.App

	// flags
	jsonOutput bool
}

// NewLsCmd creates a new ls command
func NewLsCmd(flags *Flags, app *deck.App) *LsCmd {
	return &LsCmd{flags: flags, app: app}
}

// Register adds the ls command to the application
func (cmd *LsCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "ls",
		Usage:     "List known tasks",
		UsageText: "taskdeck ls [--json]",
		Description: `Displays a table of tasks with their status, queued prompt count,
last update and tmux target, most recently updated first.`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "output as JSON lines",
				Destination: &cmd.jsonOutput,
			},
		},
		Action: cmd.run,
	})

	return app
}

// taskInfo is the JSON output format for taskdeck ls --json.
type taskInfo struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	Queued    int       `json:"queued"`
	Target    string    `json:"target,omitempty"`
	Source    string    `json:"source,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (cmd *LsCmd) run(ctx context.Context, c *cli.Command) error {
	tasks, err := cmd.app.Tasks.List(ctx)
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}

	if len(tasks) == 0 {
		if !cmd.jsonOutput {
			fmt.Fprintf(os.Stderr, "No tasks found. Run 'taskdeck watch' to import transcripts.\n")
		}
		return nil
	}

	out := c.Root().Writer

	if cmd.jsonOutput {
		for _, t := range tasks {
			info := taskInfo{
				ID:        t.ID,
				Status:    string(t.Status),
				Error:     t.Error,
				Queued:    len(cmd.app.Tasks.Queued(t.ID)),
				Target:    t.TmuxTarget,
				Source:    t.SourcePath,
				UpdatedAt: t.UpdatedAt,
			}
			if err := iojson.WriteLine(out, info); err != nil {
				return fmt.Errorf("encode task: %w", err)
			}
		}
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTATUS\tQUEUED\tUPDATED\tTARGET")
	for _, t := range tasks {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			t.ID, t.Status, len(cmd.app.Tasks.Queued(t.ID)), t.UpdatedAt.Local().Format(time.DateTime), t.TmuxTarget)
	}
	return w.Flush()
}
