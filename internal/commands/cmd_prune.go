package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/colonyops/taskdeck/internal/core/styles"
	"github.com/colonyops/taskdeck/internal/deck"
	"github.com/colonyops/taskdeck/internal/deck/sweep"
)

type PruneCmd struct {
	flags *Flags
	app   *deck.App

	// flags
	maxAge time.Duration
}

// NewPruneCmd creates a new prune command
func NewPruneCmd(flags *Flags, app *deck.App) *PruneCmd {
	return &PruneCmd{flags: flags, app: app}
}

// Register adds the prune command to the application
func (cmd *PruneCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "prune",
		Usage:     "Remove finished tasks past the retention window",
		UsageText: "taskdeck prune [--max-age DURATION]",
		Description: `Deletes completed and errored tasks that have not been updated within
the retention window, along with their entries and read offsets.

Waiting and running tasks are not affected. Defaults to retention.max_age
from the config file.`,
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:        "max-age",
				Usage:       "prune finished tasks idle longer than this",
				Destination: &cmd.maxAge,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *PruneCmd) run(ctx context.Context, c *cli.Command) error {
	maxAge := cmd.maxAge
	if maxAge == 0 {
		maxAge = cmd.app.Config.Retention.MaxAge
	}
	if maxAge <= 0 {
		return fmt.Errorf("retention is disabled; pass --max-age to prune")
	}

	ids, err := sweep.Once(ctx, cmd.app.Store, cmd.app.Bus, maxAge, time.Now())
	if err != nil {
		return fmt.Errorf("prune tasks: %w", err)
	}

	out := c.Root().Writer
	if len(ids) == 0 {
		_, _ = fmt.Fprintln(out, styles.MutedStyle.Render("No finished tasks to prune"))
		return nil
	}

	for _, id := range ids {
		_, _ = fmt.Fprintln(out, styles.MutedStyle.Render("  "+id))
	}
	_, _ = fmt.Fprintln(out, styles.SuccessStyle.Render(fmt.Sprintf("%s Pruned %d task(s)", styles.IconCompleted, len(ids))))
	return nil
}
