package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/colonyops/taskdeck/internal/core/taskstate"
	"github.com/colonyops/taskdeck/internal/deck"
)

// TaskIDCompleter returns a ShellCompleteFunc that suggests task IDs as the
// first positional argument. Finished tasks are left out unless all is set.
//
// When the user's last typed argument starts with "-", it falls back to the
// default flag completion behavior.
func TaskIDCompleter(app *deck.App, all bool) cli.ShellCompleteFunc {
	return func(ctx context.Context, cmd *cli.Command) {
		if args := cmd.Args(); args.Present() {
			last := args.Slice()[args.Len()-1]
			if len(last) > 0 && last[0] == '-' {
				cli.DefaultCompleteWithFlags(ctx, cmd)
				return
			}
			if args.Len() > 1 {
				return
			}
		}

		if app.Tasks == nil {
			return
		}

		tasks, err := app.Tasks.List(ctx)
		if err != nil {
			return
		}

		w := cmd.Root().Writer
		for _, t := range tasks {
			if !all && (t.Status == taskstate.StatusCompleted || t.Status == taskstate.StatusError) {
				continue
			}
			_, _ = fmt.Fprintln(w, t.ID)
		}
	}
}
