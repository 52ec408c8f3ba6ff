package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/colonyops/taskdeck/internal/core/eventbus"
	"github.com/colonyops/taskdeck/internal/core/logging"
	"github.com/colonyops/taskdeck/internal/core/taskstate"
	"github.com/colonyops/taskdeck/internal/deck"
	"github.com/colonyops/taskdeck/internal/httpsrv"
)

type WatchCmd struct {
	flags *Flags
	app   *deck.App

	// flags
	task     string
	quiet    bool
	httpAddr string
}

// NewWatchCmd creates a new watch command
func NewWatchCmd(flags *Flags, app *deck.App) *WatchCmd {
	return &WatchCmd{flags: flags, app: app}
}

// Register adds the watch command to the application
func (cmd *WatchCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "watch",
		Usage:     "Follow agent transcripts and deliver queued prompts",
		UsageText: "taskdeck watch [--task <id>] [--quiet] [--http-addr <addr>]",
		Description: `Imports Claude Code transcripts from claude.projects_dir and keeps
following them. Queued prompts are delivered to a task's tmux pane whenever
its agent finishes a turn. Finished tasks older than retention.max_age are
pruned periodically.

Use --task to also print the live activity of one task.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "task",
				Aliases:     []string{"t"},
				Usage:       "print live activity for this task",
				Destination: &cmd.task,
			},
			&cli.BoolFlag{
				Name:        "quiet",
				Aliases:     []string{"q"},
				Usage:       "suppress notifications",
				Destination: &cmd.quiet,
			},
			&cli.StringFlag{
				Name:        "http-addr",
				Usage:       "serve pprof, metrics, cache stats and task streams on this address (e.g. 127.0.0.1:6060)",
				Sources:     cli.EnvVars("TASKDECK_HTTP_ADDR"),
				Destination: &cmd.httpAddr,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *WatchCmd) run(ctx context.Context, c *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := &lockedWriter{w: c.Root().Writer}

	if cmd.httpAddr != "" {
		srv := httpsrv.New(httpsrv.Options{
			Addr:    cmd.httpAddr,
			Cache:   cmd.app.Cache,
			Metrics: cmd.app.Registry,
			Tasks:   cmd.app.Tasks,
			Logger:  logging.Component("httpsrv"),
		})
		if err := srv.Start(ctx); err != nil {
			return fmt.Errorf("start http server: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("failed to shutdown http server")
			}
		}()
		log.Info().
			Str("metrics", fmt.Sprintf("http://%s/metrics", srv.Addr())).
			Str("stream", fmt.Sprintf("ws://%s/tasks/{id}/stream", srv.Addr())).
			Msg("http endpoints available")
	}

	if !cmd.quiet {
		cmd.app.Bus.SubscribeNotificationPublished(func(p eventbus.NotificationPublishedPayload) {
			_, _ = fmt.Fprintln(out, renderNotification(p, time.Now()))
		})
	}

	if cmd.task != "" {
		if err := cmd.app.Tailer.Scan(ctx); err != nil {
			return fmt.Errorf("import transcripts: %w", err)
		}
		state, err := cmd.app.Tasks.Await(ctx, cmd.task)
		if err != nil {
			return fmt.Errorf("load task %s: %w", cmd.task, err)
		}
		_, _ = fmt.Fprint(out, renderState(state, 10))

		unsubscribe := cmd.app.Tasks.Subscribe(cmd.task, func(s taskstate.TaskState, d taskstate.Delta) {
			if line := renderDelta(s, d); line != "" {
				_, _ = fmt.Fprintln(out, line)
			}
		})
		defer unsubscribe()
	}

	return cmd.app.Watch(ctx)
}

func renderDelta(s taskstate.TaskState, d taskstate.Delta) string {
	switch d := d.(type) {
	case taskstate.NewEntry:
		if n := len(s.Messages); n > 0 {
			return renderEntry(s.Messages[n-1])
		}
	case taskstate.ToolResult:
		for i := len(s.Messages) - 1; i >= 0; i-- {
			if s.Messages[i].ToolUseID == d.ToolUseID {
				return renderEntry(s.Messages[i])
			}
		}
	case taskstate.StatusChanged:
		return renderStatus(d.Status)
	case taskstate.ErrorOccurred:
		return renderStatus(taskstate.StatusError) + " " + d.Message
	}
	return ""
}

// lockedWriter serializes writes from the bus and cache listeners.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
