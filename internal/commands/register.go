package commands

import (
	"github.com/urfave/cli/v3"

	"github.com/colonyops/taskdeck/internal/deck"
)

// NewRoot returns the taskdeck root command with its global flags bound to
// flags. Subcommands are added by RegisterAll.
func NewRoot(flags *Flags) *cli.Command {
	return &cli.Command{
		Name:      "taskdeck",
		Usage:     "Track AI agent tasks and queue prompts for them",
		UsageText: "taskdeck [global options] command [command options]",
		Description: `Taskdeck follows Claude Code transcripts and keeps a live view of every
agent task: its conversation, todo list and whether it is running or waiting
for you.

Prompts queued for a busy agent are typed into its tmux pane as soon as it
finishes its turn.

Run 'taskdeck watch' to start following transcripts.`,
		Flags: GlobalFlags(flags),
	}
}

// GlobalFlags returns the root flags, bound to flags.
func GlobalFlags(flags *Flags) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error, fatal, panic)",
			Sources:     cli.EnvVars("TASKDECK_LOG_LEVEL"),
			Value:       "info",
			Destination: &flags.LogLevel,
		},
		&cli.StringFlag{
			Name:        "log-file",
			Usage:       "path to log file (defaults to <data-dir>/taskdeck.log)",
			Sources:     cli.EnvVars("TASKDECK_LOG_FILE"),
			Destination: &flags.LogFile,
		},
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "path to config file",
			Sources:     cli.EnvVars("TASKDECK_CONFIG"),
			Value:       DefaultConfigPath(),
			Destination: &flags.ConfigPath,
		},
		&cli.StringFlag{
			Name:        "data-dir",
			Usage:       "path to data directory",
			Sources:     cli.EnvVars("TASKDECK_DATA_DIR"),
			Value:       DefaultDataDir(),
			Destination: &flags.DataDir,
		},
	}
}

// RegisterAll adds every taskdeck command to root. app may still be empty;
// commands only dereference it when they run.
func RegisterAll(root *cli.Command, flags *Flags, app *deck.App) *cli.Command {
	root = NewWatchCmd(flags, app).Register(root)
	root = NewShowCmd(flags, app).Register(root)
	root = NewLsCmd(flags, app).Register(root)
	root = NewQueueCmd(flags, app).Register(root)
	root = NewTaskCmd(flags, app).Register(root)
	root = NewPruneCmd(flags, app).Register(root)
	root = NewSummarizeCmd(flags).Register(root)
	root = NewConfigValidateCmd(flags).Register(root)
	return root
}
