package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/colonyops/taskdeck/internal/core/styles"
	"github.com/colonyops/taskdeck/pkg/iojson"
)

type ConfigValidateCmd struct {
	flags  *Flags
	format string
}

// NewConfigValidateCmd creates a new config validate command.
func NewConfigValidateCmd(flags *Flags) *ConfigValidateCmd {
	return &ConfigValidateCmd{flags: flags}
}

// Register adds the config validate command to the application.
func (cmd *ConfigValidateCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "config",
		Usage: "Configuration management commands",
		Commands: []*cli.Command{
			{
				Name:        "validate",
				Usage:       "Validate configuration file",
				UsageText:   "taskdeck config validate [options]",
				Description: "Validates the configuration file and checks the data directory, the Claude projects directory and the tmux executable.",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:        "format",
						Usage:       "output format (text, json)",
						Value:       "text",
						Destination: &cmd.format,
					},
				},
				Action: cmd.run,
			},
		},
	})

	return app
}

// validationView is the JSON output format for taskdeck config validate.
type validationView struct {
	Valid       bool     `json:"valid"`
	ConfigPath  string   `json:"config_path"`
	DataDir     string   `json:"data_dir"`
	ProjectsDir string   `json:"projects_dir"`
	Errors      []string `json:"errors,omitempty"`
}

func (cmd *ConfigValidateCmd) run(_ context.Context, c *cli.Command) error {
	cfg := cmd.flags.Config
	view := validationView{
		Valid:       true,
		ConfigPath:  cmd.flags.ConfigPath,
		DataDir:     cfg.DataDir,
		ProjectsDir: cfg.Claude.ProjectsDir,
	}
	if err := cfg.ValidateDeep(cmd.flags.ConfigPath); err != nil {
		view.Valid = false
		view.Errors = splitErrors(err)
	}

	out := c.Root().Writer
	if cmd.format == "json" {
		if err := iojson.Write(out, view); err != nil {
			return err
		}
		if !view.Valid {
			return cli.Exit("", 1)
		}
		return nil
	}

	_, _ = fmt.Fprintf(out, "%s %s\n", styles.MutedStyle.Render("config  "), view.ConfigPath)
	_, _ = fmt.Fprintf(out, "%s %s\n", styles.MutedStyle.Render("data    "), view.DataDir)
	_, _ = fmt.Fprintf(out, "%s %s\n", styles.MutedStyle.Render("projects"), view.ProjectsDir)
	_, _ = fmt.Fprintln(out)

	if view.Valid {
		_, _ = fmt.Fprintln(out, styles.SuccessStyle.Render(styles.IconCompleted+" Configuration is valid"))
		return nil
	}

	for _, e := range view.Errors {
		_, _ = fmt.Fprintln(out, styles.ErrorStyle.Render(styles.IconError+" "+e))
	}
	_, _ = fmt.Fprintln(out, styles.ErrorStyle.Render(fmt.Sprintf("%d error(s) found", len(view.Errors))))
	return cli.Exit("", 1)
}

func splitErrors(err error) []string {
	var out []string
	for _, line := range strings.Split(err.Error(), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
