package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/colonyops/taskdeck/internal/commands"
	"github.com/colonyops/taskdeck/internal/core/config"
	"github.com/colonyops/taskdeck/internal/core/logging"
	"github.com/colonyops/taskdeck/internal/core/styles"
	"github.com/colonyops/taskdeck/internal/deck"
	"github.com/colonyops/taskdeck/pkg/logutils"
)

var (
	// Build information. Populated at build-time via -ldflags flag.
	// When installed via `go install module@version`, init() populates
	// these from runtime/debug.BuildInfo instead.
	version = "dev"
	commit  = "HEAD"
	date    = "now"
)

func build() string {
	v, c, d := version, commit, date

	// When installed via `go install module@version`, ldflags aren't set
	// so version remains "dev". Fall back to runtime/debug.BuildInfo which
	// Go populates automatically with the module version and VCS metadata.
	if v == "dev" {
		if info, ok := debug.ReadBuildInfo(); ok {
			if mv := info.Main.Version; mv != "" && mv != "(devel)" {
				v = mv
			}
			for _, s := range info.Settings {
				switch s.Key {
				case "vcs.revision":
					c = s.Value
				case "vcs.time":
					d = s.Value
				}
			}
		}
	}

	short := c
	if len(c) > 7 {
		short = c[:7]
	}

	return fmt.Sprintf("%s (%s) %s", v, short, d)
}

func main() {
	ctx := context.Background()

	var (
		logCloser func()
		deckApp   = &deck.App{}
		appCancel context.CancelFunc
	)

	flags := &commands.Flags{}

	app := commands.NewRoot(flags)
	app.Version = build()
	app.EnableShellCompletion = true

	app.Before = func(ctx context.Context, c *cli.Command) (context.Context, error) {
		// Always log to a file; use explicit path or default to <datadir>/taskdeck.log
		logFile := flags.LogFile
		if logFile == "" {
			logFile = filepath.Join(flags.DataDir, "taskdeck.log")
		}

		logger, closer, err := logutils.New(flags.LogLevel, logFile)
		if err != nil {
			return ctx, fmt.Errorf("setup logger: %w", err)
		}
		zerolog.SetGlobalLevel(logger.GetLevel())
		log.Logger = logger.Hook(logging.ContextHook{})
		logCloser = closer

		cfg, err := config.Load(flags.ConfigPath, flags.DataDir)
		if err != nil {
			return ctx, fmt.Errorf("load config: %w", err)
		}
		flags.Config = cfg

		// Apply configured theme (validation ensures name is valid)
		styles.UseTheme(cfg.Theme)

		appCtx, cancel := context.WithCancel(ctx)
		appCancel = cancel

		opened, err := deck.Open(appCtx, cfg, deck.Options{})
		if err != nil {
			return ctx, err
		}

		// Populate the pre-allocated App struct (commands already hold a pointer to it)
		*deckApp = *opened
		deckApp.Start(appCtx)

		return ctx, nil
	}

	app.After = func(ctx context.Context, c *cli.Command) error {
		if appCancel != nil {
			appCancel()
		}

		// Close cache and database
		if deckApp.DB != nil {
			if err := deckApp.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close database")
				return err
			}
		}

		// Close log file
		if logCloser != nil {
			logCloser()
		}
		return nil
	}

	app = commands.RegisterAll(app, flags, deckApp)

	exitCode := 0
	runErr := app.Run(ctx, os.Args)
	if runErr != nil {
		fmt.Println()
		fmt.Println(runErr.Error())
		exitCode = 1
	}

	os.Exit(exitCode)
}
