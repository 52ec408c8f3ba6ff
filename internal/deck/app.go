package deck

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/colonyops/taskdeck/internal/core/config"
	"github.com/colonyops/taskdeck/internal/core/eventbus"
	"github.com/colonyops/taskdeck/internal/core/logging"
	"github.com/colonyops/taskdeck/internal/core/prompts"
	"github.com/colonyops/taskdeck/internal/core/taskstate"
	"github.com/colonyops/taskdeck/internal/core/tmux"
	"github.com/colonyops/taskdeck/internal/data/db"
	"github.com/colonyops/taskdeck/internal/data/stores"
	"github.com/colonyops/taskdeck/internal/deck/sweep"
	"github.com/colonyops/taskdeck/internal/plugins/claude"
	"github.com/colonyops/taskdeck/pkg/executil"
)

const busBuffer = 256

// App is the central entry point for taskdeck operations. Commands consume
// App instead of assembling dependencies themselves.
type App struct {
	Tasks   *TaskService
	Tailer  *claude.Tailer
	Bus     *eventbus.EventBus
	Cache   *taskstate.Cache
	Store   *stores.TaskStore
	Offsets *stores.OffsetStore
	Config  *config.Config
	DB      *db.DB

	Metrics  *Metrics
	Registry *prometheus.Registry
}

// Options overrides collaborators, mainly for tests.
type Options struct {
	Executor executil.Executor // defaults to executil.RealExecutor
	Sender   PromptSender      // defaults to a tmux client on Executor
}

// Open opens the database and wires every service. The caller owns the
// returned App and must Close it.
func Open(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	dbOpts := db.DefaultOpenOptions()
	dbOpts.BusyTimeout = cfg.Database.BusyTimeout
	dbOpts.Logger = logging.Component("db")

	database, err := openDatabase(cfg.DatabaseFile(), dbOpts)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	store := stores.NewTaskStore(database)
	offsets := stores.NewOffsetStore(database)

	queue, err := prompts.Open(ctx, stores.NewPromptStore(database), logging.Component("prompts"))
	if err != nil {
		_ = database.Close()
		return nil, err
	}

	cache := taskstate.New(store, taskstate.Options{
		Capacity:    cfg.Cache.Capacity,
		LoadTimeout: cfg.Cache.LoadTimeout,
		Logger:      logging.Component("cache"),
	})

	if opts.Executor == nil {
		opts.Executor = &executil.RealExecutor{}
	}
	if opts.Sender == nil {
		opts.Sender = tmux.New(opts.Executor, cfg.Tmux.Path, cfg.Tmux.SubmitKey, logging.Component("tmux"))
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	metrics, err := NewMetrics(registry, cache)
	if err != nil {
		cache.Close()
		_ = database.Close()
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	bus := eventbus.New(busBuffer)
	busLog := logging.Component("eventbus")
	bus.OnDrop(func(event eventbus.Event, _ any) {
		busLog.Warn().Str("event", string(event)).Msg("event dropped, buffer full")
	})

	tailer := claude.NewTailer(claude.TailerOptions{
		Root:     cfg.Claude.ProjectsDir,
		Glob:     cfg.Claude.TranscriptGlob,
		Debounce: cfg.Claude.Debounce,
		Logger:   logging.Component("claude"),

		Retryable: stores.IsBusyError,
	}, store, offsets, bus)

	return &App{
		Tasks:   NewTaskService(cache, store, queue, opts.Sender, bus, logging.Component("deck")),
		Tailer:  tailer,
		Bus:     bus,
		Cache:   cache,
		Store:   store,
		Offsets: offsets,
		Config:  cfg,
		DB:      database,

		Metrics:  metrics,
		Registry: registry,
	}, nil
}

// openDatabase opens path, moving a corrupt file aside once and starting
// over with an empty database. Tasks are re-imported from their transcripts.
func openDatabase(path string, opts db.OpenOptions) (*db.DB, error) {
	database, err := db.Open(path, opts)
	if err == nil || !stores.IsCorruptionError(err) {
		return database, err
	}

	backup, rerr := stores.RecoverFromCorruption(path)
	if rerr != nil {
		return nil, errors.Join(err, rerr)
	}
	opts.Logger.Warn().Err(err).Str("backup", backup).Msg("database corrupt, moved aside")
	return db.Open(path, opts)
}

// Start runs the bus and subscribes the services. It does not block; the bus
// stops when ctx is cancelled.
func (a *App) Start(ctx context.Context) {
	eventbus.NewNotificationRouter(a.Bus).Register()
	if zerolog.GlobalLevel() <= zerolog.DebugLevel {
		eventbus.RegisterDebugLogger(a.Bus, logging.Component("eventbus"))
	}
	a.Metrics.Observe(a.Bus)
	a.Tasks.Start(ctx)
	go a.Bus.Start(ctx)
}

// Watch follows transcripts and runs the retention sweep until ctx is
// cancelled. Start must be called first.
func (a *App) Watch(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.Tailer.Run(ctx)
	})
	g.Go(func() error {
		if _, err := sweep.Once(ctx, a.Store, a.Bus, a.Config.Retention.MaxAge, time.Now()); err != nil {
			l := logging.Component("sweep")
			l.Warn().Err(err).Msg("initial retention sweep failed")
		}
		sweep.Start(ctx, a.Store, a.Bus, a.Config.Retention.MaxAge, a.Config.Retention.SweepInterval)
		return nil
	})
	return g.Wait()
}

// Close releases the cache and the database.
func (a *App) Close() error {
	a.Cache.Close()
	return a.DB.Close()
}
