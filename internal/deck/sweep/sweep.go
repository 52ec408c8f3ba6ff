// Package sweep prunes finished tasks once they outlive the retention window.
package sweep

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/colonyops/taskdeck/internal/core/eventbus"
	"github.com/colonyops/taskdeck/internal/core/taskstate"
)

// Pruned lists the statuses a task must be in to be swept.
var Pruned = []taskstate.Status{taskstate.StatusCompleted, taskstate.StatusError}

// Pruner deletes tasks idle since before cutoff. Implemented by
// stores.TaskStore.
type Pruner interface {
	Prune(ctx context.Context, cutoff time.Time, statuses ...taskstate.Status) ([]string, error)
}

// Once prunes finished tasks older than maxAge and publishes the removed IDs.
// A non-positive maxAge keeps everything.
func Once(ctx context.Context, p Pruner, bus *eventbus.EventBus, maxAge time.Duration, now time.Time) ([]string, error) {
	if maxAge <= 0 {
		return nil, nil
	}
	ids, err := p.Prune(ctx, now.Add(-maxAge), Pruned...)
	if err != nil {
		return nil, err
	}
	if len(ids) > 0 && bus != nil {
		bus.PublishTasksPruned(eventbus.TasksPrunedPayload{TaskIDs: ids})
	}
	return ids, nil
}

// Start sweeps every interval until ctx is cancelled. It blocks.
func Start(ctx context.Context, p Pruner, bus *eventbus.EventBus, maxAge, interval time.Duration) {
	if maxAge <= 0 || interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			ids, err := Once(ctx, p, bus, maxAge, now)
			if err != nil {
				log.Debug().Err(err).Msg("retention sweep failed")
				continue
			}
			if len(ids) > 0 {
				log.Info().Int("tasks", len(ids)).Msg("pruned finished tasks")
			}
		}
	}
}
