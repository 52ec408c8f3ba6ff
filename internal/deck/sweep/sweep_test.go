package sweep

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colonyops/taskdeck/internal/core/eventbus"
	"github.com/colonyops/taskdeck/internal/core/eventbus/testbus"
	"github.com/colonyops/taskdeck/internal/core/taskstate"
)

type fakePruner struct {
	ids      []string
	err      error
	cutoff   time.Time
	statuses []taskstate.Status
	calls    int
}

func (f *fakePruner) Prune(_ context.Context, cutoff time.Time, statuses ...taskstate.Status) ([]string, error) {
	f.calls++
	f.cutoff = cutoff
	f.statuses = statuses
	return f.ids, f.err
}

func TestOnce(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("prunes and publishes", func(t *testing.T) {
		bus := testbus.New(t)
		p := &fakePruner{ids: []string{"a", "b"}}

		ids, err := Once(context.Background(), p, bus.EventBus, 24*time.Hour, now)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, ids)
		assert.Equal(t, now.Add(-24*time.Hour), p.cutoff)
		assert.Equal(t, Pruned, p.statuses)

		require.True(t, bus.WaitFor(eventbus.EventTasksPruned, time.Second))
		got := testbus.Payloads[eventbus.TasksPrunedPayload](bus, eventbus.EventTasksPruned)
		require.Len(t, got, 1)
		assert.Equal(t, []string{"a", "b"}, got[0].TaskIDs)
	})

	t.Run("nothing pruned publishes nothing", func(t *testing.T) {
		bus := testbus.New(t)
		_, err := Once(context.Background(), &fakePruner{}, bus.EventBus, time.Hour, now)
		require.NoError(t, err)
		assert.False(t, bus.WaitFor(eventbus.EventTasksPruned, 50*time.Millisecond))
	})

	t.Run("zero max age keeps everything", func(t *testing.T) {
		p := &fakePruner{ids: []string{"a"}}
		ids, err := Once(context.Background(), p, nil, 0, now)
		require.NoError(t, err)
		assert.Empty(t, ids)
		assert.Zero(t, p.calls)
	})

	t.Run("error", func(t *testing.T) {
		boom := errors.New("boom")
		_, err := Once(context.Background(), &fakePruner{err: boom}, nil, time.Hour, now)
		assert.ErrorIs(t, err, boom)
	})
}

func TestStart_StopsOnCancel(t *testing.T) {
	p := &fakePruner{}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		Start(ctx, p, nil, time.Hour, 5*time.Millisecond)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return")
	}
}
