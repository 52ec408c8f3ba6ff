package prompts

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu      sync.Mutex
	data    map[string][]Prompt
	writes  int
	saveErr error
	loadErr error
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string][]Prompt)}
}

func (m *memStore) LoadAll(context.Context) (map[string][]Prompt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	out := make(map[string][]Prompt, len(m.data))
	for k, v := range m.data {
		out[k] = append([]Prompt(nil), v...)
	}
	return out, nil
}

func (m *memStore) Replace(_ context.Context, taskID string, prompts []Prompt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	if m.saveErr != nil {
		return m.saveErr
	}
	if len(prompts) == 0 {
		delete(m.data, taskID)
		return nil
	}
	m.data[taskID] = prompts
	return nil
}

func contents(ps []Prompt) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.Content
	}
	return out
}

func TestQueue_FIFO(t *testing.T) {
	q := New(nil, zerolog.Nop())

	for _, c := range []string{"one", "two", "three"} {
		_, err := q.Enqueue("task-1", c)
		require.NoError(t, err)
	}

	var got []string
	for {
		p, ok := q.DequeueNext("task-1")
		if !ok {
			break
		}
		got = append(got, p.Content)
	}

	assert.Equal(t, []string{"one", "two", "three"}, got)
	assert.Equal(t, 0, q.Len("task-1"))
}

func TestQueue_Enqueue(t *testing.T) {
	q := New(nil, zerolog.Nop())

	a, err := q.Enqueue("task-1", "first")
	require.NoError(t, err)
	b, err := q.Enqueue("task-1", "second")
	require.NoError(t, err)

	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, "task-1", a.TaskID)
	assert.False(t, a.CreatedAt.IsZero())

	t.Run("rejects empty content", func(t *testing.T) {
		_, err := q.Enqueue("task-1", "   \n")
		assert.ErrorIs(t, err, ErrEmptyPrompt)
		assert.Equal(t, 2, q.Len("task-1"))
	})
}

func TestQueue_TasksAreIndependent(t *testing.T) {
	q := New(nil, zerolog.Nop())

	_, _ = q.Enqueue("a", "a1")
	_, _ = q.Enqueue("b", "b1")
	_, _ = q.Enqueue("a", "a2")

	assert.Equal(t, []string{"a1", "a2"}, contents(q.List("a")))
	assert.Equal(t, []string{"b1"}, contents(q.List("b")))

	p, ok := q.DequeueNext("b")
	require.True(t, ok)
	assert.Equal(t, "b1", p.Content)
	assert.Equal(t, 2, q.Len("a"))
}

func TestQueue_CancelIdempotent(t *testing.T) {
	q := New(nil, zerolog.Nop())

	_, _ = q.Enqueue("task-1", "keep")
	drop, _ := q.Enqueue("task-1", "drop")
	_, _ = q.Enqueue("task-1", "keep too")

	assert.True(t, q.Cancel("task-1", drop.ID))
	once := q.List("task-1")

	assert.False(t, q.Cancel("task-1", drop.ID))
	twice := q.List("task-1")

	assert.Equal(t, once, twice)
	assert.Equal(t, []string{"keep", "keep too"}, contents(twice))
}

func TestQueue_CancelUnknown(t *testing.T) {
	q := New(nil, zerolog.Nop())
	assert.False(t, q.Cancel("nope", "nope"))

	_, _ = q.Enqueue("task-1", "x")
	assert.False(t, q.Cancel("task-1", "missing"))
	assert.Equal(t, 1, q.Len("task-1"))
}

func TestQueue_DequeueEmpty(t *testing.T) {
	q := New(nil, zerolog.Nop())
	_, ok := q.DequeueNext("task-1")
	assert.False(t, ok)
}

func TestQueue_ListIsACopy(t *testing.T) {
	q := New(nil, zerolog.Nop())
	_, _ = q.Enqueue("task-1", "x")

	list := q.List("task-1")
	list[0].Content = "mutated"

	assert.Equal(t, "x", q.List("task-1")[0].Content)
}

func TestQueue_Persistence(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()

	q, err := Open(ctx, store, zerolog.Nop())
	require.NoError(t, err)

	first, _ := q.Enqueue("task-1", "first")
	_, _ = q.Enqueue("task-1", "second")
	q.Cancel("task-1", first.ID)

	assert.Equal(t, 3, store.writes)

	reopened, err := Open(ctx, store, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, []string{"second"}, contents(reopened.List("task-1")))

	_, ok := reopened.DequeueNext("task-1")
	require.True(t, ok)

	all, err := store.LoadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all, "drained queue should be removed from the store")
}

func TestQueue_PersistFailureKeepsMemoryState(t *testing.T) {
	store := newMemStore()
	store.saveErr = errors.New("disk full")

	q := New(store, zerolog.Nop())
	_, err := q.Enqueue("task-1", "still queued")
	require.NoError(t, err)

	assert.Equal(t, 1, q.Len("task-1"))
}

func TestOpen_LoadError(t *testing.T) {
	store := newMemStore()
	store.loadErr = errors.New("boom")

	_, err := Open(context.Background(), store, zerolog.Nop())
	assert.ErrorContains(t, err, "boom")
}
