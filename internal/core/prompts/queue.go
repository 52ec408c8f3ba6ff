package prompts

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/colonyops/taskdeck/internal/core/logging"
	"github.com/colonyops/taskdeck/pkg/randid"
)

const (
	idLength    = 10
	saveTimeout = 5 * time.Second
)

// Queue holds the queued prompts of every task.
type Queue struct {
	mu     sync.Mutex
	queues map[string][]Prompt

	store  Store
	logger zerolog.Logger
	now    func() time.Time
}

// New creates an empty in-memory queue. store may be nil, in which case
// nothing is persisted.
func New(store Store, logger zerolog.Logger) *Queue {
	return &Queue{
		queues: make(map[string][]Prompt),
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Open creates a queue and seeds it from the store.
func Open(ctx context.Context, store Store, logger zerolog.Logger) (*Queue, error) {
	q := New(store, logger)
	if store == nil {
		return q, nil
	}

	all, err := store.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load queued prompts: %w", err)
	}
	for taskID, prompts := range all {
		if len(prompts) > 0 {
			q.queues[taskID] = slices.Clone(prompts)
		}
	}
	return q, nil
}

// Enqueue appends a prompt with a fresh ID to the end of the task's queue.
func (q *Queue) Enqueue(taskID, content string) (Prompt, error) {
	if strings.TrimSpace(content) == "" {
		return Prompt{}, ErrEmptyPrompt
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	p := Prompt{
		ID:        q.newID(taskID),
		TaskID:    taskID,
		Content:   content,
		CreatedAt: q.now(),
	}
	q.queues[taskID] = append(q.queues[taskID], p)
	q.persist(taskID)

	logging.ForTask(q.logger, taskID).Debug().Str("prompt_id", p.ID).Msg("prompt queued")
	return p, nil
}

// Cancel removes the prompt with the given ID. Cancelling a prompt that is
// not queued is a no-op, so repeated cancels are safe. Reports whether a
// prompt was removed.
func (q *Queue) Cancel(taskID, promptID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	queue := q.queues[taskID]
	i := slices.IndexFunc(queue, func(p Prompt) bool { return p.ID == promptID })
	if i < 0 {
		return false
	}

	q.set(taskID, slices.Delete(slices.Clone(queue), i, i+1))
	q.persist(taskID)

	logging.ForTask(q.logger, taskID).Debug().Str("prompt_id", promptID).Msg("prompt cancelled")
	return true
}

// DequeueNext removes and returns the oldest prompt for the task.
func (q *Queue) DequeueNext(taskID string) (Prompt, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	queue := q.queues[taskID]
	if len(queue) == 0 {
		return Prompt{}, false
	}

	next := queue[0]
	q.set(taskID, slices.Clone(queue[1:]))
	q.persist(taskID)
	return next, true
}

// List returns a copy of the task's queue, oldest first.
func (q *Queue) List(taskID string) []Prompt {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.Clone(q.queues[taskID])
}

// Len returns the number of prompts queued for the task.
func (q *Queue) Len(taskID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queues[taskID])
}

func (q *Queue) set(taskID string, queue []Prompt) {
	if len(queue) == 0 {
		delete(q.queues, taskID)
		return
	}
	q.queues[taskID] = queue
}

// persist writes the task's queue through to the store. The in-memory queue
// stays authoritative: failures are logged, not returned.
func (q *Queue) persist(taskID string) {
	if q.store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	if err := q.store.Replace(ctx, taskID, slices.Clone(q.queues[taskID])); err != nil {
		logging.ForTask(q.logger, taskID).Warn().Err(err).Msg("failed to persist queued prompts")
	}
}

// newID returns an ID not already used in the task's queue.
func (q *Queue) newID(taskID string) string {
	for {
		id := randid.Generate(idLength)
		if !slices.ContainsFunc(q.queues[taskID], func(p Prompt) bool { return p.ID == id }) {
			return id
		}
	}
}
