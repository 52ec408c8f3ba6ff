// Package deck wires the task-state cache, the event bus, the prompt queue
// and prompt delivery into the application service the CLI drives.
package deck

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/colonyops/taskdeck/internal/core/eventbus"
	"github.com/colonyops/taskdeck/internal/core/logging"
	"github.com/colonyops/taskdeck/internal/core/prompts"
	"github.com/colonyops/taskdeck/internal/core/taskstate"
	"github.com/colonyops/taskdeck/internal/core/transcript"
	"github.com/colonyops/taskdeck/internal/data/stores"
)

// ErrNoTarget is returned when a prompt cannot be delivered because the task
// has no tmux target.
var ErrNoTarget = errors.New("task has no prompt target")

// PromptSender delivers a prompt to a running agent. Implemented by
// tmux.Client.
type PromptSender interface {
	SendPrompt(ctx context.Context, target, text string) error
}

// TaskService is the entry point for reading task state and steering tasks.
type TaskService struct {
	cache  *taskstate.Cache
	tasks  *stores.TaskStore
	queue  *prompts.Queue
	sender PromptSender
	bus    *eventbus.EventBus
	log    zerolog.Logger
	now    func() time.Time

	// dispatchMu serializes prompt delivery so one waiting transition sends
	// at most one prompt. Cancel and DequeueNext take it too, so a prompt is
	// never both delivered and reported as removed.
	dispatchMu sync.Mutex

	ctx context.Context
}

// NewTaskService creates the service. Call Start before publishing deltas.
func NewTaskService(
	cache *taskstate.Cache,
	tasks *stores.TaskStore,
	queue *prompts.Queue,
	sender PromptSender,
	bus *eventbus.EventBus,
	logger zerolog.Logger,
) *TaskService {
	return &TaskService{
		cache:  cache,
		tasks:  tasks,
		queue:  queue,
		sender: sender,
		bus:    bus,
		log:    logger,
		now:    time.Now,
		ctx:    context.Background(),
	}
}

// Start subscribes the service to the bus. Background work it spawns stops
// when ctx is cancelled. Start does not block.
func (s *TaskService) Start(ctx context.Context) {
	s.ctx = ctx
	s.bus.SubscribeTaskDelta(s.onDelta)
	s.bus.SubscribeTasksPruned(s.onPruned)
	s.bus.OnDrop(s.onDropped)
}

func (s *TaskService) onDelta(p eventbus.TaskDeltaPayload) {
	err := s.cache.Apply(p.TaskID, p.Delta)
	if errors.Is(err, taskstate.ErrNotResident) {
		// A load in flight may have read the store before this delta was
		// written.
		s.cache.Invalidate(p.TaskID)
	}
	s.dispatchOnWaiting(p)
}

// onDropped reconciles the cache with a task delta the bus could not queue.
// It runs on the publisher's goroutine.
func (s *TaskService) onDropped(event eventbus.Event, payload any) {
	p, ok := payload.(eventbus.TaskDeltaPayload)
	if event != eventbus.EventTaskDelta || !ok {
		return
	}

	if persisted(p.Delta) {
		s.cache.Invalidate(p.TaskID)
	} else if err := s.cache.Apply(p.TaskID, p.Delta); err != nil && !errors.Is(err, taskstate.ErrNotResident) {
		l := logging.ForTask(s.log, p.TaskID)
		l.Warn().Err(err).Str("kind", string(p.Delta.Kind())).Msg("dropped delta could not be applied")
	}
	s.dispatchOnWaiting(p)
}

// persisted reports whether the store records the effect of d, so a fetch
// recovers it.
func persisted(d taskstate.Delta) bool {
	switch d.(type) {
	case taskstate.NewEntry, taskstate.ToolResult, taskstate.StatusChanged, taskstate.ErrorOccurred:
		return true
	}
	return false
}

func (s *TaskService) dispatchOnWaiting(p eventbus.TaskDeltaPayload) {
	sc, ok := p.Delta.(taskstate.StatusChanged)
	if !ok || sc.Status != taskstate.StatusWaiting {
		return
	}
	go func() {
		if _, _, err := s.Dispatch(s.ctx, p.TaskID); err != nil && !errors.Is(err, ErrNoTarget) {
			logging.ForTask(s.log, p.TaskID).Warn().Err(err).Msg("prompt dispatch failed")
		}
	}()
}

func (s *TaskService) onPruned(p eventbus.TasksPrunedPayload) {
	for _, id := range p.TaskIDs {
		for _, prompt := range s.queue.List(id) {
			s.queue.Cancel(id, prompt.ID)
		}
	}
}

// State returns the task's cached state, starting a load if needed.
func (s *TaskService) State(taskID string) taskstate.TaskState {
	return s.cache.Get(taskID)
}

// Await blocks until the task's state is loaded.
func (s *TaskService) Await(ctx context.Context, taskID string) (taskstate.TaskState, error) {
	return s.cache.Await(ctx, taskID)
}

// Subscribe registers fn for deltas applied to the task.
func (s *TaskService) Subscribe(taskID string, fn taskstate.Listener) func() {
	return s.cache.Subscribe(taskID, fn)
}

// List returns every known task, most recently updated first.
func (s *TaskService) List(ctx context.Context) ([]stores.Task, error) {
	return s.tasks.List(ctx)
}

// SetTarget records the tmux pane queued prompts are delivered to.
func (s *TaskService) SetTarget(ctx context.Context, taskID, target string) error {
	return s.tasks.SetTarget(ctx, taskID, target)
}

// Complete marks a task as finished.
func (s *TaskService) Complete(ctx context.Context, taskID string) error {
	return s.setStatus(ctx, taskID, taskstate.StatusCompleted)
}

func (s *TaskService) setStatus(ctx context.Context, taskID string, status taskstate.Status) error {
	if err := s.tasks.SetStatus(ctx, taskID, status, ""); err != nil {
		return err
	}
	s.bus.PublishTaskDelta(eventbus.TaskDeltaPayload{TaskID: taskID, Delta: taskstate.StatusChanged{Status: status}})
	return nil
}

// Enqueue queues a prompt for the task. When the task is already waiting for
// input the prompt is delivered right away.
func (s *TaskService) Enqueue(ctx context.Context, taskID, content string) (prompts.Prompt, error) {
	task, err := s.tasks.Get(ctx, taskID)
	if err != nil {
		return prompts.Prompt{}, err
	}

	p, err := s.queue.Enqueue(taskID, content)
	if err != nil {
		return prompts.Prompt{}, err
	}
	s.bus.PublishPromptQueued(eventbus.PromptQueuedPayload{Prompt: p})

	if task.Status == taskstate.StatusWaiting && task.TmuxTarget != "" {
		if _, _, err := s.Dispatch(ctx, taskID); err != nil {
			logging.ForTask(s.log, taskID).Warn().Err(err).Msg("prompt dispatch failed")
		}
	}
	return p, nil
}

// Cancel removes a queued prompt. It reports whether the prompt was queued.
// A cancel that arrives while the prompt is being delivered waits for the
// delivery and reports false.
func (s *TaskService) Cancel(taskID, promptID string) bool {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	if !s.queue.Cancel(taskID, promptID) {
		return false
	}
	s.bus.PublishPromptCancelled(eventbus.PromptCancelledPayload{TaskID: taskID, PromptID: promptID})
	return true
}

// DequeueNext removes and returns the task's oldest queued prompt without
// delivering it.
func (s *TaskService) DequeueNext(taskID string) (prompts.Prompt, bool) {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()
	return s.queue.DequeueNext(taskID)
}

// Queued returns the task's queued prompts, oldest first.
func (s *TaskService) Queued(taskID string) []prompts.Prompt {
	return s.queue.List(taskID)
}

// Dispatch delivers the task's oldest queued prompt if the agent is waiting
// and not blocked on a permission or question. The prompt leaves the queue
// only once it has been sent.
//
// Removals through TaskService are serialized with delivery. Writers that
// bypass it, such as the prune handler calling the queue directly, can still
// remove a prompt while it is being sent.
func (s *TaskService) Dispatch(ctx context.Context, taskID string) (prompts.Prompt, bool, error) {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	if s.queue.Len(taskID) == 0 {
		return prompts.Prompt{}, false, nil
	}

	task, err := s.tasks.Get(ctx, taskID)
	if err != nil {
		return prompts.Prompt{}, false, err
	}
	if task.Status != taskstate.StatusWaiting || s.cache.Get(taskID).NeedsInput() {
		return prompts.Prompt{}, false, nil
	}
	if task.TmuxTarget == "" {
		return prompts.Prompt{}, false, fmt.Errorf("%w: %s", ErrNoTarget, taskID)
	}

	// Read the head only now; the queue may have changed while the task was
	// read.
	queued := s.queue.List(taskID)
	if len(queued) == 0 {
		return prompts.Prompt{}, false, nil
	}
	next := queued[0]
	ctx = logging.WithPromptID(logging.WithTaskID(ctx, taskID), next.ID)
	if err := s.sender.SendPrompt(ctx, task.TmuxTarget, next.Content); err != nil {
		return prompts.Prompt{}, false, fmt.Errorf("send prompt %s: %w", next.ID, err)
	}
	s.queue.Cancel(taskID, next.ID)

	if err := s.setStatus(ctx, taskID, taskstate.StatusRunning); err != nil {
		return next, true, err
	}
	s.bus.PublishPromptDispatched(eventbus.PromptDispatchedPayload{Prompt: next})
	logging.ForTask(s.log, taskID).Info().Str("prompt_id", next.ID).Msg("dispatched queued prompt")
	return next, true, nil
}

// RequestPermission records that the agent wants to run tool and returns the
// request.
func (s *TaskService) RequestPermission(taskID, toolUseID string, tool transcript.ToolUse) taskstate.PermissionRequest {
	req := taskstate.PermissionRequest{
		ID:          "perm_" + ulid.Make().String(),
		ToolUseID:   toolUseID,
		Tool:        tool,
		RequestedAt: s.now(),
	}
	s.bus.PublishTaskDelta(eventbus.TaskDeltaPayload{TaskID: taskID, Delta: taskstate.PermissionRequested{Request: req}})
	return req
}

// ResolvePermission records the user's decision on a permission request.
func (s *TaskService) ResolvePermission(taskID, requestID string, allowed bool) {
	s.bus.PublishTaskDelta(eventbus.TaskDeltaPayload{
		TaskID: taskID,
		Delta:  taskstate.PermissionResolved{RequestID: requestID, Allowed: allowed},
	})
}

// AskQuestion records questions the agent put to the user and returns the
// request.
func (s *TaskService) AskQuestion(taskID string, questions []transcript.Question) taskstate.QuestionRequest {
	req := taskstate.QuestionRequest{
		ID:        "q_" + ulid.Make().String(),
		Questions: questions,
		AskedAt:   s.now(),
	}
	s.bus.PublishTaskDelta(eventbus.TaskDeltaPayload{TaskID: taskID, Delta: taskstate.QuestionAsked{Request: req}})
	return req
}

// AnswerQuestion records the user's answers to a question request.
func (s *TaskService) AnswerQuestion(taskID, requestID string, answers map[string]string) {
	s.bus.PublishTaskDelta(eventbus.TaskDeltaPayload{
		TaskID: taskID,
		Delta:  taskstate.QuestionAnswered{RequestID: requestID, Answers: answers},
	})
}
