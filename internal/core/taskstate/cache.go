package taskstate

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/colonyops/taskdeck/internal/core/transcript"
)

// DefaultCapacity is the resident entry bound used when Options.Capacity is 0.
const DefaultCapacity = 20

var errCacheReset = errors.New("cache reset while loading")

// Listener receives every delta applied to a task, with the state after the
// delta. Listeners run synchronously in delivery order and must not call
// Cache.Apply.
type Listener func(state TaskState, delta Delta)

// Options configures a Cache.
type Options struct {
	// Capacity bounds the number of resident task states.
	Capacity int
	// LoadTimeout bounds a single load. Zero means loads never time out and
	// the task reads as loading until the fetch resolves.
	LoadTimeout time.Duration
	// Now is the clock used for access ticks. Defaults to time.Now.
	Now    func() time.Time
	Logger zerolog.Logger
}

// entry is a cache slot. While the initial load is in flight the slot lives
// in Cache.loading and is not resident; afterwards it lives in the LRU.
type entry struct {
	state TaskState

	// gen identifies the load in flight for this slot, 0 if none.
	gen uint64

	// done is closed when the initial load resolves; err holds its failure.
	done chan struct{}
	err  error

	// applied holds the deltas applied while a refresh is in flight. They
	// are replayed onto the fetched state when the refresh commits.
	applied []Delta

	// stale requests another fetch once the one in flight commits.
	stale bool
}

// Cache owns the taskID → TaskState mapping. All reads and writes go through
// it; the mutex is the single serialization point per task.
type Cache struct {
	fetcher     Fetcher
	loadTimeout time.Duration
	now         func() time.Time
	logger      zerolog.Logger

	mu        sync.Mutex
	resident  *simplelru.LRU[string, *entry]
	loading   map[string]*entry
	listeners map[string]map[uint64]Listener
	nextSub   uint64
	nextGen   uint64
	lastTick  int64

	// deliverMu serializes listener notification. It is acquired before mu
	// is released so deltas reach listeners in the order they were applied.
	deliverMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Cache that loads task state through fetcher.
func New(fetcher Fetcher, opts Options) *Cache {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	c := &Cache{
		fetcher:     fetcher,
		loadTimeout: opts.LoadTimeout,
		now:         opts.Now,
		logger:      opts.Logger,
		loading:     make(map[string]*entry),
		listeners:   make(map[string]map[uint64]Listener),
	}

	// NewLRU only fails on a non-positive size, which is guarded above.
	c.resident, _ = simplelru.NewLRU[string, *entry](opts.Capacity, func(taskID string, _ *entry) {
		c.logger.Debug().Str("task_id", taskID).Msg("task state evicted")
	})

	c.ctx, c.cancel = context.WithCancel(context.Background())
	return c
}

// Get returns the task's current state and marks it as touched. If the task
// is not resident, a background load is started (unless one is already in
// flight) and the default state is returned until it completes.
func (c *Cache) Get(taskID string) TaskState {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.resident.Get(taskID); ok {
		e.state.LastAccessedAt = c.tick()
		return e.state.clone()
	}

	if _, ok := c.loading[taskID]; !ok {
		c.startLoad(taskID)
	}
	return Default(taskID)
}

// Await is Get that blocks until the task's state is loaded. A failed load
// returns ErrLoadFailed wrapping the cause.
func (c *Cache) Await(ctx context.Context, taskID string) (TaskState, error) {
	c.mu.Lock()
	if e, ok := c.resident.Get(taskID); ok {
		e.state.LastAccessedAt = c.tick()
		s := e.state.clone()
		c.mu.Unlock()
		return s, nil
	}
	e, ok := c.loading[taskID]
	if !ok {
		e = c.startLoad(taskID)
	}
	c.mu.Unlock()

	select {
	case <-ctx.Done():
		return Default(taskID), ctx.Err()
	case <-e.done:
	}

	if e.err != nil {
		return Default(taskID), e.err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.resident.Get(taskID); ok && cur == e {
		e.state.LastAccessedAt = c.tick()
	}
	// An entry evicted straight after loading still reports what was loaded.
	return e.state.clone(), nil
}

// Touch refreshes a resident task's recency without copying its state.
// Reports false, and starts no load, when the task is not resident.
func (c *Cache) Touch(taskID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.resident.Get(taskID)
	if !ok {
		return false
	}
	e.state.LastAccessedAt = c.tick()
	return true
}

// Refresh re-fetches a resident task in the background. The current state
// stays readable, and evictable, until the fetch resolves; a result for an
// entry that was evicted in the meantime is discarded. Reports false when
// the task is not resident or a load is already in flight.
func (c *Cache) Refresh(taskID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.resident.Peek(taskID)
	if !ok || e.gen != 0 {
		return false
	}
	c.startRefresh(taskID, e)
	return true
}

// Invalidate marks the task's state as possibly behind the Fetcher, for
// example after a delta was lost on its way to Apply. A resident task is
// refreshed; a load or refresh already in flight is followed by another
// fetch once it commits. Tasks that are not cached are left alone, since
// their next load reads current data.
func (c *Cache) Invalidate(taskID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.loading[taskID]; ok {
		e.stale = true
		return
	}
	e, ok := c.resident.Peek(taskID)
	if !ok {
		return
	}
	if e.gen != 0 {
		e.stale = true
		return
	}
	c.startRefresh(taskID, e)
}

// Apply applies a live delta to a resident task, touches it, and notifies
// the task's listeners. Deltas for tasks that are not resident (absent or
// still loading) are dropped and ErrNotResident is returned.
func (c *Cache) Apply(taskID string, d Delta) error {
	c.mu.Lock()

	e, ok := c.resident.Get(taskID)
	if !ok {
		c.mu.Unlock()
		c.logger.Warn().
			Str("task_id", taskID).
			Str("kind", string(d.Kind())).
			Msg("dropping delta for task without resident state")
		return ErrNotResident
	}

	if err := d.apply(&e.state); err != nil {
		c.mu.Unlock()
		c.logger.Warn().Err(err).
			Str("task_id", taskID).
			Str("kind", string(d.Kind())).
			Msg("delta rejected")
		return fmt.Errorf("apply %s: %w", d.Kind(), err)
	}
	e.state.LastAccessedAt = c.tick()
	if e.gen != 0 {
		e.applied = append(e.applied, d)
	}

	subs := c.listenersFor(taskID)
	if len(subs) == 0 {
		c.mu.Unlock()
		return nil
	}
	snapshot := e.state.clone()

	c.deliverMu.Lock()
	c.mu.Unlock()
	defer c.deliverMu.Unlock()

	for _, fn := range subs {
		c.notify(fn, snapshot, d)
	}
	return nil
}

// Subscribe registers fn for deltas applied to taskID. The returned function
// removes the registration and is safe to call more than once.
func (c *Cache) Subscribe(taskID string, fn Listener) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextSub++
	id := c.nextSub
	if c.listeners[taskID] == nil {
		c.listeners[taskID] = make(map[uint64]Listener)
	}
	c.listeners[taskID][id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			delete(c.listeners[taskID], id)
			if len(c.listeners[taskID]) == 0 {
				delete(c.listeners, taskID)
			}
		})
	}
}

// Resident returns the IDs of resident tasks, least recently touched first.
func (c *Cache) Resident() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resident.Keys()
}

// Len returns the number of resident tasks.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resident.Len()
}

// Loading reports whether the task's initial load is in flight.
func (c *Cache) Loading(taskID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.loading[taskID]
	return ok
}

// Reset drops every entry. Loads still in flight are discarded when they
// resolve, and callers blocked in Await are released with ErrLoadFailed.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.resident.Purge()
	for taskID, e := range c.loading {
		e.err = fmt.Errorf("%w: %w", ErrLoadFailed, errCacheReset)
		close(e.done)
		delete(c.loading, taskID)
	}
}

// Close resets the cache and cancels outstanding loads.
func (c *Cache) Close() {
	c.cancel()
	c.Reset()
}

// startLoad registers an in-flight load for taskID. Callers hold c.mu.
func (c *Cache) startLoad(taskID string) *entry {
	c.nextGen++
	e := &entry{gen: c.nextGen, done: make(chan struct{})}
	c.loading[taskID] = e

	c.logger.Debug().Str("task_id", taskID).Uint64("gen", e.gen).Msg("loading task state")
	go c.load(taskID, e.gen, false)
	return e
}

// startRefresh re-fetches a resident, idle entry. Callers hold c.mu.
func (c *Cache) startRefresh(taskID string, e *entry) {
	c.nextGen++
	e.gen = c.nextGen
	e.applied = nil
	e.stale = false

	c.logger.Debug().Str("task_id", taskID).Uint64("gen", e.gen).Msg("refreshing task state")
	go c.load(taskID, e.gen, true)
}

func (c *Cache) load(taskID string, gen uint64, refresh bool) {
	ctx := c.ctx
	if c.loadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.loadTimeout)
		defer cancel()
	}

	messages, record, err := c.fetch(ctx, taskID)
	if refresh {
		c.commitRefresh(taskID, gen, messages, record, err)
		return
	}
	c.commitLoad(taskID, gen, messages, record, err)
}

// fetch reads the message log and the status record concurrently.
func (c *Cache) fetch(ctx context.Context, taskID string) ([]transcript.Entry, TaskRecord, error) {
	var (
		messages []transcript.Entry
		record   TaskRecord
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		m, err := c.fetcher.GetMessages(gctx, taskID)
		if err != nil {
			return fmt.Errorf("get messages: %w", err)
		}
		messages = m
		return nil
	})
	g.Go(func() error {
		r, err := c.fetcher.GetTask(gctx, taskID)
		if err != nil {
			return fmt.Errorf("get task: %w", err)
		}
		record = r
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, TaskRecord{}, err
	}

	for i := range messages {
		messages[i].Index = i
	}
	if !record.Status.Valid() {
		record.Status = StatusWaiting
	}
	return messages, record, nil
}

func (c *Cache) commitLoad(taskID string, gen uint64, messages []transcript.Entry, record TaskRecord, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.loading[taskID]
	if !ok || e.gen != gen {
		c.logger.Debug().Str("task_id", taskID).Uint64("gen", gen).Msg("discarding stale task state load")
		return
	}
	delete(c.loading, taskID)
	defer close(e.done)

	if err != nil {
		e.err = fmt.Errorf("%w: %w", ErrLoadFailed, err)
		c.logger.Warn().Err(err).Str("task_id", taskID).Msg("task state load failed")
		return
	}

	e.gen = 0
	e.state = TaskState{
		TaskID:         taskID,
		Messages:       messages,
		Status:         record.Status,
		Error:          record.Error,
		LastAccessedAt: c.tick(),
		Loaded:         true,
	}
	c.resident.Add(taskID, e)

	if e.stale {
		c.startRefresh(taskID, e)
	}
}

func (c *Cache) commitRefresh(taskID string, gen uint64, messages []transcript.Entry, record TaskRecord, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.resident.Peek(taskID)
	if !ok || e.gen != gen {
		c.logger.Debug().Str("task_id", taskID).Uint64("gen", gen).Msg("discarding stale task state refresh")
		return
	}
	e.gen = 0
	applied := e.applied
	e.applied = nil

	if err != nil {
		e.stale = false
		c.logger.Warn().Err(err).Str("task_id", taskID).Msg("task state refresh failed")
		return
	}

	next := e.state.clone()
	next.Messages = messages
	next.Status = record.Status
	next.Error = record.Error

	// Deltas applied during the fetch are replayed in order. Entries the
	// fetch already saw are skipped.
	replay := make([]Delta, 0, len(applied))
	for _, d := range applied {
		if !entryFetched(messages, d) {
			replay = append(replay, d)
		}
	}
	if len(replay) > 0 {
		var rerr error
		next, rerr = Replay(next, replay...)
		if rerr != nil {
			c.logger.Debug().Err(rerr).Str("task_id", taskID).Msg("deltas skipped while replaying onto refreshed state")
		}
	}

	e.state = next
	c.resident.Get(taskID)
	e.state.LastAccessedAt = c.tick()

	if e.stale {
		c.startRefresh(taskID, e)
	}
}

// entryFetched reports whether d is a NewEntry whose entry already sits at
// its store index in messages.
func entryFetched(messages []transcript.Entry, d Delta) bool {
	ne, ok := d.(NewEntry)
	if !ok {
		return false
	}
	i := ne.Entry.Index
	if i < 0 || i >= len(messages) {
		return false
	}
	m := messages[i]
	return m.Role == ne.Entry.Role &&
		m.Text == ne.Entry.Text &&
		m.ToolUseID == ne.Entry.ToolUseID &&
		m.Timestamp.Equal(ne.Entry.Timestamp)
}

// tick returns a strictly increasing access timestamp. Callers hold c.mu.
func (c *Cache) tick() int64 {
	now := c.now().UnixNano()
	if now <= c.lastTick {
		now = c.lastTick + 1
	}
	c.lastTick = now
	return now
}

// listenersFor snapshots the task's listeners in registration order. Callers
// hold c.mu.
func (c *Cache) listenersFor(taskID string) []Listener {
	subs := c.listeners[taskID]
	if len(subs) == 0 {
		return nil
	}
	ids := make([]uint64, 0, len(subs))
	for id := range subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	out := make([]Listener, 0, len(ids))
	for _, id := range ids {
		out = append(out, subs[id])
	}
	return out
}

func (c *Cache) notify(fn Listener, state TaskState, d Delta) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().
				Str("task_id", state.TaskID).
				Str("kind", string(d.Kind())).
				Str("panic", fmt.Sprint(r)).
				Msg("task state listener panicked")
		}
	}()
	fn(state, d)
}
