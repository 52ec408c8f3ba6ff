package eventbus

import (
	"context"
	"sync"
)

type envelope struct {
	event   Event
	payload any
}

// EventBus delivers published events to subscribers from a single dispatch
// goroutine, so subscribers observe events in publish order. Publishing never
// blocks: when the buffer is full the event is dropped and OnDrop hooks fire.
type EventBus struct {
	ch    chan envelope
	hooks hooks

	mu   sync.RWMutex
	subs map[Event][]func(any)
}

// New creates a bus with the given buffer size.
func New(size int) *EventBus {
	return &EventBus{
		ch:   make(chan envelope, size),
		subs: make(map[Event][]func(any)),
	}
}

// Start dispatches events until ctx is cancelled.
func (bus *EventBus) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-bus.ch:
			bus.dispatch(env)
		}
	}
}

func (bus *EventBus) dispatch(env envelope) {
	bus.mu.RLock()
	subs := make([]func(any), len(bus.subs[env.event]))
	copy(subs, bus.subs[env.event])
	bus.mu.RUnlock()

	for _, fn := range subs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					bus.runOnPanic(env.event, env.payload, r)
				}
			}()
			fn(env.payload)
		}()
	}
}

func subscribe[T any](bus *EventBus, event Event, fn func(T)) {
	bus.mu.Lock()
	bus.subs[event] = append(bus.subs[event], func(p any) {
		if v, ok := p.(T); ok {
			fn(v)
		}
	})
	bus.mu.Unlock()

	bus.runOnSubscribe(event)
}

func (bus *EventBus) PublishNotificationPublished(p NotificationPublishedPayload) {
	bus.send(EventNotificationPublished, p)
}

func (bus *EventBus) SubscribeNotificationPublished(fn func(NotificationPublishedPayload)) {
	subscribe(bus, EventNotificationPublished, fn)
}

func (bus *EventBus) PublishPromptCancelled(p PromptCancelledPayload) {
	bus.send(EventPromptCancelled, p)
}

func (bus *EventBus) SubscribePromptCancelled(fn func(PromptCancelledPayload)) {
	subscribe(bus, EventPromptCancelled, fn)
}

func (bus *EventBus) PublishPromptDispatched(p PromptDispatchedPayload) {
	bus.send(EventPromptDispatched, p)
}

func (bus *EventBus) SubscribePromptDispatched(fn func(PromptDispatchedPayload)) {
	subscribe(bus, EventPromptDispatched, fn)
}

func (bus *EventBus) PublishPromptQueued(p PromptQueuedPayload) {
	bus.send(EventPromptQueued, p)
}

func (bus *EventBus) SubscribePromptQueued(fn func(PromptQueuedPayload)) {
	subscribe(bus, EventPromptQueued, fn)
}

func (bus *EventBus) PublishTaskDelta(p TaskDeltaPayload) {
	bus.send(EventTaskDelta, p)
}

func (bus *EventBus) SubscribeTaskDelta(fn func(TaskDeltaPayload)) {
	subscribe(bus, EventTaskDelta, fn)
}

func (bus *EventBus) PublishTasksPruned(p TasksPrunedPayload) {
	bus.send(EventTasksPruned, p)
}

func (bus *EventBus) SubscribeTasksPruned(fn func(TasksPrunedPayload)) {
	subscribe(bus, EventTasksPruned, fn)
}
