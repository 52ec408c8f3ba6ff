package eventbus

import (
	"slices"
	"sync"
)

type (
	// PublishHook observes an event after it is queued for delivery.
	PublishHook func(event Event, payload any)
	// DropHook observes an event that did not fit in the buffer. It runs on
	// the publishing goroutine, so it must not block.
	DropHook func(event Event, payload any)
	// SubscribeHook observes a new subscription.
	SubscribeHook func(event Event)
	// PanicHook observes a subscriber that panicked while handling payload.
	PanicHook func(event Event, payload any, recovered any)
)

type hooks struct {
	mu          sync.RWMutex
	onPublish   []PublishHook
	onDrop      []DropHook
	onSubscribe []SubscribeHook
	onPanic     []PanicHook
}

func addHook[H any](bus *EventBus, list *[]H, fn H) {
	bus.hooks.mu.Lock()
	*list = append(*list, fn)
	bus.hooks.mu.Unlock()
}

// snapshot copies a hook list so hooks run without holding the lock and may
// register further hooks.
func snapshot[H any](bus *EventBus, list []H) []H {
	bus.hooks.mu.RLock()
	defer bus.hooks.mu.RUnlock()
	return slices.Clone(list)
}

// OnPublish registers a hook that fires after an event is queued.
func (bus *EventBus) OnPublish(fn PublishHook) { addHook(bus, &bus.hooks.onPublish, fn) }

// OnDrop registers a hook that fires when an event is dropped because the
// buffer is full.
func (bus *EventBus) OnDrop(fn DropHook) { addHook(bus, &bus.hooks.onDrop, fn) }

// OnSubscribe registers a hook that fires after a subscriber is registered.
func (bus *EventBus) OnSubscribe(fn SubscribeHook) { addHook(bus, &bus.hooks.onSubscribe, fn) }

// OnPanic registers a hook that fires when a subscriber panics.
func (bus *EventBus) OnPanic(fn PanicHook) { addHook(bus, &bus.hooks.onPanic, fn) }

// send enqueues an event without blocking, then runs the publish or drop
// hooks.
func (bus *EventBus) send(event Event, payload any) {
	select {
	case bus.ch <- envelope{event: event, payload: payload}:
		for _, fn := range snapshot(bus, bus.hooks.onPublish) {
			fn(event, payload)
		}
	default:
		for _, fn := range snapshot(bus, bus.hooks.onDrop) {
			fn(event, payload)
		}
	}
}

func (bus *EventBus) runOnSubscribe(event Event) {
	for _, fn := range snapshot(bus, bus.hooks.onSubscribe) {
		fn(event)
	}
}

// runOnPanic isolates each hook; a panicking hook must not take down the
// delivery loop.
func (bus *EventBus) runOnPanic(event Event, payload any, recovered any) {
	for _, fn := range snapshot(bus, bus.hooks.onPanic) {
		func() {
			defer func() { _ = recover() }()
			fn(event, payload, recovered)
		}()
	}
}
