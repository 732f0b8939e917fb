package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// HandlerFunc handles one delivered event.
type HandlerFunc func(ctx context.Context, event Event) error

type subscriber struct {
	name string
	fn   HandlerFunc
}

// EventBus fans state store notifications out to the push channels.
// Every handler runs on its own goroutine; a handler that panics or
// errors is logged and does not affect the others.
type EventBus struct {
	mu      sync.RWMutex
	subs    map[EventType][]subscriber
	closed  bool
	done    chan struct{}
	pending sync.WaitGroup
}

// NewEventBus returns an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{
		subs: make(map[EventType][]subscriber),
		done: make(chan struct{}),
	}
}

// Subscribe adds fn under name for one event type. Names only serve
// Unsubscribe and log lines; duplicates are allowed.
func (eb *EventBus) Subscribe(eventType EventType, name string, fn HandlerFunc) {
	eb.mu.Lock()
	eb.subs[eventType] = append(eb.subs[eventType], subscriber{name: name, fn: fn})
	eb.mu.Unlock()

	log.Debug().Str("event", string(eventType)).Str("handler", name).Msg("handler subscribed")
}

// SubscribeMany adds fn to each of the given event types.
func (eb *EventBus) SubscribeMany(eventTypes []EventType, name string, fn HandlerFunc) {
	for _, t := range eventTypes {
		eb.Subscribe(t, name, fn)
	}
}

// Unsubscribe drops every handler registered under name for eventType.
func (eb *EventBus) Unsubscribe(eventType EventType, name string) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	current := eb.subs[eventType]
	kept := current[:0:0]
	for _, s := range current {
		if s.name != name {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		delete(eb.subs, eventType)
	} else {
		eb.subs[eventType] = kept
	}
}

// Emit delivers event without waiting. Stop waits for these deliveries.
func (eb *EventBus) Emit(ctx context.Context, event Event) {
	targets := eb.take(event.Type, &eb.pending)
	for _, s := range targets {
		go func(s subscriber) {
			defer eb.pending.Done()
			eb.deliver(ctx, s, event)
		}(s)
	}
}

// EmitSync delivers event and returns once every handler has finished.
// The first handler error is returned.
func (eb *EventBus) EmitSync(ctx context.Context, event Event) error {
	var wg sync.WaitGroup
	targets := eb.take(event.Type, &wg)

	errs := make([]error, len(targets))
	for i, s := range targets {
		go func(i int, s subscriber) {
			defer wg.Done()
			errs[i] = eb.deliver(ctx, s, event)
		}(i, s)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// take snapshots the handlers for t and reserves one slot per handler on wg.
// The reservation happens under the read lock so Stop cannot miss it.
func (eb *EventBus) take(t EventType, wg *sync.WaitGroup) []subscriber {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if eb.closed || len(eb.subs[t]) == 0 {
		return nil
	}
	targets := append([]subscriber(nil), eb.subs[t]...)
	wg.Add(len(targets))

	log.Trace().Str("event", string(t)).Int("handlers", len(targets)).Msg("dispatching event")
	return targets
}

func (eb *EventBus) deliver(ctx context.Context, s subscriber, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler %s panicked: %v", s.name, r)
		}
		if err != nil {
			log.Error().Err(err).
				Str("event", string(event.Type)).
				Str("source", event.Source).
				Str("handler", s.name).
				Msg("event handler failed")
		}
	}()
	return s.fn(ctx, event)
}

// Stop rejects further events and waits for in-flight async deliveries.
// It is safe to call more than once.
func (eb *EventBus) Stop() {
	eb.mu.Lock()
	if eb.closed {
		eb.mu.Unlock()
		return
	}
	eb.closed = true
	close(eb.done)
	eb.mu.Unlock()

	eb.pending.Wait()
	log.Info().Msg("event bus stopped")
}

// StopCh is closed once Stop has been called.
func (eb *EventBus) StopCh() <-chan struct{} {
	return eb.done
}

// HandlerCount reports how many handlers are registered for eventType.
func (eb *EventBus) HandlerCount(eventType EventType) int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.subs[eventType])
}
