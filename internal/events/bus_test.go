package events

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func TestEmitSyncDeliversToAllHandlers(t *testing.T) {
	bus := NewEventBus()
	defer bus.Stop()

	var got atomic.Int32
	bus.SubscribeMany([]EventType{EventSessionStarted, EventSessionEnded}, "counter", func(ctx context.Context, e Event) error {
		got.Add(1)
		return nil
	})

	if err := bus.EmitSync(context.Background(), Event{Type: EventSessionStarted}); err != nil {
		t.Fatal(err)
	}
	if err := bus.EmitSync(context.Background(), Event{Type: EventSessionEnded}); err != nil {
		t.Fatal(err)
	}
	if got.Load() != 2 {
		t.Errorf("handler ran %d times, want 2", got.Load())
	}
	if bus.HandlerCount(EventDpsCleared) != 0 {
		t.Error("unexpected handler for dps_cleared")
	}
}

func TestEmitSyncReturnsHandlerError(t *testing.T) {
	bus := NewEventBus()
	defer bus.Stop()

	wantErr := errors.New("sink down")
	bus.Subscribe(EventUserDeleted, "failing", func(ctx context.Context, e Event) error {
		return wantErr
	})

	if err := bus.EmitSync(context.Background(), Event{Type: EventUserDeleted}); !errors.Is(err, wantErr) {
		t.Fatalf("EmitSync error = %v, want %v", err, wantErr)
	}
}

func TestEmitAsyncSurvivesPanics(t *testing.T) {
	bus := NewEventBus()

	var wg sync.WaitGroup
	wg.Add(1)
	bus.Subscribe(EventDpsCleared, "panicky", func(ctx context.Context, e Event) error {
		panic("boom")
	})
	bus.Subscribe(EventDpsCleared, "ok", func(ctx context.Context, e Event) error {
		wg.Done()
		return nil
	})

	bus.Emit(context.Background(), Event{Type: EventDpsCleared})
	wg.Wait()
	bus.Stop()
	bus.Stop()

	// Events after Stop are dropped silently.
	bus.Emit(context.Background(), Event{Type: EventDpsCleared})
}

func TestUnsubscribe(t *testing.T) {
	bus := NewEventBus()
	defer bus.Stop()

	bus.Subscribe(EventPauseChanged, "a", func(ctx context.Context, e Event) error { return nil })
	bus.Subscribe(EventPauseChanged, "b", func(ctx context.Context, e Event) error { return nil })
	bus.Unsubscribe(EventPauseChanged, "a")

	if n := bus.HandlerCount(EventPauseChanged); n != 1 {
		t.Errorf("HandlerCount = %d, want 1", n)
	}
}
