package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestBusPublishSubscribe(t *testing.T) {
	bus := NewBus(64)
	defer bus.Close()

	var mu sync.Mutex
	var received []Event

	bus.Subscribe(func(e Event) {
		mu.Lock()
		received = append(received, e)
		mu.Unlock()
	}, EventModeApplied)

	bus.Publish(NewTypedEvent("test", ModeAppliedPayload{Period: "night", Mode: "dark"}))
	bus.Publish(NewTypedEvent("test", ScheduleEvaluatedPayload{Period: "night"}))

	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	if len(received) != 1 {
		t.Fatalf("expected 1 event, got %d", len(received))
	}
	if received[0].Type != EventModeApplied {
		t.Errorf("expected mode.applied, got %s", received[0].Type)
	}
}

func TestBusSubscribeAll(t *testing.T) {
	bus := NewBus(64)
	defer bus.Close()

	var mu sync.Mutex
	count := 0

	bus.Subscribe(func(e Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	bus.Publish(NewTypedEvent("test", ModeAppliedPayload{Period: "day"}))
	bus.Publish(NewTypedEvent("test", ScheduleDegradedPayload{Reasons: []string{"x"}}))

	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	if count != 2 {
		t.Errorf("expected 2 events, got %d", count)
	}
}

func TestBusHistory(t *testing.T) {
	bus := NewBus(4)
	defer bus.Close()

	ch, unsub := bus.SubscribeChan(16)
	defer unsub()

	for i := 0; i < 3; i++ {
		bus.Publish(NewTypedEvent("test", ScheduleToggledPayload{Enabled: i%2 == 0}))
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for event")
		}
	}

	if got := bus.History(10); len(got) != 3 {
		t.Errorf("expected 3 events in history, got %d", len(got))
	}
}

func TestBusClosed(t *testing.T) {
	bus := NewBus(4)
	bus.Close()
	bus.Close()

	// Publishing after close is a no-op.
	bus.Publish(NewTypedEvent("test", ScheduleToggledPayload{}))

	err := bus.PublishAsync(context.Background(), NewTypedEvent("test", ScheduleToggledPayload{}))
	if !errors.Is(err, ErrBusClosed) {
		t.Errorf("expected ErrBusClosed, got %v", err)
	}
}

func TestRingBuffer(t *testing.T) {
	rb := NewRingBuffer(3)

	for i := 0; i < 5; i++ {
		rb.Add(NewEvent(EventModeApplied, "test", map[string]any{"i": i}))
	}

	events := rb.Get(10)
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[0].Payload["i"] != 2 || events[2].Payload["i"] != 4 {
		t.Errorf("expected oldest-first order, got %v .. %v", events[0].Payload, events[2].Payload)
	}
}

func TestSubscribeChan(t *testing.T) {
	bus := NewBus(64)
	defer bus.Close()

	ch, unsub := bus.SubscribeChan(8, EventModeApplied)
	defer unsub()

	bus.Publish(NewTypedEvent("test", ModeAppliedPayload{Mode: "dark"}))

	select {
	case e := <-ch:
		if e.Type != EventModeApplied {
			t.Errorf("expected mode.applied, got %s", e.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestSubscribeChanUnsubscribeTwice(t *testing.T) {
	bus := NewBus(8)
	defer bus.Close()

	_, unsub := bus.SubscribeChan(1)
	unsub()
	unsub()
}
