package notify

import (
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

func drain(t *testing.T, ch <-chan struct{}, want int, timeout time.Duration) {
	t.Helper()
	for i := 0; i < want; i++ {
		select {
		case <-ch:
		case <-time.After(timeout):
			t.Fatalf("timed out waiting for delivery %d/%d", i+1, want)
		}
	}
}

func TestEventBus_PublishDeliversToMatchingKind(t *testing.T) {
	bus := NewEventBus(nil, BusConfig{Workers: 1, BufferSize: 8})
	defer bus.Close()

	got := make(chan struct{}, 4)
	bus.Subscribe(EventOrderFilled, func(ev Event) error {
		got <- struct{}{}
		return nil
	}, SubscriptionOptions{Async: false})

	bus.Publish(Event{Kind: EventOrderFilled})
	bus.Publish(Event{Kind: EventRiskAlert}) // different kind, should not reach the subscriber

	drain(t, got, 1, time.Second)

	select {
	case <-got:
		t.Fatal("received a delivery for a non-matching event kind")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEventBus_SubscribeAllReceivesEveryKind(t *testing.T) {
	bus := NewEventBus(nil, BusConfig{Workers: 1, BufferSize: 8})
	defer bus.Close()

	var mu sync.Mutex
	var kinds []EventKind
	got := make(chan struct{}, 4)
	bus.SubscribeAll(func(ev Event) error {
		mu.Lock()
		kinds = append(kinds, ev.Kind)
		mu.Unlock()
		got <- struct{}{}
		return nil
	}, SubscriptionOptions{Async: false})

	bus.Publish(Event{Kind: EventOrderFilled})
	bus.Publish(Event{Kind: EventRiskAlert})

	drain(t, got, 2, time.Second)

	mu.Lock()
	defer mu.Unlock()
	if len(kinds) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(kinds))
	}
}

func TestEventBus_UnsubscribeStopsDelivery(t *testing.T) {
	bus := NewEventBus(nil, BusConfig{Workers: 1, BufferSize: 8})
	defer bus.Close()

	got := make(chan struct{}, 4)
	sub := bus.Subscribe(EventSystemError, func(ev Event) error {
		got <- struct{}{}
		return nil
	}, SubscriptionOptions{Async: false})

	bus.Publish(Event{Kind: EventSystemError})
	drain(t, got, 1, time.Second)

	bus.Unsubscribe(sub)
	bus.Publish(Event{Kind: EventSystemError})

	select {
	case <-got:
		t.Fatal("received a delivery after unsubscribing")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEventBus_FilterExcludesNonMatchingEvents(t *testing.T) {
	bus := NewEventBus(nil, BusConfig{Workers: 1, BufferSize: 8})
	defer bus.Close()

	got := make(chan struct{}, 4)
	bus.Subscribe(EventRiskAlert, func(ev Event) error {
		got <- struct{}{}
		return nil
	}, SubscriptionOptions{
		Async:  false,
		Filter: func(ev Event) bool { return ev.Priority == PriorityCritical },
	})

	bus.Publish(Event{Kind: EventRiskAlert, Priority: PriorityLow})
	bus.Publish(Event{Kind: EventRiskAlert, Priority: PriorityCritical})

	drain(t, got, 1, time.Second)
	select {
	case <-got:
		t.Fatal("filter should have excluded the low-priority event")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEventBus_HandlerErrorIsCountedNotFatal(t *testing.T) {
	bus := NewEventBus(nil, BusConfig{Workers: 1, BufferSize: 8})
	defer bus.Close()

	done := make(chan struct{}, 1)
	bus.Subscribe(EventSignalAlert, func(ev Event) error {
		done <- struct{}{}
		return errors.New("boom")
	}, SubscriptionOptions{Async: false})

	bus.Publish(Event{Kind: EventSignalAlert})
	drain(t, done, 1, time.Second)

	// Give the worker a moment to record the error after the handler returns.
	time.Sleep(10 * time.Millisecond)
	if stats := bus.Stats(); stats.HandlerErrors != 1 {
		t.Errorf("HandlerErrors = %d, want 1", stats.HandlerErrors)
	}
}

func TestEventBus_PublishStampsTimestampWhenZero(t *testing.T) {
	bus := NewEventBus(nil, BusConfig{Workers: 1, BufferSize: 8})
	defer bus.Close()

	got := make(chan Event, 1)
	bus.Subscribe(EventDailySummary, func(ev Event) error {
		got <- ev
		return nil
	}, SubscriptionOptions{Async: false})

	before := time.Now()
	bus.Publish(Event{Kind: EventDailySummary})

	select {
	case ev := <-got:
		if ev.Timestamp.Before(before) {
			t.Error("expected a stamped timestamp at or after publish time")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

func TestEventBus_PublishDropsWhenBufferFull(t *testing.T) {
	// Zero workers: nothing drains the channel, so the buffer fills deterministically.
	bus := &EventBus{
		logger:      zap.NewNop(),
		subscribers: make(map[EventKind][]*Subscription),
		events:      make(chan Event, 1),
		stop:        make(chan struct{}),
	}

	bus.Publish(Event{Kind: EventCustom})
	bus.Publish(Event{Kind: EventCustom})

	if stats := bus.Stats(); stats.Dropped != 1 {
		t.Errorf("Dropped = %d, want 1", stats.Dropped)
	}
}
