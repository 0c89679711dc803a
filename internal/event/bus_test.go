package event

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

var testTime = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func TestBus_Subscribe(t *testing.T) {
	bus := NewBus(nil)

	called := false
	id, err := bus.Subscribe("swap.started", func(e Event) {
		called = true
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if id == "" {
		t.Error("Subscribe should return a non-empty ID")
	}
	if bus.SubscriptionCount() != 1 {
		t.Errorf("Expected 1 subscription, got %d", bus.SubscriptionCount())
	}
	if called {
		t.Error("Handler should not be called until an event is published")
	}
}

func TestBus_SubscribeInvalidPattern(t *testing.T) {
	bus := NewBus(nil)
	if _, err := bus.Subscribe("swap.[", func(Event) {}); err == nil {
		t.Error("Subscribe should reject an invalid pattern")
	}
	if bus.SubscriptionCount() != 0 {
		t.Errorf("invalid pattern should not register, got %d subscriptions", bus.SubscriptionCount())
	}
}

func TestBus_Publish(t *testing.T) {
	bus := NewBus(nil)

	var received Event
	bus.MustSubscribe(TypeSwapCommitted, func(e Event) {
		received = e
	})

	bus.Publish(NewSwapCommittedEvent(testTime, "s-1", "parkour_2", "parkour_1", "vote", 3*time.Second))

	if received == nil {
		t.Fatal("Handler should have received the event")
	}
	committed, ok := received.(SwapCommittedEvent)
	if !ok {
		t.Fatalf("received %T, want SwapCommittedEvent", received)
	}
	if committed.Slot != "parkour_2" || committed.Previous != "parkour_1" {
		t.Errorf("unexpected payload: %+v", committed)
	}
	if !committed.Timestamp().Equal(testTime) {
		t.Errorf("Timestamp() = %v, want %v", committed.Timestamp(), testTime)
	}
}

func TestBus_PatternMatching(t *testing.T) {
	tests := []struct {
		pattern string
		event   Event
		want    bool
	}{
		{"swap.*", NewSwapStartedEvent(testTime, "s", "a", "roll"), true},
		{"swap.*", NewSwapRolledBackEvent(testTime, "s", "a", "roll", "boom", true), true},
		{"swap.*", NewVoteStartedEvent(testTime, "s", "alice", "switch", nil, time.Minute), false},
		{"{vote.resolved,roll.deferred}", NewRollDeferredEvent(testTime, "s", testTime, "busy"), true},
		{"{vote.resolved,roll.deferred}", NewRollDelayedEvent(testTime, "s", time.Minute, testTime), false},
		{"*.registered", NewSessionRegisteredEvent(testTime, "s", "vote"), true},
		{"vote.resolved", NewVoteOvertimeEvent(testTime, "s", 1, []string{"a", "b"}), false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"/"+tt.event.EventType(), func(t *testing.T) {
			bus := NewBus(nil)
			got := false
			bus.MustSubscribe(tt.pattern, func(Event) { got = true })
			bus.Publish(tt.event)
			if got != tt.want {
				t.Errorf("pattern %q on %q: got %v, want %v", tt.pattern, tt.event.EventType(), got, tt.want)
			}
		})
	}
}

func TestBus_PublishMultipleHandlersInOrder(t *testing.T) {
	bus := NewBus(nil)

	var order []int
	bus.MustSubscribe("vote.*", func(Event) { order = append(order, 1) })
	bus.SubscribeAll(func(Event) { order = append(order, 2) })
	bus.MustSubscribe(TypeVoteResolved, func(Event) { order = append(order, 3) })

	bus.Publish(NewVoteResolvedEvent(testTime, "s", "alice", "switch", []string{"a"}, 3, 0, false))

	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("handlers ran in order %v, want [1 2 3]", order)
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus(nil)

	called := 0
	id := bus.MustSubscribe("roll.*", func(Event) { called++ })
	keep := bus.SubscribeAll(func(Event) {})

	if !bus.Unsubscribe(id) {
		t.Error("Unsubscribe should return true for an existing subscription")
	}
	if bus.Unsubscribe(id) {
		t.Error("Unsubscribe should return false the second time")
	}
	if bus.Unsubscribe("missing") {
		t.Error("Unsubscribe should return false for unknown IDs")
	}

	bus.Publish(NewRollScheduledEvent(testTime, "s", testTime))
	if called != 0 {
		t.Errorf("unsubscribed handler was called %d times", called)
	}
	if bus.SubscriptionCount() != 1 {
		t.Errorf("Expected 1 remaining subscription, got %d", bus.SubscriptionCount())
	}
	if !bus.Unsubscribe(keep) {
		t.Error("remaining subscription should still be removable")
	}
}

func TestBus_Clear(t *testing.T) {
	bus := NewBus(nil)
	bus.MustSubscribe("a.b", func(Event) {})
	bus.SubscribeAll(func(Event) {})

	bus.Clear()

	if bus.SubscriptionCount() != 0 {
		t.Errorf("Expected 0 subscriptions after Clear, got %d", bus.SubscriptionCount())
	}
}

func TestBus_HandlerPanicRecovery(t *testing.T) {
	bus := NewBus(nil)

	secondCalled := false
	bus.SubscribeAll(func(Event) { panic("boom") })
	bus.SubscribeAll(func(Event) { secondCalled = true })

	bus.Publish(NewSessionClearedEvent(testTime, "s", "slot_swap"))

	if !secondCalled {
		t.Error("second handler should run after the first panics")
	}
}

func TestBus_ConcurrentPublish(t *testing.T) {
	bus := NewBus(nil)

	var count atomic.Int64
	bus.MustSubscribe("session.*", func(Event) { count.Add(1) })

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Publish(NewSessionRegisteredEvent(testTime, "s", "vote"))
		}()
	}
	wg.Wait()

	if count.Load() != 50 {
		t.Errorf("Expected 50 deliveries, got %d", count.Load())
	}
}

func TestBus_ConcurrentSubscribeUnsubscribe(t *testing.T) {
	bus := NewBus(nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := bus.MustSubscribe("swap.*", func(Event) {})
			bus.Publish(NewSwapStartedEvent(testTime, "s", "a", "command"))
			bus.Unsubscribe(id)
		}()
	}
	wg.Wait()

	if bus.SubscriptionCount() != 0 {
		t.Errorf("Expected 0 subscriptions, got %d", bus.SubscriptionCount())
	}
}

func TestBus_UniqueIDs(t *testing.T) {
	bus := NewBus(nil)
	seen := make(map[string]bool)
	for i := 0; i < 500; i++ {
		id := bus.SubscribeAll(func(Event) {})
		if seen[id] {
			t.Fatalf("duplicate subscription ID %q", id)
		}
		seen[id] = true
	}
}
