package events_test

import (
	"testing"
	"time"

	"shelf/internal/events"
)

func makeEvent(opID, msg string) events.Event {
	return events.Event{
		OperationID: opID,
		Level:       events.LevelInfo,
		Message:     msg,
		Timestamp:   time.Now().UTC(),
	}
}

func TestPublishReachesAllSubscribers(t *testing.T) {
	hub := events.NewHub(8)
	first := hub.Subscribe("op-1")
	second := hub.Subscribe("op-1")

	hub.Publish(makeEvent("op-1", "hello"))

	for _, sub := range []*events.Subscription{first, second} {
		select {
		case evt := <-sub.C:
			if evt.Message != "hello" {
				t.Fatalf("unexpected message %q", evt.Message)
			}
		default:
			t.Fatal("expected buffered event")
		}
	}
}

func TestPublishScopedToOperation(t *testing.T) {
	hub := events.NewHub(8)
	sub := hub.Subscribe("op-a")

	hub.Publish(makeEvent("op-b", "other"))

	select {
	case evt := <-sub.C:
		t.Fatalf("unexpected delivery: %+v", evt)
	default:
	}
}

func TestLateSubscriberMissesEarlierEvents(t *testing.T) {
	hub := events.NewHub(8)
	hub.Publish(makeEvent("op-1", "early"))

	sub := hub.Subscribe("op-1")
	select {
	case evt := <-sub.C:
		t.Fatalf("late subscriber should see no backlog, got %+v", evt)
	default:
	}

	hub.Publish(makeEvent("op-1", "late"))
	if evt := <-sub.C; evt.Message != "late" {
		t.Fatalf("expected live event, got %q", evt.Message)
	}
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	hub := events.NewHub(2)
	sub := hub.Subscribe("op-1")

	for i := 0; i < 5; i++ {
		hub.Publish(makeEvent("op-1", "evt"))
	}

	if got := sub.Dropped(); got != 3 {
		t.Fatalf("expected 3 dropped deliveries, got %d", got)
	}
	received := 0
	for {
		select {
		case <-sub.C:
			received++
			continue
		default:
		}
		break
	}
	if received != 2 {
		t.Fatalf("expected 2 buffered events, got %d", received)
	}
}

func TestCloseDrainsThenCloses(t *testing.T) {
	hub := events.NewHub(8)
	sub := hub.Subscribe("op-1")

	hub.Publish(makeEvent("op-1", "final"))
	hub.Close("op-1")

	evt, ok := <-sub.C
	if !ok || evt.Message != "final" {
		t.Fatalf("expected buffered final event, got ok=%v evt=%+v", ok, evt)
	}
	if _, ok := <-sub.C; ok {
		t.Fatal("expected channel closed after drain")
	}
	if hub.SubscriberCount("op-1") != 0 {
		t.Fatal("expected no subscribers after close")
	}
}

func TestSubscribeAfterCloseYieldsClosedChannel(t *testing.T) {
	hub := events.NewHub(8)
	hub.Close("op-1")

	sub := hub.Subscribe("op-1")
	if _, ok := <-sub.C; ok {
		t.Fatal("expected immediately closed channel")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	hub := events.NewHub(8)
	sub := hub.Subscribe("op-1")
	hub.Unsubscribe(sub)

	if _, ok := <-sub.C; ok {
		t.Fatal("expected closed channel after unsubscribe")
	}
	// A second unsubscribe and a close must both be safe.
	hub.Unsubscribe(sub)
	hub.Close("op-1")
}
