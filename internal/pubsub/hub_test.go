package pubsub

import "testing"

func TestHubDeliversToOwnerOnly(t *testing.T) {
	h := NewHub()
	mine, cancelMine := h.Subscribe("owner-1", 4)
	defer cancelMine()
	other, cancelOther := h.Subscribe("owner-2", 4)
	defer cancelOther()

	h.Publish(Event{Entity: EntityTransaction, Op: OpCreated, OwnerID: "owner-1", ID: "tx-1"})

	select {
	case e := <-mine:
		if e.ID != "tx-1" || e.Op != OpCreated {
			t.Fatalf("unexpected event: %+v", e)
		}
	default:
		t.Fatalf("expected event for owner-1")
	}
	select {
	case e := <-other:
		t.Fatalf("owner-2 received foreign event: %+v", e)
	default:
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe("owner-1", 1)
	cancel()

	if _, ok := <-ch; ok {
		t.Fatalf("expected closed channel after unsubscribe")
	}
	if n := h.SubscriberCount("owner-1"); n != 0 {
		t.Fatalf("expected 0 subscribers, got %d", n)
	}
	// Publishing after unsubscribe must not panic.
	h.Publish(Event{Entity: EntityAccount, Op: OpDeleted, OwnerID: "owner-1", ID: "a"})
}

func TestPublishNeverBlocks(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe("owner-1", 1)
	defer cancel()

	// Fill the buffer, then publish past it.
	h.Publish(Event{Entity: EntityTransaction, Op: OpCreated, OwnerID: "owner-1", ID: "tx-1"})
	h.Publish(Event{Entity: EntityTransaction, Op: OpCreated, OwnerID: "owner-1", ID: "tx-2"})

	e := <-ch
	if e.ID != "tx-1" {
		t.Fatalf("expected first event, got %+v", e)
	}
	select {
	case e := <-ch:
		t.Fatalf("expected second event dropped, got %+v", e)
	default:
	}
}
