package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("contacts.", 10)
	defer unsub()

	b.Publish(Event{Kind: "contacts.updated", AccountID: "acc1", Timestamp: time.Now()})

	select {
	case evt := <-ch:
		if evt.Kind != "contacts.updated" {
			t.Errorf("got kind %q, want contacts.updated", evt.Kind)
		}
		if evt.AccountID != "acc1" {
			t.Errorf("got account %q, want acc1", evt.AccountID)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestNamespaceFiltering(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("presence.", 10)
	defer unsub()

	b.Publish(Event{Kind: "contacts.updated"})
	b.Publish(Event{Kind: "presence.updated"})

	select {
	case evt := <-ch:
		if evt.Kind != "presence.updated" {
			t.Errorf("got kind %q, want presence.updated", evt.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	// Ensure the contacts event was not delivered.
	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
		// Expected: no more events.
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("contacts.", 10)
	unsub()

	b.Publish(Event{Kind: "contacts.updated"})

	select {
	case evt := <-ch:
		t.Errorf("received event after unsubscribe: %v", evt)
	case <-time.After(50 * time.Millisecond):
		// Expected.
	}
}

func TestDropOnFullBuffer(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("test.", 1)
	defer unsub()

	// Fill buffer.
	b.Publish(Event{Kind: "test.one"})
	// This should be dropped (non-blocking).
	b.Publish(Event{Kind: "test.two"})

	evt := <-ch
	if evt.Kind != "test.one" {
		t.Errorf("got %q, want test.one", evt.Kind)
	}
}
