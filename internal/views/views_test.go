package views

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/gettogether/peersync/internal/bus"
	"github.com/gettogether/peersync/internal/contacts"
)

func newTestRegistry(grace time.Duration) (*Registry, *contacts.Cache, *bus.Bus) {
	cache := contacts.NewCache()
	eb := bus.New()
	r := NewRegistry(cache, eb, zap.NewNop())
	r.grace = grace
	return r, cache, eb
}

func setContact(cache *contacts.Cache, accountID string, c contacts.Contact) {
	cache.Update(accountID, c.URI, func(contacts.Contact, bool) (contacts.Contact, bool) {
		return c, true
	})
}

func publishUpdate(eb *bus.Bus, accountID string) {
	eb.Publish(bus.Event{Kind: contacts.KindUpdated, AccountID: accountID, Payload: accountID})
}

func TestInitialSnapshotDelivered(t *testing.T) {
	r, cache, _ := newTestRegistry(time.Minute)
	defer r.Close()
	setContact(cache, "acc1", contacts.Contact{URI: "peer1", DisplayName: "Alice"})

	ch, cancel := r.ContactList("acc1")
	defer cancel()

	select {
	case list := <-ch:
		if len(list) != 1 || list[0].URI != "peer1" {
			t.Errorf("initial list = %+v", list)
		}
	case <-time.After(time.Second):
		t.Fatal("no initial snapshot")
	}
}

func TestUpdatesReachAllSubscribers(t *testing.T) {
	r, cache, eb := newTestRegistry(time.Minute)
	defer r.Close()

	ch1, cancel1 := r.ContactList("acc1")
	ch2, cancel2 := r.ContactList("acc1")
	defer cancel1()
	defer cancel2()
	<-ch1
	<-ch2

	if got := r.Subscribers("acc1"); got != 2 {
		t.Fatalf("subscribers = %d, want 2 sharing one view", got)
	}

	setContact(cache, "acc1", contacts.Contact{URI: "peer1", DisplayName: "Alice"})
	publishUpdate(eb, "acc1")

	for _, ch := range []<-chan []contacts.Contact{ch1, ch2} {
		select {
		case list := <-ch:
			if len(list) != 1 {
				t.Errorf("update list = %+v", list)
			}
		case <-time.After(time.Second):
			t.Fatal("update never delivered")
		}
	}
}

func TestOtherAccountUpdatesFiltered(t *testing.T) {
	r, cache, eb := newTestRegistry(time.Minute)
	defer r.Close()

	ch, cancel := r.ContactList("acc1")
	defer cancel()
	<-ch

	setContact(cache, "acc2", contacts.Contact{URI: "peer1"})
	publishUpdate(eb, "acc2")

	select {
	case list := <-ch:
		t.Errorf("cross-account update delivered: %+v", list)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestGracePeriodKeepsViewWarm(t *testing.T) {
	r, _, _ := newTestRegistry(time.Minute)
	defer r.Close()

	_, cancel := r.ContactList("acc1")
	cancel()

	// Inside the grace window the view object must still exist so a
	// resubscribe reuses it.
	r.mu.Lock()
	_, alive := r.views["acc1"]
	r.mu.Unlock()
	if !alive {
		t.Error("view torn down before the grace period")
	}

	ch, cancel2 := r.ContactList("acc1")
	defer cancel2()
	<-ch
	if got := r.Subscribers("acc1"); got != 1 {
		t.Errorf("subscribers = %d after resubscribe, want 1", got)
	}
}

func TestTeardownAfterGrace(t *testing.T) {
	r, _, _ := newTestRegistry(20 * time.Millisecond)
	defer r.Close()

	_, cancel := r.ContactList("acc1")
	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for {
		r.mu.Lock()
		_, alive := r.views["acc1"]
		r.mu.Unlock()
		if !alive {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("view never torn down after grace period")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	r, _, _ := newTestRegistry(time.Minute)
	defer r.Close()

	_, cancelA := r.ContactList("acc1")
	chB, cancelB := r.ContactList("acc1")
	<-chB

	cancelA()
	cancelA()

	if got := r.Subscribers("acc1"); got != 1 {
		t.Errorf("subscribers = %d, want 1 (double cancel must not detach others)", got)
	}
	cancelB()
}
