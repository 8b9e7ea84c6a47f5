package trust

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/gettogether/peersync/internal/bridge"
	"github.com/gettogether/peersync/internal/bus"
	"github.com/gettogether/peersync/internal/contacts"
)

type fakeContacts struct {
	refreshed []string
	blocked   []string
}

func (f *fakeContacts) Refresh(_ context.Context, accountID string) error {
	f.refreshed = append(f.refreshed, accountID)
	return nil
}

func (f *fakeContacts) BlockContact(_ context.Context, _, uri string) error {
	f.blocked = append(f.blocked, uri)
	return nil
}

func newTestManager(b bridge.Bridge, fc *fakeContacts) *Manager {
	holder := bridge.NewHolder()
	holder.Attach(b)
	m := NewManager(holder, fc, bus.New(), zap.NewNop())
	m.sleep = func(context.Context, time.Duration) error { return nil }
	return m
}

func TestEventDedupBySender(t *testing.T) {
	m := newTestManager(&bridge.Fake{}, &fakeContacts{})

	m.HandleEvent(bridge.TrustRequestEvent{AccountID: "acc1", From: "peer1", Received: 100})
	m.HandleEvent(bridge.TrustRequestEvent{AccountID: "acc1", From: "peer1", Received: 200})
	m.HandleEvent(bridge.TrustRequestEvent{AccountID: "acc1", From: "peer2", Received: 150})

	list := m.List("acc1")
	if len(list) != 2 {
		t.Fatalf("pending = %d, want 2 (one per sender)", len(list))
	}
	if list[0].From != "peer1" || list[0].ReceivedAt != 100 {
		t.Errorf("first = %+v, want the original peer1 request", list[0])
	}
}

func TestLoadSeedsCache(t *testing.T) {
	m := newTestManager(&bridge.Fake{
		GetTrustRequestsFunc: func(context.Context, string) ([]bridge.TrustRequestEntry, error) {
			return []bridge.TrustRequestEntry{
				{From: "peer1", ConversationID: "conv1", Received: 100},
				{From: "peer2", Received: 200},
			}, nil
		},
	}, &fakeContacts{})

	if err := m.Load(context.Background(), "acc1"); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := len(m.List("acc1")); got != 2 {
		t.Errorf("pending = %d, want 2", got)
	}
}

func TestAcceptRemovesAndRefreshes(t *testing.T) {
	accepted := ""
	fc := &fakeContacts{}
	m := newTestManager(&bridge.Fake{
		AcceptTrustRequestFunc: func(_ context.Context, _, from string) error {
			accepted = from
			return nil
		},
	}, fc)
	m.HandleEvent(bridge.TrustRequestEvent{AccountID: "acc1", From: "peer1"})

	if err := m.Accept(context.Background(), "acc1", "peer1"); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if accepted != "peer1" {
		t.Errorf("accepted = %q, want peer1", accepted)
	}
	if got := len(m.List("acc1")); got != 0 {
		t.Errorf("pending = %d, want 0 after accept", got)
	}
	if len(fc.refreshed) != 1 || fc.refreshed[0] != "acc1" {
		t.Errorf("refreshed = %v, want one contact refresh", fc.refreshed)
	}
}

func TestAcceptCancelledDuringSettle(t *testing.T) {
	fc := &fakeContacts{}
	holder := bridge.NewHolder()
	holder.Attach(&bridge.Fake{})
	m := NewManager(holder, fc, bus.New(), zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	m.sleep = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}
	m.HandleEvent(bridge.TrustRequestEvent{AccountID: "acc1", From: "peer1"})

	if err := m.Accept(ctx, "acc1", "peer1"); err != context.Canceled {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if len(fc.refreshed) != 0 {
		t.Errorf("refresh ran after cancellation: %v", fc.refreshed)
	}
}

func TestRejectEscalatesToBlock(t *testing.T) {
	var removedConv, discarded string
	fc := &fakeContacts{}
	m := newTestManager(&bridge.Fake{
		RemoveConversationFunc: func(_ context.Context, _, conversationID string) error {
			removedConv = conversationID
			return nil
		},
		DiscardTrustRequestFunc: func(_ context.Context, _, from string) error {
			discarded = from
			return nil
		},
	}, fc)
	m.HandleEvent(bridge.TrustRequestEvent{AccountID: "acc1", From: "peer1", ConversationID: "conv1"})

	if err := m.Reject(context.Background(), "acc1", "peer1"); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if len(fc.blocked) != 1 || fc.blocked[0] != "peer1" {
		t.Errorf("blocked = %v, want [peer1]", fc.blocked)
	}
	if removedConv != "conv1" {
		t.Errorf("removed conversation = %q, want conv1", removedConv)
	}
	if discarded != "peer1" {
		t.Errorf("discarded = %q, want peer1", discarded)
	}
	if got := len(m.List("acc1")); got != 0 {
		t.Errorf("pending = %d, want 0 after reject", got)
	}
}

type nopPersist struct{}

func (nopPersist) LoadContacts(context.Context, string) ([]contacts.Contact, error) { return nil, nil }
func (nopPersist) SaveContacts(context.Context, string, []contacts.Contact) error  { return nil }

type nopSubscriber struct{}

func (nopSubscriber) EnsureSubscribed(context.Context, string, string) {}

// Rejecting through a real contact synchronizer must leave the cached
// contact marked banned without waiting for a daemon round trip.
func TestRejectFlipsCachedBanFlag(t *testing.T) {
	holder := bridge.NewHolder()
	holder.Attach(&bridge.Fake{})

	cache := contacts.NewCache()
	cache.Update("acc1", "peer1", func(cur contacts.Contact, _ bool) (contacts.Contact, bool) {
		return contacts.Contact{URI: "peer1", DisplayName: "Peer One"}, true
	})
	cs := contacts.NewSynchronizer(holder, cache, nopPersist{}, nopSubscriber{}, bus.New(), zap.NewNop())

	m := NewManager(holder, cs, bus.New(), zap.NewNop())
	m.sleep = func(context.Context, time.Duration) error { return nil }
	m.HandleEvent(bridge.TrustRequestEvent{AccountID: "acc1", From: "peer1"})

	if err := m.Reject(context.Background(), "acc1", "peer1"); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	ct, ok := cache.Get("acc1", "peer1")
	if !ok {
		t.Fatal("contact dropped from cache, want it retained with the banned flag")
	}
	if !ct.Banned {
		t.Error("contact not marked banned after reject")
	}
	if ct.Online {
		t.Error("banned contact still marked online")
	}
}
