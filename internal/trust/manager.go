// Package trust maintains the pending incoming trust request cache and
// the accept/reject workflow.
package trust

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/gettogether/peersync/internal/bridge"
	"github.com/gettogether/peersync/internal/bus"
	"github.com/gettogether/peersync/internal/snapshot"
)

// KindUpdated is published whenever an account's trust request cache
// changes.
const KindUpdated = "trust.updated"

// acceptSettleMS is how long Accept waits before refreshing contacts: the
// daemon does not guarantee the new contact is listed immediately after
// the accept call returns.
const acceptSettleMS = 500

// Request is one pending incoming trust request.
type Request struct {
	From           string
	ConversationID string
	Payload        []byte
	ReceivedAt     int64
}

// Contacts is the slice of the contact synchronizer the trust workflow
// needs: a live-list refresh after an accept, and the same optimistic
// block the contact actions use on reject.
type Contacts interface {
	Refresh(ctx context.Context, accountID string) error
	BlockContact(ctx context.Context, accountID, uri string) error
}

// Manager keeps the per-account trust request cache, deduplicated by
// sender identity.
type Manager struct {
	holder   *bridge.Holder
	contacts Contacts
	bus      *bus.Bus
	logger   *zap.Logger
	requests *snapshot.Map[Request]
	cancel   context.CancelFunc

	// sleep waits for d unless ctx is done first. Injectable for tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewManager creates a trust request manager.
func NewManager(holder *bridge.Holder, contacts Contacts, b *bus.Bus, logger *zap.Logger) *Manager {
	return &Manager{
		holder:   holder,
		contacts: contacts,
		bus:      b,
		logger:   logger,
		requests: snapshot.NewMap[Request](),
		sleep: func(ctx context.Context, d time.Duration) error {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-t.C:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	}
}

func key(accountID, from string) string {
	return accountID + "/" + from
}

// Load seeds the cache from the daemon's pending request list.
func (m *Manager) Load(ctx context.Context, accountID string) error {
	entries, err := m.holder.Bridge().GetTrustRequests(ctx, accountID)
	if err != nil {
		return fmt.Errorf("list trust requests: %w", err)
	}
	for _, e := range entries {
		m.add(accountID, Request{
			From:           e.From,
			ConversationID: e.ConversationID,
			Payload:        e.Payload,
			ReceivedAt:     e.Received,
		})
	}
	m.publish(accountID)
	return nil
}

// List returns an account's pending requests, oldest first.
func (m *Manager) List(accountID string) []Request {
	prefix := accountID + "/"
	var out []Request
	for k, req := range m.requests.Snapshot() {
		if strings.HasPrefix(k, prefix) {
			out = append(out, req)
		}
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].ReceivedAt != out[b].ReceivedAt {
			return out[a].ReceivedAt < out[b].ReceivedAt
		}
		return out[a].From < out[b].From
	})
	return out
}

// Accept accepts a pending request, then refreshes contacts after a short
// settle delay so the new peer surfaces in the contact list.
func (m *Manager) Accept(ctx context.Context, accountID, from string) error {
	if err := m.holder.Bridge().AcceptTrustRequest(ctx, accountID, from); err != nil {
		return err
	}
	m.remove(accountID, from)
	m.publish(accountID)

	if err := m.sleep(ctx, acceptSettleMS*time.Millisecond); err != nil {
		return err
	}
	if err := m.contacts.Refresh(ctx, accountID); err != nil {
		m.logger.Warn("contact refresh after accept failed",
			zap.String("from", from), zap.Error(err))
	}
	return nil
}

// Reject escalates to a block: a soft discard is purely local and the
// remote peer keeps re-sending the request. The block goes through the
// contact synchronizer so the cached banned flag flips immediately, like
// every other block path. Any conversation the request carried is
// removed as well.
func (m *Manager) Reject(ctx context.Context, accountID, from string) error {
	req, ok := m.requests.Get(key(accountID, from))
	br := m.holder.Bridge()

	if err := m.contacts.BlockContact(ctx, accountID, from); err != nil {
		return err
	}
	if ok && req.ConversationID != "" {
		if err := br.RemoveConversation(ctx, accountID, req.ConversationID); err != nil {
			m.logger.Warn("conversation removal on reject failed",
				zap.String("conversation_id", req.ConversationID), zap.Error(err))
		}
	}
	if err := br.DiscardTrustRequest(ctx, accountID, from); err != nil {
		m.logger.Warn("trust request discard failed",
			zap.String("from", from), zap.Error(err))
	}

	m.remove(accountID, from)
	m.publish(accountID)
	return nil
}

// HandleEvent ingests one incoming request, deduplicated by sender.
func (m *Manager) HandleEvent(ev bridge.TrustRequestEvent) {
	if m.add(ev.AccountID, Request{
		From:           ev.From,
		ConversationID: ev.ConversationID,
		Payload:        ev.Payload,
		ReceivedAt:     ev.Received,
	}) {
		m.publish(ev.AccountID)
	}
}

// ClearAccount drops an account's pending requests on account switch.
func (m *Manager) ClearAccount(accountID string) {
	prefix := accountID + "/"
	m.requests.DeleteFunc(func(k string, _ Request) bool {
		return strings.HasPrefix(k, prefix)
	})
}

// Start pumps incoming trust request events.
func (m *Manager) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	ch, unsub := m.bus.Subscribe(bridge.KindTrustRequest, 256)
	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				if ev, ok := evt.Payload.(bridge.TrustRequestEvent); ok {
					m.HandleEvent(ev)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop cancels the event pump.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
}

// add inserts a request unless the sender already has one pending.
func (m *Manager) add(accountID string, req Request) bool {
	inserted := false
	m.requests.Update(key(accountID, req.From), func(cur Request, ok bool) (Request, bool) {
		if ok {
			return cur, false
		}
		inserted = true
		return req, true
	})
	return inserted
}

func (m *Manager) remove(accountID, from string) {
	m.requests.Delete(key(accountID, from))
}

func (m *Manager) publish(accountID string) {
	m.bus.Publish(bus.Event{
		Kind:      KindUpdated,
		AccountID: accountID,
		Timestamp: time.Now(),
		Payload:   accountID,
	})
}
