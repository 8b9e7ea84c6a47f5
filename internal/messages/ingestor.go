package messages

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/gettogether/peersync/internal/bridge"
	"github.com/gettogether/peersync/internal/bus"
	"github.com/gettogether/peersync/internal/snapshot"
)

// KindUpdated is published after a message lands in a conversation cache.
const KindUpdated = "messages.updated"

// SelfResolver reports an account's own identity URI, used to skip
// notifications for self-authored echoes.
type SelfResolver interface {
	SelfURI(accountID string) string
}

// Notifier is the platform notification boundary. Failures are the
// implementation's problem; the ingestor never checks for one.
type Notifier interface {
	ShowMessage(accountID, conversationID string, msg Message)
}

// Ingestor maintains the ordered per-conversation message caches.
type Ingestor struct {
	cache    *snapshot.Map[[]Message]
	bus      *bus.Bus
	logger   *zap.Logger
	self     SelfResolver
	notifier Notifier
	// notifyEnabled gates notification dispatch; read per message so a
	// config reload takes effect immediately.
	notifyEnabled func() bool
	cancel        context.CancelFunc
}

// NewIngestor creates a message ingestor. notifier may be nil.
func NewIngestor(b *bus.Bus, logger *zap.Logger, self SelfResolver, notifier Notifier, notifyEnabled func() bool) *Ingestor {
	if notifyEnabled == nil {
		notifyEnabled = func() bool { return true }
	}
	return &Ingestor{
		cache:         snapshot.NewMap[[]Message](),
		bus:           b,
		logger:        logger,
		self:          self,
		notifier:      notifier,
		notifyEnabled: notifyEnabled,
	}
}

func convKey(accountID, conversationID string) string {
	return accountID + "/" + conversationID
}

// Ingest processes one live message event: classify, dedup by id, keep the
// list ordered, and notify for messages authored by someone else.
func (i *Ingestor) Ingest(ev bridge.MessageEvent) {
	msg, ok := FromEvent(ev)
	if !ok {
		return
	}
	if !i.insert(ev.AccountID, msg) {
		return
	}
	i.publish(ev.AccountID, msg, true)
	i.maybeNotify(ev.AccountID, msg)
}

// IngestBulk processes a "messages loaded" batch. An empty batch is a
// no-op: the daemon emits spurious empty load callbacks and those must
// never clear an already-populated cache.
func (i *Ingestor) IngestBulk(ev bridge.MessagesLoadedEvent) {
	if len(ev.Messages) == 0 {
		return
	}
	var lastInserted *Message
	for _, raw := range ev.Messages {
		msg, ok := FromEvent(raw)
		if !ok {
			continue
		}
		if i.insert(ev.AccountID, msg) {
			lastInserted = &msg
		}
	}
	if lastInserted != nil {
		i.publish(ev.AccountID, *lastInserted, false)
	}
}

// Append inserts a locally-created message (optimistic send). The
// authoritative echo from the event stream later dedups against its id.
func (i *Ingestor) Append(accountID string, msg Message) {
	if i.insert(accountID, msg) {
		i.publish(accountID, msg, true)
	}
}

// List returns a copy of a conversation's ordered messages.
func (i *Ingestor) List(accountID, conversationID string) []Message {
	cur, _ := i.cache.Get(convKey(accountID, conversationID))
	out := make([]Message, len(cur))
	copy(out, cur)
	return out
}

// Last returns a conversation's most recent message.
func (i *Ingestor) Last(accountID, conversationID string) (Message, bool) {
	cur, _ := i.cache.Get(convKey(accountID, conversationID))
	if len(cur) == 0 {
		return Message{}, false
	}
	return cur[len(cur)-1], true
}

// DropConversation removes a conversation's message cache.
func (i *Ingestor) DropConversation(accountID, conversationID string) {
	i.cache.Delete(convKey(accountID, conversationID))
}

// ClearAccount drops every conversation cache of an account.
func (i *Ingestor) ClearAccount(accountID string) {
	prefix := accountID + "/"
	i.cache.DeleteFunc(func(k string, _ []Message) bool {
		return len(k) >= len(prefix) && k[:len(prefix)] == prefix
	})
}

// Start subscribes to bridge conversation events.
func (i *Ingestor) Start(ctx context.Context) {
	ctx, i.cancel = context.WithCancel(ctx)
	ch, unsub := i.bus.Subscribe("bridge.conversation.", 256)
	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				switch evt.Kind {
				case bridge.KindMessageReceived:
					if ev, ok := evt.Payload.(bridge.MessageEvent); ok {
						i.Ingest(ev)
					}
				case bridge.KindMessagesLoaded:
					if ev, ok := evt.Payload.(bridge.MessagesLoadedEvent); ok {
						i.IngestBulk(ev)
					}
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop cancels the event pump.
func (i *Ingestor) Stop() {
	if i.cancel != nil {
		i.cancel()
	}
}

// insert adds msg to its conversation list unless the id is already
// present, keeping the list sorted ascending by timestamp.
func (i *Ingestor) insert(accountID string, msg Message) bool {
	inserted := false
	i.cache.Update(convKey(accountID, msg.ConversationID), func(cur []Message, _ bool) ([]Message, bool) {
		for _, ex := range cur {
			if ex.ID == msg.ID {
				return cur, false
			}
		}
		next := make([]Message, len(cur), len(cur)+1)
		copy(next, cur)
		next = append(next, msg)
		sort.SliceStable(next, func(a, b int) bool {
			return next[a].Timestamp < next[b].Timestamp
		})
		inserted = true
		return next, true
	})
	return inserted
}

func (i *Ingestor) maybeNotify(accountID string, msg Message) {
	if i.notifier == nil || !i.notifyEnabled() {
		return
	}
	if i.self != nil && i.self.SelfURI(accountID) == msg.AuthorURI {
		return
	}
	i.notifier.ShowMessage(accountID, msg.ConversationID, msg)
}

func (i *Ingestor) publish(accountID string, msg Message, live bool) {
	i.bus.Publish(bus.Event{
		Kind:      KindUpdated,
		AccountID: accountID,
		Timestamp: time.Now(),
		Payload:   Update{AccountID: accountID, ConversationID: msg.ConversationID, Message: msg, Live: live},
	})
}
