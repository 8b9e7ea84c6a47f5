package conversations

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/gettogether/peersync/internal/bridge"
	"github.com/gettogether/peersync/internal/bus"
	"github.com/gettogether/peersync/internal/contacts"
	"github.com/gettogether/peersync/internal/messages"
)

// KindUpdated is published whenever an account's conversation cache
// changes.
const KindUpdated = "conversations.updated"

// Conversation info keys used by the daemon.
const (
	infoTitle   = "title"
	infoMode    = "mode"
	infoCreated = "created"
	infoAvatar  = "avatar"
)

// modeOneToOne marks a 1:1 conversation; any other mode is a group.
const modeOneToOne = "0"

// backlogCount is how many messages are requested when a conversation
// becomes ready.
const backlogCount = 50

// SelfResolver maps an account id to the local identity's URI.
type SelfResolver interface {
	SelfURI(accountID string) string
}

// MessageSource exposes the most recent cached message of a conversation.
type MessageSource interface {
	Last(accountID, conversationID string) (messages.Message, bool)
	DropConversation(accountID, conversationID string)
}

// Synchronizer keeps the per-account conversation cache in step with the
// daemon: metadata, membership, titles, dedup and last-message tracking.
type Synchronizer struct {
	holder   *bridge.Holder
	cache    *Cache
	contacts *contacts.Cache
	self     SelfResolver
	msgs     MessageSource
	bus      *bus.Bus
	logger   *zap.Logger
	cancel   context.CancelFunc
}

// NewSynchronizer creates a conversation synchronizer.
func NewSynchronizer(holder *bridge.Holder, cache *Cache, cc *contacts.Cache, self SelfResolver, msgs MessageSource, b *bus.Bus, logger *zap.Logger) *Synchronizer {
	return &Synchronizer{
		holder:   holder,
		cache:    cache,
		contacts: cc,
		self:     self,
		msgs:     msgs,
		bus:      b,
		logger:   logger,
	}
}

// Cache exposes the conversation cache for read-only consumers.
func (s *Synchronizer) Cache() *Cache { return s.cache }

// Refresh rebuilds an account's conversation list from the daemon:
// loads metadata and membership per conversation, resolves titles, drops
// the local identity's loopback conversation, and collapses duplicates
// so at most one conversation per distinct peer set stays visible.
func (s *Synchronizer) Refresh(ctx context.Context, accountID string) error {
	br := s.holder.Bridge()
	ids, err := br.GetConversations(ctx, accountID)
	if err != nil {
		return fmt.Errorf("list conversations: %w", err)
	}
	selfURI := s.self.SelfURI(accountID)

	loaded := make([]Conversation, 0, len(ids))
	for _, id := range ids {
		conv, ok, err := s.loadOne(ctx, accountID, id, selfURI)
		if err != nil {
			s.logger.Warn("conversation load failed",
				zap.String("conversation_id", id), zap.Error(err))
			continue
		}
		if ok {
			loaded = append(loaded, conv)
		}
	}

	s.cache.Replace(accountID, dedup(loaded, selfURI))
	s.publish(accountID)
	return nil
}

// loadOne fetches one conversation's metadata and members. ok is false
// for the self conversation, which must never surface.
func (s *Synchronizer) loadOne(ctx context.Context, accountID, id, selfURI string) (Conversation, bool, error) {
	br := s.holder.Bridge()
	info, err := br.GetConversationInfo(ctx, accountID, id)
	if err != nil {
		return Conversation{}, false, err
	}
	members, err := br.GetConversationMembers(ctx, accountID, id)
	if err != nil {
		return Conversation{}, false, err
	}

	conv := Conversation{
		ID:        id,
		AccountID: accountID,
		IsGroup:   info[infoMode] != "" && info[infoMode] != modeOneToOne,
	}
	if created, err := strconv.ParseInt(info[infoCreated], 10, 64); err == nil {
		conv.CreatedAt = created
	}

	var peers []contacts.Contact
	for _, m := range members {
		c := s.resolveContact(accountID, m.URI)
		conv.Participants = append(conv.Participants, c)
		if m.URI != selfURI {
			peers = append(peers, c)
		}
	}
	if len(peers) == 0 {
		return Conversation{}, false, nil
	}

	conv.Title = resolveTitle(info[infoTitle], conv.IsGroup, peers)

	if last, ok := s.msgs.Last(accountID, id); ok {
		conv.LastMessage = &last
	}
	if prev, ok := s.cache.Get(accountID, id); ok {
		conv.UnreadCount = prev.UnreadCount
	}
	return conv, true, nil
}

// resolveContact looks a member up in the contact cache, degrading to a
// bare URI entry for members that are not contacts.
func (s *Synchronizer) resolveContact(accountID, uri string) contacts.Contact {
	if c, ok := s.contacts.Get(accountID, uri); ok {
		return c
	}
	return contacts.Contact{URI: uri}
}

// resolveTitle picks a display title: conversation metadata first, then
// for 1:1 conversations the peer's effective name, then the joined peer
// names for untitled groups.
func resolveTitle(metaTitle string, isGroup bool, peers []contacts.Contact) string {
	if t := strings.TrimSpace(metaTitle); t != "" {
		return t
	}
	if !isGroup && len(peers) == 1 {
		return peers[0].EffectiveName()
	}
	names := make([]string, 0, len(peers))
	for _, p := range peers {
		names = append(names, p.EffectiveName())
	}
	return strings.Join(names, ", ")
}

// dedup keeps exactly one conversation per distinct non-self peer set:
// the one with the greatest last-message timestamp.
func dedup(convs []Conversation, selfURI string) []Conversation {
	best := make(map[string]Conversation, len(convs))
	order := make([]string, 0, len(convs))
	for _, conv := range convs {
		k := conv.peerKey(selfURI)
		cur, seen := best[k]
		if !seen {
			order = append(order, k)
			best[k] = conv
			continue
		}
		if conv.lastMessageTime() > cur.lastMessageTime() {
			best[k] = conv
		}
	}
	out := make([]Conversation, 0, len(best))
	for _, k := range order {
		out = append(out, best[k])
	}
	return out
}

// CreateGroupConversation starts a new group, attaching a compressed
// avatar when one is supplied, and invites the given members.
func (s *Synchronizer) CreateGroupConversation(ctx context.Context, accountID, title string, memberURIs []string, avatarPath string) (string, error) {
	info := map[string]string{infoTitle: title}
	if avatarPath != "" {
		data, err := compressAvatar(avatarPath)
		if err != nil {
			return "", fmt.Errorf("group avatar: %w", err)
		}
		info[infoAvatar] = base64.StdEncoding.EncodeToString(data)
	}

	br := s.holder.Bridge()
	id, err := br.StartConversation(ctx, accountID)
	if err != nil {
		return "", fmt.Errorf("start conversation: %w", err)
	}
	if err := br.UpdateConversationInfo(ctx, accountID, id, info); err != nil {
		return "", fmt.Errorf("set conversation info: %w", err)
	}
	for _, uri := range memberURIs {
		if err := br.AddConversationMember(ctx, accountID, id, uri); err != nil {
			s.logger.Warn("member invite failed",
				zap.String("conversation_id", id), zap.String("uri", uri), zap.Error(err))
		}
	}
	if err := s.Refresh(ctx, accountID); err != nil {
		s.logger.Warn("refresh after group creation failed", zap.Error(err))
	}
	return id, nil
}

// FindConversationWithContact locates an existing 1:1 conversation with
// the given peer, so callers can avoid creating a duplicate.
func (s *Synchronizer) FindConversationWithContact(accountID, uri string) (Conversation, bool) {
	for _, conv := range s.cache.List(accountID) {
		if conv.IsGroup || len(conv.Participants) != 2 {
			continue
		}
		for _, p := range conv.Participants {
			if p.URI == uri {
				return conv, true
			}
		}
	}
	return Conversation{}, false
}

// RemoveConversation removes a conversation at the daemon and drops it
// locally, message cache included.
func (s *Synchronizer) RemoveConversation(ctx context.Context, accountID, conversationID string) error {
	if err := s.holder.Bridge().RemoveConversation(ctx, accountID, conversationID); err != nil {
		return err
	}
	s.drop(accountID, conversationID)
	return nil
}

// MarkConversationRead tells the daemon the latest message was displayed
// and zeroes the local unread counter.
func (s *Synchronizer) MarkConversationRead(ctx context.Context, accountID, conversationID string) error {
	if last, ok := s.msgs.Last(accountID, conversationID); ok {
		if err := s.holder.Bridge().SetMessageDisplayed(ctx, accountID, conversationID, last.ID); err != nil {
			return err
		}
	}
	changed := s.cache.Update(accountID, conversationID, func(cur Conversation, ok bool) (Conversation, bool) {
		if !ok || cur.UnreadCount == 0 {
			return cur, false
		}
		cur.UnreadCount = 0
		return cur, true
	})
	if changed {
		s.publish(accountID)
	}
	return nil
}

// AcceptConversationRequest accepts a pending conversation request and
// refreshes so the new conversation surfaces.
func (s *Synchronizer) AcceptConversationRequest(ctx context.Context, accountID, conversationID string) error {
	if err := s.holder.Bridge().AcceptConversationRequest(ctx, accountID, conversationID); err != nil {
		return err
	}
	return s.Refresh(ctx, accountID)
}

// DeclineConversationRequest declines a pending conversation request.
func (s *Synchronizer) DeclineConversationRequest(ctx context.Context, accountID, conversationID string) error {
	return s.holder.Bridge().DeclineConversationRequest(ctx, accountID, conversationID)
}

// ClearAccount drops an account's conversations on account switch.
func (s *Synchronizer) ClearAccount(accountID string) {
	s.cache.ClearAccount(accountID)
}

// Start pumps conversation lifecycle events and message-cache updates.
func (s *Synchronizer) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	convCh, unsubConv := s.bus.Subscribe("bridge.conversation.", 256)
	msgCh, unsubMsg := s.bus.Subscribe(messages.KindUpdated, 256)
	go func() {
		defer unsubConv()
		defer unsubMsg()
		for {
			select {
			case evt := <-convCh:
				s.handleBridgeEvent(ctx, evt)
			case evt := <-msgCh:
				if u, ok := evt.Payload.(messages.Update); ok {
					s.applyMessage(u)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop cancels the event pump.
func (s *Synchronizer) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Synchronizer) handleBridgeEvent(ctx context.Context, evt bus.Event) {
	switch evt.Kind {
	case bridge.KindConversationReady:
		ev, ok := evt.Payload.(bridge.ConversationEvent)
		if !ok {
			return
		}
		if err := s.Refresh(ctx, ev.AccountID); err != nil {
			s.logger.Warn("refresh on conversation ready failed", zap.Error(err))
		}
		if err := s.holder.Bridge().LoadConversationMessages(ctx, ev.AccountID, ev.ConversationID, "", backlogCount); err != nil {
			s.logger.Warn("backlog load failed",
				zap.String("conversation_id", ev.ConversationID), zap.Error(err))
		}
	case bridge.KindConversationRemoved:
		if ev, ok := evt.Payload.(bridge.ConversationEvent); ok {
			s.drop(ev.AccountID, ev.ConversationID)
		}
	case bridge.KindMemberEvent:
		if ev, ok := evt.Payload.(bridge.MemberEvent); ok {
			s.HandleMemberEvent(ctx, ev)
		}
	}
}

// HandleMemberEvent refreshes on membership changes. Unban is a no-op:
// an unbanned peer is not automatically re-added as a member.
func (s *Synchronizer) HandleMemberEvent(ctx context.Context, ev bridge.MemberEvent) {
	if ev.Event == bridge.MemberUnban {
		return
	}
	if err := s.Refresh(ctx, ev.AccountID); err != nil {
		s.logger.Warn("refresh on member event failed",
			zap.String("conversation_id", ev.ConversationID),
			zap.String("event", ev.Event),
			zap.Error(err))
	}
}

// applyMessage tracks the newest message and unread count of a cached
// conversation as the message cache changes. Only live non-self messages
// count as unread; loaded history updates the last message without
// touching the badge.
func (s *Synchronizer) applyMessage(u messages.Update) {
	selfURI := s.self.SelfURI(u.AccountID)
	changed := s.cache.Update(u.AccountID, u.ConversationID, func(cur Conversation, ok bool) (Conversation, bool) {
		if !ok {
			return cur, false
		}
		if cur.LastMessage == nil || u.Message.Timestamp >= cur.LastMessage.Timestamp {
			msg := u.Message
			cur.LastMessage = &msg
		}
		if u.Live && u.Message.AuthorURI != selfURI {
			cur.UnreadCount++
		}
		return cur, true
	})
	if changed {
		s.publish(u.AccountID)
	}
}

func (s *Synchronizer) drop(accountID, conversationID string) {
	if s.cache.Delete(accountID, conversationID) {
		s.msgs.DropConversation(accountID, conversationID)
		s.publish(accountID)
	}
}

func (s *Synchronizer) publish(accountID string) {
	s.bus.Publish(bus.Event{
		Kind:      KindUpdated,
		AccountID: accountID,
		Timestamp: time.Now(),
		Payload:   accountID,
	})
}
