package contacts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/gettogether/peersync/internal/bridge"
	"github.com/gettogether/peersync/internal/bus"
	"github.com/gettogether/peersync/internal/presence"
	"github.com/gettogether/peersync/internal/snapshot"
)

// KindUpdated is published whenever an account's contact cache changes.
const KindUpdated = "contacts.updated"

// Account detail keys reported by the daemon.
const (
	detailUsername = "Account.username"
	detailBanned   = "banned"
)

// Persistence stores contacts across restarts. The daemon has no concept
// of custom names or cached avatar locations, so they only survive here.
type Persistence interface {
	LoadContacts(ctx context.Context, accountID string) ([]Contact, error)
	SaveContacts(ctx context.Context, accountID string, contacts []Contact) error
}

// PresenceSubscriber is the slice of the presence tracker the synchronizer
// needs: first-time presence subscription on refresh.
type PresenceSubscriber interface {
	EnsureSubscribed(ctx context.Context, accountID, uri string)
}

// Synchronizer merges persisted contacts, the daemon's live contact list,
// and presence state into the authoritative per-account contact cache.
type Synchronizer struct {
	holder   *bridge.Holder
	cache    *Cache
	persist  Persistence
	presence PresenceSubscriber
	bus      *bus.Bus
	logger   *zap.Logger
	self     *snapshot.Map[string]
	cancel   context.CancelFunc
}

// NewSynchronizer creates a contact synchronizer.
func NewSynchronizer(holder *bridge.Holder, cache *Cache, persist Persistence, ps PresenceSubscriber, b *bus.Bus, logger *zap.Logger) *Synchronizer {
	return &Synchronizer{
		holder:   holder,
		cache:    cache,
		persist:  persist,
		presence: ps,
		bus:      b,
		logger:   logger,
		self:     snapshot.NewMap[string](),
	}
}

// Cache returns the underlying contact cache.
func (s *Synchronizer) Cache() *Cache { return s.cache }

// SelfURI returns the account's own identity URI, empty until Load ran.
func (s *Synchronizer) SelfURI(accountID string) string {
	uri, _ := s.self.Get(accountID)
	return uri
}

// Load publishes persisted contacts merged with the daemon's current list.
// Only the banned flag is corrected from the daemon (it is not persisted);
// consumers see data immediately even if the daemon is slow or down, and a
// later Refresh reconciles the rest.
func (s *Synchronizer) Load(ctx context.Context, accountID string) error {
	b := s.holder.Bridge()

	if details, err := b.GetAccountDetails(ctx, accountID); err == nil {
		if self, ok := details[detailUsername]; ok && self != "" {
			s.self.Set(accountID, self)
		}
	}

	merged := make(map[string]Contact)
	persisted, err := s.persist.LoadContacts(ctx, accountID)
	if err != nil {
		s.logger.Warn("loading persisted contacts failed", zap.String("account", accountID), zap.Error(err))
	}
	for _, ct := range persisted {
		ct.Online = false
		merged[ct.URI] = ct
	}

	live, err := b.GetContacts(ctx, accountID)
	if err != nil {
		s.logger.Warn("daemon contact list unavailable during load", zap.String("account", accountID), zap.Error(err))
	}
	for _, entry := range live {
		if cur, ok := merged[entry.URI]; ok {
			cur.Banned = entry.Banned
			merged[entry.URI] = cur
			continue
		}
		merged[entry.URI] = Contact{
			URI:         entry.URI,
			DisplayName: entry.DisplayName,
			Banned:      entry.Banned,
		}
	}

	s.cache.Replace(accountID, merged)
	s.publish(accountID)
	return nil
}

// Refresh reconciles the cache against the daemon's live contact list.
// Custom names and cached avatar locations are preserved from the existing
// entries, and a blank daemon name never overwrites a name a profile event
// already supplied. After the merge every contact is subscribed for
// presence and the result is persisted.
func (s *Synchronizer) Refresh(ctx context.Context, accountID string) error {
	b := s.holder.Bridge()

	live, err := b.GetContacts(ctx, accountID)
	if err != nil {
		return fmt.Errorf("refresh contacts: %w", err)
	}

	cur := s.cache.Snapshot(accountID)
	next := make(map[string]Contact, len(cur)+len(live))
	for uri, ct := range cur {
		next[uri] = ct
	}
	for _, entry := range live {
		ct := Contact{
			URI:         entry.URI,
			DisplayName: entry.DisplayName,
			Banned:      entry.Banned,
		}
		if prev, ok := next[entry.URI]; ok {
			ct.CustomName = prev.CustomName
			ct.AvatarPath = prev.AvatarPath
			ct.Online = prev.Online
			ct.ProfileVersion = prev.ProfileVersion
			if ct.DisplayName == "" {
				ct.DisplayName = prev.DisplayName
			}
		}
		next[entry.URI] = ct
	}

	s.cache.Replace(accountID, next)

	for uri := range next {
		s.presence.EnsureSubscribed(ctx, accountID, uri)
	}

	out := make([]Contact, 0, len(next))
	for _, ct := range next {
		out = append(out, ct)
	}
	if err := s.persist.SaveContacts(ctx, accountID, out); err != nil {
		s.logger.Warn("persisting contacts failed", zap.String("account", accountID), zap.Error(err))
	}

	s.publish(accountID)
	return nil
}

// AddContact asks the daemon to add a contact and inserts an optimistic
// placeholder; the daemon's ContactAdded event later reconciles the same
// URI idempotently.
func (s *Synchronizer) AddContact(ctx context.Context, accountID, uri string) error {
	if err := s.holder.Bridge().AddContact(ctx, accountID, uri); err != nil {
		return fmt.Errorf("add contact: %w", err)
	}
	s.cache.Update(accountID, uri, func(cur Contact, ok bool) (Contact, bool) {
		if ok {
			return cur, false
		}
		return Contact{URI: uri}, true
	})
	s.publish(accountID)
	return nil
}

// RemoveContact asks the daemon to remove a contact. With ban the contact
// is retained locally with the banned flag set; otherwise it is dropped.
func (s *Synchronizer) RemoveContact(ctx context.Context, accountID, uri string, ban bool) error {
	if err := s.holder.Bridge().RemoveContact(ctx, accountID, uri, ban); err != nil {
		return fmt.Errorf("remove contact: %w", err)
	}
	s.applyRemoval(accountID, uri, ban)
	s.publish(accountID)
	return nil
}

// BlockContact bans a contact, flipping the cached flag immediately.
func (s *Synchronizer) BlockContact(ctx context.Context, accountID, uri string) error {
	return s.RemoveContact(ctx, accountID, uri, true)
}

// UnblockContact re-adds a banned contact and clears the cached flag.
func (s *Synchronizer) UnblockContact(ctx context.Context, accountID, uri string) error {
	if err := s.holder.Bridge().AddContact(ctx, accountID, uri); err != nil {
		return fmt.Errorf("unblock contact: %w", err)
	}
	s.cache.Update(accountID, uri, func(cur Contact, ok bool) (Contact, bool) {
		if !ok {
			return Contact{URI: uri}, true
		}
		cur.Banned = false
		return cur, true
	})
	s.publish(accountID)
	return nil
}

// SetCustomName stores the user's local name override for a contact; an
// empty name clears the override. The daemon has no concept of custom
// names, so only the cache and persistence are touched.
func (s *Synchronizer) SetCustomName(ctx context.Context, accountID, uri, name string) error {
	if _, ok := s.cache.Get(accountID, uri); !ok {
		return fmt.Errorf("set custom name: unknown contact %s", uri)
	}
	name = strings.TrimSpace(name)
	changed := s.cache.Update(accountID, uri, func(cur Contact, ok bool) (Contact, bool) {
		if !ok || cur.CustomName == name {
			return cur, false
		}
		cur.CustomName = name
		return cur, true
	})
	if !changed {
		return nil
	}
	if err := s.persist.SaveContacts(ctx, accountID, s.cache.List(accountID)); err != nil {
		s.logger.Warn("persisting contacts failed", zap.String("account", accountID), zap.Error(err))
	}
	s.publish(accountID)
	return nil
}

// RefreshBanStatus re-queries the daemon's view of the given contacts'
// banned flags. Used after a send was rejected with a ban-shaped error.
func (s *Synchronizer) RefreshBanStatus(ctx context.Context, accountID string, uris []string) {
	b := s.holder.Bridge()
	changed := false
	for _, uri := range uris {
		details, err := b.GetContactDetails(ctx, accountID, uri)
		if err != nil || details == nil {
			continue
		}
		banned := details[detailBanned] == "true"
		if s.cache.Update(accountID, uri, func(cur Contact, ok bool) (Contact, bool) {
			if !ok || cur.Banned == banned {
				return cur, false
			}
			cur.Banned = banned
			return cur, true
		}) {
			changed = true
		}
	}
	if changed {
		s.publish(accountID)
	}
}

// ClearAccount drops the account's cached contacts and identity.
func (s *Synchronizer) ClearAccount(accountID string) {
	s.cache.ClearAccount(accountID)
	s.self.Delete(accountID)
}

// Start subscribes to bridge contact events and filtered presence updates.
func (s *Synchronizer) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	contactCh, unsubContacts := s.bus.Subscribe("bridge.contact.", 256)
	presenceCh, unsubPresence := s.bus.Subscribe(presence.KindUpdated, 256)

	go func() {
		defer unsubContacts()
		defer unsubPresence()
		for {
			select {
			case evt := <-contactCh:
				s.handleBridgeEvent(ctx, evt)
			case evt := <-presenceCh:
				if u, ok := evt.Payload.(presence.Update); ok {
					s.applyPresence(u)
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
	case bridge.KindContactAdded:
		ev, ok := evt.Payload.(bridge.ContactEvent)
		if !ok {
			return
		}
		s.HandleContactAdded(ev)
	case bridge.KindContactRemoved:
		ev, ok := evt.Payload.(bridge.ContactEvent)
		if !ok {
			return
		}
		s.HandleContactRemoved(ev)
	case bridge.KindProfile:
		ev, ok := evt.Payload.(bridge.ProfileEvent)
		if !ok {
			return
		}
		s.HandleProfile(ev)
	}
}

// HandleContactAdded reconciles a daemon-confirmed contact add. Inserting
// an already-present URI only updates the banned flag, so the optimistic
// local insert and the daemon echo do not duplicate.
func (s *Synchronizer) HandleContactAdded(ev bridge.ContactEvent) {
	s.cache.Update(ev.AccountID, ev.URI, func(cur Contact, ok bool) (Contact, bool) {
		if !ok {
			return Contact{URI: ev.URI, Banned: ev.Banned}, true
		}
		if cur.Banned == ev.Banned {
			return cur, false
		}
		cur.Banned = ev.Banned
		return cur, true
	})
	s.publish(ev.AccountID)
}

// HandleContactRemoved applies a daemon-reported removal. A banned removal
// retains the contact with the flag set so the UI can still show it on the
// blocked list.
func (s *Synchronizer) HandleContactRemoved(ev bridge.ContactEvent) {
	s.applyRemoval(ev.AccountID, ev.URI, ev.Banned)
	s.publish(ev.AccountID)
}

// HandleProfile applies a pushed vCard. The avatar is only touched when
// the push actually carried one: intermittent incomplete pushes must not
// erase a previously known avatar. Every applied profile bumps the
// contact's profile version.
func (s *Synchronizer) HandleProfile(ev bridge.ProfileEvent) {
	wrote := s.cache.Update(ev.AccountID, ev.URI, func(cur Contact, ok bool) (Contact, bool) {
		if !ok {
			cur = Contact{URI: ev.URI}
		}
		if ev.DisplayName != "" {
			cur.DisplayName = ev.DisplayName
		}
		if ev.HasAvatar {
			cur.AvatarPath = ev.AvatarPath
		}
		cur.ProfileVersion++
		return cur, true
	})
	if wrote {
		s.publish(ev.AccountID)
	}
}

func (s *Synchronizer) applyPresence(u presence.Update) {
	if s.cache.Update(u.AccountID, u.URI, func(cur Contact, ok bool) (Contact, bool) {
		if !ok || cur.Online == u.Online {
			return cur, false
		}
		cur.Online = u.Online
		return cur, true
	}) {
		s.publish(u.AccountID)
	}
}

func (s *Synchronizer) applyRemoval(accountID, uri string, ban bool) {
	if ban {
		s.cache.Update(accountID, uri, func(cur Contact, ok bool) (Contact, bool) {
			if !ok {
				cur = Contact{URI: uri}
			}
			cur.Banned = true
			cur.Online = false
			return cur, true
		})
		return
	}
	s.cache.Delete(accountID, uri)
}

func (s *Synchronizer) publish(accountID string) {
	s.bus.Publish(bus.Event{
		Kind:      KindUpdated,
		AccountID: accountID,
		Timestamp: time.Now(),
	})
}
