package engine

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/gettogether/peersync/internal/bridge"
	"github.com/gettogether/peersync/internal/contacts"
	"github.com/gettogether/peersync/internal/conversations"
	"github.com/gettogether/peersync/internal/messages"
	"github.com/gettogether/peersync/internal/presence"
	"github.com/gettogether/peersync/internal/status"
	"github.com/gettogether/peersync/internal/trust"
)

// Session owns the active account and the account-scoped cleanup on
// switch: the previous account's presence, conversation, message and
// trust state is dropped so nothing leaks across accounts.
type Session struct {
	holder   *bridge.Holder
	machine  *status.Machine
	tracker  *presence.Tracker
	contacts *contacts.Synchronizer
	convs    *conversations.Synchronizer
	msgs     *messages.Ingestor
	trust    *trust.Manager
	logger   *zap.Logger

	mu     sync.Mutex
	active string
}

// NewSession creates a session coordinator.
func NewSession(holder *bridge.Holder, machine *status.Machine, tracker *presence.Tracker, cs *contacts.Synchronizer, vs *conversations.Synchronizer, ing *messages.Ingestor, tm *trust.Manager, logger *zap.Logger) *Session {
	return &Session{
		holder:   holder,
		machine:  machine,
		tracker:  tracker,
		contacts: cs,
		convs:    vs,
		msgs:     ing,
		trust:    tm,
		logger:   logger,
	}
}

// ActiveAccount returns the currently loaded account id, empty before the
// first SetActiveAccount.
func (s *Session) ActiveAccount() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// SetActiveAccount switches the session to an account: tears down the
// previous account's volatile state, then loads and refreshes the new
// one. Persisted contacts surface immediately; the daemon refresh runs
// after.
func (s *Session) SetActiveAccount(ctx context.Context, accountID string) error {
	s.mu.Lock()
	prev := s.active
	s.active = accountID
	s.mu.Unlock()

	if prev != "" && prev != accountID {
		s.clear(prev)
	}

	if err := s.machine.Transition(status.Loading); err != nil {
		s.logger.Debug("state transition refused", zap.Error(err))
	}

	if err := s.contacts.Load(ctx, accountID); err != nil {
		return fmt.Errorf("load account %s: %w", accountID, err)
	}

	degraded := false
	if err := s.contacts.Refresh(ctx, accountID); err != nil {
		s.logger.Warn("contact refresh failed", zap.String("account_id", accountID), zap.Error(err))
		degraded = true
	}
	if err := s.convs.Refresh(ctx, accountID); err != nil {
		s.logger.Warn("conversation refresh failed", zap.String("account_id", accountID), zap.Error(err))
		degraded = true
	}
	if err := s.trust.Load(ctx, accountID); err != nil {
		s.logger.Warn("trust request load failed", zap.String("account_id", accountID), zap.Error(err))
		degraded = true
	}

	next := status.Ready
	if degraded {
		next = status.Degraded
	}
	if err := s.machine.Transition(next); err != nil {
		s.logger.Debug("state transition refused", zap.Error(err))
	}
	s.logger.Info("account loaded",
		zap.String("account_id", accountID),
		zap.Bool("degraded", degraded))
	return nil
}

// clear drops one account's volatile state.
func (s *Session) clear(accountID string) {
	s.tracker.ClearAccount(accountID)
	s.contacts.ClearAccount(accountID)
	s.convs.ClearAccount(accountID)
	s.msgs.ClearAccount(accountID)
	s.trust.ClearAccount(accountID)
	s.logger.Info("account state cleared", zap.String("account_id", accountID))
}
