package bridge

import (
	"context"
	"sync/atomic"
)

// Holder hands out the currently attached Bridge. Until a real bridge is
// attached (and after it detaches) callers get a disconnected
// implementation whose calls are no-ops returning zero values, so the
// engine degrades instead of crashing while the daemon is down.
type Holder struct {
	cur atomic.Value // bridgeBox
}

// bridgeBox gives atomic.Value a single concrete stored type; storing
// Bridge interface values directly panics once two different concrete
// bridge types pass through the holder.
type bridgeBox struct {
	b Bridge
}

// NewHolder creates a holder serving the disconnected bridge.
func NewHolder() *Holder {
	h := &Holder{}
	h.cur.Store(bridgeBox{disconnected{}})
	return h
}

// Attach installs b as the live bridge.
func (h *Holder) Attach(b Bridge) {
	if b == nil {
		b = disconnected{}
	}
	h.cur.Store(bridgeBox{b})
}

// Detach reverts to the disconnected bridge.
func (h *Holder) Detach() {
	h.cur.Store(bridgeBox{disconnected{}})
}

// Bridge returns the current bridge. Never nil.
func (h *Holder) Bridge() Bridge {
	return h.cur.Load().(bridgeBox).b
}

// Connected reports whether a real bridge is attached.
func (h *Holder) Connected() bool {
	_, off := h.cur.Load().(bridgeBox).b.(disconnected)
	return !off
}

// disconnected is the degraded-mode bridge: calls without a result succeed
// as no-ops, calls that need a result return ErrNotConnected.
type disconnected struct{}

func (disconnected) GetAccountIDs(context.Context) ([]string, error) { return nil, nil }
func (disconnected) GetAccountDetails(context.Context, string) (map[string]string, error) {
	return nil, nil
}
func (disconnected) GetContacts(context.Context, string) ([]ContactEntry, error) { return nil, nil }
func (disconnected) GetContactDetails(context.Context, string, string) (map[string]string, error) {
	return nil, nil
}
func (disconnected) AddContact(context.Context, string, string) error            { return nil }
func (disconnected) RemoveContact(context.Context, string, string, bool) error   { return nil }
func (disconnected) SubscribeBuddy(context.Context, string, string, bool) error  { return nil }
func (disconnected) SendProfile(context.Context, string, string) error           { return nil }
func (disconnected) GetConversations(context.Context, string) ([]string, error)  { return nil, nil }
func (disconnected) GetConversationInfo(context.Context, string, string) (map[string]string, error) {
	return nil, nil
}
func (disconnected) GetConversationMembers(context.Context, string, string) ([]Member, error) {
	return nil, nil
}
func (disconnected) StartConversation(context.Context, string) (string, error) {
	return "", ErrNotConnected
}
func (disconnected) RemoveConversation(context.Context, string, string) error { return nil }
func (disconnected) UpdateConversationInfo(context.Context, string, string, map[string]string) error {
	return nil
}
func (disconnected) AddConversationMember(context.Context, string, string, string) error {
	return nil
}
func (disconnected) RemoveConversationMember(context.Context, string, string, string) error {
	return nil
}
func (disconnected) SendMessage(context.Context, string, string, string, string) (string, error) {
	return "", ErrNotConnected
}
func (disconnected) SendFile(context.Context, string, string, string, string) error { return nil }
func (disconnected) LoadConversationMessages(context.Context, string, string, string, int) error {
	return nil
}
func (disconnected) SetMessageDisplayed(context.Context, string, string, string) error { return nil }
func (disconnected) GetTrustRequests(context.Context, string) ([]TrustRequestEntry, error) {
	return nil, nil
}
func (disconnected) AcceptTrustRequest(context.Context, string, string) error      { return nil }
func (disconnected) DiscardTrustRequest(context.Context, string, string) error     { return nil }
func (disconnected) AcceptConversationRequest(context.Context, string, string) error {
	return nil
}
func (disconnected) DeclineConversationRequest(context.Context, string, string) error {
	return nil
}
