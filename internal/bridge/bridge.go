// Package bridge defines the boundary to the peer-to-peer daemon. The
// daemon is consumed as an opaque collaborator: synchronous calls are
// fire-and-forget or request/response, and anything that logically arrives
// later (name lookups, message echoes, presence) comes back only through
// the event stream, never as a call return value.
package bridge

import (
	"context"
	"errors"
)

// ErrNotConnected is returned by calls that need a result while no daemon
// bridge is attached. Calls without a caller-visible result degrade to
// no-ops instead.
var ErrNotConnected = errors.New("bridge: daemon not connected")

// ContactEntry is one row of the daemon's live contact list.
type ContactEntry struct {
	URI         string
	DisplayName string
	Banned      bool
	Confirmed   bool
}

// Member is one conversation member as reported by the daemon.
type Member struct {
	URI  string
	Role string
}

// TrustRequestEntry is one pending incoming trust request.
type TrustRequestEntry struct {
	From           string
	ConversationID string
	Payload        []byte
	Received       int64 // unix ms
}

// Bridge is the call surface of the daemon. Implementations adapt a
// concrete protocol client; the engine never sees past this interface.
type Bridge interface {
	// Accounts.
	GetAccountIDs(ctx context.Context) ([]string, error)
	GetAccountDetails(ctx context.Context, accountID string) (map[string]string, error)

	// Contacts and presence.
	GetContacts(ctx context.Context, accountID string) ([]ContactEntry, error)
	GetContactDetails(ctx context.Context, accountID, uri string) (map[string]string, error)
	AddContact(ctx context.Context, accountID, uri string) error
	RemoveContact(ctx context.Context, accountID, uri string, ban bool) error
	SubscribeBuddy(ctx context.Context, accountID, uri string, watch bool) error
	SendProfile(ctx context.Context, accountID, uri string) error

	// Conversations.
	GetConversations(ctx context.Context, accountID string) ([]string, error)
	GetConversationInfo(ctx context.Context, accountID, conversationID string) (map[string]string, error)
	GetConversationMembers(ctx context.Context, accountID, conversationID string) ([]Member, error)
	StartConversation(ctx context.Context, accountID string) (string, error)
	RemoveConversation(ctx context.Context, accountID, conversationID string) error
	UpdateConversationInfo(ctx context.Context, accountID, conversationID string, info map[string]string) error
	AddConversationMember(ctx context.Context, accountID, conversationID, uri string) error
	RemoveConversationMember(ctx context.Context, accountID, conversationID, uri string) error

	// Messages.
	SendMessage(ctx context.Context, accountID, conversationID, body, replyTo string) (string, error)
	SendFile(ctx context.Context, accountID, conversationID, path, displayName string) error
	LoadConversationMessages(ctx context.Context, accountID, conversationID, fromID string, count int) error
	SetMessageDisplayed(ctx context.Context, accountID, conversationID, messageID string) error

	// Trust and conversation requests.
	GetTrustRequests(ctx context.Context, accountID string) ([]TrustRequestEntry, error)
	AcceptTrustRequest(ctx context.Context, accountID, from string) error
	DiscardTrustRequest(ctx context.Context, accountID, from string) error
	AcceptConversationRequest(ctx context.Context, accountID, conversationID string) error
	DeclineConversationRequest(ctx context.Context, accountID, conversationID string) error
}
