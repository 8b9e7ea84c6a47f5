package conversations

import (
	"sort"
	"strings"

	"github.com/gettogether/peersync/internal/contacts"
	"github.com/gettogether/peersync/internal/messages"
	"github.com/gettogether/peersync/internal/snapshot"
)

// Conversation is one visible conversation of an account. Participants
// include the local identity; dedup and title resolution work on the
// non-self subset.
type Conversation struct {
	ID           string
	AccountID    string
	Title        string
	Participants []contacts.Contact
	LastMessage  *messages.Message
	UnreadCount  int
	IsGroup      bool
	CreatedAt    int64
}

// peerKey returns the order-independent identity of the conversation's
// peer set: the sorted, comma-joined non-self participant URIs.
func (c Conversation) peerKey(selfURI string) string {
	uris := make([]string, 0, len(c.Participants))
	for _, p := range c.Participants {
		if p.URI != selfURI {
			uris = append(uris, p.URI)
		}
	}
	sort.Strings(uris)
	return strings.Join(uris, ",")
}

// lastMessageTime ranks conversations for dedup and ordering. A
// conversation with no message ranks at epoch zero.
func (c Conversation) lastMessageTime() int64 {
	if c.LastMessage == nil {
		return 0
	}
	return c.LastMessage.Timestamp
}

// Cache holds per-account conversation snapshots, keyed by
// "accountID/conversationID".
type Cache struct {
	m *snapshot.Map[Conversation]
}

// NewCache returns an empty conversation cache.
func NewCache() *Cache {
	return &Cache{m: snapshot.NewMap[Conversation]()}
}

func key(accountID, conversationID string) string {
	return accountID + "/" + conversationID
}

// Get returns one conversation.
func (c *Cache) Get(accountID, conversationID string) (Conversation, bool) {
	return c.m.Get(key(accountID, conversationID))
}

// List returns an account's conversations ordered most-recent-first.
func (c *Cache) List(accountID string) []Conversation {
	prefix := accountID + "/"
	var out []Conversation
	for k, conv := range c.m.Snapshot() {
		if strings.HasPrefix(k, prefix) {
			out = append(out, conv)
		}
	}
	sort.Slice(out, func(a, b int) bool {
		ta, tb := out[a].lastMessageTime(), out[b].lastMessageTime()
		if ta != tb {
			return ta > tb
		}
		return out[a].ID < out[b].ID
	})
	return out
}

// Update applies fn to one conversation under the usual CAS loop.
func (c *Cache) Update(accountID, conversationID string, fn func(cur Conversation, ok bool) (Conversation, bool)) bool {
	return c.m.Update(key(accountID, conversationID), fn)
}

// Delete removes one conversation.
func (c *Cache) Delete(accountID, conversationID string) bool {
	return c.m.Delete(key(accountID, conversationID))
}

// Replace swaps an account's whole conversation set in one atomic
// install, leaving other accounts untouched. Readers never observe an
// empty or partial list mid-refresh.
func (c *Cache) Replace(accountID string, next []Conversation) {
	prefix := accountID + "/"
	c.m.Transform(func(clone map[string]Conversation) {
		for k := range clone {
			if strings.HasPrefix(k, prefix) {
				delete(clone, k)
			}
		}
		for _, conv := range next {
			clone[key(accountID, conv.ID)] = conv
		}
	})
}

// ClearAccount drops every conversation of an account.
func (c *Cache) ClearAccount(accountID string) {
	prefix := accountID + "/"
	c.m.DeleteFunc(func(k string, _ Conversation) bool {
		return strings.HasPrefix(k, prefix)
	})
}
