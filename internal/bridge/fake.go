package bridge

import "context"

// Fake is a configurable Bridge for tests. Any nil function field behaves
// like the disconnected bridge. Kept in the package proper so every
// component's tests share one implementation.
type Fake struct {
	GetAccountIDsFunc              func(ctx context.Context) ([]string, error)
	GetAccountDetailsFunc          func(ctx context.Context, accountID string) (map[string]string, error)
	GetContactsFunc                func(ctx context.Context, accountID string) ([]ContactEntry, error)
	GetContactDetailsFunc          func(ctx context.Context, accountID, uri string) (map[string]string, error)
	AddContactFunc                 func(ctx context.Context, accountID, uri string) error
	RemoveContactFunc              func(ctx context.Context, accountID, uri string, ban bool) error
	SubscribeBuddyFunc             func(ctx context.Context, accountID, uri string, watch bool) error
	SendProfileFunc                func(ctx context.Context, accountID, uri string) error
	GetConversationsFunc           func(ctx context.Context, accountID string) ([]string, error)
	GetConversationInfoFunc        func(ctx context.Context, accountID, conversationID string) (map[string]string, error)
	GetConversationMembersFunc     func(ctx context.Context, accountID, conversationID string) ([]Member, error)
	StartConversationFunc          func(ctx context.Context, accountID string) (string, error)
	RemoveConversationFunc         func(ctx context.Context, accountID, conversationID string) error
	UpdateConversationInfoFunc     func(ctx context.Context, accountID, conversationID string, info map[string]string) error
	AddConversationMemberFunc      func(ctx context.Context, accountID, conversationID, uri string) error
	RemoveConversationMemberFunc   func(ctx context.Context, accountID, conversationID, uri string) error
	SendMessageFunc                func(ctx context.Context, accountID, conversationID, body, replyTo string) (string, error)
	SendFileFunc                   func(ctx context.Context, accountID, conversationID, path, displayName string) error
	LoadConversationMessagesFunc   func(ctx context.Context, accountID, conversationID, fromID string, count int) error
	SetMessageDisplayedFunc        func(ctx context.Context, accountID, conversationID, messageID string) error
	GetTrustRequestsFunc           func(ctx context.Context, accountID string) ([]TrustRequestEntry, error)
	AcceptTrustRequestFunc         func(ctx context.Context, accountID, from string) error
	DiscardTrustRequestFunc        func(ctx context.Context, accountID, from string) error
	AcceptConversationRequestFunc  func(ctx context.Context, accountID, conversationID string) error
	DeclineConversationRequestFunc func(ctx context.Context, accountID, conversationID string) error
}

var _ Bridge = (*Fake)(nil)

func (f *Fake) GetAccountIDs(ctx context.Context) ([]string, error) {
	if f.GetAccountIDsFunc != nil {
		return f.GetAccountIDsFunc(ctx)
	}
	return nil, nil
}

func (f *Fake) GetAccountDetails(ctx context.Context, accountID string) (map[string]string, error) {
	if f.GetAccountDetailsFunc != nil {
		return f.GetAccountDetailsFunc(ctx, accountID)
	}
	return nil, nil
}

func (f *Fake) GetContacts(ctx context.Context, accountID string) ([]ContactEntry, error) {
	if f.GetContactsFunc != nil {
		return f.GetContactsFunc(ctx, accountID)
	}
	return nil, nil
}

func (f *Fake) GetContactDetails(ctx context.Context, accountID, uri string) (map[string]string, error) {
	if f.GetContactDetailsFunc != nil {
		return f.GetContactDetailsFunc(ctx, accountID, uri)
	}
	return nil, nil
}

func (f *Fake) AddContact(ctx context.Context, accountID, uri string) error {
	if f.AddContactFunc != nil {
		return f.AddContactFunc(ctx, accountID, uri)
	}
	return nil
}

func (f *Fake) RemoveContact(ctx context.Context, accountID, uri string, ban bool) error {
	if f.RemoveContactFunc != nil {
		return f.RemoveContactFunc(ctx, accountID, uri, ban)
	}
	return nil
}

func (f *Fake) SubscribeBuddy(ctx context.Context, accountID, uri string, watch bool) error {
	if f.SubscribeBuddyFunc != nil {
		return f.SubscribeBuddyFunc(ctx, accountID, uri, watch)
	}
	return nil
}

func (f *Fake) SendProfile(ctx context.Context, accountID, uri string) error {
	if f.SendProfileFunc != nil {
		return f.SendProfileFunc(ctx, accountID, uri)
	}
	return nil
}

func (f *Fake) GetConversations(ctx context.Context, accountID string) ([]string, error) {
	if f.GetConversationsFunc != nil {
		return f.GetConversationsFunc(ctx, accountID)
	}
	return nil, nil
}

func (f *Fake) GetConversationInfo(ctx context.Context, accountID, conversationID string) (map[string]string, error) {
	if f.GetConversationInfoFunc != nil {
		return f.GetConversationInfoFunc(ctx, accountID, conversationID)
	}
	return nil, nil
}

func (f *Fake) GetConversationMembers(ctx context.Context, accountID, conversationID string) ([]Member, error) {
	if f.GetConversationMembersFunc != nil {
		return f.GetConversationMembersFunc(ctx, accountID, conversationID)
	}
	return nil, nil
}

func (f *Fake) StartConversation(ctx context.Context, accountID string) (string, error) {
	if f.StartConversationFunc != nil {
		return f.StartConversationFunc(ctx, accountID)
	}
	return "", ErrNotConnected
}

func (f *Fake) RemoveConversation(ctx context.Context, accountID, conversationID string) error {
	if f.RemoveConversationFunc != nil {
		return f.RemoveConversationFunc(ctx, accountID, conversationID)
	}
	return nil
}

func (f *Fake) UpdateConversationInfo(ctx context.Context, accountID, conversationID string, info map[string]string) error {
	if f.UpdateConversationInfoFunc != nil {
		return f.UpdateConversationInfoFunc(ctx, accountID, conversationID, info)
	}
	return nil
}

func (f *Fake) AddConversationMember(ctx context.Context, accountID, conversationID, uri string) error {
	if f.AddConversationMemberFunc != nil {
		return f.AddConversationMemberFunc(ctx, accountID, conversationID, uri)
	}
	return nil
}

func (f *Fake) RemoveConversationMember(ctx context.Context, accountID, conversationID, uri string) error {
	if f.RemoveConversationMemberFunc != nil {
		return f.RemoveConversationMemberFunc(ctx, accountID, conversationID, uri)
	}
	return nil
}

func (f *Fake) SendMessage(ctx context.Context, accountID, conversationID, body, replyTo string) (string, error) {
	if f.SendMessageFunc != nil {
		return f.SendMessageFunc(ctx, accountID, conversationID, body, replyTo)
	}
	return "", ErrNotConnected
}

func (f *Fake) SendFile(ctx context.Context, accountID, conversationID, path, displayName string) error {
	if f.SendFileFunc != nil {
		return f.SendFileFunc(ctx, accountID, conversationID, path, displayName)
	}
	return nil
}

func (f *Fake) LoadConversationMessages(ctx context.Context, accountID, conversationID, fromID string, count int) error {
	if f.LoadConversationMessagesFunc != nil {
		return f.LoadConversationMessagesFunc(ctx, accountID, conversationID, fromID, count)
	}
	return nil
}

func (f *Fake) SetMessageDisplayed(ctx context.Context, accountID, conversationID, messageID string) error {
	if f.SetMessageDisplayedFunc != nil {
		return f.SetMessageDisplayedFunc(ctx, accountID, conversationID, messageID)
	}
	return nil
}

func (f *Fake) GetTrustRequests(ctx context.Context, accountID string) ([]TrustRequestEntry, error) {
	if f.GetTrustRequestsFunc != nil {
		return f.GetTrustRequestsFunc(ctx, accountID)
	}
	return nil, nil
}

func (f *Fake) AcceptTrustRequest(ctx context.Context, accountID, from string) error {
	if f.AcceptTrustRequestFunc != nil {
		return f.AcceptTrustRequestFunc(ctx, accountID, from)
	}
	return nil
}

func (f *Fake) DiscardTrustRequest(ctx context.Context, accountID, from string) error {
	if f.DiscardTrustRequestFunc != nil {
		return f.DiscardTrustRequestFunc(ctx, accountID, from)
	}
	return nil
}

func (f *Fake) AcceptConversationRequest(ctx context.Context, accountID, conversationID string) error {
	if f.AcceptConversationRequestFunc != nil {
		return f.AcceptConversationRequestFunc(ctx, accountID, conversationID)
	}
	return nil
}

func (f *Fake) DeclineConversationRequest(ctx context.Context, accountID, conversationID string) error {
	if f.DeclineConversationRequestFunc != nil {
		return f.DeclineConversationRequestFunc(ctx, accountID, conversationID)
	}
	return nil
}
