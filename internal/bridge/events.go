package bridge

// Event kinds published on the bus by bridge adapters. Engine components
// subscribe to the "bridge." namespace (or a narrower prefix) and switch on
// the payload type.
const (
	KindRegistrationChanged = "bridge.account.registration"
	KindAccountProfile      = "bridge.account.profile"
	KindAccountDetails      = "bridge.account.details"

	KindContactAdded   = "bridge.contact.added"
	KindContactRemoved = "bridge.contact.removed"
	KindPresence       = "bridge.contact.presence"
	KindTrustRequest   = "bridge.contact.trust_request"
	KindProfile        = "bridge.contact.profile"

	KindMessageReceived     = "bridge.conversation.message"
	KindMessagesLoaded      = "bridge.conversation.messages_loaded"
	KindConversationReady   = "bridge.conversation.ready"
	KindConversationRemoved = "bridge.conversation.removed"
	KindConversationRequest = "bridge.conversation.request"
	KindMemberEvent         = "bridge.conversation.member"
)

// Membership event names carried by MemberEvent.Event.
const (
	MemberJoin  = "join"
	MemberLeave = "leave"
	MemberBan   = "ban"
	MemberUnban = "unban"
)

// RegistrationEvent reports an account's registration state.
type RegistrationEvent struct {
	AccountID string
	State     string
	Code      int
}

// ContactEvent reports a daemon-side contact addition or removal.
type ContactEvent struct {
	AccountID string
	URI       string
	Confirmed bool
	Banned    bool
}

// PresenceEvent reports a peer's reachability. Time is the event time in
// unix ms; the daemon may replay cached state, so consumers must filter.
type PresenceEvent struct {
	AccountID string
	URI       string
	Online    bool
	Time      int64
}

// ProfileEvent carries a peer's pushed vCard. HasAvatar distinguishes a
// profile that genuinely carries an avatar from an incomplete push.
type ProfileEvent struct {
	AccountID   string
	URI         string
	DisplayName string
	AvatarPath  string
	HasAvatar   bool
}

// TrustRequestEvent reports an incoming trust request.
type TrustRequestEvent struct {
	AccountID      string
	From           string
	ConversationID string
	Payload        []byte
	Received       int64
}

// MessageEvent is one message from the daemon, live or loaded. Type is the
// daemon's declared MIME marker; Body is the raw interaction body map.
type MessageEvent struct {
	AccountID      string
	ConversationID string
	ID             string
	AuthorURI      string
	Timestamp      int64
	Type           string
	Body           map[string]string
}

// MessagesLoadedEvent is the bulk response to LoadConversationMessages.
// The daemon can emit spurious empty batches.
type MessagesLoadedEvent struct {
	AccountID      string
	ConversationID string
	Messages       []MessageEvent
}

// ConversationEvent reports a conversation lifecycle change (ready,
// removed, request received).
type ConversationEvent struct {
	AccountID      string
	ConversationID string
}

// MemberEvent reports a membership change in a conversation.
type MemberEvent struct {
	AccountID      string
	ConversationID string
	URI            string
	Event          string
}
