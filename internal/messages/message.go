// Package messages ingests incoming and loaded message events into ordered
// per-conversation caches: classification, timestamp normalization, id
// dedup, and notification dispatch all live here.
package messages

// Status is a message's delivery status.
type Status string

const (
	StatusSending   Status = "sending"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
	StatusFailed    Status = "failed"
)

// Type classifies a message's content.
type Type string

const (
	TypeText  Type = "text"
	TypeImage Type = "image"
	TypeFile  Type = "file"
	TypeVideo Type = "video"
	TypeAudio Type = "audio"
	TypeCall  Type = "call"
)

// Message is one entry of a conversation's message list. Timestamps are
// unix ms. ID is unique within its conversation.
type Message struct {
	ID             string
	ConversationID string
	AuthorURI      string
	Body           string
	Timestamp      int64
	Status         Status
	Type           Type
	FileID         string
}

// Update is the payload of KindUpdated events.
type Update struct {
	AccountID      string
	ConversationID string
	Message        Message
	// Live is true for messages arriving as they happen (incoming events
	// and local optimistic sends) and false for loaded history. Loaded
	// history never counts as unread.
	Live bool
}
