package bus

import "time"

// Event represents a domain event published on the bus. AccountID scopes
// the event to a single account; engine-global events leave it empty.
type Event struct {
	Kind      string
	AccountID string
	Timestamp time.Time
	Payload   any
}
