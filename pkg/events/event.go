package events

import "time"

// Event types carried on the bus. The NATS subject is "events.<type>".
const (
	TypeMessageCreated = "MESSAGE_CREATED"
	TypeQueryAudited   = "QUERY_AUDITED"
)

// Event defines the contract for all system events.
type Event interface {
	// EventType returns the unique code for this event (e.g., "MESSAGE_CREATED").
	EventType() string

	// Payload returns the data associated with the event.
	Payload() map[string]interface{}

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

type BaseEvent struct {
	Type       string
	Data       map[string]interface{}
	OccurredAt time.Time
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() map[string]interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}

// String reads a string field from the payload, returning "" when absent.
func String(e Event, key string) string {
	v, _ := e.Payload()[key].(string)
	return v
}
