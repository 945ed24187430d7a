// Package outbox defines the domain-event rows the settlement engine hands
// to the shared outbox facility. A separate relay process drains the table
// and delivers the events; this engine only appends.
package outbox

import "time"

// EventStatus tracks an event's delivery lifecycle in the outbox table
type EventStatus string

const (
	EventStatusPending   EventStatus = "PENDING"
	EventStatusPublished EventStatus = "PUBLISHED"
	EventStatusFailed    EventStatus = "FAILED_TO_PUBLISH"
)

// Event types emitted by this engine
const (
	EventTypeSettlementCompleted = "settlement.completed"
	EventTypeLedgerClosed        = "ledger.closed"
)

// Event is one domain-event row. AggregateID is the business date the event
// concerns; Payload is the JSON-encoded event body.
type Event struct {
	ID            int64       `json:"id"`
	EventType     string      `json:"event_type"`
	AggregateID   string      `json:"aggregate_id"`
	Payload       []byte      `json:"payload"`
	Status        EventStatus `json:"status"`
	Attempts      int         `json:"attempts"`
	CreatedAt     time.Time   `json:"created_at"`
	LastAttemptAt *time.Time  `json:"last_attempt_at,omitempty"`
}
