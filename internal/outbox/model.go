// Package outbox relays domain events written in the same transaction as
// the state change to Kafka. Delivery is at least once.
package outbox

import "time"

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusSent       Status = "sent"
	StatusFailed     Status = "failed"
)

// MaxRetries before a row is parked as failed.
const MaxRetries = 10

type Event struct {
	ID            int64
	AggregateType string
	AggregateID   string
	Type          string
	// Topic overrides the dispatcher's default topic.
	Topic       string
	Payload     []byte
	Headers     map[string]string
	Traceparent string
	CreatedAt   time.Time
	Status      Status
	RetryCount  int
	LastError   *string
}
