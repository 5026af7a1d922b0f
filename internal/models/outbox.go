package models

import (
	"time"
)

// OutboxEvent is the durable payload handed to the outbox queue instead of a
// synchronous audit write. ID is the caller-supplied idempotency key and
// doubles as the lookup key for Ack and Fail.
type OutboxEvent struct {
	ID              string                 `bson:"_id" json:"id"`
	Action          string                 `bson:"action" json:"action"`
	CollectionName  string                 `bson:"collectionName" json:"collectionName"`
	DocumentID      interface{}            `bson:"documentId" json:"documentId"`
	UserContext     *UserContext           `bson:"userContext,omitempty" json:"userContext,omitempty"`
	Metadata        map[string]interface{} `bson:"metadata,omitempty" json:"metadata,omitempty"`
	Timestamp       time.Time              `bson:"timestamp" json:"timestamp"`
	RetryCount      int                    `bson:"retryCount" json:"retryCount"`
	LastProcessedAt *time.Time             `bson:"lastProcessedAt,omitempty" json:"lastProcessedAt,omitempty"`
}

// OutboxErrorDetail captures why an event was dead-lettered.
type OutboxErrorDetail struct {
	Message   string    `bson:"message" json:"message"`
	Stack     string    `bson:"stack,omitempty" json:"stack,omitempty"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
}

// DeadLetterEvent is an outbox event that exhausted its retry budget, moved
// to the dead-letter store together with the terminal error.
type DeadLetterEvent struct {
	OutboxEvent `bson:",inline"`
	Error       OutboxErrorDetail `bson:"error" json:"error"`
}
