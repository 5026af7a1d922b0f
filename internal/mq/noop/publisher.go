package noop

import (
	"context"

	"github.com/thaitype/monguard-sub000/internal/mq"
)

// Publisher implements mq.Publisher and discards everything. Used when the
// relay runs without a message broker, for local development and tests.
type Publisher struct{}

// NewPublisher creates a new no-op Publisher.
func NewPublisher() *Publisher {
	return &Publisher{}
}

// Publish does nothing and reports success.
func (p *Publisher) Publish(ctx context.Context, topic string, body []byte) error {
	return nil
}

// Close does nothing; there is no connection to release.
func (p *Publisher) Close() {}

var _ mq.Publisher = (*Publisher)(nil)
