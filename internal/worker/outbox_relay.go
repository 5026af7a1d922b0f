package worker

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/thaitype/monguard-sub000/internal/conf"
	"github.com/thaitype/monguard-sub000/internal/dao/repository"
	"github.com/thaitype/monguard-sub000/internal/mq"
)

// OutboxRelay periodically drains the outbox queue and publishes pending
// audit events to the message queue. Dequeue hands out events without locking
// them, so a relay restart or a second relay instance can deliver the same
// event twice; downstream consumers key on the event id to stay idempotent.
type OutboxRelay struct {
	outboxRepo repository.OutboxRepository
	publisher  mq.Publisher
	topic      string
	interval   time.Duration
	batchSize  int
	logger     *zap.Logger
}

// NewOutboxRelay creates a new relay from the worker and outbox configuration.
func NewOutboxRelay(outboxRepo repository.OutboxRepository, publisher mq.Publisher, workerCfg *conf.WorkerConfig, outboxCfg *conf.OutboxConfig, logger *zap.Logger) *OutboxRelay {
	return &OutboxRelay{
		outboxRepo: outboxRepo,
		publisher:  publisher,
		topic:      outboxCfg.Topic,
		interval:   time.Duration(workerCfg.Outbox.IntervalSeconds) * time.Second,
		batchSize:  workerCfg.Outbox.BatchSize,
		logger:     logger.Named("OutboxRelay"),
	}
}

// Start begins the polling loop. It blocks until the context is cancelled.
func (r *OutboxRelay) Start(ctx context.Context) {
	r.logger.Info("Outbox relay started",
		zap.Duration("interval", r.interval),
		zap.Int("batchSize", r.batchSize),
		zap.String("topic", r.topic))
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.processBatch(ctx)
		case <-ctx.Done():
			r.logger.Info("Outbox relay shutting down")
			return
		}
	}
}

// processBatch fetches one batch of pending events and attempts delivery.
// Each event is acked on success or failed individually; one bad event never
// blocks the rest of the batch.
func (r *OutboxRelay) processBatch(ctx context.Context) {
	events, err := r.outboxRepo.Dequeue(ctx, r.batchSize)
	if err != nil {
		r.logger.Error("Failed to dequeue outbox events", zap.Error(err))
		return
	}
	if len(events) == 0 {
		return
	}
	r.logger.Debug("Fetched events for delivery", zap.Int("count", len(events)))

	for _, event := range events {
		body, err := json.Marshal(event)
		if err != nil {
			// A payload that cannot be serialized will never succeed; push it
			// toward the dead-letter store instead of retrying forever.
			r.fail(ctx, event.ID, err)
			continue
		}

		if err := r.publisher.Publish(ctx, r.topic, body); err != nil {
			r.logger.Error("Failed to publish outbox event",
				zap.String("event_id", event.ID),
				zap.Error(err))
			r.fail(ctx, event.ID, err)
			continue
		}

		if err := r.outboxRepo.Ack(ctx, event.ID); err != nil {
			r.logger.Error("Failed to ack outbox event",
				zap.String("event_id", event.ID),
				zap.Error(err))
		}
	}
}

func (r *OutboxRelay) fail(ctx context.Context, id string, procErr error) {
	if err := r.outboxRepo.Fail(ctx, id, procErr); err != nil {
		r.logger.Error("Failed to record outbox failure", zap.String("event_id", id), zap.Error(err))
	}
}

var _ Worker = (*OutboxRelay)(nil)
