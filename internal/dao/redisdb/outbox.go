package redisdb

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/thaitype/monguard-sub000/internal/conf"
	"github.com/thaitype/monguard-sub000/internal/dao/repository"
	"github.com/thaitype/monguard-sub000/internal/models"
)

const (
	keyPending     = "outbox:pending"
	keyEventPrefix = "outbox:event:"
	keyDeadLetters = "outbox:dead_letters"
)

func NewOutboxDAO(client *redis.Client, cfg *conf.OutboxConfig, namespace string, logger *zap.Logger) *OutboxDAO {
	return &OutboxDAO{
		client:           client,
		namespace:        namespace,
		maxRetryAttempts: cfg.MaxRetryAttempts,
		logger:           logger.Named("RedisOutboxDAO"),
	}
}

// OutboxDAO is the Redis-backed outbox. Pending event ids live in a sorted
// set scored by enqueue timestamp, the event bodies in plain keys, and dead
// letters in a hash keyed by event id.
type OutboxDAO struct {
	client           *redis.Client
	namespace        string
	maxRetryAttempts int
	logger           *zap.Logger
}

func (d *OutboxDAO) key(suffix string) string {
	return d.namespace + suffix
}

func (d *OutboxDAO) Enqueue(ctx context.Context, event *models.OutboxEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	// SetNX keeps the first write; a replayed id must not reset retry state.
	set, err := d.client.SetNX(ctx, d.key(keyEventPrefix+event.ID), body, 0).Result()
	if err != nil {
		d.logger.Error("Enqueue: SetNX failed", zap.Error(err), zap.String("event_id", event.ID))
		return err
	}
	if !set {
		return nil
	}

	err = d.client.ZAdd(ctx, d.key(keyPending), redis.Z{
		Score:  float64(event.Timestamp.UnixMilli()),
		Member: event.ID,
	}).Err()
	if err != nil {
		d.logger.Error("Enqueue: ZAdd failed", zap.Error(err), zap.String("event_id", event.ID))
		return err
	}
	return nil
}

func (d *OutboxDAO) Dequeue(ctx context.Context, limit int) ([]*models.OutboxEvent, error) {
	ids, err := d.client.ZRange(ctx, d.key(keyPending), 0, int64(limit)-1).Result()
	if err != nil {
		d.logger.Error("Dequeue: ZRange failed", zap.Error(err))
		return nil, err
	}

	events := make([]*models.OutboxEvent, 0, len(ids))
	for _, id := range ids {
		event, err := d.getEvent(ctx, id)
		if err != nil {
			return nil, err
		}
		if event == nil || event.RetryCount >= d.maxRetryAttempts {
			continue
		}
		events = append(events, event)
	}
	return events, nil
}

func (d *OutboxDAO) Ack(ctx context.Context, id string) error {
	pipe := d.client.TxPipeline()
	pipe.ZRem(ctx, d.key(keyPending), id)
	pipe.Del(ctx, d.key(keyEventPrefix+id))
	if _, err := pipe.Exec(ctx); err != nil {
		d.logger.Error("Ack: pipeline failed", zap.Error(err), zap.String("event_id", id))
		return err
	}
	return nil
}

func (d *OutboxDAO) Fail(ctx context.Context, id string, procErr error) error {
	event, err := d.getEvent(ctx, id)
	if err != nil {
		return err
	}
	if event == nil {
		return nil
	}

	now := time.Now()
	event.RetryCount++
	event.LastProcessedAt = &now

	if event.RetryCount >= d.maxRetryAttempts {
		deadLetter := &models.DeadLetterEvent{
			OutboxEvent: *event,
			Error: models.OutboxErrorDetail{
				Message:   procErr.Error(),
				Timestamp: now,
			},
		}
		body, err := json.Marshal(deadLetter)
		if err != nil {
			return err
		}

		pipe := d.client.TxPipeline()
		pipe.HSet(ctx, d.key(keyDeadLetters), id, body)
		pipe.ZRem(ctx, d.key(keyPending), id)
		pipe.Del(ctx, d.key(keyEventPrefix+id))
		if _, err := pipe.Exec(ctx); err != nil {
			d.logger.Error("Fail: dead-letter pipeline failed", zap.Error(err), zap.String("event_id", id))
			return err
		}
		d.logger.Warn("Outbox event dead-lettered",
			zap.String("event_id", id),
			zap.Int("retry_count", event.RetryCount),
			zap.String("error", procErr.Error()))
		return nil
	}

	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if err := d.client.Set(ctx, d.key(keyEventPrefix+id), body, 0).Err(); err != nil {
		d.logger.Error("Fail: Set failed", zap.Error(err), zap.String("event_id", id))
		return err
	}
	return nil
}

func (d *OutboxDAO) QueueDepth(ctx context.Context) (int64, error) {
	depth, err := d.client.ZCard(ctx, d.key(keyPending)).Result()
	if err != nil {
		d.logger.Error("QueueDepth: ZCard failed", zap.Error(err))
		return 0, err
	}
	return depth, nil
}

func (d *OutboxDAO) DeadLetters(ctx context.Context, limit int) ([]*models.DeadLetterEvent, error) {
	bodies, err := d.client.HGetAll(ctx, d.key(keyDeadLetters)).Result()
	if err != nil {
		d.logger.Error("DeadLetters: HGetAll failed", zap.Error(err))
		return nil, err
	}

	events := make([]*models.DeadLetterEvent, 0, len(bodies))
	for _, body := range bodies {
		var event models.DeadLetterEvent
		if err := json.Unmarshal([]byte(body), &event); err != nil {
			return nil, err
		}
		events = append(events, &event)
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

func (d *OutboxDAO) getEvent(ctx context.Context, id string) (*models.OutboxEvent, error) {
	body, err := d.client.Get(ctx, d.key(keyEventPrefix+id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		d.logger.Error("getEvent: Get failed", zap.Error(err), zap.String("event_id", id))
		return nil, err
	}

	var event models.OutboxEvent
	if err := json.Unmarshal([]byte(body), &event); err != nil {
		return nil, err
	}
	return &event, nil
}

var _ repository.OutboxRepository = (*OutboxDAO)(nil)
