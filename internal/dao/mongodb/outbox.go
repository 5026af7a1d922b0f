package mongodb

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/thaitype/monguard-sub000/internal/conf"
	"github.com/thaitype/monguard-sub000/internal/dao/fields"
	"github.com/thaitype/monguard-sub000/internal/dao/repository"
	"github.com/thaitype/monguard-sub000/internal/models"
)

func NewOutboxDAO(db *mongo.Database, cfg *conf.OutboxConfig, logger *zap.Logger) *OutboxDAO {
	return &OutboxDAO{
		outboxCollection:     db.Collection(CollectionOutbox),
		deadLetterCollection: db.Collection(CollectionOutboxDeadLetters),
		maxRetryAttempts:     cfg.MaxRetryAttempts,
		logger:               logger.Named("OutboxDAO"),
	}
}

// OutboxDAO stores pending audit events keyed by their caller-supplied id.
// Delivery is at-least-once: Dequeue hands out events without claiming them,
// so two workers can see the same event and consumers must be idempotent.
type OutboxDAO struct {
	outboxCollection     *mongo.Collection
	deadLetterCollection *mongo.Collection
	maxRetryAttempts     int
	logger               *zap.Logger
}

func (d *OutboxDAO) Enqueue(ctx context.Context, event *models.OutboxEvent) error {
	_, err := d.outboxCollection.InsertOne(ctx, event)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			// The id is the idempotency key; a duplicate enqueue is a replay,
			// not a failure.
			return nil
		}
		d.logger.Error("Enqueue: InsertOne failed", zap.Error(err), zap.String("event_id", event.ID))
		return err
	}
	return nil
}

func (d *OutboxDAO) Dequeue(ctx context.Context, limit int) ([]*models.OutboxEvent, error) {
	findOptions := options.Find().
		SetSort(bson.D{{Key: fields.FieldOutboxTimestamp, Value: 1}}). // Process oldest first
		SetLimit(int64(limit))

	filter := bson.M{fields.FieldOutboxRetryCount: bson.M{"$lt": d.maxRetryAttempts}}
	cursor, err := d.outboxCollection.Find(ctx, filter, findOptions)
	if err != nil {
		d.logger.Error("Dequeue: Find failed", zap.Error(err))
		return nil, err
	}
	defer cursor.Close(ctx)

	events := make([]*models.OutboxEvent, 0)
	if err = cursor.All(ctx, &events); err != nil {
		d.logger.Error("Dequeue: cursor decoding failed", zap.Error(err))
		return nil, err
	}
	return events, nil
}

func (d *OutboxDAO) Ack(ctx context.Context, id string) error {
	_, err := d.outboxCollection.DeleteOne(ctx, bson.M{fields.FieldObjectId: id})
	if err != nil {
		d.logger.Error("Ack: DeleteOne failed", zap.Error(err), zap.String("event_id", id))
		return err
	}
	return nil
}

// Fail increments the retry count of a pending event. Once the count reaches
// the configured maximum the event moves to the dead-letter collection with
// the terminal error attached. A missing id is a no-op: the event was acked
// or dead-lettered by a concurrent worker.
func (d *OutboxDAO) Fail(ctx context.Context, id string, procErr error) error {
	var event models.OutboxEvent
	err := d.outboxCollection.FindOne(ctx, bson.M{fields.FieldObjectId: id}).Decode(&event)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil
		}
		d.logger.Error("Fail: FindOne failed", zap.Error(err), zap.String("event_id", id))
		return err
	}

	now := time.Now()
	event.RetryCount++
	event.LastProcessedAt = &now

	if event.RetryCount >= d.maxRetryAttempts {
		deadLetter := &models.DeadLetterEvent{
			OutboxEvent: event,
			Error: models.OutboxErrorDetail{
				Message:   procErr.Error(),
				Timestamp: now,
			},
		}
		if _, err := d.deadLetterCollection.InsertOne(ctx, deadLetter); err != nil && !mongo.IsDuplicateKeyError(err) {
			d.logger.Error("Fail: dead-letter InsertOne failed", zap.Error(err), zap.String("event_id", id))
			return err
		}
		if _, err := d.outboxCollection.DeleteOne(ctx, bson.M{fields.FieldObjectId: id}); err != nil {
			d.logger.Error("Fail: DeleteOne after dead-letter failed", zap.Error(err), zap.String("event_id", id))
			return err
		}
		d.logger.Warn("Outbox event dead-lettered",
			zap.String("event_id", id),
			zap.Int("retry_count", event.RetryCount),
			zap.String("error", procErr.Error()))
		return nil
	}

	update := bson.M{"$set": bson.M{
		fields.FieldOutboxRetryCount:      event.RetryCount,
		fields.FieldOutboxLastProcessedAt: now,
	}}
	if _, err := d.outboxCollection.UpdateOne(ctx, bson.M{fields.FieldObjectId: id}, update); err != nil {
		d.logger.Error("Fail: UpdateOne failed", zap.Error(err), zap.String("event_id", id))
		return err
	}
	return nil
}

// QueueDepth counts pending events only; dead-lettered events are excluded.
func (d *OutboxDAO) QueueDepth(ctx context.Context) (int64, error) {
	count, err := d.outboxCollection.CountDocuments(ctx, bson.M{
		fields.FieldOutboxRetryCount: bson.M{"$lt": d.maxRetryAttempts},
	})
	if err != nil {
		d.logger.Error("QueueDepth: CountDocuments failed", zap.Error(err))
		return 0, err
	}
	return count, nil
}

func (d *OutboxDAO) DeadLetters(ctx context.Context, limit int) ([]*models.DeadLetterEvent, error) {
	findOptions := options.Find().SetSort(bson.D{{Key: fields.FieldOutboxTimestamp, Value: 1}})
	if limit > 0 {
		findOptions.SetLimit(int64(limit))
	}

	cursor, err := d.deadLetterCollection.Find(ctx, bson.M{}, findOptions)
	if err != nil {
		d.logger.Error("DeadLetters: Find failed", zap.Error(err))
		return nil, err
	}
	defer cursor.Close(ctx)

	events := make([]*models.DeadLetterEvent, 0)
	if err = cursor.All(ctx, &events); err != nil {
		d.logger.Error("DeadLetters: cursor decoding failed", zap.Error(err))
		return nil, err
	}
	return events, nil
}

var _ repository.OutboxRepository = (*OutboxDAO)(nil)
