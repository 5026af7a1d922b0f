package repository

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/thaitype/monguard-sub000/internal/models"
)

// UpdateResult mirrors the store's acknowledgement of a write.
type UpdateResult struct {
	Acknowledged  bool
	MatchedCount  int64
	ModifiedCount int64
	UpsertedCount int64
	UpsertedID    interface{}
}

// DocumentRepository is the thin store surface the mutation strategies build
// on. One instance is bound to one collection. FindOne returns (nil, nil)
// when no document matches; absence is an outcome, not an error.
type DocumentRepository interface {
	Name() string
	InsertOne(ctx context.Context, doc models.Document) (interface{}, error)
	FindOne(ctx context.Context, filter bson.M) (models.Document, error)
	Find(ctx context.Context, filter bson.M, limit int64) ([]models.Document, error)
	UpdateOne(ctx context.Context, filter, update bson.M, upsert bool) (*UpdateResult, error)
	UpdateMany(ctx context.Context, filter, update bson.M) (*UpdateResult, error)
	DeleteMany(ctx context.Context, filter bson.M) (int64, error)
	CountDocuments(ctx context.Context, filter bson.M) (int64, error)
}

// AuditLogRepository persists audit trail entries.
type AuditLogRepository interface {
	Create(ctx context.Context, entry *models.AuditLogEntry) error
}

// OutboxRepository is the durable at-least-once queue for audit events.
// Dequeue does not reserve or lock events, so consumers must be idempotent.
type OutboxRepository interface {
	Enqueue(ctx context.Context, event *models.OutboxEvent) error
	Dequeue(ctx context.Context, limit int) ([]*models.OutboxEvent, error)
	Ack(ctx context.Context, id string) error
	Fail(ctx context.Context, id string, procErr error) error
	QueueDepth(ctx context.Context) (int64, error)
	DeadLetters(ctx context.Context, limit int) ([]*models.DeadLetterEvent, error)
}
