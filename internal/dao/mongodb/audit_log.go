package mongodb

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/thaitype/monguard-sub000/internal/dao/repository"
	"github.com/thaitype/monguard-sub000/internal/models"
)

func NewAuditLogDAO(db *mongo.Database, logger *zap.Logger) *AuditLogDAO {
	return &AuditLogDAO{
		collection: db.Collection(CollectionAuditLogs),
		logger:     logger.Named("AuditLogDAO"),
	}
}

type AuditLogDAO struct {
	collection *mongo.Collection
	logger     *zap.Logger
}

// Create inserts one audit trail entry. The error is returned so the audit
// recorder can decide whether to escalate or swallow it; callers outside the
// recorder must not fail a primary mutation on it.
func (d *AuditLogDAO) Create(ctx context.Context, entry *models.AuditLogEntry) error {
	_, err := d.collection.InsertOne(ctx, entry)
	if err != nil {
		d.logger.Error("Create: InsertOne failed", zap.Error(err))
		return err
	}
	return nil
}

var _ repository.AuditLogRepository = (*AuditLogDAO)(nil)
