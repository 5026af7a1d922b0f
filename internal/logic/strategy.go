package logic

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/thaitype/monguard-sub000/internal/audit"
	"github.com/thaitype/monguard-sub000/internal/conf"
	"github.com/thaitype/monguard-sub000/internal/constants"
	"github.com/thaitype/monguard-sub000/internal/dao/repository"
	"github.com/thaitype/monguard-sub000/internal/db"
	"github.com/thaitype/monguard-sub000/internal/models"
)

// Strategy is the mutation entry point for one guarded collection. Exactly
// two implementations exist, chosen once at construction from the concurrency
// configuration: optimistic version counting or store transactions.
type Strategy interface {
	Create(ctx context.Context, doc models.Document, opts *MutateOptions) (models.Document, error)
	Update(ctx context.Context, filter, update bson.M, opts *MutateOptions) (*MutationResult, error)
	UpdateByID(ctx context.Context, id interface{}, update bson.M, opts *MutateOptions) (*MutationResult, error)
	UpdateMany(ctx context.Context, filter, update bson.M, opts *MutateOptions) (*MutationResult, error)
	Delete(ctx context.Context, filter bson.M, opts *MutateOptions) (*MutationResult, error)
	DeleteByID(ctx context.Context, id interface{}, opts *MutateOptions) (*MutationResult, error)
	Restore(ctx context.Context, filter bson.M, opts *MutateOptions) (*MutationResult, error)
}

// MutateOptions carries the per-call knobs shared by all mutation operations.
// A nil value behaves like the zero value.
type MutateOptions struct {
	// User is stamped into the actor fields and the audit trail.
	User *models.UserContext
	// SkipAudit suppresses the audit entry for this call only.
	SkipAudit bool
	// StorageMode overrides the configured audit storage mode for this call.
	// Creates and deletes ignore it and always keep full snapshots.
	StorageMode constants.StorageMode
	// CustomData is attached verbatim to the audit entry metadata.
	CustomData interface{}
	// HardDelete physically removes matching documents instead of marking
	// them deleted.
	HardDelete bool
	// Upsert inserts a new document when an update matches nothing.
	Upsert bool
}

func (o *MutateOptions) normalized() *MutateOptions {
	if o == nil {
		return &MutateOptions{}
	}
	return o
}

// MutationResult mirrors the store acknowledgement of a write. Version holds
// the document's __v after the mutation and is only populated by the
// optimistic strategy when exactly one document was modified; multi-document
// updates and the transactional strategy leave it nil.
type MutationResult struct {
	Acknowledged  bool
	MatchedCount  int64
	ModifiedCount int64
	DeletedCount  int64
	UpsertedCount int64
	UpsertedID    interface{}
	Version       *int64
}

// NewStrategy selects the mutation strategy from the concurrency
// configuration. The transactions switch must be explicitly present;
// construction fails rather than guessing a default.
func NewStrategy(
	cfg *conf.ConcurrencyConfig,
	repo repository.DocumentRepository,
	txManager db.TransactionManager,
	recorder *audit.Recorder,
	logger *zap.Logger,
) (Strategy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if *cfg.TransactionsEnabled {
		return NewTransactionalStrategy(cfg, repo, txManager, recorder, logger), nil
	}
	return NewOptimisticStrategy(repo, recorder, logger), nil
}
