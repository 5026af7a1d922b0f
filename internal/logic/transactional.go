package logic

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/thaitype/monguard-sub000/internal/audit"
	"github.com/thaitype/monguard-sub000/internal/conf"
	"github.com/thaitype/monguard-sub000/internal/constants"
	"github.com/thaitype/monguard-sub000/internal/dao/fields"
	"github.com/thaitype/monguard-sub000/internal/dao/repository"
	"github.com/thaitype/monguard-sub000/internal/db"
	"github.com/thaitype/monguard-sub000/internal/models"
)

var _ Strategy = (*transactionalStrategy)(nil)

// transactionalStrategy runs the main write and its audit write inside one
// store transaction. Correctness comes from the store's isolation, not from
// __v comparisons, so results never carry a Version. The __v counter is still
// maintained on disk to keep documents interchangeable between strategies.
type transactionalStrategy struct {
	strategyBase
	txManager     db.TransactionManager
	retryAttempts int
	retryDelay    time.Duration
}

// NewTransactionalStrategy builds the transaction-backed strategy. Retry
// settings come from the concurrency configuration and apply only to errors
// the store marks as transient.
func NewTransactionalStrategy(
	cfg *conf.ConcurrencyConfig,
	repo repository.DocumentRepository,
	txManager db.TransactionManager,
	recorder *audit.Recorder,
	logger *zap.Logger,
) *transactionalStrategy {
	return &transactionalStrategy{
		strategyBase: strategyBase{
			repo:     repo,
			recorder: recorder,
			logger:   logger.Named("TransactionalStrategy"),
		},
		txManager:     txManager,
		retryAttempts: cfg.RetryAttempts,
		retryDelay:    time.Duration(cfg.RetryDelayMs) * time.Millisecond,
	}
}

// run executes fn inside a transaction, retrying transient failures up to the
// configured bound. The failing error is returned unchanged; callers must be
// able to inspect the store's original error.
func (s *transactionalStrategy) run(ctx context.Context, fn func(sessCtx context.Context) (interface{}, error)) (interface{}, error) {
	for attempt := 0; ; attempt++ {
		out, err := s.txManager.WithTransaction(ctx, fn)
		if err == nil {
			return out, nil
		}
		if !db.IsRetryable(err) || attempt >= s.retryAttempts {
			return nil, err
		}
		s.logger.Debug("Retrying transient transaction failure",
			zap.Error(err), zap.Int("attempt", attempt+1))
		if s.retryDelay > 0 {
			select {
			case <-ctx.Done():
				return nil, err
			case <-time.After(s.retryDelay):
			}
		}
	}
}

// recordInTx writes the audit entry inside the open transaction. A non-nil
// return aborts the whole block; the recorder only escalates failures when
// fail_on_error is set, so a lenient configuration keeps the mutation alive.
func (s *transactionalStrategy) recordInTx(sessCtx context.Context, rec *audit.Record) error {
	return s.recorder.Record(sessCtx, rec)
}

func (s *transactionalStrategy) Create(ctx context.Context, doc models.Document, opts *MutateOptions) (models.Document, error) {
	if doc == nil {
		return nil, ErrNilDocument
	}
	opts = opts.normalized()
	now := time.Now()

	out, err := s.run(ctx, func(sessCtx context.Context) (interface{}, error) {
		stamped := stampNewDocument(doc, opts.User, now)
		id, err := s.repo.InsertOne(sessCtx, stamped)
		if err != nil {
			return nil, err
		}
		stamped[fields.FieldObjectId] = id

		if s.shouldAudit(opts) {
			err := s.recordInTx(sessCtx, &audit.Record{
				Ref:        s.ref(id),
				Action:     constants.ActionCreate,
				After:      stamped,
				User:       opts.User,
				CustomData: opts.CustomData,
			})
			if err != nil {
				return nil, err
			}
		}
		return stamped, nil
	})
	if err != nil {
		return nil, err
	}
	return out.(models.Document), nil
}

func (s *transactionalStrategy) Update(ctx context.Context, filter, update bson.M, opts *MutateOptions) (*MutationResult, error) {
	if update == nil {
		return nil, ErrNilUpdate
	}
	opts = opts.normalized()
	return s.applyUpdate(ctx, mergeAliveFilter(filter), update, constants.ActionUpdate, false, opts)
}

func (s *transactionalStrategy) UpdateByID(ctx context.Context, id interface{}, update bson.M, opts *MutateOptions) (*MutationResult, error) {
	return s.Update(ctx, bson.M{fields.FieldObjectId: id}, update, opts)
}

func (s *transactionalStrategy) UpdateMany(ctx context.Context, filter, update bson.M, opts *MutateOptions) (*MutationResult, error) {
	if update == nil {
		return nil, ErrNilUpdate
	}
	opts = opts.normalized()
	now := time.Now()
	merged := mergeAliveFilter(filter)

	out, err := s.run(ctx, func(sessCtx context.Context) (interface{}, error) {
		var befores []models.Document
		if s.shouldAudit(opts) {
			var err error
			befores, err = s.repo.Find(sessCtx, merged, 0)
			if err != nil {
				return nil, err
			}
		}

		res, err := s.repo.UpdateMany(sessCtx, merged, stampUpdate(update, opts.User, now))
		if err != nil {
			return nil, err
		}
		result := resultFromUpdate(res)

		if res.ModifiedCount > 0 {
			for _, before := range befores {
				if err := s.auditInTx(sessCtx, before, constants.ActionUpdate, false, opts); err != nil {
					return nil, err
				}
			}
		}
		return result, nil
	})
	if err != nil {
		return nil, err
	}
	return out.(*MutationResult), nil
}

func (s *transactionalStrategy) Delete(ctx context.Context, filter bson.M, opts *MutateOptions) (*MutationResult, error) {
	opts = opts.normalized()
	if opts.HardDelete {
		return s.hardDelete(ctx, filter, opts)
	}

	now := time.Now()
	update := bson.M{"$set": bson.M{fields.FieldDeletedAt: now}}
	if opts.User != nil {
		update["$set"].(bson.M)[fields.FieldDeletedBy] = opts.User.UserID
	}
	return s.applyUpdate(ctx, mergeAliveFilter(filter), update, constants.ActionDelete, true, opts)
}

func (s *transactionalStrategy) DeleteByID(ctx context.Context, id interface{}, opts *MutateOptions) (*MutationResult, error) {
	return s.Delete(ctx, bson.M{fields.FieldObjectId: id}, opts)
}

func (s *transactionalStrategy) Restore(ctx context.Context, filter bson.M, opts *MutateOptions) (*MutationResult, error) {
	opts = opts.normalized()

	merged := bson.M{}
	for k, v := range filter {
		merged[k] = v
	}
	merged[fields.FieldDeletedAt] = bson.M{"$exists": true}

	update := bson.M{"$unset": bson.M{
		fields.FieldDeletedAt: "",
		fields.FieldDeletedBy: "",
	}}
	return s.applyUpdate(ctx, merged, update, constants.ActionRestore, false, opts)
}

func (s *transactionalStrategy) applyUpdate(ctx context.Context, filter, update bson.M, action constants.Action, softDelete bool, opts *MutateOptions) (*MutationResult, error) {
	now := time.Now()

	out, err := s.run(ctx, func(sessCtx context.Context) (interface{}, error) {
		var before models.Document
		if s.shouldAudit(opts) {
			var err error
			before, err = s.repo.FindOne(sessCtx, filter)
			if err != nil {
				return nil, err
			}
		}

		// Pin the write to the snapshotted document so the audit before
		// image describes the document that actually changed.
		updateFilter := filter
		if before != nil {
			updateFilter = bson.M{}
			for k, v := range filter {
				updateFilter[k] = v
			}
			updateFilter[fields.FieldObjectId] = models.DocumentID(before)
		}

		res, err := s.repo.UpdateOne(sessCtx, updateFilter, stampUpdate(update, opts.User, now), opts.Upsert)
		if err != nil {
			return nil, err
		}
		result := resultFromUpdate(res)

		if res.UpsertedID != nil && s.shouldAudit(opts) {
			after, err := s.repo.FindOne(sessCtx, bson.M{fields.FieldObjectId: res.UpsertedID})
			if err != nil {
				return nil, err
			}
			if after != nil {
				err := s.recordInTx(sessCtx, &audit.Record{
					Ref:        s.ref(res.UpsertedID),
					Action:     constants.ActionCreate,
					After:      after,
					User:       opts.User,
					CustomData: opts.CustomData,
				})
				if err != nil {
					return nil, err
				}
			}
			return result, nil
		}

		if res.ModifiedCount == 0 || before == nil {
			return result, nil
		}
		if err := s.auditInTx(sessCtx, before, action, softDelete, opts); err != nil {
			return nil, err
		}
		return result, nil
	})
	if err != nil {
		return nil, err
	}
	return out.(*MutationResult), nil
}

func (s *transactionalStrategy) auditInTx(sessCtx context.Context, before models.Document, action constants.Action, softDelete bool, opts *MutateOptions) error {
	id := models.DocumentID(before)
	after, err := s.repo.FindOne(sessCtx, bson.M{fields.FieldObjectId: id})
	if err != nil {
		return err
	}
	if after == nil {
		return nil
	}
	return s.recordInTx(sessCtx, &audit.Record{
		Ref:         s.ref(id),
		Action:      action,
		Before:      before,
		After:       after,
		User:        opts.User,
		SoftDelete:  softDelete,
		CustomData:  opts.CustomData,
		StorageMode: opts.StorageMode,
	})
}

func (s *transactionalStrategy) hardDelete(ctx context.Context, filter bson.M, opts *MutateOptions) (*MutationResult, error) {
	out, err := s.run(ctx, func(sessCtx context.Context) (interface{}, error) {
		var victims []models.Document
		if s.shouldAudit(opts) {
			var err error
			victims, err = s.repo.Find(sessCtx, filter, 0)
			if err != nil {
				return nil, err
			}
		}

		count, err := s.repo.DeleteMany(sessCtx, filter)
		if err != nil {
			return nil, err
		}

		for _, doc := range victims {
			err := s.recordInTx(sessCtx, &audit.Record{
				Ref:        s.ref(models.DocumentID(doc)),
				Action:     constants.ActionDelete,
				Before:     doc,
				User:       opts.User,
				HardDelete: true,
				CustomData: opts.CustomData,
			})
			if err != nil {
				return nil, err
			}
		}
		return &MutationResult{Acknowledged: true, DeletedCount: count}, nil
	})
	if err != nil {
		return nil, err
	}
	return out.(*MutationResult), nil
}
