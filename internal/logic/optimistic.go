package logic

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/thaitype/monguard-sub000/internal/audit"
	"github.com/thaitype/monguard-sub000/internal/constants"
	"github.com/thaitype/monguard-sub000/internal/dao/fields"
	"github.com/thaitype/monguard-sub000/internal/dao/repository"
	"github.com/thaitype/monguard-sub000/internal/models"
)

var _ Strategy = (*optimisticStrategy)(nil)

// optimisticStrategy detects concurrent writers through the __v counter.
// Every update increments __v, and callers that chain mutations put the
// version they last observed into the next filter. A stale version simply
// matches nothing: modifiedCount 0 is the conflict signal, not an error.
type optimisticStrategy struct {
	strategyBase
}

// NewOptimisticStrategy builds the version-counting strategy. recorder may be
// nil when auditing is not wanted at all.
func NewOptimisticStrategy(repo repository.DocumentRepository, recorder *audit.Recorder, logger *zap.Logger) *optimisticStrategy {
	return &optimisticStrategy{
		strategyBase: strategyBase{
			repo:     repo,
			recorder: recorder,
			logger:   logger.Named("OptimisticStrategy"),
		},
	}
}

func (s *optimisticStrategy) Create(ctx context.Context, doc models.Document, opts *MutateOptions) (models.Document, error) {
	if doc == nil {
		return nil, ErrNilDocument
	}
	opts = opts.normalized()
	now := time.Now()

	out := stampNewDocument(doc, opts.User, now)
	id, err := s.repo.InsertOne(ctx, out)
	if err != nil {
		return nil, err
	}
	out[fields.FieldObjectId] = id

	if s.shouldAudit(opts) {
		s.recordBestEffort(ctx, &audit.Record{
			Ref:        s.ref(id),
			Action:     constants.ActionCreate,
			After:      out,
			User:       opts.User,
			CustomData: opts.CustomData,
		})
	}
	return out, nil
}

func (s *optimisticStrategy) Update(ctx context.Context, filter, update bson.M, opts *MutateOptions) (*MutationResult, error) {
	if update == nil {
		return nil, ErrNilUpdate
	}
	opts = opts.normalized()
	return s.applyUpdate(ctx, mergeAliveFilter(filter), update, constants.ActionUpdate, false, opts)
}

func (s *optimisticStrategy) UpdateByID(ctx context.Context, id interface{}, update bson.M, opts *MutateOptions) (*MutationResult, error) {
	return s.Update(ctx, bson.M{fields.FieldObjectId: id}, update, opts)
}

func (s *optimisticStrategy) UpdateMany(ctx context.Context, filter, update bson.M, opts *MutateOptions) (*MutationResult, error) {
	if update == nil {
		return nil, ErrNilUpdate
	}
	opts = opts.normalized()
	now := time.Now()
	merged := mergeAliveFilter(filter)

	var befores []models.Document
	if s.shouldAudit(opts) {
		var err error
		befores, err = s.repo.Find(ctx, merged, 0)
		if err != nil {
			return nil, err
		}
	}

	res, err := s.repo.UpdateMany(ctx, merged, stampUpdate(update, opts.User, now))
	if err != nil {
		return nil, err
	}
	result := resultFromUpdate(res)

	// Version stays unset: with several documents touched there is no single
	// __v to report. Each document still gets its own audit entry.
	if res.ModifiedCount > 0 {
		for _, before := range befores {
			s.auditAfterWrite(ctx, before, constants.ActionUpdate, false, opts)
		}
	}
	return result, nil
}

func (s *optimisticStrategy) Delete(ctx context.Context, filter bson.M, opts *MutateOptions) (*MutationResult, error) {
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

func (s *optimisticStrategy) DeleteByID(ctx context.Context, id interface{}, opts *MutateOptions) (*MutationResult, error) {
	return s.Delete(ctx, bson.M{fields.FieldObjectId: id}, opts)
}

func (s *optimisticStrategy) Restore(ctx context.Context, filter bson.M, opts *MutateOptions) (*MutationResult, error) {
	opts = opts.normalized()

	merged := bson.M{}
	for k, v := range filter {
		merged[k] = v
	}
	// Only documents that actually carry the soft-delete marker qualify.
	merged[fields.FieldDeletedAt] = bson.M{"$exists": true}

	update := bson.M{"$unset": bson.M{
		fields.FieldDeletedAt: "",
		fields.FieldDeletedBy: "",
	}}
	return s.applyUpdate(ctx, merged, update, constants.ActionRestore, false, opts)
}

// applyUpdate runs the shared single-document update path: read the before
// snapshot, execute the stamped update, and on exactly one modification read
// the after state to report the new __v and feed the audit trail. A zero
// modifiedCount returns immediately with no side effects at all.
func (s *optimisticStrategy) applyUpdate(ctx context.Context, filter, update bson.M, action constants.Action, softDelete bool, opts *MutateOptions) (*MutationResult, error) {
	now := time.Now()

	before, err := s.repo.FindOne(ctx, filter)
	if err != nil {
		return nil, err
	}

	// Pin the write to the snapshotted document: with a broad filter the
	// store could otherwise pick a different match than the pre-read did,
	// and the before image and version re-read would describe the wrong
	// document. With no match the original filter stays in place so an
	// upsert can still insert.
	updateFilter := filter
	if before != nil {
		updateFilter = bson.M{}
		for k, v := range filter {
			updateFilter[k] = v
		}
		updateFilter[fields.FieldObjectId] = models.DocumentID(before)
	}

	res, err := s.repo.UpdateOne(ctx, updateFilter, stampUpdate(update, opts.User, now), opts.Upsert)
	if err != nil {
		return nil, err
	}
	result := resultFromUpdate(res)

	if res.UpsertedID != nil {
		// The $inc on a fresh document seeds __v at 1, so an upsert behaves
		// like a create, audit entry included.
		after, err := s.repo.FindOne(ctx, bson.M{fields.FieldObjectId: res.UpsertedID})
		if err != nil {
			s.logger.Warn("Failed to read upserted document", zap.Error(err))
			return result, nil
		}
		if v, ok := models.DocumentVersion(after); ok {
			result.Version = &v
		}
		if s.shouldAudit(opts) && after != nil {
			s.recordBestEffort(ctx, &audit.Record{
				Ref:        s.ref(res.UpsertedID),
				Action:     constants.ActionCreate,
				After:      after,
				User:       opts.User,
				CustomData: opts.CustomData,
			})
		}
		return result, nil
	}

	if res.ModifiedCount == 0 || before == nil {
		return result, nil
	}

	after, err := s.repo.FindOne(ctx, bson.M{fields.FieldObjectId: models.DocumentID(before)})
	if err != nil {
		s.logger.Warn("Failed to read document after update", zap.Error(err))
		return result, nil
	}
	if v, ok := models.DocumentVersion(after); ok {
		result.Version = &v
	}
	if s.shouldAudit(opts) && after != nil {
		s.recordBestEffort(ctx, &audit.Record{
			Ref:         s.ref(models.DocumentID(before)),
			Action:      action,
			Before:      before,
			After:       after,
			User:        opts.User,
			SoftDelete:  softDelete,
			CustomData:  opts.CustomData,
			StorageMode: opts.StorageMode,
		})
	}
	return result, nil
}

// auditAfterWrite re-reads one document touched by a multi-document update
// and records its entry. Failures only cost the entry, never the mutation.
func (s *optimisticStrategy) auditAfterWrite(ctx context.Context, before models.Document, action constants.Action, softDelete bool, opts *MutateOptions) {
	id := models.DocumentID(before)
	after, err := s.repo.FindOne(ctx, bson.M{fields.FieldObjectId: id})
	if err != nil {
		s.logger.Warn("Failed to read document for audit", zap.Error(err), zap.Any("document_id", id))
		return
	}
	if after == nil {
		return
	}
	s.recordBestEffort(ctx, &audit.Record{
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

// hardDelete removes matching documents outright. Snapshots are captured
// first so each removed document still leaves one audit entry behind; the
// entries are written one by one after the delete.
func (s *optimisticStrategy) hardDelete(ctx context.Context, filter bson.M, opts *MutateOptions) (*MutationResult, error) {
	var victims []models.Document
	if s.shouldAudit(opts) {
		var err error
		victims, err = s.repo.Find(ctx, filter, 0)
		if err != nil {
			return nil, err
		}
	}

	count, err := s.repo.DeleteMany(ctx, filter)
	if err != nil {
		return nil, err
	}
	result := &MutationResult{Acknowledged: true, DeletedCount: count}

	for _, doc := range victims {
		s.recordBestEffort(ctx, &audit.Record{
			Ref:        s.ref(models.DocumentID(doc)),
			Action:     constants.ActionDelete,
			Before:     doc,
			User:       opts.User,
			HardDelete: true,
			CustomData: opts.CustomData,
		})
	}
	return result, nil
}
