package logic

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/thaitype/monguard-sub000/internal/audit"
	"github.com/thaitype/monguard-sub000/internal/dao/fields"
	"github.com/thaitype/monguard-sub000/internal/dao/repository"
	"github.com/thaitype/monguard-sub000/internal/models"
)

// strategyBase carries the pieces both strategies share: the collection
// repository, the audit recorder and the helpers that stamp auto-managed
// fields onto filters and updates.
type strategyBase struct {
	repo     repository.DocumentRepository
	recorder *audit.Recorder
	logger   *zap.Logger
}

func (b *strategyBase) shouldAudit(opts *MutateOptions) bool {
	return b.recorder != nil && b.recorder.Enabled() && !opts.SkipAudit
}

func (b *strategyBase) ref(id interface{}) models.DocumentRef {
	return models.DocumentRef{Collection: b.repo.Name(), ID: id}
}

// recordBestEffort delivers an audit entry without letting a delivery failure
// reach the caller. Outside a transaction a lost audit entry must never undo
// a mutation that already committed.
func (b *strategyBase) recordBestEffort(ctx context.Context, rec *audit.Record) {
	if err := b.recorder.Record(ctx, rec); err != nil {
		b.logger.Warn("Audit entry dropped", zap.Error(err), zap.String("action", rec.Action.String()))
	}
}

func resultFromUpdate(res *repository.UpdateResult) *MutationResult {
	return &MutationResult{
		Acknowledged:  res.Acknowledged,
		MatchedCount:  res.MatchedCount,
		ModifiedCount: res.ModifiedCount,
		UpsertedCount: res.UpsertedCount,
		UpsertedID:    res.UpsertedID,
	}
}

// stampUpdate copies the caller's update and layers the auto-managed fields
// on top: updatedAt/updatedBy under $set and the __v increment under $inc.
// The caller's own $set/$inc entries are preserved.
func stampUpdate(update bson.M, user *models.UserContext, now time.Time) bson.M {
	out := bson.M{}
	for k, v := range update {
		out[k] = v
	}

	set := bson.M{}
	if existing, ok := out["$set"].(bson.M); ok {
		for k, v := range existing {
			set[k] = v
		}
	}
	set[fields.FieldUpdatedAt] = now
	if user != nil {
		set[fields.FieldUpdatedBy] = user.UserID
	}
	out["$set"] = set

	inc := bson.M{}
	if existing, ok := out["$inc"].(bson.M); ok {
		for k, v := range existing {
			inc[k] = v
		}
	}
	inc[fields.FieldVersion] = 1
	out["$inc"] = inc

	return out
}

// mergeAliveFilter adds the soft-delete exclusion to a caller filter. Callers
// that already constrain deletedAt or __v keep their filter untouched, so a
// version-chaining caller stays in full control of the match condition.
func mergeAliveFilter(filter bson.M) bson.M {
	if _, ok := filter[fields.FieldDeletedAt]; ok {
		return filter
	}
	if _, ok := filter[fields.FieldVersion]; ok {
		return filter
	}
	out := bson.M{}
	for k, v := range filter {
		out[k] = v
	}
	out[fields.FieldDeletedAt] = nil
	return out
}

// stampNewDocument fills the auto-managed fields of a document about to be
// inserted. The version counter starts at 1.
func stampNewDocument(doc models.Document, user *models.UserContext, now time.Time) models.Document {
	out := models.Document{}
	for k, v := range doc {
		out[k] = v
	}
	out[fields.FieldCreatedAt] = now
	out[fields.FieldUpdatedAt] = now
	out[fields.FieldVersion] = int64(1)
	if user != nil {
		out[fields.FieldCreatedBy] = user.UserID
		out[fields.FieldUpdatedBy] = user.UserID
	}
	return out
}
