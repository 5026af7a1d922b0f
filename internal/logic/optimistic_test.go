package logic

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/thaitype/monguard-sub000/internal/audit"
	"github.com/thaitype/monguard-sub000/internal/conf"
	"github.com/thaitype/monguard-sub000/internal/dao/fields"
	"github.com/thaitype/monguard-sub000/internal/dao/repository"
	"github.com/thaitype/monguard-sub000/internal/delta"
	"github.com/thaitype/monguard-sub000/internal/models"
)

// fakeDocStore is a tiny in-memory stand-in for one collection. It supports
// just enough filter and update syntax for the strategies: equality matches,
// nil (missing-or-null) matches, $exists, and $set/$unset/$inc updates.
type fakeDocStore struct {
	name string
	ids  []interface{}
	docs map[interface{}]models.Document

	lastUpdateOneFilter bson.M
}

func newFakeDocStore(name string) *fakeDocStore {
	return &fakeDocStore{name: name, docs: make(map[interface{}]models.Document)}
}

func (s *fakeDocStore) Name() string { return s.name }

func (s *fakeDocStore) InsertOne(_ context.Context, doc models.Document) (interface{}, error) {
	id, ok := doc[fields.FieldObjectId]
	if !ok {
		id = primitive.NewObjectID()
	}
	copied := copyDoc(doc)
	copied[fields.FieldObjectId] = id
	s.ids = append(s.ids, id)
	s.docs[id] = copied
	return id, nil
}

func (s *fakeDocStore) FindOne(_ context.Context, filter bson.M) (models.Document, error) {
	for _, id := range s.ids {
		if doc, ok := s.docs[id]; ok && matchFilter(doc, filter) {
			return copyDoc(doc), nil
		}
	}
	return nil, nil
}

func (s *fakeDocStore) Find(_ context.Context, filter bson.M, limit int64) ([]models.Document, error) {
	var out []models.Document
	for _, id := range s.ids {
		doc, ok := s.docs[id]
		if !ok || !matchFilter(doc, filter) {
			continue
		}
		out = append(out, copyDoc(doc))
		if limit > 0 && int64(len(out)) >= limit {
			break
		}
	}
	return out, nil
}

func (s *fakeDocStore) UpdateOne(_ context.Context, filter, update bson.M, _ bool) (*repository.UpdateResult, error) {
	s.lastUpdateOneFilter = filter
	for _, id := range s.ids {
		doc, ok := s.docs[id]
		if !ok || !matchFilter(doc, filter) {
			continue
		}
		applyFakeUpdate(doc, update)
		return &repository.UpdateResult{Acknowledged: true, MatchedCount: 1, ModifiedCount: 1}, nil
	}
	return &repository.UpdateResult{Acknowledged: true}, nil
}

func (s *fakeDocStore) UpdateMany(_ context.Context, filter, update bson.M) (*repository.UpdateResult, error) {
	var modified int64
	for _, id := range s.ids {
		doc, ok := s.docs[id]
		if !ok || !matchFilter(doc, filter) {
			continue
		}
		applyFakeUpdate(doc, update)
		modified++
	}
	return &repository.UpdateResult{Acknowledged: true, MatchedCount: modified, ModifiedCount: modified}, nil
}

func (s *fakeDocStore) DeleteMany(_ context.Context, filter bson.M) (int64, error) {
	var deleted int64
	remaining := s.ids[:0]
	for _, id := range s.ids {
		doc, ok := s.docs[id]
		if ok && matchFilter(doc, filter) {
			delete(s.docs, id)
			deleted++
			continue
		}
		remaining = append(remaining, id)
	}
	s.ids = remaining
	return deleted, nil
}

func (s *fakeDocStore) CountDocuments(_ context.Context, filter bson.M) (int64, error) {
	var count int64
	for _, id := range s.ids {
		if doc, ok := s.docs[id]; ok && matchFilter(doc, filter) {
			count++
		}
	}
	return count, nil
}

var _ repository.DocumentRepository = (*fakeDocStore)(nil)

func copyDoc(doc models.Document) models.Document {
	out := models.Document{}
	for k, v := range doc {
		out[k] = v
	}
	return out
}

func matchFilter(doc models.Document, filter bson.M) bool {
	for k, want := range filter {
		got, present := doc[k]
		switch w := want.(type) {
		case bson.M:
			if exists, ok := w["$exists"]; ok {
				if exists.(bool) != (present && got != nil) {
					return false
				}
				continue
			}
			return false
		case nil:
			if present && got != nil {
				return false
			}
		default:
			if !present || !valuesMatch(got, want) {
				return false
			}
		}
	}
	return true
}

func valuesMatch(got, want interface{}) bool {
	gi, gok := asInt64(got)
	wi, wok := asInt64(want)
	if gok && wok {
		return gi == wi
	}
	return got == want
}

func asInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	}
	return 0, false
}

func applyFakeUpdate(doc models.Document, update bson.M) {
	if set, ok := update["$set"].(bson.M); ok {
		for k, v := range set {
			doc[k] = v
		}
	}
	if unset, ok := update["$unset"].(bson.M); ok {
		for k := range unset {
			delete(doc, k)
		}
	}
	if inc, ok := update["$inc"].(bson.M); ok {
		for k, v := range inc {
			current, _ := asInt64(doc[k])
			delta, _ := asInt64(v)
			doc[k] = current + delta
		}
	}
}

func newTestRecorder(t *testing.T, storageMode string, repo *fakeAuditRepo) *audit.Recorder {
	t.Helper()
	cfg := &conf.AuditConfig{Enabled: true, StorageMode: storageMode, DispatchMode: "in_transaction"}
	recorder, err := audit.NewRecorder(cfg, repo, nil, delta.NewComputer(delta.DefaultOptions()), nil, zap.NewNop())
	require.NoError(t, err)
	return recorder
}

type fakeAuditRepo struct {
	entries []*models.AuditLogEntry
	err     error
}

func (f *fakeAuditRepo) Create(_ context.Context, entry *models.AuditLogEntry) error {
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, entry)
	return nil
}

func TestOptimistic_Create(t *testing.T) {
	store := newFakeDocStore("users")
	auditRepo := &fakeAuditRepo{}
	s := NewOptimisticStrategy(store, newTestRecorder(t, "full", auditRepo), zap.NewNop())

	user := &models.UserContext{UserID: "user-1"}
	doc, err := s.Create(context.Background(), models.Document{"name": "A"}, &MutateOptions{User: user})
	require.NoError(t, err)

	v, ok := models.DocumentVersion(doc)
	require.True(t, ok)
	require.Equal(t, int64(1), v)
	require.NotNil(t, doc[fields.FieldCreatedAt])
	require.NotNil(t, doc[fields.FieldUpdatedAt])
	require.Equal(t, "user-1", doc[fields.FieldCreatedBy])
	require.NotContains(t, doc, fields.FieldDeletedAt)

	require.Len(t, auditRepo.entries, 1)
	require.Equal(t, "create", auditRepo.entries[0].Action)

	// Background jobs stamp the system actor instead of a real user.
	sys, err := s.Create(context.Background(), models.Document{"name": "S"}, &MutateOptions{User: models.SystemUser})
	require.NoError(t, err)
	require.Equal(t, "system", sys[fields.FieldCreatedBy])
	require.Equal(t, "system", sys[fields.FieldUpdatedBy])

	_, err = s.Create(context.Background(), nil, nil)
	require.ErrorIs(t, err, ErrNilDocument)
}

func TestOptimistic_VersionChain(t *testing.T) {
	store := newFakeDocStore("users")
	auditRepo := &fakeAuditRepo{}
	s := NewOptimisticStrategy(store, newTestRecorder(t, "full", auditRepo), zap.NewNop())
	ctx := context.Background()

	doc, err := s.Create(ctx, models.Document{"name": "A"}, nil)
	require.NoError(t, err)
	id := models.DocumentID(doc)

	res, err := s.Update(ctx,
		bson.M{fields.FieldObjectId: id, fields.FieldVersion: int64(1)},
		bson.M{"$set": bson.M{"name": "B"}}, nil)
	require.NoError(t, err)
	require.Equal(t, int64(1), res.ModifiedCount)
	require.NotNil(t, res.Version)
	require.Equal(t, int64(2), *res.Version)
	require.Len(t, auditRepo.entries, 2)

	// A second writer reusing the stale version observes a clean miss: no
	// modification, no version, no audit entry.
	stale, err := s.Update(ctx,
		bson.M{fields.FieldObjectId: id, fields.FieldVersion: int64(1)},
		bson.M{"$set": bson.M{"name": "C"}}, nil)
	require.NoError(t, err)
	require.Zero(t, stale.ModifiedCount)
	require.Nil(t, stale.Version)
	require.Len(t, auditRepo.entries, 2)

	stored, err := store.FindOne(ctx, bson.M{fields.FieldObjectId: id})
	require.NoError(t, err)
	require.Equal(t, "B", stored["name"])
	v, _ := models.DocumentVersion(stored)
	require.Equal(t, int64(2), v)
}

func TestOptimistic_SoftDeleteAndRestore(t *testing.T) {
	store := newFakeDocStore("users")
	auditRepo := &fakeAuditRepo{}
	s := NewOptimisticStrategy(store, newTestRecorder(t, "full", auditRepo), zap.NewNop())
	ctx := context.Background()
	user := &models.UserContext{UserID: "user-1"}

	doc, err := s.Create(ctx, models.Document{"name": "A"}, &MutateOptions{User: user})
	require.NoError(t, err)
	id := models.DocumentID(doc)

	del, err := s.DeleteByID(ctx, id, &MutateOptions{User: user})
	require.NoError(t, err)
	require.Equal(t, int64(1), del.ModifiedCount)
	require.NotNil(t, del.Version)
	require.Equal(t, int64(2), *del.Version)

	stored, _ := store.FindOne(ctx, bson.M{fields.FieldObjectId: id})
	require.True(t, models.IsDeleted(stored))
	require.Equal(t, "user-1", stored[fields.FieldDeletedBy])

	// The soft-deleted document is invisible to plain updates.
	miss, err := s.Update(ctx, bson.M{"name": "A"}, bson.M{"$set": bson.M{"name": "B"}}, nil)
	require.NoError(t, err)
	require.Zero(t, miss.ModifiedCount)

	restored, err := s.Restore(ctx, bson.M{fields.FieldObjectId: id}, &MutateOptions{User: user})
	require.NoError(t, err)
	require.Equal(t, int64(1), restored.ModifiedCount)
	require.NotNil(t, restored.Version)
	require.Equal(t, int64(3), *restored.Version)

	stored, _ = store.FindOne(ctx, bson.M{fields.FieldObjectId: id})
	require.False(t, models.IsDeleted(stored))
	require.NotContains(t, stored, fields.FieldDeletedBy)

	// Restoring an alive document matches nothing.
	again, err := s.Restore(ctx, bson.M{fields.FieldObjectId: id}, nil)
	require.NoError(t, err)
	require.Zero(t, again.ModifiedCount)

	require.Len(t, auditRepo.entries, 3)
	require.Equal(t, "delete", auditRepo.entries[1].Action)
	require.True(t, auditRepo.entries[1].Metadata.SoftDelete)
	require.Equal(t, "restore", auditRepo.entries[2].Action)
}

func TestOptimistic_BroadFilterPinsOneDocument(t *testing.T) {
	store := newFakeDocStore("users")
	auditRepo := &fakeAuditRepo{}
	s := NewOptimisticStrategy(store, newTestRecorder(t, "full", auditRepo), zap.NewNop())
	ctx := context.Background()

	first, err := s.Create(ctx, models.Document{"name": "A", "group": "g"}, nil)
	require.NoError(t, err)
	_, err = s.Create(ctx, models.Document{"name": "B", "group": "g"}, nil)
	require.NoError(t, err)

	res, err := s.Update(ctx, bson.M{"group": "g"}, bson.M{"$set": bson.M{"flag": true}}, nil)
	require.NoError(t, err)
	require.Equal(t, int64(1), res.ModifiedCount)

	// The write carries the _id of the snapshotted document, so the before
	// image, the reported version and the modification all describe the same
	// document even when the filter matches several.
	firstID := models.DocumentID(first)
	require.Equal(t, firstID, store.lastUpdateOneFilter[fields.FieldObjectId])
	require.Equal(t, firstID, auditRepo.entries[2].Ref.ID)

	stored, err := store.FindOne(ctx, bson.M{"name": "B"})
	require.NoError(t, err)
	require.NotContains(t, stored, "flag")
	v, _ := models.DocumentVersion(stored)
	require.Equal(t, int64(1), v)
}

func TestOptimistic_HardDelete(t *testing.T) {
	store := newFakeDocStore("users")
	auditRepo := &fakeAuditRepo{}
	s := NewOptimisticStrategy(store, newTestRecorder(t, "full", auditRepo), zap.NewNop())
	ctx := context.Background()

	_, err := s.Create(ctx, models.Document{"name": "A", "group": "g"}, nil)
	require.NoError(t, err)
	_, err = s.Create(ctx, models.Document{"name": "B", "group": "g"}, nil)
	require.NoError(t, err)

	res, err := s.Delete(ctx, bson.M{"group": "g"}, &MutateOptions{HardDelete: true})
	require.NoError(t, err)
	require.Equal(t, int64(2), res.DeletedCount)
	require.Nil(t, res.Version)

	count, err := store.CountDocuments(ctx, bson.M{})
	require.NoError(t, err)
	require.Zero(t, count)

	// Two creates plus one hard-delete entry per removed document.
	require.Len(t, auditRepo.entries, 4)
	require.True(t, auditRepo.entries[2].Metadata.HardDelete)
	require.True(t, auditRepo.entries[3].Metadata.HardDelete)
	require.NotNil(t, auditRepo.entries[2].Metadata.Before)
}

func TestOptimistic_UpdateMany(t *testing.T) {
	store := newFakeDocStore("users")
	auditRepo := &fakeAuditRepo{}
	s := NewOptimisticStrategy(store, newTestRecorder(t, "full", auditRepo), zap.NewNop())
	ctx := context.Background()

	_, err := s.Create(ctx, models.Document{"name": "A", "group": "g"}, nil)
	require.NoError(t, err)
	_, err = s.Create(ctx, models.Document{"name": "B", "group": "g"}, nil)
	require.NoError(t, err)

	res, err := s.UpdateMany(ctx, bson.M{"group": "g"}, bson.M{"$set": bson.M{"flag": true}}, nil)
	require.NoError(t, err)
	require.Equal(t, int64(2), res.ModifiedCount)
	require.Nil(t, res.Version)

	// One entry per touched document, on top of the two creates.
	require.Len(t, auditRepo.entries, 4)
}

func TestOptimistic_DeltaSuppressionOnNoopUpdate(t *testing.T) {
	store := newFakeDocStore("users")
	auditRepo := &fakeAuditRepo{}
	s := NewOptimisticStrategy(store, newTestRecorder(t, "delta", auditRepo), zap.NewNop())
	ctx := context.Background()

	doc, err := s.Create(ctx, models.Document{"name": "A"}, nil)
	require.NoError(t, err)
	require.Len(t, auditRepo.entries, 1)

	// The write only moves infrastructure fields (updatedAt, __v), so the
	// delta comes out empty and no entry is added.
	res, err := s.UpdateByID(ctx, models.DocumentID(doc), bson.M{"$set": bson.M{"name": "A"}}, nil)
	require.NoError(t, err)
	require.Equal(t, int64(1), res.ModifiedCount)
	require.Len(t, auditRepo.entries, 1)
}

func TestOptimistic_SkipAudit(t *testing.T) {
	store := newFakeDocStore("users")
	auditRepo := &fakeAuditRepo{}
	s := NewOptimisticStrategy(store, newTestRecorder(t, "full", auditRepo), zap.NewNop())

	_, err := s.Create(context.Background(), models.Document{"name": "A"}, &MutateOptions{SkipAudit: true})
	require.NoError(t, err)
	require.Empty(t, auditRepo.entries)
}
