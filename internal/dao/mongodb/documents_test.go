package mongodb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/thaitype/monguard-sub000/internal/dao/fields"
	"github.com/thaitype/monguard-sub000/internal/models"
)

func setupDocumentsDAOIntegration(t *testing.T) *DocumentsDAO {
	t.Helper()
	db := setupTestDatabase(t)
	return NewDocumentsDAO(db, "users", zap.NewNop())
}

func TestDocumentsDAO_FindOne(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	dao := setupDocumentsDAOIntegration(t)
	testCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	t.Run("absence is nil not error", func(t *testing.T) {
		doc, err := dao.FindOne(testCtx, bson.M{"name": "nobody"})
		require.NoError(t, err)
		require.Nil(t, doc)
	})

	t.Run("round trip preserves managed fields", func(t *testing.T) {
		id, err := dao.InsertOne(testCtx, models.Document{
			"name":                "alpha",
			fields.FieldVersion:   int64(1),
			fields.FieldCreatedAt: time.Now().Truncate(time.Millisecond),
		})
		require.NoError(t, err)
		require.NotNil(t, id)

		doc, err := dao.FindOne(testCtx, bson.M{fields.FieldObjectId: id})
		require.NoError(t, err)
		require.NotNil(t, doc)
		require.Equal(t, "alpha", doc["name"])

		v, ok := models.DocumentVersion(doc)
		require.True(t, ok)
		require.Equal(t, int64(1), v)
	})
}

func TestDocumentsDAO_UpdateOneVersionFilter(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	dao := setupDocumentsDAOIntegration(t)
	testCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	id, err := dao.InsertOne(testCtx, models.Document{"name": "alpha", fields.FieldVersion: int64(1)})
	require.NoError(t, err)

	update := bson.M{
		"$set": bson.M{"name": "beta"},
		"$inc": bson.M{fields.FieldVersion: 1},
	}

	res, err := dao.UpdateOne(testCtx, bson.M{fields.FieldObjectId: id, fields.FieldVersion: int64(1)}, update, false)
	require.NoError(t, err)
	require.Equal(t, int64(1), res.ModifiedCount)

	// The same version token matches nothing the second time.
	res, err = dao.UpdateOne(testCtx, bson.M{fields.FieldObjectId: id, fields.FieldVersion: int64(1)}, update, false)
	require.NoError(t, err)
	require.Zero(t, res.ModifiedCount)

	doc, err := dao.FindOne(testCtx, bson.M{fields.FieldObjectId: id})
	require.NoError(t, err)
	require.Equal(t, "beta", doc["name"])
	v, _ := models.DocumentVersion(doc)
	require.Equal(t, int64(2), v)
}

func TestDocumentsDAO_UpdateManyAndDelete(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	dao := setupDocumentsDAOIntegration(t)
	testCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, name := range []string{"a", "b", "c"} {
		_, err := dao.InsertOne(testCtx, models.Document{"name": name, "group": "g"})
		require.NoError(t, err)
	}

	res, err := dao.UpdateMany(testCtx, bson.M{"group": "g"}, bson.M{"$set": bson.M{"flag": true}})
	require.NoError(t, err)
	require.Equal(t, int64(3), res.ModifiedCount)

	count, err := dao.CountDocuments(testCtx, bson.M{"flag": true})
	require.NoError(t, err)
	require.Equal(t, int64(3), count)

	deleted, err := dao.DeleteMany(testCtx, bson.M{"name": bson.M{"$in": []string{"a", "b"}}})
	require.NoError(t, err)
	require.Equal(t, int64(2), deleted)

	docs, err := dao.Find(testCtx, bson.M{"group": "g"}, 0)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, "c", docs[0]["name"])
}
