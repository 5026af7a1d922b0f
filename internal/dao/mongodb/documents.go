package mongodb

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/thaitype/monguard-sub000/internal/dao/fields"
	"github.com/thaitype/monguard-sub000/internal/dao/repository"
	"github.com/thaitype/monguard-sub000/internal/models"
)

func NewDocumentsDAO(db *mongo.Database, collection string, logger *zap.Logger) *DocumentsDAO {
	return &DocumentsDAO{
		collection: db.Collection(collection),
		logger:     logger.Named("DocumentsDAO").With(zap.String("collection", collection)),
	}
}

// DocumentsDAO exposes the single-collection store surface the mutation
// strategies depend on. It adds no behavior of its own; conflict detection
// and auditing live above it.
type DocumentsDAO struct {
	collection *mongo.Collection
	logger     *zap.Logger
}

func (d *DocumentsDAO) Name() string {
	return d.collection.Name()
}

func (d *DocumentsDAO) InsertOne(ctx context.Context, doc models.Document) (interface{}, error) {
	res, err := d.collection.InsertOne(ctx, doc)
	if err != nil {
		d.logger.Error("InsertOne failed", zap.Error(err))
		return nil, err
	}
	return res.InsertedID, nil
}

func (d *DocumentsDAO) FindOne(ctx context.Context, filter bson.M) (models.Document, error) {
	var doc models.Document
	err := d.collection.FindOne(ctx, filter).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		d.logger.Error("FindOne failed", zap.Error(err))
		return nil, err
	}
	return doc, nil
}

func (d *DocumentsDAO) Find(ctx context.Context, filter bson.M, limit int64) ([]models.Document, error) {
	findOptions := options.Find().SetSort(bson.D{{Key: fields.FieldObjectId, Value: 1}})
	if limit > 0 {
		findOptions.SetLimit(limit)
	}

	cursor, err := d.collection.Find(ctx, filter, findOptions)
	if err != nil {
		d.logger.Error("Find failed", zap.Error(err))
		return nil, err
	}
	defer cursor.Close(ctx)

	docs := make([]models.Document, 0)
	if err = cursor.All(ctx, &docs); err != nil {
		d.logger.Error("Find: cursor.All failed", zap.Error(err))
		return nil, err
	}
	return docs, nil
}

func (d *DocumentsDAO) UpdateOne(ctx context.Context, filter, update bson.M, upsert bool) (*repository.UpdateResult, error) {
	res, err := d.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(upsert))
	if err != nil {
		d.logger.Error("UpdateOne failed", zap.Error(err))
		return nil, err
	}
	return &repository.UpdateResult{
		Acknowledged:  true,
		MatchedCount:  res.MatchedCount,
		ModifiedCount: res.ModifiedCount,
		UpsertedCount: res.UpsertedCount,
		UpsertedID:    res.UpsertedID,
	}, nil
}

func (d *DocumentsDAO) UpdateMany(ctx context.Context, filter, update bson.M) (*repository.UpdateResult, error) {
	res, err := d.collection.UpdateMany(ctx, filter, update)
	if err != nil {
		d.logger.Error("UpdateMany failed", zap.Error(err))
		return nil, err
	}
	return &repository.UpdateResult{
		Acknowledged:  true,
		MatchedCount:  res.MatchedCount,
		ModifiedCount: res.ModifiedCount,
		UpsertedCount: res.UpsertedCount,
		UpsertedID:    res.UpsertedID,
	}, nil
}

func (d *DocumentsDAO) DeleteMany(ctx context.Context, filter bson.M) (int64, error) {
	res, err := d.collection.DeleteMany(ctx, filter)
	if err != nil {
		d.logger.Error("DeleteMany failed", zap.Error(err))
		return 0, err
	}
	return res.DeletedCount, nil
}

func (d *DocumentsDAO) CountDocuments(ctx context.Context, filter bson.M) (int64, error) {
	count, err := d.collection.CountDocuments(ctx, filter)
	if err != nil {
		d.logger.Error("CountDocuments failed", zap.Error(err))
		return 0, err
	}
	return count, nil
}

var _ repository.DocumentRepository = (*DocumentsDAO)(nil)
