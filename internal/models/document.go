package models

import (
	"go.mongodb.org/mongo-driver/bson"

	"github.com/thaitype/monguard-sub000/internal/dao/fields"
)

// Document is an arbitrary record in a guarded collection. The mutation layer
// only interprets the auto-managed fields (_id, createdAt, updatedAt,
// deletedAt, the actor fields and __v); everything else passes through
// untouched.
type Document = bson.M

// DocumentRef points at a single document in a named collection.
type DocumentRef struct {
	Collection string      `json:"collection" bson:"collection"`
	ID         interface{} `json:"id" bson:"id"`
}

// DocumentID returns the _id of a document, or nil if it has none.
func DocumentID(doc Document) interface{} {
	if doc == nil {
		return nil
	}
	return doc[fields.FieldObjectId]
}

// DocumentVersion extracts the optimistic-lock counter from a document.
// Drivers decode __v as int32 or int64 depending on its magnitude.
func DocumentVersion(doc Document) (int64, bool) {
	if doc == nil {
		return 0, false
	}
	switch v := doc[fields.FieldVersion].(type) {
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	}
	return 0, false
}

// IsDeleted reports whether a document carries a soft-delete marker.
func IsDeleted(doc Document) bool {
	if doc == nil {
		return false
	}
	v, ok := doc[fields.FieldDeletedAt]
	return ok && v != nil
}
