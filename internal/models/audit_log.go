package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/thaitype/monguard-sub000/internal/delta"
)

// AuditMetadata carries either full before/after snapshots or a delta change
// map, plus the flags describing the mutation flavor. StorageMode records
// which of the two shapes was used.
type AuditMetadata struct {
	Before       interface{}             `bson:"before,omitempty" json:"before,omitempty"`
	After        interface{}             `bson:"after,omitempty" json:"after,omitempty"`
	DeltaChanges map[string]delta.Change `bson:"deltaChanges,omitempty" json:"deltaChanges,omitempty"`
	StorageMode  string                  `bson:"storageMode" json:"storageMode"`
	SoftDelete   bool                   `bson:"softDelete,omitempty" json:"softDelete,omitempty"`
	HardDelete   bool                   `bson:"hardDelete,omitempty" json:"hardDelete,omitempty"`
	CustomData   interface{}            `bson:"customData,omitempty" json:"customData,omitempty"`
}

// AuditLogEntry is one record of the audit trail. Serial is a monotonic id
// that orders entries beyond timestamp granularity.
type AuditLogEntry struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	Ref       DocumentRef        `bson:"ref" json:"ref"`
	Action    string             `bson:"action" json:"action"`
	UserID    interface{}        `bson:"userId,omitempty" json:"userId,omitempty"`
	Serial    uint64             `bson:"serial,omitempty" json:"serial,omitempty"`
	Timestamp time.Time          `bson:"timestamp" json:"timestamp"`
	Metadata  AuditMetadata      `bson:"metadata" json:"metadata"`
}
