package fields

// Guarded documents keep the wire format of the collections they came from
// (camelCase plus the mongoose-style "__v" counter), so these names are part
// of the on-disk contract and must not be renamed.
const (
	FieldObjectId  = "_id"
	FieldCreatedAt = "createdAt"
	FieldCreatedBy = "createdBy"
	FieldUpdatedAt = "updatedAt"
	FieldUpdatedBy = "updatedBy"
	FieldDeletedAt = "deletedAt"
	FieldDeletedBy = "deletedBy"
	FieldVersion   = "__v"

	FieldOutboxTimestamp       = "timestamp"
	FieldOutboxRetryCount      = "retryCount"
	FieldOutboxLastProcessedAt = "lastProcessedAt"
)
