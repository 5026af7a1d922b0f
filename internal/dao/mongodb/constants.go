package mongodb

const (
	CollectionAuditLogs         = "audit_logs"
	CollectionOutbox            = "audit_outbox"
	CollectionOutboxDeadLetters = "audit_outbox_dead_letters"
)
