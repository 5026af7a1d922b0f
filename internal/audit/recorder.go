package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/thaitype/monguard-sub000/internal/conf"
	"github.com/thaitype/monguard-sub000/internal/constants"
	"github.com/thaitype/monguard-sub000/internal/dao/repository"
	"github.com/thaitype/monguard-sub000/internal/delta"
	"github.com/thaitype/monguard-sub000/internal/models"
	"github.com/thaitype/monguard-sub000/pkg/snowflake"
)

var (
	// ErrOutboxRequired is returned at construction when outbox dispatch is
	// configured with fail_on_error but no outbox repository is wired.
	ErrOutboxRequired = errors.New("outbox dispatch requested but no outbox repository configured")
)

// Record describes one mutation to be audited. Before and After may each be
// nil: a create has only After, a hard delete only Before.
type Record struct {
	Ref         models.DocumentRef
	Action      constants.Action
	Before      models.Document
	After       models.Document
	User        *models.UserContext
	SoftDelete  bool
	HardDelete  bool
	CustomData  interface{}
	StorageMode constants.StorageMode // zero value falls back to the recorder default
}

// Recorder converts before/after snapshot pairs into audit log entries and
// delivers them, either directly (sharing the caller's unit of work when the
// context carries a session) or through the outbox queue.
type Recorder struct {
	auditRepo         repository.AuditLogRepository
	outboxRepo        repository.OutboxRepository
	computer          *delta.Computer
	idGenerator       *snowflake.Generator
	enabled           bool
	storageMode       constants.StorageMode
	dispatchMode      constants.DispatchMode
	failOnError       bool
	logFailedAttempts bool
	logger            *zap.Logger
}

// NewRecorder validates the audit configuration and builds a Recorder.
// Requesting outbox dispatch without an outbox repository is a configuration
// error under fail_on_error, and otherwise degrades to direct writes.
func NewRecorder(
	cfg *conf.AuditConfig,
	auditRepo repository.AuditLogRepository,
	outboxRepo repository.OutboxRepository,
	computer *delta.Computer,
	idGenerator *snowflake.Generator,
	logger *zap.Logger,
) (*Recorder, error) {
	namedLogger := logger.Named("AuditRecorder")

	storageMode := constants.ParseStorageMode(cfg.StorageMode)
	if storageMode == constants.StorageModeUnknown {
		storageMode = constants.StorageModeFull
	}
	dispatchMode := constants.ParseDispatchMode(cfg.DispatchMode)
	if dispatchMode == constants.DispatchModeUnknown {
		dispatchMode = constants.DispatchModeInTransaction
	}

	if dispatchMode == constants.DispatchModeOutbox && outboxRepo == nil {
		if cfg.FailOnError {
			return nil, ErrOutboxRequired
		}
		namedLogger.Warn("Outbox dispatch configured without an outbox repository, falling back to direct writes")
		dispatchMode = constants.DispatchModeInTransaction
	}

	return &Recorder{
		auditRepo:         auditRepo,
		outboxRepo:        outboxRepo,
		computer:          computer,
		idGenerator:       idGenerator,
		enabled:           cfg.Enabled,
		storageMode:       storageMode,
		dispatchMode:      dispatchMode,
		failOnError:       cfg.FailOnError,
		logFailedAttempts: cfg.LogFailedAttempts,
		logger:            namedLogger,
	}, nil
}

// Enabled reports whether auditing is switched on at all. Strategies use it
// to skip the extra snapshot reads auditing needs.
func (r *Recorder) Enabled() bool {
	return r.enabled
}

// FailOnError reports whether audit failures should escalate. Only the
// transactional strategy acts on it; optimistic callers always swallow.
func (r *Recorder) FailOnError() bool {
	return r.failOnError
}

// Record builds and delivers one audit entry. In delta mode an update whose
// change map comes out empty writes nothing at all: an update that only
// touched blacklisted infrastructure fields is a no-op for the trail.
// The returned error is already filtered by the fail_on_error policy; a nil
// return may still mean the write was swallowed.
func (r *Recorder) Record(ctx context.Context, rec *Record) error {
	if !r.enabled {
		return nil
	}

	entry, ok := r.buildEntry(rec)
	if !ok {
		return nil
	}

	if err := r.dispatch(ctx, rec, entry); err != nil {
		if r.logFailedAttempts {
			r.logger.Error("Failed to record audit entry",
				zap.Error(err),
				zap.String("action", entry.Action),
				zap.String("collection", rec.Ref.Collection))
		}
		if r.failOnError {
			return err
		}
	}
	return nil
}

func (r *Recorder) buildEntry(rec *Record) (*models.AuditLogEntry, bool) {
	mode := rec.StorageMode
	if mode == constants.StorageModeUnknown {
		mode = r.storageMode
	}
	// Creates and deletes always keep a complete snapshot; a delta against
	// nothing carries no information.
	if rec.Action == constants.ActionCreate || rec.Action == constants.ActionDelete {
		mode = constants.StorageModeFull
	}

	meta := models.AuditMetadata{
		StorageMode: mode.String(),
		SoftDelete:  rec.SoftDelete,
		HardDelete:  rec.HardDelete,
		CustomData:  rec.CustomData,
	}

	switch mode {
	case constants.StorageModeDelta:
		result := r.computer.Compute(rec.Before, rec.After)
		if !result.HasChanges {
			return nil, false
		}
		meta.DeltaChanges = result.Changes
	default:
		if rec.Before != nil {
			meta.Before = rec.Before
		}
		if rec.After != nil {
			meta.After = rec.After
		}
	}

	entry := &models.AuditLogEntry{
		Ref:       rec.Ref,
		Action:    rec.Action.String(),
		Timestamp: time.Now(),
		Metadata:  meta,
	}
	if rec.User != nil {
		entry.UserID = rec.User.UserID
	}
	if r.idGenerator != nil {
		if serial, err := r.idGenerator.GetID(); err == nil {
			entry.Serial = serial
		}
	}
	return entry, true
}

func (r *Recorder) dispatch(ctx context.Context, rec *Record, entry *models.AuditLogEntry) error {
	if r.dispatchMode == constants.DispatchModeOutbox {
		event := &models.OutboxEvent{
			ID:             uuid.NewString(),
			Action:         entry.Action,
			CollectionName: rec.Ref.Collection,
			DocumentID:     rec.Ref.ID,
			UserContext:    rec.User,
			Metadata:       metadataMap(entry.Metadata),
			Timestamp:      entry.Timestamp,
		}
		return r.outboxRepo.Enqueue(ctx, event)
	}
	return r.auditRepo.Create(ctx, entry)
}

// metadataMap flattens audit metadata into the loose map carried by outbox
// events, keeping only the fields that are set.
func metadataMap(meta models.AuditMetadata) map[string]interface{} {
	out := map[string]interface{}{"storageMode": meta.StorageMode}
	if meta.Before != nil {
		out["before"] = meta.Before
	}
	if meta.After != nil {
		out["after"] = meta.After
	}
	if len(meta.DeltaChanges) > 0 {
		out["deltaChanges"] = meta.DeltaChanges
	}
	if meta.SoftDelete {
		out["softDelete"] = true
	}
	if meta.HardDelete {
		out["hardDelete"] = true
	}
	if meta.CustomData != nil {
		out["customData"] = meta.CustomData
	}
	return out
}
