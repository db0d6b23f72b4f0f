package audit

import (
	"context"
	"log/slog"
	"time"

	"campusmarket/internal/metrics"
	"campusmarket/internal/models"
	"campusmarket/internal/repositories"

	"gorm.io/gorm"
)

const savepointName = "audit_entry"

// Entry is one action to record.
type Entry struct {
	Action      models.AuditAction
	EntityType  string
	EntityID    string
	PerformedBy string
	Reason      string
	Changes     models.JSON
	IPAddress   string
	UserAgent   string
}

// Recorder writes audit entries.
type Recorder struct {
	db      *gorm.DB
	logger  *slog.Logger
	metrics metrics.Collector
	now     func() time.Time
}

func NewRecorder(db *gorm.DB, logger *slog.Logger, collector metrics.Collector) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	if collector == nil {
		collector = metrics.Noop{}
	}
	return &Recorder{
		db:      db,
		logger:  logger,
		metrics: collector,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Record appends an entry outside any caller transaction.
func (r *Recorder) Record(ctx context.Context, e Entry) {
	e = withRequestMeta(ctx, e)
	if err := repositories.NewAuditRepository(r.db).Create(ctx, r.build(e)); err != nil {
		r.fail(ctx, e, err)
	}
}

// RecordTx appends an entry inside the caller's database transaction. The
// insert runs under a savepoint so a failure rolls back only the audit row.
func (r *Recorder) RecordTx(ctx context.Context, tx *gorm.DB, e Entry) {
	e = withRequestMeta(ctx, e)

	if err := tx.SavePoint(savepointName).Error; err != nil {
		r.fail(ctx, e, err)
		return
	}
	if err := repositories.NewAuditRepository(tx).Create(ctx, r.build(e)); err != nil {
		if rbErr := tx.RollbackTo(savepointName).Error; rbErr != nil {
			r.logger.ErrorContext(ctx, "audit savepoint rollback failed", "error", rbErr)
		}
		r.fail(ctx, e, err)
	}
}

func (r *Recorder) build(e Entry) *models.AuditEntry {
	return &models.AuditEntry{
		Action:      e.Action,
		EntityType:  e.EntityType,
		EntityID:    e.EntityID,
		PerformedBy: e.PerformedBy,
		Reason:      e.Reason,
		Changes:     e.Changes,
		IPAddress:   e.IPAddress,
		UserAgent:   e.UserAgent,
		Timestamp:   r.now(),
	}
}

func (r *Recorder) fail(ctx context.Context, e Entry, err error) {
	r.metrics.RecordAuditWriteFailure(string(e.Action))
	r.logger.ErrorContext(ctx, "audit write failed",
		"action", e.Action,
		"entity_type", e.EntityType,
		"entity_id", e.EntityID,
		"performed_by", e.PerformedBy,
		"error", err,
	)
}
