package repositories

import (
	"context"

	"campusmarket/internal/models"

	"gorm.io/gorm"
)

// AuditRepository only appends and reads. There is no update or delete.
type AuditRepository interface {
	Create(ctx context.Context, entry *models.AuditEntry) error
	ListByPerformer(ctx context.Context, performedBy string, limit int) ([]models.AuditEntry, error)
	ListByEntity(ctx context.Context, entityType, entityID string) ([]models.AuditEntry, error)
	// ListByTransaction returns the entries of a transaction together with
	// those filed under its escrow account and disputes.
	ListByTransaction(ctx context.Context, txID string) ([]models.AuditEntry, error)
	// ListByOperators returns entries performed by any operator or by one of
	// the extra actor ids (e.g. the system identity).
	ListByOperators(ctx context.Context, extraActors []string, limit int) ([]models.AuditEntry, error)
}

type auditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Create(ctx context.Context, entry *models.AuditEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *auditRepository) ListByPerformer(ctx context.Context, performedBy string, limit int) ([]models.AuditEntry, error) {
	var entries []models.AuditEntry
	err := r.db.WithContext(ctx).
		Where("performed_by = ?", performedBy).
		Order("timestamp DESC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

func (r *auditRepository) ListByEntity(ctx context.Context, entityType, entityID string) ([]models.AuditEntry, error) {
	var entries []models.AuditEntry
	err := r.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("timestamp ASC").
		Find(&entries).Error
	return entries, err
}

func (r *auditRepository) ListByTransaction(ctx context.Context, txID string) ([]models.AuditEntry, error) {
	escrows := r.db.Model(&models.EscrowAccount{}).Select("id").Where("transaction_id = ?", txID)
	disputes := r.db.Model(&models.Dispute{}).Select("id").Where("transaction_id = ?", txID)

	var entries []models.AuditEntry
	err := r.db.WithContext(ctx).
		Where("(entity_type = ? AND entity_id = ?) OR (entity_type = ? AND entity_id IN (?)) OR (entity_type = ? AND entity_id IN (?))",
			models.EntityTransaction, txID,
			models.EntityEscrow, escrows,
			models.EntityDispute, disputes).
		Order("timestamp ASC").
		Find(&entries).Error
	return entries, err
}

func (r *auditRepository) ListByOperators(ctx context.Context, extraActors []string, limit int) ([]models.AuditEntry, error) {
	operators := r.db.Model(&models.Operator{}).Select("id")

	q := r.db.WithContext(ctx).Where("performed_by IN (?)", operators)
	if len(extraActors) > 0 {
		q = q.Or("performed_by IN ?", extraActors)
	}

	var entries []models.AuditEntry
	err := q.Order("timestamp DESC").Limit(limit).Find(&entries).Error
	return entries, err
}
