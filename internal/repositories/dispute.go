package repositories

import (
	"context"
	"time"

	"campusmarket/internal/models"

	"gorm.io/gorm"
)

type DisputeRepository interface {
	Create(ctx context.Context, dispute *models.Dispute) error
	FindByID(ctx context.Context, id string) (*models.Dispute, error)
	FindOpenByTransaction(ctx context.Context, transactionID string) (*models.Dispute, error)
	ListByTransaction(ctx context.Context, transactionID string) ([]models.Dispute, error)
	ListOpen(ctx context.Context, limit, offset int) ([]models.Dispute, int64, error)
	// ResolveOpen closes the open dispute on a transaction, if any, and
	// returns how many rows it touched.
	ResolveOpen(ctx context.Context, transactionID, resolvedBy string, at time.Time) (int64, error)
}

type disputeRepository struct {
	db *gorm.DB
}

func NewDisputeRepository(db *gorm.DB) DisputeRepository {
	return &disputeRepository{db: db}
}

func (r *disputeRepository) Create(ctx context.Context, dispute *models.Dispute) error {
	return translate(r.db.WithContext(ctx).Create(dispute).Error)
}

func (r *disputeRepository) FindByID(ctx context.Context, id string) (*models.Dispute, error) {
	var d models.Dispute
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&d).Error; err != nil {
		return nil, translate(err)
	}
	return &d, nil
}

func (r *disputeRepository) FindOpenByTransaction(ctx context.Context, transactionID string) (*models.Dispute, error) {
	var d models.Dispute
	err := r.db.WithContext(ctx).
		Where("transaction_id = ? AND status = ?", transactionID, models.DisputeOpen).
		First(&d).Error
	if err != nil {
		return nil, translate(err)
	}
	return &d, nil
}

func (r *disputeRepository) ListByTransaction(ctx context.Context, transactionID string) ([]models.Dispute, error) {
	var disputes []models.Dispute
	err := r.db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		Order("opened_at ASC").
		Find(&disputes).Error
	return disputes, err
}

func (r *disputeRepository) ListOpen(ctx context.Context, limit, offset int) ([]models.Dispute, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.Dispute{}).Where("status = ?", models.DisputeOpen)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var disputes []models.Dispute
	err := q.Order("opened_at ASC").Limit(limit).Offset(offset).Find(&disputes).Error
	return disputes, total, err
}

func (r *disputeRepository) ResolveOpen(ctx context.Context, transactionID, resolvedBy string, at time.Time) (int64, error) {
	resolvedAt := at.UTC()
	res := r.db.WithContext(ctx).
		Model(&models.Dispute{}).
		Where("transaction_id = ? AND status = ?", transactionID, models.DisputeOpen).
		Updates(models.Dispute{
			Status:     models.DisputeResolved,
			ResolvedBy: resolvedBy,
			ResolvedAt: &resolvedAt,
		})
	return res.RowsAffected, res.Error
}
