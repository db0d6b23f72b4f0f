package repositories

import (
	"context"

	"campusmarket/internal/models"

	"gorm.io/gorm"
)

type PayoutRepository interface {
	CreateBatch(ctx context.Context, payouts []models.PayoutRecord) error
	ListByTransaction(ctx context.Context, transactionID string) ([]models.PayoutRecord, error)
	ListByRecipient(ctx context.Context, recipient string, limit, offset int) ([]models.PayoutRecord, error)
}

type payoutRepository struct {
	db *gorm.DB
}

func NewPayoutRepository(db *gorm.DB) PayoutRepository {
	return &payoutRepository{db: db}
}

func (r *payoutRepository) CreateBatch(ctx context.Context, payouts []models.PayoutRecord) error {
	if len(payouts) == 0 {
		return nil
	}
	return translate(r.db.WithContext(ctx).Create(&payouts).Error)
}

func (r *payoutRepository) ListByTransaction(ctx context.Context, transactionID string) ([]models.PayoutRecord, error) {
	var payouts []models.PayoutRecord
	err := r.db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		Order("type ASC").
		Find(&payouts).Error
	return payouts, err
}

func (r *payoutRepository) ListByRecipient(ctx context.Context, recipient string, limit, offset int) ([]models.PayoutRecord, error) {
	var payouts []models.PayoutRecord
	err := r.db.WithContext(ctx).
		Where("recipient = ?", recipient).
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&payouts).Error
	return payouts, err
}
