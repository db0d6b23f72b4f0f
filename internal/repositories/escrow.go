package repositories

import (
	"context"
	"fmt"
	"time"

	"campusmarket/internal/models"

	"gorm.io/gorm"
)

// EscrowUpdate carries the columns written when an escrow account settles.
type EscrowUpdate struct {
	To                models.EscrowStatus
	ReleasedAt        *time.Time
	RefundedAt        *time.Time
	ReleasedBy        string
	ConfirmationProof string
}

type EscrowRepository interface {
	Create(ctx context.Context, escrow *models.EscrowAccount) error
	FindByID(ctx context.Context, id string) (*models.EscrowAccount, error)
	FindByTransactionID(ctx context.Context, transactionID string) (*models.EscrowAccount, error)
	CompareAndSwapStatus(ctx context.Context, id string, from models.EscrowStatus, upd EscrowUpdate) error
}

type escrowRepository struct {
	db *gorm.DB
}

func NewEscrowRepository(db *gorm.DB) EscrowRepository {
	return &escrowRepository{db: db}
}

func (r *escrowRepository) Create(ctx context.Context, escrow *models.EscrowAccount) error {
	return translate(r.db.WithContext(ctx).Create(escrow).Error)
}

func (r *escrowRepository) FindByID(ctx context.Context, id string) (*models.EscrowAccount, error) {
	var e models.EscrowAccount
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&e).Error; err != nil {
		return nil, translate(err)
	}
	return &e, nil
}

func (r *escrowRepository) FindByTransactionID(ctx context.Context, transactionID string) (*models.EscrowAccount, error) {
	var e models.EscrowAccount
	if err := r.db.WithContext(ctx).Where("transaction_id = ?", transactionID).First(&e).Error; err != nil {
		return nil, translate(err)
	}
	return &e, nil
}

func (r *escrowRepository) CompareAndSwapStatus(ctx context.Context, id string, from models.EscrowStatus, upd EscrowUpdate) error {
	if !models.CanTransitionEscrow(from, upd.To) {
		return fmt.Errorf("escrow cannot move from %s to %s", from, upd.To)
	}

	res := r.db.WithContext(ctx).
		Model(&models.EscrowAccount{}).
		Where("id = ? AND status = ?", id, from).
		Updates(models.EscrowAccount{
			Status:            upd.To,
			ReleasedAt:        upd.ReleasedAt,
			RefundedAt:        upd.RefundedAt,
			ReleasedBy:        upd.ReleasedBy,
			ConfirmationProof: upd.ConfirmationProof,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleState
	}
	return nil
}
