package repositories

import (
	"context"
	"time"

	apperrors "campusmarket/internal/errors"
	"campusmarket/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// StatusUpdate lists every column a status change may touch. Zero values are
// left untouched.
type StatusUpdate struct {
	To               models.Status
	CompletedAt      *time.Time
	DisputeReason    string
	PaymentReference string
}

// HistoryRole narrows a user's history to one side of the trade.
type HistoryRole string

const (
	HistoryAll     HistoryRole = "all"
	HistoryBuying  HistoryRole = "buying"
	HistorySelling HistoryRole = "selling"
)

type TransactionRepository interface {
	Create(ctx context.Context, tx *models.Transaction) error
	FindByID(ctx context.Context, id string) (*models.Transaction, error)
	// CompareAndSwapStatus moves the row to upd.To only if its current status
	// is one of from. Every pair is checked against the transition table first.
	CompareAndSwapStatus(ctx context.Context, id string, from []models.Status, upd StatusUpdate) error
	ListByUser(ctx context.Context, userID string, role HistoryRole, limit, offset int) ([]models.Transaction, int64, error)
	// ListDueForRelease skips transactions that already have an
	// escrow_integrity_failure audit entry.
	ListDueForRelease(ctx context.Context, now time.Time, limit int) ([]models.Transaction, error)
	SumAdminFees(ctx context.Context, from, to time.Time) (decimal.Decimal, int64, error)
}

type transactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) TransactionRepository {
	return &transactionRepository{db: db}
}

func (r *transactionRepository) Create(ctx context.Context, tx *models.Transaction) error {
	return translate(r.db.WithContext(ctx).Create(tx).Error)
}

func (r *transactionRepository) FindByID(ctx context.Context, id string) (*models.Transaction, error) {
	var tx models.Transaction
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&tx).Error; err != nil {
		return nil, translate(err)
	}
	return &tx, nil
}

func (r *transactionRepository) CompareAndSwapStatus(ctx context.Context, id string, from []models.Status, upd StatusUpdate) error {
	for _, f := range from {
		if !models.CanTransition(f, upd.To) {
			return apperrors.InvalidTransition(string(f), string(upd.To))
		}
	}

	res := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(models.Transaction{
			Status:           upd.To,
			CompletedAt:      upd.CompletedAt,
			DisputeReason:    upd.DisputeReason,
			PaymentReference: upd.PaymentReference,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleState
	}
	return nil
}

func (r *transactionRepository) ListByUser(ctx context.Context, userID string, role HistoryRole, limit, offset int) ([]models.Transaction, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.Transaction{})
	switch role {
	case HistoryBuying:
		q = q.Where("buyer_id = ?", userID)
	case HistorySelling:
		q = q.Where("seller_id = ?", userID)
	default:
		q = q.Where("buyer_id = ? OR seller_id = ?", userID, userID)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var txs []models.Transaction
	err := q.Order("created_at DESC").Limit(limit).Offset(offset).Find(&txs).Error
	return txs, total, err
}

func (r *transactionRepository) ListDueForRelease(ctx context.Context, now time.Time, limit int) ([]models.Transaction, error) {
	flagged := r.db.Model(&models.AuditEntry{}).
		Select("entity_id").
		Where("entity_type = ? AND action = ?", models.EntityTransaction, models.AuditEscrowIntegrityFailure)

	var txs []models.Transaction
	err := r.db.WithContext(ctx).
		Where("status = ? AND escrow_release_date <= ?", models.StatusEscrowHeld, now.UTC()).
		Where("id NOT IN (?)", flagged).
		Order("escrow_release_date ASC, id ASC").
		Limit(limit).
		Find(&txs).Error
	return txs, err
}

func (r *transactionRepository) SumAdminFees(ctx context.Context, from, to time.Time) (decimal.Decimal, int64, error) {
	var out struct {
		Total decimal.NullDecimal
		Count int64
	}
	err := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Select("SUM(admin_fee) AS total, COUNT(*) AS count").
		Where("status = ? AND completed_at >= ? AND completed_at < ?", models.StatusCompleted, from.UTC(), to.UTC()).
		Scan(&out).Error
	if err != nil {
		return decimal.Zero, 0, err
	}
	if !out.Total.Valid {
		return decimal.Zero, out.Count, nil
	}
	return out.Total.Decimal, out.Count, nil
}
