package repositories

import (
	"context"
	"time"

	"campusmarket/internal/models"

	"gorm.io/gorm"
)

type OperatorRepository interface {
	Create(ctx context.Context, op *models.Operator) error
	FindByID(ctx context.Context, id string) (*models.Operator, error)
	FindByEmail(ctx context.Context, email string) (*models.Operator, error)
	// IsActiveAdmin backs the release authority predicate.
	IsActiveAdmin(ctx context.Context, id string) (bool, error)
	TouchLogin(ctx context.Context, id string, at time.Time) error
	// IncrementTokenVersion invalidates every token issued so far.
	IncrementTokenVersion(ctx context.Context, id string) error
}

type operatorRepository struct {
	db *gorm.DB
}

func NewOperatorRepository(db *gorm.DB) OperatorRepository {
	return &operatorRepository{db: db}
}

func (r *operatorRepository) Create(ctx context.Context, op *models.Operator) error {
	return translate(r.db.WithContext(ctx).Create(op).Error)
}

func (r *operatorRepository) FindByID(ctx context.Context, id string) (*models.Operator, error) {
	var op models.Operator
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&op).Error; err != nil {
		return nil, translate(err)
	}
	return &op, nil
}

func (r *operatorRepository) FindByEmail(ctx context.Context, email string) (*models.Operator, error) {
	var op models.Operator
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&op).Error; err != nil {
		return nil, translate(err)
	}
	return &op, nil
}

func (r *operatorRepository) IsActiveAdmin(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, nil
	}
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Operator{}).
		Where("id = ? AND role = ? AND active = ?", id, models.RoleAdmin, true).
		Count(&count).Error
	return count > 0, err
}

func (r *operatorRepository) TouchLogin(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Operator{}).
		Where("id = ?", id).
		Update("last_login_at", at.UTC()).Error
}

func (r *operatorRepository) IncrementTokenVersion(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).
		Model(&models.Operator{}).
		Where("id = ?", id).
		Update("token_version", gorm.Expr("token_version + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
