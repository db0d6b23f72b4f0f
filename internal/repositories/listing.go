package repositories

import (
	"context"

	"campusmarket/internal/models"

	"gorm.io/gorm"
)

type ListingRepository interface {
	Create(ctx context.Context, l *models.Listing) error
	FindByID(ctx context.Context, id string) (*models.Listing, error)
	UpdateStatus(ctx context.Context, id string, status models.ListingStatus) error
}

type listingRepository struct {
	db *gorm.DB
}

func NewListingRepository(db *gorm.DB) ListingRepository {
	return &listingRepository{db: db}
}

func (r *listingRepository) Create(ctx context.Context, l *models.Listing) error {
	return translate(r.db.WithContext(ctx).Create(l).Error)
}

func (r *listingRepository) FindByID(ctx context.Context, id string) (*models.Listing, error) {
	var l models.Listing
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&l).Error; err != nil {
		return nil, translate(err)
	}
	return &l, nil
}

func (r *listingRepository) UpdateStatus(ctx context.Context, id string, status models.ListingStatus) error {
	res := r.db.WithContext(ctx).
		Model(&models.Listing{}).
		Where("id = ?", id).
		Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
