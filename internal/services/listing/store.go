// Package listing is the ledger's view of the marketplace catalogue: whether a
// listing can be bought, at what price and from whom, plus the status flips
// that follow a sale.
package listing

import (
	"context"
	"errors"

	"campusmarket/internal/models"
	"campusmarket/internal/repositories"

	"github.com/shopspring/decimal"
)

var ErrNotFound = errors.New("listing not found")

// Info is what the transaction flow needs to know about a listing.
type Info struct {
	ID          string
	SellerID    string
	Price       decimal.Decimal
	Purchasable bool
}

type Store interface {
	Lookup(ctx context.Context, id string) (*Info, error)
	MarkStatus(ctx context.Context, id string, status models.ListingStatus) error
}

// GormStore reads the catalogue table directly.
type GormStore struct {
	repo repositories.ListingRepository
}

func NewGormStore(repo repositories.ListingRepository) *GormStore {
	return &GormStore{repo: repo}
}

func (s *GormStore) Lookup(ctx context.Context, id string) (*Info, error) {
	l, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &Info{
		ID:          l.ID,
		SellerID:    l.SellerID,
		Price:       l.Price,
		Purchasable: l.Purchasable(),
	}, nil
}

func (s *GormStore) MarkStatus(ctx context.Context, id string, status models.ListingStatus) error {
	err := s.repo.UpdateStatus(ctx, id, status)
	if errors.Is(err, repositories.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
