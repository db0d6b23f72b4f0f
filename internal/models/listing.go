package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type ListingStatus string

const (
	ListingActive  ListingStatus = "active"
	ListingPending ListingStatus = "pending"
	ListingSold    ListingStatus = "sold"
)

// Listing is owned by the marketplace catalogue. The ledger only reads
// price, seller and availability and flips the status.
type Listing struct {
	ID        string          `gorm:"primaryKey;type:varchar(64)" json:"id"`
	SellerID  string          `gorm:"type:varchar(64);not null;index" json:"seller_id"`
	Title     string          `json:"title"`
	Price     decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"price"`
	Status    ListingStatus   `gorm:"type:varchar(20);not null;default:'active'" json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Purchasable reports whether a buyer can start a transaction on the listing.
func (l *Listing) Purchasable() bool {
	return l.Status == ListingActive
}
