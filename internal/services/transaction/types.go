package transaction

import (
	"time"

	"campusmarket/internal/config"
	"campusmarket/internal/models"
	"campusmarket/internal/repositories"

	"github.com/shopspring/decimal"
)

// Config is passed in at construction; nothing reads rates from globals.
type Config struct {
	CommissionRate decimal.Decimal
	ReleaseWindow  time.Duration
	Currency       string
}

// DefaultConfig is 5% commission and a seven day release window.
func DefaultConfig() Config {
	return Config{
		CommissionRate: config.DefaultCommissionRate,
		ReleaseWindow:  config.DefaultReleaseWindow,
		Currency:       config.DefaultCurrency,
	}
}

// ConfigFrom adapts the environment-driven escrow settings.
func ConfigFrom(c config.Escrow) Config {
	return Config{
		CommissionRate: c.CommissionRate,
		ReleaseWindow:  c.ReleaseWindow,
		Currency:       c.Currency,
	}
}

// InitiateRequest starts a purchase. When Purchasable is nil the listing
// store is consulted for availability, price and seller.
type InitiateRequest struct {
	BuyerID       string
	SellerID      string
	ListingID     string
	Amount        decimal.Decimal
	PaymentMethod models.PaymentMethod
	Purchasable   *bool
}

// HistoryQuery selects one user's transactions.
type HistoryQuery struct {
	UserID string
	Role   repositories.HistoryRole
	Limit  int
	Offset int
}

// Revenue is the platform's commission over completed transactions.
type Revenue struct {
	From     time.Time       `json:"from"`
	To       time.Time       `json:"to"`
	Total    decimal.Decimal `json:"total"`
	Count    int64           `json:"count"`
	Currency string          `json:"currency"`
}

// Receipt is the buyer/seller facing summary of one transaction.
type Receipt struct {
	TransactionID string                `json:"transaction_id"`
	ListingID     string                `json:"listing_id"`
	BuyerID       string                `json:"buyer_id"`
	SellerID      string                `json:"seller_id"`
	Amount        decimal.Decimal       `json:"amount"`
	AdminFee      decimal.Decimal       `json:"admin_fee"`
	SellerAmount  decimal.Decimal       `json:"seller_amount"`
	Currency      string                `json:"currency"`
	Status        models.Status         `json:"status"`
	PaymentMethod models.PaymentMethod  `json:"payment_method"`
	CreatedAt     time.Time             `json:"created_at"`
	CompletedAt   *time.Time            `json:"completed_at,omitempty"`
	ReleaseDate   time.Time             `json:"escrow_release_date"`
	Escrow        *models.EscrowAccount `json:"escrow,omitempty"`
	Payouts       []models.PayoutRecord `json:"payouts,omitempty"`
}
