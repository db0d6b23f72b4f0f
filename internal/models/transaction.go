package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Status is the lifecycle state of a marketplace transaction.
type Status string

// Transaction statuses
const (
	StatusPending    Status = "pending"
	StatusApproved   Status = "approved"
	StatusEscrowHeld Status = "escrow_held"
	StatusCompleted  Status = "completed"
	StatusRefunded   Status = "refunded"
	StatusDisputed   Status = "disputed"
	StatusCancelled  Status = "cancelled"
)

// statusInEscrowAlias is the older name some clients still send for escrow_held.
const statusInEscrowAlias = "in_escrow"

// ParseStatus normalizes a status string. ok is false for unknown values.
func ParseStatus(s string) (Status, bool) {
	v := strings.ToLower(strings.TrimSpace(s))
	if v == statusInEscrowAlias {
		return StatusEscrowHeld, true
	}
	st := Status(v)
	switch st {
	case StatusPending, StatusApproved, StatusEscrowHeld, StatusCompleted,
		StatusRefunded, StatusDisputed, StatusCancelled:
		return st, true
	}
	return "", false
}

// AllStatuses lists every status in declaration order.
func AllStatuses() []Status {
	return []Status{
		StatusPending, StatusApproved, StatusEscrowHeld, StatusCompleted,
		StatusRefunded, StatusDisputed, StatusCancelled,
	}
}

// PaymentMethod tags the external payment rail. No rail-specific logic lives here.
type PaymentMethod string

const (
	PaymentMethodPaystack     PaymentMethod = "paystack"
	PaymentMethodFlutterwave  PaymentMethod = "flutterwave"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodStripe       PaymentMethod = "stripe"
)

// Valid reports whether m is a supported rail.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodPaystack, PaymentMethodFlutterwave, PaymentMethodBankTransfer, PaymentMethodStripe:
		return true
	}
	return false
}

// Transaction is a buyer's purchase of a listing. Rows are never deleted.
type Transaction struct {
	ID                string          `gorm:"primaryKey;type:varchar(36)" json:"id"`
	BuyerID           string          `gorm:"type:varchar(64);not null;index" json:"buyer_id"`
	SellerID          string          `gorm:"type:varchar(64);not null;index" json:"seller_id"`
	ListingID         string          `gorm:"type:varchar(64);not null;index" json:"listing_id"`
	Amount            decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"amount"`
	AdminFee          decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"admin_fee"`
	SellerAmount      decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"seller_amount"`
	Status            Status          `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	PaymentMethod     PaymentMethod   `gorm:"type:varchar(20);not null" json:"payment_method"`
	PaymentReference  string          `gorm:"type:varchar(128)" json:"payment_reference,omitempty"`
	IntegrityHash     string          `gorm:"type:varchar(64);not null" json:"-"`
	DisputeReason     string          `gorm:"type:text" json:"dispute_reason,omitempty"`
	EscrowReleaseDate time.Time       `gorm:"not null;index" json:"escrow_release_date"`
	CompletedAt       *time.Time      `json:"completed_at,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// BeforeCreate assigns an id when the caller did not.
func (t *Transaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

// IsParticipant reports whether userID is the buyer or the seller.
func (t *Transaction) IsParticipant(userID string) bool {
	return userID != "" && (userID == t.BuyerID || userID == t.SellerID)
}
