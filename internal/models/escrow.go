package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type EscrowStatus string

const (
	EscrowHeld     EscrowStatus = "held"
	EscrowReleased EscrowStatus = "released"
	EscrowRefunded EscrowStatus = "refunded"
)

// EscrowAccount holds a transaction's funds between payment and release.
// There is at most one per transaction.
type EscrowAccount struct {
	ID                string          `gorm:"primaryKey;type:varchar(36)" json:"id"`
	TransactionID     string          `gorm:"type:varchar(36);not null;uniqueIndex" json:"transaction_id"`
	Amount            decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"amount"`
	SellerAmount      decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"seller_amount"`
	AdminCommission   decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"admin_commission"`
	Status            EscrowStatus    `gorm:"type:varchar(20);not null;default:'held';index" json:"status"`
	PaymentReference  string          `gorm:"type:varchar(128)" json:"payment_reference,omitempty"`
	ReleaseDate       time.Time       `gorm:"not null" json:"release_date"`
	HeldAt            time.Time       `gorm:"not null" json:"held_at"`
	ReleasedAt        *time.Time      `json:"released_at,omitempty"`
	RefundedAt        *time.Time      `json:"refunded_at,omitempty"`
	ReleasedBy        string          `gorm:"type:varchar(64)" json:"released_by,omitempty"`
	ConfirmationProof string          `gorm:"type:text" json:"confirmation_proof,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

func (e *EscrowAccount) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}
