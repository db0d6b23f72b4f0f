package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type PayoutType string

const (
	PayoutSeller          PayoutType = "seller_payout"
	PayoutAdminCommission PayoutType = "admin_commission"
)

type PayoutStatus string

// PayoutPending is the only status this service writes; bank transfer
// execution happens elsewhere.
const PayoutPending PayoutStatus = "pending"

// PayoutRecord is an obligation to transfer funds created when escrow releases.
type PayoutRecord struct {
	ID            string          `gorm:"primaryKey;type:varchar(36)" json:"id"`
	TransactionID string          `gorm:"type:varchar(36);not null;index" json:"transaction_id"`
	EscrowID      string          `gorm:"type:varchar(36);not null;uniqueIndex:idx_payout_escrow_type" json:"escrow_id"`
	Type          PayoutType      `gorm:"type:varchar(32);not null;uniqueIndex:idx_payout_escrow_type" json:"type"`
	Recipient     string          `gorm:"type:varchar(64);not null;index" json:"recipient"`
	Amount        decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"amount"`
	Status        PayoutStatus    `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`
	ScheduledFor  time.Time       `json:"scheduled_for"`
	CreatedAt     time.Time       `json:"created_at"`
}

func (p *PayoutRecord) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}
