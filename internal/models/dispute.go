package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type DisputeStatus string

const (
	DisputeOpen     DisputeStatus = "open"
	DisputeResolved DisputeStatus = "resolved"
)

// Dispute halts release of a transaction's escrow until an operator releases
// or refunds it. The outcome is the transaction's terminal status.
type Dispute struct {
	ID            string        `gorm:"primaryKey;type:varchar(36)" json:"id"`
	TransactionID string        `gorm:"type:varchar(36);not null;index;uniqueIndex:idx_disputes_one_open,where:status = 'open'" json:"transaction_id"`
	OpenedBy      string        `gorm:"type:varchar(64);not null" json:"opened_by"`
	Reason        string        `gorm:"type:text;not null" json:"reason"`
	Status        DisputeStatus `gorm:"type:varchar(20);not null;default:'open'" json:"status"`
	ResolvedBy    string        `gorm:"type:varchar(64)" json:"resolved_by,omitempty"`
	OpenedAt      time.Time     `gorm:"not null" json:"opened_at"`
	ResolvedAt    *time.Time    `json:"resolved_at,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

func (d *Dispute) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	return nil
}
