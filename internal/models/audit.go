package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuditAction tags an audit entry.
type AuditAction string

const (
	AuditTransactionCreate         AuditAction = "transaction_create"
	AuditTransactionApprove        AuditAction = "transaction_approve"
	AuditTransactionCancel         AuditAction = "transaction_cancel"
	AuditEscrowHold                AuditAction = "escrow_hold"
	AuditEscrowRelease             AuditAction = "escrow_release"
	AuditEscrowReleaseUnauthorized AuditAction = "escrow_release_unauthorized"
	AuditEscrowIntegrityFailure    AuditAction = "escrow_integrity_failure"
	AuditDisputeOpen               AuditAction = "dispute_open"
	AuditRefundProcessed           AuditAction = "refund_processed"
)

// Entity types referenced by audit entries.
const (
	EntityTransaction = "transaction"
	EntityEscrow      = "escrow"
	EntityDispute     = "dispute"
)

// AuditEntry is append-only. Nothing updates or deletes these rows.
type AuditEntry struct {
	ID          string      `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Action      AuditAction `gorm:"type:varchar(64);not null;index" json:"action"`
	EntityType  string      `gorm:"type:varchar(32);not null;index:idx_audit_entity" json:"entity_type"`
	EntityID    string      `gorm:"type:varchar(64);not null;index:idx_audit_entity" json:"entity_id"`
	PerformedBy string      `gorm:"type:varchar(64);not null;index" json:"performed_by"`
	Reason      string      `gorm:"type:text" json:"reason,omitempty"`
	Changes     JSON        `gorm:"type:text" json:"changes,omitempty"`
	IPAddress   string      `gorm:"type:varchar(64)" json:"ip_address,omitempty"`
	UserAgent   string      `gorm:"type:varchar(255)" json:"user_agent,omitempty"`
	Timestamp   time.Time   `gorm:"not null;index" json:"timestamp"`
}

func (a *AuditEntry) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now().UTC()
	}
	return nil
}
