package escrow

import (
	"time"

	"campusmarket/internal/config"
	"campusmarket/internal/models"
)

// Operation names used in metrics and logs.
const (
	OpHold            = "escrow_hold"
	OpRelease         = "escrow_release"
	OpConfirmDelivery = "escrow_confirm_delivery"
	OpRefund          = "escrow_refund"
)

// Confirmation proofs recorded by the built-in release paths.
const (
	ProofBuyerConfirmed = "buyer_confirmed"
	ProofAutoRelease    = "auto_release_timeout"
)

// PlatformRecipient receives admin commission payouts.
const PlatformRecipient = "platform"

type Config struct {
	SystemActorID     string
	PlatformRecipient string
	// PayoutDelay is how long after release payouts are scheduled.
	PayoutDelay time.Duration
	Currency    string
}

func DefaultConfig() Config {
	return Config{
		SystemActorID:     config.SystemActorID,
		PlatformRecipient: PlatformRecipient,
		PayoutDelay:       24 * time.Hour,
		Currency:          config.DefaultCurrency,
	}
}

// HoldRequest moves a paid transaction into escrow. PaymentConfirmed is the
// external verification signal; it is not re-checked here.
type HoldRequest struct {
	TransactionID    string
	PaymentConfirmed bool
	PaymentReference string
	ActorID          string
}

// ReleaseResult is what a successful release produced.
type ReleaseResult struct {
	Escrow      *models.EscrowAccount `json:"escrow"`
	Transaction *models.Transaction   `json:"transaction"`
	Payouts     []models.PayoutRecord `json:"payouts"`
}
