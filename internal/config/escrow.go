package config

import (
	"time"

	"github.com/shopspring/decimal"
)

// SystemActorID is the identity recorded when the ledger acts on its own,
// e.g. when the sweeper auto-releases an expired escrow.
const SystemActorID = "system"

const (
	DefaultReleaseWindow = 7 * 24 * time.Hour
	DefaultSweepInterval = time.Minute
	DefaultSweepBatch    = 100
	DefaultCurrency      = "NGN"
)

// DefaultCommissionRate is the platform's share of every sale.
var DefaultCommissionRate = decimal.NewFromFloat(0.05)

type Escrow struct {
	CommissionRate decimal.Decimal
	ReleaseWindow  time.Duration
	Currency       string
	SweepInterval  time.Duration
	SweepBatch     int
	SystemActorID  string
}

func LoadEscrow() Escrow {
	return Escrow{
		CommissionRate: GetDecimalEnv("ESCROW_COMMISSION_RATE", DefaultCommissionRate),
		ReleaseWindow:  GetDurationEnv("ESCROW_RELEASE_WINDOW", DefaultReleaseWindow),
		Currency:       GetEnv("ESCROW_CURRENCY", DefaultCurrency),
		SweepInterval:  GetDurationEnv("ESCROW_SWEEP_INTERVAL", DefaultSweepInterval),
		SweepBatch:     GetIntEnv("ESCROW_SWEEP_BATCH", DefaultSweepBatch),
		SystemActorID:  SystemActorID,
	}
}
