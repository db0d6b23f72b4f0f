// Package notification hands ledger events to the external email/SMS
// dispatcher. Delivery is fire-and-forget: an emitter never reports failure
// back to the ledger, whose state change has already committed.
package notification

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
)

type EventType string

const (
	EventPayoutPending   EventType = "payout_pending"
	EventDisputeOpened   EventType = "dispute_opened"
	EventRefundProcessed EventType = "refund_processed"
)

// Event is the payload consumed by the dispatcher.
type Event struct {
	Type          EventType        `json:"type"`
	TransactionID string           `json:"transaction_id"`
	Recipients    []string         `json:"recipients"`
	Amount        *decimal.Decimal `json:"amount,omitempty"`
	Currency      string           `json:"currency,omitempty"`
	Reason        string           `json:"reason,omitempty"`
	OccurredAt    time.Time        `json:"occurred_at"`
}

// Emitter is the notify(event) contract.
type Emitter interface {
	Notify(ctx context.Context, event Event)
}

// LogEmitter writes events to the log. Used when no broker is configured.
type LogEmitter struct {
	logger *slog.Logger
}

func NewLogEmitter(logger *slog.Logger) *LogEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogEmitter{logger: logger}
}

func (e *LogEmitter) Notify(ctx context.Context, event Event) {
	e.logger.InfoContext(ctx, "notification",
		"type", event.Type,
		"transaction_id", event.TransactionID,
		"recipients", event.Recipients,
	)
}
