package repositories

import (
	"context"

	"gorm.io/gorm"
)

// Store groups the ledger repositories over one handle. Inside WithinTx every
// repository shares the same database transaction.
type Store struct {
	db           *gorm.DB
	Transactions TransactionRepository
	Escrows      EscrowRepository
	Disputes     DisputeRepository
	Payouts      PayoutRepository
	Audit        AuditRepository
	Operators    OperatorRepository
	Listings     ListingRepository
}

func NewStore(db *gorm.DB) *Store {
	return &Store{
		db:           db,
		Transactions: NewTransactionRepository(db),
		Escrows:      NewEscrowRepository(db),
		Disputes:     NewDisputeRepository(db),
		Payouts:      NewPayoutRepository(db),
		Audit:        NewAuditRepository(db),
		Operators:    NewOperatorRepository(db),
		Listings:     NewListingRepository(db),
	}
}

// DB returns the underlying handle, a *gorm.DB transaction inside WithinTx.
func (s *Store) DB() *gorm.DB { return s.db }

// WithinTx runs fn in a single database transaction. Returning an error from
// fn rolls everything back.
func (s *Store) WithinTx(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewStore(tx))
	})
}
