package transaction

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	apperrors "campusmarket/internal/errors"
	"campusmarket/internal/metrics"
	"campusmarket/internal/models"
	"campusmarket/internal/repositories"
	"campusmarket/internal/services/audit"
	"campusmarket/internal/services/listing"
)

type Service struct {
	store    *repositories.Store
	listings listing.Store
	audit    *audit.Recorder
	authz    Authorizer
	cfg      Config
	logger   *slog.Logger
	metrics  metrics.Collector
	now      func() time.Time
}

type Option func(*Service)

func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.logger = l } }

func WithMetrics(m metrics.Collector) Option { return func(s *Service) { s.metrics = m } }

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// NewService creates a new transaction service. listings may be nil when every
// caller supplies the purchasable flag itself.
func NewService(store *repositories.Store, listings listing.Store, recorder *audit.Recorder, authz Authorizer, cfg Config, opts ...Option) *Service {
	if store == nil {
		panic("store is required")
	}
	if recorder == nil {
		panic("audit recorder is required")
	}
	if authz == nil {
		panic("authorizer is required")
	}
	s := &Service{
		store:    store,
		listings: listings,
		audit:    recorder,
		authz:    authz,
		cfg:      cfg,
		logger:   slog.Default(),
		metrics:  metrics.Noop{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Config() Config { return s.cfg }

// Initiate validates a purchase and records it as pending.
func (s *Service) Initiate(ctx context.Context, req InitiateRequest) (tx *models.Transaction, err error) {
	defer s.observe(OpInitiate, s.now(), &err)

	req.BuyerID = strings.TrimSpace(req.BuyerID)
	req.SellerID = strings.TrimSpace(req.SellerID)
	req.ListingID = strings.TrimSpace(req.ListingID)
	if err := validateInitiate(req); err != nil {
		return nil, err
	}
	if req.BuyerID == req.SellerID {
		return nil, apperrors.Creation("buyer and seller must be different users", nil)
	}
	if err := s.checkListing(ctx, req); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	fee, sellerAmount := SplitFee(req.Amount, s.cfg.CommissionRate)
	tx = &models.Transaction{
		BuyerID:           req.BuyerID,
		SellerID:          req.SellerID,
		ListingID:         req.ListingID,
		Amount:            req.Amount,
		AdminFee:          fee,
		SellerAmount:      sellerAmount,
		Status:            models.StatusPending,
		PaymentMethod:     req.PaymentMethod,
		EscrowReleaseDate: now.Add(s.cfg.ReleaseWindow),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	tx.IntegrityHash = ComputeHash(tx)

	err = s.store.WithinTx(ctx, func(repo *repositories.Store) error {
		if err := repo.Transactions.Create(ctx, tx); err != nil {
			return err
		}
		s.audit.RecordTx(ctx, repo.DB(), audit.Entry{
			Action:      models.AuditTransactionCreate,
			EntityType:  models.EntityTransaction,
			EntityID:    tx.ID,
			PerformedBy: tx.BuyerID,
			Changes: models.JSON{
				"listing_id":     tx.ListingID,
				"seller_id":      tx.SellerID,
				"amount":         tx.Amount.StringFixed(moneyPlaces),
				"admin_fee":      tx.AdminFee.StringFixed(moneyPlaces),
				"seller_amount":  tx.SellerAmount.StringFixed(moneyPlaces),
				"payment_method": string(tx.PaymentMethod),
			},
		})
		return nil
	})
	if err != nil {
		return nil, apperrors.Creation("could not record transaction", err)
	}

	s.markListing(ctx, tx.ListingID, models.ListingPending)
	s.logger.InfoContext(ctx, "transaction created",
		"transaction_id", tx.ID, "listing_id", tx.ListingID, "amount", tx.Amount.String())
	return tx, nil
}

func validateInitiate(req InitiateRequest) error {
	switch {
	case req.BuyerID == "":
		return apperrors.Validation("buyer_id", "must not be empty")
	case req.SellerID == "":
		return apperrors.Validation("seller_id", "must not be empty")
	case req.ListingID == "":
		return apperrors.Validation("listing_id", "must not be empty")
	case !req.Amount.IsPositive():
		return apperrors.Validation("amount", "must be greater than zero")
	case req.Amount.Exponent() < -moneyPlaces && !req.Amount.Equal(req.Amount.Round(moneyPlaces)):
		return apperrors.Validation("amount", "must not have more than two decimal places")
	case !req.PaymentMethod.Valid():
		return apperrors.Validation("payment_method", "unsupported payment method")
	}
	return nil
}

func (s *Service) checkListing(ctx context.Context, req InitiateRequest) error {
	if req.Purchasable != nil {
		if !*req.Purchasable {
			return apperrors.Creation("listing is not available for purchase", nil)
		}
		return nil
	}
	if s.listings == nil {
		return apperrors.Creation("listing availability could not be determined", nil)
	}

	info, err := s.listings.Lookup(ctx, req.ListingID)
	if errors.Is(err, listing.ErrNotFound) {
		return apperrors.Creation("listing does not exist", nil)
	}
	if err != nil {
		return apperrors.Creation("listing lookup failed", err)
	}
	switch {
	case !info.Purchasable:
		return apperrors.Creation("listing is not available for purchase", nil)
	case info.SellerID != req.SellerID:
		return apperrors.Creation("seller does not own this listing", nil)
	case !info.Price.Equal(req.Amount):
		return apperrors.Creation("amount must equal the listing price of "+info.Price.StringFixed(moneyPlaces), nil)
	}
	return nil
}

// Approve is the operator's optional review step before payment is held.
func (s *Service) Approve(ctx context.Context, txID, operatorID string) (tx *models.Transaction, err error) {
	defer s.observe(OpApprove, s.now(), &err)

	if err := s.requireOperator(ctx, operatorID); err != nil {
		return nil, err
	}
	tx, err = s.Get(ctx, txID)
	if err != nil {
		return nil, err
	}
	if !models.CanTransition(tx.Status, models.StatusApproved) {
		return nil, apperrors.InvalidTransition(string(tx.Status), string(models.StatusApproved))
	}

	err = s.store.WithinTx(ctx, func(repo *repositories.Store) error {
		err := repo.Transactions.CompareAndSwapStatus(ctx, tx.ID,
			[]models.Status{models.StatusPending},
			repositories.StatusUpdate{To: models.StatusApproved})
		if err != nil {
			return staleToTransition(ctx, repo, err, tx.ID, models.StatusApproved)
		}
		s.audit.RecordTx(ctx, repo.DB(), audit.Entry{
			Action:      models.AuditTransactionApprove,
			EntityType:  models.EntityTransaction,
			EntityID:    tx.ID,
			PerformedBy: operatorID,
			Changes:     statusChange(models.StatusPending, models.StatusApproved),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, txID)
}

// Cancel abandons a transaction before funds are held. Either party or an
// operator may cancel.
func (s *Service) Cancel(ctx context.Context, txID, actorID string) (tx *models.Transaction, err error) {
	defer s.observe(OpCancel, s.now(), &err)

	tx, err = s.Get(ctx, txID)
	if err != nil {
		return nil, err
	}
	if !tx.IsParticipant(actorID) {
		if err := s.requireOperator(ctx, actorID); err != nil {
			return nil, err
		}
	}
	if !models.CanTransition(tx.Status, models.StatusCancelled) {
		return nil, apperrors.InvalidTransition(string(tx.Status), string(models.StatusCancelled))
	}

	from := tx.Status
	err = s.store.WithinTx(ctx, func(repo *repositories.Store) error {
		err := repo.Transactions.CompareAndSwapStatus(ctx, tx.ID,
			[]models.Status{from},
			repositories.StatusUpdate{To: models.StatusCancelled})
		if err != nil {
			return staleToTransition(ctx, repo, err, tx.ID, models.StatusCancelled)
		}
		s.audit.RecordTx(ctx, repo.DB(), audit.Entry{
			Action:      models.AuditTransactionCancel,
			EntityType:  models.EntityTransaction,
			EntityID:    tx.ID,
			PerformedBy: actorID,
			Changes:     statusChange(from, models.StatusCancelled),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.markListing(ctx, tx.ListingID, models.ListingActive)
	return s.Get(ctx, txID)
}

// Get loads a transaction.
func (s *Service) Get(ctx context.Context, txID string) (*models.Transaction, error) {
	tx, err := s.store.Transactions.FindByID(ctx, txID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, apperrors.TransactionNotFound(txID)
	}
	return tx, err
}

// GetForActor loads a transaction the actor is allowed to see: its buyer,
// its seller or an operator.
func (s *Service) GetForActor(ctx context.Context, txID, actorID string) (*models.Transaction, error) {
	tx, err := s.Get(ctx, txID)
	if err != nil {
		return nil, err
	}
	if tx.IsParticipant(actorID) {
		return tx, nil
	}
	if err := s.requireOperator(ctx, actorID); err != nil {
		return nil, err
	}
	return tx, nil
}

// History lists a user's purchases, sales or both, newest first.
func (s *Service) History(ctx context.Context, q HistoryQuery) ([]models.Transaction, int64, error) {
	if strings.TrimSpace(q.UserID) == "" {
		return nil, 0, apperrors.Validation("user_id", "must not be empty")
	}
	switch q.Role {
	case repositories.HistoryBuying, repositories.HistorySelling, repositories.HistoryAll:
	case "":
		q.Role = repositories.HistoryAll
	default:
		return nil, 0, apperrors.Validation("type", "must be buying, selling or all")
	}
	if q.Limit <= 0 {
		q.Limit = DefaultHistoryLimit
	}
	if q.Limit > MaxHistoryLimit {
		q.Limit = MaxHistoryLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	return s.store.Transactions.ListByUser(ctx, q.UserID, q.Role, q.Limit, q.Offset)
}

// AdminRevenue sums commission on transactions completed in [from, to).
func (s *Service) AdminRevenue(ctx context.Context, from, to time.Time) (*Revenue, error) {
	if !to.After(from) {
		return nil, apperrors.Validation("to", "must be after from")
	}
	total, count, err := s.store.Transactions.SumAdminFees(ctx, from, to)
	if err != nil {
		return nil, err
	}
	return &Revenue{
		From:     from.UTC(),
		To:       to.UTC(),
		Total:    total.Round(moneyPlaces),
		Count:    count,
		Currency: s.cfg.Currency,
	}, nil
}

// Receipt summarizes a transaction with its escrow account and payouts.
func (s *Service) Receipt(ctx context.Context, txID, actorID string) (*Receipt, error) {
	tx, err := s.GetForActor(ctx, txID, actorID)
	if err != nil {
		return nil, err
	}

	r := &Receipt{
		TransactionID: tx.ID,
		ListingID:     tx.ListingID,
		BuyerID:       tx.BuyerID,
		SellerID:      tx.SellerID,
		Amount:        tx.Amount,
		AdminFee:      tx.AdminFee,
		SellerAmount:  tx.SellerAmount,
		Currency:      s.cfg.Currency,
		Status:        tx.Status,
		PaymentMethod: tx.PaymentMethod,
		CreatedAt:     tx.CreatedAt,
		CompletedAt:   tx.CompletedAt,
		ReleaseDate:   tx.EscrowReleaseDate,
	}

	escrow, err := s.store.Escrows.FindByTransactionID(ctx, tx.ID)
	switch {
	case err == nil:
		r.Escrow = escrow
	case !errors.Is(err, repositories.ErrNotFound):
		return nil, err
	}

	if r.Payouts, err = s.store.Payouts.ListByTransaction(ctx, tx.ID); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Service) requireOperator(ctx context.Context, actorID string) error {
	ok, err := s.authz.IsReleaseAuthority(ctx, actorID)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.Unauthorized("only a marketplace operator may perform this action")
	}
	return nil
}

func (s *Service) markListing(ctx context.Context, listingID string, status models.ListingStatus) {
	if s.listings == nil {
		return
	}
	if err := s.listings.MarkStatus(ctx, listingID, status); err != nil {
		s.logger.WarnContext(ctx, "listing status update failed",
			"listing_id", listingID, "status", status, "error", err)
	}
}

func (s *Service) observe(op string, start time.Time, err *error) {
	s.metrics.RecordOperationDuration(op, s.now().Sub(start))
	result := "ok"
	if *err != nil {
		if result = string(apperrors.KindOf(*err)); result == "" {
			result = "error"
		}
	}
	s.metrics.RecordOperationResult(op, result)
}

// staleToTransition explains a lost compare-and-swap by re-reading the row.
func staleToTransition(ctx context.Context, repo *repositories.Store, err error, txID string, to models.Status) error {
	if !errors.Is(err, repositories.ErrStaleState) {
		return err
	}
	current, findErr := repo.Transactions.FindByID(ctx, txID)
	if findErr != nil {
		return findErr
	}
	return apperrors.InvalidTransition(string(current.Status), string(to))
}

func statusChange(from, to models.Status) models.JSON {
	return models.JSON{"from": string(from), "to": string(to)}
}
