package escrow

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
	"campusmarket/internal/repositories/cache"
	"campusmarket/internal/services/audit"
	"campusmarket/internal/services/listing"
	"campusmarket/internal/services/notification"
	"campusmarket/internal/services/transaction"
)

type Service struct {
	store    *repositories.Store
	audit    *audit.Recorder
	authz    Authorizer
	notifier notification.Emitter
	listings listing.Store
	changes  cache.ChangePublisher
	cfg      Config
	logger   *slog.Logger
	metrics  metrics.Collector
	now      func() time.Time
}

type Option func(*Service)

func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.logger = l } }

func WithMetrics(m metrics.Collector) Option { return func(s *Service) { s.metrics = m } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func WithListings(l listing.Store) Option { return func(s *Service) { s.listings = l } }

func WithChangePublisher(p cache.ChangePublisher) Option {
	return func(s *Service) { s.changes = p }
}

func NewService(store *repositories.Store, recorder *audit.Recorder, authz Authorizer, notifier notification.Emitter, cfg Config, opts ...Option) *Service {
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
		audit:    recorder,
		authz:    authz,
		notifier: notifier,
		changes:  cache.NopChangePublisher{},
		cfg:      cfg,
		logger:   slog.Default(),
		metrics:  metrics.Noop{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.notifier == nil {
		s.notifier = notification.NewLogEmitter(s.logger)
	}
	return s
}

// Hold creates the escrow account for a paid transaction and moves the
// transaction to escrow_held.
func (s *Service) Hold(ctx context.Context, req HoldRequest) (escrow *models.EscrowAccount, err error) {
	defer s.observe(OpHold, s.now(), &err)

	if strings.TrimSpace(req.TransactionID) == "" {
		return nil, apperrors.Validation("transaction_id", "must not be empty")
	}
	tx, err := s.findTransaction(ctx, req.TransactionID)
	if err != nil {
		return nil, err
	}
	if err := s.requireAuthority(ctx, req.ActorID); err != nil {
		return nil, err
	}
	if tx.Status == models.StatusEscrowHeld {
		return nil, apperrors.AlreadyHeld(tx.ID)
	}
	if !models.CanTransition(tx.Status, models.StatusEscrowHeld) {
		return nil, apperrors.InvalidTransition(string(tx.Status), string(models.StatusEscrowHeld))
	}
	if _, err := s.store.Escrows.FindByTransactionID(ctx, tx.ID); err == nil {
		return nil, apperrors.AlreadyHeld(tx.ID)
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return nil, err
	}
	if !req.PaymentConfirmed {
		return nil, apperrors.Validation("payment_confirmed", "payment has not been confirmed")
	}
	if err := transaction.VerifyIntegrity(tx); err != nil {
		return nil, s.recordIntegrityFailure(ctx, tx, req.ActorID, err)
	}

	now := s.now().UTC()
	from := tx.Status
	escrow = &models.EscrowAccount{
		TransactionID:    tx.ID,
		Amount:           tx.Amount,
		SellerAmount:     tx.SellerAmount,
		AdminCommission:  tx.AdminFee,
		Status:           models.EscrowHeld,
		PaymentReference: req.PaymentReference,
		ReleaseDate:      tx.EscrowReleaseDate,
		HeldAt:           now,
	}

	err = s.store.WithinTx(ctx, func(repo *repositories.Store) error {
		err := repo.Transactions.CompareAndSwapStatus(ctx, tx.ID,
			[]models.Status{models.StatusPending, models.StatusApproved},
			repositories.StatusUpdate{To: models.StatusEscrowHeld, PaymentReference: req.PaymentReference})
		if errors.Is(err, repositories.ErrStaleState) {
			return explainLostHold(ctx, repo, tx.ID)
		}
		if err != nil {
			return err
		}
		if err := repo.Escrows.Create(ctx, escrow); err != nil {
			if errors.Is(err, repositories.ErrDuplicate) {
				return apperrors.AlreadyHeld(tx.ID)
			}
			return err
		}
		s.audit.RecordTx(ctx, repo.DB(), audit.Entry{
			Action:      models.AuditEscrowHold,
			EntityType:  models.EntityTransaction,
			EntityID:    tx.ID,
			PerformedBy: req.ActorID,
			Changes: models.JSON{
				"from":              string(from),
				"to":                string(models.StatusEscrowHeld),
				"escrow_id":         escrow.ID,
				"amount":            escrow.Amount.StringFixed(2),
				"payment_reference": req.PaymentReference,
			},
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, "transaction", tx.ID, string(models.StatusEscrowHeld))
	s.logger.InfoContext(ctx, "escrow held", "transaction_id", tx.ID, "escrow_id", escrow.ID)
	return escrow, nil
}

func explainLostHold(ctx context.Context, repo *repositories.Store, txID string) error {
	current, err := repo.Transactions.FindByID(ctx, txID)
	if err != nil {
		return err
	}
	if current.Status == models.StatusEscrowHeld {
		return apperrors.AlreadyHeld(txID)
	}
	return apperrors.InvalidTransition(string(current.Status), string(models.StatusEscrowHeld))
}

// Release pays out a held escrow. authorizedBy must be an operator or the
// system identity; releasing a disputed transaction resolves the dispute in
// the seller's favour.
func (s *Service) Release(ctx context.Context, escrowID, authorizedBy, proof string) (res *ReleaseResult, err error) {
	defer s.observe(OpRelease, s.now(), &err)

	escrow, err := s.store.Escrows.FindByID(ctx, escrowID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, apperrors.EscrowNotFound(escrowID)
	}
	if err != nil {
		return nil, err
	}

	ok, err := s.authz.IsReleaseAuthority(ctx, authorizedBy)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.audit.Record(ctx, audit.Entry{
			Action:      models.AuditEscrowReleaseUnauthorized,
			EntityType:  models.EntityEscrow,
			EntityID:    escrow.ID,
			PerformedBy: authorizedBy,
			Reason:      "actor is not a release authority",
			Changes:     models.JSON{"transaction_id": escrow.TransactionID},
		})
		return nil, apperrors.Unauthorized("only a marketplace operator may release escrow")
	}

	if escrow.Status != models.EscrowHeld {
		return nil, apperrors.Integrity("escrow is " + string(escrow.Status) + ", not held")
	}
	tx, err := s.findTransaction(ctx, escrow.TransactionID)
	if err != nil {
		return nil, err
	}
	if tx.Status != models.StatusEscrowHeld && tx.Status != models.StatusDisputed {
		return nil, apperrors.Integrity("transaction is " + string(tx.Status) + ", funds cannot be released")
	}

	return s.settle(ctx, settlement{
		escrow: escrow,
		tx:     tx,
		actor:  authorizedBy,
		proof:  proof,
	})
}

// ConfirmDelivery lets the buyer release early. Disputed transactions are
// excluded; they are settled by an operator.
func (s *Service) ConfirmDelivery(ctx context.Context, txID, buyerID string) (res *ReleaseResult, err error) {
	defer s.observe(OpConfirmDelivery, s.now(), &err)

	tx, err := s.findTransaction(ctx, txID)
	if err != nil {
		return nil, err
	}
	if buyerID == "" || buyerID != tx.BuyerID {
		return nil, apperrors.Unauthorized("only the buyer can confirm delivery")
	}
	switch tx.Status {
	case models.StatusEscrowHeld:
	case models.StatusDisputed:
		return nil, apperrors.InvalidTransitionReason(string(tx.Status), string(models.StatusCompleted),
			"a disputed transaction must be resolved by an operator")
	default:
		return nil, apperrors.InvalidTransition(string(tx.Status), string(models.StatusCompleted))
	}

	escrow, err := s.store.Escrows.FindByTransactionID(ctx, tx.ID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, apperrors.Integrity("transaction has no escrow account")
	}
	if err != nil {
		return nil, err
	}
	if escrow.Status != models.EscrowHeld {
		return nil, apperrors.Integrity("escrow is " + string(escrow.Status) + ", not held")
	}

	return s.settle(ctx, settlement{
		escrow: escrow,
		tx:     tx,
		actor:  buyerID,
		proof:  ProofBuyerConfirmed,
	})
}

type settlement struct {
	escrow *models.EscrowAccount
	tx     *models.Transaction
	actor  string
	proof  string
}

// settle is the single release path. Both conditional updates expect the
// statuses read before the call; losing either rolls the release back with
// an integrity error.
func (s *Service) settle(ctx context.Context, st settlement) (*ReleaseResult, error) {
	if err := transaction.VerifyIntegrity(st.tx); err != nil {
		return nil, s.recordIntegrityFailure(ctx, st.tx, st.actor, err)
	}
	if !st.escrow.Amount.Equal(st.tx.Amount) ||
		!st.escrow.SellerAmount.Add(st.escrow.AdminCommission).Equal(st.escrow.Amount) {
		err := apperrors.Integrity("escrow amounts do not match the transaction")
		return nil, s.recordIntegrityFailure(ctx, st.tx, st.actor, err)
	}

	now := s.now().UTC()
	from := []models.Status{st.tx.Status}
	payouts := []models.PayoutRecord{
		{
			TransactionID: st.tx.ID,
			EscrowID:      st.escrow.ID,
			Type:          models.PayoutSeller,
			Recipient:     st.tx.SellerID,
			Amount:        st.escrow.SellerAmount,
			Status:        models.PayoutPending,
			ScheduledFor:  now.Add(s.cfg.PayoutDelay),
		},
		{
			TransactionID: st.tx.ID,
			EscrowID:      st.escrow.ID,
			Type:          models.PayoutAdminCommission,
			Recipient:     s.cfg.PlatformRecipient,
			Amount:        st.escrow.AdminCommission,
			Status:        models.PayoutPending,
			ScheduledFor:  now.Add(s.cfg.PayoutDelay),
		},
	}

	err := s.store.WithinTx(ctx, func(repo *repositories.Store) error {
		err := repo.Escrows.CompareAndSwapStatus(ctx, st.escrow.ID, models.EscrowHeld, repositories.EscrowUpdate{
			To:                models.EscrowReleased,
			ReleasedAt:        &now,
			ReleasedBy:        st.actor,
			ConfirmationProof: st.proof,
		})
		if errors.Is(err, repositories.ErrStaleState) {
			return apperrors.Integrity("escrow was settled concurrently")
		}
		if err != nil {
			return err
		}

		err = repo.Transactions.CompareAndSwapStatus(ctx, st.tx.ID, from, repositories.StatusUpdate{
			To:          models.StatusCompleted,
			CompletedAt: &now,
		})
		if errors.Is(err, repositories.ErrStaleState) {
			return apperrors.Integrity("transaction changed while releasing funds")
		}
		if err != nil {
			return err
		}

		if _, err := repo.Disputes.ResolveOpen(ctx, st.tx.ID, st.actor, now); err != nil {
			return err
		}
		if err := repo.Payouts.CreateBatch(ctx, payouts); err != nil {
			if errors.Is(err, repositories.ErrDuplicate) {
				return apperrors.Integrity("payouts already exist for this escrow")
			}
			return err
		}

		s.audit.RecordTx(ctx, repo.DB(), audit.Entry{
			Action:      models.AuditEscrowRelease,
			EntityType:  models.EntityEscrow,
			EntityID:    st.escrow.ID,
			PerformedBy: st.actor,
			Reason:      st.proof,
			Changes: models.JSON{
				"transaction_id":   st.tx.ID,
				"from":             string(st.tx.Status),
				"to":               string(models.StatusCompleted),
				"seller_amount":    st.escrow.SellerAmount.StringFixed(2),
				"admin_commission": st.escrow.AdminCommission.StringFixed(2),
			},
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, p := range payouts {
		s.metrics.RecordPayoutVolume(string(p.Type), p.Amount)
	}
	s.markListing(ctx, st.tx.ListingID, models.ListingSold)
	amount := st.escrow.SellerAmount
	s.notifier.Notify(ctx, notification.Event{
		Type:          notification.EventPayoutPending,
		TransactionID: st.tx.ID,
		Recipients:    []string{st.tx.SellerID},
		Amount:        &amount,
		Currency:      s.cfg.Currency,
		OccurredAt:    now,
	})
	s.publish(ctx, "transaction", st.tx.ID, string(models.StatusCompleted))
	s.logger.InfoContext(ctx, "escrow released",
		"escrow_id", st.escrow.ID, "transaction_id", st.tx.ID, "released_by", st.actor)

	escrow, err := s.store.Escrows.FindByID(ctx, st.escrow.ID)
	if err != nil {
		return nil, err
	}
	tx, err := s.store.Transactions.FindByID(ctx, st.tx.ID)
	if err != nil {
		return nil, err
	}
	return &ReleaseResult{Escrow: escrow, Transaction: tx, Payouts: payouts}, nil
}

// Refund returns a held escrow to the buyer. No payouts are created.
func (s *Service) Refund(ctx context.Context, txID, reason, authorizedBy string) (tx *models.Transaction, err error) {
	defer s.observe(OpRefund, s.now(), &err)

	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperrors.Validation("reason", "must not be empty")
	}
	if err := s.requireAuthority(ctx, authorizedBy); err != nil {
		return nil, err
	}
	tx, err = s.findTransaction(ctx, txID)
	if err != nil {
		return nil, err
	}
	if tx.Status != models.StatusEscrowHeld && tx.Status != models.StatusDisputed {
		return nil, apperrors.InvalidTransition(string(tx.Status), string(models.StatusRefunded))
	}

	escrow, err := s.store.Escrows.FindByTransactionID(ctx, tx.ID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, apperrors.Integrity("transaction has no escrow account")
	}
	if err != nil {
		return nil, err
	}
	if escrow.Status != models.EscrowHeld {
		return nil, apperrors.Integrity("escrow is " + string(escrow.Status) + ", not held")
	}

	now := s.now().UTC()
	from := tx.Status
	upd := repositories.StatusUpdate{To: models.StatusRefunded, CompletedAt: &now}
	if from == models.StatusDisputed {
		upd.DisputeReason = reason
	}

	err = s.store.WithinTx(ctx, func(repo *repositories.Store) error {
		err := repo.Escrows.CompareAndSwapStatus(ctx, escrow.ID, models.EscrowHeld, repositories.EscrowUpdate{
			To:         models.EscrowRefunded,
			RefundedAt: &now,
			ReleasedBy: authorizedBy,
		})
		if errors.Is(err, repositories.ErrStaleState) {
			return apperrors.Integrity("escrow was settled concurrently")
		}
		if err != nil {
			return err
		}

		err = repo.Transactions.CompareAndSwapStatus(ctx, tx.ID, []models.Status{from}, upd)
		if errors.Is(err, repositories.ErrStaleState) {
			return apperrors.Integrity("transaction changed while refunding")
		}
		if err != nil {
			return err
		}

		if _, err := repo.Disputes.ResolveOpen(ctx, tx.ID, authorizedBy, now); err != nil {
			return err
		}
		s.audit.RecordTx(ctx, repo.DB(), audit.Entry{
			Action:      models.AuditRefundProcessed,
			EntityType:  models.EntityTransaction,
			EntityID:    tx.ID,
			PerformedBy: authorizedBy,
			Reason:      reason,
			Changes: models.JSON{
				"from":      string(from),
				"to":        string(models.StatusRefunded),
				"escrow_id": escrow.ID,
				"amount":    escrow.Amount.StringFixed(2),
			},
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.markListing(ctx, tx.ListingID, models.ListingActive)
	amount := escrow.Amount
	s.notifier.Notify(ctx, notification.Event{
		Type:          notification.EventRefundProcessed,
		TransactionID: tx.ID,
		Recipients:    []string{tx.BuyerID, tx.SellerID},
		Amount:        &amount,
		Currency:      s.cfg.Currency,
		Reason:        reason,
		OccurredAt:    now,
	})
	s.publish(ctx, "transaction", tx.ID, string(models.StatusRefunded))
	s.logger.InfoContext(ctx, "escrow refunded", "transaction_id", tx.ID, "escrow_id", escrow.ID)

	return s.store.Transactions.FindByID(ctx, tx.ID)
}

// FindByTransaction returns the escrow account of a transaction.
func (s *Service) FindByTransaction(ctx context.Context, txID string) (*models.EscrowAccount, error) {
	e, err := s.store.Escrows.FindByTransactionID(ctx, txID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, apperrors.EscrowNotFound("for transaction " + txID)
	}
	return e, err
}

func (s *Service) findTransaction(ctx context.Context, txID string) (*models.Transaction, error) {
	tx, err := s.store.Transactions.FindByID(ctx, txID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, apperrors.TransactionNotFound(txID)
	}
	return tx, err
}

func (s *Service) requireAuthority(ctx context.Context, actorID string) error {
	ok, err := s.authz.IsReleaseAuthority(ctx, actorID)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.Unauthorized("only a marketplace operator may perform this action")
	}
	return nil
}

// verificationError marks an integrity failure found in the stored rows, as
// opposed to a state change that raced the caller.
type verificationError struct{ error }

func (e verificationError) Unwrap() error { return e.error }

func (s *Service) recordIntegrityFailure(ctx context.Context, tx *models.Transaction, actor string, cause error) error {
	s.logger.ErrorContext(ctx, "transaction integrity check failed", "transaction_id", tx.ID, "error", cause)
	s.audit.Record(ctx, audit.Entry{
		Action:      models.AuditEscrowIntegrityFailure,
		EntityType:  models.EntityTransaction,
		EntityID:    tx.ID,
		PerformedBy: actor,
		Reason:      cause.Error(),
	})
	return verificationError{cause}
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

func (s *Service) publish(ctx context.Context, entity, id, status string) {
	if err := s.changes.Publish(ctx, cache.Change{Entity: entity, ID: id, Status: status}); err != nil {
		s.logger.WarnContext(ctx, "change publish failed", "entity", entity, "id", id, "error", err)
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
