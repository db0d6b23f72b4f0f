// Package dispute lets a buyer or seller halt the release of escrowed funds.
// A dispute is closed only by an operator releasing or refunding the escrow.
package dispute

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
	"campusmarket/internal/services/escrow"
	"campusmarket/internal/services/notification"
)

const (
	OpOpen    = "dispute_open"
	OpResolve = "dispute_resolve"
)

// Outcome is how an operator settles a dispute.
type Outcome string

const (
	OutcomeRelease Outcome = "release"
	OutcomeRefund  Outcome = "refund"
)

func (o Outcome) Valid() bool {
	return o == OutcomeRelease || o == OutcomeRefund
}

// Resolver is the escrow side of resolution. *escrow.Service implements it.
type Resolver interface {
	Release(ctx context.Context, escrowID, authorizedBy, proof string) (*escrow.ReleaseResult, error)
	Refund(ctx context.Context, txID, reason, authorizedBy string) (*models.Transaction, error)
}

type Service struct {
	store    *repositories.Store
	resolver Resolver
	audit    *audit.Recorder
	notifier notification.Emitter
	changes  cache.ChangePublisher
	logger   *slog.Logger
	metrics  metrics.Collector
	now      func() time.Time
}

type Option func(*Service)

func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.logger = l } }

func WithMetrics(m metrics.Collector) Option { return func(s *Service) { s.metrics = m } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func WithChangePublisher(p cache.ChangePublisher) Option {
	return func(s *Service) { s.changes = p }
}

func NewService(store *repositories.Store, resolver Resolver, recorder *audit.Recorder, notifier notification.Emitter, opts ...Option) *Service {
	s := &Service{
		store:    store,
		resolver: resolver,
		audit:    recorder,
		notifier: notifier,
		changes:  cache.NopChangePublisher{},
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

// Open raises a dispute on a held transaction and freezes its escrow.
func (s *Service) Open(ctx context.Context, txID, userID, reason string) (d *models.Dispute, err error) {
	start := s.now()
	defer func() { s.observe(OpOpen, start, err) }()

	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperrors.Validation("reason", "must not be empty")
	}
	tx, err := s.store.Transactions.FindByID(ctx, txID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, apperrors.TransactionNotFound(txID)
	}
	if err != nil {
		return nil, err
	}
	if userID == "" || !tx.IsParticipant(userID) {
		return nil, apperrors.Unauthorized("only the buyer or seller can open a dispute")
	}
	if tx.Status != models.StatusEscrowHeld {
		return nil, apperrors.InvalidTransition(string(tx.Status), string(models.StatusDisputed))
	}

	now := s.now().UTC()
	d = &models.Dispute{
		TransactionID: tx.ID,
		OpenedBy:      userID,
		Reason:        reason,
		Status:        models.DisputeOpen,
		OpenedAt:      now,
	}
	err = s.store.WithinTx(ctx, func(repo *repositories.Store) error {
		err := repo.Transactions.CompareAndSwapStatus(ctx, tx.ID,
			[]models.Status{models.StatusEscrowHeld},
			repositories.StatusUpdate{To: models.StatusDisputed, DisputeReason: reason})
		if errors.Is(err, repositories.ErrStaleState) {
			current, findErr := repo.Transactions.FindByID(ctx, tx.ID)
			if findErr != nil {
				return findErr
			}
			return apperrors.InvalidTransition(string(current.Status), string(models.StatusDisputed))
		}
		if err != nil {
			return err
		}
		if err := repo.Disputes.Create(ctx, d); err != nil {
			if errors.Is(err, repositories.ErrDuplicate) {
				return apperrors.InvalidTransitionReason(string(models.StatusDisputed), string(models.StatusDisputed),
					"transaction already has an open dispute")
			}
			return err
		}
		s.audit.RecordTx(ctx, repo.DB(), audit.Entry{
			Action:      models.AuditDisputeOpen,
			EntityType:  models.EntityDispute,
			EntityID:    d.ID,
			PerformedBy: userID,
			Reason:      reason,
			Changes: models.JSON{
				"transaction_id": tx.ID,
				"from":           string(models.StatusEscrowHeld),
				"to":             string(models.StatusDisputed),
			},
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(ctx, notification.Event{
		Type:          notification.EventDisputeOpened,
		TransactionID: tx.ID,
		Recipients:    []string{tx.BuyerID, tx.SellerID},
		Reason:        reason,
		OccurredAt:    now,
	})
	if err := s.changes.Publish(ctx, cache.Change{Entity: "transaction", ID: tx.ID, Status: string(models.StatusDisputed)}); err != nil {
		s.logger.WarnContext(ctx, "change publish failed", "transaction_id", tx.ID, "error", err)
	}
	s.logger.InfoContext(ctx, "dispute opened", "dispute_id", d.ID, "transaction_id", tx.ID, "opened_by", userID)
	return d, nil
}

// Resolve settles an open dispute through the escrow controller: release pays
// the seller, refund returns funds to the buyer. Either closes the dispute.
func (s *Service) Resolve(ctx context.Context, disputeID string, outcome Outcome, operatorID, note string) (tx *models.Transaction, err error) {
	start := s.now()
	defer func() { s.observe(OpResolve, start, err) }()

	if !outcome.Valid() {
		return nil, apperrors.Validation("outcome", "must be release or refund")
	}
	d, err := s.Get(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if d.Status != models.DisputeOpen {
		return nil, apperrors.InvalidTransitionReason(string(d.Status), string(models.DisputeResolved),
			"dispute is already resolved")
	}

	note = strings.TrimSpace(note)
	switch outcome {
	case OutcomeRelease:
		acct, err := s.store.Escrows.FindByTransactionID(ctx, d.TransactionID)
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, apperrors.Integrity("disputed transaction has no escrow account")
		}
		if err != nil {
			return nil, err
		}
		proof := note
		if proof == "" {
			proof = "dispute " + d.ID + " resolved for seller"
		}
		res, err := s.resolver.Release(ctx, acct.ID, operatorID, proof)
		if err != nil {
			return nil, err
		}
		return res.Transaction, nil
	default:
		if note == "" {
			note = d.Reason
		}
		return s.resolver.Refund(ctx, d.TransactionID, note, operatorID)
	}
}

func (s *Service) Get(ctx context.Context, disputeID string) (*models.Dispute, error) {
	d, err := s.store.Disputes.FindByID(ctx, disputeID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, apperrors.DisputeNotFound(disputeID)
	}
	return d, err
}

// ListForTransaction returns a transaction's disputes, visible to its
// participants. Operators use the admin listing instead.
func (s *Service) ListForTransaction(ctx context.Context, txID, actorID string) ([]models.Dispute, error) {
	tx, err := s.store.Transactions.FindByID(ctx, txID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, apperrors.TransactionNotFound(txID)
	}
	if err != nil {
		return nil, err
	}
	if !tx.IsParticipant(actorID) {
		return nil, apperrors.Unauthorized("only the buyer or seller can view these disputes")
	}
	return s.store.Disputes.ListByTransaction(ctx, txID)
}

// ListOpen pages through unresolved disputes, oldest first.
func (s *Service) ListOpen(ctx context.Context, limit, offset int) ([]models.Dispute, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.Disputes.ListOpen(ctx, limit, offset)
}

func (s *Service) observe(op string, start time.Time, err error) {
	s.metrics.RecordOperationDuration(op, s.now().Sub(start))
	result := "ok"
	if err != nil {
		if result = string(apperrors.KindOf(err)); result == "" {
			result = "error"
		}
	}
	s.metrics.RecordOperationResult(op, result)
}
