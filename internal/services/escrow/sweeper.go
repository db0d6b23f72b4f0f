package escrow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"campusmarket/internal/config"
	apperrors "campusmarket/internal/errors"
	"campusmarket/internal/metrics"
	"campusmarket/internal/repositories"
	"campusmarket/internal/repositories/cache"
)

const sweeperLeaseKey = "escrow:sweeper"

// Sweeper auto-releases escrows whose release date has passed. It runs the
// same Release path as an operator, acting as the system identity.
type Sweeper struct {
	escrow   *Service
	txns     repositories.TransactionRepository
	escrows  repositories.EscrowRepository
	lease    cache.Lease
	actorID  string
	interval time.Duration
	batch    int
	logger   *slog.Logger
	metrics  metrics.Collector
	nowFn    func() time.Time
}

// SweepStats summarises one pass.
type SweepStats struct {
	Due      int
	Released int
	Skipped  int
	Failed   int
}

// NewSweeper wires a sweeper to the escrow service. lease may be nil when a
// single instance runs.
func NewSweeper(svc *Service, store *repositories.Store, lease cache.Lease, cfg config.Escrow) *Sweeper {
	if lease == nil {
		lease = cache.LocalLease{}
	}
	actor := cfg.SystemActorID
	if actor == "" {
		actor = config.SystemActorID
	}
	return &Sweeper{
		escrow:   svc,
		txns:     store.Transactions,
		escrows:  store.Escrows,
		lease:    lease,
		actorID:  actor,
		interval: cfg.SweepInterval,
		batch:    cfg.SweepBatch,
		logger:   svc.logger,
		metrics:  svc.metrics,
		nowFn:    svc.now,
	}
}

// Run sweeps on every tick until ctx is cancelled.
func (w *Sweeper) Run(ctx context.Context) {
	interval := w.interval
	if interval <= 0 {
		interval = config.DefaultSweepInterval
	}
	w.logger.Info("escrow sweeper started", "interval", interval.String())
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("escrow sweeper stopped")
			return
		case <-ticker.C:
			w.tick(ctx, interval)
		}
	}
}

func (w *Sweeper) tick(ctx context.Context, ttl time.Duration) {
	ok, err := w.lease.Acquire(ctx, sweeperLeaseKey, ttl)
	if err != nil {
		w.logger.WarnContext(ctx, "sweeper lease unavailable", "error", err)
		return
	}
	if !ok {
		return
	}
	defer func() {
		if err := w.lease.Release(context.WithoutCancel(ctx), sweeperLeaseKey); err != nil {
			w.logger.WarnContext(ctx, "sweeper lease release failed", "error", err)
		}
	}()

	stats, err := w.SweepOnce(ctx)
	if err != nil {
		w.logger.ErrorContext(ctx, "escrow sweep failed", "error", err)
		return
	}
	if stats.Due > 0 {
		w.logger.InfoContext(ctx, "escrow sweep finished",
			"due", stats.Due, "released", stats.Released, "skipped", stats.Skipped, "failed", stats.Failed)
	}
}

// SweepOnce releases one batch of expired escrows. A transaction that moved on
// since it was listed (disputed, refunded, already released) is skipped. One
// that fails verification counts as failed and is not listed again; an
// operator has to settle it.
func (w *Sweeper) SweepOnce(ctx context.Context) (SweepStats, error) {
	batch := w.batch
	if batch <= 0 {
		batch = config.DefaultSweepBatch
	}
	due, err := w.txns.ListDueForRelease(ctx, w.nowFn().UTC(), batch)
	if err != nil {
		return SweepStats{}, err
	}

	stats := SweepStats{Due: len(due)}
	for _, tx := range due {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		e, err := w.escrows.FindByTransactionID(ctx, tx.ID)
		if errors.Is(err, repositories.ErrNotFound) {
			w.logger.ErrorContext(ctx, "escrow_held transaction has no escrow account", "transaction_id", tx.ID)
			stats.Failed++
			w.metrics.RecordSweeperRelease("failed")
			continue
		}
		if err != nil {
			return stats, err
		}

		_, err = w.escrow.Release(ctx, e.ID, w.actorID, ProofAutoRelease)
		var verr verificationError
		switch kind := apperrors.KindOf(err); {
		case err == nil:
			stats.Released++
			w.metrics.RecordSweeperRelease("released")
		case errors.As(err, &verr):
			stats.Failed++
			w.metrics.RecordSweeperRelease("failed")
			w.logger.ErrorContext(ctx, "sweeper left escrow for manual review", "escrow_id", e.ID, "error", err)
		case kind == apperrors.KindIntegrity || kind == apperrors.KindInvalidTransition || kind == apperrors.KindNotFound:
			stats.Skipped++
			w.metrics.RecordSweeperRelease("skipped")
			w.logger.InfoContext(ctx, "sweeper skipped escrow", "escrow_id", e.ID, "reason", err.Error())
		default:
			stats.Failed++
			w.metrics.RecordSweeperRelease("failed")
			w.logger.ErrorContext(ctx, "sweeper release failed", "escrow_id", e.ID, "error", err)
		}
	}
	return stats, nil
}
