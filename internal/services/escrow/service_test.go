package escrow_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"campusmarket/internal/config"
	apperrors "campusmarket/internal/errors"
	"campusmarket/internal/logging"
	"campusmarket/internal/metrics"
	"campusmarket/internal/models"
	"campusmarket/internal/repositories"
	"campusmarket/internal/repositories/repotest"
	"campusmarket/internal/services/audit"
	"campusmarket/internal/services/escrow"
	"campusmarket/internal/services/notification"
	"campusmarket/internal/services/transaction"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	buyerID  = "user-buyer"
	sellerID = "user-seller"
)

type recordingEmitter struct {
	mu     sync.Mutex
	events []notification.Event
}

func (r *recordingEmitter) Notify(_ context.Context, e notification.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingEmitter) types() []notification.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notification.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	store    *repositories.Store
	recorder *audit.Recorder
	txns     *transaction.Service
	escrow   *escrow.Service
	notes    *recordingEmitter
	opID     string
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := repotest.NewStore(t)
	logger := logging.Discard()

	op := &models.Operator{Email: "ops@campus.test", Name: "Ops", PasswordHash: "x", Role: models.RoleAdmin, Active: true}
	require.NoError(t, store.Operators.Create(context.Background(), op))

	f := &fixture{
		store:    store,
		recorder: audit.NewRecorder(store.DB(), logger, metrics.Noop{}),
		notes:    &recordingEmitter{},
		opID:     op.ID,
		now:      time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }
	authz := escrow.NewOperatorAuthorizer(store.Operators, config.SystemActorID)
	f.txns = transaction.NewService(store, nil, f.recorder, authz, transaction.DefaultConfig(),
		transaction.WithLogger(logger), transaction.WithClock(clock))
	f.escrow = escrow.NewService(store, f.recorder, authz, f.notes, escrow.DefaultConfig(),
		escrow.WithLogger(logger), escrow.WithClock(clock))
	return f
}

func (f *fixture) initiate(t *testing.T, amount string) *models.Transaction {
	t.Helper()
	yes := true
	tx, err := f.txns.Initiate(context.Background(), transaction.InitiateRequest{
		BuyerID:       buyerID,
		SellerID:      sellerID,
		ListingID:     "listing-1",
		Amount:        decimal.RequireFromString(amount),
		PaymentMethod: models.PaymentMethodBankTransfer,
		Purchasable:   &yes,
	})
	require.NoError(t, err)
	return tx
}

func (f *fixture) held(t *testing.T, amount string) (*models.Transaction, *models.EscrowAccount) {
	t.Helper()
	tx := f.initiate(t, amount)
	e, err := f.escrow.Hold(context.Background(), escrow.HoldRequest{
		TransactionID:    tx.ID,
		PaymentConfirmed: true,
		PaymentReference: "ref-" + tx.ID,
		ActorID:          f.opID,
	})
	require.NoError(t, err)
	return tx, e
}

func (f *fixture) disputeDirectly(t *testing.T, txID string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.store.Transactions.CompareAndSwapStatus(ctx, txID,
		[]models.Status{models.StatusEscrowHeld},
		repositories.StatusUpdate{To: models.StatusDisputed, DisputeReason: "item not as described"}))
	require.NoError(t, f.store.Disputes.Create(ctx, &models.Dispute{
		TransactionID: txID, OpenedBy: buyerID, Reason: "item not as described", Status: models.DisputeOpen, OpenedAt: f.now,
	}))
}

func TestHoldMovesPendingIntoEscrow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tx, e := f.held(t, "10000")

	assert.Equal(t, models.EscrowHeld, e.Status)
	assert.True(t, e.Amount.Equal(tx.Amount))
	assert.Equal(t, "9500.00", e.SellerAmount.StringFixed(2))
	assert.Equal(t, "500.00", e.AdminCommission.StringFixed(2))
	assert.True(t, e.ReleaseDate.Equal(tx.EscrowReleaseDate))

	got, err := f.txns.Get(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusEscrowHeld, got.Status)
	assert.Equal(t, "ref-"+tx.ID, got.PaymentReference)

	_, err = f.escrow.Hold(ctx, escrow.HoldRequest{TransactionID: tx.ID, PaymentConfirmed: true, ActorID: f.opID})
	assert.ErrorIs(t, err, apperrors.ErrAlreadyHeld)
}

func TestHoldFromApproved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tx := f.initiate(t, "2500")
	_, err := f.txns.Approve(ctx, tx.ID, f.opID)
	require.NoError(t, err)

	_, err = f.escrow.Hold(ctx, escrow.HoldRequest{TransactionID: tx.ID, PaymentConfirmed: true, ActorID: config.SystemActorID})
	require.NoError(t, err)
}

func TestHoldRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cancelled := f.initiate(t, "100")
	_, err := f.txns.Cancel(ctx, cancelled.ID, buyerID)
	require.NoError(t, err)
	pending := f.initiate(t, "100")

	tests := []struct {
		name string
		req  escrow.HoldRequest
		kind apperrors.Kind
	}{
		{"missing transaction", escrow.HoldRequest{TransactionID: "nope", PaymentConfirmed: true, ActorID: f.opID}, apperrors.KindNotFound},
		{"terminal status", escrow.HoldRequest{TransactionID: cancelled.ID, PaymentConfirmed: true, ActorID: f.opID}, apperrors.KindInvalidTransition},
		{"buyer cannot hold", escrow.HoldRequest{TransactionID: pending.ID, PaymentConfirmed: true, ActorID: buyerID}, apperrors.KindUnauthorized},
		{"unconfirmed payment", escrow.HoldRequest{TransactionID: pending.ID, PaymentConfirmed: false, ActorID: f.opID}, apperrors.KindValidation},
		{"empty id", escrow.HoldRequest{PaymentConfirmed: true, ActorID: f.opID}, apperrors.KindValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.escrow.Hold(ctx, tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperrors.KindOf(err))
		})
	}

	_, err = f.store.Escrows.FindByTransactionID(ctx, pending.ID)
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestHoldDetectsTamperedAmounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tx := f.initiate(t, "10000")
	require.NoError(t, f.store.DB().Model(&models.Transaction{}).
		Where("id = ?", tx.ID).Update("seller_amount", decimal.NewFromInt(9900)).Error)

	_, err := f.escrow.Hold(ctx, escrow.HoldRequest{TransactionID: tx.ID, PaymentConfirmed: true, ActorID: f.opID})
	assert.ErrorIs(t, err, apperrors.ErrIntegrity)

	entries, err := f.store.Audit.ListByEntity(ctx, models.EntityTransaction, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AuditEscrowIntegrityFailure, entries[len(entries)-1].Action)
}

func TestReleaseCreatesTwoPayouts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tx, e := f.held(t, "10000")

	res, err := f.escrow.Release(ctx, e.ID, f.opID, "proof-abc")
	require.NoError(t, err)

	assert.Equal(t, models.StatusCompleted, res.Transaction.Status)
	require.NotNil(t, res.Transaction.CompletedAt)
	assert.Equal(t, models.EscrowReleased, res.Escrow.Status)
	assert.Equal(t, "proof-abc", res.Escrow.ConfirmationProof)
	assert.Equal(t, f.opID, res.Escrow.ReleasedBy)
	require.NotNil(t, res.Escrow.ReleasedAt)

	payouts, err := f.store.Payouts.ListByTransaction(ctx, tx.ID)
	require.NoError(t, err)
	require.Len(t, payouts, 2)
	byType := map[models.PayoutType]models.PayoutRecord{}
	for _, p := range payouts {
		byType[p.Type] = p
		assert.Equal(t, models.PayoutPending, p.Status)
	}
	assert.Equal(t, "9500.00", byType[models.PayoutSeller].Amount.StringFixed(2))
	assert.Equal(t, sellerID, byType[models.PayoutSeller].Recipient)
	assert.Equal(t, "500.00", byType[models.PayoutAdminCommission].Amount.StringFixed(2))
	assert.Equal(t, escrow.PlatformRecipient, byType[models.PayoutAdminCommission].Recipient)

	assert.Contains(t, f.notes.types(), notification.EventPayoutPending)

	_, err = f.escrow.Release(ctx, e.ID, f.opID, "proof-abc")
	assert.ErrorIs(t, err, apperrors.ErrIntegrity)
	payouts, err = f.store.Payouts.ListByTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Len(t, payouts, 2)
}

func TestReleaseRequiresOperator(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, e := f.held(t, "10000")

	for _, actor := range []string{buyerID, sellerID, "", "someone"} {
		_, err := f.escrow.Release(ctx, e.ID, actor, "proof")
		assert.ErrorIs(t, err, apperrors.ErrUnauthorized, "actor %q", actor)
	}

	got, err := f.store.Escrows.FindByID(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EscrowHeld, got.Status)

	entries, err := f.store.Audit.ListByEntity(ctx, models.EntityEscrow, e.ID)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, models.AuditEscrowReleaseUnauthorized, entries[0].Action)
}

func TestReleaseInactiveOperatorRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, e := f.held(t, "10000")
	require.NoError(t, f.store.DB().Model(&models.Operator{}).Where("id = ?", f.opID).Update("active", false).Error)

	_, err := f.escrow.Release(ctx, e.ID, f.opID, "proof")
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestReleaseUnknownEscrow(t *testing.T) {
	f := newFixture(t)
	_, err := f.escrow.Release(context.Background(), "missing", f.opID, "proof")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestReleaseResolvesDispute(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tx, e := f.held(t, "4000")
	f.disputeDirectly(t, tx.ID)

	res, err := f.escrow.Release(ctx, e.ID, f.opID, "seller shipped")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, res.Transaction.Status)

	_, err = f.store.Disputes.FindOpenByTransaction(ctx, tx.ID)
	assert.ErrorIs(t, err, repositories.ErrNotFound)
	disputes, err := f.store.Disputes.ListByTransaction(ctx, tx.ID)
	require.NoError(t, err)
	require.Len(t, disputes, 1)
	assert.Equal(t, models.DisputeResolved, disputes[0].Status)
	assert.Equal(t, f.opID, disputes[0].ResolvedBy)
}

func TestConcurrentReleaseHasOneWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tx, e := f.held(t, "10000")

	const callers = 4
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.escrow.Release(ctx, e.ID, f.opID, "proof")
		}(i)
	}
	wg.Wait()

	var ok int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, apperrors.ErrIntegrity)
	}
	assert.Equal(t, 1, ok)

	payouts, err := f.store.Payouts.ListByTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Len(t, payouts, 2)
}

func TestReleaseRacingRefundHasOneWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		tx, e := f.held(t, "10000")

		var wg sync.WaitGroup
		var releaseErr, refundErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, releaseErr = f.escrow.Release(ctx, e.ID, f.opID, "proof")
		}()
		go func() {
			defer wg.Done()
			_, refundErr = f.escrow.Refund(ctx, tx.ID, "buyer cancelled", f.opID)
		}()
		wg.Wait()

		require.True(t, (releaseErr == nil) != (refundErr == nil),
			"release: %v, refund: %v", releaseErr, refundErr)

		got, err := f.store.Transactions.FindByID(ctx, tx.ID)
		require.NoError(t, err)
		acct, err := f.store.Escrows.FindByID(ctx, e.ID)
		require.NoError(t, err)
		payouts, err := f.store.Payouts.ListByTransaction(ctx, tx.ID)
		require.NoError(t, err)

		if releaseErr == nil {
			assert.Contains(t, []apperrors.Kind{apperrors.KindIntegrity, apperrors.KindInvalidTransition}, apperrors.KindOf(refundErr))
			assert.Equal(t, models.StatusCompleted, got.Status)
			assert.Equal(t, models.EscrowReleased, acct.Status)
			assert.Len(t, payouts, 2)
		} else {
			assert.ErrorIs(t, releaseErr, apperrors.ErrIntegrity)
			assert.Equal(t, models.StatusRefunded, got.Status)
			assert.Equal(t, models.EscrowRefunded, acct.Status)
			assert.Empty(t, payouts)
		}
	}
}

func TestConfirmDelivery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tx, _ := f.held(t, "600")

	_, err := f.escrow.ConfirmDelivery(ctx, tx.ID, sellerID)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

	res, err := f.escrow.ConfirmDelivery(ctx, tx.ID, buyerID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, res.Transaction.Status)
	assert.Equal(t, escrow.ProofBuyerConfirmed, res.Escrow.ConfirmationProof)
	assert.Equal(t, buyerID, res.Escrow.ReleasedBy)
	assert.Len(t, res.Payouts, 2)

	_, err = f.escrow.ConfirmDelivery(ctx, tx.ID, buyerID)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
}

func TestConfirmDeliveryRejectsDisputed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tx, _ := f.held(t, "10000")
	f.disputeDirectly(t, tx.ID)

	_, err := f.escrow.ConfirmDelivery(ctx, tx.ID, buyerID)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)

	got, err := f.txns.Get(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDisputed, got.Status)
}

func TestConfirmDeliveryBeforeHold(t *testing.T) {
	f := newFixture(t)
	tx := f.initiate(t, "100")
	_, err := f.escrow.ConfirmDelivery(context.Background(), tx.ID, buyerID)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
}

func TestRefundDisputed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tx, e := f.held(t, "10000")
	f.disputeDirectly(t, tx.ID)

	got, err := f.escrow.Refund(ctx, tx.ID, "counterfeit item", f.opID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRefunded, got.Status)
	assert.Equal(t, "counterfeit item", got.DisputeReason)

	acct, err := f.store.Escrows.FindByID(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EscrowRefunded, acct.Status)
	require.NotNil(t, acct.RefundedAt)

	payouts, err := f.store.Payouts.ListByTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Empty(t, payouts)

	_, err = f.store.Disputes.FindOpenByTransaction(ctx, tx.ID)
	assert.ErrorIs(t, err, repositories.ErrNotFound)
	assert.Contains(t, f.notes.types(), notification.EventRefundProcessed)

	_, err = f.escrow.Release(ctx, e.ID, f.opID, "late")
	assert.ErrorIs(t, err, apperrors.ErrIntegrity)
}

func TestRefundHeldKeepsDisputeReasonEmpty(t *testing.T) {
	f := newFixture(t)
	tx, _ := f.held(t, "300")

	got, err := f.escrow.Refund(context.Background(), tx.ID, "seller cancelled", f.opID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRefunded, got.Status)
	assert.Empty(t, got.DisputeReason)
}

func TestRefundRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	held, _ := f.held(t, "300")
	pending := f.initiate(t, "300")

	tests := []struct {
		name   string
		txID   string
		reason string
		actor  string
		kind   apperrors.Kind
	}{
		{"empty reason", held.ID, "  ", f.opID, apperrors.KindValidation},
		{"buyer cannot refund", held.ID, "changed mind", buyerID, apperrors.KindUnauthorized},
		{"pending transaction", pending.ID, "changed mind", f.opID, apperrors.KindInvalidTransition},
		{"unknown transaction", "missing", "changed mind", f.opID, apperrors.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.escrow.Refund(ctx, tt.txID, tt.reason, tt.actor)
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperrors.KindOf(err))
		})
	}
}

func TestOperationsSurviveAuditFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tx := f.initiate(t, "10000")
	require.NoError(t, f.store.DB().Migrator().DropTable(&models.AuditEntry{}))

	e, err := f.escrow.Hold(ctx, escrow.HoldRequest{TransactionID: tx.ID, PaymentConfirmed: true, ActorID: f.opID})
	require.NoError(t, err)
	assert.Equal(t, models.EscrowHeld, e.Status)

	res, err := f.escrow.Release(ctx, e.ID, f.opID, "proof")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, res.Transaction.Status)
}

func TestAuditTrailForLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tx, e := f.held(t, "10000")
	_, err := f.escrow.Release(ctx, e.ID, f.opID, "proof")
	require.NoError(t, err)

	txEntries, err := f.store.Audit.ListByEntity(ctx, models.EntityTransaction, tx.ID)
	require.NoError(t, err)
	actions := make([]models.AuditAction, 0, len(txEntries))
	for _, entry := range txEntries {
		actions = append(actions, entry.Action)
	}
	assert.ElementsMatch(t, []models.AuditAction{models.AuditTransactionCreate, models.AuditEscrowHold}, actions)

	escrowEntries, err := f.store.Audit.ListByEntity(ctx, models.EntityEscrow, e.ID)
	require.NoError(t, err)
	require.Len(t, escrowEntries, 1)
	assert.Equal(t, models.AuditEscrowRelease, escrowEntries[0].Action)
	assert.Equal(t, f.opID, escrowEntries[0].PerformedBy)
}
