package transaction_test

import (
	"context"
	"testing"
	"time"

	apperrors "campusmarket/internal/errors"
	"campusmarket/internal/logging"
	"campusmarket/internal/metrics"
	"campusmarket/internal/models"
	"campusmarket/internal/repositories"
	"campusmarket/internal/repositories/repotest"
	"campusmarket/internal/services/audit"
	"campusmarket/internal/services/listing"
	"campusmarket/internal/services/transaction"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const operatorID = "op-1"

type staticAuthorizer map[string]bool

func (a staticAuthorizer) IsReleaseAuthority(_ context.Context, actorID string) (bool, error) {
	return a[actorID], nil
}

var fixedNow = time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)

func newService(t *testing.T) (*transaction.Service, *repositories.Store) {
	t.Helper()
	store := repotest.NewStore(t)
	logger := logging.Discard()
	svc := transaction.NewService(
		store,
		listing.NewGormStore(store.Listings),
		audit.NewRecorder(store.DB(), logger, metrics.Noop{}),
		staticAuthorizer{operatorID: true},
		transaction.DefaultConfig(),
		transaction.WithLogger(logger),
		transaction.WithClock(func() time.Time { return fixedNow }),
	)
	return svc, store
}

func seedListing(t *testing.T, store *repositories.Store, id, seller, price string) {
	t.Helper()
	require.NoError(t, store.Listings.Create(context.Background(), &models.Listing{
		ID:       id,
		SellerID: seller,
		Title:    "Calculus textbook",
		Price:    decimal.RequireFromString(price),
		Status:   models.ListingActive,
	}))
}

func initiateReq(amount string) transaction.InitiateRequest {
	return transaction.InitiateRequest{
		BuyerID:       "U1",
		SellerID:      "U2",
		ListingID:     "L1",
		Amount:        decimal.RequireFromString(amount),
		PaymentMethod: models.PaymentMethodBankTransfer,
	}
}

func TestInitiateSplitsCommission(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	seedListing(t, store, "L1", "U2", "10000")

	tx, err := svc.Initiate(ctx, initiateReq("10000"))
	require.NoError(t, err)

	assert.Equal(t, models.StatusPending, tx.Status)
	assert.Equal(t, "500.00", tx.AdminFee.StringFixed(2))
	assert.Equal(t, "9500.00", tx.SellerAmount.StringFixed(2))
	assert.True(t, tx.EscrowReleaseDate.Equal(fixedNow.Add(7*24*time.Hour)))
	assert.NotEmpty(t, tx.IntegrityHash)
	assert.NoError(t, transaction.VerifyIntegrity(tx))

	l, err := store.Listings.FindByID(ctx, "L1")
	require.NoError(t, err)
	assert.Equal(t, models.ListingPending, l.Status)

	entries, err := store.Audit.ListByEntity(ctx, models.EntityTransaction, tx.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.AuditTransactionCreate, entries[0].Action)
	assert.Equal(t, "U1", entries[0].PerformedBy)
}

func TestInitiateRejections(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	seedListing(t, store, "L1", "U2", "10000")
	seedListing(t, store, "L-sold", "U2", "10000")
	require.NoError(t, store.Listings.UpdateStatus(ctx, "L-sold", models.ListingSold))

	tests := []struct {
		name   string
		mutate func(*transaction.InitiateRequest)
		kind   apperrors.Kind
	}{
		{"self purchase", func(r *transaction.InitiateRequest) { r.SellerID = "U1" }, apperrors.KindCreation},
		{"missing buyer", func(r *transaction.InitiateRequest) { r.BuyerID = " " }, apperrors.KindValidation},
		{"zero amount", func(r *transaction.InitiateRequest) { r.Amount = decimal.Zero }, apperrors.KindValidation},
		{"negative amount", func(r *transaction.InitiateRequest) { r.Amount = decimal.NewFromInt(-5) }, apperrors.KindValidation},
		{"sub-minor amount", func(r *transaction.InitiateRequest) { r.Amount = decimal.RequireFromString("10000.001") }, apperrors.KindValidation},
		{"unknown method", func(r *transaction.InitiateRequest) { r.PaymentMethod = "cash" }, apperrors.KindValidation},
		{"unknown listing", func(r *transaction.InitiateRequest) { r.ListingID = "L404" }, apperrors.KindCreation},
		{"sold listing", func(r *transaction.InitiateRequest) { r.ListingID = "L-sold" }, apperrors.KindCreation},
		{"wrong seller", func(r *transaction.InitiateRequest) { r.SellerID = "U3" }, apperrors.KindCreation},
		{"price mismatch", func(r *transaction.InitiateRequest) { r.Amount = decimal.NewFromInt(9000) }, apperrors.KindCreation},
		{"caller says unavailable", func(r *transaction.InitiateRequest) { no := false; r.Purchasable = &no }, apperrors.KindCreation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := initiateReq("10000")
			tt.mutate(&req)
			_, err := svc.Initiate(ctx, req)
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperrors.KindOf(err))
		})
	}

	_, total, err := store.Transactions.ListByUser(ctx, "U1", repositories.HistoryAll, 10, 0)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestSplitFeeAlwaysSums(t *testing.T) {
	rate := decimal.RequireFromString("0.05")
	amounts := []string{"0.01", "0.09", "0.10", "0.30", "1", "1.05", "19.99", "33.33", "250.50", "9999.99", "10000", "123456.78"}
	for _, a := range amounts {
		amount := decimal.RequireFromString(a)
		fee, seller := transaction.SplitFee(amount, rate)
		assert.True(t, fee.Add(seller).Equal(amount), a)
		assert.LessOrEqual(t, fee.Exponent(), int32(0), a)
		assert.GreaterOrEqual(t, fee.Exponent(), int32(-2), a)
		assert.False(t, fee.IsNegative(), a)
	}

	for cents := int64(1); cents <= 5000; cents += 7 {
		amount := decimal.New(cents, -2)
		fee, seller := transaction.SplitFee(amount, rate)
		require.True(t, fee.Add(seller).Equal(amount), amount.String())
	}
}

func TestSplitFeeRoundsHalfEven(t *testing.T) {
	rate := decimal.RequireFromString("0.05")
	// 0.50 * 5% = 0.025 rounds to 0.02; 0.70 * 5% = 0.035 rounds to 0.04.
	fee, _ := transaction.SplitFee(decimal.RequireFromString("0.50"), rate)
	assert.Equal(t, "0.02", fee.StringFixed(2))
	fee, _ = transaction.SplitFee(decimal.RequireFromString("0.70"), rate)
	assert.Equal(t, "0.04", fee.StringFixed(2))
}

func TestApproveAndCancel(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	seedListing(t, store, "L1", "U2", "10000")
	tx, err := svc.Initiate(ctx, initiateReq("10000"))
	require.NoError(t, err)

	_, err = svc.Approve(ctx, tx.ID, "U1")
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

	approved, err := svc.Approve(ctx, tx.ID, operatorID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, approved.Status)

	_, err = svc.Approve(ctx, tx.ID, operatorID)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)

	_, err = svc.Cancel(ctx, tx.ID, "stranger")
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

	cancelled, err := svc.Cancel(ctx, tx.ID, "U2")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)

	l, err := store.Listings.FindByID(ctx, "L1")
	require.NoError(t, err)
	assert.Equal(t, models.ListingActive, l.Status)

	_, err = svc.Cancel(ctx, tx.ID, "U1")
	var te *apperrors.TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, string(models.StatusCancelled), te.From)
}

func TestGetForActor(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	seedListing(t, store, "L1", "U2", "10000")
	tx, err := svc.Initiate(ctx, initiateReq("10000"))
	require.NoError(t, err)

	for _, actor := range []string{"U1", "U2", operatorID} {
		_, err := svc.GetForActor(ctx, tx.ID, actor)
		assert.NoError(t, err, actor)
	}
	_, err = svc.GetForActor(ctx, tx.ID, "U9")
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	_, err = svc.Get(ctx, "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestHistory(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	seedListing(t, store, "L1", "U2", "100")
	seedListing(t, store, "L2", "U1", "200")

	_, err := svc.Initiate(ctx, transaction.InitiateRequest{BuyerID: "U1", SellerID: "U2", ListingID: "L1", Amount: decimal.NewFromInt(100), PaymentMethod: models.PaymentMethodPaystack})
	require.NoError(t, err)
	_, err = svc.Initiate(ctx, transaction.InitiateRequest{BuyerID: "U2", SellerID: "U1", ListingID: "L2", Amount: decimal.NewFromInt(200), PaymentMethod: models.PaymentMethodFlutterwave})
	require.NoError(t, err)

	tests := []struct {
		role repositories.HistoryRole
		want int64
	}{
		{repositories.HistoryAll, 2},
		{"", 2},
		{repositories.HistoryBuying, 1},
		{repositories.HistorySelling, 1},
	}
	for _, tt := range tests {
		_, total, err := svc.History(ctx, transaction.HistoryQuery{UserID: "U1", Role: tt.role, Limit: 500})
		require.NoError(t, err)
		assert.Equal(t, tt.want, total, string(tt.role))
	}

	_, _, err = svc.History(ctx, transaction.HistoryQuery{UserID: "U1", Role: "lending"})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestAdminRevenue(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	_, err := svc.AdminRevenue(ctx, fixedNow, fixedNow)
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	seedListing(t, store, "L1", "U2", "10000")
	tx, err := svc.Initiate(ctx, initiateReq("10000"))
	require.NoError(t, err)
	completedAt := fixedNow.Add(time.Hour)
	require.NoError(t, store.Transactions.CompareAndSwapStatus(ctx, tx.ID, []models.Status{models.StatusPending},
		repositories.StatusUpdate{To: models.StatusEscrowHeld}))
	require.NoError(t, store.Transactions.CompareAndSwapStatus(ctx, tx.ID, []models.Status{models.StatusEscrowHeld},
		repositories.StatusUpdate{To: models.StatusCompleted, CompletedAt: &completedAt}))

	rev, err := svc.AdminRevenue(ctx, fixedNow, fixedNow.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "500.00", rev.Total.StringFixed(2))
	assert.Equal(t, int64(1), rev.Count)
	assert.Equal(t, "NGN", rev.Currency)
}

func TestReceipt(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	seedListing(t, store, "L1", "U2", "10000")
	tx, err := svc.Initiate(ctx, initiateReq("10000"))
	require.NoError(t, err)

	r, err := svc.Receipt(ctx, tx.ID, "U1")
	require.NoError(t, err)
	assert.Equal(t, tx.ID, r.TransactionID)
	assert.Nil(t, r.Escrow)
	assert.Empty(t, r.Payouts)

	_, err = svc.Receipt(ctx, tx.ID, "U7")
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestVerifyIntegrityDetectsTampering(t *testing.T) {
	tx := &models.Transaction{
		ListingID:    "L1",
		SellerID:     "U2",
		BuyerID:      "U1",
		Amount:       decimal.NewFromInt(10000),
		AdminFee:     decimal.NewFromInt(500),
		SellerAmount: decimal.NewFromInt(9500),
	}
	tx.IntegrityHash = transaction.ComputeHash(tx)
	require.NoError(t, transaction.VerifyIntegrity(tx))

	tampered := *tx
	tampered.SellerID = "U3"
	assert.ErrorIs(t, transaction.VerifyIntegrity(&tampered), apperrors.ErrIntegrity)

	unbalanced := *tx
	unbalanced.AdminFee = decimal.NewFromInt(400)
	assert.ErrorIs(t, transaction.VerifyIntegrity(&unbalanced), apperrors.ErrIntegrity)
}
