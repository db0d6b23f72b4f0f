package escrow_test

import (
	"context"
	"testing"
	"time"

	"campusmarket/internal/config"
	"campusmarket/internal/models"
	"campusmarket/internal/services/escrow"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type busyLease struct{ acquired int }

func (b *busyLease) Acquire(context.Context, string, time.Duration) (bool, error) {
	b.acquired++
	return false, nil
}

func (b *busyLease) Release(context.Context, string) error { return nil }

func sweepConfig() config.Escrow {
	return config.Escrow{
		SweepInterval: 10 * time.Millisecond,
		SweepBatch:    10,
		SystemActorID: config.SystemActorID,
	}
}

func TestSweepOnceReleasesExpiredEscrow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	expired, expiredEscrow := f.held(t, "10000")
	disputed, _ := f.held(t, "800")
	f.disputeDirectly(t, disputed.ID)

	f.now = f.now.Add(7*24*time.Hour + time.Minute)
	fresh, _ := f.held(t, "1200")

	sweeper := escrow.NewSweeper(f.escrow, f.store, nil, sweepConfig())
	stats, err := sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Due)
	assert.Equal(t, 1, stats.Released)

	got, err := f.txns.Get(ctx, expired.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)

	acct, err := f.store.Escrows.FindByID(ctx, expiredEscrow.ID)
	require.NoError(t, err)
	assert.Equal(t, escrow.ProofAutoRelease, acct.ConfirmationProof)
	assert.Equal(t, config.SystemActorID, acct.ReleasedBy)

	for id, want := range map[string]models.Status{disputed.ID: models.StatusDisputed, fresh.ID: models.StatusEscrowHeld} {
		got, err := f.txns.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, got.Status)
	}

	stats, err = sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Due)
}

func TestSweepOnceSetsAsideTamperedEscrow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tampered, _ := f.held(t, "10000")
	healthy, _ := f.held(t, "2000")
	require.NoError(t, f.store.DB().Model(&models.Transaction{}).
		Where("id = ?", tampered.ID).
		Updates(map[string]interface{}{
			"seller_amount":       decimal.NewFromInt(9900),
			"escrow_release_date": tampered.EscrowReleaseDate.Add(-time.Hour),
		}).Error)
	f.now = f.now.Add(8 * 24 * time.Hour)

	cfg := sweepConfig()
	cfg.SweepBatch = 1
	sweeper := escrow.NewSweeper(f.escrow, f.store, nil, cfg)

	stats, err := sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, escrow.SweepStats{Due: 1, Failed: 1}, stats)

	stats, err = sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, escrow.SweepStats{Due: 1, Released: 1}, stats)

	for i := 0; i < 3; i++ {
		stats, err = sweeper.SweepOnce(ctx)
		require.NoError(t, err)
		assert.Zero(t, stats.Due)
	}

	for id, want := range map[string]models.Status{tampered.ID: models.StatusEscrowHeld, healthy.ID: models.StatusCompleted} {
		got, err := f.store.Transactions.FindByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, got.Status)
	}

	entries, err := f.store.Audit.ListByEntity(ctx, models.EntityTransaction, tampered.ID)
	require.NoError(t, err)
	var failures int
	for _, entry := range entries {
		if entry.Action == models.AuditEscrowIntegrityFailure {
			failures++
		}
	}
	assert.Equal(t, 1, failures)
}

func TestSweeperRunStopsWithContext(t *testing.T) {
	f := newFixture(t)
	tx, _ := f.held(t, "500")
	f.now = f.now.Add(8 * 24 * time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		escrow.NewSweeper(f.escrow, f.store, nil, sweepConfig()).Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		got, err := f.store.Transactions.FindByID(context.Background(), tx.ID)
		return err == nil && got.Status == models.StatusCompleted
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestSweeperSkipsWhenLeaseHeldElsewhere(t *testing.T) {
	f := newFixture(t)
	tx, _ := f.held(t, "500")
	f.now = f.now.Add(8 * 24 * time.Hour)

	lease := &busyLease{}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	escrow.NewSweeper(f.escrow, f.store, lease, sweepConfig()).Run(ctx)

	assert.Positive(t, lease.acquired)
	got, err := f.txns.Get(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusEscrowHeld, got.Status)
}
