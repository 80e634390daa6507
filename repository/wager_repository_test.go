package repository

import (
	"context"
	"testing"
	"time"

	"github.com/basedgoydev/greed-farm/domain/entities"
	"github.com/basedgoydev/greed-farm/events"
	"github.com/basedgoydev/greed-farm/repository/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWagerCommitmentRepository(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)

	repo := NewWagerCommitmentRepository(testDB.DB)
	ctx := context.Background()
	wallet := testutil.Wallets[0]

	pending := testutil.CreateTestCommitment(wallet, testutil.Now.Add(5*time.Minute))
	require.NoError(t, repo.Create(ctx, pending))

	t.Run("active lookup honours expiry", func(t *testing.T) {
		active, err := repo.GetActiveByWallet(ctx, wallet, testutil.Now)
		require.NoError(t, err)
		require.NotNil(t, active)
		assert.Equal(t, pending.ID, active.ID)
		assert.Equal(t, pending.SecretSeed, active.SecretSeed)

		active, err = repo.GetActiveByWallet(ctx, wallet, pending.ExpiresAt)
		require.NoError(t, err)
		assert.Nil(t, active)

		active, err = repo.GetActiveByWallet(ctx, testutil.Wallets[1], testutil.Now)
		require.NoError(t, err)
		assert.Nil(t, active)
	})

	t.Run("consumed exactly once", func(t *testing.T) {
		require.NoError(t, repo.MarkConsumed(ctx, pending.ID, testutil.Now))
		assert.ErrorIs(t, repo.MarkConsumed(ctx, pending.ID, testutil.Now), entities.ErrCommitmentConsumed)

		loaded, err := repo.GetByIDForUpdate(ctx, pending.ID)
		require.NoError(t, err)
		assert.True(t, loaded.Consumed)
		require.NotNil(t, loaded.ConsumedAt)

		active, err := repo.GetActiveByWallet(ctx, wallet, testutil.Now)
		require.NoError(t, err)
		assert.Nil(t, active)
	})

	t.Run("delete stale", func(t *testing.T) {
		longExpired := testutil.CreateTestCommitment(wallet, testutil.Now.Add(-time.Hour))
		recentlyExpired := testutil.CreateTestCommitment(wallet, testutil.Now.Add(-time.Minute))
		fresh := testutil.CreateTestCommitment(wallet, testutil.Now.Add(time.Minute))
		for _, c := range []*entities.WagerCommitment{longExpired, recentlyExpired, fresh} {
			require.NoError(t, repo.Create(ctx, c))
		}

		deleted, err := repo.DeleteStale(ctx, testutil.Now.Add(-5*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, int64(2), deleted) // consumed + long expired

		for _, c := range []*entities.WagerCommitment{recentlyExpired, fresh} {
			loaded, err := repo.GetByIDForUpdate(ctx, c.ID)
			require.NoError(t, err)
			assert.NotNil(t, loaded)
		}
	})
}

func TestWagerRecordRepository_WriteOnce(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)

	ctx := context.Background()
	user, err := NewUserRepository(testDB.DB).GetOrCreate(ctx, testutil.Wallets[0])
	require.NoError(t, err)

	repo := NewWagerRecordRepository(testDB.DB)
	commitment := testutil.CreateTestCommitment(user.Wallet, testutil.Now.Add(time.Minute))
	record := testutil.CreateTestWagerRecord(commitment, user.ID, 3)
	require.NoError(t, repo.Create(ctx, record))
	assert.NotZero(t, record.ID)

	t.Run("round trip", func(t *testing.T) {
		loaded, err := repo.GetByID(ctx, record.ID)
		require.NoError(t, err)
		require.NotNil(t, loaded)
		assert.Equal(t, commitment.ID, loaded.CommitmentID)
		assert.Equal(t, entities.RiskHalf, loaded.RiskPercent)
		assert.Equal(t, uint64(600), loaded.PotAfter.Uint64())
		assert.Equal(t, record.ClientSeed, loaded.ClientSeed)

		missing, err := repo.GetByID(ctx, record.ID+100)
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("second record for a commitment is a lost race", func(t *testing.T) {
		duplicate := testutil.CreateTestWagerRecord(commitment, user.ID, 3)
		assert.ErrorIs(t, repo.Create(ctx, duplicate), entities.ErrCommitmentConsumed)
	})

	t.Run("updates and deletes are rejected", func(t *testing.T) {
		_, err := testDB.DB.Exec(ctx, `UPDATE wager_records SET won = TRUE WHERE id = $1`, record.ID)
		assert.Error(t, err)
		_, err = testDB.DB.Exec(ctx, `DELETE FROM wager_records WHERE id = $1`, record.ID)
		assert.Error(t, err)

		records, err := repo.GetByUser(ctx, user.ID, 10)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.False(t, records[0].Won)
	})
}

func TestUnitOfWork_ConcurrentConsumeHasOneWinner(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)
	ctx := context.Background()

	commitment := testutil.CreateTestCommitment(testutil.Wallets[0], testutil.Now.Add(time.Minute))
	require.NoError(t, NewWagerCommitmentRepository(testDB.DB).Create(ctx, commitment))

	factory := NewUnitOfWorkFactory(testDB.DB, events.NewBus())
	first := factory.Create()
	second := factory.Create()
	require.NoError(t, first.Begin(ctx))
	defer first.Rollback()
	require.NoError(t, second.Begin(ctx))
	defer second.Rollback()

	locked, err := first.WagerCommitmentRepository().GetByIDForUpdate(ctx, commitment.ID)
	require.NoError(t, err)
	require.False(t, locked.Consumed)

	secondResult := make(chan error, 1)
	go func() {
		// blocks on the row lock until first commits
		c, err := second.WagerCommitmentRepository().GetByIDForUpdate(ctx, commitment.ID)
		if err != nil {
			secondResult <- err
			return
		}
		if c.Consumed {
			secondResult <- entities.ErrCommitmentConsumed
			return
		}
		secondResult <- second.WagerCommitmentRepository().MarkConsumed(ctx, commitment.ID, testutil.Now)
	}()

	require.NoError(t, first.WagerCommitmentRepository().MarkConsumed(ctx, commitment.ID, testutil.Now))
	require.NoError(t, first.Commit())

	select {
	case err := <-secondResult:
		assert.ErrorIs(t, err, entities.ErrCommitmentConsumed)
	case <-time.After(10 * time.Second):
		t.Fatal("second unit of work never acquired the lock")
	}
}

func TestUnitOfWork_EventsFlushOnlyAfterCommit(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)
	ctx := context.Background()

	bus := events.NewBus()
	received := make(chan events.Event, 4)
	bus.SubscribeAll(func(_ context.Context, e events.Event) {
		received <- e
	})
	factory := NewUnitOfWorkFactory(testDB.DB, bus)

	rolledBack := factory.Create()
	require.NoError(t, rolledBack.Begin(ctx))
	require.NoError(t, rolledBack.EventBus().Publish(events.ClaimCompletedEvent{Wallet: testutil.Wallets[0]}))
	require.NoError(t, rolledBack.Rollback())

	committed := factory.Create()
	require.NoError(t, committed.Begin(ctx))
	require.NoError(t, committed.EventBus().Publish(events.ClaimCompletedEvent{Wallet: testutil.Wallets[1]}))
	require.NoError(t, committed.Commit())

	select {
	case e := <-received:
		assert.Equal(t, testutil.Wallets[1], e.(events.ClaimCompletedEvent).Wallet)
	case <-time.After(5 * time.Second):
		t.Fatal("committed event was not delivered")
	}

	select {
	case e := <-received:
		t.Fatalf("unexpected event delivered: %v", e)
	case <-time.After(200 * time.Millisecond):
	}
}
