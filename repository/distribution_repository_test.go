package repository

import (
	"context"
	"testing"
	"time"

	"github.com/basedgoydev/greed-farm/domain/entities"
	"github.com/basedgoydev/greed-farm/events"
	"github.com/basedgoydev/greed-farm/repository/testutil"
	"github.com/holiman/uint256"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistributionRepository_AlreadyDistributedKeepsTransactionUsable(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)
	ctx := context.Background()

	require.NoError(t, NewEpochRepository(testDB.DB).Create(ctx, testutil.CreateTestEpoch(1)))
	user, err := NewUserRepository(testDB.DB).GetOrCreate(ctx, testutil.Wallets[0])
	require.NoError(t, err)

	uow := NewUnitOfWorkFactory(testDB.DB, events.NewBus()).Create()
	require.NoError(t, uow.Begin(ctx))
	defer uow.Rollback()

	first := &entities.Distribution{
		UserID:       user.ID,
		EpochNumber:  1,
		StakeAmount:  uint256.NewInt(300),
		RewardAmount: uint256.NewInt(30),
		CreatedAt:    testutil.Now,
	}
	require.NoError(t, uow.DistributionRepository().Create(ctx, first))
	assert.NotZero(t, first.ID)

	duplicate := *first
	duplicate.ID = 0
	err = uow.DistributionRepository().Create(ctx, &duplicate)
	assert.ErrorIs(t, err, entities.ErrAlreadyDistributed)

	// the transaction must not be aborted by the conflict
	history := testutil.CreateTestBalanceHistory(user.ID, entities.TransactionTypeDistributionReward)
	require.NoError(t, uow.BalanceHistoryRepository().Record(ctx, history))
	require.NoError(t, uow.Commit())

	distributions, err := NewDistributionRepository(testDB.DB).GetByEpoch(ctx, 1)
	require.NoError(t, err)
	require.Len(t, distributions, 1)
	assert.Equal(t, testutil.Wallets[0], distributions[0].Wallet)
	assert.Equal(t, uint64(30), distributions[0].RewardAmount.Uint64())

	byUser, err := NewDistributionRepository(testDB.DB).GetByUser(ctx, user.ID, 5)
	require.NoError(t, err)
	assert.Len(t, byUser, 1)
}

func TestBalanceHistoryRepository(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)
	ctx := context.Background()

	user, err := NewUserRepository(testDB.DB).GetOrCreate(ctx, testutil.Wallets[0])
	require.NoError(t, err)
	repo := NewBalanceHistoryRepository(testDB.DB)

	relatedID := int64(7)
	relatedType := entities.RelatedTypeWager
	loss := testutil.CreateTestBalanceHistory(user.ID, entities.TransactionTypeWagerLoss)
	loss.BalanceBefore = uint256.NewInt(1000)
	loss.BalanceAfter = uint256.NewInt(250)
	loss.RelatedID = &relatedID
	loss.RelatedType = &relatedType
	require.NoError(t, repo.Record(ctx, loss))

	claim := testutil.CreateTestBalanceHistory(user.ID, entities.TransactionTypeClaim)
	claim.TransactionMetadata = nil
	claim.CreatedAt = testutil.Now.Add(time.Second)
	require.NoError(t, repo.Record(ctx, claim))

	histories, err := repo.GetByUser(ctx, user.ID, 10)
	require.NoError(t, err)
	require.Len(t, histories, 2)

	assert.Equal(t, entities.TransactionTypeClaim, histories[0].TransactionType)
	assert.Empty(t, histories[0].TransactionMetadata)

	assert.Equal(t, entities.TransactionTypeWagerLoss, histories[1].TransactionType)
	assert.Equal(t, uint64(250), histories[1].BalanceAfter.Uint64())
	assert.Equal(t, true, histories[1].TransactionMetadata["test"])
	require.NotNil(t, histories[1].RelatedType)
	assert.Equal(t, entities.RelatedTypeWager, *histories[1].RelatedType)
	assert.Equal(t, int64(7), *histories[1].RelatedID)
}
