package repository

import (
	"context"
	"testing"

	"github.com/basedgoydev/greed-farm/domain/entities"
	"github.com/basedgoydev/greed-farm/domain/safemath"
	"github.com/basedgoydev/greed-farm/repository/testutil"
	"github.com/holiman/uint256"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserRepository(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)

	repo := NewUserRepository(testDB.DB)
	ctx := context.Background()

	t.Run("get or create is idempotent", func(t *testing.T) {
		first, err := repo.GetOrCreate(ctx, testutil.Wallets[0])
		require.NoError(t, err)
		assert.True(t, first.Claimable.IsZero())
		assert.True(t, first.TotalLost.IsZero())

		second, err := repo.GetOrCreate(ctx, testutil.Wallets[0])
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)

		byID, err := repo.GetByID(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, testutil.Wallets[0], byID.Wallet)
	})

	t.Run("unknown wallet", func(t *testing.T) {
		user, err := repo.GetByWallet(ctx, testutil.Wallets[3])
		require.NoError(t, err)
		assert.Nil(t, user)
	})

	t.Run("balances beyond 64 bits", func(t *testing.T) {
		user, err := repo.GetOrCreate(ctx, testutil.Wallets[1])
		require.NoError(t, err)

		big := safemath.MustParse("340282366920938463463374607431768211456") // 2^128
		user.Claimable = big
		user.TotalWon = uint256.NewInt(5)
		user.TotalLost = uint256.NewInt(3)
		require.NoError(t, repo.UpdateBalances(ctx, user))

		loaded, err := repo.GetByWallet(ctx, testutil.Wallets[1])
		require.NoError(t, err)
		assert.True(t, loaded.Claimable.Eq(big))
		assert.Equal(t, uint64(5), loaded.TotalWon.Uint64())
		assert.True(t, loaded.TotalClaimed.IsZero())
	})

	t.Run("update of missing user", func(t *testing.T) {
		ghost := &entities.User{ID: 9999, Claimable: uint256.NewInt(1)}
		assert.ErrorIs(t, repo.UpdateBalances(ctx, ghost), entities.ErrUserNotFound)
	})
}
