package services

import (
	"context"
	"errors"
	"testing"

	"github.com/basedgoydev/greed-farm/domain/entities"
	"github.com/basedgoydev/greed-farm/domain/testhelpers"
	"github.com/basedgoydev/greed-farm/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestClaimService_Claim(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		user        *entities.User
		transferErr error
		wantErr     error
		wantAmount  uint64
	}{
		{
			name:       "pays the whole balance",
			user:       testUser(5, walletA, 1234),
			wantAmount: 1234,
		},
		{
			name:    "unknown wallet",
			user:    nil,
			wantErr: entities.ErrNothingToClaim,
		},
		{
			name:    "empty balance",
			user:    testUser(5, walletA, 0),
			wantErr: entities.ErrNothingToClaim,
		},
		{
			name:        "transfer failure",
			user:        testUser(5, walletA, 10),
			transferErr: errors.New("rpc timeout"),
			wantErr:     entities.ErrExternalUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users := new(testhelpers.MockUserRepository)
			history := new(testhelpers.MockBalanceHistoryRepository)
			publisher := new(testhelpers.MockEventPublisher)
			transferer := new(testhelpers.MockFundsTransferer)

			if tt.user == nil {
				users.On("GetByWalletForUpdate", mock.Anything, walletA).Return(nil, nil)
			} else {
				users.On("GetByWalletForUpdate", mock.Anything, walletA).Return(tt.user, nil)
			}
			users.On("UpdateBalances", mock.Anything, mock.Anything).Return(nil)
			history.On("Record", mock.Anything, mock.MatchedBy(func(h *entities.BalanceHistory) bool {
				return h.TransactionType == entities.TransactionTypeClaim && h.BalanceAfter.IsZero()
			})).Run(func(args mock.Arguments) {
				args.Get(1).(*entities.BalanceHistory).ID = 77
			}).Return(nil)
			transferer.On("Transfer", mock.Anything, walletA, mock.Anything, "claim:77").Return("tx-claim", tt.transferErr)
			publisher.On("Publish", mock.Anything).Return(nil)

			service := NewClaimService(users, history, publisher, transferer)
			result, err := service.Claim(context.Background(), walletA, testNow)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				publisher.AssertNotCalled(t, "Publish", mock.Anything)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantAmount, result.Amount.Uint64())
			assert.Equal(t, "tx-claim", result.TxRef)
			assert.True(t, tt.user.Claimable.IsZero())
			assert.Equal(t, tt.wantAmount, tt.user.TotalClaimed.Uint64())
			publisher.AssertCalled(t, "Publish", mock.MatchedBy(func(e events.ClaimCompletedEvent) bool {
				return e.Wallet == walletA && e.TxRef == "tx-claim"
			}))
		})
	}
}
