package testhelpers

import (
	"context"

	"github.com/basedgoydev/greed-farm/domain/entities"
	"github.com/holiman/uint256"

	"github.com/stretchr/testify/mock"
)

// MockStakeRegistry is a mock implementation of StakeRegistry
type MockStakeRegistry struct {
	mock.Mock
}

func (m *MockStakeRegistry) FetchStakeSnapshot(ctx context.Context, wallet string) (*entities.ExternalStake, error) {
	args := m.Called(ctx, wallet)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.ExternalStake), args.Error(1)
}

func (m *MockStakeRegistry) FetchAllStakes(ctx context.Context) ([]*entities.ExternalStake, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.ExternalStake), args.Error(1)
}

func (m *MockStakeRegistry) FetchTotalStaked(ctx context.Context) (*uint256.Int, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*uint256.Int), args.Error(1)
}

func (m *MockStakeRegistry) IsRegistryReady(ctx context.Context) bool {
	args := m.Called(ctx)
	return args.Bool(0)
}

// MockTreasury is a mock implementation of Treasury
type MockTreasury struct {
	mock.Mock
}

func (m *MockTreasury) CurrentTreasuryBalance(ctx context.Context) (*uint256.Int, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*uint256.Int), args.Error(1)
}

// MockFundsTransferer is a mock implementation of FundsTransferer
type MockFundsTransferer struct {
	mock.Mock
}

func (m *MockFundsTransferer) Transfer(ctx context.Context, wallet string, amount *uint256.Int, memo string) (string, error) {
	args := m.Called(ctx, wallet, amount, memo)
	return args.String(0), args.Error(1)
}
