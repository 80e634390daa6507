package testhelpers

import (
	"context"
	"time"

	"github.com/basedgoydev/greed-farm/domain/entities"
	"github.com/basedgoydev/greed-farm/events"
	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"github.com/stretchr/testify/mock"
)

// MockGlobalStateRepository is a mock implementation of GlobalStateRepository
type MockGlobalStateRepository struct {
	mock.Mock
}

func (m *MockGlobalStateRepository) Get(ctx context.Context) (*entities.GlobalState, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.GlobalState), args.Error(1)
}

func (m *MockGlobalStateRepository) GetForUpdate(ctx context.Context) (*entities.GlobalState, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.GlobalState), args.Error(1)
}

func (m *MockGlobalStateRepository) Initialize(ctx context.Context, state *entities.GlobalState) (bool, error) {
	args := m.Called(ctx, state)
	return args.Bool(0), args.Error(1)
}

func (m *MockGlobalStateRepository) Save(ctx context.Context, state *entities.GlobalState) error {
	args := m.Called(ctx, state)
	return args.Error(0)
}

// MockEpochRepository is a mock implementation of EpochRepository
type MockEpochRepository struct {
	mock.Mock
}

func (m *MockEpochRepository) GetByNumber(ctx context.Context, number int64) (*entities.Epoch, error) {
	args := m.Called(ctx, number)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Epoch), args.Error(1)
}

func (m *MockEpochRepository) GetCurrent(ctx context.Context) (*entities.Epoch, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Epoch), args.Error(1)
}

func (m *MockEpochRepository) Create(ctx context.Context, epoch *entities.Epoch) error {
	args := m.Called(ctx, epoch)
	return args.Error(0)
}

func (m *MockEpochRepository) Update(ctx context.Context, epoch *entities.Epoch) error {
	args := m.Called(ctx, epoch)
	return args.Error(0)
}

func (m *MockEpochRepository) GetHistory(ctx context.Context, limit int) ([]*entities.Epoch, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Epoch), args.Error(1)
}

// MockUserRepository is a mock implementation of UserRepository
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) GetByID(ctx context.Context, id int64) (*entities.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.User), args.Error(1)
}

func (m *MockUserRepository) GetByIDForUpdate(ctx context.Context, id int64) (*entities.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.User), args.Error(1)
}

func (m *MockUserRepository) GetByWallet(ctx context.Context, wallet string) (*entities.User, error) {
	args := m.Called(ctx, wallet)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.User), args.Error(1)
}

func (m *MockUserRepository) GetByWalletForUpdate(ctx context.Context, wallet string) (*entities.User, error) {
	args := m.Called(ctx, wallet)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.User), args.Error(1)
}

func (m *MockUserRepository) GetOrCreate(ctx context.Context, wallet string) (*entities.User, error) {
	args := m.Called(ctx, wallet)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.User), args.Error(1)
}

func (m *MockUserRepository) UpdateBalances(ctx context.Context, user *entities.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

// MockStakeRepository is a mock implementation of StakeRepository
type MockStakeRepository struct {
	mock.Mock
}

func (m *MockStakeRepository) GetActiveByUser(ctx context.Context, userID int64) (*entities.Stake, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Stake), args.Error(1)
}

func (m *MockStakeRepository) GetAllActive(ctx context.Context) ([]*entities.Stake, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Stake), args.Error(1)
}

func (m *MockStakeRepository) GetEligible(ctx context.Context, cutoff time.Time) ([]*entities.Stake, error) {
	args := m.Called(ctx, cutoff)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Stake), args.Error(1)
}

func (m *MockStakeRepository) Create(ctx context.Context, stake *entities.Stake) error {
	args := m.Called(ctx, stake)
	return args.Error(0)
}

func (m *MockStakeRepository) Update(ctx context.Context, stake *entities.Stake) error {
	args := m.Called(ctx, stake)
	return args.Error(0)
}

func (m *MockStakeRepository) Deactivate(ctx context.Context, stakeID int64, at time.Time) error {
	args := m.Called(ctx, stakeID, at)
	return args.Error(0)
}

func (m *MockStakeRepository) SumActive(ctx context.Context) (*uint256.Int, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*uint256.Int), args.Error(1)
}

// MockDistributionRepository is a mock implementation of DistributionRepository
type MockDistributionRepository struct {
	mock.Mock
}

func (m *MockDistributionRepository) Create(ctx context.Context, distribution *entities.Distribution) error {
	args := m.Called(ctx, distribution)
	return args.Error(0)
}

func (m *MockDistributionRepository) GetByEpoch(ctx context.Context, epochNumber int64) ([]*entities.Distribution, error) {
	args := m.Called(ctx, epochNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Distribution), args.Error(1)
}

func (m *MockDistributionRepository) GetByUser(ctx context.Context, userID int64, limit int) ([]*entities.Distribution, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Distribution), args.Error(1)
}

// MockWagerCommitmentRepository is a mock implementation of WagerCommitmentRepository
type MockWagerCommitmentRepository struct {
	mock.Mock
}

func (m *MockWagerCommitmentRepository) Create(ctx context.Context, commitment *entities.WagerCommitment) error {
	args := m.Called(ctx, commitment)
	return args.Error(0)
}

func (m *MockWagerCommitmentRepository) GetActiveByWallet(ctx context.Context, wallet string, now time.Time) (*entities.WagerCommitment, error) {
	args := m.Called(ctx, wallet, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.WagerCommitment), args.Error(1)
}

func (m *MockWagerCommitmentRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*entities.WagerCommitment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.WagerCommitment), args.Error(1)
}

func (m *MockWagerCommitmentRepository) MarkConsumed(ctx context.Context, id uuid.UUID, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

func (m *MockWagerCommitmentRepository) DeleteStale(ctx context.Context, expiredBefore time.Time) (int64, error) {
	args := m.Called(ctx, expiredBefore)
	return args.Get(0).(int64), args.Error(1)
}

// MockWagerRecordRepository is a mock implementation of WagerRecordRepository
type MockWagerRecordRepository struct {
	mock.Mock
}

func (m *MockWagerRecordRepository) Create(ctx context.Context, record *entities.WagerRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockWagerRecordRepository) GetByID(ctx context.Context, id int64) (*entities.WagerRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.WagerRecord), args.Error(1)
}

func (m *MockWagerRecordRepository) GetByUser(ctx context.Context, userID int64, limit int) ([]*entities.WagerRecord, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.WagerRecord), args.Error(1)
}

// MockBalanceHistoryRepository is a mock implementation of BalanceHistoryRepository
type MockBalanceHistoryRepository struct {
	mock.Mock
}

func (m *MockBalanceHistoryRepository) Record(ctx context.Context, history *entities.BalanceHistory) error {
	args := m.Called(ctx, history)
	return args.Error(0)
}

func (m *MockBalanceHistoryRepository) GetByUser(ctx context.Context, userID int64, limit int) ([]*entities.BalanceHistory, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.BalanceHistory), args.Error(1)
}

// MockEventPublisher is a mock implementation of EventPublisher
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(event events.Event) error {
	args := m.Called(event)
	return args.Error(0)
}
