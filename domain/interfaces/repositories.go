package interfaces

import (
	"context"
	"time"

	"github.com/basedgoydev/greed-farm/domain/entities"
	"github.com/basedgoydev/greed-farm/events"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// GlobalStateRepository defines access to the singleton protocol row
type GlobalStateRepository interface {
	// Get returns the current state, or nil before bootstrap
	Get(ctx context.Context) (*entities.GlobalState, error)

	// GetForUpdate returns the current state and locks it until the unit of work ends
	GetForUpdate(ctx context.Context) (*entities.GlobalState, error)

	// Initialize inserts the row if it does not exist and reports whether it did
	Initialize(ctx context.Context, state *entities.GlobalState) (bool, error)

	// Save writes the state if its version is unchanged and bumps the version.
	// A concurrent modification yields entities.ErrStaleGlobalState.
	Save(ctx context.Context, state *entities.GlobalState) error
}

// EpochRepository defines the interface for epoch data access
type EpochRepository interface {
	// GetByNumber retrieves an epoch by its number
	GetByNumber(ctx context.Context, number int64) (*entities.Epoch, error)

	// GetCurrent returns the open epoch with the highest number
	GetCurrent(ctx context.Context) (*entities.Epoch, error)

	// Create inserts a new epoch and sets its ID
	Create(ctx context.Context, epoch *entities.Epoch) error

	// Update writes the running totals of an open epoch, or closes it
	Update(ctx context.Context, epoch *entities.Epoch) error

	// GetHistory returns the most recent epochs, newest first
	GetHistory(ctx context.Context, limit int) ([]*entities.Epoch, error)
}

// UserRepository defines the interface for user data access
type UserRepository interface {
	// GetByID retrieves a user by ID
	GetByID(ctx context.Context, id int64) (*entities.User, error)

	// GetByIDForUpdate retrieves and locks a user by ID
	GetByIDForUpdate(ctx context.Context, id int64) (*entities.User, error)

	// GetByWallet retrieves a user by wallet
	GetByWallet(ctx context.Context, wallet string) (*entities.User, error)

	// GetByWalletForUpdate retrieves and locks a user by wallet
	GetByWalletForUpdate(ctx context.Context, wallet string) (*entities.User, error)

	// GetOrCreate returns the user for wallet, creating it with zero balances
	GetOrCreate(ctx context.Context, wallet string) (*entities.User, error)

	// UpdateBalances writes claimable and the cumulative totals
	UpdateBalances(ctx context.Context, user *entities.User) error
}

// StakeRepository defines the interface for stake data access
type StakeRepository interface {
	// GetActiveByUser returns the user's active stake or nil
	GetActiveByUser(ctx context.Context, userID int64) (*entities.Stake, error)

	// GetAllActive returns every active stake
	GetAllActive(ctx context.Context) ([]*entities.Stake, error)

	// GetEligible returns active stakes with staked_at strictly before cutoff
	GetEligible(ctx context.Context, cutoff time.Time) ([]*entities.Stake, error)

	// Create inserts an active stake and sets its ID
	Create(ctx context.Context, stake *entities.Stake) error

	// Update writes amount, staked_at and source of an active stake
	Update(ctx context.Context, stake *entities.Stake) error

	// Deactivate soft-deletes a stake
	Deactivate(ctx context.Context, stakeID int64, at time.Time) error

	// SumActive returns the total of all active stakes
	SumActive(ctx context.Context) (*uint256.Int, error)
}

// DistributionRepository defines the interface for reward credit records
type DistributionRepository interface {
	// Create inserts a distribution and sets its ID. A row for the same user
	// and epoch yields entities.ErrAlreadyDistributed.
	Create(ctx context.Context, distribution *entities.Distribution) error

	// GetByEpoch returns all distributions for an epoch
	GetByEpoch(ctx context.Context, epochNumber int64) ([]*entities.Distribution, error)

	// GetByUser returns a user's most recent distributions
	GetByUser(ctx context.Context, userID int64, limit int) ([]*entities.Distribution, error)
}

// WagerCommitmentRepository defines the interface for commit-reveal commitments
type WagerCommitmentRepository interface {
	// Create inserts a commitment
	Create(ctx context.Context, commitment *entities.WagerCommitment) error

	// GetActiveByWallet returns an unconsumed commitment of wallet that has
	// not expired at now, or nil
	GetActiveByWallet(ctx context.Context, wallet string, now time.Time) (*entities.WagerCommitment, error)

	// GetByIDForUpdate retrieves and locks a commitment regardless of state
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*entities.WagerCommitment, error)

	// MarkConsumed flips consumed exactly once; a second call yields
	// entities.ErrCommitmentConsumed
	MarkConsumed(ctx context.Context, id uuid.UUID, at time.Time) error

	// DeleteStale removes consumed commitments and those that expired before cutoff
	DeleteStale(ctx context.Context, expiredBefore time.Time) (int64, error)
}

// WagerRecordRepository defines the interface for settled wagers
type WagerRecordRepository interface {
	// Create inserts a settled wager and sets its ID
	Create(ctx context.Context, record *entities.WagerRecord) error

	// GetByID retrieves a settled wager
	GetByID(ctx context.Context, id int64) (*entities.WagerRecord, error)

	// GetByUser returns a user's most recent wagers
	GetByUser(ctx context.Context, userID int64, limit int) ([]*entities.WagerRecord, error)
}

// BalanceHistoryRepository defines the interface for balance history tracking
type BalanceHistoryRepository interface {
	// Record creates a new balance history entry
	Record(ctx context.Context, history *entities.BalanceHistory) error

	// GetByUser returns balance history for a specific user
	GetByUser(ctx context.Context, userID int64, limit int) ([]*entities.BalanceHistory, error)
}

// EventPublisher defines the interface for publishing events
type EventPublisher interface {
	Publish(event events.Event) error
}
