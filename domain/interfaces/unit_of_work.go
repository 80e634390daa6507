package interfaces

import "context"

// UnitOfWork defines the interface for transactional repository operations
type UnitOfWork interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) error

	// Commit commits the transaction and flushes pending events
	Commit() error

	// Rollback rolls back the transaction. It is a no-op after Commit.
	Rollback() error

	// Repository getters
	GlobalStateRepository() GlobalStateRepository
	EpochRepository() EpochRepository
	UserRepository() UserRepository
	StakeRepository() StakeRepository
	DistributionRepository() DistributionRepository
	WagerCommitmentRepository() WagerCommitmentRepository
	WagerRecordRepository() WagerRecordRepository
	BalanceHistoryRepository() BalanceHistoryRepository
	EventBus() EventPublisher
}

// UnitOfWorkFactory defines the interface for creating UnitOfWork instances
type UnitOfWorkFactory interface {
	Create() UnitOfWork
}
