package repository

import (
	"context"
	"fmt"

	"github.com/basedgoydev/greed-farm/database"
	"github.com/basedgoydev/greed-farm/domain/interfaces"
	"github.com/basedgoydev/greed-farm/events"
	"github.com/jackc/pgx/v5"
)

// unitOfWork implements the UnitOfWork interface
type unitOfWork struct {
	db                  *database.DB
	tx                  pgx.Tx
	ctx                 context.Context
	transactionalBus    *events.TransactionalBus
	globalStateRepo     interfaces.GlobalStateRepository
	epochRepo           interfaces.EpochRepository
	userRepo            interfaces.UserRepository
	stakeRepo           interfaces.StakeRepository
	distributionRepo    interfaces.DistributionRepository
	wagerCommitmentRepo interfaces.WagerCommitmentRepository
	wagerRecordRepo     interfaces.WagerRecordRepository
	balanceHistoryRepo  interfaces.BalanceHistoryRepository
}

// NewUnitOfWorkFactory creates a new UnitOfWork factory
func NewUnitOfWorkFactory(db *database.DB, eventBus *events.Bus) interfaces.UnitOfWorkFactory {
	return &unitOfWorkFactory{
		db:       db,
		eventBus: eventBus,
	}
}

type unitOfWorkFactory struct {
	db       *database.DB
	eventBus *events.Bus
}

func (f *unitOfWorkFactory) Create() interfaces.UnitOfWork {
	return &unitOfWork{
		db:               f.db,
		transactionalBus: events.NewTransactionalBus(f.eventBus),
	}
}

// Begin starts a new transaction
func (u *unitOfWork) Begin(ctx context.Context) error {
	if u.tx != nil {
		return fmt.Errorf("transaction already started")
	}

	tx, err := u.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	u.tx = tx
	u.ctx = ctx

	// Create repositories with the transaction
	u.globalStateRepo = newGlobalStateRepositoryWithTx(tx)
	u.epochRepo = newEpochRepositoryWithTx(tx)
	u.userRepo = newUserRepositoryWithTx(tx)
	u.stakeRepo = newStakeRepositoryWithTx(tx)
	u.distributionRepo = newDistributionRepositoryWithTx(tx)
	u.wagerCommitmentRepo = newWagerCommitmentRepositoryWithTx(tx)
	u.wagerRecordRepo = newWagerRecordRepositoryWithTx(tx)
	u.balanceHistoryRepo = newBalanceHistoryRepositoryWithTx(tx)

	return nil
}

// Commit commits the transaction
func (u *unitOfWork) Commit() error {
	if u.tx == nil {
		return fmt.Errorf("no transaction to commit")
	}

	err := u.tx.Commit(u.ctx)
	if err != nil {
		u.tx = nil
		u.transactionalBus.Discard()
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	u.tx = nil

	// Flush pending events after successful commit
	u.transactionalBus.Flush()

	return nil
}

// Rollback rolls back the transaction
func (u *unitOfWork) Rollback() error {
	if u.tx == nil {
		return nil // Nothing to rollback
	}

	err := u.tx.Rollback(u.ctx)
	u.tx = nil

	// Discard pending events on rollback
	u.transactionalBus.Discard()

	if err != nil && err != pgx.ErrTxClosed {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}

	return nil
}

func (u *unitOfWork) mustBegin() {
	if u.globalStateRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
}

// GlobalStateRepository returns the global state repository for this unit of work
func (u *unitOfWork) GlobalStateRepository() interfaces.GlobalStateRepository {
	u.mustBegin()
	return u.globalStateRepo
}

// EpochRepository returns the epoch repository for this unit of work
func (u *unitOfWork) EpochRepository() interfaces.EpochRepository {
	u.mustBegin()
	return u.epochRepo
}

// UserRepository returns the user repository for this unit of work
func (u *unitOfWork) UserRepository() interfaces.UserRepository {
	u.mustBegin()
	return u.userRepo
}

// StakeRepository returns the stake repository for this unit of work
func (u *unitOfWork) StakeRepository() interfaces.StakeRepository {
	u.mustBegin()
	return u.stakeRepo
}

// DistributionRepository returns the distribution repository for this unit of work
func (u *unitOfWork) DistributionRepository() interfaces.DistributionRepository {
	u.mustBegin()
	return u.distributionRepo
}

// WagerCommitmentRepository returns the commitment repository for this unit of work
func (u *unitOfWork) WagerCommitmentRepository() interfaces.WagerCommitmentRepository {
	u.mustBegin()
	return u.wagerCommitmentRepo
}

// WagerRecordRepository returns the wager record repository for this unit of work
func (u *unitOfWork) WagerRecordRepository() interfaces.WagerRecordRepository {
	u.mustBegin()
	return u.wagerRecordRepo
}

// BalanceHistoryRepository returns the balance history repository for this unit of work
func (u *unitOfWork) BalanceHistoryRepository() interfaces.BalanceHistoryRepository {
	u.mustBegin()
	return u.balanceHistoryRepo
}

// EventBus returns the transactional event bus for this unit of work
func (u *unitOfWork) EventBus() interfaces.EventPublisher {
	return u.transactionalBus
}
