// Package memory is a serializable in-memory ledger store. Units of work run
// one at a time: Begin takes the store lock and copies the maps, Commit swaps
// the copy in. Stored entities are never mutated in place, so the copy is
// shallow.
package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/basedgoydev/greed-farm/domain/entities"
	"github.com/basedgoydev/greed-farm/domain/interfaces"
	"github.com/basedgoydev/greed-farm/events"
	"github.com/google/uuid"
)

type distributionKey struct {
	userID      int64
	epochNumber int64
}

type dataset struct {
	globalState   *entities.GlobalState
	epochs        map[int64]*entities.Epoch // by epoch number
	users         map[int64]*entities.User
	wallets       map[string]int64
	stakes        map[int64]*entities.Stake
	distributions map[distributionKey]*entities.Distribution
	commitments   map[uuid.UUID]*entities.WagerCommitment
	records       map[int64]*entities.WagerRecord
	histories     map[int64]*entities.BalanceHistory
	nextID        int64
}

func newDataset() *dataset {
	return &dataset{
		epochs:        make(map[int64]*entities.Epoch),
		users:         make(map[int64]*entities.User),
		wallets:       make(map[string]int64),
		stakes:        make(map[int64]*entities.Stake),
		distributions: make(map[distributionKey]*entities.Distribution),
		commitments:   make(map[uuid.UUID]*entities.WagerCommitment),
		records:       make(map[int64]*entities.WagerRecord),
		histories:     make(map[int64]*entities.BalanceHistory),
	}
}

func (d *dataset) copy() *dataset {
	c := &dataset{
		globalState:   d.globalState,
		epochs:        make(map[int64]*entities.Epoch, len(d.epochs)),
		users:         make(map[int64]*entities.User, len(d.users)),
		wallets:       make(map[string]int64, len(d.wallets)),
		stakes:        make(map[int64]*entities.Stake, len(d.stakes)),
		distributions: make(map[distributionKey]*entities.Distribution, len(d.distributions)),
		commitments:   make(map[uuid.UUID]*entities.WagerCommitment, len(d.commitments)),
		records:       make(map[int64]*entities.WagerRecord, len(d.records)),
		histories:     make(map[int64]*entities.BalanceHistory, len(d.histories)),
		nextID:        d.nextID,
	}
	for k, v := range d.epochs {
		c.epochs[k] = v
	}
	for k, v := range d.users {
		c.users[k] = v
	}
	for k, v := range d.wallets {
		c.wallets[k] = v
	}
	for k, v := range d.stakes {
		c.stakes[k] = v
	}
	for k, v := range d.distributions {
		c.distributions[k] = v
	}
	for k, v := range d.commitments {
		c.commitments[k] = v
	}
	for k, v := range d.records {
		c.records[k] = v
	}
	for k, v := range d.histories {
		c.histories[k] = v
	}
	return c
}

func (d *dataset) id() int64 {
	d.nextID++
	return d.nextID
}

// Store holds the committed dataset
type Store struct {
	lock     chan struct{}
	data     *dataset
	eventBus *events.Bus
	now      func() time.Time
}

// Option configures a Store
type Option func(*Store)

// WithClock sets the clock used for created_at and updated_at columns
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates an empty store. Committed events are emitted on eventBus,
// which may be nil.
func NewStore(eventBus *events.Bus, opts ...Option) *Store {
	s := &Store{
		lock:     make(chan struct{}, 1),
		data:     newDataset(),
		eventBus: eventBus,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create implements interfaces.UnitOfWorkFactory
func (s *Store) Create() interfaces.UnitOfWork {
	return &unitOfWork{
		store:            s,
		transactionalBus: events.NewTransactionalBus(s.eventBus),
	}
}

func (s *Store) timestamp() time.Time {
	return s.now().UTC()
}

type unitOfWork struct {
	store            *Store
	work             *dataset
	transactionalBus *events.TransactionalBus
}

// Begin waits for exclusive access to the store
func (u *unitOfWork) Begin(ctx context.Context) error {
	if u.work != nil {
		return fmt.Errorf("transaction already started")
	}

	select {
	case u.store.lock <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("failed to begin transaction: %w", ctx.Err())
	}

	u.work = u.store.data.copy()
	return nil
}

// Commit publishes the working copy and flushes pending events
func (u *unitOfWork) Commit() error {
	if u.work == nil {
		return fmt.Errorf("no transaction to commit")
	}

	u.store.data = u.work
	u.work = nil
	<-u.store.lock

	u.transactionalBus.Flush()
	return nil
}

// Rollback drops the working copy. It is a no-op without an open transaction.
func (u *unitOfWork) Rollback() error {
	if u.work == nil {
		return nil
	}

	u.work = nil
	<-u.store.lock

	u.transactionalBus.Discard()
	return nil
}

func (u *unitOfWork) mustBegin() *dataset {
	if u.work == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.work
}

func (u *unitOfWork) GlobalStateRepository() interfaces.GlobalStateRepository {
	return &globalStateRepository{data: u.mustBegin()}
}

func (u *unitOfWork) EpochRepository() interfaces.EpochRepository {
	return &epochRepository{data: u.mustBegin()}
}

func (u *unitOfWork) UserRepository() interfaces.UserRepository {
	return &userRepository{data: u.mustBegin(), store: u.store}
}

func (u *unitOfWork) StakeRepository() interfaces.StakeRepository {
	return &stakeRepository{data: u.mustBegin(), store: u.store}
}

func (u *unitOfWork) DistributionRepository() interfaces.DistributionRepository {
	return &distributionRepository{data: u.mustBegin(), store: u.store}
}

func (u *unitOfWork) WagerCommitmentRepository() interfaces.WagerCommitmentRepository {
	return &wagerCommitmentRepository{data: u.mustBegin()}
}

func (u *unitOfWork) WagerRecordRepository() interfaces.WagerRecordRepository {
	return &wagerRecordRepository{data: u.mustBegin()}
}

func (u *unitOfWork) BalanceHistoryRepository() interfaces.BalanceHistoryRepository {
	return &balanceHistoryRepository{data: u.mustBegin()}
}

func (u *unitOfWork) EventBus() interfaces.EventPublisher {
	u.mustBegin()
	return u.transactionalBus
}
