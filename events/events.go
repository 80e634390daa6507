package events

import (
	"context"
	"sync"
	"time"

	"github.com/basedgoydev/greed-farm/domain/entities"
	"github.com/holiman/uint256"
	log "github.com/sirupsen/logrus"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventTypeEpochAdvanced         EventType = "epoch_advanced"
	EventTypeQuorumStateChanged    EventType = "quorum_state_changed"
	EventTypeDistributionCompleted EventType = "distribution_completed"
	EventTypeWagerSettled          EventType = "wager_settled"
	EventTypeCommitmentCreated     EventType = "commitment_created"
	EventTypeStakeChanged          EventType = "stake_changed"
	EventTypeClaimCompleted        EventType = "claim_completed"
	EventTypeStakesReconciled      EventType = "stakes_reconciled"
	EventTypeTickCompleted         EventType = "tick_completed"
)

// AllEventTypes lists every event type, for subscribers that forward everything.
func AllEventTypes() []EventType {
	return []EventType{
		EventTypeEpochAdvanced,
		EventTypeQuorumStateChanged,
		EventTypeDistributionCompleted,
		EventTypeWagerSettled,
		EventTypeCommitmentCreated,
		EventTypeStakeChanged,
		EventTypeClaimCompleted,
		EventTypeStakesReconciled,
		EventTypeTickCompleted,
	}
}

// Event is the base interface for all events
type Event interface {
	Type() EventType
}

// EpochAdvancedEvent is emitted when an epoch closes and its successor opens
type EpochAdvancedEvent struct {
	ClosedEpoch      int64        `json:"closed_epoch"`
	NextEpoch        int64        `json:"next_epoch"`
	TotalDistributed *uint256.Int `json:"total_distributed"`
	Recipients       int          `json:"recipients"`
	PoolRemaining    *uint256.Int `json:"pool_remaining"`
	QuorumSeeded     bool         `json:"quorum_seeded"`
}

func (e EpochAdvancedEvent) Type() EventType {
	return EventTypeEpochAdvanced
}

// QuorumStateChangedEvent represents a transition of the epoch phase
type QuorumStateChangedEvent struct {
	EpochNumber   int64               `json:"epoch_number"`
	OldPhase      entities.EpochPhase `json:"old_phase"`
	NewPhase      entities.EpochPhase `json:"new_phase"`
	EligibleStake *uint256.Int        `json:"eligible_stake"`
	Threshold     *uint256.Int        `json:"threshold"`
}

func (e QuorumStateChangedEvent) Type() EventType {
	return EventTypeQuorumStateChanged
}

// DistributionCompletedEvent summarises one distribution run
type DistributionCompletedEvent struct {
	EpochNumber      int64        `json:"epoch_number"`
	Pool             *uint256.Int `json:"pool"`
	TotalDistributed *uint256.Int `json:"total_distributed"`
	Recipients       int          `json:"recipients"`
	AlreadyCredited  int          `json:"already_credited"`
}

func (e DistributionCompletedEvent) Type() EventType {
	return EventTypeDistributionCompleted
}

// WagerSettledEvent represents a settled wager
type WagerSettledEvent struct {
	WagerID     int64                `json:"wager_id"`
	Wallet      string               `json:"wallet"`
	EpochNumber int64                `json:"epoch_number"`
	RiskPercent entities.RiskPercent `json:"risk_percent"`
	RiskAmount  *uint256.Int         `json:"risk_amount"`
	Won         bool                 `json:"won"`
	Payout      *uint256.Int         `json:"payout"`
	PotAfter    *uint256.Int         `json:"pot_after"`
}

func (e WagerSettledEvent) Type() EventType {
	return EventTypeWagerSettled
}

// CommitmentCreatedEvent represents a newly issued wager commitment
type CommitmentCreatedEvent struct {
	CommitmentID   string    `json:"commitment_id"`
	Wallet         string    `json:"wallet"`
	CommitmentHash string    `json:"commitment_hash"`
	ExpiresAt      time.Time `json:"expires_at"`
}

func (e CommitmentCreatedEvent) Type() EventType {
	return EventTypeCommitmentCreated
}

// StakeAction names what happened to a stake
type StakeAction string

const (
	StakeActionStaked   StakeAction = "staked"
	StakeActionUnstaked StakeAction = "unstaked"
)

// StakeChangedEvent represents a custody stake or unstake
type StakeChangedEvent struct {
	Wallet      string       `json:"wallet"`
	Action      StakeAction  `json:"action"`
	Amount      *uint256.Int `json:"amount"`
	TotalStaked *uint256.Int `json:"total_staked"`
}

func (e StakeChangedEvent) Type() EventType {
	return EventTypeStakeChanged
}

// ClaimCompletedEvent represents a claimable balance paid out
type ClaimCompletedEvent struct {
	Wallet string       `json:"wallet"`
	Amount *uint256.Int `json:"amount"`
	TxRef  string       `json:"tx_ref"`
}

func (e ClaimCompletedEvent) Type() EventType {
	return EventTypeClaimCompleted
}

// StakesReconciledEvent summarises one reconciliation pass
type StakesReconciledEvent struct {
	RegistryAvailable bool         `json:"registry_available"`
	Created           int          `json:"created"`
	Updated           int          `json:"updated"`
	Deactivated       int          `json:"deactivated"`
	LocalTotal        *uint256.Int `json:"local_total"`
	QuorumTotal       *uint256.Int `json:"quorum_total"`
}

func (e StakesReconciledEvent) Type() EventType {
	return EventTypeStakesReconciled
}

// TickCompletedEvent is emitted by the ticker after every attempt, including skipped ones
type TickCompletedEvent struct {
	Outcome  string              `json:"outcome"`
	Phase    entities.EpochPhase `json:"phase"`
	Duration time.Duration       `json:"duration"`
}

func (e TickCompletedEvent) Type() EventType {
	return EventTypeTickCompleted
}

// Handler is a function that handles events
type Handler func(ctx context.Context, event Event)

// Bus manages event subscriptions and dispatching
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe adds a handler for a specific event type
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)

	log.WithFields(log.Fields{
		"eventType":    eventType,
		"handlerCount": len(b.handlers[eventType]),
	}).Debug("Subscribed handler to event type")
}

// SubscribeAll adds handler for every known event type
func (b *Bus) SubscribeAll(handler Handler) {
	for _, eventType := range AllEventTypes() {
		b.Subscribe(eventType, handler)
	}
}

// Emit publishes an event to all registered handlers
func (b *Bus) Emit(ctx context.Context, event Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[event.Type()]))
	copy(handlers, b.handlers[event.Type()])
	b.mu.RUnlock()

	log.WithFields(log.Fields{
		"eventType":    event.Type(),
		"handlerCount": len(handlers),
	}).Debug("Emitting event to handlers")

	// Call handlers asynchronously to avoid blocking
	for i, handler := range handlers {
		go func(h Handler, handlerIndex int) {
			defer func() {
				if r := recover(); r != nil {
					log.WithFields(log.Fields{
						"eventType":    event.Type(),
						"handlerIndex": handlerIndex,
						"panic":        r,
					}).Error("Event handler panicked")
				}
			}()
			h(ctx, event)
		}(handler, i)
	}
}

// Publish emits immediately. It lets the bus stand in where a transactional
// publisher is expected outside a unit of work.
func (b *Bus) Publish(event Event) error {
	b.Emit(context.Background(), event)
	return nil
}

// A transactional event bus for holding pending events coupled to the Unit of Work.
// Flushes to the underlying event bus.
type TransactionalBus struct {
	real    *Bus
	mu      sync.Mutex
	pending []Event // stashed until Flush
}

func NewTransactionalBus(real *Bus) *TransactionalBus {
	return &TransactionalBus{real: real}
}

func (b *TransactionalBus) Publish(e Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	log.WithFields(log.Fields{
		"eventType":    e.Type(),
		"pendingCount": len(b.pending),
	}).Debug("Adding event to transactional bus pending queue")
	b.pending = append(b.pending, e)
	return nil
}

// Pending returns a copy of the events queued so far
func (b *TransactionalBus) Pending() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Event(nil), b.pending...)
}

// called after successful DB commit
func (b *TransactionalBus) Flush() {
	b.mu.Lock()
	pending := b.pending
	b.pending = nil
	b.mu.Unlock()

	log.WithFields(log.Fields{
		"pendingEventCount": len(pending),
	}).Debug("Flushing pending events from transactional bus")

	if b.real == nil {
		return
	}

	// Events are processed independently of the transaction lifecycle
	eventCtx := context.Background()
	for _, ev := range pending {
		b.real.Emit(eventCtx, ev)
	}
}

// called after db rollback or to clear state.
func (b *TransactionalBus) Discard() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = nil
}
