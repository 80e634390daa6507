package services

import (
	"context"
	"fmt"
	"time"

	"github.com/basedgoydev/greed-farm/domain/entities"
	"github.com/basedgoydev/greed-farm/domain/interfaces"
	"github.com/basedgoydev/greed-farm/domain/safemath"
	"github.com/basedgoydev/greed-farm/events"
	"github.com/holiman/uint256"

	log "github.com/sirupsen/logrus"
)

// PoolPolicy decides what happens to the truncation remainder after a distribution.
type PoolPolicy string

const (
	// PoolPolicyCumulative keeps the remainder in the shared pool.
	PoolPolicyCumulative PoolPolicy = "cumulative"
	// PoolPolicyReset moves the remainder to the reserve and restarts the pool at zero.
	PoolPolicyReset PoolPolicy = "reset"
)

// Validate rejects unknown policies.
func (p PoolPolicy) Validate() error {
	switch p {
	case PoolPolicyCumulative, PoolPolicyReset:
		return nil
	}
	return fmt.Errorf("unknown pool policy %q", p)
}

// EpochSettings are the tunables of the epoch state machine.
type EpochSettings struct {
	SharedPoolPercent uint64
	MinDistributable  *uint256.Int
	CountdownDuration time.Duration
	PoolPolicy        PoolPolicy
}

// TickInput is everything a tick needs from outside the unit of work.
type TickInput struct {
	Now             time.Time
	TreasuryBalance *uint256.Int // nil when the treasury could not be read
	Stakes          *interfaces.ReconcileResult
}

// EpochService runs one step of the quorum/countdown/distribution machine
type EpochService struct {
	globalStateRepo interfaces.GlobalStateRepository
	epochRepo       interfaces.EpochRepository
	distribution    *DistributionService
	eventPublisher  interfaces.EventPublisher
	schedule        *QuorumSchedule
	settings        EpochSettings
}

// NewEpochService creates an epoch service over one unit of work
func NewEpochService(
	globalStateRepo interfaces.GlobalStateRepository,
	epochRepo interfaces.EpochRepository,
	distribution *DistributionService,
	eventPublisher interfaces.EventPublisher,
	schedule *QuorumSchedule,
	settings EpochSettings,
) *EpochService {
	if settings.PoolPolicy == "" {
		settings.PoolPolicy = PoolPolicyCumulative
	}
	return &EpochService{
		globalStateRepo: globalStateRepo,
		epochRepo:       epochRepo,
		distribution:    distribution,
		eventPublisher:  eventPublisher,
		schedule:        schedule,
		settings:        settings,
	}
}

// FeeSplit is how one harvested fee delta is divided.
type FeeSplit struct {
	Fees    *uint256.Int
	Pool    *uint256.Int
	Reserve *uint256.Int
}

// SplitFees computes max(0, current-last) and splits it by pct. A nil last
// means no baseline exists yet, so nothing is harvested.
func SplitFees(current, last *uint256.Int, pct uint64) FeeSplit {
	if current == nil || last == nil {
		return FeeSplit{Fees: safemath.Zero(), Pool: safemath.Zero(), Reserve: safemath.Zero()}
	}
	fees := safemath.Sub(current, last)
	pool := safemath.PercentageOf(fees, pct)
	return FeeSplit{Fees: fees, Pool: pool, Reserve: safemath.Sub(fees, pool)}
}

// PhaseOf derives the phase persisted in state and the open epoch.
func PhaseOf(state *entities.GlobalState, epoch *entities.Epoch) entities.EpochPhase {
	switch {
	case state.CountdownStarted():
		return entities.PhaseCountdownActive
	case epoch != nil && epoch.QuorumReached:
		return entities.PhaseQuorumPendingFunds
	default:
		return entities.PhaseWaitingForQuorum
	}
}

// Tick harvests fees, re-evaluates quorum and distributes when the countdown
// has elapsed. The treasury snapshot is persisted on every path.
func (s *EpochService) Tick(ctx context.Context, in TickInput) (*interfaces.TickResult, error) {
	now := in.Now

	state, err := s.globalStateRepo.GetForUpdate(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get global state: %w", err)
	}
	if state == nil {
		return nil, entities.ErrNotBootstrapped
	}

	epoch, err := s.epochRepo.GetCurrent(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get current epoch: %w", err)
	}
	if epoch == nil || epoch.EpochNumber != state.CurrentEpoch {
		return nil, entities.ErrEpochNotFound.WithMessage("open epoch %d not found", state.CurrentEpoch)
	}

	result := &interfaces.TickResult{
		EpochNumber:      epoch.EpochNumber,
		PreviousPhase:    PhaseOf(state, epoch),
		TreasuryObserved: in.TreasuryBalance != nil,
	}

	// Harvest
	split := SplitFees(in.TreasuryBalance, state.LastTreasuryBalance, s.settings.SharedPoolPercent)
	if in.TreasuryBalance != nil {
		if !state.HasTreasuryBaseline() {
			log.WithField("balance", in.TreasuryBalance.Dec()).Info("Recording first treasury baseline")
		}
		state.LastTreasuryBalance = safemath.Clone(in.TreasuryBalance)
		epoch.TreasurySnapshot = safemath.Clone(in.TreasuryBalance)
	}
	if err := s.addFees(state, epoch, split); err != nil {
		return nil, err
	}
	result.FeesCollected = split.Fees
	result.PoolAddition = split.Pool
	result.ReserveAddition = split.Reserve

	// Quorum
	quorumStake := safemath.Zero()
	var eligible []*entities.Stake
	if in.Stakes != nil {
		quorumStake = safemath.Clone(in.Stakes.QuorumTotal)
		eligible = in.Stakes.Eligible
		epoch.TotalEligibleStake = safemath.Clone(in.Stakes.LocalEligibleTotal)
	}
	threshold := s.schedule.ThresholdFor(epoch.EpochNumber)
	quorumMet := !quorumStake.Lt(threshold)
	fundsReady := !state.SharedPool.Lt(safemath.Clone(s.settings.MinDistributable))
	result.QuorumStake = quorumStake
	result.Threshold = threshold

	switch {
	case !quorumMet:
		if state.CountdownStarted() {
			log.WithFields(log.Fields{
				"epoch":     epoch.EpochNumber,
				"stake":     quorumStake.Dec(),
				"threshold": threshold.Dec(),
			}).Info("Quorum lost, countdown reset")
		}
		state.QuorumReachedAt = nil
		result.Phase = entities.PhaseWaitingForQuorum
	case !fundsReady:
		state.QuorumReachedAt = nil
		result.Phase = entities.PhaseQuorumPendingFunds
	default:
		if !state.CountdownStarted() {
			reachedAt := now
			state.QuorumReachedAt = &reachedAt
			log.WithFields(log.Fields{
				"epoch":     epoch.EpochNumber,
				"stake":     quorumStake.Dec(),
				"threshold": threshold.Dec(),
			}).Info("Quorum reached, countdown started")
		}
		result.Phase = entities.PhaseCountdownActive
	}
	epoch.QuorumReached = quorumMet

	// Distribute
	if result.Phase == entities.PhaseCountdownActive && state.CountdownElapsed(now, s.settings.CountdownDuration) {
		result.Phase = entities.PhaseDistributing
		if err := s.advance(ctx, state, epoch, eligible, quorumStake, now, result); err != nil {
			return nil, err
		}
	} else {
		result.CountdownRemaining = state.CountdownRemaining(now, s.settings.CountdownDuration)
		if err := s.epochRepo.Update(ctx, epoch); err != nil {
			return nil, fmt.Errorf("failed to update epoch: %w", err)
		}
	}

	state.UpdatedAt = now
	if err := s.globalStateRepo.Save(ctx, state); err != nil {
		return nil, fmt.Errorf("failed to save global state: %w", err)
	}
	result.SharedPool = safemath.Clone(state.SharedPool)

	if result.Phase != result.PreviousPhase {
		if err := s.eventPublisher.Publish(events.QuorumStateChangedEvent{
			EpochNumber:   result.EpochNumber,
			OldPhase:      result.PreviousPhase,
			NewPhase:      result.Phase,
			EligibleStake: quorumStake,
			Threshold:     threshold,
		}); err != nil {
			log.WithError(err).Error("Failed to publish quorum state changed event")
		}
	}

	return result, nil
}

func (s *EpochService) addFees(state *entities.GlobalState, epoch *entities.Epoch, split FeeSplit) error {
	var err error
	if state.SharedPool, err = safemath.Add(state.SharedPool, split.Pool); err != nil {
		return fmt.Errorf("failed to grow shared pool: %w", err)
	}
	if state.Reserve, err = safemath.Add(state.Reserve, split.Reserve); err != nil {
		return fmt.Errorf("failed to grow reserve: %w", err)
	}
	if epoch.FeesCollected, err = safemath.Add(epoch.FeesCollected, split.Fees); err != nil {
		return fmt.Errorf("failed to total epoch fees: %w", err)
	}
	if epoch.PoolAdditions, err = safemath.Add(epoch.PoolAdditions, split.Pool); err != nil {
		return fmt.Errorf("failed to total epoch pool additions: %w", err)
	}
	return nil
}

// advance distributes the pool, closes epoch and opens its successor.
func (s *EpochService) advance(
	ctx context.Context,
	state *entities.GlobalState,
	epoch *entities.Epoch,
	eligible []*entities.Stake,
	quorumStake *uint256.Int,
	now time.Time,
	result *interfaces.TickResult,
) error {
	distribution, err := s.distribution.DistributeEpoch(ctx, epoch.EpochNumber, state.SharedPool, eligible, now)
	if err != nil {
		return fmt.Errorf("failed to distribute epoch %d: %w", epoch.EpochNumber, err)
	}
	result.Distribution = distribution

	state.SharedPool = safemath.Sub(state.SharedPool, distribution.TotalDistributed)
	if s.settings.PoolPolicy == PoolPolicyReset && !state.SharedPool.IsZero() {
		if state.Reserve, err = safemath.Add(state.Reserve, state.SharedPool); err != nil {
			return fmt.Errorf("failed to move remainder to reserve: %w", err)
		}
		state.SharedPool = safemath.Zero()
	}

	endedAt := now
	epoch.EndedAt = &endedAt
	epoch.Distributed = true
	epoch.TotalDistributed = safemath.Clone(distribution.TotalDistributed)
	epoch.Recipients = distribution.Recipients
	if err := s.epochRepo.Update(ctx, epoch); err != nil {
		return fmt.Errorf("failed to close epoch %d: %w", epoch.EpochNumber, err)
	}

	next := entities.NewEpoch(epoch.EpochNumber+1, now, state.LastTreasuryBalance)
	state.CurrentEpoch = next.EpochNumber
	state.QuorumReachedAt = nil
	if s.schedule.IsMet(next.EpochNumber, quorumStake) {
		seededAt := now
		state.QuorumReachedAt = &seededAt
		next.QuorumReached = true
		result.NextQuorumSeeded = true
	}
	if err := s.epochRepo.Create(ctx, next); err != nil {
		return fmt.Errorf("failed to open epoch %d: %w", next.EpochNumber, err)
	}
	result.NextEpoch = next.EpochNumber

	log.WithFields(log.Fields{
		"closedEpoch":  epoch.EpochNumber,
		"nextEpoch":    next.EpochNumber,
		"distributed":  distribution.TotalDistributed.Dec(),
		"recipients":   distribution.Recipients,
		"poolLeft":     state.SharedPool.Dec(),
		"quorumSeeded": result.NextQuorumSeeded,
	}).Info("Epoch advanced")

	if err := s.eventPublisher.Publish(events.EpochAdvancedEvent{
		ClosedEpoch:      epoch.EpochNumber,
		NextEpoch:        next.EpochNumber,
		TotalDistributed: distribution.TotalDistributed,
		Recipients:       distribution.Recipients,
		PoolRemaining:    safemath.Clone(state.SharedPool),
		QuorumSeeded:     result.NextQuorumSeeded,
	}); err != nil {
		log.WithError(err).Error("Failed to publish epoch advanced event")
	}

	return nil
}
