package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/basedgoydev/greed-farm/domain/entities"
	"github.com/basedgoydev/greed-farm/domain/interfaces"
	"github.com/basedgoydev/greed-farm/domain/safemath"
	"github.com/basedgoydev/greed-farm/events"
	"github.com/holiman/uint256"

	log "github.com/sirupsen/logrus"
)

// RewardShare is one participant's computed reward before crediting.
type RewardShare struct {
	Stake  *entities.Stake
	Reward *uint256.Int
}

// ComputeRewards splits pool pro rata over stakes. The denominator is the sum
// of the given stakes. Shares are returned in user id order, zero rewards
// included.
func ComputeRewards(pool *uint256.Int, stakes []*entities.Stake) ([]RewardShare, *uint256.Int, error) {
	total := safemath.Zero()
	for _, stake := range stakes {
		var err error
		if total, err = safemath.Add(total, stake.Amount); err != nil {
			return nil, nil, fmt.Errorf("failed to total eligible stake: %w", err)
		}
	}

	ordered := append([]*entities.Stake(nil), stakes...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].UserID < ordered[j].UserID })

	shares := make([]RewardShare, 0, len(ordered))
	for _, stake := range ordered {
		reward, err := safemath.ProRataShare(pool, stake.Amount, total)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to compute reward for user %d: %w", stake.UserID, err)
		}
		shares = append(shares, RewardShare{Stake: stake, Reward: reward})
	}
	return shares, total, nil
}

// DistributionService credits pro-rata rewards for an epoch
type DistributionService struct {
	userRepo           interfaces.UserRepository
	distributionRepo   interfaces.DistributionRepository
	balanceHistoryRepo interfaces.BalanceHistoryRepository
	eventPublisher     interfaces.EventPublisher
}

// NewDistributionService creates a distribution service over one unit of work
func NewDistributionService(
	userRepo interfaces.UserRepository,
	distributionRepo interfaces.DistributionRepository,
	balanceHistoryRepo interfaces.BalanceHistoryRepository,
	eventPublisher interfaces.EventPublisher,
) *DistributionService {
	return &DistributionService{
		userRepo:           userRepo,
		distributionRepo:   distributionRepo,
		balanceHistoryRepo: balanceHistoryRepo,
		eventPublisher:     eventPublisher,
	}
}

// DistributeEpoch credits every non-zero reward of pool over eligible. The
// caller reduces the pool by TotalDistributed within the same unit of work.
// Participants already credited for the epoch are skipped.
func (s *DistributionService) DistributeEpoch(ctx context.Context, epochNumber int64, pool *uint256.Int, eligible []*entities.Stake, now time.Time) (*interfaces.DistributionResult, error) {
	shares, totalEligible, err := ComputeRewards(pool, eligible)
	if err != nil {
		return nil, err
	}

	result := &interfaces.DistributionResult{
		EpochNumber:      epochNumber,
		Pool:             safemath.Clone(pool),
		TotalEligible:    totalEligible,
		TotalDistributed: safemath.Zero(),
	}

	for _, share := range shares {
		if share.Reward.IsZero() {
			result.ZeroRewards++
			continue
		}

		distribution, err := s.credit(ctx, epochNumber, share, now)
		if errors.Is(err, entities.ErrAlreadyDistributed) {
			log.WithFields(log.Fields{
				"epoch":  epochNumber,
				"userID": share.Stake.UserID,
			}).Info("Reward already distributed, skipping")
			result.AlreadyCredited++
			continue
		}
		if err != nil {
			return nil, err
		}

		if result.TotalDistributed, err = safemath.Add(result.TotalDistributed, share.Reward); err != nil {
			return nil, fmt.Errorf("failed to total distributed rewards: %w", err)
		}
		result.Recipients++
		result.Distributions = append(result.Distributions, distribution)
	}

	if result.TotalDistributed.Gt(result.Pool) {
		return nil, fmt.Errorf("%w: distributed %s exceeds pool %s", safemath.ErrOverflow, result.TotalDistributed.Dec(), result.Pool.Dec())
	}
	result.Remainder = safemath.Sub(result.Pool, result.TotalDistributed)

	log.WithFields(log.Fields{
		"epoch":           epochNumber,
		"pool":            result.Pool.Dec(),
		"distributed":     result.TotalDistributed.Dec(),
		"remainder":       result.Remainder.Dec(),
		"recipients":      result.Recipients,
		"alreadyCredited": result.AlreadyCredited,
	}).Info("Distributed epoch rewards")

	if err := s.eventPublisher.Publish(events.DistributionCompletedEvent{
		EpochNumber:      epochNumber,
		Pool:             result.Pool,
		TotalDistributed: result.TotalDistributed,
		Recipients:       result.Recipients,
		AlreadyCredited:  result.AlreadyCredited,
	}); err != nil {
		log.WithError(err).Error("Failed to publish distribution completed event")
	}

	return result, nil
}

// credit records the distribution row first so a repeat run fails before
// touching the balance.
func (s *DistributionService) credit(ctx context.Context, epochNumber int64, share RewardShare, now time.Time) (*entities.Distribution, error) {
	distribution := &entities.Distribution{
		UserID:       share.Stake.UserID,
		Wallet:       share.Stake.Wallet,
		EpochNumber:  epochNumber,
		StakeAmount:  safemath.Clone(share.Stake.Amount),
		RewardAmount: safemath.Clone(share.Reward),
		CreatedAt:    now,
	}
	if err := s.distributionRepo.Create(ctx, distribution); err != nil {
		if errors.Is(err, entities.ErrAlreadyDistributed) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to record distribution for user %d: %w", share.Stake.UserID, err)
	}

	user, err := s.userRepo.GetByIDForUpdate(ctx, share.Stake.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user %d: %w", share.Stake.UserID, err)
	}
	if user == nil {
		return nil, entities.ErrUserNotFound.WithMessage("user %d not found", share.Stake.UserID)
	}

	before := safemath.Clone(user.Claimable)
	after, err := safemath.Add(before, share.Reward)
	if err != nil {
		return nil, fmt.Errorf("failed to credit user %d: %w", user.ID, err)
	}
	user.Claimable = after
	if err := s.userRepo.UpdateBalances(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to update user balance: %w", err)
	}

	relatedType := entities.RelatedTypeDistribution
	history := &entities.BalanceHistory{
		UserID:          user.ID,
		BalanceBefore:   before,
		BalanceAfter:    after,
		TransactionType: entities.TransactionTypeDistributionReward,
		TransactionMetadata: map[string]any{
			"epoch":        epochNumber,
			"stake_amount": share.Stake.Amount.Dec(),
			"reward":       share.Reward.Dec(),
		},
		RelatedID:   &distribution.ID,
		RelatedType: &relatedType,
		CreatedAt:   now,
	}
	if err := s.balanceHistoryRepo.Record(ctx, history); err != nil {
		return nil, fmt.Errorf("failed to record balance history: %w", err)
	}

	return distribution, nil
}
