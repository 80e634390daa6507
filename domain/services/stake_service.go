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

// StakeService handles stakes deposited directly with the server
type StakeService struct {
	userRepo        interfaces.UserRepository
	stakeRepo       interfaces.StakeRepository
	globalStateRepo interfaces.GlobalStateRepository
	eventPublisher  interfaces.EventPublisher
	transferer      interfaces.FundsTransferer
}

// NewStakeService creates a stake service over one unit of work
func NewStakeService(
	userRepo interfaces.UserRepository,
	stakeRepo interfaces.StakeRepository,
	globalStateRepo interfaces.GlobalStateRepository,
	eventPublisher interfaces.EventPublisher,
	transferer interfaces.FundsTransferer,
) *StakeService {
	return &StakeService{
		userRepo:        userRepo,
		stakeRepo:       stakeRepo,
		globalStateRepo: globalStateRepo,
		eventPublisher:  eventPublisher,
		transferer:      transferer,
	}
}

// Stake adds amount to the wallet's custody position. Adding to an existing
// position resets staked_at, which restarts warmup.
func (s *StakeService) Stake(ctx context.Context, wallet string, amount *uint256.Int, now time.Time) (*interfaces.StakeResult, error) {
	if err := entities.ValidateWallet(wallet); err != nil {
		return nil, err
	}
	if amount == nil || amount.IsZero() {
		return nil, entities.ErrInvalidAmount
	}

	if _, err := s.userRepo.GetOrCreate(ctx, wallet); err != nil {
		return nil, fmt.Errorf("failed to get or create user: %w", err)
	}
	user, err := s.userRepo.GetByWalletForUpdate(ctx, wallet)
	if err != nil {
		return nil, fmt.Errorf("failed to lock user: %w", err)
	}
	if user == nil {
		return nil, entities.ErrUserNotFound
	}

	stake, err := s.stakeRepo.GetActiveByUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get active stake: %w", err)
	}

	if stake != nil {
		if stake.Source == entities.StakeSourceRegistry {
			return nil, entities.ErrMixedStakeSource
		}
		if stake.Amount, err = safemath.Add(stake.Amount, amount); err != nil {
			return nil, fmt.Errorf("failed to add to stake: %w", err)
		}
		stake.StakedAt = now
		stake.Wallet = wallet
		if err := s.stakeRepo.Update(ctx, stake); err != nil {
			return nil, fmt.Errorf("failed to update stake: %w", err)
		}
	} else {
		stake = &entities.Stake{
			UserID:   user.ID,
			Wallet:   wallet,
			Amount:   safemath.Clone(amount),
			StakedAt: now,
			Active:   true,
			Source:   entities.StakeSourceCustody,
		}
		if err := s.stakeRepo.Create(ctx, stake); err != nil {
			return nil, fmt.Errorf("failed to create stake: %w", err)
		}
	}

	total, err := s.refreshTotalStaked(ctx, now)
	if err != nil {
		return nil, err
	}

	s.publish(wallet, events.StakeActionStaked, amount, total)

	return &interfaces.StakeResult{
		Stake:       stake,
		Amount:      safemath.Clone(amount),
		TotalStaked: total,
	}, nil
}

// Unstake withdraws the whole custody position and returns it to the wallet.
// The transfer is the last step, so its failure leaves the ledger unchanged
// once the caller rolls back.
func (s *StakeService) Unstake(ctx context.Context, wallet string, now time.Time) (*interfaces.StakeResult, error) {
	if err := entities.ValidateWallet(wallet); err != nil {
		return nil, err
	}

	user, err := s.userRepo.GetByWalletForUpdate(ctx, wallet)
	if err != nil {
		return nil, fmt.Errorf("failed to lock user: %w", err)
	}
	if user == nil {
		return nil, entities.ErrNoActiveStake
	}

	stake, err := s.stakeRepo.GetActiveByUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get active stake: %w", err)
	}
	if stake == nil {
		return nil, entities.ErrNoActiveStake
	}
	if stake.Source == entities.StakeSourceRegistry {
		return nil, entities.ErrMixedStakeSource.WithMessage("stake is held by the registry and must be withdrawn there")
	}

	if err := s.stakeRepo.Deactivate(ctx, stake.ID, now); err != nil {
		return nil, fmt.Errorf("failed to deactivate stake: %w", err)
	}
	stake.Active = false
	stake.UnstakedAt = &now

	total, err := s.refreshTotalStaked(ctx, now)
	if err != nil {
		return nil, err
	}

	txRef, err := s.transferer.Transfer(ctx, wallet, stake.Amount, fmt.Sprintf("unstake:%d", stake.ID))
	if err != nil {
		return nil, entities.NewExternalUnavailable("funds transfer", err)
	}

	log.WithFields(log.Fields{
		"wallet": wallet,
		"amount": stake.Amount.Dec(),
		"txRef":  txRef,
	}).Info("Stake withdrawn")

	s.publish(wallet, events.StakeActionUnstaked, stake.Amount, total)

	return &interfaces.StakeResult{
		Stake:       stake,
		Amount:      safemath.Clone(stake.Amount),
		TotalStaked: total,
		TxRef:       txRef,
	}, nil
}

func (s *StakeService) refreshTotalStaked(ctx context.Context, now time.Time) (*uint256.Int, error) {
	total, err := s.stakeRepo.SumActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to sum active stakes: %w", err)
	}

	state, err := s.globalStateRepo.GetForUpdate(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get global state: %w", err)
	}
	if state == nil {
		return nil, entities.ErrNotBootstrapped
	}
	state.TotalStaked = total
	state.UpdatedAt = now
	if err := s.globalStateRepo.Save(ctx, state); err != nil {
		return nil, fmt.Errorf("failed to save total staked: %w", err)
	}
	return safemath.Clone(total), nil
}

func (s *StakeService) publish(wallet string, action events.StakeAction, amount, total *uint256.Int) {
	if err := s.eventPublisher.Publish(events.StakeChangedEvent{
		Wallet:      wallet,
		Action:      action,
		Amount:      safemath.Clone(amount),
		TotalStaked: total,
	}); err != nil {
		log.WithError(err).Error("Failed to publish stake changed event")
	}
}
