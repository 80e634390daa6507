package services

import (
	"context"
	"fmt"
	"time"

	"github.com/basedgoydev/greed-farm/domain/entities"
	"github.com/basedgoydev/greed-farm/domain/interfaces"
	"github.com/basedgoydev/greed-farm/domain/safemath"
	"github.com/basedgoydev/greed-farm/events"

	log "github.com/sirupsen/logrus"
)

// ClaimService pays out claimable balances
type ClaimService struct {
	userRepo           interfaces.UserRepository
	balanceHistoryRepo interfaces.BalanceHistoryRepository
	eventPublisher     interfaces.EventPublisher
	transferer         interfaces.FundsTransferer
}

// NewClaimService creates a claim service over one unit of work
func NewClaimService(
	userRepo interfaces.UserRepository,
	balanceHistoryRepo interfaces.BalanceHistoryRepository,
	eventPublisher interfaces.EventPublisher,
	transferer interfaces.FundsTransferer,
) *ClaimService {
	return &ClaimService{
		userRepo:           userRepo,
		balanceHistoryRepo: balanceHistoryRepo,
		eventPublisher:     eventPublisher,
		transferer:         transferer,
	}
}

// Claim moves the whole claimable balance to the wallet.
func (s *ClaimService) Claim(ctx context.Context, wallet string, now time.Time) (*interfaces.ClaimResult, error) {
	if err := entities.ValidateWallet(wallet); err != nil {
		return nil, err
	}

	user, err := s.userRepo.GetByWalletForUpdate(ctx, wallet)
	if err != nil {
		return nil, fmt.Errorf("failed to lock user: %w", err)
	}
	if user == nil || !user.HasClaimable() {
		return nil, entities.ErrNothingToClaim
	}

	amount := safemath.Clone(user.Claimable)
	user.Claimable = safemath.Zero()
	if user.TotalClaimed, err = safemath.Add(user.TotalClaimed, amount); err != nil {
		return nil, fmt.Errorf("failed to total claims: %w", err)
	}
	if err := s.userRepo.UpdateBalances(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to update user balance: %w", err)
	}

	history := &entities.BalanceHistory{
		UserID:          user.ID,
		BalanceBefore:   amount,
		BalanceAfter:    safemath.Zero(),
		TransactionType: entities.TransactionTypeClaim,
		TransactionMetadata: map[string]any{
			"amount": amount.Dec(),
		},
		CreatedAt: now,
	}
	if err := s.balanceHistoryRepo.Record(ctx, history); err != nil {
		return nil, fmt.Errorf("failed to record balance history: %w", err)
	}

	txRef, err := s.transferer.Transfer(ctx, wallet, amount, fmt.Sprintf("claim:%d", history.ID))
	if err != nil {
		return nil, entities.NewExternalUnavailable("funds transfer", err)
	}

	log.WithFields(log.Fields{
		"wallet": wallet,
		"amount": amount.Dec(),
		"txRef":  txRef,
	}).Info("Claim paid")

	if err := s.eventPublisher.Publish(events.ClaimCompletedEvent{
		Wallet: wallet,
		Amount: amount,
		TxRef:  txRef,
	}); err != nil {
		log.WithError(err).Error("Failed to publish claim completed event")
	}

	return &interfaces.ClaimResult{Amount: amount, TxRef: txRef}, nil
}
