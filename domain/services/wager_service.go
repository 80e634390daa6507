package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/basedgoydev/greed-farm/domain/entities"
	"github.com/basedgoydev/greed-farm/domain/interfaces"
	"github.com/basedgoydev/greed-farm/domain/safemath"
	"github.com/basedgoydev/greed-farm/events"
	"github.com/google/uuid"

	log "github.com/sirupsen/logrus"
)

// MaxClientSeedLength bounds the client seed stored with each wager record
const MaxClientSeedLength = 256

// WagerSettings are the tunables of the commit-reveal protocol.
type WagerSettings struct {
	CommitmentTTL       time.Duration
	MinClientSeedLength int
}

// WagerService runs the commit-reveal wager lifecycle against the greed pot
type WagerService struct {
	commitmentRepo     interfaces.WagerCommitmentRepository
	recordRepo         interfaces.WagerRecordRepository
	userRepo           interfaces.UserRepository
	globalStateRepo    interfaces.GlobalStateRepository
	balanceHistoryRepo interfaces.BalanceHistoryRepository
	eventPublisher     interfaces.EventPublisher
	settings           WagerSettings
	seeds              SeedSource
}

// NewWagerService creates a wager service over one unit of work. A nil seed
// source uses GenerateSecretSeed.
func NewWagerService(
	commitmentRepo interfaces.WagerCommitmentRepository,
	recordRepo interfaces.WagerRecordRepository,
	userRepo interfaces.UserRepository,
	globalStateRepo interfaces.GlobalStateRepository,
	balanceHistoryRepo interfaces.BalanceHistoryRepository,
	eventPublisher interfaces.EventPublisher,
	settings WagerSettings,
	seeds SeedSource,
) *WagerService {
	if seeds == nil {
		seeds = GenerateSecretSeed
	}
	return &WagerService{
		commitmentRepo:     commitmentRepo,
		recordRepo:         recordRepo,
		userRepo:           userRepo,
		globalStateRepo:    globalStateRepo,
		balanceHistoryRepo: balanceHistoryRepo,
		eventPublisher:     eventPublisher,
		settings:           settings,
		seeds:              seeds,
	}
}

// CreateCommitment returns the wallet's pending commitment, issuing a new one
// if none is usable at now.
func (s *WagerService) CreateCommitment(ctx context.Context, wallet string, now time.Time) (*interfaces.CommitmentTicket, error) {
	if err := entities.ValidateWallet(wallet); err != nil {
		return nil, err
	}

	existing, err := s.commitmentRepo.GetActiveByWallet(ctx, wallet, now)
	if err != nil {
		return nil, fmt.Errorf("failed to get active commitment: %w", err)
	}
	if existing != nil {
		return ticketOf(existing), nil
	}

	seed, err := s.seeds()
	if err != nil {
		return nil, err
	}

	commitment := &entities.WagerCommitment{
		ID:             uuid.New(),
		Wallet:         wallet,
		SecretSeed:     seed,
		CommitmentHash: CommitmentHash(seed),
		ExpiresAt:      now.Add(s.settings.CommitmentTTL),
		CreatedAt:      now,
	}
	if err := s.commitmentRepo.Create(ctx, commitment); err != nil {
		return nil, fmt.Errorf("failed to create commitment: %w", err)
	}

	if err := s.eventPublisher.Publish(events.CommitmentCreatedEvent{
		CommitmentID:   commitment.ID.String(),
		Wallet:         wallet,
		CommitmentHash: commitment.CommitmentHash,
		ExpiresAt:      commitment.ExpiresAt,
	}); err != nil {
		log.WithError(err).Error("Failed to publish commitment created event")
	}

	return ticketOf(commitment), nil
}

func ticketOf(c *entities.WagerCommitment) *interfaces.CommitmentTicket {
	return &interfaces.CommitmentTicket{
		ID:             c.ID,
		CommitmentHash: c.CommitmentHash,
		ExpiresAt:      c.ExpiresAt,
	}
}

// ValidateSettleRequest performs every check that needs no store access.
func (s *WagerService) ValidateSettleRequest(req interfaces.SettleRequest) (uuid.UUID, error) {
	if err := entities.ValidateWallet(req.Wallet); err != nil {
		return uuid.Nil, err
	}
	if err := req.RiskPercent.Validate(); err != nil {
		return uuid.Nil, err
	}
	if len(req.ClientSeed) < s.settings.MinClientSeedLength {
		return uuid.Nil, entities.ErrClientSeedTooShort.WithMessage("client seed must be at least %d characters", s.settings.MinClientSeedLength)
	}
	if len(req.ClientSeed) > MaxClientSeedLength {
		return uuid.Nil, entities.ErrClientSeedTooLong.WithMessage("client seed must be at most %d characters", MaxClientSeedLength)
	}
	return entities.ParseCommitmentID(req.CommitmentID)
}

// Settle consumes the commitment, derives the outcome and moves funds between
// the user's claimable balance and the pot. Every write happens in the
// caller's unit of work; any error must roll it back.
func (s *WagerService) Settle(ctx context.Context, req interfaces.SettleRequest, now time.Time) (*interfaces.WagerOutcome, error) {
	commitmentID, err := s.ValidateSettleRequest(req)
	if err != nil {
		return nil, err
	}

	// Lock the commitment
	commitment, err := s.commitmentRepo.GetByIDForUpdate(ctx, commitmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get commitment: %w", err)
	}
	if commitment == nil {
		return nil, entities.ErrCommitmentNotFound
	}
	if err := commitment.CheckSettleable(req.Wallet, now); err != nil {
		return nil, err
	}

	// Lock the user
	user, err := s.userRepo.GetByWalletForUpdate(ctx, req.Wallet)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil || !user.HasClaimable() {
		return nil, entities.ErrNothingToRisk
	}
	risk := safemath.PercentageOf(user.Claimable, uint64(req.RiskPercent))
	if risk.IsZero() {
		return nil, entities.ErrNothingToRisk
	}

	// Lock the pot
	state, err := s.globalStateRepo.GetForUpdate(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get global state: %w", err)
	}
	if state == nil {
		return nil, entities.ErrNotBootstrapped
	}

	combined, err := CombinedHash(commitment.SecretSeed, req.ClientSeed)
	if err != nil {
		return nil, err
	}
	roll, err := Roll(combined)
	if err != nil {
		return nil, err
	}
	won := IsWin(roll)

	if err := s.commitmentRepo.MarkConsumed(ctx, commitment.ID, now); err != nil {
		if errors.Is(err, entities.ErrCommitmentConsumed) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to consume commitment: %w", err)
	}

	claimableBefore := safemath.Clone(user.Claimable)
	potBefore := safemath.Clone(state.GreedPot)
	payout := safemath.Zero()

	if won {
		// Wins are capped at the pot so it never goes negative
		payout = safemath.Min(risk, potBefore)
		if user.Claimable, err = safemath.Add(user.Claimable, payout); err != nil {
			return nil, fmt.Errorf("failed to credit payout: %w", err)
		}
		if user.TotalWon, err = safemath.Add(user.TotalWon, payout); err != nil {
			return nil, fmt.Errorf("failed to total winnings: %w", err)
		}
		state.GreedPot = safemath.Sub(potBefore, payout)
	} else {
		user.Claimable = safemath.Sub(user.Claimable, risk)
		if user.TotalLost, err = safemath.Add(user.TotalLost, risk); err != nil {
			return nil, fmt.Errorf("failed to total losses: %w", err)
		}
		if state.GreedPot, err = safemath.Add(potBefore, risk); err != nil {
			return nil, fmt.Errorf("failed to grow pot: %w", err)
		}
	}

	if err := s.userRepo.UpdateBalances(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to update user balance: %w", err)
	}
	state.UpdatedAt = now
	if err := s.globalStateRepo.Save(ctx, state); err != nil {
		return nil, fmt.Errorf("failed to save pot: %w", err)
	}

	record := &entities.WagerRecord{
		CommitmentID:    commitment.ID,
		UserID:          user.ID,
		Wallet:          user.Wallet,
		EpochNumber:     state.CurrentEpoch,
		RiskAmount:      risk,
		RiskPercent:     req.RiskPercent,
		Won:             won,
		Payout:          payout,
		PotBefore:       potBefore,
		PotAfter:        safemath.Clone(state.GreedPot),
		ClaimableBefore: claimableBefore,
		ClaimableAfter:  safemath.Clone(user.Claimable),
		SecretSeed:      commitment.SecretSeed,
		CommitmentHash:  commitment.CommitmentHash,
		ClientSeed:      req.ClientSeed,
		CombinedHash:    combined,
		CreatedAt:       now,
	}
	if err := s.recordRepo.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to record wager: %w", err)
	}

	if err := s.recordBalanceChange(ctx, record, now); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"wagerID":  record.ID,
		"wallet":   record.Wallet,
		"risk":     risk.Dec(),
		"won":      won,
		"payout":   payout.Dec(),
		"potAfter": record.PotAfter.Dec(),
	}).Info("Wager settled")

	if err := s.eventPublisher.Publish(events.WagerSettledEvent{
		WagerID:     record.ID,
		Wallet:      record.Wallet,
		EpochNumber: record.EpochNumber,
		RiskPercent: record.RiskPercent,
		RiskAmount:  record.RiskAmount,
		Won:         won,
		Payout:      payout,
		PotAfter:    record.PotAfter,
	}); err != nil {
		log.WithError(err).Error("Failed to publish wager settled event")
	}

	return &interfaces.WagerOutcome{
		Record:       record,
		NewClaimable: safemath.Clone(user.Claimable),
	}, nil
}

func (s *WagerService) recordBalanceChange(ctx context.Context, record *entities.WagerRecord, now time.Time) error {
	if record.ClaimableBefore.Eq(record.ClaimableAfter) {
		return nil
	}

	transactionType := entities.TransactionTypeWagerLoss
	if record.Won {
		transactionType = entities.TransactionTypeWagerWin
	}
	relatedType := entities.RelatedTypeWager
	history := &entities.BalanceHistory{
		UserID:          record.UserID,
		BalanceBefore:   record.ClaimableBefore,
		BalanceAfter:    record.ClaimableAfter,
		TransactionType: transactionType,
		TransactionMetadata: map[string]any{
			"commitment_id": record.CommitmentID.String(),
			"risk_percent":  uint64(record.RiskPercent),
			"risk_amount":   record.RiskAmount.Dec(),
			"payout":        record.Payout.Dec(),
		},
		RelatedID:   &record.ID,
		RelatedType: &relatedType,
		CreatedAt:   now,
	}
	if err := s.balanceHistoryRepo.Record(ctx, history); err != nil {
		return fmt.Errorf("failed to record balance history: %w", err)
	}
	return nil
}

// Verify returns the reveal data of a settled wager with every check recomputed.
func (s *WagerService) Verify(ctx context.Context, wagerID int64) (*interfaces.WagerVerification, error) {
	record, err := s.recordRepo.GetByID(ctx, wagerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get wager: %w", err)
	}
	if record == nil {
		return nil, entities.ErrWagerNotFound
	}
	return VerifyWager(record), nil
}

// CleanupCommitments deletes consumed commitments and those expired for longer
// than one TTL.
func (s *WagerService) CleanupCommitments(ctx context.Context, now time.Time) (int64, error) {
	deleted, err := s.commitmentRepo.DeleteStale(ctx, now.Add(-s.settings.CommitmentTTL))
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale commitments: %w", err)
	}
	return deleted, nil
}
