package testutil

import (
	"fmt"
	"time"

	"github.com/basedgoydev/greed-farm/domain/entities"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// Wallets are valid base58 wallet identifiers for fixtures
var Wallets = []string{
	"9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM",
	"HN7cABqLq46Es1jh92dQQisAq662SmxELLLsHHe4YWrH",
	"7EcDhSYGxXyscszYEp35KHN8vvw3svAuLKTzXwCFLtV",
	"DRpbCBMxVnDK7maPM5tGv6MvB3v1sRMC86PZ8okm21hy",
}

// Now is a fixed UTC instant truncated to the database's microsecond precision
var Now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// CreateTestGlobalState creates bootstrap protocol state at epoch 1
func CreateTestGlobalState() *entities.GlobalState {
	return &entities.GlobalState{
		CurrentEpoch: 1,
		SharedPool:   new(uint256.Int),
		GreedPot:     new(uint256.Int),
		Reserve:      new(uint256.Int),
		TotalStaked:  new(uint256.Int),
		UpdatedAt:    Now,
	}
}

// CreateTestEpoch creates an open epoch
func CreateTestEpoch(number int64) *entities.Epoch {
	return entities.NewEpoch(number, Now, uint256.NewInt(1_000_000))
}

// CreateTestStake creates an active stake of the given source
func CreateTestStake(userID int64, amount uint64, stakedAt time.Time, source entities.StakeSource) *entities.Stake {
	return &entities.Stake{
		UserID:   userID,
		Amount:   uint256.NewInt(amount),
		StakedAt: stakedAt,
		Active:   true,
		Source:   source,
	}
}

// CreateTestCommitment creates a pending commitment for wallet
func CreateTestCommitment(wallet string, expiresAt time.Time) *entities.WagerCommitment {
	seed := fmt.Sprintf("%064x", uuid.New().ID())
	return &entities.WagerCommitment{
		ID:             uuid.New(),
		Wallet:         wallet,
		SecretSeed:     seed,
		CommitmentHash: fmt.Sprintf("%064d", 0),
		ExpiresAt:      expiresAt,
		CreatedAt:      Now,
	}
}

// CreateTestWagerRecord creates a settled losing wager
func CreateTestWagerRecord(commitment *entities.WagerCommitment, userID int64, epoch int64) *entities.WagerRecord {
	return &entities.WagerRecord{
		CommitmentID:    commitment.ID,
		UserID:          userID,
		Wallet:          commitment.Wallet,
		EpochNumber:     epoch,
		RiskAmount:      uint256.NewInt(500),
		RiskPercent:     entities.RiskHalf,
		Won:             false,
		Payout:          new(uint256.Int),
		PotBefore:       uint256.NewInt(100),
		PotAfter:        uint256.NewInt(600),
		ClaimableBefore: uint256.NewInt(1000),
		ClaimableAfter:  uint256.NewInt(500),
		SecretSeed:      commitment.SecretSeed,
		CommitmentHash:  commitment.CommitmentHash,
		ClientSeed:      "client-seed-000001",
		CombinedHash:    fmt.Sprintf("%064d", 1),
		CreatedAt:       Now,
	}
}

// CreateTestBalanceHistory creates a test balance history entry
func CreateTestBalanceHistory(userID int64, transactionType entities.TransactionType) *entities.BalanceHistory {
	return &entities.BalanceHistory{
		UserID:          userID,
		BalanceBefore:   uint256.NewInt(1000),
		BalanceAfter:    uint256.NewInt(1500),
		TransactionType: transactionType,
		TransactionMetadata: map[string]any{
			"test": true,
		},
		CreatedAt: Now,
	}
}
