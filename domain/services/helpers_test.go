package services

import (
	"fmt"
	"testing"
	"time"

	"github.com/basedgoydev/greed-farm/domain/entities"
	"github.com/holiman/uint256"
)

const (
	walletA = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"
	walletB = "HN7cABqLq46Es1jh92dQQisAq662SmxELLLsHHe4YWrH"
	walletC = "7EcDhSYGxXyscszYEp35KHN8vvw3svAuLKTzXwCFLtV"

	testSeed = "4f3c2a1b0e9d8c7b6a5f4e3d2c1b0a99887766554433221100ffeeddccbbaa99"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// rampSteps mirrors the production schedule: 7% rising to 20% by epoch 51
func rampSteps() []QuorumStep {
	return []QuorumStep{
		{FromEpoch: 1, Percent: 7},
		{FromEpoch: 11, Percent: 10},
		{FromEpoch: 21, Percent: 15},
		{FromEpoch: 51, Percent: 20},
	}
}

func amount(v uint64) *uint256.Int {
	return uint256.NewInt(v)
}

func testStake(id, userID int64, wallet string, amt uint64, stakedAt time.Time) *entities.Stake {
	return &entities.Stake{
		ID:       id,
		UserID:   userID,
		Wallet:   wallet,
		Amount:   amount(amt),
		StakedAt: stakedAt,
		Active:   true,
		Source:   entities.StakeSourceRegistry,
	}
}

func testUser(id int64, wallet string, claimable uint64) *entities.User {
	return &entities.User{
		ID:           id,
		Wallet:       wallet,
		Claimable:    amount(claimable),
		TotalClaimed: amount(0),
		TotalWon:     amount(0),
		TotalLost:    amount(0),
	}
}

func testState(epoch int64, pool, pot uint64) *entities.GlobalState {
	return &entities.GlobalState{
		CurrentEpoch: epoch,
		SharedPool:   amount(pool),
		GreedPot:     amount(pot),
		Reserve:      amount(0),
		TotalStaked:  amount(0),
		Version:      1,
	}
}

// clientSeedFor searches for a client seed whose outcome against secretSeed is wantWin.
func clientSeedFor(t *testing.T, secretSeed string, wantWin bool) string {
	t.Helper()
	for i := 0; i < 10000; i++ {
		candidate := fmt.Sprintf("client-seed-%06d", i)
		combined, err := CombinedHash(secretSeed, candidate)
		if err != nil {
			t.Fatalf("combined hash: %v", err)
		}
		roll, err := Roll(combined)
		if err != nil {
			t.Fatalf("roll: %v", err)
		}
		if IsWin(roll) == wantWin {
			return candidate
		}
	}
	t.Fatalf("no client seed found with win=%v", wantWin)
	return ""
}
