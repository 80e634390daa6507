package entities

import (
	"time"

	"github.com/holiman/uint256"
)

// TransactionType represents the type of claimable balance change
type TransactionType string

const (
	TransactionTypeDistributionReward TransactionType = "distribution_reward"
	TransactionTypeWagerWin           TransactionType = "wager_win"
	TransactionTypeWagerLoss          TransactionType = "wager_loss"
	TransactionTypeClaim              TransactionType = "claim"
)

// IsWagerType returns true for wager outcomes
func (tt TransactionType) IsWagerType() bool {
	return tt == TransactionTypeWagerWin || tt == TransactionTypeWagerLoss
}

// String returns the string representation of the transaction type
func (tt TransactionType) String() string {
	return string(tt)
}

// RelatedType represents what type of entity the related_id refers to
type RelatedType string

const (
	RelatedTypeDistribution RelatedType = "distribution"
	RelatedTypeWager        RelatedType = "wager"
)

// BalanceHistory represents a historical claimable balance change
type BalanceHistory struct {
	ID                  int64           `db:"id"`
	UserID              int64           `db:"user_id"`
	BalanceBefore       *uint256.Int    `db:"balance_before"`
	BalanceAfter        *uint256.Int    `db:"balance_after"`
	TransactionType     TransactionType `db:"transaction_type"`
	TransactionMetadata map[string]any  `db:"transaction_metadata"`
	RelatedID           *int64          `db:"related_id"`
	RelatedType         *RelatedType    `db:"related_type"`
	CreatedAt           time.Time       `db:"created_at"`
}

// IsCredit returns true if the balance grew
func (bh *BalanceHistory) IsCredit() bool {
	return bh.BalanceAfter.Gt(bh.BalanceBefore)
}

// Delta returns the absolute size of the change
func (bh *BalanceHistory) Delta() *uint256.Int {
	if bh.IsCredit() {
		return new(uint256.Int).Sub(bh.BalanceAfter, bh.BalanceBefore)
	}
	return new(uint256.Int).Sub(bh.BalanceBefore, bh.BalanceAfter)
}
