package entities

import (
	"time"

	"github.com/holiman/uint256"
)

// Distribution is one reward credit. At most one exists per (user, epoch).
type Distribution struct {
	ID           int64        `db:"id"`
	UserID       int64        `db:"user_id"`
	Wallet       string       `db:"wallet"` // joined from users
	EpochNumber  int64        `db:"epoch_number"`
	StakeAmount  *uint256.Int `db:"stake_amount"`
	RewardAmount *uint256.Int `db:"reward_amount"`
	CreatedAt    time.Time    `db:"created_at"`
}
