package entities

import (
	"time"

	"github.com/holiman/uint256"
)

// StakeSource records which ledger created a stake row.
type StakeSource string

const (
	// StakeSourceRegistry rows mirror the external stake registry.
	StakeSourceRegistry StakeSource = "registry"
	// StakeSourceCustody rows were deposited directly with the server.
	StakeSourceCustody StakeSource = "custody"
)

// Stake is a user's locked position. Rows are soft-deleted.
type Stake struct {
	ID         int64        `db:"id"`
	UserID     int64        `db:"user_id"`
	Wallet     string       `db:"wallet"` // joined from users
	Amount     *uint256.Int `db:"amount"`
	StakedAt   time.Time    `db:"staked_at"`
	Active     bool         `db:"active"`
	UnstakedAt *time.Time   `db:"unstaked_at"`
	Source     StakeSource  `db:"source"`
	CreatedAt  time.Time    `db:"created_at"`
	UpdatedAt  time.Time    `db:"updated_at"`
}

// EligibilityCutoff returns the instant a stake must predate to have cleared
// warmup at now.
func EligibilityCutoff(now time.Time, warmup time.Duration) time.Time {
	return now.Add(-warmup)
}

// IsEligible returns true if the stake is active, non-zero and older than
// warmup.
func (s *Stake) IsEligible(now time.Time, warmup time.Duration) bool {
	if !s.Active || s.Amount == nil || s.Amount.IsZero() {
		return false
	}
	return s.StakedAt.Before(EligibilityCutoff(now, warmup))
}

// WarmupRemaining returns how long until the stake becomes eligible.
func (s *Stake) WarmupRemaining(now time.Time, warmup time.Duration) time.Duration {
	remaining := s.StakedAt.Add(warmup).Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// ExternalStake is one position reported by the external stake registry.
type ExternalStake struct {
	Wallet   string
	Amount   *uint256.Int
	StakedAt time.Time
}
