package entities

import (
	"time"

	"github.com/holiman/uint256"
)

// GlobalStateID is the primary key of the singleton protocol row.
const GlobalStateID = 1

// GlobalState is the singleton protocol snapshot. It is versioned and must
// only be read and written inside a unit of work.
type GlobalState struct {
	CurrentEpoch        int64        `db:"current_epoch"`
	SharedPool          *uint256.Int `db:"shared_pool"`
	GreedPot            *uint256.Int `db:"greed_pot"`
	Reserve             *uint256.Int `db:"reserve_balance"`
	TotalStaked         *uint256.Int `db:"total_staked"`
	LastTreasuryBalance *uint256.Int `db:"last_treasury_balance"` // nil until the treasury is first observed
	QuorumReachedAt     *time.Time   `db:"quorum_reached_at"`
	Version             int64        `db:"version"`
	UpdatedAt           time.Time    `db:"updated_at"`
}

// HasTreasuryBaseline reports whether a treasury balance has been recorded.
func (g *GlobalState) HasTreasuryBaseline() bool {
	return g.LastTreasuryBalance != nil
}

// CountdownStarted reports whether a quorum countdown is running.
func (g *GlobalState) CountdownStarted() bool {
	return g.QuorumReachedAt != nil
}

// CountdownElapsed reports whether the running countdown has lasted at least d.
func (g *GlobalState) CountdownElapsed(now time.Time, d time.Duration) bool {
	if g.QuorumReachedAt == nil {
		return false
	}
	return now.Sub(*g.QuorumReachedAt) >= d
}

// CountdownRemaining returns the time left before distribution, or zero.
func (g *GlobalState) CountdownRemaining(now time.Time, d time.Duration) time.Duration {
	if g.QuorumReachedAt == nil {
		return 0
	}
	remaining := d - now.Sub(*g.QuorumReachedAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Clone returns a deep copy.
func (g *GlobalState) Clone() *GlobalState {
	c := *g
	c.SharedPool = cloneAmount(g.SharedPool)
	c.GreedPot = cloneAmount(g.GreedPot)
	c.Reserve = cloneAmount(g.Reserve)
	c.TotalStaked = cloneAmount(g.TotalStaked)
	if g.LastTreasuryBalance != nil {
		c.LastTreasuryBalance = cloneAmount(g.LastTreasuryBalance)
	}
	if g.QuorumReachedAt != nil {
		t := *g.QuorumReachedAt
		c.QuorumReachedAt = &t
	}
	return &c
}

func cloneAmount(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(v)
}
