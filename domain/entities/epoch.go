package entities

import (
	"time"

	"github.com/holiman/uint256"
)

// EpochPhase is the derived state of the quorum/countdown machine.
type EpochPhase string

const (
	PhaseWaitingForQuorum   EpochPhase = "waiting_for_quorum"
	PhaseQuorumPendingFunds EpochPhase = "quorum_pending_funds"
	PhaseCountdownActive    EpochPhase = "countdown_active"
	PhaseDistributing       EpochPhase = "distributing"
)

// Epoch is one fee-collection/distribution cycle
type Epoch struct {
	ID                 int64        `db:"id"`
	EpochNumber        int64        `db:"epoch_number"`
	StartedAt          time.Time    `db:"started_at"`
	EndedAt            *time.Time   `db:"ended_at"`
	TreasurySnapshot   *uint256.Int `db:"treasury_snapshot"`
	FeesCollected      *uint256.Int `db:"fees_collected"`
	PoolAdditions      *uint256.Int `db:"pool_additions"`
	TotalEligibleStake *uint256.Int `db:"total_eligible_stake"`
	TotalDistributed   *uint256.Int `db:"total_distributed"`
	Recipients         int          `db:"recipients"`
	QuorumReached      bool         `db:"quorum_reached"`
	Distributed        bool         `db:"distributed"`
}

// NewEpoch returns an open epoch with zeroed totals.
func NewEpoch(number int64, startedAt time.Time, treasurySnapshot *uint256.Int) *Epoch {
	return &Epoch{
		EpochNumber:        number,
		StartedAt:          startedAt,
		TreasurySnapshot:   cloneAmount(treasurySnapshot),
		FeesCollected:      new(uint256.Int),
		PoolAdditions:      new(uint256.Int),
		TotalEligibleStake: new(uint256.Int),
		TotalDistributed:   new(uint256.Int),
	}
}

// IsClosed returns true once the epoch has ended. Closed epochs are immutable.
func (e *Epoch) IsClosed() bool {
	return e.EndedAt != nil
}

// Duration returns how long the epoch ran, or has run so far.
func (e *Epoch) Duration(now time.Time) time.Duration {
	if e.EndedAt != nil {
		return e.EndedAt.Sub(e.StartedAt)
	}
	return now.Sub(e.StartedAt)
}
